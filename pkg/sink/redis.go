package sink

import (
	"encoding/json"
	"time"

	"github.com/gomodule/redigo/redis"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	redisKeyPrefix = "tpbridge:state:"
	redisChannel   = "tpbridge:states"
)

// ConnGetter hands out redis connections. *redis.Pool implements it.
type ConnGetter interface {
	Get() redis.Conn
}

// Redis mirrors every state into redis so other processes can read it.
// Each update is stored under tpbridge:state:<id> and announced on the
// tpbridge:states channel.
type Redis struct {
	pool ConnGetter
	log  *logrus.Entry
}

// NewRedisPool creates a connection pool for addr (host:port).
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: 4 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(5*time.Second),
				redis.DialWriteTimeout(5*time.Second),
			)
		},
	}
}

// NewRedis creates a Redis sink.
func NewRedis(pool ConnGetter) *Redis {
	return &Redis{
		pool: pool,
		log:  logrus.WithField("sink", "redis"),
	}
}

// Key returns the redis key a state is stored under.
func Key(id string) string {
	return redisKeyPrefix + id
}

func (r *Redis) UpdateState(id, value string) {
	if err := r.update(id, value); err != nil {
		r.log.WithField("state", id).Errorf("failed to mirror state: %v", err)
	}
}

func (r *Redis) update(id, value string) error {
	conn := r.pool.Get()
	defer func() {
		if err := conn.Close(); err != nil {
			r.log.Warnf("failed to close redis connection: %v", err)
		}
	}()

	if _, err := conn.Do("SET", Key(id), value); err != nil {
		return pkgerrors.Wrapf(err, "failed to set %s", Key(id))
	}

	msg, err := json.Marshal(State{ID: id, Value: value, UpdatedAt: time.Now()})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to marshal state")
	}
	if _, err := conn.Do("PUBLISH", redisChannel, msg); err != nil {
		return pkgerrors.Wrapf(err, "failed to publish on %s", redisChannel)
	}
	return nil
}

// Ping checks that redis is reachable.
func (r *Redis) Ping() error {
	conn := r.pool.Get()
	defer conn.Close()

	_, err := redis.String(conn.Do("PING"))
	return pkgerrors.Wrap(err, "redis ping failed")
}
