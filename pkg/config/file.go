package config

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/jsonc"

	"github.com/extra-connectors/tpbridge/pkg/utils/ptr"
)

// Transports.
const (
	TransportZMQ  = "zmq"
	TransportNATS = "nats"
)

var (
	defaultFileConfig = &RawFileConfig{
		Transport:          ptr.To(TransportZMQ),
		Pattern:            ptr.To("reqrep"),
		NATSURL:            ptr.To("nats://127.0.0.1:4222"),
		AssetDir:           ptr.To("/usr/share/tpbridge/assets"),
		LockTrueLabel:      ptr.To("Locked"),
		LockFalseLabel:     ptr.To("Unlocked"),
		HandlerErrorPolicy: ptr.To("nack"),
		ClockSchedule:      ptr.To("* * * * *"),
		RedisAddr:          ptr.To(""),
		HTTPListen:         ptr.To(""),
	}

	// Endpoints depend on the transport: socket addresses for ZeroMQ,
	// subject prefixes for NATS.
	defaultEndpoints = map[string][2]string{
		TransportZMQ:  {"tcp://*:5555", "tcp://localhost:5556"},
		TransportNATS: {"tpbridge.in.", "tpbridge.out."},
	}
)

var _ Config = &File{}

type File struct {
	c        *RawFileConfig
	mu       *sync.RWMutex
	filepath string
}

func NewFile(configPath string) (*File, error) {
	f := &File{
		filepath: configPath,
		mu:       &sync.RWMutex{},
	}
	err := f.Load()
	if err != nil {
		return nil, err
	}

	return f, nil
}

func NewFileFromConfig(c *RawFileConfig, configPath string) *File {
	if c == nil {
		c = &RawFileConfig{}
	}

	return &File{
		c:        c,
		mu:       &sync.RWMutex{},
		filepath: configPath,
	}
}

// Path returns the file the configuration is loaded from.
func (f *File) Path() string {
	return f.filepath
}

type RawFileConfig struct {
	Transport          *string  `json:"transport,omitempty"`
	Pattern            *string  `json:"pattern,omitempty"`
	InboundEndpoint    *string  `json:"inboundEndpoint,omitempty"`
	OutboundEndpoint   *string  `json:"outboundEndpoint,omitempty"`
	NATSURL            *string  `json:"natsURL,omitempty"`
	AssetDir           *string  `json:"assetDir,omitempty"`
	LockTrueLabel      *string  `json:"lockTrueLabel,omitempty"`
	LockFalseLabel     *string  `json:"lockFalseLabel,omitempty"`
	HandlerErrorPolicy *string  `json:"handlerErrorPolicy,omitempty"`
	ClockSchedule      *string  `json:"clockSchedule,omitempty"`
	RedisAddr          *string  `json:"redisAddr,omitempty"`
	HTTPListen         *string  `json:"httpListen,omitempty"`
	CORSOrigins        []string `json:"corsOrigins,omitempty"`
}

// NewRawFileConfigFromConfig resolves every setting of c, defaults
// included.
func NewRawFileConfigFromConfig(c Config) (*RawFileConfig, error) {
	if c == nil {
		return nil, pkgerrors.New("config is nil")
	}

	return &RawFileConfig{
		Transport:          ptr.To(c.Transport()),
		Pattern:            ptr.To(c.Pattern()),
		InboundEndpoint:    ptr.To(c.InboundEndpoint()),
		OutboundEndpoint:   ptr.To(c.OutboundEndpoint()),
		NATSURL:            ptr.To(c.NATSURL()),
		AssetDir:           ptr.To(c.AssetDir()),
		LockTrueLabel:      ptr.To(c.LockTrueLabel()),
		LockFalseLabel:     ptr.To(c.LockFalseLabel()),
		HandlerErrorPolicy: ptr.To(c.HandlerErrorPolicy()),
		ClockSchedule:      ptr.To(c.ClockSchedule()),
		RedisAddr:          ptr.To(c.RedisAddr()),
		HTTPListen:         ptr.To(c.HTTPListen()),
		CORSOrigins:        c.CORSOrigins(),
	}, nil
}

func (f *File) str(get func(*RawFileConfig) *string) string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	if v := get(f.c); v != nil {
		return *v
	}
	return *get(defaultFileConfig)
}

func (f *File) Transport() string {
	return f.str(func(c *RawFileConfig) *string { return c.Transport })
}

func (f *File) Pattern() string {
	return f.str(func(c *RawFileConfig) *string { return c.Pattern })
}

func (f *File) endpoint(get func(*RawFileConfig) *string, idx int) string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	v := get(f.c)
	f.mu.RUnlock()

	if v != nil {
		return *v
	}
	return defaultEndpoints[f.Transport()][idx]
}

func (f *File) InboundEndpoint() string {
	return f.endpoint(func(c *RawFileConfig) *string { return c.InboundEndpoint }, 0)
}

func (f *File) OutboundEndpoint() string {
	return f.endpoint(func(c *RawFileConfig) *string { return c.OutboundEndpoint }, 1)
}

func (f *File) NATSURL() string {
	return f.str(func(c *RawFileConfig) *string { return c.NATSURL })
}

func (f *File) AssetDir() string {
	return f.str(func(c *RawFileConfig) *string { return c.AssetDir })
}

func (f *File) LockTrueLabel() string {
	return f.str(func(c *RawFileConfig) *string { return c.LockTrueLabel })
}

func (f *File) LockFalseLabel() string {
	return f.str(func(c *RawFileConfig) *string { return c.LockFalseLabel })
}

func (f *File) HandlerErrorPolicy() string {
	return f.str(func(c *RawFileConfig) *string { return c.HandlerErrorPolicy })
}

func (f *File) ClockSchedule() string {
	return f.str(func(c *RawFileConfig) *string { return c.ClockSchedule })
}

// RedisAddr is empty when the redis mirror is disabled.
func (f *File) RedisAddr() string {
	return f.str(func(c *RawFileConfig) *string { return c.RedisAddr })
}

// HTTPListen is empty when the API is only served on the unix socket.
func (f *File) HTTPListen() string {
	return f.str(func(c *RawFileConfig) *string { return c.HTTPListen })
}

func (f *File) CORSOrigins() []string {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]string(nil), f.c.CORSOrigins...)
}

func (f *File) SetLockLabels(trueLabel, falseLabel string) {
	if f.c == nil {
		panic("config is nil")
	}
	if trueLabel == "" || falseLabel == "" {
		panic("lock labels cannot be empty")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.LockTrueLabel = &trueLabel
	f.c.LockFalseLabel = &falseLabel
}

func (f *File) SetHandlerErrorPolicy(p string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.HandlerErrorPolicy = &p
}

func (f *File) SetClockSchedule(s string) {
	if f.c == nil {
		panic("config is nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.c.ClockSchedule = &s
}

func (f *File) Validate() error {
	switch t := f.Transport(); t {
	case TransportZMQ, TransportNATS:
	default:
		return pkgerrors.Errorf("unknown transport %q", t)
	}
	switch p := f.Pattern(); p {
	case "reqrep", "pubsub":
	default:
		return pkgerrors.Errorf("unknown pattern %q", p)
	}
	switch p := f.HandlerErrorPolicy(); p {
	case "nack", "fatal":
	default:
		return pkgerrors.Errorf("unknown handler error policy %q", p)
	}
	if f.LockTrueLabel() == "" || f.LockFalseLabel() == "" {
		return pkgerrors.New("lock labels cannot be empty")
	}
	if f.InboundEndpoint() == "" {
		return pkgerrors.New("inbound endpoint cannot be empty")
	}
	return nil
}

func (f *File) Load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	fp, err := os.Open(f.filepath)
	if err != nil {
		if os.IsNotExist(err) {
			// If the file does not exist, return the empty config.
			// Do not make f.c a nil.
			f.c = &RawFileConfig{}
			return nil
		}
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	b, err := io.ReadAll(fp)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to read file %s", f.filepath)
	}

	// Comments and trailing commas are allowed.
	b = jsonc.ToJSON(b)
	if strings.TrimSpace(string(b)) == "" {
		f.c = &RawFileConfig{}
		return nil
	}

	conf := RawFileConfig{}
	err = json.Unmarshal(b, &conf)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to unmarshal config from file %s", f.filepath)
	}
	f.c = &conf

	return nil
}

func (f *File) Save() error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.c == nil {
		return pkgerrors.New("config is nil")
	}

	fp, err := os.OpenFile(f.filepath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to open file %s", f.filepath)
	}
	defer func(fp *os.File) {
		err := fp.Close()
		if err != nil {
			logrus.Warnf("failed to close file %s", f.filepath)
		}
	}(fp)

	enc := json.NewEncoder(fp)
	enc.SetIndent("", "  ")
	err = enc.Encode(f.c)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to encode config to file %s", f.filepath)
	}

	return nil
}

func (f *File) LogrusFields() logrus.Fields {
	if f.c == nil {
		panic("config is nil")
	}

	return logrus.Fields{
		"transport":          f.Transport(),
		"pattern":            f.Pattern(),
		"inboundEndpoint":    f.InboundEndpoint(),
		"outboundEndpoint":   f.OutboundEndpoint(),
		"assetDir":           f.AssetDir(),
		"lockTrueLabel":      f.LockTrueLabel(),
		"lockFalseLabel":     f.LockFalseLabel(),
		"handlerErrorPolicy": f.HandlerErrorPolicy(),
		"clockSchedule":      f.ClockSchedule(),
		"redisAddr":          f.RedisAddr(),
		"httpListen":         f.HTTPListen(),
	}
}
