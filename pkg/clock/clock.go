// Package clock publishes the wall-clock time as a state on a cron cadence.
package clock

import (
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/extra-connectors/tpbridge/pkg/sink"
)

const (
	// StateCurrentTime holds the time as HH:MM.
	StateCurrentTime = "extra-connectors.current-time.state"
	// DefaultSchedule fires at the start of every minute.
	DefaultSchedule = "* * * * *"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// FormatTime formats t as 24-hour HH:MM.
func FormatTime(t time.Time) string {
	return t.Format("15:04")
}

// CurrentTimeTask returns a task pushing the current time to s.
func CurrentTimeTask(s sink.Sink, now func() time.Time) func() {
	if now == nil {
		now = time.Now
	}
	return func() {
		s.UpdateState(StateCurrentTime, FormatTime(now()))
	}
}

// Ticker runs a task once when started and then on every activation of
// a cron schedule.
type Ticker struct {
	schedule cron.Schedule
	spec     string
	task     func()

	mu   sync.Mutex
	cron *cron.Cron
}

// ValidateSchedule reports whether spec is a schedule NewTicker accepts.
func ValidateSchedule(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return pkgerrors.Wrapf(err, "invalid schedule %q", spec)
	}
	return nil
}

// NewTicker parses spec and creates a stopped Ticker.
func NewTicker(spec string, task func()) (*Ticker, error) {
	if task == nil {
		return nil, pkgerrors.New("task cannot be nil")
	}
	if spec == "" {
		spec = DefaultSchedule
	}
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid schedule %q", spec)
	}
	return &Ticker{
		schedule: sched,
		spec:     spec,
		task:     task,
	}, nil
}

// Start runs the task and schedules the next runs. Starting a running
// Ticker does nothing.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cron != nil {
		return
	}

	t.task()

	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cronLogger{})))
	c.Schedule(t.schedule, cron.FuncJob(t.task))
	c.Start()
	t.cron = c

	logrus.WithField("schedule", t.spec).Debug("ticker started")
}

// Stop unschedules the task and waits for a running invocation to finish.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cron == nil {
		return
	}
	<-t.cron.Stop().Done()
	t.cron = nil

	logrus.Debug("ticker stopped")
}

// Running reports whether the Ticker is started.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cron != nil
}

// Next returns the next activation after now.
func (t *Ticker) Next(now time.Time) time.Time {
	return t.schedule.Next(now)
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logrus.WithField("kv", keysAndValues).Debug(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logrus.WithError(err).WithField("kv", keysAndValues).Error(msg)
}
