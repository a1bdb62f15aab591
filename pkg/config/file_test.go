package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "tpbridge.json")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(t.TempDir(), "missing.json")},
		{name: "empty file", path: writeConfig(t, "  \n")},
		{name: "only comments", path: writeConfig(t, "// nothing configured\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFile(tt.path)
			if err != nil {
				t.Fatalf("NewFile returned error: %v", err)
			}
			if f.Transport() != TransportZMQ || f.Pattern() != "reqrep" {
				t.Errorf("unexpected transport %s/%s", f.Transport(), f.Pattern())
			}
			if f.InboundEndpoint() != "tcp://*:5555" || f.OutboundEndpoint() != "tcp://localhost:5556" {
				t.Errorf("unexpected endpoints %s %s", f.InboundEndpoint(), f.OutboundEndpoint())
			}
			if f.LockTrueLabel() != "Locked" || f.LockFalseLabel() != "Unlocked" {
				t.Errorf("unexpected lock labels %s %s", f.LockTrueLabel(), f.LockFalseLabel())
			}
			if f.HandlerErrorPolicy() != "nack" || f.ClockSchedule() != "* * * * *" {
				t.Errorf("unexpected policy %s or schedule %s", f.HandlerErrorPolicy(), f.ClockSchedule())
			}
			if f.RedisAddr() != "" || f.HTTPListen() != "" || len(f.CORSOrigins()) != 0 {
				t.Errorf("optional integrations must be disabled by default")
			}
			if err := f.Validate(); err != nil {
				t.Errorf("defaults must be valid: %v", err)
			}
		})
	}
}

func TestLoadWithComments(t *testing.T) {
	p := writeConfig(t, `{
  // lock polarity is inverted on this host
  "lockTrueLabel": "Unlocked",
  "lockFalseLabel": "Locked",
  /* talk to the local broker */
  "transport": "nats",
  "corsOrigins": ["http://localhost:3000",],
}`)
	f, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}
	if f.LockTrueLabel() != "Unlocked" || f.LockFalseLabel() != "Locked" {
		t.Errorf("unexpected lock labels %s %s", f.LockTrueLabel(), f.LockFalseLabel())
	}
	if f.InboundEndpoint() != "tpbridge.in." || f.OutboundEndpoint() != "tpbridge.out." {
		t.Errorf("nats endpoints default to subject prefixes, got %s %s", f.InboundEndpoint(), f.OutboundEndpoint())
	}
	if !reflect.DeepEqual(f.CORSOrigins(), []string{"http://localhost:3000"}) {
		t.Errorf("unexpected cors origins %v", f.CORSOrigins())
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := NewFile(writeConfig(t, `{"pattern": 1}`)); err == nil {
		t.Fatalf("expected error for a mistyped field")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		raw  RawFileConfig
		ok   bool
	}{
		{name: "empty", raw: RawFileConfig{}, ok: true},
		{name: "pubsub fatal", raw: RawFileConfig{Pattern: strp("pubsub"), HandlerErrorPolicy: strp("fatal")}, ok: true},
		{name: "bad transport", raw: RawFileConfig{Transport: strp("mqtt")}},
		{name: "bad pattern", raw: RawFileConfig{Pattern: strp("pair")}},
		{name: "bad policy", raw: RawFileConfig{HandlerErrorPolicy: strp("ignore")}},
		{name: "empty label", raw: RawFileConfig{LockTrueLabel: strp("")}},
		{name: "empty endpoint", raw: RawFileConfig{InboundEndpoint: strp("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := tt.raw
			err := NewFileFromConfig(&raw, "").Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok %v", err, tt.ok)
			}
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tpbridge.json")
	f := NewFileFromConfig(nil, p)
	f.SetLockLabels("On", "Off")
	f.SetHandlerErrorPolicy("fatal")
	f.SetClockSchedule("*/5 * * * *")
	if err := f.Save(); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	g, err := NewFile(p)
	if err != nil {
		t.Fatalf("NewFile returned error: %v", err)
	}
	if g.LockTrueLabel() != "On" || g.LockFalseLabel() != "Off" {
		t.Errorf("unexpected lock labels %s %s", g.LockTrueLabel(), g.LockFalseLabel())
	}
	if g.HandlerErrorPolicy() != "fatal" || g.ClockSchedule() != "*/5 * * * *" {
		t.Errorf("unexpected policy %s or schedule %s", g.HandlerErrorPolicy(), g.ClockSchedule())
	}
	if g.c.Transport != nil {
		t.Errorf("unset fields must not be written")
	}
}

func TestNewRawFileConfigFromConfig(t *testing.T) {
	raw, err := NewRawFileConfigFromConfig(NewFileFromConfig(nil, ""))
	if err != nil {
		t.Fatalf("NewRawFileConfigFromConfig returned error: %v", err)
	}
	if *raw.Transport != TransportZMQ || *raw.InboundEndpoint != "tcp://*:5555" || *raw.LockTrueLabel != "Locked" {
		t.Errorf("unexpected resolved config %+v", raw)
	}
	if _, err := NewRawFileConfigFromConfig(nil); err == nil {
		t.Errorf("expected error for a nil config")
	}
}

func strp(s string) *string { return &s }
