package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
  poll_timeout: "10s"
logging:
  level: "DEBUG"
  console: true
storage:
  path: "./data/bot.db"
dispatcher:
  enabled: true
  interval: "30s"
reminders:
  max_pending: 50
  max_lead_time: "720h"
`)

	m := NewManager(path)
	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("Token = %q", cfg.Telegram.Token)
	}
	if !cfg.Dispatcher.Enabled || cfg.Dispatcher.Interval != "30s" {
		t.Fatalf("Dispatcher = %+v", cfg.Dispatcher)
	}
	if cfg.Reminders.MaxPending != 50 {
		t.Fatalf("MaxPending = %d", cfg.Reminders.MaxPending)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json",
		`{"telegram":{"token":"t"},"logging":{"level":"INFO","console":true,"file":{"enabled":false,"path":""},"telegram":{"enabled":false}},"storage":{"path":"x.db"},"dispatcher":{"enabled":false}}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Path != "x.db" {
		t.Fatalf("Storage.Path = %q", cfg.Storage.Path)
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "t"
dispatchr:
  enabled: true
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"telegram":{"token":"t"}}{"extra":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing JSON document")
	}
}

func TestParseDuration(t *testing.T) {
	t.Parallel()
	if d, err := ParseDuration("x", " 45s ", 0); err != nil || d != 45*time.Second {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if d, err := ParseDuration("x", "", time.Minute); err != nil || d != time.Minute {
		t.Fatalf("default: got (%v, %v)", d, err)
	}
	if _, err := ParseDuration("x", "nope", 0); err == nil {
		t.Fatal("expected error for invalid duration")
	}
	if _, err := ParseDuration("x", "-5s", 0); err == nil {
		t.Fatal("expected error for negative duration")
	}
}

func TestLoadCommitAndSubscribe(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "t"
storage:
  path: "x.db"
`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() == nil || m.Get().Telegram.Token != "t" {
		t.Fatal("committed config not retrievable")
	}

	sub := m.Subscribe(1)
	next := &Config{}
	m.publish(next)
	select {
	case got := <-sub:
		if got != next {
			t.Fatal("subscriber received wrong config")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the published config")
	}
	m.Unsubscribe(sub)
	if _, ok := <-sub; ok {
		t.Fatal("unsubscribe did not close the channel")
	}
}
