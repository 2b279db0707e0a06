package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
server:
  addr: "127.0.0.1:9999"
logging:
  level: "DEBUG"
  console: true
accounts:
  - id: "a1"
    name: "Promo"
    address: "promo@example.com"
    credential_ref: "cred"
mailer:
  daily_limit: 100
  dispatch_interval: "5s"
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Fatalf("Addr = %q", cfg.Server.Addr)
	}
	if len(cfg.Accounts) != 1 || cfg.Accounts[0].ID != "a1" {
		t.Fatalf("Accounts = %+v", cfg.Accounts)
	}
	if cfg.Mailer.DailyLimit != 100 || cfg.Mailer.DispatchInterval != "5s" {
		t.Fatalf("Mailer = %+v", cfg.Mailer)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"mailer": {"daily_limitt": 100}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("typo in field name accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"mailer": {}}{"extra": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"72s", 72 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"-5s", 0, true},
		{"banana", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr != (err != nil) {
			t.Fatalf("ParseDurationField(%q) err = %v", tc.raw, err)
		}
		if !tc.wantErr && got != tc.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}

	if d, err := ParseDurationOrDefault("test.field", "", 10*time.Second); err != nil || d != 10*time.Second {
		t.Fatalf("ParseDurationOrDefault = %v, %v", d, err)
	}
}

func TestSubscribePublishAndUnsubscribe(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging": {"level": "INFO", "console": true}}`)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	ch := m.Subscribe(1)
	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("wrong config delivered")
		}
	default:
		t.Fatal("nothing delivered")
	}

	// A full buffer drops the oldest update, never blocks.
	m.publish(cfg)
	newer := &Config{}
	m.publish(newer)
	if got := <-ch; got != newer {
		t.Fatal("newest config was not kept")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed on unsubscribe")
	}
}
