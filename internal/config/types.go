package config

import (
	"bytes"
	"encoding/json"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`

	// Accounts are the configured sender identities. The list is read once
	// at startup; changing it requires a restart (the registry is immutable).
	Accounts []AccountConfig `json:"accounts"`

	// Mailer controls the dispatch engine: daily quota, pacing, caps.
	Mailer MailerConfig `json:"mailer"`

	// Sessions controls retention of finished campaign sessions.
	// If omitted, defaults apply (see session package).
	Sessions *SessionsConfig `json:"sessions,omitempty"`

	Storage *StorageConfig `json:"storage,omitempty"`
	Alerts  *AlertsConfig  `json:"alerts,omitempty"`
}

type ServerConfig struct {
	// Addr defaults to "127.0.0.1:8080".
	Addr string `json:"addr,omitempty"`

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type AccountConfig struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	CredentialRef string `json:"credential_ref"`
}

// MailerConfig controls the dispatch engine.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
//
// Defaults (when fields are omitted/zero):
//   - daily_limit: 300
//   - dispatch_interval: "72s"
//   - per_campaign_cap: 50
//   - preflight_timeout: "10s"
//   - transport: "log"
type MailerConfig struct {
	DailyLimit       int    `json:"daily_limit,omitempty"`
	DispatchInterval string `json:"dispatch_interval,omitempty"`
	PerCampaignCap   int    `json:"per_campaign_cap,omitempty"`
	PreflightTimeout string `json:"preflight_timeout,omitempty"`

	// Transport selects the mail-provider client. "log" writes outbound
	// messages to the log instead of the wire (development default).
	Transport string `json:"transport,omitempty"`

	// UnsubscribeURL overrides the List-Unsubscribe target. When empty a
	// mailto: link to the sending account is used.
	UnsubscribeURL string `json:"unsubscribe_url,omitempty"`

	// QuotaTimezone sets the calendar day used for the daily quota
	// (IANA name, e.g. "Europe/Amsterdam"). Empty means local time.
	QuotaTimezone string `json:"quota_timezone,omitempty"`
}

// SessionsConfig controls retention of terminal sessions.
//
// Defaults: retention_max 200, retention_ttl "24h", sweep_schedule "@hourly".
type SessionsConfig struct {
	RetentionMax  int    `json:"retention_max,omitempty"`
	RetentionTTL  string `json:"retention_ttl,omitempty"`
	SweepSchedule string `json:"sweep_schedule,omitempty"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./mailblast.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// AlertsConfig controls optional operator alerts over Telegram.
// Disabled unless both token and chat_id are set.
type AlertsConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// UnmarshalJSON disallows unknown fields so typos in the alerts block are
// caught during config reload instead of silently ignored.
func (a *AlertsConfig) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Enabled    bool   `json:"enabled"`
		Token      string `json:"token,omitempty"`
		ChatID     int64  `json:"chat_id,omitempty"`
		RatePerSec int    `json:"rate_per_sec,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var t tmp
	if err := dec.Decode(&t); err != nil {
		return err
	}
	*a = AlertsConfig{Enabled: t.Enabled, Token: t.Token, ChatID: t.ChatID, RatePerSec: t.RatePerSec}
	return nil
}
