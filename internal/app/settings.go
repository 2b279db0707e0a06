package app

import (
	"fmt"
	"strings"
	"time"

	"mailblast/internal/accounts"
	"mailblast/internal/alerts"
	"mailblast/internal/config"
	"mailblast/internal/server"
	"mailblast/internal/session"
	"mailblast/internal/storage"
)

// mailerSettings is MailerConfig with durations parsed and defaults applied.
type mailerSettings struct {
	DailyLimit       int
	Interval         time.Duration
	PreflightTimeout time.Duration
	Cap              int
	Transport        string
	UnsubscribeURL   string
	Location         *time.Location
}

func mapMailerConfig(cfg *config.Config) (mailerSettings, error) {
	m := cfg.Mailer

	interval, err := config.ParseDurationOrDefault("mailer.dispatch_interval", m.DispatchInterval, 72*time.Second)
	if err != nil {
		return mailerSettings{}, err
	}
	if interval <= 0 {
		return mailerSettings{}, fmt.Errorf("mailer.dispatch_interval must be positive")
	}
	pfTimeout, err := config.ParseDurationOrDefault("mailer.preflight_timeout", m.PreflightTimeout, 10*time.Second)
	if err != nil {
		return mailerSettings{}, err
	}

	limit := m.DailyLimit
	if limit == 0 {
		limit = 300
	}
	if limit < 0 {
		return mailerSettings{}, fmt.Errorf("mailer.daily_limit must be >= 0")
	}
	campCap := m.PerCampaignCap
	if campCap == 0 {
		campCap = 50
	}
	if campCap < 0 {
		return mailerSettings{}, fmt.Errorf("mailer.per_campaign_cap must be >= 0")
	}

	transport := strings.ToLower(strings.TrimSpace(m.Transport))
	if transport == "" {
		transport = "log"
	}

	loc := time.Local
	if tz := strings.TrimSpace(m.QuotaTimezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return mailerSettings{}, fmt.Errorf("mailer.quota_timezone: invalid %q: %w", tz, err)
		}
		loc = l
	}

	return mailerSettings{
		DailyLimit:       limit,
		Interval:         interval,
		PreflightTimeout: pfTimeout,
		Cap:              campCap,
		Transport:        transport,
		UnsubscribeURL:   strings.TrimSpace(m.UnsubscribeURL),
		Location:         loc,
	}, nil
}

func mapServerConfig(cfg *config.Config, campaignCap int) (server.Config, error) {
	s := cfg.Server
	rt, err := config.ParseDurationOrDefault("server.read_timeout", s.ReadTimeout, 10*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	wt, err := config.ParseDurationOrDefault("server.write_timeout", s.WriteTimeout, 30*time.Second)
	if err != nil {
		return server.Config{}, err
	}
	it, err := config.ParseDurationOrDefault("server.idle_timeout", s.IdleTimeout, time.Minute)
	if err != nil {
		return server.Config{}, err
	}
	return server.Config{
		Addr:           s.Addr,
		ReadTimeout:    rt,
		WriteTimeout:   wt,
		IdleTimeout:    it,
		PerCampaignCap: campaignCap,
	}, nil
}

func mapSessionsConfig(cfg *config.Config) (session.Config, string, error) {
	sc := session.Config{}
	schedule := ""
	if cfg.Sessions != nil {
		sc.RetentionMax = cfg.Sessions.RetentionMax
		ttl, err := config.ParseDurationOrDefault("sessions.retention_ttl", cfg.Sessions.RetentionTTL, 0)
		if err != nil {
			return session.Config{}, "", err
		}
		sc.RetentionTTL = ttl
		schedule = strings.TrimSpace(cfg.Sessions.SweepSchedule)
	}
	return sc, schedule, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	bt, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: bt,
	}, true, nil
}

func mapAlertsConfig(cfg *config.Config) alerts.Config {
	if cfg.Alerts == nil {
		return alerts.Config{}
	}
	return alerts.Config{
		Enabled:    cfg.Alerts.Enabled,
		Token:      cfg.Alerts.Token,
		ChatID:     cfg.Alerts.ChatID,
		RatePerSec: cfg.Alerts.RatePerSec,
	}
}

func mapAccounts(cfg *config.Config) []accounts.Account {
	out := make([]accounts.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		out = append(out, accounts.Account{
			ID:            a.ID,
			Name:          a.Name,
			Address:       a.Address,
			CredentialRef: a.CredentialRef,
		})
	}
	return out
}

func accountsEqual(a, b []config.AccountConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
