package storage

import (
	"context"
	"errors"
	"strings"

	"mailblast/internal/session"
	logx "mailblast/pkg/logx"
)

// Store is the persistence API used by the quota governor and the session
// retention sweep.
type Store interface {
	LoadQuotaDay(ctx context.Context, day string) (count int, ok bool, err error)
	SaveQuotaDay(ctx context.Context, day string, count int) error
	ArchiveSession(ctx context.Context, s session.Session) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
