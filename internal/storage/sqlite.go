package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mailblast/internal/session"
	logx "mailblast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadQuotaDay(ctx context.Context, day string) (int, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrDisabled
	}
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT count FROM quota_days WHERE day = ?`, day).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (s *sqliteStore) SaveQuotaDay(ctx context.Context, day string, count int) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quota_days(day, count) VALUES(?,?)
		 ON CONFLICT(day) DO UPDATE SET count=excluded.count`,
		day, count,
	)
	return err
}

func (s *sqliteStore) ArchiveSession(ctx context.Context, sess session.Session) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}

	var errsJSON any
	if len(sess.Errors) > 0 {
		b, err := json.Marshal(sess.Errors)
		if err != nil {
			return err
		}
		errsJSON = string(b)
	}
	var endTime any
	if sess.EndTime != nil {
		endTime = sess.EndTime.Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_archive(id, account_id, status, total, sent, failed, start_time, end_time, errors)
		 VALUES(?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO NOTHING`,
		sess.ID, sess.AccountID, string(sess.Status),
		sess.TotalRecipients, sess.SentCount, sess.FailedCount,
		sess.StartTime.Format(time.RFC3339Nano), endTime, errsJSON,
	)
	return err
}
