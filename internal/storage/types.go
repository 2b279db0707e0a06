package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled and the engine runs
// purely in memory.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}
