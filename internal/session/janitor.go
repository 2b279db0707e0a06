package session

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "mailblast/pkg/logx"
)

// Archiver receives terminal sessions before they are evicted from memory.
type Archiver interface {
	ArchiveSession(ctx context.Context, s Session) error
}

// Janitor runs a scheduled retention sweep: terminal sessions older than
// the store's TTL are archived (when an archiver is attached) and removed.
type Janitor struct {
	mu sync.Mutex

	store    *Store
	archiver Archiver
	log      logx.Logger

	schedule string
	c        *cron.Cron
	runCtx   context.Context
}

func NewJanitor(store *Store, archiver Archiver, schedule string, log logx.Logger) *Janitor {
	if schedule == "" {
		schedule = "@hourly"
	}
	return &Janitor{
		store:    store,
		archiver: archiver,
		log:      log,
		schedule: schedule,
	}
}

func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.c != nil {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() { j.Sweep(j.runCtx) }); err != nil {
		return err
	}
	j.runCtx = ctx
	j.c = c
	c.Start()
	j.log.Debug("retention sweep scheduled", logx.String("schedule", j.schedule))
	return nil
}

func (j *Janitor) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.c
	j.c = nil
	j.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Sweep archives and deletes terminal sessions past the retention TTL.
// Safe to call directly (tests, manual trigger).
func (j *Janitor) Sweep(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	j.store.cfgMu.Lock()
	ttl := j.store.retentionTTL
	j.store.cfgMu.Unlock()

	cutoff := time.Now().Add(-ttl)
	expired := j.store.Terminal(cutoff)
	if len(expired) == 0 {
		return
	}

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		if j.archiver != nil {
			actx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := j.archiver.ArchiveSession(actx, s)
			cancel()
			if err != nil {
				// Keep the session in memory; the next sweep retries.
				j.log.Warn("session archive failed", logx.String("session", s.ID), logx.Any("err", err))
				continue
			}
		}
		ids = append(ids, s.ID)
	}

	removed := j.store.Delete(ids...)
	if removed > 0 {
		j.log.Info("retention sweep", logx.Int("archived", len(ids)), logx.Int("removed", removed))
	}
}
