// Package session keeps the in-memory registry of campaign dispatch
// sessions: the single source of truth read by the control surface and
// written by the dispatcher that owns each record.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "mailblast/pkg/logx"
)

var ErrNotFound = errors.New("session not found")

const (
	// Keep session memory bounded. Sessions can pile up on a busy day and
	// keeping all of them forever steadily retains memory.
	defaultRetentionMax = 200
	defaultRetentionTTL = 24 * time.Hour
)

type Config struct {
	RetentionMax int
	RetentionTTL time.Duration
}

type Store struct {
	mu   sync.RWMutex
	recs map[string]*record

	cfgMu        sync.Mutex
	retentionMax int
	retentionTTL time.Duration

	log logx.Logger
	now func() time.Time
}

// record guards one session with its own lock so concurrent RequestCancel
// calls never race destructively with the owning dispatcher's writes.
type record struct {
	mu sync.Mutex
	s  Session
}

func NewStore(cfg Config, log logx.Logger) *Store {
	st := &Store{
		recs: map[string]*record{},
		log:  log,
		now:  time.Now,
	}
	st.Apply(cfg)
	return st
}

func (st *Store) Apply(cfg Config) {
	if cfg.RetentionMax <= 0 {
		cfg.RetentionMax = defaultRetentionMax
	}
	if cfg.RetentionTTL <= 0 {
		cfg.RetentionTTL = defaultRetentionTTL
	}
	st.cfgMu.Lock()
	st.retentionMax = cfg.RetentionMax
	st.retentionTTL = cfg.RetentionTTL
	st.cfgMu.Unlock()
}

type CreateParams struct {
	AccountID        string
	TotalRecipients  int
	EstimatedEndTime time.Time
}

// Create registers a new session in the "sending" state and returns a
// snapshot of it. Old terminal sessions are pruned on the way in.
func (st *Store) Create(p CreateParams) Session {
	now := st.now()
	st.prune(now)

	s := Session{
		ID:               uuid.NewString(),
		AccountID:        p.AccountID,
		TotalRecipients:  p.TotalRecipients,
		Status:           StatusSending,
		StartTime:        now,
		EstimatedEndTime: p.EstimatedEndTime,
	}

	st.mu.Lock()
	st.recs[s.ID] = &record{s: s}
	st.mu.Unlock()

	st.log.Debug("session created",
		logx.String("session", s.ID),
		logx.String("account", p.AccountID),
		logx.Int("total", p.TotalRecipients))
	return s
}

func (st *Store) get(id string) (*record, bool) {
	st.mu.RLock()
	r, ok := st.recs[id]
	st.mu.RUnlock()
	return r, ok
}

// Snapshot returns a deep copy of the session, safe to hand to encoders.
func (st *Store) Snapshot(id string) (Session, bool) {
	r, ok := st.get(id)
	if !ok {
		return Session{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s.clone(), true
}

// Mutate applies fn to the session under its lock. Terminal sessions are
// immutable: fn is not invoked once a terminal status has been reached.
func (st *Store) Mutate(id string, fn func(*Session)) error {
	r, ok := st.get(id)
	if !ok {
		return ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.s.Status.Terminal() {
		return nil
	}
	fn(&r.s)
	return nil
}

// RequestCancel flips the advisory cancellation flag. It never touches
// Status; the owning dispatcher observes the flag at its next loop check.
func (st *Store) RequestCancel(id string) error {
	r, ok := st.get(id)
	if !ok {
		return ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.s.Status.Terminal() {
		r.s.Cancelled = true
	}
	return nil
}

// Terminal returns snapshots of all terminal sessions that ended before
// the cutoff. Used by the retention sweep.
func (st *Store) Terminal(endedBefore time.Time) []Session {
	st.mu.RLock()
	recs := make([]*record, 0, len(st.recs))
	for _, r := range st.recs {
		recs = append(recs, r)
	}
	st.mu.RUnlock()

	var out []Session
	for _, r := range recs {
		r.mu.Lock()
		if r.s.Status.Terminal() && r.s.EndTime != nil && r.s.EndTime.Before(endedBefore) {
			out = append(out, r.s.clone())
		}
		r.mu.Unlock()
	}
	return out
}

// Delete removes sessions by id. Only terminal sessions may be deleted.
func (st *Store) Delete(ids ...string) int {
	removed := 0
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, id := range ids {
		r, ok := st.recs[id]
		if !ok {
			continue
		}
		r.mu.Lock()
		terminal := r.s.Status.Terminal()
		r.mu.Unlock()
		if terminal {
			delete(st.recs, id)
			removed++
		}
	}
	return removed
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.recs)
}

// prune drops terminal sessions past TTL, then enforces the capacity cap
// by dropping the oldest terminal sessions. Running sessions always stay.
func (st *Store) prune(now time.Time) {
	st.cfgMu.Lock()
	max := st.retentionMax
	ttl := st.retentionTTL
	st.cfgMu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.recs) == 0 {
		return
	}

	type kv struct {
		id string
		t  time.Time
	}
	var terminal []kv

	for id, r := range st.recs {
		r.mu.Lock()
		if r.s.Status.Terminal() {
			ref := r.s.StartTime
			if r.s.EndTime != nil {
				ref = *r.s.EndTime
			}
			if now.Sub(ref) > ttl {
				r.mu.Unlock()
				delete(st.recs, id)
				continue
			}
			terminal = append(terminal, kv{id: id, t: ref})
		}
		r.mu.Unlock()
	}

	if len(st.recs) <= max {
		return
	}

	// Still too big: drop oldest terminal sessions first.
	sort.Slice(terminal, func(i, j int) bool { return terminal[i].t.Before(terminal[j].t) })
	excess := len(st.recs) - max
	for i := 0; i < excess && i < len(terminal); i++ {
		delete(st.recs, terminal[i].id)
	}
}
