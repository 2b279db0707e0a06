// Package quota tracks the process-wide daily send budget.
//
// The counter is the one piece of state shared by all concurrently running
// campaign sessions, so every read-modify-write goes through one mutex.
// The day rolls over lazily: any access first checks whether "today" has
// changed and resets the count before proceeding. No background timer.
package quota

import (
	"context"
	"sync"
	"time"

	logx "mailblast/pkg/logx"
)

const dayFormat = "2006-01-02"

// Persister saves and restores a day's consumed count so a restart inside
// one calendar day cannot double-spend the budget. Implementations must
// tolerate best-effort usage; errors are logged and ignored.
type Persister interface {
	LoadQuotaDay(ctx context.Context, day string) (count int, ok bool, err error)
	SaveQuotaDay(ctx context.Context, day string, count int) error
}

type Governor struct {
	mu    sync.Mutex
	limit int
	day   string
	count int

	loc   *time.Location
	now   func() time.Time
	store Persister
	log   logx.Logger
}

type Option func(*Governor)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// WithLocation sets the timezone that defines the quota day.
func WithLocation(loc *time.Location) Option {
	return func(g *Governor) {
		if loc != nil {
			g.loc = loc
		}
	}
}

// WithPersister enables day-count persistence.
func WithPersister(p Persister) Option {
	return func(g *Governor) { g.store = p }
}

func New(limit int, log logx.Logger, opts ...Option) *Governor {
	if limit <= 0 {
		limit = 300
	}
	g := &Governor{
		limit: limit,
		loc:   time.Local,
		now:   time.Now,
		log:   log,
	}
	for _, o := range opts {
		o(g)
	}
	g.day = g.today()

	// Restore the spent count for today, if a store is attached.
	if g.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if n, ok, err := g.store.LoadQuotaDay(ctx, g.day); err != nil {
			g.log.Warn("quota restore failed", logx.Any("err", err), logx.String("day", g.day))
		} else if ok {
			g.count = min(n, g.limit)
			g.log.Info("quota restored", logx.String("day", g.day), logx.Int("count", g.count))
		}
	}
	return g
}

func (g *Governor) today() string {
	return g.now().In(g.loc).Format(dayFormat)
}

// rollover must be called with the lock held.
func (g *Governor) rollover() {
	today := g.today()
	if today == g.day {
		return
	}
	g.log.Info("daily quota reset", logx.String("from", g.day), logx.String("to", today), logx.Int("spent", g.count))
	g.day = today
	g.count = 0
}

// Remaining reports how many sends are left in today's budget.
func (g *Governor) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	return g.limit - g.count
}

// TryConsume atomically takes up to n sends from today's budget and
// returns how many were actually granted (possibly 0).
func (g *Governor) TryConsume(n int) int {
	if n <= 0 {
		return 0
	}
	g.mu.Lock()
	g.rollover()
	granted := min(n, g.limit-g.count)
	g.count += granted
	day, count := g.day, g.count
	g.mu.Unlock()

	if granted > 0 {
		g.persist(day, count)
	}
	return granted
}

// SetLimit applies a new daily limit (hot reload). Lowering the limit below
// the already-spent count does not un-send anything; Remaining clamps at 0
// via the count<=limit guard on future consumes.
func (g *Governor) SetLimit(limit int) {
	if limit <= 0 {
		return
	}
	g.mu.Lock()
	g.limit = limit
	if g.count > g.limit {
		g.count = g.limit
	}
	g.mu.Unlock()
}

type Snapshot struct {
	Date      string `json:"date"`
	Count     int    `json:"dailyCount"`
	Limit     int    `json:"dailyLimit"`
	Remaining int    `json:"remaining"`
}

func (g *Governor) SnapshotNow() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollover()
	return Snapshot{
		Date:      g.day,
		Count:     g.count,
		Limit:     g.limit,
		Remaining: g.limit - g.count,
	}
}

func (g *Governor) persist(day string, count int) {
	if g.store == nil {
		return
	}
	// Best-effort, tightly bounded so a slow disk can't stall dispatch.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if err := g.store.SaveQuotaDay(ctx, day, count); err != nil {
		g.log.Debug("quota persist failed", logx.Any("err", err), logx.String("day", day))
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
