package quota

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "mailblast/pkg/logx"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTryConsumeClampsToRemaining(t *testing.T) {
	t.Parallel()
	g := New(10, logx.Nop())

	if got := g.TryConsume(4); got != 4 {
		t.Fatalf("TryConsume(4) = %d, want 4", got)
	}
	if got := g.TryConsume(10); got != 6 {
		t.Fatalf("TryConsume(10) = %d, want 6", got)
	}
	if got := g.TryConsume(1); got != 0 {
		t.Fatalf("TryConsume(1) after exhaustion = %d, want 0", got)
	}
	if got := g.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %d, want 0", got)
	}
}

func TestDayRolloverResetsCount(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	now := time.Date(2026, 8, 30, 23, 50, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	g := New(5, logx.Nop(), WithClock(clock), WithLocation(time.UTC))
	if got := g.TryConsume(5); got != 5 {
		t.Fatalf("TryConsume(5) = %d, want 5", got)
	}
	if got := g.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %d, want 0", got)
	}

	// Cross midnight.
	mu.Lock()
	now = now.Add(20 * time.Minute)
	mu.Unlock()

	if got := g.Remaining(); got != 5 {
		t.Fatalf("Remaining() after rollover = %d, want 5", got)
	}
	snap := g.SnapshotNow()
	if snap.Date != "2026-08-31" || snap.Count != 0 {
		t.Fatalf("SnapshotNow() = %+v, want date 2026-08-31 count 0", snap)
	}
}

func TestConcurrentConsumeNeverExceedsLimit(t *testing.T) {
	t.Parallel()
	const limit = 100
	g := New(limit, logx.Nop(), WithClock(fixedClock(time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC))), WithLocation(time.UTC))

	var total int64
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				atomic.AddInt64(&total, int64(g.TryConsume(1)))
			}
		}()
	}
	wg.Wait()

	if total != limit {
		t.Fatalf("sum of TryConsume grants = %d, want %d", total, limit)
	}
	if got := g.Remaining(); got != 0 {
		t.Fatalf("Remaining() = %d, want 0", got)
	}
}

func TestSetLimitHotReload(t *testing.T) {
	t.Parallel()
	g := New(10, logx.Nop())
	if got := g.TryConsume(8); got != 8 {
		t.Fatalf("TryConsume(8) = %d, want 8", got)
	}

	g.SetLimit(5)
	if got := g.Remaining(); got != 0 {
		t.Fatalf("Remaining() after lowering limit = %d, want 0", got)
	}

	g.SetLimit(20)
	if got := g.Remaining(); got != 15 {
		t.Fatalf("Remaining() after raising limit = %d, want 15", got)
	}
}

type fakePersister struct {
	mu    sync.Mutex
	prior map[string]int
	saved map[string]int
}

func (f *fakePersister) LoadQuotaDay(_ context.Context, day string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.prior[day]
	return n, ok, nil
}

func (f *fakePersister) SaveQuotaDay(_ context.Context, day string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]int{}
	}
	f.saved[day] = count
	return nil
}

func TestPersisterRestoreAndSave(t *testing.T) {
	t.Parallel()
	clock := fixedClock(time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC))
	p := &fakePersister{prior: map[string]int{"2026-03-04": 7}}

	g := New(10, logx.Nop(), WithClock(clock), WithLocation(time.UTC), WithPersister(p))
	if got := g.Remaining(); got != 3 {
		t.Fatalf("Remaining() after restore = %d, want 3", got)
	}

	if got := g.TryConsume(2); got != 2 {
		t.Fatalf("TryConsume(2) = %d, want 2", got)
	}
	p.mu.Lock()
	saved := p.saved["2026-03-04"]
	p.mu.Unlock()
	if saved != 9 {
		t.Fatalf("persisted count = %d, want 9", saved)
	}
}
