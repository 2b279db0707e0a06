package session

import (
	"context"
	"sync"
	"testing"
	"time"

	logx "mailblast/pkg/logx"
)

func newTestStore() *Store {
	return NewStore(Config{RetentionMax: 5, RetentionTTL: time.Hour}, logx.Nop())
}

func finish(t *testing.T, st *Store, id string, status Status) {
	t.Helper()
	err := st.Mutate(id, func(s *Session) {
		s.Status = status
		now := time.Now()
		s.EndTime = &now
	})
	if err != nil {
		t.Fatalf("Mutate(%s): %v", id, err)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	t.Parallel()
	st := newTestStore()
	s := st.Create(CreateParams{AccountID: "acct", TotalRecipients: 3})

	if err := st.Mutate(s.ID, func(s *Session) {
		s.FailedCount = 1
		s.Errors = append(s.Errors, SendError{Recipient: "x@example.com", Error: "boom"})
	}); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	snap1, ok := st.Snapshot(s.ID)
	if !ok {
		t.Fatal("Snapshot: not found")
	}
	snap1.Errors[0].Recipient = "mutated"

	snap2, _ := st.Snapshot(s.ID)
	if snap2.Errors[0].Recipient != "x@example.com" {
		t.Fatalf("snapshot aliases store state: %q", snap2.Errors[0].Recipient)
	}
}

func TestTerminalSessionsAreImmutable(t *testing.T) {
	t.Parallel()
	st := newTestStore()
	s := st.Create(CreateParams{AccountID: "acct", TotalRecipients: 1})
	finish(t, st, s.ID, StatusCompleted)

	if err := st.Mutate(s.ID, func(s *Session) { s.SentCount = 99 }); err != nil {
		t.Fatalf("Mutate on terminal: %v", err)
	}
	snap, _ := st.Snapshot(s.ID)
	if snap.SentCount != 0 {
		t.Fatalf("terminal session mutated: SentCount = %d", snap.SentCount)
	}

	// Cancel after terminal is a no-op, not an error.
	if err := st.RequestCancel(s.ID); err != nil {
		t.Fatalf("RequestCancel on terminal: %v", err)
	}
	snap, _ = st.Snapshot(s.ID)
	if snap.Cancelled {
		t.Fatal("terminal session picked up cancel flag")
	}
}

func TestRequestCancelConcurrentWithWriter(t *testing.T) {
	t.Parallel()
	st := newTestStore()
	s := st.Create(CreateParams{AccountID: "acct", TotalRecipients: 1000})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = st.Mutate(s.ID, func(s *Session) { s.CurrentIndex++ })
		}
	}()
	go func() {
		defer wg.Done()
		_ = st.RequestCancel(s.ID)
	}()
	wg.Wait()

	snap, _ := st.Snapshot(s.ID)
	if !snap.Cancelled {
		t.Fatal("cancel flag lost")
	}
	if snap.CurrentIndex != 500 {
		t.Fatalf("CurrentIndex = %d, want 500", snap.CurrentIndex)
	}
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	st := newTestStore()
	if err := st.RequestCancel("nope"); err != ErrNotFound {
		t.Fatalf("RequestCancel = %v, want ErrNotFound", err)
	}
	if err := st.Mutate("nope", func(*Session) {}); err != ErrNotFound {
		t.Fatalf("Mutate = %v, want ErrNotFound", err)
	}
	if _, ok := st.Snapshot("nope"); ok {
		t.Fatal("Snapshot found a session that does not exist")
	}
}

func TestPruneKeepsRunningSessions(t *testing.T) {
	t.Parallel()
	st := NewStore(Config{RetentionMax: 3, RetentionTTL: time.Hour}, logx.Nop())

	running := st.Create(CreateParams{AccountID: "acct", TotalRecipients: 1})
	for i := 0; i < 5; i++ {
		s := st.Create(CreateParams{AccountID: "acct", TotalRecipients: 1})
		finish(t, st, s.ID, StatusCompleted)
	}

	// Creating one more triggers the capacity prune.
	st.Create(CreateParams{AccountID: "acct", TotalRecipients: 1})

	if _, ok := st.Snapshot(running.ID); !ok {
		t.Fatal("running session was evicted by prune")
	}
	if st.Len() > 5 {
		t.Fatalf("store holds %d sessions after prune, cap 3 (+running +new)", st.Len())
	}
}

type recordingArchiver struct {
	mu  sync.Mutex
	got []string
}

func (a *recordingArchiver) ArchiveSession(_ context.Context, s Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, s.ID)
	return nil
}

func TestJanitorSweepArchivesExpired(t *testing.T) {
	t.Parallel()
	st := NewStore(Config{RetentionMax: 100, RetentionTTL: time.Millisecond}, logx.Nop())

	done := st.Create(CreateParams{AccountID: "acct", TotalRecipients: 1})
	finish(t, st, done.ID, StatusCancelled)
	running := st.Create(CreateParams{AccountID: "acct", TotalRecipients: 1})

	time.Sleep(5 * time.Millisecond)

	ar := &recordingArchiver{}
	j := NewJanitor(st, ar, "@hourly", logx.Nop())
	j.Sweep(context.Background())

	ar.mu.Lock()
	archived := append([]string(nil), ar.got...)
	ar.mu.Unlock()
	if len(archived) != 1 || archived[0] != done.ID {
		t.Fatalf("archived = %v, want [%s]", archived, done.ID)
	}
	if _, ok := st.Snapshot(done.ID); ok {
		t.Fatal("expired terminal session still in store")
	}
	if _, ok := st.Snapshot(running.ID); !ok {
		t.Fatal("running session swept")
	}
}
