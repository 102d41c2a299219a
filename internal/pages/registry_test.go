package pages

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/domain"
)

func newTestRegistry(t *testing.T, cfg Config) (*Registry, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r := New(cfg, nil)
	r.Now = func() time.Time { return now }
	n := 0
	r.NewID = func() string {
		n++
		return fmt.Sprintf("page-%d", n)
	}
	return r, &now
}

func snapshot(t *testing.T, r *Registry, id string) domain.Snapshot {
	t.Helper()
	var snap domain.Snapshot
	if _, err := r.Do(id, func(b *board.Board) error {
		snap = b.Snapshot()
		return nil
	}); err != nil {
		t.Fatalf("snapshot %s: %v", id, err)
	}
	return snap
}

func TestOpenDoClose(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	p, err := r.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if p.ID != "page-1" || p.Tasks != 0 {
		t.Fatalf("unexpected page %+v", p)
	}
	p, err = r.Do(p.ID, func(b *board.Board) error {
		b.AddTask("Buy milk")
		return nil
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if p.Tasks != 1 {
		t.Fatalf("expected 1 task, got %d", p.Tasks)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 open page, got %d", r.Len())
	}
	snap := snapshot(t, r, p.ID)
	if got := snap.Container(domain.RegionNewList); len(got) != 1 || got[0].Description != "Buy milk" {
		t.Fatalf("unexpected new list %+v", got)
	}

	var closed []string
	r.OnClose = func(id string) { closed = append(closed, id) }
	if err := r.Close(p.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(closed) != 1 || closed[0] != p.ID {
		t.Fatalf("expected close hook, got %v", closed)
	}
	if _, err := r.Get(p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found after close, got %v", err)
	}
	if err := r.Close(p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found on double close, got %v", err)
	}
}

func TestPagesHaveIndependentBoards(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	a, _ := r.Open()
	b, _ := r.Open()
	_, _ = r.Do(a.ID, func(bd *board.Board) error {
		bd.AddTask("only on a")
		return nil
	})
	snap := snapshot(t, r, b.ID)
	if len(snap.Tasks) != 0 {
		t.Fatalf("page b sees tasks from page a: %+v", snap.Tasks)
	}
	list := r.List()
	if len(list) != 2 || list[0].ID != "page-1" || list[1].ID != "page-2" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestDoPropagatesError(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	p, _ := r.Open()
	boom := errors.New("boom")
	if _, err := r.Do(p.ID, func(*board.Board) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := r.Do("missing", func(*board.Board) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMaxOpen(t *testing.T) {
	r, _ := newTestRegistry(t, Config{MaxOpen: 1})
	if _, err := r.Open(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Open(); !errors.Is(err, ErrTooManyPages) {
		t.Fatalf("expected too many pages, got %v", err)
	}
}

func TestSweepEvictsIdlePages(t *testing.T) {
	r, now := newTestRegistry(t, Config{IdleTTL: 10 * time.Minute})
	stale, _ := r.Open()
	*now = now.Add(5 * time.Minute)
	fresh, _ := r.Open()
	*now = now.Add(6 * time.Minute)

	evicted := r.Sweep(*now)
	if len(evicted) != 1 || evicted[0] != stale.ID {
		t.Fatalf("expected %s evicted, got %v", stale.ID, evicted)
	}
	if _, err := r.Get(fresh.ID); err != nil {
		t.Fatalf("fresh page evicted: %v", err)
	}

	*now = now.Add(2 * time.Minute)
	if _, err := r.Do(fresh.ID, func(*board.Board) error { return nil }); err != nil {
		t.Fatal(err)
	}
	*now = now.Add(9 * time.Minute)
	if evicted := r.Sweep(*now); len(evicted) != 0 {
		t.Fatalf("touched page should survive, evicted %v", evicted)
	}
}

func TestConcurrentEventsAreSerialized(t *testing.T) {
	r := New(Config{}, nil)
	p, _ := r.Open()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = r.Do(p.ID, func(b *board.Board) error {
				b.AddTask(fmt.Sprintf("task %d", i))
				return nil
			})
		}(i)
	}
	wg.Wait()
	var consistent error
	got, err := r.Do(p.ID, func(b *board.Board) error {
		consistent = b.Consistent()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if consistent != nil {
		t.Fatalf("inconsistent board: %v", consistent)
	}
	if got.Tasks != 50 {
		t.Fatalf("expected 50 tasks, got %d", got.Tasks)
	}
}

func TestCloseWaitsForRunningEvent(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	p, _ := r.Open()
	started := make(chan struct{})
	release := make(chan struct{})
	finished := false
	go func() {
		_, _ = r.Do(p.ID, func(b *board.Board) error {
			close(started)
			<-release
			b.AddTask("late")
			finished = true
			return nil
		})
	}()
	<-started

	hookRuns := 0
	r.OnClose = func(id string) {
		if !finished {
			t.Errorf("close hook ran while an event was in flight")
		}
		hookRuns++
	}
	closeErr := make(chan error, 1)
	go func() { closeErr <- r.Close(p.ID) }()
	time.Sleep(20 * time.Millisecond)
	close(release)
	if err := <-closeErr; err != nil {
		t.Fatalf("close: %v", err)
	}
	if hookRuns != 1 {
		t.Fatalf("close hook should run once, ran %d times", hookRuns)
	}
}

func TestStalePageRejectsEvents(t *testing.T) {
	r, _ := newTestRegistry(t, Config{})
	p, _ := r.Open()
	stale, err := r.lookup(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(p.ID); err != nil {
		t.Fatal(err)
	}
	stale.mu.Lock()
	closed := stale.closed
	stale.mu.Unlock()
	if !closed {
		t.Fatalf("closed page should be marked closed")
	}
	if _, err := r.Do(p.ID, func(*board.Board) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
