package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/db"
	"taskboard/internal/domain"
	"taskboard/internal/engine"
	"taskboard/internal/migrate"
	"taskboard/internal/pages"
	"taskboard/internal/repo"
)

type testEnv struct {
	Engine *engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{DSN: db.FilePath(t.TempDir())})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default(), nil)
	eng.SetClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })
	return testEnv{Engine: eng, Ctx: ctx}
}

func TestBuyMilkWalkthrough(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.OpenPage(env.Ctx)
	if err != nil {
		t.Fatalf("open page: %v", err)
	}
	res, err := env.Engine.Click(env.Ctx, p.ID, "add-todo", "")
	if err != nil || !res.Snapshot.FormOpen {
		t.Fatalf("open form: %v %+v", err, res.Snapshot)
	}
	if _, err := env.Engine.SetEntry(env.Ctx, p.ID, "  Buy milk  "); err != nil {
		t.Fatal(err)
	}
	res, err = env.Engine.Click(env.Ctx, p.ID, "saveNewItem", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Change.Type != domain.ChangeTaskAdded || res.Snapshot.FormOpen || res.Snapshot.Entry != "" {
		t.Fatalf("unexpected save result %+v", res)
	}
	if res.Page.Tasks != 1 {
		t.Fatalf("expected 1 task, got %d", res.Page.Tasks)
	}
	id := res.Change.TaskID
	if got := res.Snapshot.Container(domain.RegionNewList); len(got) != 1 || got[0].Description != "Buy milk" {
		t.Fatalf("new list: %+v", got)
	}

	res, err = env.Engine.Click(env.Ctx, p.ID, "newList", id)
	if err != nil || res.Change.To != domain.StageInProgress {
		t.Fatalf("advance to in progress: %v %+v", err, res.Change)
	}
	res, err = env.Engine.ClickTask(env.Ctx, p.ID, id)
	if err != nil || res.Change.To != domain.StageArchived {
		t.Fatalf("advance to archived: %v %+v", err, res.Change)
	}
	res, err = env.Engine.Click(env.Ctx, p.ID, "archivedList", id)
	if err != nil || res.Change.Type != domain.ChangeTaskDeleted || res.Page.Tasks != 0 {
		t.Fatalf("delete: %v %+v", err, res)
	}

	evts, err := env.Engine.PageEvents(env.Ctx, repo.EventFilter{PageID: p.ID})
	if err != nil {
		t.Fatal(err)
	}
	// page.opened, toggle, entry, add, advance x2, delete
	if len(evts) != 7 {
		t.Fatalf("expected 7 journal entries, got %d: %+v", len(evts), evts)
	}
	if evts[0].Type != domain.ChangeTaskDeleted || evts[len(evts)-1].Type != engine.EventPageOpened {
		t.Fatalf("unexpected journal order %+v", evts)
	}
}

func TestEmptySaveClosesForm(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.OpenPage(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ToggleEntryForm(env.Ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetEntry(env.Ctx, p.ID, "   "); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.Save(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Change.Type != domain.ChangeInputIgnored || res.Snapshot.FormOpen || len(res.Snapshot.Tasks) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUnknownRegionAndPage(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.OpenPage(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Click(env.Ctx, p.ID, "sidebar", ""); !errors.Is(err, engine.ErrUnknownRegion) {
		t.Fatalf("expected unknown region, got %v", err)
	}
	if _, err := env.Engine.AddTask(env.Ctx, "missing", "x"); !errors.Is(err, pages.ErrNotFound) {
		t.Fatalf("expected page not found, got %v", err)
	}
	res, err := env.Engine.Click(env.Ctx, p.ID, "currentList", "nope")
	if err != nil || res.Change.Type != domain.ChangeClickIgnored {
		t.Fatalf("expected absorbed click, got %v %+v", err, res.Change)
	}
}

func TestClosePurgesJournal(t *testing.T) {
	env := newTestEnv(t)
	p, err := env.Engine.OpenPage(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddTask(env.Ctx, p.ID, "Buy milk"); err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.ClosePage(env.Ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.View(p.ID); !errors.Is(err, pages.ErrNotFound) {
		t.Fatalf("expected closed page gone, got %v", err)
	}
	counts, err := env.Engine.Repo.CountByType(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 1 || counts[engine.EventPageClosed] != 1 {
		t.Fatalf("expected only the close marker, got %v", counts)
	}
	if err := env.Engine.ClosePage(env.Ctx, p.ID); !errors.Is(err, pages.ErrNotFound) {
		t.Fatalf("expected double close to fail, got %v", err)
	}
}

func TestPagesAreIsolated(t *testing.T) {
	env := newTestEnv(t)
	a, _ := env.Engine.OpenPage(env.Ctx)
	b, _ := env.Engine.OpenPage(env.Ctx)
	if _, err := env.Engine.AddTask(env.Ctx, a.ID, "only on a"); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.View(b.ID)
	if err != nil || len(res.Snapshot.Tasks) != 0 {
		t.Fatalf("page b should be empty: %v %+v", err, res.Snapshot)
	}
	if got := env.Engine.ListPages(); len(got) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(got))
	}
}

func TestCloseDuringEventKeepsOnlyMarker(t *testing.T) {
	env := newTestEnv(t)
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	env.Engine.Pages.BoardOpts = append(env.Engine.Pages.BoardOpts, board.WithClock(func() time.Time {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	}))
	p, err := env.Engine.OpenPage(env.Ctx)
	if err != nil {
		t.Fatal(err)
	}

	added := make(chan error, 1)
	go func() {
		_, err := env.Engine.AddTask(env.Ctx, p.ID, "Buy milk")
		added <- err
	}()
	<-entered
	closed := make(chan error, 1)
	go func() { closed <- env.Engine.ClosePage(env.Ctx, p.ID) }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-added; err != nil {
		t.Fatalf("in-flight add should finish: %v", err)
	}
	if err := <-closed; err != nil {
		t.Fatalf("close: %v", err)
	}
	counts, err := env.Engine.Repo.CountByType(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 1 || counts[engine.EventPageClosed] != 1 {
		t.Fatalf("expected only the close marker, got %v", counts)
	}
}

func TestSubmitFormIsOneEvent(t *testing.T) {
	env := newTestEnv(t)
	p, _ := env.Engine.OpenPage(env.Ctx)
	if _, err := env.Engine.Click(env.Ctx, p.ID, "add-todo", ""); err != nil {
		t.Fatal(err)
	}
	res, err := env.Engine.SubmitForm(env.Ctx, p.ID, "saveNewItem", "Buy milk")
	if err != nil || res.Change.Type != domain.ChangeTaskAdded || res.Snapshot.FormOpen {
		t.Fatalf("submit save: %v %+v", err, res)
	}
	if _, err := env.Engine.SubmitForm(env.Ctx, p.ID, "newList", "x"); !errors.Is(err, engine.ErrUnknownRegion) {
		t.Fatalf("containers are not form triggers, got %v", err)
	}
	counts, err := env.Engine.Repo.CountByType(env.Ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if counts[domain.ChangeEntryChanged] != 0 || counts[domain.ChangeTaskAdded] != 1 {
		t.Fatalf("expected a single task.added and no entry.changed, got %v", counts)
	}
}
