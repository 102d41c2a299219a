package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"taskboard/internal/board"
	"taskboard/internal/config"
	"taskboard/internal/domain"
	"taskboard/internal/events"
	"taskboard/internal/logging"
	"taskboard/internal/pages"
	"taskboard/internal/repo"
)

var ErrUnknownRegion = errors.New("unknown region")

// Lifecycle event types written alongside board changes.
const (
	EventPageOpened = "page.opened"
	EventPageClosed = "page.closed"
)

// Engine hosts the open pages and journals every change made to them.
type Engine struct {
	DB     *sql.DB
	Pages  *pages.Registry
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Logger *log.Logger
	Now    func() time.Time
}

// Result is the outcome of one dispatched event.
type Result struct {
	Page     domain.Page
	Change   domain.Change
	Snapshot domain.Snapshot
}

func New(conn *sql.DB, cfg *config.Config, logger *log.Logger) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.Discard()
	}
	e := &Engine{
		DB:     conn,
		Repo:   repo.Repo{DB: conn},
		Events: events.Writer{DB: conn},
		Config: cfg,
		Logger: logger,
		Now:    time.Now,
	}
	e.Pages = pages.New(pages.Config{
		IdleTTL:       cfg.Pages.IdleTTL,
		SweepInterval: cfg.Pages.SweepInterval,
		MaxOpen:       cfg.Pages.MaxOpen,
	}, logger)
	e.Pages.OnClose = e.purge
	return e
}

// SetClock pins the engine, the journal and every new board to now.
func (e *Engine) SetClock(now func() time.Time) {
	e.Now = now
	e.Events.Now = now
	e.Pages.Now = now
	e.Pages.BoardOpts = append(e.Pages.BoardOpts, board.WithClock(now))
}

// OpenPage creates a page with an empty board, form closed.
func (e *Engine) OpenPage(ctx context.Context) (domain.Page, error) {
	p, err := e.Pages.Open()
	if err != nil {
		return domain.Page{}, err
	}
	if err := e.Events.Lifecycle(ctx, EventPageOpened, p.ID); err != nil {
		e.Logger.Warn("journal write failed", "page_id", p.ID, "type", EventPageOpened, "err", err)
	}
	return p, nil
}

// ClosePage unloads a page. Its board and journal are discarded; only a
// page.closed marker remains.
func (e *Engine) ClosePage(ctx context.Context, id string) error {
	return e.Pages.Close(id)
}

func (e *Engine) Page(id string) (domain.Page, error) {
	return e.Pages.Get(id)
}

func (e *Engine) ListPages() []domain.Page {
	return e.Pages.List()
}

// View returns the page and a snapshot of its board.
func (e *Engine) View(id string) (Result, error) {
	var snap domain.Snapshot
	p, err := e.Pages.Do(id, func(b *board.Board) error {
		snap = b.Snapshot()
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Page: p, Snapshot: snap}, nil
}

func (e *Engine) ToggleEntryForm(ctx context.Context, pageID string) (Result, error) {
	return e.dispatch(ctx, pageID, (*board.Board).ToggleEntryForm)
}

func (e *Engine) SetEntry(ctx context.Context, pageID, text string) (Result, error) {
	return e.dispatch(ctx, pageID, func(b *board.Board) domain.Change {
		return b.SetEntry(text)
	})
}

func (e *Engine) Save(ctx context.Context, pageID string) (Result, error) {
	return e.dispatch(ctx, pageID, (*board.Board).Save)
}

func (e *Engine) AddTask(ctx context.Context, pageID, text string) (Result, error) {
	return e.dispatch(ctx, pageID, func(b *board.Board) domain.Change {
		return b.AddTask(text)
	})
}

// Click delivers a click on a named region. Unknown region names are an
// error; clicks the board cannot match are absorbed and journaled.
func (e *Engine) Click(ctx context.Context, pageID, region, taskID string) (Result, error) {
	r := domain.Region(region)
	if !r.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownRegion, region)
	}
	return e.dispatch(ctx, pageID, func(b *board.Board) domain.Change {
		return b.Click(r, taskID)
	})
}

// SubmitForm delivers a trigger click that carries the entry field, as the
// widget's save and cancel buttons do. The entry update and the click are
// one event, so only the click is journaled.
func (e *Engine) SubmitForm(ctx context.Context, pageID, region, entry string) (Result, error) {
	r := domain.Region(region)
	if !r.IsTrigger() {
		return Result{}, fmt.Errorf("%w: %q is not a form trigger", ErrUnknownRegion, region)
	}
	return e.dispatch(ctx, pageID, func(b *board.Board) domain.Change {
		b.SetEntry(entry)
		return b.Click(r, "")
	})
}

// ClickTask clicks a task in whichever container currently shows it.
func (e *Engine) ClickTask(ctx context.Context, pageID, taskID string) (Result, error) {
	return e.dispatch(ctx, pageID, func(b *board.Board) domain.Change {
		return b.ClickTask(taskID)
	})
}

// PageEvents returns journal entries for an open page, newest first.
func (e *Engine) PageEvents(ctx context.Context, f repo.EventFilter) ([]domain.Event, error) {
	if _, err := e.Pages.Get(f.PageID); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, f)
}

// Run sweeps idle pages until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	e.Pages.Run(ctx)
}

// dispatch applies op under the page lock and journals the change before
// the lock is released, so journal order matches board order.
func (e *Engine) dispatch(ctx context.Context, pageID string, op func(*board.Board) domain.Change) (Result, error) {
	var res Result
	p, err := e.Pages.Do(pageID, func(b *board.Board) error {
		res.Change = op(b)
		res.Snapshot = b.Snapshot()
		if _, err := e.Events.Record(ctx, pageID, res.Change); err != nil {
			e.Logger.Warn("journal write failed", "page_id", pageID, "type", res.Change.Type, "err", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	res.Page = p
	return res, nil
}

func (e *Engine) purge(id string) {
	n, err := e.Events.Purge(context.Background(), id)
	if err != nil {
		e.Logger.Warn("journal purge failed", "page_id", id, "err", err)
		return
	}
	e.Logger.Debug("purged journal", "page_id", id, "events", n)
	// The close marker outlives the purge so webhook subscribers see it.
	if err := e.Events.Lifecycle(context.Background(), EventPageClosed, id); err != nil {
		e.Logger.Warn("journal write failed", "page_id", id, "type", EventPageClosed, "err", err)
	}
}
