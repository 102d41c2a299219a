// Package pages hosts one board per open page and serializes the events
// delivered to it.
package pages

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"taskboard/internal/board"
	"taskboard/internal/domain"
	"taskboard/internal/logging"
)

var (
	ErrNotFound     = errors.New("page not found")
	ErrTooManyPages = errors.New("too many open pages")
)

type Config struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	MaxOpen       int
}

type page struct {
	mu       sync.Mutex
	id       string
	board    *board.Board
	openedAt time.Time
	lastSeen time.Time
	// closed is set under mu once the page leaves the registry; later
	// calls holding a stale pointer see ErrNotFound.
	closed bool
}

// Registry owns every open page. A page's board is created on Open and
// dropped on Close or idle eviction.
type Registry struct {
	mu     sync.Mutex
	pages  map[string]*page
	cfg    Config
	logger *log.Logger

	Now       func() time.Time
	NewID     func() string
	BoardOpts []board.Option
	// OnClose runs after a page is closed or evicted.
	OnClose func(id string)
}

func New(cfg Config, logger *log.Logger) *Registry {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Registry{
		pages:  make(map[string]*page),
		cfg:    cfg,
		logger: logger,
		Now:    time.Now,
		NewID:  func() string { return uuid.NewString() },
	}
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Open creates a page with an empty board.
func (r *Registry) Open() (domain.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg.MaxOpen > 0 && len(r.pages) >= r.cfg.MaxOpen {
		return domain.Page{}, ErrTooManyPages
	}
	now := r.now().UTC()
	p := &page{
		id:       r.NewID(),
		openedAt: now,
		lastSeen: now,
	}
	opts := append([]board.Option{board.WithLogger(r.logger.With("page_id", p.id))}, r.BoardOpts...)
	p.board = board.New(opts...)
	r.pages[p.id] = p
	r.logger.Info("opened page", "page_id", p.id, "open_pages", len(r.pages))
	return describe(p), nil
}

// Do runs fn against the page's board while holding the page lock, so events
// for one page are handled one at a time.
func (r *Registry) Do(id string, fn func(b *board.Board) error) (domain.Page, error) {
	p, err := r.lookup(id)
	if err != nil {
		return domain.Page{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.Page{}, ErrNotFound
	}
	if err := fn(p.board); err != nil {
		return domain.Page{}, err
	}
	p.lastSeen = r.now().UTC()
	return describe(p), nil
}

func (r *Registry) Get(id string) (domain.Page, error) {
	p, err := r.lookup(id)
	if err != nil {
		return domain.Page{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return domain.Page{}, ErrNotFound
	}
	return describe(p), nil
}

// List returns open pages, oldest first.
func (r *Registry) List() []domain.Page {
	r.mu.Lock()
	all := make([]*page, 0, len(r.pages))
	for _, p := range r.pages {
		all = append(all, p)
	}
	r.mu.Unlock()
	out := make([]domain.Page, 0, len(all))
	for _, p := range all {
		p.mu.Lock()
		out = append(out, describe(p))
		p.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].OpenedAt.Before(out[j].OpenedAt)
	})
	return out
}

// Close discards the page and its board. It waits for an operation already
// running on the page, so OnClose sees the page's final state.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	p, ok := r.pages[id]
	if ok {
		delete(r.pages, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	r.logger.Info("closed page", "page_id", id)
	r.closed(id)
	return nil
}

// Sweep evicts pages idle for longer than the configured TTL and returns
// their ids.
func (r *Registry) Sweep(now time.Time) []string {
	if r.cfg.IdleTTL <= 0 {
		return nil
	}
	cutoff := now.Add(-r.cfg.IdleTTL)
	var evicted []string
	r.mu.Lock()
	for id, p := range r.pages {
		p.mu.Lock()
		idle := p.lastSeen.Before(cutoff)
		if idle {
			p.closed = true
		}
		p.mu.Unlock()
		if idle {
			delete(r.pages, id)
			evicted = append(evicted, id)
		}
	}
	r.mu.Unlock()
	sort.Strings(evicted)
	for _, id := range evicted {
		r.logger.Info("evicted idle page", "page_id", id)
		r.closed(id)
	}
	return evicted
}

// Run sweeps idle pages until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pages)
}

func (r *Registry) lookup(id string) (*page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *Registry) closed(id string) {
	if r.OnClose != nil {
		r.OnClose(id)
	}
}

func describe(p *page) domain.Page {
	return domain.Page{
		ID:       p.id,
		OpenedAt: p.openedAt,
		LastSeen: p.lastSeen,
		Tasks:    p.board.Len(),
	}
}
