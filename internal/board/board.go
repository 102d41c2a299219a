// Package board keeps a page's task list and its three stage containers in lockstep.
package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"taskboard/internal/domain"
	"taskboard/internal/logging"
)

// Board is the task list manager for a single page. It is driven by one
// event loop at a time and does no locking of its own.
type Board struct {
	tasks      []*domain.Task
	index      map[string]*domain.Task
	containers map[domain.Region][]string
	formOpen   bool
	entry      string

	now    func() time.Time
	newID  func() string
	logger *log.Logger
}

type Option func(*Board)

// WithClock overrides the clock used for task timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Board) {
		if now != nil {
			b.now = now
		}
	}
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(gen func() string) Option {
	return func(b *Board) {
		if gen != nil {
			b.newID = gen
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New returns an empty board with the entry form closed.
func New(opts ...Option) *Board {
	b := &Board{
		index: make(map[string]*domain.Task),
		containers: map[domain.Region][]string{
			domain.RegionNewList:      nil,
			domain.RegionCurrentList:  nil,
			domain.RegionArchivedList: nil,
		},
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// FormOpen reports whether the entry form is visible.
func (b *Board) FormOpen() bool { return b.formOpen }

// Entry returns the current text of the entry field.
func (b *Board) Entry() string { return b.entry }

// Len returns the number of tasks in the collection.
func (b *Board) Len() int { return len(b.tasks) }

// Task returns a copy of the task with the given id.
func (b *Board) Task(id string) (domain.Task, bool) {
	t, ok := b.index[id]
	if !ok {
		return domain.Task{}, false
	}
	return *t, true
}

// Tasks returns copies of all tasks in insertion order.
func (b *Board) Tasks() []domain.Task {
	out := make([]domain.Task, len(b.tasks))
	for i, t := range b.tasks {
		out[i] = *t
	}
	return out
}

// Snapshot copies the board state for rendering.
func (b *Board) Snapshot() domain.Snapshot {
	containers := make(map[domain.Region][]string, len(b.containers))
	for region, ids := range b.containers {
		containers[region] = append([]string{}, ids...)
	}
	return domain.Snapshot{
		FormOpen:   b.formOpen,
		Entry:      b.entry,
		Tasks:      b.Tasks(),
		Containers: containers,
	}
}

// ToggleEntryForm flips the entry form between open and closed.
func (b *Board) ToggleEntryForm() domain.Change {
	b.formOpen = !b.formOpen
	return domain.Change{Type: domain.ChangeFormToggled, Region: domain.RegionEntryForm, FormOpen: b.formOpen}
}

// SetEntry replaces the text in the entry field.
func (b *Board) SetEntry(text string) domain.Change {
	b.entry = text
	return domain.Change{Type: domain.ChangeEntryChanged, Region: domain.RegionEntryField, FormOpen: b.formOpen}
}

// Save submits the entry field, as the save trigger does.
func (b *Board) Save() domain.Change {
	return b.AddTask(b.entry)
}

// AddTask appends a New task for the trimmed text and renders it in the new
// list. The entry form is toggled whether or not a task was created; empty
// text leaves the entry field untouched.
func (b *Board) AddTask(text string) domain.Change {
	description := strings.TrimSpace(text)
	if description == "" {
		b.formOpen = !b.formOpen
		b.logger.Debug("ignored empty task", "form_open", b.formOpen)
		return domain.Change{
			Type:     domain.ChangeInputIgnored,
			Region:   domain.RegionEntryField,
			FormOpen: b.formOpen,
			Reason:   "empty description",
		}
	}
	now := b.now().UTC()
	t := &domain.Task{
		ID:          b.newID(),
		Description: description,
		Stage:       domain.StageNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.tasks = append(b.tasks, t)
	b.index[t.ID] = t
	b.containers[domain.RegionNewList] = append(b.containers[domain.RegionNewList], t.ID)
	b.entry = ""
	b.formOpen = !b.formOpen
	b.logger.Debug("added task", "task_id", t.ID)
	return domain.Change{
		Type:        domain.ChangeTaskAdded,
		TaskID:      t.ID,
		Description: t.Description,
		To:          t.Stage,
		Region:      domain.RegionNewList,
		FormOpen:    b.formOpen,
	}
}

// AdvanceStage moves a New or InProgress task to the next container and
// updates its stage with it.
func (b *Board) AdvanceStage(id string) domain.Change {
	t, ok := b.index[id]
	if !ok {
		return b.ignoreClick("", id, "unknown task")
	}
	next, ok := t.Stage.Next()
	if !ok {
		return b.ignoreClick(domain.StageContainer(t.Stage), id, "archived tasks are deleted, not advanced")
	}
	if err := ensureStageTransition(t.Stage, next); err != nil {
		return b.ignoreClick(domain.StageContainer(t.Stage), id, err.Error())
	}
	from := t.Stage
	fromRegion := domain.StageContainer(from)
	toRegion := domain.StageContainer(next)
	b.containers[fromRegion] = removeID(b.containers[fromRegion], id)
	b.containers[toRegion] = append(b.containers[toRegion], id)
	t.Stage = next
	t.UpdatedAt = b.now().UTC()
	b.logger.Debug("advanced task", "task_id", id, "from", from, "to", next)
	return domain.Change{
		Type:        domain.ChangeTaskAdvanced,
		TaskID:      id,
		Description: t.Description,
		From:        from,
		To:          next,
		Region:      toRegion,
		FormOpen:    b.formOpen,
	}
}

// ArchiveClickToDelete removes an Archived task from the collection and from
// the archived list.
func (b *Board) ArchiveClickToDelete(id string) domain.Change {
	t, ok := b.index[id]
	if !ok {
		return b.ignoreClick(domain.RegionArchivedList, id, "unknown task")
	}
	if t.Stage != domain.StageArchived {
		return b.ignoreClick(domain.RegionArchivedList, id, "task is not archived")
	}
	b.containers[domain.RegionArchivedList] = removeID(b.containers[domain.RegionArchivedList], id)
	delete(b.index, id)
	for i, cur := range b.tasks {
		if cur.ID == id {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			break
		}
	}
	b.logger.Debug("deleted task", "task_id", id)
	return domain.Change{
		Type:        domain.ChangeTaskDeleted,
		TaskID:      id,
		Description: t.Description,
		From:        domain.StageArchived,
		Region:      domain.RegionArchivedList,
		FormOpen:    b.formOpen,
	}
}

// Click dispatches a click on region. For list containers taskID names the
// clicked element; an element that is not in that container is ignored.
func (b *Board) Click(region domain.Region, taskID string) domain.Change {
	switch region {
	case domain.RegionAddTrigger, domain.RegionCancel:
		return b.ToggleEntryForm()
	case domain.RegionSave:
		return b.Save()
	}
	if !region.IsContainer() {
		return b.ignoreClick(region, taskID, "region is not clickable")
	}
	if !containsID(b.containers[region], taskID) {
		return b.ignoreClick(region, taskID, "no matching task element")
	}
	if region == domain.RegionArchivedList {
		return b.ArchiveClickToDelete(taskID)
	}
	return b.AdvanceStage(taskID)
}

// ClickTask clicks a task wherever it is currently displayed.
func (b *Board) ClickTask(id string) domain.Change {
	t, ok := b.index[id]
	if !ok {
		return b.ignoreClick("", id, "unknown task")
	}
	return b.Click(domain.StageContainer(t.Stage), id)
}

// Consistent verifies that every task is rendered exactly once, in the
// container matching its stage.
func (b *Board) Consistent() error {
	seen := make(map[string]domain.Region, len(b.tasks))
	for region, ids := range b.containers {
		for _, id := range ids {
			if prev, dup := seen[id]; dup {
				return fmt.Errorf("task %s rendered in %s and %s", id, prev, region)
			}
			seen[id] = region
		}
	}
	if len(seen) != len(b.tasks) {
		return fmt.Errorf("%d tasks but %d rendered elements", len(b.tasks), len(seen))
	}
	for _, t := range b.tasks {
		region, ok := seen[t.ID]
		if !ok {
			return fmt.Errorf("task %s is not rendered", t.ID)
		}
		if want := domain.StageContainer(t.Stage); region != want {
			return fmt.Errorf("task %s has stage %s but is rendered in %s", t.ID, t.Stage, region)
		}
	}
	return nil
}

func (b *Board) ignoreClick(region domain.Region, id, reason string) domain.Change {
	b.logger.Debug("ignored click", "region", region, "task_id", id, "reason", reason)
	return domain.Change{
		Type:     domain.ChangeClickIgnored,
		TaskID:   id,
		Region:   region,
		FormOpen: b.formOpen,
		Reason:   reason,
	}
}

func ensureStageTransition(from, to domain.Stage) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("invalid stage transition %s -> %s", from, to)
	}
	next, ok := from.Next()
	if ok && next == to {
		return nil
	}
	return fmt.Errorf("invalid stage transition %s -> %s", from, to)
}

func removeID(ids []string, id string) []string {
	for i, cur := range ids {
		if cur == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func containsID(ids []string, id string) bool {
	for _, cur := range ids {
		if cur == id {
			return true
		}
	}
	return false
}
