package domain

import "time"

// Stage is a task's position in its forward-only lifecycle.
type Stage string

const (
	StageNew        Stage = "new"
	StageInProgress Stage = "in_progress"
	StageArchived   Stage = "archived"
)

// Stages lists the stages in lifecycle order.
var Stages = []Stage{StageNew, StageInProgress, StageArchived}

func (s Stage) Valid() bool {
	switch s {
	case StageNew, StageInProgress, StageArchived:
		return true
	}
	return false
}

// Next returns the stage that follows s. The second result is false for the
// terminal stage, where the next step is deletion.
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageNew:
		return StageInProgress, true
	case StageInProgress:
		return StageArchived, true
	}
	return "", false
}

// Region is a named area of the widget surface.
type Region string

const (
	RegionEntryForm    Region = "newTaskForm"
	RegionEntryField   Region = "newItemInput"
	RegionNewList      Region = "newList"
	RegionCurrentList  Region = "currentList"
	RegionArchivedList Region = "archivedList"
	RegionAddTrigger   Region = "add-todo"
	RegionCancel       Region = "cancel"
	RegionSave         Region = "saveNewItem"
)

// Regions lists every region the widget exposes.
var Regions = []Region{
	RegionEntryForm,
	RegionEntryField,
	RegionNewList,
	RegionCurrentList,
	RegionArchivedList,
	RegionAddTrigger,
	RegionCancel,
	RegionSave,
}

func (r Region) Valid() bool {
	for _, known := range Regions {
		if r == known {
			return true
		}
	}
	return false
}

// IsContainer reports whether r holds task elements.
func (r Region) IsContainer() bool {
	_, ok := ContainerStage(r)
	return ok
}

// IsTrigger reports whether r is a clickable button.
func (r Region) IsTrigger() bool {
	return r == RegionAddTrigger || r == RegionCancel || r == RegionSave
}

// ContainerStage maps a list container to the stage it displays.
func ContainerStage(r Region) (Stage, bool) {
	switch r {
	case RegionNewList:
		return StageNew, true
	case RegionCurrentList:
		return StageInProgress, true
	case RegionArchivedList:
		return StageArchived, true
	}
	return "", false
}

// StageContainer is the inverse of ContainerStage.
func StageContainer(s Stage) Region {
	switch s {
	case StageInProgress:
		return RegionCurrentList
	case StageArchived:
		return RegionArchivedList
	}
	return RegionNewList
}

type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Stage       Stage     `json:"stage" enum:"new,in_progress,archived"`
	CreatedAt   time.Time `json:"created_at" format:"date-time"`
	UpdatedAt   time.Time `json:"updated_at" format:"date-time"`
}

// Snapshot is a point-in-time copy of a board and its containers.
type Snapshot struct {
	FormOpen   bool                `json:"form_open"`
	Entry      string              `json:"entry"`
	Tasks      []Task              `json:"tasks"`
	Containers map[Region][]string `json:"containers"`
}

// Container returns the tasks rendered in region r, in display order.
func (s Snapshot) Container(r Region) []Task {
	ids := s.Containers[r]
	if len(ids) == 0 {
		return nil
	}
	byID := make(map[string]Task, len(s.Tasks))
	for _, t := range s.Tasks {
		byID[t.ID] = t
	}
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Change types emitted by board operations.
const (
	ChangeTaskAdded    = "task.added"
	ChangeTaskAdvanced = "task.advanced"
	ChangeTaskDeleted  = "task.deleted"
	ChangeFormToggled  = "form.toggled"
	ChangeEntryChanged = "entry.changed"
	ChangeInputIgnored = "input.ignored"
	ChangeClickIgnored = "click.ignored"
)

// Change describes the effect of one board operation.
type Change struct {
	Type        string `json:"type"`
	TaskID      string `json:"task_id,omitempty"`
	Description string `json:"description,omitempty"`
	From        Stage  `json:"from,omitempty"`
	To          Stage  `json:"to,omitempty"`
	Region      Region `json:"region,omitempty"`
	FormOpen    bool   `json:"form_open"`
	Reason      string `json:"reason,omitempty"`
}

// Ignored reports whether the operation was absorbed without effect on tasks.
func (c Change) Ignored() bool {
	return c.Type == ChangeInputIgnored || c.Type == ChangeClickIgnored
}

type Page struct {
	ID       string    `json:"id"`
	OpenedAt time.Time `json:"opened_at" format:"date-time"`
	LastSeen time.Time `json:"last_seen" format:"date-time"`
	Tasks    int       `json:"tasks"`
}

type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	PageID  string `json:"page_id"`
	TaskID  string `json:"task_id,omitempty"`
	Stage   string `json:"stage,omitempty"`
	Payload string `json:"payload_json"`
}
