package server

import (
	"encoding/json"
	"time"

	"taskboard/internal/domain"
	"taskboard/internal/engine"
)

// Request payloads

type EntryRequest struct {
	Text string `json:"text" maxLength:"1024"`
}

type AddTaskRequest struct {
	Text string `json:"text" maxLength:"1024"`
}

type ClickRequest struct {
	TaskID string `json:"task_id,omitempty"`
}

// Response payloads

type PageResponse struct {
	ID             string        `json:"id"`
	OpenedAt       time.Time     `json:"opened_at" format:"date-time"`
	LastSeen       time.Time     `json:"last_seen" format:"date-time"`
	FormOpen       bool          `json:"form_open"`
	Entry          string        `json:"entry"`
	New            []domain.Task `json:"new"`
	InProgress     []domain.Task `json:"in_progress"`
	Archived       []domain.Task `json:"archived"`
	Token          string        `json:"token,omitempty"`
	TokenExpiresAt *time.Time    `json:"token_expires_at,omitempty" format:"date-time"`
}

type PageSummary struct {
	ID       string    `json:"id"`
	OpenedAt time.Time `json:"opened_at" format:"date-time"`
	LastSeen time.Time `json:"last_seen" format:"date-time"`
	Tasks    int       `json:"tasks"`
}

type ChangeResponse struct {
	Change domain.Change `json:"change"`
	Page   PageResponse  `json:"page"`
}

type EventResponse struct {
	ID      int64          `json:"id"`
	TS      string         `json:"ts" format:"date-time"`
	Type    string         `json:"type"`
	PageID  string         `json:"page_id"`
	TaskID  string         `json:"task_id,omitempty"`
	Stage   string         `json:"stage,omitempty"`
	Payload map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func pageResponse(res engine.Result) PageResponse {
	return PageResponse{
		ID:         res.Page.ID,
		OpenedAt:   res.Page.OpenedAt,
		LastSeen:   res.Page.LastSeen,
		FormOpen:   res.Snapshot.FormOpen,
		Entry:      res.Snapshot.Entry,
		New:        tasksOrEmpty(res.Snapshot.Container(domain.RegionNewList)),
		InProgress: tasksOrEmpty(res.Snapshot.Container(domain.RegionCurrentList)),
		Archived:   tasksOrEmpty(res.Snapshot.Container(domain.RegionArchivedList)),
	}
}

func changeResponse(res engine.Result) ChangeResponse {
	return ChangeResponse{Change: res.Change, Page: pageResponse(res)}
}

func pageSummaries(items []domain.Page) []PageSummary {
	out := make([]PageSummary, 0, len(items))
	for _, p := range items {
		out = append(out, PageSummary(p))
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:      e.ID,
		TS:      e.TS,
		Type:    e.Type,
		PageID:  e.PageID,
		TaskID:  e.TaskID,
		Stage:   e.Stage,
		Payload: decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func tasksOrEmpty(tasks []domain.Task) []domain.Task {
	if tasks == nil {
		return []domain.Task{}
	}
	return tasks
}
