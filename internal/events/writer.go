package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taskboard/internal/domain"
)

// Writer appends board changes to the activity journal.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

func (w Writer) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Append writes one event row.
func (w Writer) Append(ctx context.Context, evtType, pageID, taskID, stage string, payload EventPayload) (int64, error) {
	if pageID == "" {
		return 0, fmt.Errorf("event %s: page id required", evtType)
	}
	ts := w.now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal event payload: %w", err)
	}
	res, err := w.DB.ExecContext(ctx, `INSERT INTO events(ts,type,page_id,task_id,stage,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, pageID, nullable(taskID), nullable(stage), string(data))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Record journals a board change for a page.
func (w Writer) Record(ctx context.Context, pageID string, c domain.Change) (int64, error) {
	payload := EventPayload{"form_open": c.FormOpen}
	if c.Description != "" {
		payload["description"] = c.Description
	}
	if c.From != "" {
		payload["from"] = c.From
	}
	if c.Region != "" {
		payload["region"] = c.Region
	}
	if c.Reason != "" {
		payload["reason"] = c.Reason
	}
	stage := c.To
	if stage == "" {
		stage = c.From
	}
	return w.Append(ctx, c.Type, pageID, c.TaskID, string(stage), payload)
}

// Lifecycle journals page open/close markers.
func (w Writer) Lifecycle(ctx context.Context, evtType, pageID string) error {
	_, err := w.Append(ctx, evtType, pageID, "", "", nil)
	return err
}

// Purge drops every event recorded for a page.
func (w Writer) Purge(ctx context.Context, pageID string) (int64, error) {
	res, err := w.DB.ExecContext(ctx, `DELETE FROM events WHERE page_id=?`, pageID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
