package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"taskboard/internal/domain"
)

// Repo reads the activity journal.
type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// EventFilter narrows journal queries. Zero values match everything.
type EventFilter struct {
	PageID string
	Type   string
	TaskID string
	Limit  int
	// Before returns only events with ids lower than this cursor.
	Before int64
}

// NormalizeLimit clamps a requested page size.
func NormalizeLimit(in int) int {
	if in <= 0 {
		return DefaultLimit
	}
	if in > MaxLimit {
		return MaxLimit
	}
	return in
}

// LatestEvents returns matching events, newest first. Limit is taken as given;
// callers clamp it with NormalizeLimit.
func (r Repo) LatestEvents(ctx context.Context, f EventFilter) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.PageID != "" {
		clauses = append(clauses, "page_id=?")
		args = append(args, f.PageID)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.TaskID != "" {
		clauses = append(clauses, "task_id=?")
		args = append(args, f.TaskID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	query := fmt.Sprintf(`SELECT id,ts,type,page_id,COALESCE(task_id,''),COALESCE(stage,''),payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`,
		strings.Join(clauses, " AND "))
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsAfter returns events with ids greater than the cursor in ascending order.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,page_id,COALESCE(task_id,''),COALESCE(stage,''),payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`,
		cursor, NormalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// LatestEventID returns the newest event id, or 0 for an empty journal.
func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

// GetEvent loads a single event.
func (r Repo) GetEvent(ctx context.Context, id int64) (domain.Event, error) {
	var e domain.Event
	err := r.DB.QueryRowContext(ctx, `SELECT id,ts,type,page_id,COALESCE(task_id,''),COALESCE(stage,''),payload_json FROM events WHERE id=?`, id).
		Scan(&e.ID, &e.TS, &e.Type, &e.PageID, &e.TaskID, &e.Stage, &e.Payload)
	if errors.Is(err, sql.ErrNoRows) {
		return e, ErrNotFound
	}
	return e, err
}

// CountByType summarizes a page's journal.
func (r Repo) CountByType(ctx context.Context, pageID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT type, COUNT(*) FROM events WHERE page_id=? GROUP BY type`, pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.PageID, &e.TaskID, &e.Stage, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
