package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Divergence is a journal entry for a partial failure that left the stores
// disagreeing about a task.
type Divergence struct {
	ID           int64      `json:"id"`
	Kind         string     `json:"kind"`
	Op           string     `json:"op"`
	TaskID       string     `json:"task_id,omitempty"`
	RemotePageID string     `json:"remote_page_id,omitempty"`
	Detail       string     `json:"detail,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// RecordDivergence appends an entry to the journal and returns its id.
func (db *DB) RecordDivergence(ctx context.Context, d *Divergence) (int64, error) {
	if d.Kind == "" || d.Op == "" {
		return 0, fmt.Errorf("divergence kind and op are required")
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}

	res, err := db.conn.ExecContext(ctx, `
	INSERT INTO divergences (kind, op, task_id, remote_page_id, detail, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	`,
		d.Kind,
		d.Op,
		nullString(d.TaskID),
		nullString(d.RemotePageID),
		nullString(d.Detail),
		formatTime(d.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record divergence: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read divergence id: %w", err)
	}
	d.ID = id
	return id, nil
}

// OpenDivergences returns unresolved journal entries, oldest first.
func (db *DB) OpenDivergences(ctx context.Context) ([]*Divergence, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, kind, op, task_id, remote_page_id, detail, created_at, resolved_at
	FROM divergences
	WHERE resolved_at IS NULL
	ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query divergences: %w", err)
	}
	defer rows.Close()

	var out []*Divergence
	for rows.Next() {
		var (
			d                            Divergence
			taskID, pageID, detail, done sql.NullString
			createdAt                    string
		)
		if err := rows.Scan(&d.ID, &d.Kind, &d.Op, &taskID, &pageID, &detail, &createdAt, &done); err != nil {
			return nil, fmt.Errorf("failed to scan divergence: %w", err)
		}
		d.TaskID = taskID.String
		d.RemotePageID = pageID.String
		d.Detail = detail.String
		d.CreatedAt = parseTime(createdAt)
		if done.Valid {
			t := parseTime(done.String)
			d.ResolvedAt = &t
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating divergences: %w", err)
	}
	return out, nil
}

// ResolveDivergence marks a journal entry as handled.
func (db *DB) ResolveDivergence(ctx context.Context, id int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE divergences SET resolved_at = ? WHERE id = ? AND resolved_at IS NULL`,
		formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to resolve divergence %d: %w", id, err)
	}
	return nil
}
