package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/robsonferreira/tasksync/internal/task"
)

const taskColumns = `id, title, status, priority, remote_page_id, created_at, updated_at`

// InsertTask stores a new task. Returns ErrDuplicate if the id or the
// Notion page id is already present.
func (db *DB) InsertTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.conn.ExecContext(ctx, query,
		t.ID,
		t.Title,
		string(t.Status),
		string(t.Priority),
		nullString(t.RemotePageID),
		formatTime(t.CreatedAt),
		formatTime(t.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert task %s: %w", t.Key(), ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert task %s: %w", t.Key(), err)
	}
	return nil
}

// UpdateTask overwrites title, status, priority and updated_at.
// The Notion page id is never rewritten. Returns ErrNotFound if the id is
// unknown.
func (db *DB) UpdateTask(ctx context.Context, t *task.Task) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	query := `
	UPDATE tasks
	SET title = ?, status = ?, priority = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := db.conn.ExecContext(ctx, query,
		t.Title,
		string(t.Status),
		string(t.Priority),
		formatTime(t.UpdatedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", t.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to update task %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// DeleteTask removes a task. Returns nil if the task doesn't exist
// (idempotent).
func (db *DB) DeleteTask(ctx context.Context, id string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	return nil
}

// GetTask retrieves a task by local id. Returns ErrNotFound if absent.
func (db *DB) GetTask(ctx context.Context, id string) (*task.Task, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}
	return t, nil
}

// GetTaskByRemoteID retrieves a task by its Notion page id.
// Returns ErrNotFound if absent.
func (db *DB) GetTaskByRemoteID(ctx context.Context, remotePageID string) (*task.Task, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE remote_page_id = ?`, remotePageID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %s: %w", remotePageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task for page %s: %w", remotePageID, err)
	}
	return t, nil
}

// ListFilter configures ListTasks.
type ListFilter struct {
	// Status filters by status (empty = all)
	Status task.Status
	// Priority filters by priority (empty = all)
	Priority task.Priority
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results
	Offset int
}

// ListTasks retrieves tasks matching the filter, oldest first.
func (db *DB) ListTasks(ctx context.Context, filter ListFilter) ([]*task.Task, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conditions = append(conditions, "priority = ?")
		args = append(args, string(filter.Priority))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return tasks, nil
}

// CountTasks returns the total number of tasks.
func (db *DB) CountTasks(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                    task.Task
		status, priority     string
		remotePageID         sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(&t.ID, &t.Title, &status, &priority, &remotePageID, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	t.Status = task.Status(status)
	t.Priority = task.Priority(priority)
	t.RemotePageID = remotePageID.String
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}
