package sync

import (
	"context"

	"github.com/robsonferreira/tasksync/internal/db"
	"github.com/robsonferreira/tasksync/internal/mirror"
	"github.com/robsonferreira/tasksync/internal/task"
)

// LocalStore persists the canonical task records.
//
// Lookups must wrap db.ErrNotFound when no record matches. *db.DB
// satisfies this interface.
type LocalStore interface {
	InsertTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	GetTaskByRemoteID(ctx context.Context, remotePageID string) (*task.Task, error)
	UpdateTask(ctx context.Context, t *task.Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter db.ListFilter) ([]*task.Task, error)
}

// RemoteStore manages task pages in the hosted workspace. *notion.Client
// satisfies this interface.
type RemoteStore interface {
	// CreatePage creates a page and returns its id.
	CreatePage(ctx context.Context, f task.Fields) (string, error)

	// PatchPage overwrites the task properties of a page.
	PatchPage(ctx context.Context, pageID string, f task.Fields) error

	// ArchivePage soft-deletes a page. Must succeed on an archived page.
	ArchivePage(ctx context.Context, pageID string) error
}

// Mirror is the best-effort spreadsheet projection. *mirror.Mirror
// satisfies this interface.
type Mirror interface {
	Upsert(row mirror.Row) error
	RemoveByKey(key string) (bool, error)
	RebuildFrom(source func() ([]mirror.Row, error)) (int, error)
}

// Journal stores divergence events for later reconciliation. *db.DB
// satisfies this interface.
type Journal interface {
	RecordDivergence(ctx context.Context, d *db.Divergence) (int64, error)
	OpenDivergences(ctx context.Context) ([]*db.Divergence, error)
	ResolveDivergence(ctx context.Context, id int64) error
}

// Notifier receives an event after each local commit, after each
// divergence and after Reconcile resolves a journal entry.
// Implementations must not block.
type Notifier interface {
	TaskCreated(t *task.Task)
	TaskUpdated(before, after *task.Task)
	TaskDeleted(t *task.Task)
	Divergence(e *Error)
	DivergenceResolved(d *db.Divergence)
}
