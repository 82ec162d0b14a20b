package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/robsonferreira/tasksync/internal/db"
	"github.com/robsonferreira/tasksync/internal/mirror"
	"github.com/robsonferreira/tasksync/internal/task"
)

// Config wires a Coordinator to its stores.
type Config struct {
	// Local is the canonical task store (required)
	Local LocalStore

	// Remote is the Notion workspace (required)
	Remote RemoteStore

	// Mirror is the spreadsheet projection (required)
	Mirror Mirror

	// Journal records divergences (optional)
	Journal Journal

	// Notifier receives task events (optional)
	Notifier Notifier

	// Logger for sync activity (default: stderr logger)
	Logger *log.Logger
}

// Coordinator orders writes across the three stores.
type Coordinator struct {
	local    LocalStore
	remote   RemoteStore
	mirror   Mirror
	journal  Journal
	notifier Notifier
	logger   *log.Logger
}

// New creates a Coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Local == nil {
		return nil, fmt.Errorf("local store is required")
	}
	if cfg.Remote == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	if cfg.Mirror == nil {
		return nil, fmt.Errorf("mirror is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}

	return &Coordinator{
		local:    cfg.Local,
		remote:   cfg.Remote,
		mirror:   cfg.Mirror,
		journal:  cfg.Journal,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}, nil
}

// Create creates a task in Notion, then locally, then in the mirror.
//
// On ErrRemoteWriteFailed nothing was written. On ErrLocalWriteFailed the
// returned error carries the orphaned page id. A mirror failure is logged
// and the task is still returned.
func (c *Coordinator) Create(ctx context.Context, in task.CreateInput) (*task.Task, error) {
	fields, err := in.Fields()
	if err != nil {
		return nil, &Error{Kind: ErrInvalidInput, Op: OpCreate, Err: err}
	}

	pageID, err := c.remote.CreatePage(ctx, fields)
	if err != nil {
		return nil, &Error{Kind: ErrRemoteWriteFailed, Op: OpCreate, Err: err}
	}

	t := task.New(fields, pageID)
	if err := c.local.InsertTask(ctx, t); err != nil {
		e := &Error{
			Kind:         ErrLocalWriteFailed,
			Op:           OpCreate,
			TaskID:       t.ID,
			RemotePageID: pageID,
			Task:         t,
			Err:          err,
		}
		c.diverged(ctx, e)
		return nil, e
	}

	c.upsertMirror(t)
	c.logger.Printf("Created task %s (%s)", t.Key(), t.Title)

	if c.notifier != nil {
		c.notifier.TaskCreated(t.Clone())
	}
	return t, nil
}

// Update applies in to the task locally, then patches Notion, then the
// mirror.
//
// On ErrRemoteSyncFailed the local update has committed; the merged task
// is available as the error's Task and the notifier has seen it. A task
// without a remote page fails with ErrUnlinked as the cause and is not
// journaled.
func (c *Coordinator) Update(ctx context.Context, id string, in task.UpdateInput) (*task.Task, error) {
	if err := in.Validate(); err != nil {
		return nil, &Error{Kind: ErrInvalidInput, Op: OpUpdate, TaskID: id, Err: err}
	}

	existing, err := c.load(ctx, OpUpdate, id)
	if err != nil {
		return nil, err
	}

	merged, err := in.Apply(existing)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidInput, Op: OpUpdate, TaskID: id, Err: err}
	}

	if err := c.local.UpdateTask(ctx, merged); err != nil {
		kind := ErrLocalWriteFailed
		if errors.Is(err, db.ErrNotFound) {
			kind = ErrNotFound
		}
		return nil, &Error{Kind: kind, Op: OpUpdate, TaskID: id, RemotePageID: existing.RemotePageID, Err: err}
	}

	// The local record is committed from here on; observers see it even
	// when Notion does not.
	if c.notifier != nil {
		c.notifier.TaskUpdated(existing.Clone(), merged.Clone())
	}

	if !merged.Key().Linked() {
		// There is no page to patch and nothing reconcile could push to, so
		// this is reported but not journaled.
		e := &Error{
			Kind:   ErrRemoteSyncFailed,
			Op:     OpUpdate,
			TaskID: id,
			Task:   merged,
			Err:    ErrUnlinked,
		}
		c.logger.Printf("WARNING: %v", e)
		return nil, e
	}

	if err := c.remote.PatchPage(ctx, merged.RemotePageID, merged.Fields()); err != nil {
		e := &Error{
			Kind:         ErrRemoteSyncFailed,
			Op:           OpUpdate,
			TaskID:       id,
			RemotePageID: merged.RemotePageID,
			Task:         merged,
			Err:          err,
		}
		c.diverged(ctx, e)
		return nil, e
	}

	c.upsertMirror(merged)
	c.logger.Printf("Updated task %s", merged.Key())
	return merged, nil
}

// Delete archives the Notion page, removes the mirror row, then deletes the
// local record. It returns the record as it was before deletion.
//
// On ErrRemoteDeleteFailed nothing was removed. On ErrLocalDeleteFailed the
// page is archived and the mirror row is gone but the record remains.
func (c *Coordinator) Delete(ctx context.Context, id string) (*task.Task, error) {
	snapshot, err := c.load(ctx, OpDelete, id)
	if err != nil {
		return nil, err
	}
	key := snapshot.Key()

	if key.Linked() {
		if err := c.remote.ArchivePage(ctx, key.RemotePageID); err != nil {
			return nil, &Error{
				Kind:         ErrRemoteDeleteFailed,
				Op:           OpDelete,
				TaskID:       id,
				RemotePageID: key.RemotePageID,
				Err:          err,
			}
		}

		removed, err := c.mirror.RemoveByKey(key.RemotePageID)
		switch {
		case err != nil:
			c.logger.Printf("WARNING: %v: failed to remove row for %s: %v", ErrMirrorWriteFailed, key, err)
		case !removed:
			c.logger.Printf("WARNING: no mirror row for %s", key)
		}
	} else {
		c.logger.Printf("WARNING: task %s has no remote page, deleting locally only", id)
	}

	if err := c.local.DeleteTask(ctx, id); err != nil {
		e := &Error{
			Kind:         ErrLocalDeleteFailed,
			Op:           OpDelete,
			TaskID:       id,
			RemotePageID: key.RemotePageID,
			Task:         snapshot,
			Err:          err,
		}
		c.diverged(ctx, e)
		return nil, e
	}

	c.logger.Printf("Deleted task %s (%s)", key, snapshot.Title)

	if c.notifier != nil {
		c.notifier.TaskDeleted(snapshot.Clone())
	}
	return snapshot, nil
}

// Get returns the local record for id.
func (c *Coordinator) Get(ctx context.Context, id string) (*task.Task, error) {
	return c.load(ctx, OpGet, id)
}

// List returns local records matching filter.
func (c *Coordinator) List(ctx context.Context, filter db.ListFilter) ([]*task.Task, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, &Error{Kind: ErrInvalidInput, Op: OpList, Err: fmt.Errorf("invalid status %q", filter.Status)}
	}
	if filter.Priority != "" && !filter.Priority.Valid() {
		return nil, &Error{Kind: ErrInvalidInput, Op: OpList, Err: fmt.Errorf("invalid priority %q", filter.Priority)}
	}

	tasks, err := c.local.ListTasks(ctx, filter)
	if err != nil {
		return nil, &Error{Kind: ErrLocalReadFailed, Op: OpList, Err: err}
	}
	return tasks, nil
}

func (c *Coordinator) load(ctx context.Context, op Op, id string) (*task.Task, error) {
	if id == "" {
		return nil, &Error{Kind: ErrInvalidInput, Op: op, Err: errors.New("task id is required")}
	}

	t, err := c.local.GetTask(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &Error{Kind: ErrNotFound, Op: op, TaskID: id, Err: err}
	}
	if err != nil {
		return nil, &Error{Kind: ErrLocalReadFailed, Op: op, TaskID: id, Err: err}
	}
	return t, nil
}

// upsertMirror writes t to the mirror. Failures are logged only.
func (c *Coordinator) upsertMirror(t *task.Task) {
	if err := c.mirror.Upsert(mirror.RowFor(t)); err != nil {
		c.logger.Printf("WARNING: %v: %s: %v", ErrMirrorWriteFailed, t.Key(), err)
	}
}

// diverged logs, journals and broadcasts a divergence.
func (c *Coordinator) diverged(ctx context.Context, e *Error) {
	c.logger.Printf("DIVERGENCE: %v", e)

	if c.journal != nil {
		d := &db.Divergence{
			Kind:         KindName(e.Kind),
			Op:           string(e.Op),
			TaskID:       e.TaskID,
			RemotePageID: e.RemotePageID,
		}
		if e.Err != nil {
			d.Detail = e.Err.Error()
		}
		// The request context may already be done; the journal entry
		// must still land.
		if _, err := c.journal.RecordDivergence(context.WithoutCancel(ctx), d); err != nil {
			c.logger.Printf("WARNING: failed to journal divergence for task %s: %v", e.TaskID, err)
		}
	}

	if c.notifier != nil {
		c.notifier.Divergence(e)
	}
}
