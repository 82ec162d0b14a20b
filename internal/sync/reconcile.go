package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/robsonferreira/tasksync/internal/db"
	"github.com/robsonferreira/tasksync/internal/mirror"
)

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	Examined int      `json:"examined"`
	Resolved int      `json:"resolved"`
	Failed   int      `json:"failed"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Divergences returns the unresolved journal entries, oldest first.
func (c *Coordinator) Divergences(ctx context.Context) ([]*db.Divergence, error) {
	if c.journal == nil {
		return nil, ErrNoJournal
	}
	return c.journal.OpenDivergences(ctx)
}

// Reconcile retries every open divergence and resolves the entries that
// succeed. It stops early only when ctx is done or the journal is
// unreadable.
func (c *Coordinator) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	open, err := c.Divergences(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read divergence journal: %w", err)
	}

	report := &ReconcileReport{}
	for _, d := range open {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Examined++

		var rerr error
		switch d.Kind {
		case KindName(ErrLocalWriteFailed):
			rerr = c.reconcileOrphan(ctx, d)
		case KindName(ErrRemoteSyncFailed):
			rerr = c.reconcileStale(ctx, d)
		case KindName(ErrLocalDeleteFailed):
			rerr = c.reconcileDelete(ctx, d)
		default:
			report.Skipped++
			c.logger.Printf("WARNING: skipping divergence %d with unknown kind %q", d.ID, d.Kind)
			continue
		}

		if errors.Is(rerr, errNothingToPush) {
			// Resolved without action: the entry can never succeed.
			if err := c.journal.ResolveDivergence(ctx, d.ID); err != nil {
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("divergence %d: failed to resolve: %v", d.ID, err))
				continue
			}
			report.Skipped++
			c.logger.Printf("Closed divergence %d (%s): %v", d.ID, d.Kind, rerr)
			c.resolved(d)
			continue
		}
		if rerr != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("divergence %d (%s): %v", d.ID, d.Kind, rerr))
			c.logger.Printf("WARNING: divergence %d still open: %v", d.ID, rerr)
			continue
		}

		if err := c.journal.ResolveDivergence(ctx, d.ID); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("divergence %d: failed to resolve: %v", d.ID, err))
			continue
		}
		report.Resolved++
		c.logger.Printf("Resolved divergence %d (%s)", d.ID, d.Kind)
		c.resolved(d)
	}

	return report, nil
}

// errNothingToPush marks a remote_sync_failed entry whose task has no page.
var errNothingToPush = errors.New("task has no remote page to push to")

func (c *Coordinator) resolved(d *db.Divergence) {
	if c.notifier != nil {
		c.notifier.DivergenceResolved(d)
	}
}

// reconcileOrphan archives a page whose local insert failed, unless a
// local record has since claimed it.
func (c *Coordinator) reconcileOrphan(ctx context.Context, d *db.Divergence) error {
	if d.RemotePageID == "" {
		return nil
	}

	_, err := c.local.GetTaskByRemoteID(ctx, d.RemotePageID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("failed to look up page %s: %w", d.RemotePageID, err)
	}

	if err := c.remote.ArchivePage(ctx, d.RemotePageID); err != nil {
		return fmt.Errorf("failed to archive orphaned page %s: %w", d.RemotePageID, err)
	}
	return nil
}

// reconcileStale pushes the current local record to its page.
func (c *Coordinator) reconcileStale(ctx context.Context, d *db.Divergence) error {
	t, err := c.local.GetTask(ctx, d.TaskID)
	if errors.Is(err, db.ErrNotFound) {
		// Deleted since; nothing left to push.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", d.TaskID, err)
	}
	if !t.Key().Linked() {
		return fmt.Errorf("task %s: %w", t.ID, errNothingToPush)
	}

	if err := c.remote.PatchPage(ctx, t.RemotePageID, t.Fields()); err != nil {
		return fmt.Errorf("failed to patch page %s: %w", t.RemotePageID, err)
	}
	c.upsertMirror(t)
	return nil
}

// reconcileDelete finishes a delete whose remote archive succeeded.
func (c *Coordinator) reconcileDelete(ctx context.Context, d *db.Divergence) error {
	snapshot, err := c.local.GetTask(ctx, d.TaskID)
	if errors.Is(err, db.ErrNotFound) {
		snapshot = nil
	} else if err != nil {
		return fmt.Errorf("failed to load task %s: %w", d.TaskID, err)
	}

	if d.RemotePageID != "" {
		if _, err := c.mirror.RemoveByKey(d.RemotePageID); err != nil {
			c.logger.Printf("WARNING: %v: failed to remove row for page %s: %v", ErrMirrorWriteFailed, d.RemotePageID, err)
		}
	}
	if snapshot == nil {
		return nil
	}
	if err := c.local.DeleteTask(ctx, d.TaskID); err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("failed to delete task %s: %w", d.TaskID, err)
	}

	if c.notifier != nil {
		c.notifier.TaskDeleted(snapshot.Clone())
	}
	return nil
}

// RebuildMirror rewrites the mirror from the local store. The store is
// read while the workbook lock is held, so rows upserted by concurrent
// operations are not dropped. Tasks without a remote page have no key and
// are left out. Returns the number of rows written.
func (c *Coordinator) RebuildMirror(ctx context.Context) (int, error) {
	var listErr error
	n, err := c.mirror.RebuildFrom(func() ([]mirror.Row, error) {
		tasks, err := c.local.ListTasks(ctx, db.ListFilter{})
		if err != nil {
			listErr = err
			return nil, err
		}
		rows := make([]mirror.Row, 0, len(tasks))
		for _, t := range tasks {
			if !t.Key().Linked() {
				continue
			}
			rows = append(rows, mirror.RowFor(t))
		}
		return rows, nil
	})
	if listErr != nil {
		return 0, &Error{Kind: ErrLocalReadFailed, Op: OpList, Err: listErr}
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMirrorWriteFailed, err)
	}
	return n, nil
}
