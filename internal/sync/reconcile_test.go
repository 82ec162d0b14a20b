package sync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/robsonferreira/tasksync/internal/db"
	"github.com/robsonferreira/tasksync/internal/mirror"
	"github.com/robsonferreira/tasksync/internal/task"
)

func TestReconcile_OrphanedPage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.local.insertErr = errInjected
	if _, err := h.coord.Create(ctx, writeSpecInput()); !errors.Is(err, ErrLocalWriteFailed) {
		t.Fatalf("Create() error = %v, want ErrLocalWriteFailed", err)
	}
	h.local.insertErr = nil

	report, err := h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Examined != 1 || report.Resolved != 1 {
		t.Errorf("report = %+v", report)
	}
	if !h.remote.isArchived("page-1") {
		t.Error("orphaned page was not archived")
	}
	if open := h.openDivergences(t); len(open) != 0 {
		t.Errorf("divergences still open: %+v", open)
	}
}

func TestReconcile_ClaimedPageIsNotArchived(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.db.RecordDivergence(ctx, &db.Divergence{
		Kind: "local_write_failed", Op: "create", RemotePageID: "page-1",
	}); err != nil {
		t.Fatalf("RecordDivergence() failed: %v", err)
	}
	created, err := h.coord.Create(ctx, writeSpecInput())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if created.RemotePageID != "page-1" {
		t.Fatalf("unexpected page id %s", created.RemotePageID)
	}

	report, err := h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Resolved != 1 {
		t.Errorf("report = %+v", report)
	}
	if h.remote.isArchived("page-1") {
		t.Error("page owned by a local record was archived")
	}
}

func TestReconcile_StalePage(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.coord.Create(ctx, writeSpecInput())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	h.remote.setErrors(nil, errInjected, nil)
	if _, err := h.coord.Update(ctx, created.ID, task.UpdateInput{Status: strPtr("DONE")}); !errors.Is(err, ErrRemoteSyncFailed) {
		t.Fatalf("Update() error = %v, want ErrRemoteSyncFailed", err)
	}

	// Still failing: the entry stays open.
	report, err := h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Failed != 1 || report.Resolved != 0 || len(report.Errors) != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(h.openDivergences(t)) != 1 {
		t.Fatal("failed reconcile resolved the divergence")
	}

	h.remote.setErrors(nil, nil, nil)
	report, err = h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Resolved != 1 {
		t.Errorf("report = %+v", report)
	}

	page, _ := h.remote.page(created.RemotePageID)
	if page.Status != task.StatusDone {
		t.Errorf("remote status = %s, want DONE", page.Status)
	}
	rows := h.mirrorRows(t)
	if len(rows) != 1 || rows[0].Status != "DONE" {
		t.Errorf("mirror rows = %+v", rows)
	}
}

func TestReconcile_HalfDeleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.coord.Create(ctx, writeSpecInput())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	h.local.deleteErr = errInjected
	if _, err := h.coord.Delete(ctx, created.ID); !errors.Is(err, ErrLocalDeleteFailed) {
		t.Fatalf("Delete() error = %v, want ErrLocalDeleteFailed", err)
	}
	h.local.deleteErr = nil

	report, err := h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Resolved != 1 {
		t.Errorf("report = %+v", report)
	}
	if _, err := h.db.GetTask(ctx, created.ID); !errors.Is(err, db.ErrNotFound) {
		t.Error("local record not deleted by reconcile")
	}
}

func TestReconcile_UnknownKind(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.db.RecordDivergence(ctx, &db.Divergence{Kind: "mystery", Op: "create"}); err != nil {
		t.Fatalf("RecordDivergence() failed: %v", err)
	}

	report, err := h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Skipped != 1 || report.Resolved != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(h.openDivergences(t)) != 1 {
		t.Error("unknown divergence was resolved")
	}
}

func TestRebuildMirror(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var created []*task.Task
	for _, title := range []string{"one", "two"} {
		c, err := h.coord.Create(ctx, task.CreateInput{Title: title, Status: "IN_PROGRESS", Priority: "ATTENTION"})
		if err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		created = append(created, c)
	}

	// Drift the mirror by hand.
	if err := h.mirror.Rebuild([]mirror.Row{{Title: "stray", Key: "page-99"}}); err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}

	n, err := h.coord.RebuildMirror(ctx)
	if err != nil {
		t.Fatalf("RebuildMirror() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("RebuildMirror() = %d, want 2", n)
	}

	rows := h.mirrorRows(t)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	for i, c := range created {
		if rows[i] != mirror.RowFor(c) {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], mirror.RowFor(c))
		}
	}
}

func TestReconcile_NotifiesResolution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.coord.Create(ctx, writeSpecInput())
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	h.local.deleteErr = errInjected
	if _, err := h.coord.Delete(ctx, created.ID); !errors.Is(err, ErrLocalDeleteFailed) {
		t.Fatalf("Delete() error = %v, want ErrLocalDeleteFailed", err)
	}
	h.local.deleteErr = nil
	if len(h.events.deleted) != 0 {
		t.Fatalf("half-finished delete was notified: %+v", h.events.deleted)
	}

	if _, err := h.coord.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if len(h.events.resolved) != 1 || h.events.resolved[0].Kind != "local_delete_failed" {
		t.Errorf("resolved events = %+v", h.events.resolved)
	}
	if len(h.events.deleted) != 1 || h.events.deleted[0].ID != created.ID {
		t.Errorf("deleted events = %+v", h.events.deleted)
	}
}

func TestReconcile_UnlinkedStaleEntryIsClosed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	local := task.New(task.Fields{Title: "offline", Status: task.StatusNotStarted, Priority: task.PriorityLow}, "")
	if err := h.db.InsertTask(ctx, local); err != nil {
		t.Fatalf("InsertTask() failed: %v", err)
	}
	if _, err := h.db.RecordDivergence(ctx, &db.Divergence{
		Kind: "remote_sync_failed", Op: "update", TaskID: local.ID,
	}); err != nil {
		t.Fatalf("RecordDivergence() failed: %v", err)
	}

	report, err := h.coord.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile() failed: %v", err)
	}
	if report.Skipped != 1 || report.Failed != 0 || report.Resolved != 0 {
		t.Errorf("report = %+v", report)
	}
	if open := h.openDivergences(t); len(open) != 0 {
		t.Errorf("divergences still open: %+v", open)
	}
	if len(h.events.resolved) != 1 {
		t.Errorf("resolved events = %+v", h.events.resolved)
	}
	if h.remote.callCount() != 0 {
		t.Errorf("remote called %d times for an unlinked task", h.remote.callCount())
	}
}

func TestRebuildMirror_KeepsConcurrentCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.coord.Create(ctx, writeSpecInput()); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	// A create that commits locally after the snapshot was taken must still
	// reach the mirror once the rebuild is done.
	inserted := make(chan struct{})
	done := make(chan error, 1)
	h.local.afterInsert = func() { close(inserted) }
	h.local.afterList = func() {
		h.local.afterList = nil
		go func() {
			_, err := h.coord.Create(ctx, task.CreateInput{Title: "Review PR", Status: "IN_PROGRESS", Priority: "LOW"})
			done <- err
		}()
		<-inserted
	}

	n, err := h.coord.RebuildMirror(ctx)
	if err != nil {
		t.Fatalf("RebuildMirror() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("RebuildMirror() = %d, want 1", n)
	}
	if err := <-done; err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	rows := h.mirrorRows(t)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", rows)
	}
	if rows[1].Title != "Review PR" {
		t.Errorf("row 1 = %+v", rows[1])
	}
}

func TestErrorMessage(t *testing.T) {
	e := &Error{
		Kind:         ErrRemoteSyncFailed,
		Op:           OpUpdate,
		TaskID:       "t1",
		RemotePageID: "page-1",
		Err:          errInjected,
	}

	msg := e.Error()
	for _, want := range []string{"update", "t1", "page-1", "remote sync failed", "injected failure"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	if !errors.Is(e, ErrRemoteSyncFailed) || !errors.Is(e, errInjected) {
		t.Error("errors.Is does not match kind and cause")
	}
	if KindOf(e) != ErrRemoteSyncFailed {
		t.Errorf("KindOf() = %v", KindOf(e))
	}
	if KindOf(errInjected) != nil {
		t.Error("KindOf() on plain error should be nil")
	}
	if KindName(ErrLocalDeleteFailed) != "local_delete_failed" || KindName(errInjected) != "internal" {
		t.Error("KindName() mismatch")
	}
}

func TestDivergent(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{&Error{Kind: ErrRemoteWriteFailed, Op: OpCreate}, false},
		{&Error{Kind: ErrLocalWriteFailed, Op: OpCreate, RemotePageID: "p"}, true},
		{&Error{Kind: ErrLocalWriteFailed, Op: OpUpdate, RemotePageID: "p"}, false},
		{&Error{Kind: ErrRemoteSyncFailed, Op: OpUpdate}, true},
		{&Error{Kind: ErrRemoteDeleteFailed, Op: OpDelete}, false},
		{&Error{Kind: ErrLocalDeleteFailed, Op: OpDelete}, true},
		{&Error{Kind: ErrNotFound, Op: OpGet}, false},
	}
	for _, tt := range tests {
		if got := tt.err.Divergent(); got != tt.want {
			t.Errorf("%s/%s Divergent() = %v, want %v", tt.err.Op, KindName(tt.err.Kind), got, tt.want)
		}
	}
}
