package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	stdsync "sync"
	"testing"

	"github.com/robsonferreira/tasksync/internal/db"
	"github.com/robsonferreira/tasksync/internal/mirror"
	"github.com/robsonferreira/tasksync/internal/task"
)

var errInjected = errors.New("injected failure")

// fakeRemote is an in-memory Notion database.
type fakeRemote struct {
	mu       stdsync.Mutex
	next     int
	pages    map[string]task.Fields
	archived map[string]bool
	calls    []string

	createErr  error
	patchErr   error
	archiveErr error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		pages:    make(map[string]task.Fields),
		archived: make(map[string]bool),
	}
}

func (f *fakeRemote) CreatePage(ctx context.Context, fields task.Fields) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create")
	if f.createErr != nil {
		return "", f.createErr
	}
	f.next++
	id := fmt.Sprintf("page-%d", f.next)
	f.pages[id] = fields
	return id, nil
}

func (f *fakeRemote) PatchPage(ctx context.Context, pageID string, fields task.Fields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "patch")
	if f.patchErr != nil {
		return f.patchErr
	}
	if _, ok := f.pages[pageID]; !ok {
		return fmt.Errorf("page %s not found", pageID)
	}
	f.pages[pageID] = fields
	return nil
}

func (f *fakeRemote) ArchivePage(ctx context.Context, pageID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "archive")
	if f.archiveErr != nil {
		return f.archiveErr
	}
	if _, ok := f.pages[pageID]; !ok {
		return fmt.Errorf("page %s not found", pageID)
	}
	f.archived[pageID] = true
	return nil
}

func (f *fakeRemote) page(id string) (task.Fields, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pages[id]
	return p, ok
}

func (f *fakeRemote) isArchived(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.archived[id]
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRemote) setErrors(create, patch, archive error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr, f.patchErr, f.archiveErr = create, patch, archive
}

// flakyLocal fails writes on demand and otherwise delegates to SQLite.
type flakyLocal struct {
	*db.DB
	insertErr error
	updateErr error
	deleteErr error

	// afterInsert and afterList run once the delegated call returns.
	afterInsert func()
	afterList   func()
}

func (f *flakyLocal) InsertTask(ctx context.Context, t *task.Task) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	if err := f.DB.InsertTask(ctx, t); err != nil {
		return err
	}
	if f.afterInsert != nil {
		f.afterInsert()
	}
	return nil
}

func (f *flakyLocal) ListTasks(ctx context.Context, filter db.ListFilter) ([]*task.Task, error) {
	tasks, err := f.DB.ListTasks(ctx, filter)
	if err == nil && f.afterList != nil {
		f.afterList()
	}
	return tasks, err
}

func (f *flakyLocal) UpdateTask(ctx context.Context, t *task.Task) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	return f.DB.UpdateTask(ctx, t)
}

func (f *flakyLocal) DeleteTask(ctx context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return f.DB.DeleteTask(ctx, id)
}

// flakyMirror fails writes on demand and otherwise delegates to the workbook.
type flakyMirror struct {
	*mirror.Mirror
	upsertErr error
	removeErr error
}

func (f *flakyMirror) Upsert(row mirror.Row) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.Mirror.Upsert(row)
}

func (f *flakyMirror) RemoveByKey(key string) (bool, error) {
	if f.removeErr != nil {
		return false, f.removeErr
	}
	return f.Mirror.RemoveByKey(key)
}

// recorder collects notifier events.
type recorder struct {
	mu          stdsync.Mutex
	created     []*task.Task
	updated     []*task.Task
	deleted     []*task.Task
	divergences []*Error
	resolved    []*db.Divergence
}

func (r *recorder) TaskCreated(t *task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, t)
}

func (r *recorder) TaskUpdated(before, after *task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, after)
}

func (r *recorder) TaskDeleted(t *task.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, t)
}

func (r *recorder) Divergence(e *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.divergences = append(r.divergences, e)
}

func (r *recorder) DivergenceResolved(d *db.Divergence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolved = append(r.resolved, d)
}

type harness struct {
	coord  *Coordinator
	db     *db.DB
	local  *flakyLocal
	remote *fakeRemote
	mirror *flakyMirror
	events *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	database, err := db.Open(filepath.Join(dir, "tasks.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	quiet := log.New(io.Discard, "", 0)
	m, err := mirror.New(mirror.Config{Path: filepath.Join(dir, "tasks.xlsx"), Logger: quiet})
	if err != nil {
		t.Fatalf("mirror.New() failed: %v", err)
	}

	h := &harness{
		db:     database,
		local:  &flakyLocal{DB: database},
		remote: newFakeRemote(),
		mirror: &flakyMirror{Mirror: m},
		events: &recorder{},
	}
	h.coord, err = New(Config{
		Local:    h.local,
		Remote:   h.remote,
		Mirror:   h.mirror,
		Journal:  database,
		Notifier: h.events,
		Logger:   quiet,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return h
}

func (h *harness) mirrorRows(t *testing.T) []mirror.Row {
	t.Helper()
	rows, err := h.mirror.Rows()
	if err != nil {
		t.Fatalf("Rows() failed: %v", err)
	}
	return rows
}

func (h *harness) taskCount(t *testing.T) int {
	t.Helper()
	n, err := h.db.CountTasks(context.Background())
	if err != nil {
		t.Fatalf("CountTasks() failed: %v", err)
	}
	return n
}

func (h *harness) openDivergences(t *testing.T) []*db.Divergence {
	t.Helper()
	open, err := h.db.OpenDivergences(context.Background())
	if err != nil {
		t.Fatalf("OpenDivergences() failed: %v", err)
	}
	return open
}

func writeSpecInput() task.CreateInput {
	return task.CreateInput{Title: "Write spec", Status: "NOT_STARTED", Priority: "HIGH"}
}

func strPtr(s string) *string { return &s }

// asError extracts the coordinator error or fails the test.
func asError(t *testing.T, err error) *Error {
	t.Helper()
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("error %v (%T) is not *Error", err, err)
	}
	return e
}
