package sync

import (
	"errors"
	"fmt"

	"github.com/robsonferreira/tasksync/internal/task"
)

// Error kinds. Every error returned by the Coordinator is an *Error whose
// Kind is one of these; test with errors.Is.
var (
	// ErrInvalidInput is returned when request fields fail validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound is returned when no local record matches the id.
	ErrNotFound = errors.New("task not found")

	// ErrRemoteWriteFailed is returned when the remote create fails.
	// Nothing was written anywhere.
	ErrRemoteWriteFailed = errors.New("remote write failed")

	// ErrRemoteSyncFailed is returned when the remote patch fails after
	// the local update committed.
	ErrRemoteSyncFailed = errors.New("remote sync failed")

	// ErrRemoteDeleteFailed is returned when the remote archive fails.
	// Nothing was deleted anywhere.
	ErrRemoteDeleteFailed = errors.New("remote delete failed")

	// ErrLocalReadFailed is returned when the local store cannot be read.
	ErrLocalReadFailed = errors.New("local read failed")

	// ErrLocalWriteFailed is returned when the local store rejects a write.
	// On create it means the remote page exists without a local record.
	ErrLocalWriteFailed = errors.New("local write failed")

	// ErrLocalDeleteFailed is returned when the local delete fails after
	// the remote page was archived.
	ErrLocalDeleteFailed = errors.New("local delete failed")

	// ErrMirrorWriteFailed marks spreadsheet failures. It is only logged,
	// never returned from an operation.
	ErrMirrorWriteFailed = errors.New("mirror write failed")

	// ErrUnlinked is the cause of a RemoteSyncFailed update on a task that
	// never got a remote page.
	ErrUnlinked = errors.New("task has no remote page")

	// ErrNoJournal is returned by journal operations when none is configured.
	ErrNoJournal = errors.New("no divergence journal configured")
)

var kindNames = map[error]string{
	ErrInvalidInput:       "invalid_input",
	ErrNotFound:           "not_found",
	ErrRemoteWriteFailed:  "remote_write_failed",
	ErrRemoteSyncFailed:   "remote_sync_failed",
	ErrRemoteDeleteFailed: "remote_delete_failed",
	ErrLocalReadFailed:    "local_read_failed",
	ErrLocalWriteFailed:   "local_write_failed",
	ErrLocalDeleteFailed:  "local_delete_failed",
	ErrMirrorWriteFailed:  "mirror_write_failed",
}

// KindName returns the stable snake_case name of an error kind, as stored
// in the divergence journal and returned by the API.
func KindName(kind error) string {
	if name, ok := kindNames[kind]; ok {
		return name
	}
	return "internal"
}

// Op names a coordinator operation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpGet    Op = "get"
	OpList   Op = "list"
)

// Error is the failure result of a coordinator operation.
type Error struct {
	// Kind is one of the Err* sentinels.
	Kind error
	Op   Op

	TaskID       string
	RemotePageID string

	// Task is the record the divergence concerns: the locally committed
	// merge for ErrRemoteSyncFailed, the snapshot for ErrLocalDeleteFailed.
	Task *task.Task

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	subject := "task"
	if e.TaskID != "" {
		subject += " " + e.TaskID
	}
	if e.RemotePageID != "" {
		subject += fmt.Sprintf(" (page %s)", e.RemotePageID)
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, subject, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, subject, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Divergent reports whether the stores disagree because of this failure.
func (e *Error) Divergent() bool {
	switch e.Kind {
	case ErrLocalWriteFailed:
		return e.Op == OpCreate && e.RemotePageID != ""
	case ErrRemoteSyncFailed, ErrLocalDeleteFailed:
		return true
	}
	return false
}

// IsDivergence reports whether err left the stores in disagreement.
func IsDivergence(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Divergent()
}

// KindOf returns the kind of a coordinator error, or nil.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
