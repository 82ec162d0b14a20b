// Package task defines the task entity shared by the local store, the Notion
// workspace and the spreadsheet mirror.
package task

import (
	"fmt"
	"strings"
	"unicode/utf8"
	"time"

	"github.com/google/uuid"
)

// Status is the workflow state of a task.
// Any status may follow any other; there are no transition rules.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusNotStarted, StatusInProgress, StatusDone}

var statusLabels = map[Status]string{
	StatusNotStarted: "Não iniciada",
	StatusInProgress: "Em andamento",
	StatusDone:       "Concluído",
}

// Label returns the locale-specific name used by the Notion status option.
func (s Status) Label() string {
	return statusLabels[s]
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// ParseStatus accepts either the canonical name (case-insensitive) or the
// display label.
func ParseStatus(v string) (Status, error) {
	v = strings.TrimSpace(v)
	for _, s := range Statuses {
		if strings.EqualFold(v, string(s)) || v == s.Label() {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", v)
}

// Priority is the urgency bucket of a task.
type Priority string

const (
	PriorityAttention Priority = "ATTENTION"
	PriorityLow       Priority = "LOW"
	PriorityHigh      Priority = "HIGH"
)

// Priorities lists every priority in display order.
var Priorities = []Priority{PriorityAttention, PriorityLow, PriorityHigh}

var priorityLabels = map[Priority]string{
	PriorityAttention: "Atenção",
	PriorityLow:       "Baixa",
	PriorityHigh:      "Alta",
}

// Label returns the locale-specific name used by the Notion select option.
func (p Priority) Label() string {
	return priorityLabels[p]
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	_, ok := priorityLabels[p]
	return ok
}

// ParsePriority accepts either the canonical name (case-insensitive) or the
// display label.
func ParsePriority(v string) (Priority, error) {
	v = strings.TrimSpace(v)
	for _, p := range Priorities {
		if strings.EqualFold(v, string(p)) || v == p.Label() {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", v)
}

// Key binds the local record id to the Notion page id. The page id is the
// join key for the spreadsheet mirror.
type Key struct {
	ID           string `json:"id"`
	RemotePageID string `json:"remote_page_id"`
}

// String renders the key for log lines.
func (k Key) String() string {
	if k.RemotePageID == "" {
		return k.ID + "@<unlinked>"
	}
	return k.ID + "@" + k.RemotePageID
}

// Linked reports whether the key carries a Notion page id.
func (k Key) Linked() bool {
	return k.RemotePageID != ""
}

// Fields are the user-editable attributes propagated to every store.
type Fields struct {
	Title    string   `json:"title"`
	Status   Status   `json:"status"`
	Priority Priority `json:"priority"`
}

// Validate checks the field values.
func (f Fields) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if n := utf8.RuneCountInString(f.Title); n > MaxTitleLength {
		return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, n)
	}
	if !f.Status.Valid() {
		return fmt.Errorf("invalid status %q", f.Status)
	}
	if !f.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", f.Priority)
	}
	return nil
}

// MaxTitleLength matches the column width of the local record.
const MaxTitleLength = 255

// Task is the canonical record.
type Task struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Status       Status    `json:"status"`
	Priority     Priority  `json:"priority"`
	RemotePageID string    `json:"remote_page_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New builds a task with a fresh id for a page the remote store has
// already created.
func New(f Fields, remotePageID string) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:           uuid.NewString(),
		Title:        f.Title,
		Status:       f.Status,
		Priority:     f.Priority,
		RemotePageID: remotePageID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Key returns the identity key of the task.
func (t *Task) Key() Key {
	return Key{ID: t.ID, RemotePageID: t.RemotePageID}
}

// Fields returns the editable attributes of the task.
func (t *Task) Fields() Fields {
	return Fields{Title: t.Title, Status: t.Status, Priority: t.Priority}
}

// Clone returns a copy that shares nothing with t.
func (t *Task) Clone() *Task {
	c := *t
	return &c
}

// Validate checks the full record.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if err := t.Fields().Validate(); err != nil {
		return err
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}
