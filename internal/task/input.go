package task

import (
	"fmt"
	"strings"
	"unicode/utf8"
	"time"
)

// CreateInput carries the required fields of a new task. Status and Priority
// accept canonical names or display labels.
type CreateInput struct {
	Title    string `json:"title"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// Fields validates the input and converts it to typed fields.
func (in CreateInput) Fields() (Fields, error) {
	var f Fields
	f.Title = strings.TrimSpace(in.Title)

	if in.Status == "" {
		return f, fmt.Errorf("status is required")
	}
	s, err := ParseStatus(in.Status)
	if err != nil {
		return f, err
	}
	f.Status = s

	if in.Priority == "" {
		return f, fmt.Errorf("priority is required")
	}
	p, err := ParsePriority(in.Priority)
	if err != nil {
		return f, err
	}
	f.Priority = p

	if err := f.Validate(); err != nil {
		return f, err
	}
	return f, nil
}

// UpdateInput carries a partial update. Nil fields keep their current value.
type UpdateInput struct {
	Title    *string `json:"title,omitempty"`
	Status   *string `json:"status,omitempty"`
	Priority *string `json:"priority,omitempty"`
}

// Empty reports whether no field was supplied.
func (in UpdateInput) Empty() bool {
	return in.Title == nil && in.Status == nil && in.Priority == nil
}

// Validate checks the supplied fields without needing the current record.
func (in UpdateInput) Validate() error {
	if in.Empty() {
		return fmt.Errorf("at least one of title, status or priority is required")
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return fmt.Errorf("title cannot be empty")
		}
		if n := utf8.RuneCountInString(title); n > MaxTitleLength {
			return fmt.Errorf("title must be %d characters or less (got %d)", MaxTitleLength, n)
		}
	}
	if in.Status != nil {
		if _, err := ParseStatus(*in.Status); err != nil {
			return err
		}
	}
	if in.Priority != nil {
		if _, err := ParsePriority(*in.Priority); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges the supplied fields over t and returns the merged copy.
// t itself is not modified.
func (in UpdateInput) Apply(t *Task) (*Task, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	merged := t.Clone()
	if in.Title != nil {
		merged.Title = strings.TrimSpace(*in.Title)
	}
	if in.Status != nil {
		merged.Status, _ = ParseStatus(*in.Status)
	}
	if in.Priority != nil {
		merged.Priority, _ = ParsePriority(*in.Priority)
	}
	merged.UpdatedAt = time.Now().UTC()
	return merged, nil
}
