package task

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	// MaxTitleLength is the maximum title length in characters after normalization.
	MaxTitleLength = 200

	// MaxNotesLength is the maximum notes length in characters after normalization.
	MaxNotesLength = 1000
)

// Task is a single task record.
type Task struct {
	ID         string
	Title      string
	Notes      string // empty means no notes; "" is stored and sent as null, like absent notes
	IsDone     bool
	DueAt      *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Dirty      bool
	Deleted    bool
	LastSyncAt *time.Time
}

// Validate checks a record received from another replica against the same
// field limits local input is held to.
func (t Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return &ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if t.Deleted {
		return nil
	}
	if _, err := normalizeTitle(t.Title); err != nil {
		return err
	}
	_, err := normalizeNotes(t.Notes)
	return err
}

// Conflicted reports whether the record was edited locally after its last
// confirmed sync and has not been pushed since.
func (t Task) Conflicted() bool {
	return t.Dirty && t.LastSyncAt != nil && t.UpdatedAt.After(*t.LastSyncAt)
}

// Synced reports whether the authority has confirmed the current version.
func (t Task) Synced() bool {
	return !t.Dirty && t.LastSyncAt != nil
}

// CreateInput holds the user-supplied fields of a new task.
type CreateInput struct {
	Title string
	Notes string
	DueAt *time.Time
}

// Validate normalizes the input in place and checks field limits.
func (in *CreateInput) Validate() error {
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return err
	}
	notes, err := normalizeNotes(in.Notes)
	if err != nil {
		return err
	}
	in.Title = title
	in.Notes = notes
	if in.DueAt != nil {
		due := Truncate(*in.DueAt)
		in.DueAt = &due
	}
	return nil
}

// New builds a dirty, not-yet-synced task from a validated input.
func New(in CreateInput, id string, now time.Time) (Task, error) {
	if err := in.Validate(); err != nil {
		return Task{}, err
	}
	now = Truncate(now)
	return Task{
		ID:        id,
		Title:     in.Title,
		Notes:     in.Notes,
		DueAt:     in.DueAt,
		CreatedAt: now,
		UpdatedAt: now,
		Dirty:     true,
	}, nil
}

// UpdateInput describes a partial update. Only fields whose Optional is set
// are changed; Null clears a nullable field.
type UpdateInput struct {
	Title  Optional[string]
	Notes  Optional[string]
	IsDone Optional[bool]
	DueAt  Optional[time.Time]
}

// Validate normalizes the set fields in place and checks field limits.
func (in *UpdateInput) Validate() error {
	if in.Title.Set {
		if in.Title.Null {
			return &ValidationError{Field: "title", Reason: "cannot be cleared"}
		}
		title, err := normalizeTitle(in.Title.Value)
		if err != nil {
			return err
		}
		in.Title.Value = title
	}
	if in.Notes.Set && !in.Notes.Null {
		notes, err := normalizeNotes(in.Notes.Value)
		if err != nil {
			return err
		}
		in.Notes.Value = notes
	}
	if in.IsDone.Set && in.IsDone.Null {
		return &ValidationError{Field: "isDone", Reason: "cannot be cleared"}
	}
	if in.DueAt.Set && !in.DueAt.Null {
		in.DueAt.Value = Truncate(in.DueAt.Value)
	}
	return nil
}

// Apply validates in and applies it to t as a local mutation: set fields are
// copied, UpdatedAt moves strictly forward (see Touch) and the record becomes dirty.
func Apply(t *Task, in UpdateInput, now time.Time) error {
	if err := in.Validate(); err != nil {
		return err
	}
	if v, ok := in.Title.Get(); ok {
		t.Title = v
	}
	if in.Notes.Set {
		t.Notes = in.Notes.Value
		if in.Notes.Null {
			t.Notes = ""
		}
	}
	if v, ok := in.IsDone.Get(); ok {
		t.IsDone = v
	}
	if in.DueAt.Set {
		if in.DueAt.Null {
			t.DueAt = nil
		} else {
			due := in.DueAt.Value
			t.DueAt = &due
		}
	}
	t.Touch(now)
	return nil
}

// Touch marks t as locally mutated at now. UpdatedAt always moves forward:
// when the local clock is at or behind the stored stamp, the new stamp is one
// millisecond past it, so every local edit is distinguishable from the
// version other replicas already hold.
func (t *Task) Touch(now time.Time) {
	now = Truncate(now)
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Millisecond)
	}
	t.UpdatedAt = now
	t.Dirty = true
}

func normalizeTitle(s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if s == "" {
		return "", &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(s) > MaxTitleLength {
		return "", &ValidationError{Field: "title", Reason: "must be at most 200 characters"}
	}
	return s, nil
}

func normalizeNotes(s string) (string, error) {
	s = norm.NFC.String(strings.TrimSpace(s))
	if utf8.RuneCountInString(s) > MaxNotesLength {
		return "", &ValidationError{Field: "notes", Reason: "must be at most 1000 characters"}
	}
	return s, nil
}
