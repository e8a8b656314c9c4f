package task

import (
	"encoding/json"
	"time"
)

// wireTask is the JSON shape of a Task. Timestamps travel as TimeLayout strings.
type wireTask struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Notes      *string `json:"notes"`
	IsDone     bool    `json:"isDone"`
	DueAt      *string `json:"dueAt"`
	CreatedAt  string  `json:"createdAt"`
	UpdatedAt  string  `json:"updatedAt"`
	Dirty      bool    `json:"dirty"`
	Deleted    bool    `json:"deleted"`
	LastSyncAt *string `json:"lastSyncAt"`
}

// MarshalJSON encodes the task with TimeLayout timestamps and null for
// absent optional fields.
func (t Task) MarshalJSON() ([]byte, error) {
	w := wireTask{
		ID:         t.ID,
		Title:      t.Title,
		IsDone:     t.IsDone,
		DueAt:      formatOptional(t.DueAt),
		CreatedAt:  FormatTime(t.CreatedAt),
		UpdatedAt:  FormatTime(t.UpdatedAt),
		Dirty:      t.Dirty,
		Deleted:    t.Deleted,
		LastSyncAt: formatOptional(t.LastSyncAt),
	}
	if t.Notes != "" {
		notes := t.Notes
		w.Notes = &notes
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire shape produced by MarshalJSON.
func (t *Task) UnmarshalJSON(data []byte) error {
	var w wireTask
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	created, err := ParseTime(w.CreatedAt)
	if err != nil {
		return err
	}
	updated, err := ParseTime(w.UpdatedAt)
	if err != nil {
		return err
	}
	due, err := parseOptional(w.DueAt)
	if err != nil {
		return err
	}
	synced, err := parseOptional(w.LastSyncAt)
	if err != nil {
		return err
	}
	*t = Task{
		ID:         w.ID,
		Title:      w.Title,
		IsDone:     w.IsDone,
		DueAt:      due,
		CreatedAt:  created,
		UpdatedAt:  updated,
		Dirty:      w.Dirty,
		Deleted:    w.Deleted,
		LastSyncAt: synced,
	}
	if w.Notes != nil {
		t.Notes = *w.Notes
	}
	return nil
}

func formatOptional(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

func parseOptional(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
