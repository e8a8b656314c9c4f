package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/tasksync/internal/engine"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/syncstate"
	"github.com/roach88/tasksync/internal/task"
)

// taskView renders one task. JSON output uses the wire shape of task.Task.
type taskView struct {
	task.Task
}

func (v taskView) String() string {
	var b strings.Builder
	writeTaskLine(&b, v.Task)
	if v.Notes != "" {
		fmt.Fprintf(&b, "\n    %s", strings.ReplaceAll(v.Notes, "\n", "\n    "))
	}
	fmt.Fprintf(&b, "\n    created %s, updated %s", task.FormatTime(v.CreatedAt), task.FormatTime(v.UpdatedAt))
	if v.LastSyncAt != nil {
		fmt.Fprintf(&b, ", synced %s", task.FormatTime(*v.LastSyncAt))
	}
	return b.String()
}

// taskList renders tasks one per line.
type taskList []task.Task

func (l taskList) String() string {
	if len(l) == 0 {
		return "No tasks."
	}
	var b strings.Builder
	for i, t := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		writeTaskLine(&b, t)
	}
	return b.String()
}

func writeTaskLine(b *strings.Builder, t task.Task) {
	mark := " "
	if t.IsDone {
		mark = "x"
	}
	fmt.Fprintf(b, "[%s] %s  %s", mark, t.ID, t.Title)
	if t.DueAt != nil {
		fmt.Fprintf(b, "  (due %s)", task.FormatTime(*t.DueAt))
	}
	switch {
	case t.Conflicted():
		b.WriteString("  *conflict")
	case t.Dirty:
		b.WriteString("  *")
	}
}

// syncView is the outcome of one sync command.
type syncView struct {
	Success       bool            `json:"success"`
	PushedCount   int             `json:"pushedCount"`
	PulledCount   int             `json:"pulledCount"`
	ConflictedIDs []string        `json:"conflictedIds"`
	State         syncstate.State `json:"state"`
}

func newSyncView(res engine.Result, st syncstate.State) syncView {
	ids := res.ConflictedIDs
	if ids == nil {
		ids = []string{}
	}
	return syncView{
		Success:       res.Success,
		PushedCount:   res.PushedCount,
		PulledCount:   res.PulledCount,
		ConflictedIDs: ids,
		State:         st,
	}
}

func (v syncView) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Synced: %d pushed, %d pulled", v.PushedCount, v.PulledCount)
	if len(v.ConflictedIDs) > 0 {
		fmt.Fprintf(&b, "\n%d conflict(s), local version kept:", len(v.ConflictedIDs))
		for _, id := range v.ConflictedIDs {
			fmt.Fprintf(&b, "\n  - %s", id)
		}
	}
	fmt.Fprintf(&b, "\n%s", v.State.StatusText())
	return b.String()
}

// statusView summarizes the replica.
type statusView struct {
	Database   string          `json:"database"`
	Remote     string          `json:"remote,omitempty"`
	Stats      store.Stats     `json:"stats"`
	LastPullAt string          `json:"lastPullAt"`
	LastPushAt string          `json:"lastPushAt"`
	State      syncstate.State `json:"state"`
}

func (v statusView) String() string {
	remote := v.Remote
	if remote == "" {
		remote = "(none)"
	}
	return fmt.Sprintf(`Database:   %s
Remote:     %s
Status:     %s
Tasks:      %d active, %d completed, %d deleted
Unsynced:   %d
Conflicted: %d
Last pull:  %s
Last push:  %s`,
		v.Database, remote, v.State.StatusText(),
		v.Stats.Active, v.Stats.Completed, v.Stats.Deleted,
		v.Stats.Unsynced, v.Stats.Conflicted,
		v.LastPullAt, v.LastPushAt,
	)
}
