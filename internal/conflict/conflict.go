// Package conflict decides, record by record, whether an incoming remote
// version replaces the local one.
//
// Resolution is whole-record last-writer-wins with one exception: a local
// record that is dirty and strictly newer than the remote version is kept
// and reported as a conflict, so the pending edit is pushed later instead of
// being lost.
package conflict

import (
	"time"

	"github.com/roach88/tasksync/internal/task"
)

// Outcome is the result of resolving one record.
type Outcome int

const (
	// AcceptRemote replaces the local record with the remote version.
	AcceptRemote Outcome = iota
	// KeepLocalConflict leaves the local record untouched and reports its id.
	KeepLocalConflict
)

func (o Outcome) String() string {
	switch o {
	case AcceptRemote:
		return "accept-remote"
	case KeepLocalConflict:
		return "keep-local-conflict"
	}
	return "unknown"
}

// Decision carries the outcome and, for AcceptRemote, the record to write.
type Decision struct {
	Outcome Outcome
	Record  task.Task
}

// Resolve decides between local (nil when absent) and remote.
//
// Accepted records are written with dirty=false and lastSyncAt=now. Equal
// updatedAt values resolve in favor of the remote version.
func Resolve(local *task.Task, remote task.Task, now time.Time) Decision {
	if local != nil && local.Dirty && local.UpdatedAt.After(remote.UpdatedAt) {
		return Decision{Outcome: KeepLocalConflict, Record: *local}
	}

	accepted := remote
	accepted.Dirty = false
	synced := task.Truncate(now)
	accepted.LastSyncAt = &synced
	return Decision{Outcome: AcceptRemote, Record: accepted}
}
