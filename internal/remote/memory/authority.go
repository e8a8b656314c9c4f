// Package memory provides an in-process authority implementing
// remote.Gateway, used by tests, the scenario harness and `tasksync serve`.
//
// Pull semantics: records changed strictly after changedSince (everything at
// the epoch), ascending by updatedAt then id, pages of limit records with
// nextCursor set to the last returned updatedAt when more remain.
//
// Push semantics: upserts are stored with dirty=false and lastSyncAt=now;
// deletes leave a tombstone so other replicas learn about them on pull. An
// upsert is refused (reported in conflictedIds) when the authority holds a
// different version that is newer, or when a never-synced record collides
// with one already stored.
//
// Fault injection (FailNextPulls, FailNextPushes, RejectNextPushes,
// ConflictOn) and call recording support deterministic failure tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/tasksync/internal/clock"
	"github.com/roach88/tasksync/internal/remote"
	"github.com/roach88/tasksync/internal/task"
)

// ErrUnavailable is the cause of injected transport failures.
var ErrUnavailable = errors.New("authority unavailable")

// Call records one gateway call as seen by the authority.
type Call struct {
	Op           string   `json:"op"`
	ChangedSince string   `json:"changedSince,omitempty"`
	Limit        int      `json:"limit,omitempty"`
	Returned     []string `json:"returned,omitempty"`
	NextCursor   string   `json:"nextCursor,omitempty"`
	Upserts      []string `json:"upserts,omitempty"`
	Deletes      []string `json:"deletes,omitempty"`
	Conflicted   []string `json:"conflicted,omitempty"`
	Rejected     bool     `json:"rejected,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Authority is an in-memory remote.Gateway.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Authority struct {
	mu    sync.Mutex
	clock clock.Clock
	tasks map[string]task.Task
	calls []Call

	failPulls    int
	failPushes   int
	rejectPushes int
	forced       map[string]bool
}

var _ remote.Gateway = (*Authority)(nil)

// Option configures an Authority.
type Option func(*Authority)

// WithClock sets the clock used to stamp lastSyncAt on accepted records.
func WithClock(c clock.Clock) Option {
	return func(a *Authority) {
		a.clock = c
	}
}

// New creates an empty authority.
func New(opts ...Option) *Authority {
	a := &Authority{
		clock:  clock.System{},
		tasks:  make(map[string]task.Task),
		forced: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Put stores t as if another replica had pushed it.
func (a *Authority) Put(t task.Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t.Dirty = false
	a.tasks[t.ID] = t
}

// Get returns the stored version of id, tombstones included.
func (a *Authority) Get(id string) (task.Task, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tasks[id]
	return t, ok
}

// Tasks returns every stored record ordered by updatedAt then id.
func (a *Authority) Tasks() []task.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sortedLocked()
}

// FailNextPulls makes the next n pulls fail with a transport error.
func (a *Authority) FailNextPulls(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failPulls = n
}

// FailNextPushes makes the next n pushes fail with a transport error.
func (a *Authority) FailNextPushes(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failPushes = n
}

// RejectNextPushes makes the next n pushes answer success=false.
func (a *Authority) RejectNextPushes(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejectPushes = n
}

// ConflictOn makes every push of the given ids report a conflict.
func (a *Authority) ConflictOn(ids ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		a.forced[id] = true
	}
}

// Calls returns the calls received so far, in order.
func (a *Authority) Calls() []Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Call, len(a.calls))
	copy(out, a.calls)
	return out
}

// ResetCalls forgets recorded calls.
func (a *Authority) ResetCalls() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = nil
}

// Pull returns records changed after changedSince.
func (a *Authority) Pull(ctx context.Context, changedSince time.Time, limit int) (remote.PullPage, error) {
	if err := ctx.Err(); err != nil {
		return remote.PullPage{}, &remote.TransportError{Op: "pull", Err: err}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	call := Call{Op: "pull", ChangedSince: task.FormatTime(changedSince), Limit: limit}
	if a.failPulls > 0 {
		a.failPulls--
		call.Error = ErrUnavailable.Error()
		a.calls = append(a.calls, call)
		return remote.PullPage{}, &remote.TransportError{Op: "pull", Err: ErrUnavailable}
	}
	if limit <= 0 {
		limit = remote.DefaultPageSize
	}

	all := a.sortedLocked()
	var changed []task.Task
	for _, t := range all {
		if changedSince.Equal(task.Epoch) || t.UpdatedAt.After(changedSince) {
			changed = append(changed, t)
		}
	}

	page := remote.PullPage{Items: changed}
	if len(changed) > limit {
		page.Items = changed[:limit]
		page.NextCursor = task.FormatTime(page.Items[limit-1].UpdatedAt)
	}
	if page.Items == nil {
		page.Items = []task.Task{}
	}

	for _, t := range page.Items {
		call.Returned = append(call.Returned, t.ID)
	}
	call.NextCursor = page.NextCursor
	a.calls = append(a.calls, call)
	return page, nil
}

// Push applies a batch of upserts and deletes.
func (a *Authority) Push(ctx context.Context, req remote.PushRequest) (remote.PushResponse, error) {
	if err := ctx.Err(); err != nil {
		return remote.PushResponse{}, &remote.TransportError{Op: "push", Err: err}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	call := Call{Op: "push"}
	for _, u := range req.Upserts {
		call.Upserts = append(call.Upserts, u.ID)
	}
	for _, d := range req.Deletes {
		call.Deletes = append(call.Deletes, d.ID)
	}

	if a.failPushes > 0 {
		a.failPushes--
		call.Error = ErrUnavailable.Error()
		a.calls = append(a.calls, call)
		return remote.PushResponse{}, &remote.TransportError{Op: "push", Err: ErrUnavailable}
	}
	if a.rejectPushes > 0 {
		a.rejectPushes--
		call.Rejected = true
		a.calls = append(a.calls, call)
		return remote.PushResponse{Success: false}, nil
	}

	now := task.Truncate(a.clock.Now())
	var conflicted []string
	for _, u := range req.Upserts {
		if a.conflictsLocked(u) {
			conflicted = append(conflicted, u.ID)
			continue
		}
		u.Dirty = false
		u.LastSyncAt = &now
		a.tasks[u.ID] = u
	}
	for _, d := range req.Deletes {
		existing, ok := a.tasks[d.ID]
		if a.forced[d.ID] || (ok && !existing.Deleted && existing.UpdatedAt.After(d.UpdatedAt)) {
			conflicted = append(conflicted, d.ID)
			continue
		}
		if !ok {
			existing = task.Task{ID: d.ID, CreatedAt: d.UpdatedAt}
		}
		existing.Deleted = true
		existing.Dirty = false
		existing.UpdatedAt = d.UpdatedAt
		existing.LastSyncAt = &now
		a.tasks[d.ID] = existing
	}

	call.Conflicted = conflicted
	a.calls = append(a.calls, call)
	return remote.PushResponse{Success: true, ConflictedIDs: conflicted}, nil
}

// conflictsLocked reports whether an incoming upsert must be refused.
// A replayed push of the version already stored is accepted.
func (a *Authority) conflictsLocked(in task.Task) bool {
	if a.forced[in.ID] {
		return true
	}
	existing, ok := a.tasks[in.ID]
	if !ok || existing.UpdatedAt.Equal(in.UpdatedAt) {
		return false
	}
	if in.UpdatedAt.Before(existing.UpdatedAt) {
		return true
	}
	return in.LastSyncAt == nil && !existing.Deleted
}

func (a *Authority) sortedLocked() []task.Task {
	out := make([]task.Task, 0, len(a.tasks))
	for _, t := range a.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// String summarizes the authority for logs.
func (a *Authority) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fmt.Sprintf("memory authority (%d records)", len(a.tasks))
}
