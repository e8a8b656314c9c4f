// Package replica ties the local store, the sync orchestrator and the sync
// state tracker into the single object an application holds.
//
// Every task mutation goes through the store and then refreshes the tracked
// unsynced count. Sync is gated on connectivity and reports its outcome to
// the tracker.
package replica

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roach88/tasksync/internal/clock"
	"github.com/roach88/tasksync/internal/engine"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/syncstate"
	"github.com/roach88/tasksync/internal/task"
)

// DefaultRetention is how long synced tombstones are kept before Purge
// removes them.
const DefaultRetention = 30 * 24 * time.Hour

var (
	// ErrOffline is returned by Sync while the replica is offline.
	ErrOffline = errors.New("replica is offline")

	// ErrNoRemote is returned by Sync when no authority is configured.
	ErrNoRemote = errors.New("no remote configured")
)

// Replica is a local task replica with optional sync to an authority.
//
// Thread-safety: All methods are safe for concurrent use. Concurrent Sync
// calls return engine.ErrAlreadyInProgress.
type Replica struct {
	store   *store.Store
	sync    *engine.Orchestrator
	tracker *syncstate.Tracker
	clock   clock.Clock
	logger  *slog.Logger
}

// Option configures a Replica.
type Option func(*Replica)

// WithOrchestrator enables Sync.
func WithOrchestrator(o *engine.Orchestrator) Option {
	return func(r *Replica) {
		r.sync = o
	}
}

// WithClock sets the clock for the state tracker and purge cutoffs.
// Default: clock.System.
func WithClock(c clock.Clock) Option {
	return func(r *Replica) {
		r.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Replica) {
		r.logger = l
	}
}

// New creates a replica over s. The caller keeps ownership of s.
func New(s *store.Store, opts ...Option) *Replica {
	r := &Replica{
		store:  s,
		clock:  clock.System{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tracker = syncstate.NewTracker(r.clock)
	r.logger = r.logger.With("component", "replica")
	return r
}

// Init loads the unsynced count into the tracker.
func (r *Replica) Init(ctx context.Context) error {
	return r.refreshCount(ctx)
}

// Store returns the underlying store.
func (r *Replica) Store() *store.Store {
	return r.store
}

// State returns the current sync state.
func (r *Replica) State() syncstate.State {
	return r.tracker.Snapshot()
}

// Subscribe registers fn for sync state changes.
func (r *Replica) Subscribe(fn func(syncstate.State)) (unsubscribe func()) {
	return r.tracker.Subscribe(fn)
}

// SetOnline records a connectivity change. It never starts a sync.
func (r *Replica) SetOnline(online bool) syncstate.State {
	return r.tracker.Dispatch(syncstate.ConnectivityChanged{Online: online})
}

// ClearError dismisses the last sync error.
func (r *Replica) ClearError() syncstate.State {
	return r.tracker.Dispatch(syncstate.ErrorCleared{})
}

// CreateTask creates a task and marks it for push.
func (r *Replica) CreateTask(ctx context.Context, in task.CreateInput) (task.Task, error) {
	t, err := r.store.CreateTask(ctx, in)
	if err != nil {
		return task.Task{}, err
	}
	return t, r.refreshCount(ctx)
}

// UpdateTask changes the set fields of a task.
func (r *Replica) UpdateTask(ctx context.Context, id string, in task.UpdateInput) (task.Task, error) {
	t, err := r.store.UpdateTask(ctx, id, in)
	if err != nil {
		return task.Task{}, err
	}
	return t, r.refreshCount(ctx)
}

// DeleteTask tombstones a task. Returns false if it did not exist.
func (r *Replica) DeleteTask(ctx context.Context, id string) (bool, error) {
	ok, err := r.store.SoftDelete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	return true, r.refreshCount(ctx)
}

// GetTask returns a live task.
func (r *Replica) GetTask(ctx context.Context, id string) (task.Task, error) {
	return r.store.GetTask(ctx, id)
}

// ListTasks lists live tasks, newest first.
func (r *Replica) ListTasks(ctx context.Context, opts task.ListOptions) ([]task.Task, error) {
	return r.store.ListTasks(ctx, opts)
}

// Conflicts lists tasks edited locally since their last sync.
func (r *Replica) Conflicts(ctx context.Context) ([]task.Task, error) {
	return r.store.ListConflicted(ctx)
}

// Stats returns record counts.
func (r *Replica) Stats(ctx context.Context) (store.Stats, error) {
	return r.store.Stats(ctx)
}

// Sync runs one session against the authority.
//
// Returns ErrNoRemote or ErrOffline without touching the state. A call made
// while another session runs returns engine.ErrAlreadyInProgress and leaves
// the state as it is. Otherwise the tracker moves to syncing and then to idle
// or error, and the unsynced count is refreshed.
func (r *Replica) Sync(ctx context.Context) (engine.Result, error) {
	if r.sync == nil {
		return engine.Result{Err: ErrNoRemote}, ErrNoRemote
	}
	if !r.tracker.Snapshot().IsOnline {
		return engine.Result{Err: ErrOffline}, ErrOffline
	}
	if r.sync.InProgress() {
		return engine.Result{Err: engine.ErrAlreadyInProgress}, engine.ErrAlreadyInProgress
	}

	r.tracker.Dispatch(syncstate.SyncStarted{})
	res, err := r.sync.Sync(ctx)
	if engine.IsAlreadyInProgress(err) {
		// Lost the race with another caller; that caller owns the state.
		return res, err
	}

	if err != nil {
		r.tracker.Dispatch(syncstate.SyncFailed{Err: err})
	} else {
		r.tracker.Dispatch(syncstate.SyncSucceeded{})
	}
	if cerr := r.refreshCount(ctx); cerr != nil {
		r.logger.Warn("failed to refresh unsynced count", "error", cerr)
	}
	return res, err
}

// Purge physically removes synced tombstones older than retention.
func (r *Replica) Purge(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	n, err := r.store.PurgeTombstones(ctx, r.clock.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Info("purged tombstones", "count", n, "retention", retention)
	}
	return n, nil
}

func (r *Replica) refreshCount(ctx context.Context) error {
	n, err := r.store.CountDirty(ctx)
	if err != nil {
		return err
	}
	r.tracker.Dispatch(syncstate.UnsyncedCountChanged{Count: n})
	return nil
}
