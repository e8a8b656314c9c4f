package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/tasksync/internal/clock"
	"github.com/roach88/tasksync/internal/conflict"
	"github.com/roach88/tasksync/internal/remote"
	"github.com/roach88/tasksync/internal/retry"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/task"
)

const (
	// DefaultBatchSize is the number of records per push call.
	DefaultBatchSize = 50

	// DefaultPageSize is the number of records requested per pull call.
	DefaultPageSize = remote.DefaultPageSize
)

// Store is the subset of *store.Store the orchestrator uses.
type Store interface {
	ListDirty(ctx context.Context) ([]task.Task, error)
	AcknowledgePush(ctx context.Context, batch []task.Task, syncedAt time.Time) (int, error)
	ApplyRemotePage(ctx context.Context, items []task.Task, resolve store.ResolveFunc) (int, error)
	MetaTime(ctx context.Context, key string) (time.Time, error)
	SetMeta(ctx context.Context, key, value string) error
}

// Result summarizes one session. On failure Success is false, Err is set
// and the counts reflect the work committed before the failure.
type Result struct {
	Success       bool
	PushedCount   int
	PulledCount   int
	ConflictedIDs []string
	Err           error
}

// Orchestrator runs sync sessions between a Store and a Gateway.
//
// Thread-safety: Sync may be called from any goroutine; at most one session
// runs at a time.
type Orchestrator struct {
	store    Store
	gateway  remote.Gateway
	clock    clock.Clock
	sessions task.IDGenerator
	logger   *slog.Logger
	sleeper  retry.Sleeper

	batchSize  int
	pageSize   int
	pushPolicy retry.Policy
	pullPolicy retry.Policy

	token token
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatchSize sets the number of records per push call.
// Default: 50 (DefaultBatchSize).
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithPageSize sets the pull page size.
// Default: 100 (DefaultPageSize).
func WithPageSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.pageSize = n
		}
	}
}

// WithRetryPolicy sets the retry policy used for both push batches and pull pages.
// Default: retry.DefaultPolicy (3 attempts, 1s doubling, capped at 5s).
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) {
		o.pushPolicy = p
		o.pullPolicy = p
	}
}

// WithSleeper sets how the orchestrator waits between retries.
// Tests pass a sleeper that returns immediately.
func WithSleeper(s retry.Sleeper) Option {
	return func(o *Orchestrator) {
		o.sleeper = s
	}
}

// WithClock sets the time source for sync stamps and cursors.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = c
	}
}

// WithSessionIDs sets the generator for session ids used in logs.
// Default: task.UUIDv7Generator.
func WithSessionIDs(g task.IDGenerator) Option {
	return func(o *Orchestrator) {
		o.sessions = g
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// New creates an Orchestrator.
func New(s Store, gw remote.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      s,
		gateway:    gw,
		clock:      clock.System{},
		sessions:   task.UUIDv7Generator{},
		logger:     slog.Default(),
		sleeper:    retry.TimerSleeper{},
		batchSize:  DefaultBatchSize,
		pageSize:   DefaultPageSize,
		pushPolicy: retry.DefaultPolicy(),
		pullPolicy: retry.DefaultPolicy(),
		token:      newToken(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "sync")
	return o
}

// InProgress reports whether a session is running.
func (o *Orchestrator) InProgress() bool {
	return o.token.held()
}

// Sync runs one push-then-pull session.
//
// Returns ErrAlreadyInProgress immediately if a session is running.
// Otherwise the returned error, when non-nil, is a *SyncError and equals
// Result.Err.
func (o *Orchestrator) Sync(ctx context.Context) (Result, error) {
	release, ok := o.token.tryAcquire()
	if !ok {
		return Result{Err: ErrAlreadyInProgress}, ErrAlreadyInProgress
	}
	defer release()

	s := &session{
		Orchestrator: o,
		id:           o.sessions.Generate(),
		conflicts:    newIDSet(),
	}
	s.log = o.logger.With("session", s.id)
	started := o.clock.Now()
	s.log.Info("sync started")

	var res Result
	var err error
	res.PushedCount, err = s.push(ctx)
	if err == nil {
		res.PulledCount, err = s.pull(ctx)
	}
	res.ConflictedIDs = s.conflicts.list()

	if err != nil {
		res.Err = err
		s.log.Error("sync failed",
			"error", err,
			"pushed", res.PushedCount,
			"pulled", res.PulledCount,
		)
		return res, err
	}

	res.Success = true
	s.log.Info("sync completed",
		"pushed", res.PushedCount,
		"pulled", res.PulledCount,
		"conflicts", len(res.ConflictedIDs),
		"duration", o.clock.Now().Sub(started),
	)
	return res, nil
}

// session holds the state of one Sync call.
type session struct {
	*Orchestrator
	id        string
	log       *slog.Logger
	conflicts *idSet
}

func (s *session) fail(phase Phase, err error) *SyncError {
	return &SyncError{Phase: phase, Session: s.id, Err: err}
}

func (s *session) push(ctx context.Context) (int, error) {
	dirty, err := s.store.ListDirty(ctx)
	if err != nil {
		return 0, s.fail(PhaseStore, err)
	}
	if len(dirty) == 0 {
		s.log.Debug("nothing to push")
		return 0, nil
	}

	pushed := 0
	for start, batchNo := 0, 1; start < len(dirty); start, batchNo = start+s.batchSize, batchNo+1 {
		batch := dirty[start:min(start+s.batchSize, len(dirty))]
		n, err := s.pushBatch(ctx, batchNo, batch)
		pushed += n
		if err != nil {
			return pushed, err
		}
	}

	if err := s.store.SetMeta(ctx, store.MetaLastPushAt, task.FormatTime(s.clock.Now())); err != nil {
		return pushed, s.fail(PhaseStore, err)
	}
	return pushed, nil
}

// pushBatch sends one batch and acknowledges what the authority accepted.
// Returns the number of records accepted.
func (s *session) pushBatch(ctx context.Context, batchNo int, batch []task.Task) (int, error) {
	req := remote.NewPushRequest(batch)
	resp, err := retry.Do(ctx, s.pushPolicy, func(ctx context.Context) (remote.PushResponse, error) {
		resp, err := s.gateway.Push(ctx, req)
		if err != nil {
			return remote.PushResponse{}, err
		}
		if !resp.Success {
			return remote.PushResponse{}, &remote.TransportError{Op: "push", Err: remote.ErrRejected}
		}
		return resp, nil
	},
		retry.WithSleeper(s.sleeper),
		retry.WithNotify(func(attempt int, delay time.Duration, err error) {
			s.log.Warn("push failed, retrying",
				"batch", batchNo,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}),
	)
	if err != nil {
		se := s.fail(PhasePush, err)
		se.Batch = batchNo
		return 0, se
	}

	refused := make(map[string]bool, len(resp.ConflictedIDs))
	for _, id := range resp.ConflictedIDs {
		refused[id] = true
		s.conflicts.add(id)
	}
	accepted := make([]task.Task, 0, len(batch))
	for _, t := range batch {
		if !refused[t.ID] {
			accepted = append(accepted, t)
		}
	}

	if _, err := s.store.AcknowledgePush(ctx, accepted, s.clock.Now()); err != nil {
		se := s.fail(PhaseStore, err)
		se.Batch = batchNo
		return 0, se
	}

	s.log.Debug("batch pushed",
		"batch", batchNo,
		"upserts", len(req.Upserts),
		"deletes", len(req.Deletes),
		"conflicts", len(resp.ConflictedIDs),
	)
	return len(accepted), nil
}

func (s *session) pull(ctx context.Context) (int, error) {
	cursor, err := s.store.MetaTime(ctx, store.MetaLastPullAt)
	if err != nil {
		return 0, s.fail(PhaseStore, err)
	}

	pulled := 0
	for pageNo := 1; ; pageNo++ {
		n, next, err := s.pullPage(ctx, pageNo, cursor)
		pulled += n
		if err != nil {
			return pulled, err
		}
		if next == nil {
			break
		}
		cursor = *next
	}

	if err := s.store.SetMeta(ctx, store.MetaLastPullAt, task.FormatTime(s.clock.Now())); err != nil {
		return pulled, s.fail(PhaseStore, err)
	}
	return pulled, nil
}

// pullPage fetches and applies one page. Returns the number of records
// written and the cursor for the next page (nil on the last page).
func (s *session) pullPage(ctx context.Context, pageNo int, cursor time.Time) (int, *time.Time, error) {
	pageErr := func(phase Phase, err error) *SyncError {
		se := s.fail(phase, err)
		se.Page = pageNo
		return se
	}

	page, err := retry.Do(ctx, s.pullPolicy, func(ctx context.Context) (remote.PullPage, error) {
		return s.gateway.Pull(ctx, cursor, s.pageSize)
	},
		retry.WithSleeper(s.sleeper),
		retry.WithNotify(func(attempt int, delay time.Duration, err error) {
			s.log.Warn("pull failed, retrying",
				"page", pageNo,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}),
	)
	if err != nil {
		return 0, nil, pageErr(PhasePull, err)
	}

	now := s.clock.Now()
	applied, err := s.store.ApplyRemotePage(ctx, page.Items, func(local *task.Task, incoming task.Task) (store.RemoteWrite, bool) {
		return s.resolve(local, incoming, now)
	})
	if err != nil {
		return 0, nil, pageErr(PhaseStore, err)
	}
	s.log.Debug("page pulled", "page", pageNo, "items", len(page.Items), "applied", applied)

	if !page.HasMore() {
		return applied, nil, nil
	}
	next, err := task.ParseTime(page.NextCursor)
	if err != nil {
		return applied, nil, pageErr(PhasePull, fmt.Errorf("invalid cursor: %w", err))
	}
	if !next.After(cursor) {
		return applied, nil, pageErr(PhasePull, fmt.Errorf("cursor %s does not advance past %s",
			page.NextCursor, task.FormatTime(cursor)))
	}
	return applied, &next, nil
}

// resolve turns a conflict decision into a store write.
//
// Records the replica already holds in the same synced version (typically
// the echo of this session's own push) are skipped. Remote tombstones
// delete the local row; tombstones for rows that do not exist are skipped.
func (s *session) resolve(local *task.Task, incoming task.Task, now time.Time) (store.RemoteWrite, bool) {
	d := conflict.Resolve(local, incoming, now)
	if d.Outcome == conflict.KeepLocalConflict {
		s.conflicts.add(incoming.ID)
		s.log.Info("conflict: keeping local version",
			"id", incoming.ID,
			"local_updated_at", task.FormatTime(local.UpdatedAt),
			"remote_updated_at", task.FormatTime(incoming.UpdatedAt),
		)
		return store.RemoteWrite{}, false
	}

	if incoming.Deleted {
		if local == nil {
			return store.RemoteWrite{}, false
		}
		return store.RemoteWrite{Task: d.Record, Delete: true}, true
	}
	if local != nil && !local.Dirty && !local.Deleted && local.UpdatedAt.Equal(incoming.UpdatedAt) {
		return store.RemoteWrite{}, false
	}
	return store.RemoteWrite{Task: d.Record}, true
}

// idSet keeps ids unique in first-seen order.
type idSet struct {
	seen  map[string]bool
	order []string
}

func newIDSet() *idSet {
	return &idSet{seen: make(map[string]bool)}
}

func (s *idSet) add(id string) {
	if s.seen[id] {
		return
	}
	s.seen[id] = true
	s.order = append(s.order, id)
}

func (s *idSet) list() []string {
	if len(s.order) == 0 {
		return []string{}
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}
