package replica

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tasksync/internal/engine"
	"github.com/roach88/tasksync/internal/remote"
	"github.com/roach88/tasksync/internal/remote/memory"
	"github.com/roach88/tasksync/internal/retry"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/syncstate"
	"github.com/roach88/tasksync/internal/task"
	"github.com/roach88/tasksync/internal/testutil"
)

var noWait = retry.SleeperFunc(func(context.Context, time.Duration) error { return nil })

type harness struct {
	replica   *Replica
	store     *store.Store
	authority *memory.Authority
	clock     *testutil.FixedClock
}

// newTestReplica wires a replica to a real store and an in-memory authority.
// gw, when non-nil, replaces the authority as the orchestrator's gateway.
func newTestReplica(t *testing.T, gw remote.Gateway) *harness {
	t.Helper()
	clk := testutil.NewFixedClock(testutil.DefaultStart)
	st, err := store.Open(filepath.Join(t.TempDir(), "replica.db"),
		store.WithClock(clk),
		store.WithIDGenerator(testutil.NewSequenceGenerator("task")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	authority := memory.New(memory.WithClock(clk))
	if gw == nil {
		gw = authority
	}
	orch := engine.New(st, gw,
		engine.WithClock(clk),
		engine.WithSleeper(noWait),
		engine.WithSessionIDs(testutil.NewSequenceGenerator("session")),
	)
	r := New(st, WithOrchestrator(orch), WithClock(clk))
	require.NoError(t, r.Init(context.Background()))
	return &harness{replica: r, store: st, authority: authority, clock: clk}
}

func TestReplica_MutationsTrackUnsyncedCount(t *testing.T) {
	h := newTestReplica(t, nil)
	ctx := context.Background()

	a, err := h.replica.CreateTask(ctx, task.CreateInput{Title: "Buy milk"})
	require.NoError(t, err)
	_, err = h.replica.CreateTask(ctx, task.CreateInput{Title: "Walk dog"})
	require.NoError(t, err)
	assert.Equal(t, 2, h.replica.State().UnsyncedCount)

	_, err = h.replica.UpdateTask(ctx, a.ID, task.UpdateInput{IsDone: task.Some(true)})
	require.NoError(t, err)
	assert.Equal(t, 2, h.replica.State().UnsyncedCount)

	ok, err := h.replica.DeleteTask(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, h.replica.State().UnsyncedCount, "tombstone still needs a push")

	ok, err = h.replica.DeleteTask(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = h.replica.GetTask(ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestReplica_InitLoadsCount(t *testing.T) {
	h := newTestReplica(t, nil)
	ctx := context.Background()
	_, err := h.store.CreateTask(ctx, task.CreateInput{Title: "Written behind the replica"})
	require.NoError(t, err)

	r := New(h.store)
	require.NoError(t, r.Init(ctx))
	assert.Equal(t, 1, r.State().UnsyncedCount)
}

func TestReplica_ValidationErrorLeavesStateAlone(t *testing.T) {
	h := newTestReplica(t, nil)

	_, err := h.replica.CreateTask(context.Background(), task.CreateInput{Title: "   "})
	require.Error(t, err)
	assert.True(t, task.IsValidationError(err))
	assert.Zero(t, h.replica.State().UnsyncedCount)
}

func TestReplica_SyncOffline(t *testing.T) {
	h := newTestReplica(t, nil)
	_, err := h.replica.CreateTask(context.Background(), task.CreateInput{Title: "Buy milk"})
	require.NoError(t, err)

	res, err := h.replica.Sync(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
	assert.False(t, res.Success)
	assert.Equal(t, syncstate.StatusIdle, h.replica.State().Status)
	assert.Empty(t, h.authority.Calls())
}

func TestReplica_SyncWithoutRemote(t *testing.T) {
	h := newTestReplica(t, nil)
	r := New(h.store)
	r.SetOnline(true)

	_, err := r.Sync(context.Background())
	assert.ErrorIs(t, err, ErrNoRemote)
}

func TestReplica_SyncSuccess(t *testing.T) {
	h := newTestReplica(t, nil)
	ctx := context.Background()
	_, err := h.replica.CreateTask(ctx, task.CreateInput{Title: "Buy milk"})
	require.NoError(t, err)

	var statuses []syncstate.Status
	unsubscribe := h.replica.Subscribe(func(s syncstate.State) {
		statuses = append(statuses, s.Status)
	})
	defer unsubscribe()

	h.replica.SetOnline(true)
	assert.True(t, h.replica.State().CanSync())

	h.clock.Advance(time.Second)
	res, err := h.replica.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.PushedCount)

	st := h.replica.State()
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	assert.Zero(t, st.UnsyncedCount)
	require.NotNil(t, st.LastSyncAt)
	assert.Equal(t, h.clock.Now(), *st.LastSyncAt)
	assert.Equal(t, "All synced", st.StatusText())

	// online, syncing, idle, count refreshed
	assert.Equal(t, []syncstate.Status{
		syncstate.StatusIdle,
		syncstate.StatusSyncing,
		syncstate.StatusIdle,
		syncstate.StatusIdle,
	}, statuses)
}

func TestReplica_SyncFailureThenRecovery(t *testing.T) {
	h := newTestReplica(t, nil)
	ctx := context.Background()
	_, err := h.replica.CreateTask(ctx, task.CreateInput{Title: "Buy milk"})
	require.NoError(t, err)
	h.replica.SetOnline(true)

	h.authority.FailNextPushes(3)
	res, err := h.replica.Sync(ctx)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.True(t, engine.IsTransportError(err))

	st := h.replica.State()
	assert.Equal(t, syncstate.StatusError, st.Status)
	assert.Equal(t, err.Error(), st.Error)
	assert.Equal(t, 1, st.RetryCount)
	require.NotNil(t, st.NextRetryAt)
	assert.Equal(t, h.clock.Now().Add(time.Second), *st.NextRetryAt)
	assert.Equal(t, 1, st.UnsyncedCount)

	res, err = h.replica.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	st = h.replica.State()
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	assert.Zero(t, st.RetryCount)
	assert.Zero(t, st.UnsyncedCount)
}

func TestReplica_ReconnectClearsError(t *testing.T) {
	h := newTestReplica(t, nil)
	ctx := context.Background()
	_, err := h.replica.CreateTask(ctx, task.CreateInput{Title: "Buy milk"})
	require.NoError(t, err)
	h.replica.SetOnline(true)
	h.authority.FailNextPushes(3)
	_, err = h.replica.Sync(ctx)
	require.Error(t, err)

	h.replica.SetOnline(false)
	assert.Equal(t, syncstate.StatusError, h.replica.State().Status)

	st := h.replica.SetOnline(true)
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	assert.Empty(t, st.Error)
	assert.Empty(t, h.authority.Tasks(), "reconnecting does not sync")
}

func TestReplica_ClearError(t *testing.T) {
	h := newTestReplica(t, nil)
	ctx := context.Background()
	_, err := h.replica.CreateTask(ctx, task.CreateInput{Title: "Buy milk"})
	require.NoError(t, err)
	h.replica.SetOnline(true)
	h.authority.RejectNextPushes(3)
	_, err = h.replica.Sync(ctx)
	require.Error(t, err)

	st := h.replica.ClearError()
	assert.Equal(t, syncstate.StatusIdle, st.Status)
	assert.Zero(t, st.RetryCount)
}

// blockingGateway holds every push until release is closed.
type blockingGateway struct {
	remote.Gateway
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) Push(ctx context.Context, req remote.PushRequest) (remote.PushResponse, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Gateway.Push(ctx, req)
}

func TestReplica_ConcurrentSyncLeavesStateAlone(t *testing.T) {
	gw := &blockingGateway{
		Gateway: memory.New(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	h := newTestReplica(t, gw)
	ctx := context.Background()
	_, err := h.replica.CreateTask(ctx, task.CreateInput{Title: "Buy milk"})
	require.NoError(t, err)
	h.replica.SetOnline(true)

	done := make(chan error, 1)
	go func() {
		_, err := h.replica.Sync(ctx)
		done <- err
	}()
	<-gw.entered

	before := h.replica.State()
	assert.Equal(t, syncstate.StatusSyncing, before.Status)

	_, err = h.replica.Sync(ctx)
	assert.ErrorIs(t, err, engine.ErrAlreadyInProgress)
	assert.Equal(t, before, h.replica.State())

	close(gw.release)
	require.NoError(t, <-done)
	assert.Equal(t, syncstate.StatusIdle, h.replica.State().Status)
}

func TestReplica_Purge(t *testing.T) {
	h := newTestReplica(t, nil)
	ctx := context.Background()

	old := h.clock.Now()
	synced := old
	require.NoError(t, h.store.UpsertFromRemote(ctx, task.Task{
		ID: "gone", Title: "Old", CreatedAt: old, UpdatedAt: old,
		Deleted: true, LastSyncAt: &synced,
	}))
	require.NoError(t, h.store.UpsertFromRemote(ctx, task.Task{
		ID: "pending", Title: "Not pushed", CreatedAt: old, UpdatedAt: old,
		Deleted: true, Dirty: true,
	}))

	n, err := h.replica.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is older than the retention yet")

	h.clock.Advance(2 * time.Hour)
	n, err = h.replica.Purge(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "dirty tombstones are kept")

	stats, err := h.replica.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Deleted)
}

func TestReplica_Conflicts(t *testing.T) {
	h := newTestReplica(t, nil)
	ctx := context.Background()

	synced := h.clock.Now()
	require.NoError(t, h.store.UpsertFromRemote(ctx, task.Task{
		ID: "shared", Title: "Shared", CreatedAt: synced, UpdatedAt: synced, LastSyncAt: &synced,
	}))
	h.clock.Advance(time.Minute)
	_, err := h.replica.UpdateTask(ctx, "shared", task.UpdateInput{Title: task.Some("Edited offline")})
	require.NoError(t, err)

	conflicts, err := h.replica.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "shared", conflicts[0].ID)
}
