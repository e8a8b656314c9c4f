package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tasksync/internal/remote"
	"github.com/roach88/tasksync/internal/remote/memory"
	"github.com/roach88/tasksync/internal/retry"
	"github.com/roach88/tasksync/internal/store"
	"github.com/roach88/tasksync/internal/task"
	"github.com/roach88/tasksync/internal/testutil"
)

// fixture wires a real store and an in-memory authority to one clock.
type fixture struct {
	store  *store.Store
	remote *memory.Authority
	clock  *testutil.FixedClock
	delays *delayRecorder
	orch   *Orchestrator
}

// delayRecorder is a retry.Sleeper that records delays without waiting.
type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *delayRecorder) Sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return nil
}

func (r *delayRecorder) all() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

var _ retry.Sleeper = (*delayRecorder)(nil)

// newFixture creates the fixture. wrap, when non-nil, decorates the gateway.
func newFixture(t *testing.T, wrap func(remote.Gateway) remote.Gateway, opts ...Option) *fixture {
	t.Helper()
	clk := testutil.NewFixedClock(testutil.DefaultStart)
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithClock(clk),
		store.WithIDGenerator(testutil.NewSequenceGenerator("task")),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	authority := memory.New(memory.WithClock(clk))
	var gw remote.Gateway = authority
	if wrap != nil {
		gw = wrap(authority)
	}

	delays := &delayRecorder{}
	base := []Option{
		WithClock(clk),
		WithSleeper(delays),
		WithSessionIDs(testutil.NewSequenceGenerator("session")),
	}
	return &fixture{
		store:  st,
		remote: authority,
		clock:  clk,
		delays: delays,
		orch:   New(st, gw, append(base, opts...)...),
	}
}

// join adds a second replica with its own clock to the fixture's authority.
func (f *fixture) join(t *testing.T, clk *testutil.FixedClock, name string) (*store.Store, *Orchestrator) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), name+".db"),
		store.WithClock(clk),
		store.WithIDGenerator(testutil.NewSequenceGenerator(name)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return st, New(st, f.remote,
		WithClock(clk),
		WithSleeper(f.delays),
		WithSessionIDs(testutil.NewSequenceGenerator(name+"-session")),
	)
}

func (f *fixture) create(t *testing.T, title string) task.Task {
	t.Helper()
	tk, err := f.store.CreateTask(context.Background(), task.CreateInput{Title: title})
	require.NoError(t, err)
	return tk
}

func (f *fixture) get(t *testing.T, id string) task.Task {
	t.Helper()
	tk, err := f.store.GetTask(context.Background(), id)
	require.NoError(t, err)
	return tk
}

func (f *fixture) dirtyCount(t *testing.T) int {
	t.Helper()
	n, err := f.store.CountDirty(context.Background())
	require.NoError(t, err)
	return n
}

func (f *fixture) meta(t *testing.T, key string) string {
	t.Helper()
	v, _, err := f.store.GetMeta(context.Background(), key)
	require.NoError(t, err)
	return v
}

func remoteTask(id string, updated time.Time) task.Task {
	return task.Task{ID: id, Title: id, CreatedAt: updated, UpdatedAt: updated}
}

func pushCalls(calls []memory.Call) []memory.Call {
	var out []memory.Call
	for _, c := range calls {
		if c.Op == "push" {
			out = append(out, c)
		}
	}
	return out
}

func pullCalls(calls []memory.Call) []memory.Call {
	var out []memory.Call
	for _, c := range calls {
		if c.Op == "pull" {
			out = append(out, c)
		}
	}
	return out
}

// gatewayFuncs decorates a gateway with per-call hooks.
type gatewayFuncs struct {
	remote.Gateway
	pull func(ctx context.Context, since time.Time, limit int) (remote.PullPage, error)
	push func(ctx context.Context, req remote.PushRequest) (remote.PushResponse, error)
}

func (g *gatewayFuncs) Pull(ctx context.Context, since time.Time, limit int) (remote.PullPage, error) {
	if g.pull != nil {
		return g.pull(ctx, since, limit)
	}
	return g.Gateway.Pull(ctx, since, limit)
}

func (g *gatewayFuncs) Push(ctx context.Context, req remote.PushRequest) (remote.PushResponse, error) {
	if g.push != nil {
		return g.push(ctx, req)
	}
	return g.Gateway.Push(ctx, req)
}
