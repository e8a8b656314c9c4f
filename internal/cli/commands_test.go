package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tasksync/internal/remote/memory"
	"github.com/roach88/tasksync/internal/task"
	"github.com/roach88/tasksync/internal/testutil"
)

// cliEnv runs commands against one database with a deterministic clock and ids.
type cliEnv struct {
	t     *testing.T
	db    string
	clock *testutil.FixedClock
	ids   *testutil.SequenceGenerator
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir()) // keep user config out of the test
	return &cliEnv{
		t:     t,
		db:    filepath.Join(t.TempDir(), "tasks.db"),
		clock: testutil.NewFixedClock(testutil.DefaultStart),
		ids:   testutil.NewSequenceGenerator("task"),
	}
}

// run executes the command line and returns stdout.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	opts := &RootOptions{Clock: e.clock, IDs: e.ids}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--db", e.db}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// runJSON executes the command line with --format json and decodes the envelope.
func (e *cliEnv) runJSON(args ...string) (CLIResponse, error) {
	e.t.Helper()
	out, err := e.run(append([]string{"--format", "json"}, args...)...)
	var resp CLIResponse
	require.NoError(e.t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	return resp, err
}

func dataMap(t *testing.T, resp CLIResponse) map[string]any {
	t.Helper()
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data: %#v", resp.Data)
	return m
}

func TestAddShowList(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.runJSON("add", "Buy", "milk", "--notes", "oat")
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	data := dataMap(t, resp)
	assert.Equal(t, "task-1", data["id"])
	assert.Equal(t, "Buy milk", data["title"])
	assert.Equal(t, "oat", data["notes"])
	assert.Equal(t, true, data["dirty"])
	assert.Equal(t, "2025-01-01T00:00:00.000Z", data["createdAt"])

	_, err = env.run("add", "Walk dog")
	require.NoError(t, err)

	out, err := env.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "task-1  Buy milk")
	assert.Contains(t, out, "task-2  Walk dog")

	out, err = env.run("show", "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Buy milk")
	assert.Contains(t, out, "oat")
}

func TestListEmpty(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks.")

	resp, err := env.runJSON("list", "--filter", "pending")
	require.NoError(t, err)
	assert.Equal(t, []any{}, resp.Data)
}

func TestListFilter(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("add", "Buy milk")
	require.NoError(t, err)
	_, err = env.run("add", "Walk dog")
	require.NoError(t, err)
	_, err = env.run("done", "task-1")
	require.NoError(t, err)

	out, err := env.run("list", "--filter", "completed")
	require.NoError(t, err)
	assert.Contains(t, out, "[x] task-1")
	assert.NotContains(t, out, "task-2")

	resp, err := env.runJSON("list", "--filter", "someday")
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
}

func TestEdit(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("add", "Buy milk", "--notes", "oat", "--due", "2025-03-01")
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	resp, err := env.runJSON("edit", "task-1", "--title", "Buy oat milk", "--clear-notes", "--clear-due", "--done")
	require.NoError(t, err)
	data := dataMap(t, resp)
	assert.Equal(t, "Buy oat milk", data["title"])
	assert.Nil(t, data["notes"])
	assert.Nil(t, data["dueAt"])
	assert.Equal(t, true, data["isDone"])
	assert.Equal(t, "2025-01-01T00:01:00.000Z", data["updatedAt"])

	resp, err = env.runJSON("edit", "task-1", "--undone")
	require.NoError(t, err)
	assert.Equal(t, false, dataMap(t, resp)["isDone"])
	assert.Equal(t, "Buy oat milk", dataMap(t, resp)["title"])
}

func TestAddDue(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.runJSON("add", "Pay rent", "--due", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01T00:00:00.000Z", dataMap(t, resp)["dueAt"])

	resp, err = env.runJSON("add", "Pay rent", "--due", "qwerty")
	require.Error(t, err)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
}

func TestAddValidation(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.runJSON("add", "   ")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "title")
}

func TestRemove(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("add", "Buy milk")
	require.NoError(t, err)

	out, err := env.run("rm", "task-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted task-1")

	resp, err := env.runJSON("show", "task-1")
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	resp, err = env.runJSON("rm", "task-1")
	require.Error(t, err)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)

	resp, err = env.runJSON("status")
	require.NoError(t, err)
	stats := dataMap(t, resp)["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["deleted"])
	assert.Equal(t, float64(1), stats["unsynced"], "the tombstone waits for a push")
}

func TestStatus(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run("add", "Buy milk")
	require.NoError(t, err)

	out, err := env.run("status")
	require.NoError(t, err)
	assert.Contains(t, out, "Remote:     (none)")
	assert.Contains(t, out, "Status:     Offline")
	assert.Contains(t, out, "Unsynced:   1")
	assert.Contains(t, out, "Last pull:  1970-01-01T00:00:00.000Z")
}

func TestSyncWithoutRemote(t *testing.T) {
	env := newCLIEnv(t)

	resp, err := env.runJSON("sync")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ErrCodeNoRemote, resp.Error.Code)
}

func TestSyncBetweenReplicas(t *testing.T) {
	srv := httptest.NewServer(memory.New().Handler())
	defer srv.Close()

	a := newCLIEnv(t)
	b := newCLIEnv(t)

	_, err := a.run("add", "Buy milk")
	require.NoError(t, err)

	resp, err := a.runJSON("--remote", srv.URL, "sync")
	require.NoError(t, err)
	data := dataMap(t, resp)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, float64(1), data["pushedCount"])
	assert.Equal(t, float64(0), data["pulledCount"])
	assert.Equal(t, []any{}, data["conflictedIds"])

	out, err := b.run("--remote", srv.URL, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Synced: 0 pushed, 1 pulled")
	assert.Contains(t, out, "All synced")

	out, err = b.run("list")
	require.NoError(t, err)
	assert.Contains(t, out, "Buy milk")

	resp, err = a.runJSON("--remote", srv.URL, "status")
	require.NoError(t, err)
	status := dataMap(t, resp)
	assert.Equal(t, srv.URL, status["remote"])
	assert.Equal(t, "2025-01-01T00:00:00.000Z", status["lastPushAt"])
}

func TestSyncEnvRemote(t *testing.T) {
	srv := httptest.NewServer(memory.New().Handler())
	defer srv.Close()

	env := newCLIEnv(t)
	t.Setenv("TASKSYNC_REMOTE_URL", srv.URL)

	out, err := env.run("sync")
	require.NoError(t, err)
	assert.Contains(t, out, "0 pushed, 0 pulled")
}

func TestSyncLocked(t *testing.T) {
	srv := httptest.NewServer(memory.New().Handler())
	defer srv.Close()

	env := newCLIEnv(t)
	lock := flock.New(env.db + ".lock")
	locked, err := lock.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer lock.Unlock()

	resp, err := env.runJSON("--remote", srv.URL, "sync")
	require.Error(t, err)
	assert.Equal(t, ErrCodeInProgress, resp.Error.Code)
}

func TestSyncFailure(t *testing.T) {
	srv := httptest.NewServer(memory.New().Handler())
	url := srv.URL
	srv.Close() // nothing listens here anymore

	env := newCLIEnv(t)
	_, err := env.run("add", "Buy milk")
	require.NoError(t, err)

	cfg := filepath.Join(t.TempDir(), "tasksync.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("sync:\n  max_attempts: 1\n"), 0o644))

	resp, err := env.runJSON("--config", cfg, "--remote", url, "sync")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, ErrCodeSync, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "sync push failed (batch 1)")
}

func TestPurge(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("purge", "--older-than", "24h")
	require.NoError(t, err)
	assert.Contains(t, out, "Purged 0 tombstone(s) older than 24h0m0s")

	resp, err := env.runJSON("purge")
	require.NoError(t, err)
	assert.Equal(t, "720h0m0s", dataMap(t, resp)["retention"])
}

func TestConflictsEmpty(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run("conflicts")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks.")
}

func TestConflicts_OnlyPreviouslySyncedEdits(t *testing.T) {
	authority := memory.New()
	srv := httptest.NewServer(authority.Handler())
	defer srv.Close()
	env := newCLIEnv(t)

	// The authority already holds a task under the id the replica will assign.
	synced := testutil.DefaultStart
	authority.Put(task.Task{ID: "task-1", Title: "Remote", CreatedAt: synced, UpdatedAt: synced, LastSyncAt: &synced})

	env.clock.Advance(time.Minute)
	_, err := env.run("add", "Local")
	require.NoError(t, err)

	resp, err := env.runJSON("--remote", srv.URL, "sync")
	require.NoError(t, err)
	assert.Equal(t, []any{"task-1"}, dataMap(t, resp)["conflictedIds"])

	out, err := env.run("conflicts")
	require.NoError(t, err)
	assert.Contains(t, out, "No tasks.", "never-synced tasks are reported by sync only")

	cmd := NewConflictsCommand(&RootOptions{})
	assert.Contains(t, cmd.Long, "never been synced are not listed")
}

func TestServe(t *testing.T) {
	env := newCLIEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // stop as soon as the server is up

	opts := &RootOptions{Clock: env.clock}
	cmd := newRootCommand(opts)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--db", env.db, "serve", "--addr", "127.0.0.1:0"})

	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Serving on http://127.0.0.1:")
}
