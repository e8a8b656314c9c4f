package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tasksync/internal/task"
	"github.com/roach88/tasksync/internal/testutil"
)

func TestUpsertFromRemote_WritesVerbatim(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	synced := testutil.DefaultStart.Add(time.Hour)
	remote := task.Task{
		ID:         "remote-1",
		Title:      "From elsewhere",
		CreatedAt:  testutil.DefaultStart,
		UpdatedAt:  testutil.DefaultStart.Add(time.Minute),
		LastSyncAt: &synced,
	}
	require.NoError(t, s.UpsertFromRemote(ctx, remote))

	got, err := s.GetTask(ctx, remote.ID)
	require.NoError(t, err)
	assert.Equal(t, remote, got)

	remote.Title = "Renamed"
	remote.IsDone = true
	require.NoError(t, s.UpsertFromRemote(ctx, remote))
	got, err = s.GetTask(ctx, remote.ID)
	require.NoError(t, err)
	assert.Equal(t, remote, got)
}

func TestApplyRemoteBatch(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	existing := mustCreate(t, s, "to be removed")
	incoming := task.Task{ID: "remote-1", Title: "new", CreatedAt: testutil.DefaultStart, UpdatedAt: testutil.DefaultStart}

	n, err := s.ApplyRemoteBatch(ctx, []RemoteWrite{
		{Task: incoming},
		{Task: existing, Delete: true},
		{Task: task.Task{ID: "never-existed"}, Delete: true},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.GetTask(ctx, existing.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTask(ctx, incoming.ID)
	assert.NoError(t, err)
}

func TestApplyRemoteBatch_AllOrNothing(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, "a")
	b := mustCreate(t, s, "b")
	installFailingTrigger(t, s, b.ID)

	a.Title = "a from remote"
	b.Title = "b from remote"
	_, err := s.ApplyRemoteBatch(ctx, []RemoteWrite{{Task: a}, {Task: b}})
	require.Error(t, err)
	assert.True(t, IsStorageError(err))

	got, err := s.GetTask(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Title, "first write rolled back")
}

func TestApplyRemotePage_ResolvesAgainstCurrentRow(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	local := mustCreate(t, s, "local")
	ok, err := s.SoftDelete(ctx, local.ID)
	require.NoError(t, err)
	require.True(t, ok)

	var seen []*task.Task
	items := []task.Task{
		{ID: local.ID, Title: "remote", CreatedAt: testutil.DefaultStart, UpdatedAt: testutil.DefaultStart},
		{ID: "remote-2", Title: "other", CreatedAt: testutil.DefaultStart, UpdatedAt: testutil.DefaultStart},
	}
	n, err := s.ApplyRemotePage(ctx, items, func(l *task.Task, r task.Task) (RemoteWrite, bool) {
		seen = append(seen, l)
		if l != nil {
			return RemoteWrite{}, false
		}
		return RemoteWrite{Task: r}, true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, seen, 2)
	require.NotNil(t, seen[0], "tombstones are visible to the resolver")
	assert.True(t, seen[0].Deleted)
	assert.Nil(t, seen[1])

	_, err = s.GetTask(ctx, "remote-2")
	assert.NoError(t, err)
}

func TestMarkSyncedBatch(t *testing.T) {
	s, clk := createTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, "a")
	b := mustCreate(t, s, "b")
	syncedAt := clk.Advance(time.Minute)

	n, err := s.MarkSyncedBatch(ctx, []string{a.ID, b.ID, "missing"}, syncedAt)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetTask(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, got.Dirty)
	require.NotNil(t, got.LastSyncAt)
	assert.Equal(t, syncedAt, *got.LastSyncAt)
	assert.True(t, got.Synced())
}

func TestMarkSyncedBatch_AllOrNothing(t *testing.T) {
	s, clk := createTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, "a")
	b := mustCreate(t, s, "b")
	c := mustCreate(t, s, "c")
	installFailingTrigger(t, s, b.ID)

	_, err := s.MarkSyncedBatch(ctx, []string{a.ID, b.ID, c.ID}, clk.Now())
	require.Error(t, err)
	assert.True(t, IsStorageError(err))

	n, err := s.CountDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "no record is marked clean when the batch fails")
}

func TestAcknowledgePush(t *testing.T) {
	s, clk := createTestStore(t)
	ctx := context.Background()

	live := mustCreate(t, s, "live")
	gone := mustCreate(t, s, "gone")
	_, err := s.SoftDelete(ctx, gone.ID)
	require.NoError(t, err)

	batch, err := s.ListDirty(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	syncedAt := clk.Advance(time.Second)
	n, err := s.AcknowledgePush(ctx, batch, syncedAt)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.GetTask(ctx, live.ID)
	require.NoError(t, err)
	assert.False(t, got.Dirty)
	assert.Equal(t, syncedAt, *got.LastSyncAt)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE id = ?`, gone.ID).Scan(&count))
	assert.Zero(t, count, "pushed tombstones are physically removed")
}

func TestAcknowledgePush_KeepsConcurrentEdit(t *testing.T) {
	s, clk := createTestStore(t)
	ctx := context.Background()

	a := mustCreate(t, s, "a")
	batch, err := s.ListDirty(ctx)
	require.NoError(t, err)

	// Edited after the batch was read, while the push was in flight.
	clk.Advance(time.Second)
	_, err = s.UpdateTask(ctx, a.ID, task.UpdateInput{Title: task.Some("a2")})
	require.NoError(t, err)

	n, err := s.AcknowledgePush(ctx, batch, clk.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.GetTask(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Dirty)
	assert.Equal(t, "a2", got.Title)
}

func TestAcknowledgePush_AllOrNothing(t *testing.T) {
	s, clk := createTestStore(t)
	ctx := context.Background()

	mustCreate(t, s, "a")
	b := mustCreate(t, s, "b")
	mustCreate(t, s, "c")
	installFailingTrigger(t, s, b.ID)

	batch, err := s.ListDirty(ctx)
	require.NoError(t, err)

	_, err = s.AcknowledgePush(ctx, batch, clk.Now())
	require.Error(t, err)

	n, err := s.CountDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPurgeTombstones(t *testing.T) {
	s, clk := createTestStore(t)
	ctx := context.Background()

	old := mustCreate(t, s, "old")
	unpushed := mustCreate(t, s, "unpushed")
	_, err := s.SoftDelete(ctx, old.ID)
	require.NoError(t, err)
	_, err = s.SoftDelete(ctx, unpushed.ID)
	require.NoError(t, err)

	// Mark only "old" as pushed; it stays a tombstone locally.
	_, err = s.MarkSyncedBatch(ctx, []string{old.ID}, clk.Now())
	require.NoError(t, err)

	clk.Advance(31 * 24 * time.Hour)
	recent := mustCreate(t, s, "recent")
	_, err = s.SoftDelete(ctx, recent.ID)
	require.NoError(t, err)
	_, err = s.MarkSyncedBatch(ctx, []string{recent.ID}, clk.Now())
	require.NoError(t, err)

	n, err := s.PurgeTombstones(ctx, clk.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Deleted, "unpushed and recent tombstones survive")
}
