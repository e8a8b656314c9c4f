package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/tasksync/internal/task"
	"github.com/roach88/tasksync/internal/testutil"
)

// createTestStore creates a new store in a temp dir with a fixed clock and
// sequential ids (task-1, task-2, ...).
func createTestStore(t *testing.T) (*Store, *testutil.FixedClock) {
	t.Helper()
	clk := testutil.NewFixedClock(testutil.DefaultStart)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clk), WithIDGenerator(testutil.NewSequenceGenerator("task")))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clk
}

// mustCreate creates a task with the given title.
func mustCreate(t *testing.T, s *Store, title string) task.Task {
	t.Helper()
	tk, err := s.CreateTask(context.Background(), task.CreateInput{Title: title})
	require.NoError(t, err)
	return tk
}

// installFailingTrigger makes any UPDATE or DELETE touching id abort, to
// simulate a storage failure in the middle of a batch.
func installFailingTrigger(t *testing.T, s *Store, id string) {
	t.Helper()
	_, err := s.db.Exec(`
		CREATE TRIGGER fail_update BEFORE UPDATE ON tasks WHEN OLD.id = '` + id + `'
		BEGIN SELECT RAISE(ABORT, 'simulated failure'); END;
	`)
	require.NoError(t, err)
	_, err = s.db.Exec(`
		CREATE TRIGGER fail_delete BEFORE DELETE ON tasks WHEN OLD.id = '` + id + `'
		BEGIN SELECT RAISE(ABORT, 'simulated failure'); END;
	`)
	require.NoError(t, err)
}
