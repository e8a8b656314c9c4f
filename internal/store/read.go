package store

import (
	"context"

	"github.com/roach88/tasksync/internal/task"
)

// Stats summarizes the replica.
type Stats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Completed  int `json:"completed"`
	Deleted    int `json:"deleted"`
	Unsynced   int `json:"unsynced"`
	Conflicted int `json:"conflicted"`
}

// conflictedClause matches records edited locally since their last confirmed sync.
const conflictedClause = `dirty = 1 AND lastSyncAt IS NOT NULL AND updatedAt > lastSyncAt`

// GetTask returns a live record. Returns ErrNotFound for absent or deleted ids.
func (s *Store) GetTask(ctx context.Context, id string) (task.Task, error) {
	return getTask(ctx, s.db, id, false)
}

// LookupTask returns a record whether or not it is a tombstone.
func (s *Store) LookupTask(ctx context.Context, id string) (task.Task, error) {
	return getTask(ctx, s.db, id, true)
}

// ListTasks returns live records matching opts, newest first.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOptions) ([]task.Task, error) {
	where, err := filterClause(opts.Filter)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + taskColumns + ` FROM tasks WHERE deleted = 0` + where +
		` ORDER BY createdAt DESC, id ASC`
	var args []any
	switch {
	case opts.Limit > 0:
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	case opts.Offset > 0:
		// SQLite requires a LIMIT before OFFSET; -1 means unbounded.
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, storageErr("list tasks", err)
	}
	return tasks, nil
}

// CountTasks counts live records matching filter.
func (s *Store) CountTasks(ctx context.Context, filter task.Filter) (int, error) {
	where, err := filterClause(filter)
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE deleted = 0`+where).Scan(&n); err != nil {
		return 0, storageErr("count tasks", err)
	}
	return n, nil
}

// ListDirty returns every record awaiting push, tombstones included,
// oldest change first.
func (s *Store) ListDirty(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE dirty = 1
		ORDER BY updatedAt ASC, id ASC
	`)
	if err != nil {
		return nil, storageErr("list dirty", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, storageErr("list dirty", err)
	}
	return tasks, nil
}

// CountDirty returns the number of records awaiting push.
func (s *Store) CountDirty(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE dirty = 1`).Scan(&n); err != nil {
		return 0, storageErr("count dirty", err)
	}
	return n, nil
}

// ListConflicted returns live records edited since their last confirmed sync,
// most recently edited first.
func (s *Store) ListConflicted(ctx context.Context) ([]task.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE deleted = 0 AND `+conflictedClause+`
		ORDER BY updatedAt DESC, id ASC
	`)
	if err != nil {
		return nil, storageErr("list conflicted", err)
	}
	tasks, err := scanTasks(rows)
	if err != nil {
		return nil, storageErr("list conflicted", err)
	}
	return tasks, nil
}

// Stats returns record counts for the whole replica.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(deleted = 0), 0),
			COALESCE(SUM(deleted = 0 AND isDone = 1), 0),
			COALESCE(SUM(deleted = 1), 0),
			COALESCE(SUM(dirty = 1), 0),
			COALESCE(SUM(deleted = 0 AND `+conflictedClause+`), 0)
		FROM tasks
	`).Scan(&st.Total, &st.Active, &st.Completed, &st.Deleted, &st.Unsynced, &st.Conflicted)
	if err != nil {
		return Stats{}, storageErr("stats", err)
	}
	return st, nil
}

func filterClause(f task.Filter) (string, error) {
	f, err := task.ParseFilter(string(f))
	if err != nil {
		return "", err
	}
	switch f {
	case task.FilterPending:
		return ` AND isDone = 0`, nil
	case task.FilterCompleted:
		return ` AND isDone = 1`, nil
	}
	return "", nil
}
