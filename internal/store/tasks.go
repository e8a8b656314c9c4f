package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/roach88/tasksync/internal/task"
)

// CreateTask validates in and inserts a new dirty record with a fresh id.
// createdAt and updatedAt are both set to the store clock.
func (s *Store) CreateTask(ctx context.Context, in task.CreateInput) (task.Task, error) {
	t, err := task.New(in, s.ids.Generate(), s.now())
	if err != nil {
		return task.Task{}, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		taskArgs(t)...,
	)
	if err != nil {
		return task.Task{}, storageErr("create task", err)
	}
	return t, nil
}

// UpdateTask applies a partial update to a live record.
//
// Only fields whose Optional is set change. Every call is a mutation: updatedAt
// moves strictly forward (see task.Touch) and dirty is set, even when no field
// is set.
// Returns ErrNotFound if the record is missing or soft-deleted.
func (s *Store) UpdateTask(ctx context.Context, id string, in task.UpdateInput) (task.Task, error) {
	if err := in.Validate(); err != nil {
		return task.Task{}, err
	}

	var updated task.Task
	err := s.withTx(ctx, "update task", func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := task.Apply(&t, in, s.now()); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE tasks
			SET title = ?, notes = ?, isDone = ?, dueAt = ?, updatedAt = ?, dirty = 1
			WHERE id = ?
		`,
			t.Title,
			nullString(t.Notes),
			boolInt(t.IsDone),
			nullTime(t.DueAt),
			task.FormatTime(t.UpdatedAt),
			t.ID,
		)
		if err != nil {
			return storageErr("update task", err)
		}
		updated = t
		return nil
	})
	if err != nil {
		return task.Task{}, err
	}
	return updated, nil
}

// SoftDelete turns a live record into a dirty tombstone. The tombstone's
// updatedAt moves strictly forward like any other local mutation.
// Returns false if the record is absent or already deleted.
func (s *Store) SoftDelete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := s.withTx(ctx, "soft delete", func(tx *sql.Tx) error {
		t, err := getTask(ctx, tx, id, false)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		t.Touch(s.now())

		if _, err := tx.ExecContext(ctx, `
			UPDATE tasks SET deleted = 1, dirty = 1, updatedAt = ?
			WHERE id = ? AND deleted = 0
		`, task.FormatTime(t.UpdatedAt), id); err != nil {
			return storageErr("soft delete", err)
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

// getTask reads one record. Tombstones are returned only when includeDeleted is set.
func getTask(ctx context.Context, q querier, id string, includeDeleted bool) (task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}

	t, err := scanTask(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return task.Task{}, ErrNotFound
	}
	if err != nil {
		return task.Task{}, storageErr("get task", err)
	}
	return t, nil
}
