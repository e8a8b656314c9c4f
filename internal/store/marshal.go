package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/tasksync/internal/task"
)

// taskColumns is the column order shared by every SELECT and INSERT on tasks.
const taskColumns = `id, title, notes, isDone, dueAt, createdAt, updatedAt, dirty, deleted, lastSyncAt`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// taskArgs returns the values for taskColumns, in order.
func taskArgs(t task.Task) []any {
	return []any{
		t.ID,
		t.Title,
		nullString(t.Notes),
		boolInt(t.IsDone),
		nullTime(t.DueAt),
		task.FormatTime(t.CreatedAt),
		task.FormatTime(t.UpdatedAt),
		boolInt(t.Dirty),
		boolInt(t.Deleted),
		nullTime(t.LastSyncAt),
	}
}

func scanTask(r rowScanner) (task.Task, error) {
	var (
		t                        task.Task
		notes, dueAt, lastSyncAt sql.NullString
		createdAt, updatedAt     string
		isDone, dirty, deleted   int
	)
	err := r.Scan(&t.ID, &t.Title, &notes, &isDone, &dueAt, &createdAt, &updatedAt, &dirty, &deleted, &lastSyncAt)
	if err != nil {
		return task.Task{}, err
	}

	t.Notes = notes.String
	t.IsDone = isDone == 1
	t.Dirty = dirty == 1
	t.Deleted = deleted == 1

	if t.CreatedAt, err = task.ParseTime(createdAt); err != nil {
		return task.Task{}, fmt.Errorf("task %s: createdAt: %w", t.ID, err)
	}
	if t.UpdatedAt, err = task.ParseTime(updatedAt); err != nil {
		return task.Task{}, fmt.Errorf("task %s: updatedAt: %w", t.ID, err)
	}
	if t.DueAt, err = parseNullTime(dueAt); err != nil {
		return task.Task{}, fmt.Errorf("task %s: dueAt: %w", t.ID, err)
	}
	if t.LastSyncAt, err = parseNullTime(lastSyncAt); err != nil {
		return task.Task{}, fmt.Errorf("task %s: lastSyncAt: %w", t.ID, err)
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]task.Task, error) {
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: task.FormatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := task.ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
