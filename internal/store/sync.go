package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/roach88/tasksync/internal/task"
)

const upsertTaskSQL = `
	INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		notes = excluded.notes,
		isDone = excluded.isDone,
		dueAt = excluded.dueAt,
		createdAt = excluded.createdAt,
		updatedAt = excluded.updatedAt,
		dirty = excluded.dirty,
		deleted = excluded.deleted,
		lastSyncAt = excluded.lastSyncAt
`

// RemoteWrite is one change applied on behalf of the authority: an upsert
// of Task written verbatim, or a physical delete of Task.ID.
type RemoteWrite struct {
	Task   task.Task
	Delete bool
}

// ResolveFunc decides what to write for one incoming remote record given
// the current local row (nil when absent). Returning false skips the record.
type ResolveFunc func(local *task.Task, remote task.Task) (RemoteWrite, bool)

// UpsertFromRemote writes t verbatim, including its dirty and lastSyncAt values.
func (s *Store) UpsertFromRemote(ctx context.Context, t task.Task) error {
	if _, err := s.db.ExecContext(ctx, upsertTaskSQL, taskArgs(t)...); err != nil {
		return storageErr("upsert from remote", err)
	}
	return nil
}

// ApplyRemoteBatch applies writes in one transaction and returns how many
// rows changed. Either every write lands or none does.
func (s *Store) ApplyRemoteBatch(ctx context.Context, writes []RemoteWrite) (int, error) {
	var applied int
	err := s.withTx(ctx, "apply remote batch", func(tx *sql.Tx) error {
		for _, w := range writes {
			n, err := applyWrite(ctx, tx, w)
			if err != nil {
				return storageErr("apply remote batch", err)
			}
			applied += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// ApplyRemotePage resolves each remote record against the local row read in
// the same transaction, then applies the resulting writes. A local edit can
// therefore not slip in between the read and the write. Returns the number
// of writes applied.
func (s *Store) ApplyRemotePage(ctx context.Context, items []task.Task, resolve ResolveFunc) (int, error) {
	var applied int
	err := s.withTx(ctx, "apply remote page", func(tx *sql.Tx) error {
		for _, item := range items {
			var local *task.Task
			t, err := getTask(ctx, tx, item.ID, true)
			switch {
			case err == nil:
				local = &t
			case !errors.Is(err, ErrNotFound):
				return err
			}

			w, ok := resolve(local, item)
			if !ok {
				continue
			}
			if _, err := applyWrite(ctx, tx, w); err != nil {
				return storageErr("apply remote page", err)
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

func applyWrite(ctx context.Context, tx *sql.Tx, w RemoteWrite) (int, error) {
	var (
		res sql.Result
		err error
	)
	if w.Delete {
		res, err = tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, w.Task.ID)
	} else {
		res, err = tx.ExecContext(ctx, upsertTaskSQL, taskArgs(w.Task)...)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// MarkSyncedBatch clears dirty and stamps lastSyncAt on every id in one
// transaction. Returns the number of rows updated; unknown ids are ignored.
func (s *Store) MarkSyncedBatch(ctx context.Context, ids []string, syncedAt time.Time) (int, error) {
	stamp := task.FormatTime(syncedAt)
	var marked int
	err := s.withTx(ctx, "mark synced", func(tx *sql.Tx) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, `UPDATE tasks SET dirty = 0, lastSyncAt = ? WHERE id = ?`, stamp, id)
			if err != nil {
				return storageErr("mark synced", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return storageErr("mark synced", err)
			}
			marked += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// AcknowledgePush records that the authority accepted batch.
//
// Live records are marked synced at syncedAt; tombstones are physically
// removed. Each row is matched on the updatedAt it had when it was read for
// the push, so a record edited while the push was in flight stays dirty and
// goes out with the next sync. Returns the number of rows acknowledged.
func (s *Store) AcknowledgePush(ctx context.Context, batch []task.Task, syncedAt time.Time) (int, error) {
	stamp := task.FormatTime(syncedAt)
	var acked int
	err := s.withTx(ctx, "acknowledge push", func(tx *sql.Tx) error {
		for _, t := range batch {
			var (
				res sql.Result
				err error
			)
			if t.Deleted {
				res, err = tx.ExecContext(ctx, `
					DELETE FROM tasks WHERE id = ? AND deleted = 1 AND updatedAt = ?
				`, t.ID, task.FormatTime(t.UpdatedAt))
			} else {
				res, err = tx.ExecContext(ctx, `
					UPDATE tasks SET dirty = 0, lastSyncAt = ?
					WHERE id = ? AND deleted = 0 AND updatedAt = ?
				`, stamp, t.ID, task.FormatTime(t.UpdatedAt))
			}
			if err != nil {
				return storageErr("acknowledge push", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return storageErr("acknowledge push", err)
			}
			acked += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return acked, nil
}

// PurgeTombstones physically removes tombstones that have already been pushed
// and were last touched before olderThan.
func (s *Store) PurgeTombstones(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE deleted = 1 AND dirty = 0 AND updatedAt < ?
	`, task.FormatTime(olderThan))
	if err != nil {
		return 0, storageErr("purge tombstones", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("purge tombstones", err)
	}
	return int(n), nil
}
