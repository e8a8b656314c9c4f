package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/roach88/tasksync/internal/task"
)

// Sync metadata keys. Both are seeded with the epoch by the schema migration.
const (
	MetaLastPullAt = "lastPullAt"
	MetaLastPushAt = "lastPushAt"
)

// GetMeta returns the value stored under key and whether it exists.
func (s *Store) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sync_metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, storageErr("get metadata", err)
	}
	return value, true, nil
}

// SetMeta upserts key, stamping the entry with the store clock.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (key, value, updatedAt) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = excluded.updatedAt
	`, key, value, task.FormatTime(s.now()))
	if err != nil {
		return storageErr("set metadata", err)
	}
	return nil
}

// AllMeta returns every metadata entry.
func (s *Store) AllMeta(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM sync_metadata ORDER BY key`)
	if err != nil {
		return nil, storageErr("all metadata", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, storageErr("all metadata", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("all metadata", err)
	}
	return meta, nil
}

// MetaTime reads key as a timestamp. Absent keys read as the epoch.
func (s *Store) MetaTime(ctx context.Context, key string) (time.Time, error) {
	v, ok, err := s.GetMeta(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	if !ok || v == "" {
		return task.Epoch, nil
	}
	t, err := task.ParseTime(v)
	if err != nil {
		return time.Time{}, storageErr("metadata "+key, err)
	}
	return t, nil
}
