// Package store provides SQLite-backed durable storage for the local replica.
//
// The store holds two tables:
//   - tasks: task records with their sync bookkeeping (dirty, deleted, lastSyncAt)
//   - sync_metadata: key/value cursors owned by the sync engine
//
// # Invariants
//
// Local mutations (CreateTask, UpdateTask, SoftDelete) always set dirty=1 and
// move updatedAt forward, never backwards. Only the sync engine clears dirty,
// through AcknowledgePush, MarkSyncedBatch or the remote apply paths.
//
// Multi-row writes run in one transaction: either every row changes or none.
//
// Deterministic ordering:
//   - ListTasks: ORDER BY createdAt DESC, id ASC
//   - ListDirty: ORDER BY updatedAt ASC, id ASC
//
// Timestamps are stored as ISO-8601 text (task.TimeLayout) so that string
// comparison in SQL matches time order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
