// Package task defines the task record shared by the local store, the remote
// gateway and the sync engine.
//
// A Task carries both user fields (title, notes, completion, due date) and the
// bookkeeping the sync engine relies on:
//   - Dirty marks a local mutation that has not been acknowledged by the authority
//   - Deleted is a soft-delete tombstone kept until it has been pushed
//   - LastSyncAt records when the authority last confirmed the record
//
// All timestamps are UTC with millisecond precision. They are rendered with
// TimeLayout so that lexical order equals time order, both in SQLite and on
// the wire.
//
// This package imports nothing internal.
package task
