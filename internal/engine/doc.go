// Package engine implements the sync orchestrator: one bidirectional
// reconciliation session between the local store and the authority.
//
// ARCHITECTURE:
//
// A session runs two phases in order:
//
// Push: every dirty record (tombstones included) is read oldest change
// first, split into batches and sent through the gateway. Each batch is
// retried with backoff on its own budget. When the authority accepts a
// batch, its records are acknowledged in one transaction: live records are
// marked synced and pushed tombstones are removed. Records the authority
// refuses stay dirty and are reported as conflicts. If a batch exhausts its
// retries the session aborts without pulling.
//
// Pull: pages of remote changes since the lastPullAt cursor are fetched,
// each record is resolved against the local row (see package conflict) and
// the page is applied in one transaction. Committed pages are kept even if
// a later page fails. On full success lastPullAt moves to the completion
// time of the session.
//
// CONCURRENCY:
//
// At most one session runs per Orchestrator. A concurrent Sync call returns
// ErrAlreadyInProgress immediately instead of queueing. The exclusive token
// is released on every exit path.
//
// Only gateway calls block; they receive the caller's context.
package engine
