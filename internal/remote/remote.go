// Package remote defines the boundary between the sync engine and the
// authority that holds the shared copy of every task.
//
// The wire contract is two calls:
//
//	GET  /tasks?changedSince=<ISO>&limit=<n>  -> {"items": [...], "nextCursor": "<ISO>"?}
//	POST /tasks/batch {"upserts": [...], "deletes": [{"id", "updatedAt"}]}
//	                                          -> {"success": bool, "conflictedIds": [...]?}
//
// Pull items are ordered by updatedAt ascending. A non-empty nextCursor means
// more pages follow and is the changedSince value for the next request.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/tasksync/internal/task"
)

// DefaultPageSize is the pull page size used when none is configured.
const DefaultPageSize = 100

// Gateway is the transport to the authority. Implementations must be safe
// for use by one sync session at a time.
type Gateway interface {
	Pull(ctx context.Context, changedSince time.Time, limit int) (PullPage, error)
	Push(ctx context.Context, req PushRequest) (PushResponse, error)
}

// PullPage is one page of remote changes.
type PullPage struct {
	Items      []task.Task `json:"items"`
	NextCursor string      `json:"nextCursor,omitempty"`
}

// HasMore reports whether another page follows.
func (p PullPage) HasMore() bool {
	return p.NextCursor != ""
}

// PushRequest carries one batch of local changes.
type PushRequest struct {
	Upserts []task.Task `json:"upserts"`
	Deletes []DeleteRef `json:"deletes"`
}

// NewPushRequest splits batch into upserts and tombstone deletes, keeping order.
func NewPushRequest(batch []task.Task) PushRequest {
	req := PushRequest{
		Upserts: make([]task.Task, 0, len(batch)),
		Deletes: make([]DeleteRef, 0),
	}
	for _, t := range batch {
		if t.Deleted {
			req.Deletes = append(req.Deletes, DeleteRef{ID: t.ID, UpdatedAt: t.UpdatedAt})
			continue
		}
		req.Upserts = append(req.Upserts, t)
	}
	return req
}

// Len returns the number of records in the request.
func (r PushRequest) Len() int {
	return len(r.Upserts) + len(r.Deletes)
}

// DeleteRef identifies a tombstone being pushed.
type DeleteRef struct {
	ID        string
	UpdatedAt time.Time
}

type wireDeleteRef struct {
	ID        string `json:"id"`
	UpdatedAt string `json:"updatedAt"`
}

// MarshalJSON encodes UpdatedAt with task.TimeLayout.
func (d DeleteRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDeleteRef{ID: d.ID, UpdatedAt: task.FormatTime(d.UpdatedAt)})
}

// UnmarshalJSON decodes the shape produced by MarshalJSON.
func (d *DeleteRef) UnmarshalJSON(data []byte) error {
	var w wireDeleteRef
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	at, err := task.ParseTime(w.UpdatedAt)
	if err != nil {
		return err
	}
	*d = DeleteRef{ID: w.ID, UpdatedAt: at}
	return nil
}

// PushResponse is the authority's answer to a push. ConflictedIDs lists
// records the authority refused because it holds a different version.
type PushResponse struct {
	Success       bool     `json:"success"`
	ConflictedIDs []string `json:"conflictedIds,omitempty"`
}

// TransportError reports a failed call to the authority: network failure,
// non-2xx status, undecodable body or an explicit rejection.
type TransportError struct {
	Op         string // "pull" or "push"
	StatusCode int    // 0 when no HTTP response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrRejected is wrapped by the TransportError returned for a push the
// authority answered with success=false.
var ErrRejected = errors.New("push rejected by authority")

// IsTransportError checks if an error is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
