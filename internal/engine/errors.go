package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/tasksync/internal/remote"
	"github.com/roach88/tasksync/internal/store"
)

// ErrAlreadyInProgress is returned when Sync is called while another session
// is running. It does not affect the running session.
var ErrAlreadyInProgress = errors.New("sync already in progress")

// Phase identifies where a session failed.
type Phase string

const (
	// PhasePush indicates a push batch exhausted its retries.
	PhasePush Phase = "push"

	// PhasePull indicates a pull page exhausted its retries or returned an
	// unusable cursor.
	PhasePull Phase = "pull"

	// PhaseStore indicates a local storage failure during the session.
	PhaseStore Phase = "store"
)

// SyncError is the terminal error of a failed session.
//
// Batch and Page are 1-based and zero when not applicable.
type SyncError struct {
	Phase   Phase
	Batch   int
	Page    int
	Session string
	Err     error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	switch {
	case e.Batch > 0:
		return fmt.Sprintf("sync %s failed (batch %d): %v", e.Phase, e.Batch, e.Err)
	case e.Page > 0:
		return fmt.Sprintf("sync %s failed (page %d): %v", e.Phase, e.Page, e.Err)
	}
	return fmt.Sprintf("sync %s failed: %v", e.Phase, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// PhaseOf returns the phase a session failed in.
// Uses errors.As to handle wrapped errors.
func PhaseOf(err error) (Phase, bool) {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Phase, true
	}
	return "", false
}

// IsTransportError returns true if the session failed talking to the authority.
func IsTransportError(err error) bool {
	return remote.IsTransportError(err)
}

// IsStorageError returns true if the session failed on the local database.
func IsStorageError(err error) bool {
	return store.IsStorageError(err)
}

// IsAlreadyInProgress returns true if the call was refused because another
// session is running.
func IsAlreadyInProgress(err error) bool {
	return errors.Is(err, ErrAlreadyInProgress)
}
