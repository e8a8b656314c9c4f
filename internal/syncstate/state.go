// Package syncstate tracks the user-visible state of synchronization:
// whether a session is running, whether the last one failed, connectivity
// and how many local changes are waiting.
//
// Transition is a pure function from (State, Event, now) to State. Tracker
// wraps it with a mutex, an injected clock and change listeners. State is
// never persisted; a new process starts from Initial.
package syncstate

import (
	"fmt"
	"time"

	"github.com/roach88/tasksync/internal/retry"
)

const (
	// RetryBaseDelay is the first suggested retry delay after a failure.
	RetryBaseDelay = time.Second

	// RetryMaxDelay caps the suggested retry delay.
	RetryMaxDelay = 30 * time.Second
)

// Status is the coarse sync status.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSyncing Status = "syncing"
	StatusError   Status = "error"
)

// State is a snapshot of the sync session state.
type State struct {
	Status        Status     `json:"status"`
	IsOnline      bool       `json:"isOnline"`
	RetryCount    int        `json:"retryCount"`
	NextRetryAt   *time.Time `json:"nextRetryAt,omitempty"`
	UnsyncedCount int        `json:"unsyncedCount"`
	LastSyncAt    *time.Time `json:"lastSyncAt,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Initial is the state at process start: idle and offline.
func Initial() State {
	return State{Status: StatusIdle}
}

// CanSync reports whether starting a session now makes sense.
func (s State) CanSync() bool {
	return s.IsOnline && s.Status != StatusSyncing && s.UnsyncedCount > 0
}

// StatusText renders the state as a short label.
func (s State) StatusText() string {
	switch {
	case !s.IsOnline:
		return "Offline"
	case s.Status == StatusSyncing:
		return "Syncing..."
	case s.Status == StatusError:
		return "Sync Error"
	case s.UnsyncedCount == 0:
		return "All synced"
	}
	return fmt.Sprintf("%d unsynced", s.UnsyncedCount)
}

// RetryDelay is the suggested wait before retrying after retryCount
// consecutive failures: min(1s * 2^(retryCount-1), 30s).
func RetryDelay(retryCount int) time.Duration {
	return retry.Backoff(retryCount, RetryBaseDelay, RetryMaxDelay)
}

// Event is an input to Transition.
type Event interface {
	event()
}

// SyncStarted is dispatched when a session begins.
type SyncStarted struct{}

// SyncSucceeded is dispatched when a session completes.
type SyncSucceeded struct{}

// SyncFailed is dispatched when a session aborts.
type SyncFailed struct {
	Err error
}

// ConnectivityChanged is dispatched when the network state changes.
type ConnectivityChanged struct {
	Online bool
}

// UnsyncedCountChanged carries a fresh count of dirty records.
type UnsyncedCountChanged struct {
	Count int
}

// ErrorCleared is dispatched when the user dismisses an error.
type ErrorCleared struct{}

func (SyncStarted) event()          {}
func (SyncSucceeded) event()        {}
func (SyncFailed) event()           {}
func (ConnectivityChanged) event()  {}
func (UnsyncedCountChanged) event() {}
func (ErrorCleared) event()         {}

// Transition applies ev to s at time now and returns the new state.
// Unknown events leave the state unchanged.
func Transition(s State, ev Event, now time.Time) State {
	switch e := ev.(type) {
	case SyncStarted:
		s.Status = StatusSyncing
		s.Error = ""

	case SyncSucceeded:
		s.Status = StatusIdle
		s.Error = ""
		s.clearRetry()
		at := now
		s.LastSyncAt = &at

	case SyncFailed:
		s.Status = StatusError
		s.Error = "sync failed"
		if e.Err != nil {
			s.Error = e.Err.Error()
		}
		s.RetryCount++
		next := now.Add(RetryDelay(s.RetryCount))
		s.NextRetryAt = &next

	case ConnectivityChanged:
		// Going offline never interrupts a running session.
		wasOffline := !s.IsOnline
		s.IsOnline = e.Online
		if e.Online && wasOffline {
			s.clearError()
		}

	case UnsyncedCountChanged:
		if e.Count >= 0 {
			s.UnsyncedCount = e.Count
		}

	case ErrorCleared:
		s.clearError()
	}
	return s
}

func (s *State) clearRetry() {
	s.RetryCount = 0
	s.NextRetryAt = nil
}

func (s *State) clearError() {
	s.Error = ""
	s.clearRetry()
	if s.Status == StatusError {
		s.Status = StatusIdle
	}
}
