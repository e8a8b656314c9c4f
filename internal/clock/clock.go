// Package clock provides the wall-clock source used to stamp records and
// sync sessions.
//
// Every timestamp in tasksync comes from a Clock so that tests can run
// against a deterministic time source (see testutil.FixedClock).
package clock

import "time"

// Clock returns the current time.
//
// Implementations must return UTC instants with millisecond precision so that
// values round-trip through the ISO text columns unchanged.
type Clock interface {
	Now() time.Time
}

// System reads the process wall clock.
//
// Thread-safety: System is stateless and safe for concurrent use.
type System struct{}

// Now returns time.Now in UTC, truncated to milliseconds.
func (System) Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Func adapts a plain function to the Clock interface.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}
