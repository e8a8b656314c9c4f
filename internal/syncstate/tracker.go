package syncstate

import (
	"reflect"
	"sync"

	"github.com/roach88/tasksync/internal/clock"
)

// Tracker holds the current State and notifies listeners on change.
//
// Thread-safety: All methods are safe for concurrent use. Listeners are
// called synchronously, outside the lock, in subscription order.
type Tracker struct {
	mu        sync.Mutex
	clock     clock.Clock
	state     State
	listeners []listener
	nextID    int
}

type listener struct {
	id int
	fn func(State)
}

// NewTracker creates a tracker in the Initial state.
func NewTracker(c clock.Clock) *Tracker {
	if c == nil {
		c = clock.System{}
	}
	return &Tracker{clock: c, state: Initial()}
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Dispatch applies ev and returns the new state. Listeners run only when
// the state changed.
func (t *Tracker) Dispatch(ev Event) State {
	t.mu.Lock()
	prev := t.state
	next := Transition(prev, ev, t.clock.Now())
	t.state = next
	var fns []func(State)
	if !reflect.DeepEqual(prev, next) {
		for _, l := range t.listeners {
			fns = append(fns, l.fn)
		}
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	return next
}

// Subscribe registers fn for state changes and returns a func that removes it.
func (t *Tracker) Subscribe(fn func(State)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.listeners = append(t.listeners, listener{id: id, fn: fn})

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, l := range t.listeners {
			if l.id == id {
				t.listeners = append(t.listeners[:i], t.listeners[i+1:]...)
				return
			}
		}
	}
}
