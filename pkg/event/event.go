// Package event provides the one-shot wake signal that bridges a suspended
// procedure and the transport goroutine that completes it.
package event

import (
	"fmt"
	"sync"

	"github.com/tlahtinen/governor/pkg/api"
)

// Event is a single-waiter, single-fire synchronization primitive. A
// procedure arms it with SuspendIfNotReady before suspending; exactly one
// completion callback fires it with Wake, which hands the waiter to the
// scheduler for re-execution.
//
// An Event is owned exclusively by the procedure that created it and is not
// reused across dispatch attempts; a fresh attempt creates a fresh Event.
type Event struct {
	mu     sync.Mutex
	desc   string
	waiter api.Procedure
	fired  bool
}

// New creates an unarmed event. desc identifies the owner in error messages.
func New(desc string) *Event {
	return &Event{desc: desc}
}

// SuspendIfNotReady registers p as the single waiter. It returns false if
// the event has already fired, in which case the caller should not suspend.
func (e *Event) SuspendIfNotReady(p api.Procedure) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fired {
		return false
	}
	e.waiter = p
	return true
}

// Wake fires the event once, releasing the armed waiter through sched.
//
// Firing twice, or firing with no armed waiter, indicates a collaborator bug
// (a completion callback raced ahead of suspension, or ran twice). Both are
// reported as errors and leave the event state intact.
func (e *Event) Wake(sched api.Scheduler) error {
	e.mu.Lock()
	if e.fired {
		e.mu.Unlock()
		return fmt.Errorf("event %s: fired twice", e.desc)
	}
	if e.waiter == nil {
		e.mu.Unlock()
		return fmt.Errorf("event %s: fired with no armed waiter", e.desc)
	}
	e.fired = true
	w := e.waiter
	e.waiter = nil
	e.mu.Unlock()

	sched.WakeUp(w)
	return nil
}

// Fired reports whether the event has been fired.
func (e *Event) Fired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fired
}
