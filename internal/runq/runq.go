// Package runq provides the engine's runnable queue: the list of procedure
// IDs that should be executed, now or after a delay.
package runq

import (
	"context"
	"time"
)

// Item is one scheduled execution of a procedure.
type Item struct {
	ProcID string

	// NotBefore is the earliest time this item should be eligible for
	// processing. Zero value means "immediately".
	NotBefore time.Time

	EnqueuedAt time.Time
}

// Queue is a simple runnable queue backed by a buffered channel. Delayed
// items are delivered by a timer when they become eligible. It is safe for
// concurrent use.
type Queue struct {
	ch chan Item
}

// New creates a new queue with the given capacity.
// For tests and small deployments, a modest capacity (e.g. 1024) is fine.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{
		ch: make(chan Item, capacity),
	}
}

// Push schedules an item. Items with a future NotBefore are held back by a
// timer and delivered when eligible; everything else is delivered in FIFO
// order.
func (q *Queue) Push(it Item) {
	if it.EnqueuedAt.IsZero() {
		it.EnqueuedAt = time.Now()
	}
	d := time.Until(it.NotBefore)
	if d <= 0 {
		q.ch <- it
		return
	}
	time.AfterFunc(d, func() {
		q.ch <- it
	})
}

// Pop removes and returns the next eligible item, blocking until one is
// available or the context is cancelled.
func (q *Queue) Pop(ctx context.Context) (*Item, error) {
	select {
	case it := <-q.ch:
		return &it, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the approximate number of immediately eligible items.
func (q *Queue) Len() int {
	return len(q.ch)
}
