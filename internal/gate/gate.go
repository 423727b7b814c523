// Package gate bounds how many completion requests may be in flight at once.
package gate

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultCapacity is the number of concurrent tickets a Gate admits by default
const DefaultCapacity = 3

// Gate is a counting admission primitive. Acquire blocks, so it must only be
// called from background workers, never from the presentation loop.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int
	inFlight atomic.Int64
}

// Ticket is a permit returned by Acquire. It must be released exactly once.
type Ticket struct {
	gate     *Gate
	released atomic.Bool
}

// New creates a gate admitting at most capacity tickets. Values below 1 are
// treated as 1.
func New(capacity int) *Gate {
	if capacity < 1 {
		capacity = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Acquire waits until a ticket is available. It only fails when ctx is done.
func (g *Gate) Acquire(ctx context.Context) (*Ticket, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire request ticket: %w", err)
	}
	g.inFlight.Add(1)
	return &Ticket{gate: g}, nil
}

// Release returns the ticket to the gate. Releasing twice is a programming
// error and panics.
func (t *Ticket) Release() {
	if !t.released.CompareAndSwap(false, true) {
		panic("gate: ticket released twice")
	}
	t.gate.inFlight.Add(-1)
	t.gate.sem.Release(1)
}

// Do runs fn while holding a ticket. The ticket is released on every exit
// path of fn, including a panic.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	ticket, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer ticket.Release()

	return fn(ctx)
}

// Capacity returns the maximum number of concurrent tickets
func (g *Gate) Capacity() int {
	return g.capacity
}

// InFlight returns the number of tickets currently held
func (g *Gate) InFlight() int {
	return int(g.inFlight.Load())
}
