package tracing

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/sync/semaphore"
)

// PermitGate is the bounded counter of in-flight tracing calls
// (spec.md §4.1): every RPC handler acquires one permit before doing
// any work and releases it on any exit, successful or not. Acquisition
// queues FIFO under contention via semaphore.Weighted, and is never
// refused — a caller blocks until a permit frees up rather than
// receiving a backpressure error, so the node's CPU and state-DB load
// stay bounded without surfacing a new error case to RPC clients.
type PermitGate struct {
	sem *semaphore.Weighted
}

// NewPermitGate constructs a gate admitting at most capacity
// concurrent tracing calls.
func NewPermitGate(capacity int64) *PermitGate {
	return &PermitGate{sem: semaphore.NewWeighted(capacity)}
}

// Permit is a single acquired slot; call Release exactly once.
type Permit struct {
	sem *semaphore.Weighted
}

func (p *Permit) Release() {
	p.sem.Release(1)
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (g *PermitGate) Acquire(ctx context.Context) (*Permit, error) {
	start := time.Now()
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if wait := time.Since(start); wait > 100*time.Millisecond {
		log.Debug("tracing call waited for a permit", "wait", wait)
	}
	return &Permit{sem: g.sem}, nil
}
