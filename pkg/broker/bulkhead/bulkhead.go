// Package bulkhead implements the broker's bounded-concurrency admission
// controller (spec §4.6): at most MaxConcurrent operations run at once, with
// up to MaxQueueSize more allowed to wait for a bounded deadline before
// being rejected.
package bulkhead

import (
	"context"
	"sync"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Options configures a Bulkhead (§4.15; constructors do not call Validate).
type Options struct {
	MaxConcurrent  int
	MaxQueueSize   int
	AcquireTimeout time.Duration
}

// Validate checks Options against §4.15.
func (o Options) Validate() error {
	if o.MaxConcurrent <= 0 {
		return broker.ErrInvalidOptions("bulkhead.max_concurrent must be positive")
	}
	if o.MaxQueueSize < 0 {
		return broker.ErrInvalidOptions("bulkhead.max_queue_size must not be negative")
	}
	if o.AcquireTimeout <= 0 {
		return broker.ErrInvalidOptions("bulkhead.acquire_timeout must be positive")
	}
	return nil
}

// Bulkhead bounds concurrent admission to a resource.
type Bulkhead struct {
	opts    Options
	slots   chan struct{}
	waiting sync.Mutex
	queued  int
}

// New constructs a Bulkhead.
func New(opts Options) *Bulkhead {
	return &Bulkhead{opts: opts, slots: make(chan struct{}, opts.MaxConcurrent)}
}

// Acquire blocks until a concurrency slot is free, the bounded
// AcquireTimeout elapses (returning Timeout), the queue is already at
// MaxQueueSize (returning BulkheadFull immediately), or ctx is cancelled.
// The returned release func must be called exactly once to free the slot.
func (bh *Bulkhead) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case bh.slots <- struct{}{}:
		return func() { <-bh.slots }, nil
	default:
	}

	bh.waiting.Lock()
	if bh.queued >= bh.opts.MaxQueueSize {
		bh.waiting.Unlock()
		return nil, broker.ErrBulkheadFull()
	}
	bh.queued++
	bh.waiting.Unlock()

	defer func() {
		bh.waiting.Lock()
		bh.queued--
		bh.waiting.Unlock()
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, bh.opts.AcquireTimeout)
	defer cancel()

	select {
	case bh.slots <- struct{}{}:
		return func() { <-bh.slots }, nil
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return nil, broker.ErrCancelled()
		}
		return nil, broker.ErrTimeout("bulkhead acquire")
	}
}

// InFlight returns the number of currently held slots.
func (bh *Bulkhead) InFlight() int {
	return len(bh.slots)
}
