// Package batch implements the broker's per-type accumulator (spec §4.7):
// items are buffered until MaxBatchSize is reached or FlushInterval elapses,
// whichever comes first, then handed to a flush callback as one dispatch.
package batch

import (
	"sync"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Options configures an Accumulator (§4.15; constructors do not call Validate).
type Options struct {
	MaxBatchSize  int
	FlushInterval time.Duration
	// PartialRetry, when true, re-enqueues items a flush reports as Failed
	// instead of dropping them once the batch dispatch returns.
	PartialRetry bool
}

// Validate checks Options against §4.15.
func (o Options) Validate() error {
	if o.MaxBatchSize <= 0 {
		return broker.ErrInvalidOptions("batch.max_batch_size must be positive")
	}
	if o.FlushInterval <= 0 {
		return broker.ErrInvalidOptions("batch.flush_interval must be positive")
	}
	return nil
}

// PartialResult is an alias of broker.BatchResult: the outcome of flushing
// one completed batch, index-aligned with the items FlushFunc received.
type PartialResult = broker.BatchResult

// FlushFunc receives one completed batch and reports which items succeeded
// and which failed. A partial flush (fewer than MaxBatchSize items) happens
// when FlushInterval elapses with items pending.
type FlushFunc func(items []broker.WireMessage) PartialResult

// Accumulator buffers WireMessages for a single type tag until a size or
// time trigger fires.
type Accumulator struct {
	opts  Options
	flush FlushFunc

	mu      sync.Mutex
	pending []broker.WireMessage
	timer   *time.Timer
	closed  bool
}

// New constructs an Accumulator that calls flush on every completed batch.
func New(opts Options, flush FlushFunc) *Accumulator {
	return &Accumulator{opts: opts, flush: flush, pending: make([]broker.WireMessage, 0, opts.MaxBatchSize)}
}

// Add appends msg to the pending batch, flushing immediately if
// MaxBatchSize is reached, and otherwise starting the flush-interval timer
// for a partial flush when none is running (the interval counts from the
// first item of a batch). A call after Close fails with Disposed (§4.7).
func (a *Accumulator) Add(msg broker.WireMessage) error {
	a.mu.Lock()

	if a.closed {
		a.mu.Unlock()
		return broker.ErrDisposed()
	}

	a.pending = append(a.pending, msg)
	if len(a.pending) >= a.opts.MaxBatchSize {
		items := a.takeLocked()
		a.mu.Unlock()
		go a.runFlush(items)
		return nil
	}

	if a.timer == nil {
		a.timer = time.AfterFunc(a.opts.FlushInterval, a.onTimer)
	}
	a.mu.Unlock()
	return nil
}

func (a *Accumulator) onTimer() {
	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return
	}
	items := a.takeLocked()
	a.mu.Unlock()
	go a.runFlush(items)
}

// takeLocked must be called with a.mu held. It stops the timer and returns
// the pending items, leaving a fresh pending slice in their place.
func (a *Accumulator) takeLocked() []broker.WireMessage {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	items := a.pending
	a.pending = make([]broker.WireMessage, 0, a.opts.MaxBatchSize)
	return items
}

// runFlush invokes the flush callback outside any lock and, when
// PartialRetry is enabled, re-enqueues items reported as Failed.
func (a *Accumulator) runFlush(items []broker.WireMessage) {
	if len(items) == 0 {
		return
	}
	result := a.flush(items)
	if !a.opts.PartialRetry || len(result.Failed) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	for _, idx := range result.Failed {
		if idx < 0 || idx >= len(items) {
			continue
		}
		a.pending = append(a.pending, items[idx])
	}
	if len(a.pending) >= a.opts.MaxBatchSize {
		items := a.takeLocked()
		go a.runFlush(items)
	} else if a.timer == nil {
		a.timer = time.AfterFunc(a.opts.FlushInterval, a.onTimer)
	}
}

// Flush forces an immediate asynchronous flush of whatever is pending,
// regardless of size or timer state.
func (a *Accumulator) Flush() {
	a.mu.Lock()
	items := a.takeLocked()
	a.mu.Unlock()
	go a.runFlush(items)
}

// Close stops the flush timer and flushes any remaining items synchronously
// (§4.7: "Disposal flushes synchronously"), so callers know every pending
// item has reached the flush callback before Close returns.
func (a *Accumulator) Close() {
	a.mu.Lock()
	a.closed = true
	items := a.takeLocked()
	a.mu.Unlock()
	a.runFlush(items)
}
