// Package backpressure implements the broker's throttle controller (spec
// §4.5): a hysteresis between an activation threshold and a lower recovery
// threshold prevents the throttle flapping on and off at the boundary. The
// controller watches two independent signals, latency and queue depth,
// and throttles when either exceeds its threshold.
package backpressure

import (
	"sync"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/events"
)

// Options configures the Controller (§4.15; constructors do not call Validate).
type Options struct {
	// LatencyThreshold activates throttling once recent samples exceed it.
	LatencyThreshold time.Duration
	// RecoveryLatencyThreshold deactivates throttling once recent samples
	// drop back below it. Must be strictly less than LatencyThreshold.
	RecoveryLatencyThreshold time.Duration
	// SampleWindow bounds how many recent samples are considered.
	SampleWindow int
	// QueueDepthThreshold activates throttling once the instantaneous queue
	// depth recorded via RecordQueueDepth exceeds it. Zero disables the
	// queue-depth signal (latency alone governs throttling).
	QueueDepthThreshold int
	// OnActivated/OnDeactivated are called, non-blocking, on transition.
	OnActivated   func()
	OnDeactivated func()
	// Events is not published to by the Controller; transitions are
	// reported only through OnActivated/OnDeactivated.
	Events events.Bus
}

// Validate checks Options against §4.15, including the backpressure-specific
// "recovery threshold >= activation threshold" rule.
func (o Options) Validate() error {
	if o.LatencyThreshold <= 0 {
		return broker.ErrInvalidOptions("backpressure.latency_threshold must be positive")
	}
	if o.RecoveryLatencyThreshold <= 0 {
		return broker.ErrInvalidOptions("backpressure.recovery_latency_threshold must be positive")
	}
	if o.RecoveryLatencyThreshold >= o.LatencyThreshold {
		return broker.ErrInvalidOptions("backpressure.recovery_latency_threshold must be less than latency_threshold")
	}
	if o.SampleWindow <= 0 {
		return broker.ErrInvalidOptions("backpressure.sample_window must be positive")
	}
	if o.QueueDepthThreshold < 0 {
		return broker.ErrInvalidOptions("backpressure.queue_depth_threshold must not be negative")
	}
	return nil
}

// Controller tracks recent operation latencies plus the instantaneous queue
// depth and exposes ShouldThrottle.
type Controller struct {
	opts Options

	mu          sync.Mutex
	samples     []time.Duration
	depth       int
	throttling  bool
	activations int
}

// New constructs a Controller.
func New(opts Options) *Controller {
	return &Controller{opts: opts, samples: make([]time.Duration, 0, opts.SampleWindow)}
}

// Record adds a latency sample and re-evaluates the throttle state.
func (c *Controller) Record(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.samples) >= c.opts.SampleWindow {
		c.samples = c.samples[1:]
	}
	c.samples = append(c.samples, d)
	c.evaluate()
}

// RecordQueueDepth updates the instantaneous queue depth and re-evaluates
// the throttle state (§4.5: "or queue depth > QueueDepthThreshold").
func (c *Controller) RecordQueueDepth(depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth = depth
	c.evaluate()
}

// evaluate must be called with c.mu held. Throttling activates when either
// signal crosses its threshold, and only recovers once both signals have
// dropped back below their respective recovery points, to avoid flapping
// when one signal is noisy while the other is still elevated.
func (c *Controller) evaluate() {
	avg := c.average()
	depthTriggered := c.opts.QueueDepthThreshold > 0 && c.depth > c.opts.QueueDepthThreshold

	switch {
	case !c.throttling && (avg > c.opts.LatencyThreshold || depthTriggered):
		c.throttling = true
		c.activations++
		c.notify(true)
	case c.throttling && avg < c.opts.RecoveryLatencyThreshold && !depthTriggered:
		c.throttling = false
		c.notify(false)
	}
}

func (c *Controller) average() time.Duration {
	if len(c.samples) == 0 {
		return 0
	}
	var sum time.Duration
	for _, s := range c.samples {
		sum += s
	}
	return sum / time.Duration(len(c.samples))
}

func (c *Controller) notify(activated bool) {
	if activated && c.opts.OnActivated != nil {
		go c.opts.OnActivated()
	}
	if !activated && c.opts.OnDeactivated != nil {
		go c.opts.OnDeactivated()
	}
}

// ShouldThrottle reports whether publish should currently be slowed/rejected.
func (c *Controller) ShouldThrottle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throttling
}

// Activations returns how many times the controller has transitioned into
// the throttling state.
func (c *Controller) Activations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activations
}
