// Package circuitbreaker implements the broker's pre-flight rejection layer
// (spec §4.3): a sliding window of call outcomes drives Closed/Open/HalfOpen
// transitions, extending the teacher's consecutive-failure-counting design
// with failure-rate and slow-call-rate thresholds.
//
// Usage:
//
//	cb := circuitbreaker.New("orders-publish", circuitbreaker.Options{
//		Enabled:          true,
//		FailureThreshold: 5,
//		Timeout:          30 * time.Second,
//	})
//	_, err := cb.Execute(ctx, func(ctx context.Context) (any, error) {
//		return nil, publish(ctx, msg)
//	})
package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/events"
)

// State represents the circuit breaker state, spelled exactly as the
// teacher's pkg/servicemesh/circuitbreaker does.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Options configures the circuit breaker (§4.15; constructors do not call Validate).
type Options struct {
	// Enabled gates the breaker entirely (§6: every bundle carries
	// Enabled). When false, Execute passes every call straight through
	// and no state transitions occur.
	Enabled bool

	// FailureThreshold is consecutive failures before opening (kept for
	// parity with the teacher's simple mode). It applies alongside the
	// rate-based thresholds; a zero MinimumThroughput defaults to it.
	FailureThreshold int
	// SuccessThreshold is successes needed to close from half-open.
	SuccessThreshold int
	// Timeout is how long to stay Open before probing in HalfOpen.
	Timeout time.Duration
	// MaxRequests is the max probe requests allowed while HalfOpen.
	MaxRequests int

	// WindowSize bounds the sliding window of recorded call outcomes.
	WindowSize int
	// MinimumThroughput is the minimum number of calls in the window before
	// rate-based thresholds are evaluated.
	MinimumThroughput int
	// FailureRateThreshold, in [0, 1], opens the circuit when the window's
	// failure ratio meets or exceeds it (requires MinimumThroughput calls).
	FailureRateThreshold float64
	// SlowCallDurationThreshold marks a call "slow" if it exceeds this.
	SlowCallDurationThreshold time.Duration
	// SlowCallRateThreshold, in [0, 1], opens the circuit when the window's
	// slow-call ratio meets or exceeds it.
	SlowCallRateThreshold float64

	// OnStateChange is called, non-blocking, on every transition.
	OnStateChange func(from, to State)
	// OnRejected is called, non-blocking, whenever Execute rejects pre-flight.
	OnRejected func()
	// Events optionally publishes lifecycle notifications onto a shared bus.
	Events events.Bus
}

// Validate checks Options against §4.15.
func (o Options) Validate() error {
	if o.Timeout <= 0 {
		return broker.ErrInvalidOptions("circuitbreaker.timeout must be positive")
	}
	if o.FailureThreshold <= 0 {
		return broker.ErrInvalidOptions("circuitbreaker.failure_threshold must be positive")
	}
	if o.SuccessThreshold <= 0 {
		return broker.ErrInvalidOptions("circuitbreaker.success_threshold must be positive")
	}
	if o.MaxRequests <= 0 {
		return broker.ErrInvalidOptions("circuitbreaker.max_requests must be positive")
	}
	if o.FailureRateThreshold < 0 || o.FailureRateThreshold > 1 {
		return broker.ErrInvalidOptions("circuitbreaker.failure_rate_threshold must be in [0, 1]")
	}
	if o.SlowCallRateThreshold < 0 || o.SlowCallRateThreshold > 1 {
		return broker.ErrInvalidOptions("circuitbreaker.slow_call_rate_threshold must be in [0, 1]")
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = 100
	}
	if o.MinimumThroughput <= 0 {
		o.MinimumThroughput = o.FailureThreshold
	}
	return o
}

// outcome records a single call's result for the sliding window.
type outcome struct {
	at       time.Time
	success  bool
	duration time.Duration
}

// CircuitBreaker guards a thunk with Closed/Open/HalfOpen pre-flight checks.
type CircuitBreaker struct {
	name    string
	options Options

	mu            sync.RWMutex
	state         State
	consecutive   int
	successes     int
	halfOpenCount int
	lastFailure   time.Time
	window        []outcome
	windowHead    int
}

// New constructs a CircuitBreaker. Panics are not used for invalid options;
// callers should call Validate first, matching §4.15's "fatal at
// construction" eager-validation contract at the call site.
func New(name string, opts Options) *CircuitBreaker {
	opts = opts.withDefaults()
	return &CircuitBreaker{
		name:    name,
		options: opts,
		state:   StateClosed,
		window:  make([]outcome, 0, opts.WindowSize),
	}
}

// Execute runs fn under circuit-breaker protection. Returns ErrCircuitOpen
// without invoking fn if the circuit is Open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if !cb.options.Enabled {
		return fn(ctx)
	}

	if err := cb.beforeRequest(); err != nil {
		if cb.options.OnRejected != nil {
			go cb.options.OnRejected()
		}
		return nil, err
	}

	start := time.Now()
	result, err := fn(ctx)
	cb.afterRequest(err == nil, time.Since(start))

	return result, err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(cb.lastFailure) > cb.options.Timeout {
			cb.setState(StateHalfOpen)
			cb.halfOpenCount = 1
			return nil
		}
		retryAfter := cb.options.Timeout - time.Since(cb.lastFailure)
		return broker.ErrCircuitOpen(retryAfter.Milliseconds())
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.options.MaxRequests {
			return broker.ErrCircuitOpen(0)
		}
		cb.halfOpenCount++
		return nil
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool, duration time.Duration) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.record(success, duration)

	switch cb.state {
	case StateClosed:
		if success {
			cb.consecutive = 0
		} else {
			cb.consecutive++
			cb.lastFailure = time.Now()
		}
		if cb.shouldOpen() {
			cb.setState(StateOpen)
		}
	case StateHalfOpen:
		if success {
			cb.successes++
			if cb.successes >= cb.options.SuccessThreshold {
				cb.setState(StateClosed)
			}
		} else {
			cb.setState(StateOpen)
		}
	}
}

// record appends an outcome, evicting the oldest once WindowSize is reached.
func (cb *CircuitBreaker) record(success bool, duration time.Duration) {
	o := outcome{at: time.Now(), success: success, duration: duration}
	if len(cb.window) < cb.options.WindowSize {
		cb.window = append(cb.window, o)
		return
	}
	cb.window[cb.windowHead] = o
	cb.windowHead = (cb.windowHead + 1) % cb.options.WindowSize
}

// shouldOpen evaluates the consecutive-failure rule and, once the window
// holds MinimumThroughput samples, the failure-rate and slow-call-rate rules.
func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutive >= cb.options.FailureThreshold {
		return true
	}
	if len(cb.window) < cb.options.MinimumThroughput {
		return false
	}

	var failures, slow int
	for _, o := range cb.window {
		if !o.success {
			failures++
		}
		if cb.options.SlowCallDurationThreshold > 0 && o.duration > cb.options.SlowCallDurationThreshold {
			slow++
		}
	}
	total := float64(len(cb.window))
	if cb.options.FailureRateThreshold > 0 && float64(failures)/total >= cb.options.FailureRateThreshold {
		return true
	}
	if cb.options.SlowCallRateThreshold > 0 && float64(slow)/total >= cb.options.SlowCallRateThreshold {
		return true
	}
	return false
}

func (cb *CircuitBreaker) setState(state State) {
	if cb.state == state {
		return
	}
	from := cb.state
	cb.state = state
	cb.consecutive = 0
	cb.successes = 0
	cb.halfOpenCount = 0

	if state == StateOpen {
		cb.lastFailure = time.Now()
	}

	if cb.options.OnStateChange != nil {
		go cb.options.OnStateChange(from, state)
	}
	if cb.options.Events != nil {
		go cb.publishTransition(from, state)
	}
}

func (cb *CircuitBreaker) publishTransition(from, to State) {
	_ = cb.options.Events.Publish(context.Background(), "circuitbreaker.state_changed", events.Event{
		Type:    "circuitbreaker.state_changed",
		Source:  cb.name,
		Payload: map[string]any{"from": string(from), "to": string(to)},
	})
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Reset forces the circuit back to Closed and clears all counters/window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.consecutive = 0
	cb.successes = 0
	cb.halfOpenCount = 0
	cb.window = cb.window[:0]
	cb.windowHead = 0
}

// Isolate forces the circuit to Open regardless of recorded outcomes. The
// circuit is not held there: as after any other opening, the first call
// once Timeout has elapsed moves it to HalfOpen.
func (cb *CircuitBreaker) Isolate() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateOpen)
}

// Name returns the circuit breaker's name.
func (cb *CircuitBreaker) Name() string { return cb.name }
