// Package ratelimit implements the broker's pre-flight rate limiting layer
// (spec §4.4): token bucket, sliding window, and fixed window strategies,
// keyed per tenant via pkg/broker/tenant. Adapted from the teacher's
// pkg/algorithms/ratelimit, decoupled from its generic cache.Cache backing
// store into a self-contained in-process implementation (see the Open
// Question decision in DESIGN.md).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Strategy selects the limiting algorithm.
type Strategy string

const (
	StrategyTokenBucket   Strategy = "token_bucket"
	StrategyFixedWindow   Strategy = "fixed_window"
	StrategySlidingWindow Strategy = "sliding_window"
)

// Options configures a Limiter (§4.15; constructors do not call Validate).
type Options struct {
	Strategy Strategy
	// Limit is tokens-per-Period (token bucket: refill rate; window
	// strategies: the hard cap per window).
	Limit int64
	// Period is the window duration, or the refill interval for token
	// bucket (Limit tokens are added every Period).
	Period time.Duration
	// Burst bounds the token bucket's maximum stored tokens. Defaults to
	// Limit if unset.
	Burst int64
}

// Validate checks Options against §4.15.
func (o Options) Validate() error {
	switch o.Strategy {
	case StrategyTokenBucket, StrategyFixedWindow, StrategySlidingWindow:
	default:
		return broker.ErrInvalidOptions("ratelimit.strategy must be one of token_bucket|fixed_window|sliding_window")
	}
	if o.Limit <= 0 {
		return broker.ErrInvalidOptions("ratelimit.limit must be positive")
	}
	if o.Period <= 0 {
		return broker.ErrInvalidOptions("ratelimit.period must be positive")
	}
	return nil
}

// Result reports the outcome of a single Allow check.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Metrics reports the running totals required by §4.4.
type Metrics struct {
	Total    int64
	Allowed  int64
	Rejected int64
}

// Limiter rate-limits a per-key stream of requests in process. It is not
// shared across instances; distributed enforcement is a documented
// non-goal extension point (see DESIGN.md).
type Limiter struct {
	opts Options

	mu      sync.Mutex
	buckets map[string]*tokenBucketState
	windows map[string]*windowState
	samples map[string][]time.Time // sliding window strategy

	total    int64
	allowed  int64
	rejected int64
}

type tokenBucketState struct {
	tokens     float64
	lastRefill time.Time
}

type windowState struct {
	count      int64
	windowEnds time.Time
}

// New constructs a Limiter. Call Validate on opts before New in production
// wiring; New itself does not validate (matches §4.15's "fails eagerly at
// construction" being the caller's responsibility at the decorator layer).
func New(opts Options) *Limiter {
	burst := opts.Burst
	if burst <= 0 {
		burst = opts.Limit
	}
	opts.Burst = burst
	return &Limiter{
		opts:    opts,
		buckets: make(map[string]*tokenBucketState),
		windows: make(map[string]*windowState),
		samples: make(map[string][]time.Time),
	}
}

// Allow checks whether key may proceed now, consuming one unit of quota if
// so.
func (l *Limiter) Allow(ctx context.Context, key string) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, broker.ErrCancelled()
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var result *Result
	switch l.opts.Strategy {
	case StrategyTokenBucket:
		result = l.allowTokenBucket(key)
	case StrategyFixedWindow:
		result = l.allowFixedWindow(key)
	default:
		result = l.allowSlidingWindow(key)
	}

	l.total++
	if result.Allowed {
		l.allowed++
	} else {
		l.rejected++
	}
	return result, nil
}

// Metrics returns the running total/allowed/rejected counters (§4.4).
func (l *Limiter) Metrics() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Metrics{Total: l.total, Allowed: l.allowed, Rejected: l.rejected}
}

func (l *Limiter) allowTokenBucket(key string) *Result {
	now := time.Now()
	state, ok := l.buckets[key]
	if !ok {
		state = &tokenBucketState{tokens: float64(l.opts.Burst), lastRefill: now}
		l.buckets[key] = state
	} else {
		elapsed := now.Sub(state.lastRefill)
		refillRate := float64(l.opts.Limit) / l.opts.Period.Seconds()
		state.tokens += elapsed.Seconds() * refillRate
		if state.tokens > float64(l.opts.Burst) {
			state.tokens = float64(l.opts.Burst)
		}
		state.lastRefill = now
	}

	if state.tokens >= 1 {
		state.tokens--
		return &Result{Allowed: true, Remaining: int64(state.tokens), ResetAt: now.Add(l.opts.Period)}
	}
	missing := 1 - state.tokens
	refillRate := float64(l.opts.Limit) / l.opts.Period.Seconds()
	wait := time.Duration(missing/refillRate*float64(time.Second))
	return &Result{Allowed: false, Remaining: 0, ResetAt: now.Add(wait)}
}

func (l *Limiter) allowFixedWindow(key string) *Result {
	now := time.Now()
	state, ok := l.windows[key]
	if !ok || now.After(state.windowEnds) {
		state = &windowState{count: 0, windowEnds: now.Add(l.opts.Period)}
		l.windows[key] = state
	}
	state.count++

	remaining := l.opts.Limit - state.count
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: state.count <= l.opts.Limit, Remaining: remaining, ResetAt: state.windowEnds}
}

func (l *Limiter) allowSlidingWindow(key string) *Result {
	now := time.Now()
	cutoff := now.Add(-l.opts.Period)

	samples := l.samples[key]
	kept := samples[:0]
	for _, t := range samples {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	allowed := int64(len(kept)) < l.opts.Limit
	if allowed {
		kept = append(kept, now)
	}
	l.samples[key] = kept

	remaining := l.opts.Limit - int64(len(kept))
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: allowed, Remaining: remaining, ResetAt: now.Add(l.opts.Period)}
}
