// Package saga implements the broker's ordered step executor with
// reverse-order compensation (spec §4.11). Grounded on the explicit
// step-list style of the pack's consensus algorithms (ordered execution, no
// cyclic references) and the teacher's resilience.Retry for
// AutoRetryFailedSteps.
package saga

import (
	"context"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// State is the lifecycle state of a saga execution.
type State string

const (
	StateNotStarted    State = "not_started"
	StateRunning       State = "running"
	StateCompleted     State = "completed"
	StateCompensating  State = "compensating"
	StateCompensated   State = "compensated"
	StateFailed        State = "failed"
)

// Context is the attribute set every caller-defined saga data value must
// embed (spec §3 "Saga data").
type Context struct {
	CorrelationID string
	CurrentStep   int
	State         State
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Step is one unit of saga work. Execute performs the step; Compensate
// reverses it. Both receive the same data value so steps can communicate
// through caller-defined fields alongside the embedded Context.
type Step[D any] struct {
	Name       string
	Execute    func(ctx context.Context, data *D) error
	Compensate func(ctx context.Context, data *D) error
}

// Options configures an Orchestrator (§4.15; constructors do not call Validate).
type Options struct {
	ContinueCompensationOnError bool
	AutoRetryFailedSteps        bool
	MaxAttempts                 int
	InitialDelay                time.Duration
}

// Validate checks Options against §4.15.
func (o Options) Validate() error {
	if o.AutoRetryFailedSteps && o.MaxAttempts <= 0 {
		return broker.ErrInvalidOptions("saga.max_attempts must be positive when auto_retry_failed_steps is enabled")
	}
	if o.AutoRetryFailedSteps && o.InitialDelay <= 0 {
		return broker.ErrInvalidOptions("saga.initial_delay must be positive when auto_retry_failed_steps is enabled")
	}
	return nil
}

// Result reports the outcome of an Orchestrator.Run call.
type Result struct {
	IsSuccess             bool
	FailedStep            string
	CompensationSucceeded bool
	Executed              []string
	Compensated           []string
}

// Orchestrator runs an ordered Step list against a data value of type D,
// compensating executed steps in reverse order on failure.
type Orchestrator[D any] struct {
	opts  Options
	steps []Step[D]
	ctxOf func(*D) *Context
}

// New constructs an Orchestrator. ctxOf must return a pointer to the
// embedded Context field inside data, so the orchestrator can advance
// CurrentStep/State/UpdatedAt as execution proceeds.
func New[D any](opts Options, steps []Step[D], ctxOf func(*D) *Context) *Orchestrator[D] {
	return &Orchestrator[D]{opts: opts, steps: steps, ctxOf: ctxOf}
}

// Run executes the step list per spec §4.11's five-step algorithm.
func (o *Orchestrator[D]) Run(ctx context.Context, data *D) (Result, error) {
	sc := o.ctxOf(data)
	now := time.Now()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	sc.State = StateRunning
	sc.UpdatedAt = now

	result := Result{IsSuccess: true}

	for i, step := range o.steps {
		if ctx.Err() != nil {
			return result, broker.ErrCancelled()
		}

		sc.CurrentStep = i
		sc.UpdatedAt = time.Now()

		if err := o.executeStep(ctx, step, data); err != nil {
			result.IsSuccess = false
			result.FailedStep = step.Name
			return o.compensate(ctx, data, i, result)
		}
		result.Executed = append(result.Executed, step.Name)
	}

	sc.State = StateCompleted
	sc.UpdatedAt = time.Now()
	return result, nil
}

func (o *Orchestrator[D]) executeStep(ctx context.Context, step Step[D], data *D) error {
	if !o.opts.AutoRetryFailedSteps {
		return step.Execute(ctx, data)
	}

	delay := o.opts.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= o.opts.MaxAttempts; attempt++ {
		if err := step.Execute(ctx, data); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < o.opts.MaxAttempts {
			select {
			case <-ctx.Done():
				return broker.ErrCancelled()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	return lastErr
}

// compensate walks steps [0, failedIndex) in reverse order, calling each
// step's Compensate. failedIndex itself is never compensated (it never
// executed successfully).
func (o *Orchestrator[D]) compensate(ctx context.Context, data *D, failedIndex int, result Result) (Result, error) {
	sc := o.ctxOf(data)
	sc.State = StateCompensating
	sc.UpdatedAt = time.Now()

	allSucceeded := true
	for i := failedIndex - 1; i >= 0; i-- {
		step := o.steps[i]
		if err := step.Compensate(ctx, data); err != nil {
			allSucceeded = false
			if !o.opts.ContinueCompensationOnError {
				break
			}
			continue
		}
		result.Compensated = append(result.Compensated, step.Name)
	}

	result.CompensationSucceeded = allSucceeded
	if allSucceeded {
		sc.State = StateCompensated
	} else {
		sc.State = StateFailed
	}
	sc.UpdatedAt = time.Now()
	return result, nil
}
