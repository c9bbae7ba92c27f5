// Package retry implements the broker's adapter transient-error retry
// policy (spec §7: "adapter transient errors go through the retry
// policy"). Adapted from the teacher's pkg/resilience.Retry — same
// exponential-backoff-with-jitter loop, generalized to retry only on
// broker.CodeTransportUnavailable, leaving terminal errors (authentication,
// malformed target, and every other error kind) to surface immediately.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
	apperrors "github.com/nova-labs/messagemesh/pkg/errors"
)

// shouldRetry reports whether err is a transient transport error worth
// retrying, per spec §7's propagation policy.
func shouldRetry(err error) bool {
	return apperrors.Code(err) == broker.CodeTransportUnavailable
}

// Do executes fn under policy's backoff schedule, retrying only on
// broker.ErrTransportUnavailable-coded failures. ctx cancellation aborts
// the loop immediately.
func Do(ctx context.Context, policy broker.RetryPolicy, fn func(ctx context.Context) error) error {
	if !policy.Enabled {
		return fn(ctx)
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	backoff := policy.InitialDelay

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return broker.ErrCancelled()
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}

		sleep := backoff
		if policy.UseExponentialBackoff {
			jitter := 1.0 + (rand.Float64()*2-1)*0.1
			sleep = time.Duration(float64(backoff) * jitter)
			backoff = time.Duration(float64(backoff) * policy.BackoffMultiplier)
			if backoff > policy.MaxDelay {
				backoff = policy.MaxDelay
			}
		}

		select {
		case <-ctx.Done():
			return broker.ErrCancelled()
		case <-time.After(sleep):
		}
	}

	return lastErr
}
