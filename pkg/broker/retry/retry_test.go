package retry_test

import (
	"context"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/broker/retry"
)

func TestRetriesOnlyTransportUnavailable(t *testing.T) {
	attempts := 0
	policy := broker.RetryPolicy{Enabled: true, MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffMultiplier: 2, UseExponentialBackoff: true}

	err := retry.Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return broker.ErrTransportUnavailable(nil)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoesNotRetryTerminalErrors(t *testing.T) {
	attempts := 0
	policy := broker.RetryPolicy{Enabled: true, MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiplier: 2}

	err := retry.Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return broker.ErrInvalidArgument("malformed target")
	})
	if err == nil {
		t.Fatal("expected terminal error to surface")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a non-retryable error, got %d", attempts)
	}
}

func TestDisabledPolicySkipsRetryLoop(t *testing.T) {
	attempts := 0
	err := retry.Do(context.Background(), broker.RetryPolicy{Enabled: false}, func(ctx context.Context) error {
		attempts++
		return broker.ErrTransportUnavailable(nil)
	})
	if err == nil {
		t.Fatal("expected the single attempt's error to surface")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt when retry is disabled, got %d", attempts)
	}
}
