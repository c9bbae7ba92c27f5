package circuitbreaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/broker/circuitbreaker"
	apperrors "github.com/nova-labs/messagemesh/pkg/errors"
)

func TestOpensAfterConsecutiveFailuresAndRejects(t *testing.T) {
	cb := circuitbreaker.New("test", circuitbreaker.Options{
		Enabled:          true,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
		MaxRequests:      1,
	})

	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }
	cb.Execute(context.Background(), failing)
	cb.Execute(context.Background(), failing)

	if cb.State() != circuitbreaker.StateOpen {
		t.Fatalf("expected Open after 2 consecutive failures, got %s", cb.State())
	}

	_, err := cb.Execute(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })
	if apperrors.Code(err) != broker.CodeCircuitOpen {
		t.Fatalf("expected CircuitOpen while open, got %v", err)
	}
}

func TestHalfOpenClosesAfterSuccessThreshold(t *testing.T) {
	cb := circuitbreaker.New("test", circuitbreaker.Options{
		Enabled:          true,
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          10 * time.Millisecond,
		MaxRequests:      1,
	})

	cb.Execute(context.Background(), func(ctx context.Context) (any, error) { return nil, errors.New("boom") })
	if cb.State() != circuitbreaker.StateOpen {
		t.Fatalf("expected Open, got %s", cb.State())
	}

	time.Sleep(20 * time.Millisecond)
	cb.Execute(context.Background(), func(ctx context.Context) (any, error) { return nil, nil })

	if cb.State() != circuitbreaker.StateClosed {
		t.Fatalf("expected Closed after a successful half-open probe, got %s", cb.State())
	}
}

func TestDisabledPassesThroughWithoutStateChanges(t *testing.T) {
	cb := circuitbreaker.New("test", circuitbreaker.Options{
		Enabled:          false,
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Second,
		MaxRequests:      1,
	})

	for i := 0; i < 5; i++ {
		cb.Execute(context.Background(), func(ctx context.Context) (any, error) { return nil, errors.New("boom") })
	}

	if cb.State() != circuitbreaker.StateClosed {
		t.Fatalf("expected state to never change while disabled, got %s", cb.State())
	}

	called := false
	_, err := cb.Execute(context.Background(), func(ctx context.Context) (any, error) {
		called = true
		return nil, nil
	})
	if err != nil {
		t.Fatalf("expected disabled breaker to pass through: %v", err)
	}
	if !called {
		t.Fatal("expected fn to be invoked while disabled")
	}
}
