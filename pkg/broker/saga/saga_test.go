package saga_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker/saga"
)

type orderData struct {
	saga.Context
	executed    []string
	compensated []string
}

// TestCompensationOnMiddleStepFailure mirrors spec scenario 6: three steps
// (A, B, C), force failure at B. Expected: A executed, A compensated, B
// never executed (it failed, so it is excluded from the executed list), C
// never executed, result.IsSuccess=false, result.FailedStep="B".
func TestCompensationOnMiddleStepFailure(t *testing.T) {
	steps := []saga.Step[orderData]{
		{
			Name:       "A",
			Execute:    func(ctx context.Context, d *orderData) error { d.executed = append(d.executed, "A"); return nil },
			Compensate: func(ctx context.Context, d *orderData) error { d.compensated = append(d.compensated, "A"); return nil },
		},
		{
			Name:       "B",
			Execute:    func(ctx context.Context, d *orderData) error { return errors.New("B failed") },
			Compensate: func(ctx context.Context, d *orderData) error { d.compensated = append(d.compensated, "B"); return nil },
		},
		{
			Name:       "C",
			Execute:    func(ctx context.Context, d *orderData) error { d.executed = append(d.executed, "C"); return nil },
			Compensate: func(ctx context.Context, d *orderData) error { d.compensated = append(d.compensated, "C"); return nil },
		},
	}

	orch := saga.New(saga.Options{}, steps, func(d *orderData) *saga.Context { return &d.Context })
	data := &orderData{}

	result, err := orch.Run(context.Background(), data)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.IsSuccess {
		t.Fatal("expected IsSuccess=false")
	}
	if result.FailedStep != "B" {
		t.Fatalf("expected FailedStep=B, got %q", result.FailedStep)
	}
	if len(data.executed) != 1 || data.executed[0] != "A" {
		t.Fatalf("expected only A executed, got %v", data.executed)
	}
	if len(data.compensated) != 1 || data.compensated[0] != "A" {
		t.Fatalf("expected only A compensated, got %v", data.compensated)
	}
	if !result.CompensationSucceeded {
		t.Fatal("expected CompensationSucceeded=true")
	}
	if data.Context.State != saga.StateCompensated {
		t.Fatalf("expected state Compensated, got %v", data.Context.State)
	}
}

func TestAllStepsSucceedCompletesSaga(t *testing.T) {
	steps := []saga.Step[orderData]{
		{Name: "A", Execute: func(ctx context.Context, d *orderData) error { return nil }, Compensate: func(ctx context.Context, d *orderData) error { return nil }},
		{Name: "B", Execute: func(ctx context.Context, d *orderData) error { return nil }, Compensate: func(ctx context.Context, d *orderData) error { return nil }},
	}

	orch := saga.New(saga.Options{}, steps, func(d *orderData) *saga.Context { return &d.Context })
	data := &orderData{}

	result, err := orch.Run(context.Background(), data)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.IsSuccess {
		t.Fatal("expected IsSuccess=true")
	}
	if data.Context.State != saga.StateCompleted {
		t.Fatalf("expected state Completed, got %v", data.Context.State)
	}
}

func TestAutoRetryFailedStepsRetriesBeforeFailing(t *testing.T) {
	attempts := 0
	steps := []saga.Step[orderData]{
		{
			Name: "flaky",
			Execute: func(ctx context.Context, d *orderData) error {
				attempts++
				if attempts < 3 {
					return errors.New("transient")
				}
				return nil
			},
			Compensate: func(ctx context.Context, d *orderData) error { return nil },
		},
	}

	orch := saga.New(saga.Options{AutoRetryFailedSteps: true, MaxAttempts: 5, InitialDelay: time.Millisecond}, steps, func(d *orderData) *saga.Context { return &d.Context })
	data := &orderData{}

	result, err := orch.Run(context.Background(), data)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.IsSuccess {
		t.Fatal("expected eventual success after retries")
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestValidateRequiresPositiveRetryFieldsWhenEnabled(t *testing.T) {
	opts := saga.Options{AutoRetryFailedSteps: true, MaxAttempts: 0, InitialDelay: time.Millisecond}
	if err := opts.Validate(); err == nil {
		t.Fatal("expected Validate to reject zero MaxAttempts when auto-retry enabled")
	}
}
