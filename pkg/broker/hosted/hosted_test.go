package hosted_test

import (
	"context"
	"testing"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/broker/adapters/memory"
	"github.com/nova-labs/messagemesh/pkg/broker/hosted"
)

func TestStartStopIsIdempotentAndDisposesOnce(t *testing.T) {
	base := broker.New(memory.New(memory.Config{}))
	svc := hosted.New(base)
	ctx := context.Background()

	if err := svc.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("second Start should be idempotent: %v", err)
	}

	if !svc.Healthy(ctx) {
		t.Fatal("expected service to report healthy while running")
	}

	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := svc.Stop(ctx); err != nil {
		t.Fatalf("second Stop should be idempotent: %v", err)
	}
}
