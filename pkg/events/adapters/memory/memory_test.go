package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nova-labs/messagemesh/pkg/events"
	"github.com/nova-labs/messagemesh/pkg/events/adapters/memory"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := memory.New()
	defer bus.Close()

	var got1, got2 events.Event
	bus.Subscribe(context.Background(), "orders", func(ctx context.Context, e events.Event) error {
		got1 = e
		return nil
	})
	bus.Subscribe(context.Background(), "orders", func(ctx context.Context, e events.Event) error {
		got2 = e
		return nil
	})

	err := bus.Publish(context.Background(), "orders", events.Event{Type: "order.created"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if got1.Type != "order.created" || got2.Type != "order.created" {
		t.Fatal("both subscribers should have observed the event")
	}
}

func TestHandlerErrorDoesNotStopOtherHandlers(t *testing.T) {
	bus := memory.New()
	defer bus.Close()

	var secondCalled bool
	bus.Subscribe(context.Background(), "t", func(ctx context.Context, e events.Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(context.Background(), "t", func(ctx context.Context, e events.Event) error {
		secondCalled = true
		return nil
	})

	_ = bus.Publish(context.Background(), "t", events.Event{})
	if !secondCalled {
		t.Fatal("second handler should still have run")
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	bus := memory.New()
	bus.Close()

	if err := bus.Publish(context.Background(), "t", events.Event{}); err != events.ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
