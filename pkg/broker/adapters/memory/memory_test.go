package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/broker/adapters/memory"
)

type orderPlaced struct {
	ID string `json:"id"`
}

func TestHappyPathPublishSubscribe(t *testing.T) {
	b := broker.New(memory.New(memory.Config{}))
	defer b.Dispose()

	received := make(chan broker.Message[orderPlaced], 1)
	_, err := broker.Subscribe(context.Background(), b, func(ctx context.Context, msg broker.Message[orderPlaced], mc *broker.MessageContext) error {
		received <- msg
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := broker.Publish(context.Background(), b, broker.Message[orderPlaced]{Payload: orderPlaced{ID: "7"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-received:
		if msg.Payload.ID != "7" {
			t.Fatalf("expected payload id 7, got %q", msg.Payload.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("handler did not receive message within 100ms")
	}
}

func TestSubscriptionInvarianceAndHandlerIsolation(t *testing.T) {
	b := broker.New(memory.New(memory.Config{}))
	defer b.Dispose()

	var mu sync.Mutex
	var h1Order, h2Order []string

	_, err := broker.Subscribe(context.Background(), b, func(ctx context.Context, msg broker.Message[orderPlaced], mc *broker.MessageContext) error {
		mu.Lock()
		h1Order = append(h1Order, msg.Payload.ID)
		mu.Unlock()
		panic("h1 fails deliberately")
	})
	if err != nil {
		t.Fatalf("Subscribe h1: %v", err)
	}

	_, err = broker.Subscribe(context.Background(), b, func(ctx context.Context, msg broker.Message[orderPlaced], mc *broker.MessageContext) error {
		mu.Lock()
		h2Order = append(h2Order, msg.Payload.ID)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe h2: %v", err)
	}

	if err := broker.Publish(context.Background(), b, broker.Message[orderPlaced]{Payload: orderPlaced{ID: "1"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(h1Order) != 1 || h1Order[0] != "1" {
		t.Fatalf("expected h1 to observe message once, got %v", h1Order)
	}
	if len(h2Order) != 1 || h2Order[0] != "1" {
		t.Fatalf("expected h2 to still observe the message after h1 panicked, got %v", h2Order)
	}
}

func TestAutoStartOnPublish(t *testing.T) {
	b := broker.New(memory.New(memory.Config{}))
	defer b.Dispose()

	if err := broker.Publish(context.Background(), b, broker.Message[orderPlaced]{Payload: orderPlaced{ID: "auto"}}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !b.Healthy(context.Background()) {
		t.Fatal("expected broker to be running (and healthy) after auto-start")
	}
}

func TestLifecycleIdempotence(t *testing.T) {
	b := broker.New(memory.New(memory.Config{}))

	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start should be a no-op, got: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("second Start should be a no-op, got: %v", err)
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := b.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop should be a no-op, got: %v", err)
	}
	if err := b.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if err := b.Dispose(); err != nil {
		t.Fatalf("second Dispose should be a no-op, got: %v", err)
	}
}
