// Package memory provides an in-process implementation of events.Bus.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nova-labs/messagemesh/pkg/events"
)

// Bus is a synchronous, in-process events.Bus. Publish invokes every
// subscribed handler for the topic in registration order on the calling
// goroutine; a handler error is returned to the publisher but does not stop
// remaining handlers from running.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]events.Handler
	closed   bool
}

// New creates an empty in-process event bus.
func New() *Bus {
	return &Bus{handlers: make(map[string][]events.Handler)}
}

func (b *Bus) Publish(ctx context.Context, topic string, event events.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return events.ErrClosed
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	var firstErr error
	for _, h := range b.handlers[topic] {
		if err := h(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) Subscribe(ctx context.Context, topic string, handler events.Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return events.ErrClosed
	}
	b.handlers[topic] = append(b.handlers[topic], handler)
	return nil
}

func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
