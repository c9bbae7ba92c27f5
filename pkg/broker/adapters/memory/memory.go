// Package memory is an in-process implementation of broker.Port.
// It has no network boundary: Publish hands the message directly to every
// registered handler set for the type tag. With the default synchronous
// delivery (BufferSize 0) per-publisher publish order is preserved.
package memory

import (
	"context"
	"sync"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Config configures the in-memory adapter.
type Config struct {
	// BufferSize selects the delivery mode. 0 (or less) means synchronous
	// delivery on the publishing goroutine, in publish order. Any positive
	// value delivers each message on its own new goroutine; the value is not
	// used as a queue depth, and order across messages is not preserved.
	BufferSize int
}

// Adapter is the in-memory broker.Port implementation.
type Adapter struct {
	cfg Config

	mu       sync.RWMutex
	base     *broker.Base
	started  bool
	disposed bool
}

// New constructs an in-memory adapter. Pass it to broker.New to obtain a
// usable façade; broker.New calls Bind automatically since Adapter
// implements broker.Binder.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Bind gives the adapter a reference back to the owning Base so
// PublishInternal can route straight into Base.ProcessMessage without a
// network hop.
func (a *Adapter) Bind(b *broker.Base) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = b
}

func (a *Adapter) PublishInternal(ctx context.Context, msg broker.WireMessage, _ broker.PublishOptions) error {
	a.mu.RLock()
	base := a.base
	disposed := a.disposed
	a.mu.RUnlock()

	if disposed {
		return broker.ErrDisposed()
	}
	if base == nil {
		return broker.ErrTransportUnavailable(nil)
	}

	mc := broker.NewMessageContext(msg, broker.MessageMetadata{}, noopAck, noopNack)

	deliver := func() error {
		select {
		case <-ctx.Done():
			return broker.ErrCancelled()
		default:
		}
		return base.ProcessMessage(ctx, mc)
	}

	if a.cfg.BufferSize <= 0 {
		return deliver()
	}

	go func() { _ = deliver() }()
	return nil
}

// BatchInternal has no in-process batching primitive; it delivers each item
// in turn and reports per-item success/failure.
func (a *Adapter) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	return broker.PublishEach(ctx, a.PublishInternal, items, opts)
}

func (a *Adapter) SubscribeInternal(ctx context.Context, typeTag string, info *broker.SubscriptionInfo) error {
	// The in-memory adapter dispatches purely by type tag already stored in
	// Base's registry; no further transport-level registration is needed.
	return nil
}

func (a *Adapter) StartInternal(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disposed {
		return broker.ErrDisposed()
	}
	a.started = true
	return nil
}

func (a *Adapter) StopInternal(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.started = false
	return nil
}

func (a *Adapter) DisposeInternal() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disposed = true
	a.started = false
	return nil
}

func (a *Adapter) Healthy(ctx context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.started && !a.disposed
}

func noopAck() error              { return nil }
func noopNack(requeue bool) error { return nil }
