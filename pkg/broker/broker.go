// Package broker is the message-broker façade: typed publish/subscribe,
// lifecycle management, the subscription registry and handler dispatch,
// serialization and compression, sitting in front of a swappable Port
// transport adapter.
//
// Usage:
//
//	import (
//		"github.com/nova-labs/messagemesh/pkg/broker"
//		"github.com/nova-labs/messagemesh/pkg/broker/adapters/memory"
//	)
//
//	b := broker.New(memory.New(memory.Config{}))
//	_, err := broker.Subscribe(ctx, b, func(ctx context.Context, msg broker.Message[OrderPlaced], mc *broker.MessageContext) error {
//		return nil
//	})
//	err := broker.Publish(ctx, b, broker.Message[OrderPlaced]{Payload: OrderPlaced{ID: "o-1"}})
package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nova-labs/messagemesh/pkg/compression"
	"github.com/nova-labs/messagemesh/pkg/errors"
	"github.com/nova-labs/messagemesh/pkg/logger"
	"github.com/nova-labs/messagemesh/pkg/serialization"
)

// lifecycleState tracks Base's Start/Stop/Dispose idempotence.
type lifecycleState int

const (
	stateNotStarted lifecycleState = iota
	stateRunning
	stateStopped
	stateDisposed
)

// Base is the generic-free core: subscription registry, serializer,
// compressor, and a single Port. Generic Publish[T]/Subscribe[T] wrap it.
type Base struct {
	port        Port
	serializer  serialization.Serializer
	compressor  compression.Codec
	compression CompressionOptions

	subsMu sync.RWMutex
	subs   map[string][]*SubscriptionInfo

	lifecycleMu sync.Mutex
	state       lifecycleState
}

// Binder is implemented by adapters (such as the in-memory transport) that
// need a reference back to the owning Base to dispatch without a network
// hop. New calls Bind automatically when the port implements this interface.
type Binder interface {
	Bind(*Base)
}

// BaseOption configures New.
type BaseOption func(*Base)

// WithSerializer overrides the default JSON serializer.
func WithSerializer(s serialization.Serializer) BaseOption {
	return func(b *Base) { b.serializer = s }
}

// WithCompressor enables wire compression using the given codec, gated by
// opts (§3: applied only when opts.Enabled is set, the serialized payload
// meets opts' MinSizeBytes and its content type is not in
// NonCompressibleContentTypes).
// The default is no compression.
func WithCompressor(c compression.Codec, opts CompressionOptions) BaseOption {
	return func(b *Base) {
		b.compressor = c
		b.compression = opts
	}
}

// New constructs a Base wired to port, with defaults: JSON serialization, no
// compression. The broker auto-starts on the first Publish or Subscribe.
func New(port Port, opts ...BaseOption) *Base {
	b := &Base{
		port:       port,
		serializer: serialization.JSON(),
		subs:       make(map[string][]*SubscriptionInfo),
		state:      stateNotStarted,
	}
	for _, opt := range opts {
		opt(b)
	}
	if binder, ok := port.(Binder); ok {
		binder.Bind(b)
	}
	return b
}

// ensureStarted auto-starts the broker exactly once, per the Auto-start
// testable property.
func (b *Base) ensureStarted(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.state == stateDisposed {
		return ErrDisposed()
	}
	if b.state == stateRunning {
		return nil
	}
	if err := b.port.StartInternal(ctx); err != nil {
		return errors.Wrap(err, "failed to start broker")
	}
	b.state = stateRunning
	return nil
}

// Start brings the broker up. Idempotent: calling Start while already
// running is a no-op.
func (b *Base) Start(ctx context.Context) error {
	return b.ensureStarted(ctx)
}

// Stop winds down the adapter's consumer loops but keeps the broker
// reusable. Idempotent, and a no-op if Start was never called.
func (b *Base) Stop(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.state != stateRunning {
		return nil
	}
	if err := b.port.StopInternal(ctx); err != nil {
		logger.L().Error("broker stop failed", "error", err)
		return errors.Wrap(err, "failed to stop broker")
	}
	b.state = stateStopped
	return nil
}

// Dispose ends background tasks and releases adapter resources permanently.
// Idempotent: subsequent calls are no-ops.
func (b *Base) Dispose() error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.state == stateDisposed {
		return nil
	}
	if err := b.port.DisposeInternal(); err != nil {
		logger.L().Error("broker dispose failed", "error", err)
		b.state = stateDisposed
		return errors.Wrap(err, "failed to dispose broker")
	}
	b.state = stateDisposed
	return nil
}

// Healthy reports the underlying adapter's connection health.
func (b *Base) Healthy(ctx context.Context) bool {
	b.lifecycleMu.Lock()
	running := b.state == stateRunning
	b.lifecycleMu.Unlock()
	return running && b.port.Healthy(ctx)
}

// register appends info to the per-type handler list and asks the adapter to
// wire up any transport-level subscription it needs.
func (b *Base) register(ctx context.Context, typeTag string, info *SubscriptionInfo) error {
	if err := b.ensureStarted(ctx); err != nil {
		return err
	}

	b.subsMu.Lock()
	b.subs[typeTag] = append(b.subs[typeTag], info)
	b.subsMu.Unlock()

	return b.port.SubscribeInternal(ctx, typeTag, info)
}

// ProcessMessage dispatches an inbound wire message to every handler
// registered for its type tag, in registration order. Handler panics and
// errors are caught, logged, and do not stop remaining handlers. It returns
// a non-nil error if any handler failed, so adapters with AutoAck=false can
// decide whether to acknowledge or reject.
func (b *Base) ProcessMessage(ctx context.Context, mc *MessageContext) error {
	b.subsMu.RLock()
	handlers := make([]*SubscriptionInfo, len(b.subs[mc.Message.TypeTag]))
	copy(handlers, b.subs[mc.Message.TypeTag])
	b.subsMu.RUnlock()

	var firstErr error
	for _, info := range handlers {
		if err := b.invokeHandler(ctx, info, mc); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (b *Base) invokeHandler(ctx context.Context, info *SubscriptionInfo, mc *MessageContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrHandlerError(errors.New(errors.CodeInternal, "handler panicked", nil))
			logger.L().Error("subscription handler panicked", "type", info.TypeTag, "panic", r)
		}
	}()

	if handlerErr := info.dispatch(ctx, mc); handlerErr != nil {
		logger.L().Error("subscription handler failed", "type", info.TypeTag, "error", handlerErr)
		return ErrHandlerError(handlerErr)
	}
	return nil
}

// newID returns a fresh message id for messages the caller left unset.
func newID() string {
	return uuid.NewString()
}
