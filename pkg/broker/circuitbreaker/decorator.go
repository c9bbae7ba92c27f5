package circuitbreaker

import (
	"context"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Decorator wraps a broker.Port with circuit-breaker protection on publish,
// per Design Note §9 ("each reliability layer wraps the same port"). Failed
// consumer delivery is the adapter's own concern; the breaker only guards
// the publish path, where a downed transport would otherwise block callers.
type Decorator struct {
	next broker.Port
	cb   *CircuitBreaker
}

// Wrap returns a broker.Port that gates PublishInternal through cb and
// forwards every other method to next unchanged.
func Wrap(next broker.Port, cb *CircuitBreaker) *Decorator {
	return &Decorator{next: next, cb: cb}
}

func (d *Decorator) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	_, err := d.cb.Execute(ctx, func(ctx context.Context) (any, error) {
		return nil, d.next.PublishInternal(ctx, msg, opts)
	})
	return err
}

// BatchInternal gates one batched dispatch through cb as a single call, so
// a flaky transport trips the breaker on the batch as a whole rather than
// per item.
func (d *Decorator) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	res, err := d.cb.Execute(ctx, func(ctx context.Context) (any, error) {
		return d.next.BatchInternal(ctx, items, opts)
	})
	if err != nil {
		return broker.BatchResult{}, err
	}
	return res.(broker.BatchResult), nil
}

func (d *Decorator) SubscribeInternal(ctx context.Context, typeTag string, info *broker.SubscriptionInfo) error {
	return d.next.SubscribeInternal(ctx, typeTag, info)
}

func (d *Decorator) StartInternal(ctx context.Context) error { return d.next.StartInternal(ctx) }
func (d *Decorator) StopInternal(ctx context.Context) error  { return d.next.StopInternal(ctx) }
func (d *Decorator) DisposeInternal() error                  { return d.next.DisposeInternal() }
func (d *Decorator) Healthy(ctx context.Context) bool        { return d.next.Healthy(ctx) }

// Bind forwards to next if it implements broker.Binder, so decorating an
// in-memory adapter still lets it dispatch without a network hop.
func (d *Decorator) Bind(b *broker.Base) {
	if binder, ok := d.next.(broker.Binder); ok {
		binder.Bind(b)
	}
}
