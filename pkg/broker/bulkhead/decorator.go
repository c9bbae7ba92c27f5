package bulkhead

import (
	"context"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Decorator wraps a broker.Port, admitting PublishInternal through a
// Bulkhead before forwarding to next.
type Decorator struct {
	next broker.Port
	bh   *Bulkhead
}

// Wrap returns a broker.Port that bounds concurrent publishes via bh.
func Wrap(next broker.Port, bh *Bulkhead) *Decorator {
	return &Decorator{next: next, bh: bh}
}

func (d *Decorator) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	release, err := d.bh.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return d.next.PublishInternal(ctx, msg, opts)
}

func (d *Decorator) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	release, err := d.bh.Acquire(ctx)
	if err != nil {
		return broker.BatchResult{}, err
	}
	defer release()
	return d.next.BatchInternal(ctx, items, opts)
}

func (d *Decorator) SubscribeInternal(ctx context.Context, typeTag string, info *broker.SubscriptionInfo) error {
	return d.next.SubscribeInternal(ctx, typeTag, info)
}

func (d *Decorator) StartInternal(ctx context.Context) error { return d.next.StartInternal(ctx) }
func (d *Decorator) StopInternal(ctx context.Context) error  { return d.next.StopInternal(ctx) }
func (d *Decorator) DisposeInternal() error                  { return d.next.DisposeInternal() }
func (d *Decorator) Healthy(ctx context.Context) bool        { return d.next.Healthy(ctx) }

func (d *Decorator) Bind(b *broker.Base) {
	if binder, ok := d.next.(broker.Binder); ok {
		binder.Bind(b)
	}
}
