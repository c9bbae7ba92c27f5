package retry

import (
	"context"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Decorator wraps a broker.Port, retrying PublishInternal under policy on
// transient transport errors.
type Decorator struct {
	next   broker.Port
	policy broker.RetryPolicy
}

// Wrap returns a broker.Port that retries publishes per policy.
func Wrap(next broker.Port, policy broker.RetryPolicy) *Decorator {
	return &Decorator{next: next, policy: policy}
}

func (d *Decorator) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	return Do(ctx, d.policy, func(ctx context.Context) error {
		return d.next.PublishInternal(ctx, msg, opts)
	})
}

func (d *Decorator) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	var result broker.BatchResult
	err := Do(ctx, d.policy, func(ctx context.Context) error {
		var err error
		result, err = d.next.BatchInternal(ctx, items, opts)
		return err
	})
	return result, err
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
