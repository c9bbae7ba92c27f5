package ratelimit

import (
	"context"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// KeyFunc derives the per-request limiter key from a wire message, e.g. its
// tenant id (see pkg/broker/tenant) or type tag.
type KeyFunc func(msg broker.WireMessage) string

// Decorator wraps a broker.Port, rejecting PublishInternal with RateLimited
// once the per-key quota is exhausted.
type Decorator struct {
	next    broker.Port
	limiter *Limiter
	keyFn   KeyFunc
}

// Wrap returns a broker.Port that rate-limits PublishInternal. keyFn
// defaults to using the message's TenantID (or "" if unset, i.e. a single
// global bucket) when nil.
func Wrap(next broker.Port, limiter *Limiter, keyFn KeyFunc) *Decorator {
	if keyFn == nil {
		keyFn = func(msg broker.WireMessage) string { return msg.TenantID }
	}
	return &Decorator{next: next, limiter: limiter, keyFn: keyFn}
}

func (d *Decorator) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	result, err := d.limiter.Allow(ctx, d.keyFn(msg))
	if err != nil {
		return err
	}
	if !result.Allowed {
		retryAfter := time.Until(result.ResetAt)
		return broker.ErrRateLimited(retryAfter.Milliseconds(), result.ResetAt.UnixMilli())
	}
	return d.next.PublishInternal(ctx, msg, opts)
}

// BatchInternal admits the whole batch through a single Allow check, keyed
// off the first item, then forwards it to next as one dispatch.
func (d *Decorator) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	if len(items) == 0 {
		return broker.BatchResult{}, nil
	}

	result, err := d.limiter.Allow(ctx, d.keyFn(items[0]))
	if err != nil {
		return broker.BatchResult{}, err
	}
	if !result.Allowed {
		retryAfter := time.Until(result.ResetAt)
		return broker.AllFailed(items, broker.ErrRateLimited(retryAfter.Milliseconds(), result.ResetAt.UnixMilli())), nil
	}
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
