package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Decorator wraps a broker.Port, dropping PublishInternal calls whose
// payload hash has already been seen within the configured Window.
type Decorator struct {
	next  broker.Port
	cache *Cache

	cancel func()
	wg     sync.WaitGroup
}

// Wrap returns a broker.Port that deduplicates publishes against cache
// before forwarding to next.
func Wrap(next broker.Port, cache *Cache) *Decorator {
	return &Decorator{next: next, cache: cache}
}

func (d *Decorator) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	hash := HashPayload(msg.Payload)
	if d.cache.IsDuplicate(hash) {
		return nil
	}
	d.cache.Add(hash)
	return d.next.PublishInternal(ctx, msg, opts)
}

// BatchInternal drops items whose payload hash was already seen, forwarding
// only the survivors to next as a single dispatch. Dropped duplicates are
// reported as Succeeded, matching PublishInternal's silent no-op for dupes.
func (d *Decorator) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	var result broker.BatchResult
	forward := make([]broker.WireMessage, 0, len(items))
	forwardIdx := make([]int, 0, len(items))

	for i, item := range items {
		hash := HashPayload(item.Payload)
		if d.cache.IsDuplicate(hash) {
			result.Succeeded = append(result.Succeeded, i)
			continue
		}
		d.cache.Add(hash)
		forward = append(forward, item)
		forwardIdx = append(forwardIdx, i)
	}

	if len(forward) == 0 {
		return result, nil
	}

	inner, err := d.next.BatchInternal(ctx, forward, opts)
	if err != nil {
		return broker.AllFailed(items, err), nil
	}
	for _, idx := range inner.Succeeded {
		result.Succeeded = append(result.Succeeded, forwardIdx[idx])
	}
	for i, idx := range inner.Failed {
		result.Failed = append(result.Failed, forwardIdx[idx])
		result.Errs = append(result.Errs, inner.Errs[i])
	}
	return result, nil
}

func (d *Decorator) SubscribeInternal(ctx context.Context, typeTag string, info *broker.SubscriptionInfo) error {
	return d.next.SubscribeInternal(ctx, typeTag, info)
}

// StartInternal starts the background expiry sweep alongside forwarding to
// next, bound to this decorator's lifecycle per Design Note §9.
func (d *Decorator) StartInternal(ctx context.Context) error {
	if err := d.next.StartInternal(ctx); err != nil {
		return err
	}
	sweepCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go d.sweepLoop(sweepCtx)
	return nil
}

func (d *Decorator) sweepLoop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cache.Sweep()
		}
	}
}

func (d *Decorator) StopInternal(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	return d.next.StopInternal(ctx)
}

func (d *Decorator) DisposeInternal() error           { return d.next.DisposeInternal() }
func (d *Decorator) Healthy(ctx context.Context) bool { return d.next.Healthy(ctx) }

func (d *Decorator) Bind(b *broker.Base) {
	if binder, ok := d.next.(broker.Binder); ok {
		binder.Bind(b)
	}
}
