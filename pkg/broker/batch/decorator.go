package batch

import (
	"context"
	"strconv"
	"sync"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Decorator wraps a broker.Port, accumulating PublishInternal calls per
// type tag and forwarding each completed batch to next.BatchInternal as a
// single logical dispatch (§4.7, §8 scenario 3).
type Decorator struct {
	next broker.Port
	opts Options

	mu   sync.Mutex
	accs map[string]*Accumulator
}

// Wrap returns a broker.Port that batches publishes per type tag according
// to opts before forwarding to next.
func Wrap(next broker.Port, opts Options) *Decorator {
	return &Decorator{next: next, opts: opts, accs: make(map[string]*Accumulator)}
}

func (d *Decorator) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	acc := d.accumulatorFor(msg.TypeTag)
	return acc.Add(msg)
}

// BatchInternal forwards an already-assembled batch straight to next,
// bypassing accumulation for callers that hand it a complete batch directly.
func (d *Decorator) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	return d.next.BatchInternal(ctx, items, opts)
}

func (d *Decorator) accumulatorFor(typeTag string) *Accumulator {
	d.mu.Lock()
	defer d.mu.Unlock()

	if acc, ok := d.accs[typeTag]; ok {
		return acc
	}
	acc := New(d.opts, func(items []broker.WireMessage) PartialResult {
		return d.dispatchBatch(typeTag, items)
	})
	d.accs[typeTag] = acc
	return acc
}

// dispatchBatch hands a completed batch to next as a single BatchInternal
// call, preserving per-item headers so downstream adapters/decorators still
// see each item's identity within the batch.
func (d *Decorator) dispatchBatch(typeTag string, items []broker.WireMessage) PartialResult {
	for i := range items {
		if items[i].Headers == nil {
			items[i].Headers = make(map[string]string, 1)
		}
		items[i].Headers[broker.HeaderBatchCount] = strconv.Itoa(len(items))
	}

	result, err := d.next.BatchInternal(context.Background(), items, broker.PublishOptions{})
	if err != nil {
		return broker.AllFailed(items, err)
	}
	return result
}

func (d *Decorator) SubscribeInternal(ctx context.Context, typeTag string, info *broker.SubscriptionInfo) error {
	return d.next.SubscribeInternal(ctx, typeTag, info)
}

func (d *Decorator) StartInternal(ctx context.Context) error { return d.next.StartInternal(ctx) }

func (d *Decorator) StopInternal(ctx context.Context) error {
	d.mu.Lock()
	for _, acc := range d.accs {
		acc.Close()
	}
	d.mu.Unlock()
	return d.next.StopInternal(ctx)
}

func (d *Decorator) DisposeInternal() error           { return d.next.DisposeInternal() }
func (d *Decorator) Healthy(ctx context.Context) bool { return d.next.Healthy(ctx) }

func (d *Decorator) Bind(b *broker.Base) {
	if binder, ok := d.next.(broker.Binder); ok {
		binder.Bind(b)
	}
}
