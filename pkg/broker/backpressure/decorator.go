package backpressure

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Decorator wraps a broker.Port, recording publish latency and in-flight
// queue depth into a Controller and rejecting new publishes with a Timeout
// error while the controller is throttling.
type Decorator struct {
	next       broker.Port
	controller *Controller
	inFlight   int64
}

// Wrap returns a broker.Port that feeds publish latency and in-flight depth
// into controller.
func Wrap(next broker.Port, controller *Controller) *Decorator {
	return &Decorator{next: next, controller: controller}
}

func (d *Decorator) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	if d.controller.ShouldThrottle() {
		return broker.ErrTimeout("publish rejected: backpressure active")
	}

	depth := atomic.AddInt64(&d.inFlight, 1)
	d.controller.RecordQueueDepth(int(depth))
	defer func() {
		atomic.AddInt64(&d.inFlight, -1)
	}()

	start := time.Now()
	err := d.next.PublishInternal(ctx, msg, opts)
	d.controller.Record(time.Since(start))
	return err
}

func (d *Decorator) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	if d.controller.ShouldThrottle() {
		return broker.BatchResult{}, broker.ErrTimeout("publish rejected: backpressure active")
	}

	depth := atomic.AddInt64(&d.inFlight, 1)
	d.controller.RecordQueueDepth(int(depth))
	defer func() {
		atomic.AddInt64(&d.inFlight, -1)
	}()

	start := time.Now()
	res, err := d.next.BatchInternal(ctx, items, opts)
	d.controller.Record(time.Since(start))
	return res, err
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
