package batch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/broker/batch"
	apperrors "github.com/nova-labs/messagemesh/pkg/errors"
)

type recordingPort struct {
	mu         sync.Mutex
	dispatches [][]broker.WireMessage
	failIndex  map[int]error // item index within the single batch to report as failed
}

func (p *recordingPort) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatches = append(p.dispatches, []broker.WireMessage{msg})
	return nil
}

func (p *recordingPort) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatches = append(p.dispatches, items)

	var result broker.BatchResult
	for i := range items {
		if err, ok := p.failIndex[i]; ok {
			result.Failed = append(result.Failed, i)
			result.Errs = append(result.Errs, err)
			continue
		}
		result.Succeeded = append(result.Succeeded, i)
	}
	return result, nil
}

func (p *recordingPort) SubscribeInternal(ctx context.Context, typeTag string, info *broker.SubscriptionInfo) error {
	return nil
}
func (p *recordingPort) StartInternal(ctx context.Context) error { return nil }
func (p *recordingPort) StopInternal(ctx context.Context) error  { return nil }
func (p *recordingPort) DisposeInternal() error                  { return nil }
func (p *recordingPort) Healthy(ctx context.Context) bool        { return true }

func (p *recordingPort) dispatchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dispatches)
}

func (p *recordingPort) lastDispatchSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.dispatches) == 0 {
		return 0
	}
	return len(p.dispatches[len(p.dispatches)-1])
}

// TestSizeTriggerFlushesExactlyOneBatch mirrors spec scenario 3: with
// MaxBatchSize=10, FlushInterval=10s, publishing 10 items yields exactly one
// batched BatchInternal dispatch of all 10 items, not 10 separate
// PublishInternal calls.
func TestSizeTriggerFlushesExactlyOneBatch(t *testing.T) {
	inner := &recordingPort{}
	dec := batch.Wrap(inner, batch.Options{MaxBatchSize: 10, FlushInterval: 10 * time.Second})

	for i := 0; i < 10; i++ {
		if err := dec.PublishInternal(context.Background(), broker.WireMessage{TypeTag: "order.created"}, broker.PublishOptions{}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	time.Sleep(50 * time.Millisecond)
	if got := inner.dispatchCount(); got != 1 {
		t.Fatalf("expected exactly 1 batched dispatch, got %d", got)
	}
	if got := inner.lastDispatchSize(); got != 10 {
		t.Fatalf("expected the single dispatch to carry 10 items, got %d", got)
	}

	if err := dec.PublishInternal(context.Background(), broker.WireMessage{TypeTag: "order.created"}, broker.PublishOptions{}); err != nil {
		t.Fatalf("publish 11th: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if got := inner.dispatchCount(); got != 1 {
		t.Fatalf("expected no further dispatch before flush interval or batch completion, got %d", got)
	}
}

func TestTimeTriggerFlushesPartialBatch(t *testing.T) {
	inner := &recordingPort{}
	dec := batch.Wrap(inner, batch.Options{MaxBatchSize: 100, FlushInterval: 30 * time.Millisecond})

	for i := 0; i < 3; i++ {
		if err := dec.PublishInternal(context.Background(), broker.WireMessage{TypeTag: "order.created"}, broker.PublishOptions{}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	time.Sleep(100 * time.Millisecond)
	if got := inner.dispatchCount(); got != 1 {
		t.Fatalf("expected 1 partial dispatch after interval elapsed, got %d", got)
	}
	if got := inner.lastDispatchSize(); got != 3 {
		t.Fatalf("expected the partial dispatch to carry 3 items, got %d", got)
	}
}

func TestValidateRejectsNonPositiveFields(t *testing.T) {
	if err := (batch.Options{MaxBatchSize: 0, FlushInterval: time.Second}).Validate(); err == nil {
		t.Fatal("expected Validate to reject zero MaxBatchSize")
	}
	if err := (batch.Options{MaxBatchSize: 1, FlushInterval: 0}).Validate(); err == nil {
		t.Fatal("expected Validate to reject zero FlushInterval")
	}
}

func TestAddAfterCloseFailsWithDisposed(t *testing.T) {
	inner := &recordingPort{}
	dec := batch.Wrap(inner, batch.Options{MaxBatchSize: 10, FlushInterval: time.Second})

	if err := dec.StopInternal(context.Background()); err != nil {
		t.Fatalf("StopInternal: %v", err)
	}

	acc := batch.New(batch.Options{MaxBatchSize: 1, FlushInterval: time.Second}, func(items []broker.WireMessage) batch.PartialResult {
		return batch.PartialResult{}
	})
	acc.Close()
	err := acc.Add(broker.WireMessage{TypeTag: "order.created"})
	if apperrors.Code(err) != broker.CodeDisposed {
		t.Fatalf("expected Disposed after Close, got %v", err)
	}
}

func TestCloseFlushesSynchronously(t *testing.T) {
	var flushed []broker.WireMessage
	acc := batch.New(batch.Options{MaxBatchSize: 100, FlushInterval: time.Hour}, func(items []broker.WireMessage) batch.PartialResult {
		flushed = items
		return batch.PartialResult{Succeeded: []int{0}}
	})

	if err := acc.Add(broker.WireMessage{TypeTag: "order.created"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	acc.Close()

	if len(flushed) != 1 {
		t.Fatalf("expected Close to flush synchronously before returning, got %d items flushed", len(flushed))
	}
}

func TestPartialRetryReEnqueuesFailedItems(t *testing.T) {
	inner := &recordingPort{failIndex: map[int]error{1: errors.New("transient")}}
	dec := batch.Wrap(inner, batch.Options{MaxBatchSize: 2, FlushInterval: time.Hour, PartialRetry: true})

	dec.PublishInternal(context.Background(), broker.WireMessage{TypeTag: "order.created", ID: "a"}, broker.PublishOptions{})
	dec.PublishInternal(context.Background(), broker.WireMessage{TypeTag: "order.created", ID: "b"}, broker.PublishOptions{})

	time.Sleep(30 * time.Millisecond)
	if got := inner.dispatchCount(); got != 1 {
		t.Fatalf("expected 1 dispatch after size trigger, got %d", got)
	}

	inner.mu.Lock()
	inner.failIndex = nil // let the retry succeed
	inner.mu.Unlock()

	dec.PublishInternal(context.Background(), broker.WireMessage{TypeTag: "order.created", ID: "c"}, broker.PublishOptions{})

	time.Sleep(30 * time.Millisecond)
	if got := inner.dispatchCount(); got != 2 {
		t.Fatalf("expected the failed item to be re-enqueued and flushed in a second dispatch, got %d", got)
	}
}
