package broker

import "context"

// Port is the narrow contract each transport adapter implements (§4.12,
// §6 "Broker port"). The base broker never holds a raw transport handle;
// every connection lifecycle lives behind this interface.
type Port interface {
	// PublishInternal sends a single already-serialized message. options
	// carries per-publish hints (delay, ordering/partition key, group id,
	// dedup id) that transports which support them may honor.
	PublishInternal(ctx context.Context, msg WireMessage, options PublishOptions) error

	// BatchInternal sends a completed batch as a single logical dispatch
	// (§4.7: "the batch is handed to the inner broker as a single logical
	// dispatch"). The returned BatchResult is index-aligned with items;
	// adapters with no native batch primitive fall back to PublishEach,
	// reporting per-item success/failure instead of failing the whole
	// batch atomically.
	BatchInternal(ctx context.Context, items []WireMessage, options PublishOptions) (BatchResult, error)

	// SubscribeInternal registers interest in typeTag. Transports that do
	// not need per-type registration (e.g. the in-memory adapter already
	// dispatches by tag) may no-op. dispatch is called by the adapter's own
	// consume loop for every inbound message matching typeTag.
	SubscribeInternal(ctx context.Context, typeTag string, info *SubscriptionInfo) error

	// StartInternal brings up the adapter's connection and consumer loops.
	StartInternal(ctx context.Context) error

	// StopInternal winds down consumer loops but keeps the adapter
	// reusable for a subsequent StartInternal.
	StopInternal(ctx context.Context) error

	// DisposeInternal releases all adapter resources permanently.
	DisposeInternal() error

	// Healthy reports whether the adapter's connection is usable.
	Healthy(ctx context.Context) bool
}

// BatchResult reports which items of a batched dispatch succeeded and
// which failed, index-aligned with the slice passed to BatchInternal
// (§4.7 partial-result reporting).
type BatchResult struct {
	Succeeded []int
	Failed    []int
	Errs      []error
}

// AllFailed builds a BatchResult marking every index in items as failed
// with err, for adapters that can only report whole-batch failure.
func AllFailed(items []WireMessage, err error) BatchResult {
	res := BatchResult{Failed: make([]int, len(items)), Errs: make([]error, len(items))}
	for i := range items {
		res.Failed[i] = i
		res.Errs[i] = err
	}
	return res
}

// PublishEach is the fallback BatchInternal implementation for adapters
// with no native batch primitive: it calls publish once per item and
// reports per-index results rather than failing the whole batch together.
func PublishEach(ctx context.Context, publish func(ctx context.Context, msg WireMessage, options PublishOptions) error, items []WireMessage, options PublishOptions) (BatchResult, error) {
	var res BatchResult
	for i, item := range items {
		if err := publish(ctx, item, options); err != nil {
			res.Failed = append(res.Failed, i)
			res.Errs = append(res.Errs, err)
			continue
		}
		res.Succeeded = append(res.Succeeded, i)
	}
	return res, nil
}
