// Package kinesis is the streaming-key-value log implementation of
// broker.Port, built on github.com/aws/aws-sdk-go-v2/service/kinesis. Each
// type tag maps to its own stream; ordering is guaranteed per partition key
// (PublishOptions.OrderingKey), matching the teacher's streaming.Client
// PutRecord shape extended with a consumer side.
package kinesis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/logger"
)

// Config configures the Kinesis adapter.
type Config struct {
	// Streams maps a type tag to its Kinesis stream name.
	Streams      map[string]string
	PollInterval time.Duration
}

// Adapter is the Kinesis broker.Port implementation.
type Adapter struct {
	cfg  Config
	base *broker.Base

	mu       sync.RWMutex
	client   *kinesis.Client
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	subs     []pendingSub
	disposed bool
}

type pendingSub struct {
	typeTag string
	info    *broker.SubscriptionInfo
}

// New constructs a Kinesis adapter. The client is created on Start using the
// default AWS config chain.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Bind wires the adapter to the owning façade; see broker.Binder.
func (a *Adapter) Bind(b *broker.Base) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = b
}

func (a *Adapter) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	a.mu.RLock()
	client := a.client
	stream, ok := a.cfg.Streams[msg.TypeTag]
	a.mu.RUnlock()

	if client == nil {
		return broker.ErrTransportUnavailable(nil)
	}
	if !ok {
		return broker.ErrPublishFailure(broker.ErrInvalidArgument("no stream configured for type " + msg.TypeTag))
	}

	partitionKey := opts.OrderingKey
	if partitionKey == "" {
		partitionKey = msg.ID
	}

	_, err := client.PutRecord(ctx, &kinesis.PutRecordInput{
		StreamName:   aws.String(stream),
		PartitionKey: aws.String(partitionKey),
		Data:         msg.Payload,
	})
	if err != nil {
		return broker.ErrPublishFailure(err)
	}
	return nil
}

// BatchInternal uses Kinesis's native PutRecords, one call for the whole
// batch, since a batch's items all share the type tag the batch accumulator
// grouped them by and therefore the same stream.
func (a *Adapter) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	if len(items) == 0 {
		return broker.BatchResult{}, nil
	}

	a.mu.RLock()
	client := a.client
	stream, ok := a.cfg.Streams[items[0].TypeTag]
	a.mu.RUnlock()

	if client == nil {
		return broker.BatchResult{}, broker.ErrTransportUnavailable(nil)
	}
	if !ok {
		return broker.BatchResult{}, broker.ErrPublishFailure(broker.ErrInvalidArgument("no stream configured for type " + items[0].TypeTag))
	}

	entries := make([]types.PutRecordsRequestEntry, len(items))
	for i, item := range items {
		partitionKey := opts.OrderingKey
		if partitionKey == "" {
			partitionKey = item.ID
		}
		entries[i] = types.PutRecordsRequestEntry{PartitionKey: aws.String(partitionKey), Data: item.Payload}
	}

	out, err := client.PutRecords(ctx, &kinesis.PutRecordsInput{StreamName: aws.String(stream), Records: entries})
	if err != nil {
		return broker.AllFailed(items, broker.ErrPublishFailure(err)), nil
	}

	var result broker.BatchResult
	for i, rec := range out.Records {
		if rec.ErrorCode != nil {
			result.Failed = append(result.Failed, i)
			result.Errs = append(result.Errs, broker.ErrPublishFailure(errors.New(aws.ToString(rec.ErrorCode)+": "+aws.ToString(rec.ErrorMessage))))
			continue
		}
		result.Succeeded = append(result.Succeeded, i)
	}
	return result, nil
}

func (a *Adapter) SubscribeInternal(ctx context.Context, typeTag string, info *broker.SubscriptionInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.subs = append(a.subs, pendingSub{typeTag: typeTag, info: info})
	return nil
}

func (a *Adapter) StartInternal(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed {
		return broker.ErrDisposed()
	}
	if a.client != nil {
		return nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}
	a.client = kinesis.NewFromConfig(awsCfg)

	consumeCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	for _, sub := range a.subs {
		stream, ok := a.cfg.Streams[sub.typeTag]
		if !ok {
			continue
		}
		a.wg.Add(1)
		go a.pollStream(consumeCtx, stream, sub)
	}
	return nil
}

func (a *Adapter) pollStream(ctx context.Context, stream string, sub pendingSub) {
	defer a.wg.Done()

	out, err := a.client.DescribeStream(ctx, &kinesis.DescribeStreamInput{StreamName: aws.String(stream)})
	if err != nil {
		logger.L().Error("kinesis describe stream failed", "stream", stream, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, shard := range out.StreamDescription.Shards {
		wg.Add(1)
		go func(shard types.Shard) {
			defer wg.Done()
			a.pollShard(ctx, stream, shard, sub)
		}(shard)
	}
	wg.Wait()
}

func (a *Adapter) pollShard(ctx context.Context, stream string, shard types.Shard, sub pendingSub) {
	interval := a.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	iterOut, err := a.client.GetShardIterator(ctx, &kinesis.GetShardIteratorInput{
		StreamName:        aws.String(stream),
		ShardId:           shard.ShardId,
		ShardIteratorType: types.ShardIteratorTypeLatest,
	})
	if err != nil {
		logger.L().Error("kinesis get shard iterator failed", "stream", stream, "error", err)
		return
	}
	shardIterator := iterOut.ShardIterator

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if shardIterator == nil {
			return
		}

		out, err := a.client.GetRecords(ctx, &kinesis.GetRecordsInput{ShardIterator: shardIterator})
		if err != nil {
			logger.L().Error("kinesis get records failed", "stream", stream, "error", err)
			time.Sleep(interval)
			continue
		}
		for _, rec := range out.Records {
			a.dispatch(ctx, rec, sub)
		}
		shardIterator = out.NextShardIterator
		time.Sleep(interval)
	}
}

func (a *Adapter) dispatch(ctx context.Context, rec types.Record, sub pendingSub) {
	wire := broker.WireMessage{
		ID:        aws.ToString(rec.SequenceNumber),
		TypeTag:   sub.typeTag,
		Payload:   rec.Data,
		Timestamp: aws.ToTime(rec.ApproximateArrivalTimestamp),
	}
	mc := broker.NewMessageContext(wire, broker.MessageMetadata{},
		func() error { return nil },
		func(requeue bool) error { return nil },
	)

	if err := a.base.ProcessMessage(ctx, mc); err != nil {
		logger.L().Error("kinesis dispatch failed", "type", sub.typeTag, "error", err)
	}
}

func (a *Adapter) StopInternal(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	a.wg.Wait()
	return nil
}

func (a *Adapter) DisposeInternal() error {
	err := a.StopInternal(context.Background())
	a.mu.Lock()
	a.disposed = true
	a.client = nil
	a.mu.Unlock()
	return err
}

func (a *Adapter) Healthy(ctx context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client != nil && !a.disposed
}
