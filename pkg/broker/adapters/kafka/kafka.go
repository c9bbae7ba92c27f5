// Package kafka is a Kafka-style partitioned-log implementation of
// broker.Port, built on github.com/IBM/sarama. Ordering is guaranteed per
// partition key: messages published with the same broker.PublishOptions
// OrderingKey land on the same partition.
package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/logger"
)

// Config configures the Kafka adapter.
type Config struct {
	Brokers []string
	Group   string
	// producer/consumer tuning, mirrors the teacher's producer defaults.
	RequiredAcks    sarama.RequiredAcks
	ConsumerOffsets int64
}

// Adapter is the Kafka broker.Port implementation.
type Adapter struct {
	cfg   Config
	saCfg *sarama.Config
	base  *broker.Base

	mu       sync.RWMutex
	producer sarama.SyncProducer
	client   sarama.ConsumerGroup
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	topics   map[string]struct{}
	disposed bool
}

// New constructs a Kafka adapter. Connections are established on Start.
func New(cfg Config) *Adapter {
	saCfg := sarama.NewConfig()
	saCfg.Producer.Return.Successes = true
	if cfg.RequiredAcks != 0 {
		saCfg.Producer.RequiredAcks = cfg.RequiredAcks
	} else {
		saCfg.Producer.RequiredAcks = sarama.WaitForAll
	}
	saCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	if cfg.ConsumerOffsets != 0 {
		saCfg.Consumer.Offsets.Initial = cfg.ConsumerOffsets
	}

	return &Adapter{cfg: cfg, saCfg: saCfg, topics: make(map[string]struct{})}
}

// Bind wires the adapter to the owning façade; see broker.Binder.
func (a *Adapter) Bind(b *broker.Base) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = b
}

func (a *Adapter) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	a.mu.RLock()
	producer := a.producer
	a.mu.RUnlock()

	if producer == nil {
		return broker.ErrTransportUnavailable(nil)
	}

	kmsg := &sarama.ProducerMessage{
		Topic:     msg.TypeTag,
		Value:     sarama.ByteEncoder(msg.Payload),
		Timestamp: msg.Timestamp,
	}
	if opts.OrderingKey != "" {
		kmsg.Key = sarama.StringEncoder(opts.OrderingKey)
	}
	for k, v := range msg.Headers {
		kmsg.Headers = append(kmsg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	kmsg.Headers = append(kmsg.Headers, sarama.RecordHeader{Key: []byte(broker.HeaderMessageID), Value: []byte(msg.ID)})

	_, _, err := producer.SendMessage(kmsg)
	if err != nil {
		return broker.ErrPublishFailure(err)
	}
	return nil
}

// BatchInternal uses sarama's native SendMessages, one request for the
// whole batch. A partial failure surfaces as sarama.ProducerErrors, which
// pairs each failed message back to its index (§4.7 partial-result
// reporting); any other error fails every item.
func (a *Adapter) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	a.mu.RLock()
	producer := a.producer
	a.mu.RUnlock()

	if producer == nil {
		return broker.BatchResult{}, broker.ErrTransportUnavailable(nil)
	}

	kmsgs := make([]*sarama.ProducerMessage, len(items))
	index := make(map[*sarama.ProducerMessage]int, len(items))
	for i, msg := range items {
		kmsg := &sarama.ProducerMessage{
			Topic:     msg.TypeTag,
			Value:     sarama.ByteEncoder(msg.Payload),
			Timestamp: msg.Timestamp,
		}
		if opts.OrderingKey != "" {
			kmsg.Key = sarama.StringEncoder(opts.OrderingKey)
		}
		for k, v := range msg.Headers {
			kmsg.Headers = append(kmsg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
		}
		kmsg.Headers = append(kmsg.Headers, sarama.RecordHeader{Key: []byte(broker.HeaderMessageID), Value: []byte(msg.ID)})
		kmsgs[i] = kmsg
		index[kmsg] = i
	}

	err := producer.SendMessages(kmsgs)
	if err == nil {
		result := broker.BatchResult{Succeeded: make([]int, len(items))}
		for i := range items {
			result.Succeeded[i] = i
		}
		return result, nil
	}

	var perMsg sarama.ProducerErrors
	if !errors.As(err, &perMsg) {
		return broker.AllFailed(items, broker.ErrPublishFailure(err)), nil
	}

	failed := make(map[int]struct{}, len(perMsg))
	var result broker.BatchResult
	for _, pe := range perMsg {
		idx := index[pe.Msg]
		failed[idx] = struct{}{}
		result.Failed = append(result.Failed, idx)
		result.Errs = append(result.Errs, broker.ErrPublishFailure(pe.Err))
	}
	for i := range items {
		if _, ok := failed[i]; !ok {
			result.Succeeded = append(result.Succeeded, i)
		}
	}
	return result, nil
}

func (a *Adapter) SubscribeInternal(ctx context.Context, typeTag string, info *broker.SubscriptionInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.topics[typeTag] = struct{}{}
	return nil
}

func (a *Adapter) StartInternal(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.disposed {
		return broker.ErrDisposed()
	}
	if a.producer != nil {
		return nil
	}

	producer, err := sarama.NewSyncProducer(a.cfg.Brokers, a.saCfg)
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}
	a.producer = producer

	client, err := sarama.NewConsumerGroup(a.cfg.Brokers, a.cfg.Group, a.saCfg)
	if err != nil {
		_ = producer.Close()
		a.producer = nil
		return broker.ErrTransportUnavailable(err)
	}
	a.client = client

	consumeCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	topics := make([]string, 0, len(a.topics))
	for t := range a.topics {
		topics = append(topics, t)
	}
	if len(topics) > 0 {
		a.wg.Add(1)
		go a.consumeLoop(consumeCtx, topics)
	}

	return nil
}

func (a *Adapter) consumeLoop(ctx context.Context, topics []string) {
	defer a.wg.Done()
	handler := &groupHandler{base: a.base}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		a.mu.RLock()
		client := a.client
		a.mu.RUnlock()
		if client == nil {
			return
		}
		if err := client.Consume(ctx, topics, handler); err != nil {
			logger.L().Error("kafka consume failed", "error", err)
			time.Sleep(time.Second)
		}
	}
}

func (a *Adapter) StopInternal(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	var firstErr error
	if a.client != nil {
		if err := a.client.Close(); err != nil {
			firstErr = err
		}
		a.client = nil
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.producer = nil
	}
	if firstErr != nil {
		return broker.ErrTransportUnavailable(firstErr)
	}
	return nil
}

func (a *Adapter) DisposeInternal() error {
	err := a.StopInternal(context.Background())
	a.mu.Lock()
	a.disposed = true
	a.mu.Unlock()
	return err
}

func (a *Adapter) Healthy(ctx context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.producer != nil && !a.disposed
}

// groupHandler bridges sarama's consumer-group callbacks into the base
// broker's ProcessMessage.
type groupHandler struct {
	base *broker.Base
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		headers := make(map[string]string, len(msg.Headers))
		var msgID string
		for _, rh := range msg.Headers {
			if string(rh.Key) == broker.HeaderMessageID {
				msgID = string(rh.Value)
				continue
			}
			headers[string(rh.Key)] = string(rh.Value)
		}

		wire := broker.WireMessage{
			ID:        msgID,
			TypeTag:   msg.Topic,
			Payload:   msg.Value,
			Headers:   headers,
			Timestamp: msg.Timestamp,
		}
		meta := broker.MessageMetadata{Partition: msg.Partition, Offset: msg.Offset}
		mc := broker.NewMessageContext(wire, meta,
			func() error { sess.MarkMessage(msg, ""); return nil },
			func(requeue bool) error { return nil },
		)

		if err := h.base.ProcessMessage(sess.Context(), mc); err != nil {
			logger.L().Error("kafka dispatch failed", "topic", msg.Topic, "error", err)
		}
	}
	return nil
}
