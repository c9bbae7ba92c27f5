// Package amqp is an AMQP-style (RabbitMQ) implementation of broker.Port,
// built on github.com/rabbitmq/amqp091-go. Each type tag maps to a topic
// exchange of the same name with a per-group queue bound to it.
package amqp

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/logger"
)

// Config configures the AMQP adapter.
type Config struct {
	URL      string
	Exchange string // default exchange name prefix; empty uses the type tag directly
}

// Adapter is the AMQP broker.Port implementation.
type Adapter struct {
	cfg  Config
	base *broker.Base

	mu       sync.RWMutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	subs     []pendingSub
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	disposed bool
}

type pendingSub struct {
	typeTag string
	info    *broker.SubscriptionInfo
}

// New constructs an AMQP adapter. The connection is established on Start.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg}
}

// Bind wires the adapter to the owning façade; see broker.Binder.
func (a *Adapter) Bind(b *broker.Base) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = b
}

func (a *Adapter) exchangeName(typeTag string) string {
	if a.cfg.Exchange != "" {
		return a.cfg.Exchange + "." + typeTag
	}
	return typeTag
}

func (a *Adapter) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	a.mu.RLock()
	ch := a.ch
	a.mu.RUnlock()

	if ch == nil {
		return broker.ErrTransportUnavailable(nil)
	}

	exchange := a.exchangeName(msg.TypeTag)
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return broker.ErrPublishFailure(err)
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[broker.HeaderMessageID] = msg.ID

	routingKey := opts.OrderingKey
	if routingKey == "" {
		routingKey = msg.TypeTag
	}

	err := ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType:   "application/octet-stream",
		Body:          msg.Payload,
		Headers:       headers,
		Timestamp:     msg.Timestamp,
		CorrelationId: msg.CorrelationID,
	})
	if err != nil {
		return broker.ErrPublishFailure(err)
	}
	return nil
}

// BatchInternal publishes each item over the channel in turn; AMQP has no
// native multi-message publish, so per-item results are reported.
func (a *Adapter) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	return broker.PublishEach(ctx, a.PublishInternal, items, opts)
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
	if a.conn != nil {
		return nil
	}

	conn, err := amqp.Dial(a.cfg.URL)
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return broker.ErrTransportUnavailable(err)
	}
	a.conn = conn
	a.ch = ch

	consumeCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	for _, sub := range a.subs {
		if err := a.startConsumer(consumeCtx, sub); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) startConsumer(ctx context.Context, sub pendingSub) error {
	exchange := a.exchangeName(sub.typeTag)
	if err := a.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return broker.ErrTransportUnavailable(err)
	}

	queueName := sub.info.Group
	if queueName == "" {
		queueName = exchange + ".broadcast"
	}
	q, err := a.ch.QueueDeclare(queueName, true, false, sub.info.Group == "", false, nil)
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}
	if err := a.ch.QueueBind(q.Name, sub.typeTag, exchange, false, nil); err != nil {
		return broker.ErrTransportUnavailable(err)
	}

	deliveries, err := a.ch.Consume(q.Name, "", sub.info.AutoAck, false, false, false, nil)
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}

	a.wg.Add(1)
	go a.consumeLoop(ctx, deliveries, sub)
	return nil
}

func (a *Adapter) consumeLoop(ctx context.Context, deliveries <-chan amqp.Delivery, sub pendingSub) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			a.dispatch(ctx, d, sub)
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, d amqp.Delivery, sub pendingSub) {
	headers := make(map[string]string, len(d.Headers))
	msgID := ""
	for k, v := range d.Headers {
		if k == broker.HeaderMessageID {
			msgID, _ = v.(string)
			continue
		}
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	wire := broker.WireMessage{
		ID:            msgID,
		TypeTag:       sub.typeTag,
		Payload:       d.Body,
		Headers:       headers,
		Timestamp:     d.Timestamp,
		CorrelationID: d.CorrelationId,
	}
	deliveryCount := 0
	if d.Redelivered {
		deliveryCount = 1
	}
	mc := broker.NewMessageContext(wire, broker.MessageMetadata{DeliveryCount: deliveryCount},
		func() error { return d.Ack(false) },
		func(requeue bool) error { return d.Nack(false, requeue) },
	)

	if err := a.base.ProcessMessage(ctx, mc); err != nil {
		logger.L().Error("amqp dispatch failed", "type", sub.typeTag, "error", err)
	}
}

func (a *Adapter) StopInternal(ctx context.Context) error {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()

	var firstErr error
	if a.ch != nil {
		if err := a.ch.Close(); err != nil {
			firstErr = err
		}
		a.ch = nil
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.conn = nil
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
	return a.conn != nil && !a.conn.IsClosed() && !a.disposed
}
