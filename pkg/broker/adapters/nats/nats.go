// Package nats is the lightweight pub/sub implementation of broker.Port,
// built on github.com/nats-io/nats.go. Subscriptions with a Group use a NATS
// queue group for competing-consumer semantics; an empty group is plain
// fanout.
package nats

import (
	"context"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/logger"
)

// Config configures the NATS adapter.
type Config struct {
	URL string
}

// Adapter is the NATS broker.Port implementation.
type Adapter struct {
	cfg  Config
	base *broker.Base

	mu       sync.RWMutex
	conn     *nats.Conn
	subs     []pendingSub
	natsSubs []*nats.Subscription
	disposed bool
}

type pendingSub struct {
	typeTag string
	info    *broker.SubscriptionInfo
}

// New constructs a NATS adapter. The connection is established on Start.
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
	conn := a.conn
	a.mu.RUnlock()

	if conn == nil {
		return broker.ErrTransportUnavailable(nil)
	}

	natsMsg := nats.NewMsg(msg.TypeTag)
	natsMsg.Data = msg.Payload
	for k, v := range msg.Headers {
		natsMsg.Header.Set(k, v)
	}
	natsMsg.Header.Set(broker.HeaderMessageID, msg.ID)

	if err := conn.PublishMsg(natsMsg); err != nil {
		return broker.ErrPublishFailure(err)
	}
	return nil
}

// BatchInternal publishes each item in turn; core NATS has no batch publish.
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

	conn, err := nats.Connect(a.cfg.URL)
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}
	a.conn = conn

	for _, sub := range a.subs {
		if err := a.startSubscription(sub); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) startSubscription(sub pendingSub) error {
	handler := func(m *nats.Msg) { a.dispatch(m, sub) }

	var natsSub *nats.Subscription
	var err error
	if sub.info.Group != "" {
		natsSub, err = a.conn.QueueSubscribe(sub.typeTag, sub.info.Group, handler)
	} else {
		natsSub, err = a.conn.Subscribe(sub.typeTag, handler)
	}
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}
	a.natsSubs = append(a.natsSubs, natsSub)
	return nil
}

func (a *Adapter) dispatch(m *nats.Msg, sub pendingSub) {
	headers := make(map[string]string, len(m.Header))
	msgID := ""
	for k := range m.Header {
		if k == broker.HeaderMessageID {
			msgID = m.Header.Get(k)
			continue
		}
		headers[k] = m.Header.Get(k)
	}

	wire := broker.WireMessage{
		ID:      msgID,
		TypeTag: sub.typeTag,
		Payload: m.Data,
		Headers: headers,
	}
	mc := broker.NewMessageContext(wire, broker.MessageMetadata{},
		func() error { return m.Ack() },
		func(requeue bool) error { return m.Nak() },
	)

	ctx := context.Background()
	if err := a.base.ProcessMessage(ctx, mc); err != nil {
		logger.L().Error("nats dispatch failed", "type", sub.typeTag, "error", err)
	}
}

func (a *Adapter) StopInternal(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, s := range a.natsSubs {
		_ = s.Unsubscribe()
	}
	a.natsSubs = nil
	return nil
}

func (a *Adapter) DisposeInternal() error {
	_ = a.StopInternal(context.Background())

	a.mu.Lock()
	defer a.mu.Unlock()
	a.disposed = true
	if a.conn != nil {
		a.conn.Close()
		a.conn = nil
	}
	return nil
}

func (a *Adapter) Healthy(ctx context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.conn != nil && a.conn.IsConnected() && !a.disposed
}
