// Package servicebus is the cloud service bus implementation of broker.Port,
// built on github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus. Each
// type tag maps to a topic; each subscription maps to an azservicebus
// subscription under that topic.
package servicebus

import (
	"context"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/nova-labs/messagemesh/pkg/broker"
	"github.com/nova-labs/messagemesh/pkg/logger"
)

// Config configures the Service Bus adapter.
type Config struct {
	Namespace string // "<namespace>.servicebus.windows.net"
	// Subscriptions maps a type tag to the subscription name under the
	// topic of the same name as the type tag.
	Subscriptions map[string]string
}

// Adapter is the Azure Service Bus broker.Port implementation.
type Adapter struct {
	cfg  Config
	base *broker.Base

	mu      sync.RWMutex
	client  *azservicebus.Client
	senders map[string]*azservicebus.Sender

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	subs     []pendingSub
	disposed bool
}

type pendingSub struct {
	typeTag string
	info    *broker.SubscriptionInfo
}

// New constructs a Service Bus adapter. The client authenticates via
// DefaultAzureCredential on Start.
func New(cfg Config) *Adapter {
	return &Adapter{cfg: cfg, senders: make(map[string]*azservicebus.Sender)}
}

// Bind wires the adapter to the owning façade; see broker.Binder.
func (a *Adapter) Bind(b *broker.Base) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.base = b
}

func (a *Adapter) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	a.mu.Lock()
	client := a.client
	sender, ok := a.senders[msg.TypeTag]
	if client != nil && !ok {
		var err error
		sender, err = client.NewSender(msg.TypeTag, nil)
		if err != nil {
			a.mu.Unlock()
			return broker.ErrPublishFailure(err)
		}
		a.senders[msg.TypeTag] = sender
	}
	a.mu.Unlock()

	if client == nil || sender == nil {
		return broker.ErrTransportUnavailable(nil)
	}

	sbMsg := &azservicebus.Message{
		Body:                  msg.Payload,
		MessageID:             &msg.ID,
		ApplicationProperties: make(map[string]any, len(msg.Headers)),
	}
	if msg.CorrelationID != "" {
		sbMsg.CorrelationID = &msg.CorrelationID
	}
	for k, v := range msg.Headers {
		sbMsg.ApplicationProperties[k] = v
	}
	if opts.GroupID != "" {
		sbMsg.PartitionKey = &opts.GroupID
	}
	if opts.DelayMs > 0 {
		t := time.Now().Add(time.Duration(opts.DelayMs) * time.Millisecond)
		sbMsg.ScheduledEnqueueTime = &t
	}

	if err := sender.SendMessage(ctx, sbMsg, nil); err != nil {
		return broker.ErrPublishFailure(err)
	}
	return nil
}

// BatchInternal sends each item through its sender in turn, reporting
// per-item results. A true azservicebus.MessageBatch requires all items to
// share one sender/topic, which publish-time batches spanning type tags
// cannot guarantee, so the per-item fallback is used.
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
	if a.client != nil {
		return nil
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}
	client, err := azservicebus.NewClient(a.cfg.Namespace, cred, nil)
	if err != nil {
		return broker.ErrTransportUnavailable(err)
	}
	a.client = client

	consumeCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	for _, sub := range a.subs {
		subName := a.cfg.Subscriptions[sub.typeTag]
		if subName == "" {
			subName = sub.info.Group
		}
		if subName == "" {
			continue
		}
		receiver, err := client.NewReceiverForSubscription(sub.typeTag, subName, nil)
		if err != nil {
			return broker.ErrTransportUnavailable(err)
		}
		a.wg.Add(1)
		go a.receiveLoop(consumeCtx, receiver, sub)
	}
	return nil
}

func (a *Adapter) receiveLoop(ctx context.Context, receiver *azservicebus.Receiver, sub pendingSub) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := receiver.ReceiveMessages(ctx, 10, nil)
		if err != nil {
			logger.L().Error("servicebus receive failed", "type", sub.typeTag, "error", err)
			time.Sleep(time.Second)
			continue
		}
		for _, m := range msgs {
			a.dispatch(ctx, receiver, m, sub)
		}
	}
}

func (a *Adapter) dispatch(ctx context.Context, receiver *azservicebus.Receiver, m *azservicebus.ReceivedMessage, sub pendingSub) {
	headers := make(map[string]string, len(m.ApplicationProperties))
	for k, v := range m.ApplicationProperties {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	msgID := ""
	if m.MessageID != nil {
		msgID = *m.MessageID
	}
	correlationID := ""
	if m.CorrelationID != nil {
		correlationID = *m.CorrelationID
	}

	wire := broker.WireMessage{
		ID:            msgID,
		TypeTag:       sub.typeTag,
		Payload:       m.Body,
		Headers:       headers,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}
	mc := broker.NewMessageContext(wire, broker.MessageMetadata{DeliveryCount: int(m.DeliveryCount)},
		func() error { return receiver.CompleteMessage(ctx, m, nil) },
		func(requeue bool) error {
			if requeue {
				return receiver.AbandonMessage(ctx, m, nil)
			}
			return receiver.DeadLetterMessage(ctx, m, nil)
		},
	)

	if err := a.base.ProcessMessage(ctx, mc); err != nil {
		logger.L().Error("servicebus dispatch failed", "type", sub.typeTag, "error", err)
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
	defer a.mu.Unlock()
	a.disposed = true
	if a.client != nil {
		_ = a.client.Close(context.Background())
		a.client = nil
	}
	return err
}

func (a *Adapter) Healthy(ctx context.Context) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client != nil && !a.disposed
}
