package security

import (
	"context"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// Decorator wraps a broker.Port, sealing outbound payloads through an
// Envelope (when encryption is enabled) and stamping the security wire
// headers so the receive path can detect the algorithm and key in use.
type Decorator struct {
	next     broker.Port
	envelope *Envelope
	keyID    string
}

// Wrap returns a broker.Port that seals payloads through envelope before
// forwarding to next. envelope may be nil to disable encryption while still
// using the Decorator as a pass-through (e.g. when only bearer-token
// authentication, handled separately by Authenticator, is in use).
func Wrap(next broker.Port, envelope *Envelope, keyID string) *Decorator {
	return &Decorator{next: next, envelope: envelope, keyID: keyID}
}

func (d *Decorator) PublishInternal(ctx context.Context, msg broker.WireMessage, opts broker.PublishOptions) error {
	if d.envelope == nil {
		return d.next.PublishInternal(ctx, msg, opts)
	}

	sealed, err := d.envelope.Seal(msg.Payload)
	if err != nil {
		return broker.ErrPublishFailure(err)
	}
	msg.Payload = sealed

	if msg.Headers == nil {
		msg.Headers = make(map[string]string, 2)
	}
	msg.Headers[broker.HeaderSecurityAlgo] = "AES-256-GCM"
	msg.Headers[broker.HeaderSecurityKeyID] = d.keyID

	return d.next.PublishInternal(ctx, msg, opts)
}

func (d *Decorator) BatchInternal(ctx context.Context, items []broker.WireMessage, opts broker.PublishOptions) (broker.BatchResult, error) {
	if d.envelope == nil {
		return d.next.BatchInternal(ctx, items, opts)
	}

	sealed := make([]broker.WireMessage, len(items))
	for i, item := range items {
		payload, err := d.envelope.Seal(item.Payload)
		if err != nil {
			return broker.AllFailed(items, broker.ErrPublishFailure(err)), nil
		}
		item.Payload = payload
		if item.Headers == nil {
			item.Headers = make(map[string]string, 2)
		}
		item.Headers[broker.HeaderSecurityAlgo] = "AES-256-GCM"
		item.Headers[broker.HeaderSecurityKeyID] = d.keyID
		sealed[i] = item
	}

	return d.next.BatchInternal(ctx, sealed, opts)
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

// Open decrypts an inbound sealed payload, for adapters to call from their
// dispatch path before handing the WireMessage to Base.ProcessMessage.
func (d *Decorator) Open(payload []byte) ([]byte, error) {
	if d.envelope == nil {
		return payload, nil
	}
	return d.envelope.Open(payload)
}
