package broker

import (
	"context"
	"reflect"
	"time"

	"github.com/nova-labs/messagemesh/pkg/errors"
)

// typeTagOf returns the stable string tag for T, used as the subscription
// registry key (Design Note §9: "tagged type registry").
func typeTagOf[T any]() string {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		// T is an interface type instantiated with a nil value; fall back to
		// the static type parameter name via reflect on a pointer.
		return reflect.TypeOf((*T)(nil)).Elem().String()
	}
	return t.String()
}

// Publish serializes msg.Payload, optionally compresses it, and hands the
// result to the adapter's PublishInternal. Fails with InvalidArgument if b
// is nil; an adapter error is returned wrapped as PublishFailure.
func Publish[T any](ctx context.Context, b *Base, msg Message[T], opts ...PublishOption) error {
	if b == nil {
		return ErrInvalidArgument("broker must not be nil")
	}

	var po PublishOptions
	for _, opt := range opts {
		opt(&po)
	}

	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.Type == "" {
		msg.Type = typeTagOf[T]()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	if err := b.ensureStarted(ctx); err != nil {
		return err
	}

	payload, err := b.serializer.Serialize(msg.Payload)
	if err != nil {
		return errors.Wrap(err, "failed to serialize message payload")
	}

	headers := cloneHeaders(msg.Headers)
	headers[HeaderMessageFormat] = b.serializer.Name()

	if b.compressor != nil && b.compression.Enabled && len(payload) >= b.compression.minSizeOrDefault() && !b.compression.skipsCompression(headers[HeaderMessageFormat]) {
		compressed, cErr := b.compressor.Compress(payload)
		if cErr != nil {
			return errors.Wrap(cErr, "failed to compress message payload")
		}
		payload = compressed
		headers[HeaderCompressionAlgo] = string(b.compressor.Algorithm())
	}

	wire := WireMessage{
		ID:            msg.ID,
		TypeTag:       msg.Type,
		Payload:       payload,
		Headers:       headers,
		Timestamp:     msg.Timestamp,
		CorrelationID: msg.CorrelationID,
		TenantID:      msg.TenantID,
	}

	if err := b.port.PublishInternal(ctx, wire, po); err != nil {
		logPublishFailure(msg.Type, err)
		return ErrPublishFailure(err)
	}
	return nil
}

// Subscribe registers handler for every message published with type tag
// typeTagOf[T](). Handlers for the same type are invoked in registration
// order; one handler's error or panic never prevents later handlers in the
// same dispatch from observing the message.
func Subscribe[T any](ctx context.Context, b *Base, handler func(ctx context.Context, msg Message[T], mc *MessageContext) error, opts ...SubscriptionOption) (*SubscriptionInfo, error) {
	if b == nil {
		return nil, ErrInvalidArgument("broker must not be nil")
	}
	if handler == nil {
		return nil, ErrInvalidArgument("handler must not be nil")
	}

	var so SubscriptionOptions
	for _, opt := range opts {
		opt(&so)
	}

	tag := typeTagOf[T]()
	info := &SubscriptionInfo{TypeTag: tag, Group: so.Group, AutoAck: so.AutoAck}
	info.dispatch = func(ctx context.Context, mc *MessageContext) error {
		body := mc.Message.Payload
		if b.compressor != nil && b.compressor.IsCompressed(body) {
			decompressed, err := b.compressor.Decompress(body)
			if err != nil {
				return ErrDeserialization(err)
			}
			body = decompressed
		}

		var payload T
		if err := b.serializer.Deserialize(body, &payload); err != nil {
			return ErrDeserialization(err)
		}

		msg := Message[T]{
			ID:            mc.Message.ID,
			Type:          mc.Message.TypeTag,
			Payload:       payload,
			Headers:       mc.Message.Headers,
			Timestamp:     mc.Message.Timestamp,
			CorrelationID: mc.Message.CorrelationID,
			TenantID:      mc.Message.TenantID,
		}
		return handler(ctx, msg, mc)
	}

	if err := b.register(ctx, tag, info); err != nil {
		return nil, err
	}
	return info, nil
}

func cloneHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h)+2)
	for k, v := range h {
		out[k] = v
	}
	return out
}
