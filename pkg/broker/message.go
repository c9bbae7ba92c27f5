package broker

import (
	"context"
	"time"
)

// Message is the typed envelope callers publish and subscriptions receive.
// It mirrors the teacher's messaging.Message field-for-field but carries a
// typed Payload instead of raw bytes; the wire boundary encodes Payload via
// the broker's Serializer into WireMessage.
type Message[T any] struct {
	// ID is a unique identifier for the message. Generated if empty.
	ID string `json:"id"`

	// Type is the stable tag used to route the message to subscribers.
	// Defaults to the Go type name of T if left empty by the caller.
	Type string `json:"type"`

	// Payload is the typed message body.
	Payload T `json:"payload"`

	// Headers are optional key/value metadata, including the well-known
	// wire headers (CorrelationId, TenantId, ...).
	Headers map[string]string `json:"headers,omitempty"`

	// Timestamp is when the message was created. Set to time.Now() if zero.
	Timestamp time.Time `json:"timestamp"`

	// CorrelationID links related messages across a workflow or saga.
	CorrelationID string `json:"correlation_id,omitempty"`

	// TenantID identifies the owning tenant, if multi-tenancy is in use.
	TenantID string `json:"tenant_id,omitempty"`
}

// WireMessage is the type-erased form of Message[T] that crosses the
// Port boundary. TypeTag is the subscription registry key; Payload is the
// serialized-then-optionally-compressed-then-optionally-encrypted body.
type WireMessage struct {
	ID            string            `json:"id"`
	TypeTag       string            `json:"type"`
	Payload       []byte            `json:"payload"`
	Headers       map[string]string `json:"headers,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	TenantID      string            `json:"tenant_id,omitempty"`
}

// Well-known wire header names (stable contract, see spec §6).
const (
	HeaderMessageType     = "MessageType"
	HeaderMessageID       = "MessageId"
	HeaderTimestamp       = "Timestamp"
	HeaderCorrelationID   = "CorrelationId"
	HeaderTenantID        = "TenantId"
	HeaderTenantIDAlt1    = "X-Tenant-Id"
	HeaderTenantIDAlt2    = "X-Tenant"
	HeaderTenantIDAlt3    = "tenant_id"
	HeaderRateLimitRemain = "X-RateLimit-Remaining"
	HeaderRateLimitReset  = "X-RateLimit-Reset"
	HeaderBatchCount      = "BatchCount"
	HeaderMessageFormat   = "MessageFormat"
	HeaderCompressionAlgo = "CompressionAlgorithm"
	HeaderSecurityAlgo    = "SecurityAlgorithm"
	HeaderSecurityKeyID   = "SecurityKeyId"
)

// MessageMetadata carries transport-specific, adapter-populated information
// about a received message. Treated as read-only by handlers.
type MessageMetadata struct {
	// Partition is the partition number for partitioned logs (Kafka, Kinesis).
	Partition int32 `json:"partition,omitempty"`

	// Offset/SequenceNumber is the position within the partition.
	Offset int64 `json:"offset,omitempty"`

	// DeliveryCount is how many times this message has been delivered.
	DeliveryCount int `json:"delivery_count,omitempty"`

	// ReceiptHandle is used for acknowledgment in SQS/ServiceBus-like systems.
	ReceiptHandle string `json:"receipt_handle,omitempty"`
}

// MessageContext is passed to subscription handlers. It exposes
// acknowledgment primitives that adapters wire to their native ack/nack and
// carries any claims attached by the security envelope on successful
// authentication.
type MessageContext struct {
	Message  WireMessage
	Metadata MessageMetadata
	Claims   map[string]any

	ackFn  func() error
	nackFn func(requeue bool) error
}

// NewMessageContext constructs a MessageContext with adapter-supplied
// ack/nack callbacks. Adapters that have no native ack concept (e.g. the
// in-memory transport) may pass no-op functions.
func NewMessageContext(msg WireMessage, meta MessageMetadata, ack func() error, nack func(requeue bool) error) *MessageContext {
	return &MessageContext{Message: msg, Metadata: meta, ackFn: ack, nackFn: nack}
}

// Acknowledge confirms successful processing to the underlying transport.
func (mc *MessageContext) Acknowledge() error {
	if mc.ackFn == nil {
		return nil
	}
	return mc.ackFn()
}

// Reject signals failed processing. requeue asks the transport to redeliver
// the message if it supports that semantic.
func (mc *MessageContext) Reject(requeue bool) error {
	if mc.nackFn == nil {
		return nil
	}
	return mc.nackFn(requeue)
}

// SubscriptionInfo describes a registered subscription, handed to adapters
// via SubscribeInternal so transports that need per-type registration (queue
// binding, consumer group, filter policy) can set themselves up.
type SubscriptionInfo struct {
	// TypeTag is the message type this subscription was registered for.
	TypeTag string

	// Group is the consumer group / queue name, when the transport supports
	// competing-consumer semantics. Empty means broadcast/fanout.
	Group string

	// AutoAck controls whether the adapter should acknowledge a message as
	// soon as it is handed to ProcessMessage, before handlers run.
	AutoAck bool

	// dispatch is the type-erased handler invoked by the base broker's
	// ProcessMessage for every message whose TypeTag matches.
	dispatch func(ctx context.Context, mc *MessageContext) error
}
