package broker

import "time"

// PublishOption configures a single Publish call.
type PublishOption func(*PublishOptions)

// PublishOptions carries per-publish hints. Transports honor the subset they
// support; others are ignored without error.
type PublishOptions struct {
	// DelayMs delays delivery (SQS, Azure Service Bus).
	DelayMs int64
	// OrderingKey/PartitionKey groups messages for ordered delivery (Kafka,
	// Kinesis, GCP-style ordering keys).
	OrderingKey string
	// GroupID groups messages for FIFO ordering (SQS FIFO message groups).
	GroupID string
	// DeduplicationID suppresses transport-level duplicate delivery.
	DeduplicationID string
}

// WithDelay sets a delivery delay in milliseconds.
func WithDelay(ms int64) PublishOption {
	return func(o *PublishOptions) { o.DelayMs = ms }
}

// WithOrderingKey sets the ordering/partition key.
func WithOrderingKey(key string) PublishOption {
	return func(o *PublishOptions) { o.OrderingKey = key }
}

// WithGroupID sets the FIFO group id.
func WithGroupID(id string) PublishOption {
	return func(o *PublishOptions) { o.GroupID = id }
}

// WithDeduplicationID sets the transport-level dedup id.
func WithDeduplicationID(id string) PublishOption {
	return func(o *PublishOptions) { o.DeduplicationID = id }
}

// SubscriptionOption configures a single Subscribe call.
type SubscriptionOption func(*SubscriptionOptions)

// SubscriptionOptions carries per-subscription hints.
type SubscriptionOptions struct {
	// Group is the consumer group / queue name for competing consumers.
	Group string
	// AutoAck acknowledges a message before handlers run. See the Open
	// Question decision recorded in DESIGN.md: with AutoAck=true the
	// transport still acknowledges even if a handler returns an error.
	AutoAck bool
}

// WithGroup sets the consumer group.
func WithGroup(group string) SubscriptionOption {
	return func(o *SubscriptionOptions) { o.Group = group }
}

// WithAutoAck enables/disables automatic acknowledgment.
func WithAutoAck(autoAck bool) SubscriptionOption {
	return func(o *SubscriptionOptions) { o.AutoAck = autoAck }
}

// Options is the top-level configuration bundle (§6 Configuration surface).
// Retry and Compression carry Enabled; every nested bundle has its own
// Validate(), and Options.Validate
// runs all of them and fails on the first violation encountered.
type Options struct {
	Broker      BrokerOptions      `env-prefix:"BROKER_"`
	Retry       RetryPolicy        `env-prefix:"RETRY_"`
	Compression CompressionOptions `env-prefix:"COMPRESSION_"`
}

// BrokerOptions selects the transport and carries its connection settings.
type BrokerOptions struct {
	// Type selects the adapter: "memory", "amqp", "kafka", "sqssns",
	// "servicebus", "kinesis", "nats".
	Type string `env:"BROKER_TYPE" env-default:"memory" validate:"required,oneof=memory amqp kafka sqssns servicebus kinesis nats"`
}

// Validate checks BrokerOptions against §4.15.
func (o BrokerOptions) Validate() error {
	switch o.Type {
	case "memory", "amqp", "kafka", "sqssns", "servicebus", "kinesis", "nats":
		return nil
	default:
		return ErrInvalidOptions("broker.type must be one of memory|amqp|kafka|sqssns|servicebus|kinesis|nats")
	}
}

// RetryPolicy configures adapter transient-error retries.
type RetryPolicy struct {
	Enabled               bool          `env:"RETRY_ENABLED" env-default:"true"`
	MaxAttempts           int           `env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
	InitialDelay          time.Duration `env:"RETRY_INITIAL_DELAY" env-default:"100ms"`
	MaxDelay              time.Duration `env:"RETRY_MAX_DELAY" env-default:"10s"`
	BackoffMultiplier     float64       `env:"RETRY_BACKOFF_MULTIPLIER" env-default:"2.0"`
	UseExponentialBackoff bool          `env:"RETRY_USE_EXPONENTIAL_BACKOFF" env-default:"true"`
}

// Validate checks RetryPolicy against §4.15.
func (o RetryPolicy) Validate() error {
	if !o.Enabled {
		return nil
	}
	if o.MaxAttempts <= 0 {
		return ErrInvalidOptions("retry.max_attempts must be positive")
	}
	if o.InitialDelay <= 0 {
		return ErrInvalidOptions("retry.initial_delay must be positive")
	}
	if o.MaxDelay <= 0 {
		return ErrInvalidOptions("retry.max_delay must be positive")
	}
	if o.UseExponentialBackoff && o.BackoffMultiplier <= 1 {
		return ErrInvalidOptions("retry.backoff_multiplier must be greater than 1 when exponential backoff is enabled")
	}
	return nil
}

// CompressionOptions selects and configures the wire compression codec.
// Compression only applies when Enabled, the serialized payload is at
// least MinSizeBytes, and the message's declared content type is not in
// NonCompressibleContentTypes (§3: compressing small or already-compressed
// payloads wastes CPU and can grow the payload).
type CompressionOptions struct {
	Enabled   bool   `env:"COMPRESSION_ENABLED" env-default:"false"`
	Algorithm string `env:"COMPRESSION_ALGORITHM" env-default:"gzip" validate:"oneof=none gzip deflate brotli"`
	Level     int    `env:"COMPRESSION_LEVEL" env-default:"6"`
	// MinSizeBytes is the minimum serialized payload size compression is
	// applied to. Defaults to 1 KiB.
	MinSizeBytes int `env:"COMPRESSION_MIN_SIZE_BYTES" env-default:"1024"`
	// NonCompressibleContentTypes lists HeaderMessageFormat values (the
	// serializer name Publish stamps, e.g. "json") that skip compression
	// regardless of size.
	NonCompressibleContentTypes []string `env:"COMPRESSION_NON_COMPRESSIBLE_TYPES"`
}

// Validate checks CompressionOptions against §4.15.
func (o CompressionOptions) Validate() error {
	if !o.Enabled {
		return nil
	}
	switch o.Algorithm {
	case "none", "gzip", "deflate", "brotli":
	default:
		return ErrInvalidOptions("compression.algorithm must be one of none|gzip|deflate|brotli")
	}
	if o.MinSizeBytes < 0 {
		return ErrInvalidOptions("compression.min_size_bytes must not be negative")
	}
	return nil
}

// minSizeOrDefault returns MinSizeBytes, defaulting to 1 KiB when unset.
func (o CompressionOptions) minSizeOrDefault() int {
	if o.MinSizeBytes <= 0 {
		return 1024
	}
	return o.MinSizeBytes
}

// skipsCompression reports whether contentType is in the configured
// non-compressible set.
func (o CompressionOptions) skipsCompression(contentType string) bool {
	for _, ct := range o.NonCompressibleContentTypes {
		if ct == contentType {
			return true
		}
	}
	return false
}

// Validate runs every nested bundle's Validate and returns the first failure.
func (o Options) Validate() error {
	if err := o.Broker.Validate(); err != nil {
		return err
	}
	if err := o.Retry.Validate(); err != nil {
		return err
	}
	if err := o.Compression.Validate(); err != nil {
		return err
	}
	return nil
}
