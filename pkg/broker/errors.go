package broker

import "github.com/nova-labs/messagemesh/pkg/errors"

// Error codes for broker operations, covering the full error taxonomy.
const (
	CodeInvalidArgument      = "BROKER_INVALID_ARGUMENT"
	CodeInvalidOptions       = "BROKER_INVALID_OPTIONS"
	CodeTransportUnavailable = "BROKER_TRANSPORT_UNAVAILABLE"
	CodeCircuitOpen          = "BROKER_CIRCUIT_OPEN"
	CodeRateLimited          = "BROKER_RATE_LIMITED"
	CodeBulkheadFull         = "BROKER_BULKHEAD_FULL"
	CodeDeserialization      = "BROKER_DESERIALIZATION"
	CodeHandlerError         = "BROKER_HANDLER_ERROR"
	CodeTimeout              = "BROKER_TIMEOUT"
	CodeCancelled            = "BROKER_CANCELLED"
	CodeDisposed             = "BROKER_DISPOSED"
	CodePublishFailure       = "BROKER_PUBLISH_FAILURE"
)

// ErrInvalidArgument creates an error for null/invalid caller input. Never retried.
func ErrInvalidArgument(msg string) *errors.AppError {
	return errors.New(CodeInvalidArgument, msg, nil)
}

// ErrInvalidOptions creates an error for an eager options-validation failure.
// Fatal at construction time.
func ErrInvalidOptions(msg string) *errors.AppError {
	return errors.New(CodeInvalidOptions, msg, nil)
}

// ErrTransportUnavailable creates an error for a lost adapter connection.
// Retried under the configured retry policy.
func ErrTransportUnavailable(err error) *errors.AppError {
	return errors.New(CodeTransportUnavailable, "transport connection unavailable", err)
}

// ErrCircuitOpen creates a pre-flight rejection carrying a retry-after hint.
func ErrCircuitOpen(retryAfterMs int64) *errors.AppError {
	return errors.New(CodeCircuitOpen, "circuit breaker is open", nil).
		WithField("retry_after_ms", retryAfterMs)
}

// ErrRateLimited creates a rejection carrying retry-after and reset-at hints.
func ErrRateLimited(retryAfterMs, resetAtMs int64) *errors.AppError {
	return errors.New(CodeRateLimited, "rate limit exceeded", nil).
		WithField("retry_after_ms", retryAfterMs).
		WithField("reset_at_ms", resetAtMs)
}

// ErrBulkheadFull creates a rejection for a saturated bulkhead. No retry-after.
func ErrBulkheadFull() *errors.AppError {
	return errors.New(CodeBulkheadFull, "bulkhead is at capacity", nil)
}

// ErrDeserialization creates an error for a message body that is not decodable.
func ErrDeserialization(err error) *errors.AppError {
	return errors.New(CodeDeserialization, "message body could not be deserialized", err)
}

// ErrHandlerError wraps a panic/error raised by a user handler. Logged, never
// propagated to the transport loop.
func ErrHandlerError(err error) *errors.AppError {
	return errors.New(CodeHandlerError, "subscription handler failed", err)
}

// ErrTimeout creates an error for a wait that exceeded its bounded deadline.
func ErrTimeout(operation string) *errors.AppError {
	return errors.New(CodeTimeout, "operation timed out: "+operation, nil)
}

// ErrCancelled creates an error for cooperative cancellation.
func ErrCancelled() *errors.AppError {
	return errors.New(CodeCancelled, "operation was cancelled", nil)
}

// ErrDisposed creates an error for an operation attempted after Dispose.
func ErrDisposed() *errors.AppError {
	return errors.New(CodeDisposed, "broker has been disposed", nil)
}

// ErrPublishFailure wraps an adapter-reported publish failure.
func ErrPublishFailure(err error) *errors.AppError {
	return errors.New(CodePublishFailure, "adapter failed to publish message", err)
}
