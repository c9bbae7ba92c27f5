// Package serialization provides pluggable encode/decode of message payloads
// ahead of compression, keeping the broker façade decoupled from any single
// wire format.
//
// Usage:
//
//	ser := serialization.JSON()
//	data, err := ser.Serialize(msg)
//	...
//	var out Msg
//	err = ser.Deserialize(data, &out)
package serialization

import "github.com/nova-labs/messagemesh/pkg/errors"

// Error codes for serialization operations.
const (
	CodeEncodeFailed = "SERIALIZATION_ENCODE_FAILED"
	CodeDecodeFailed = "SERIALIZATION_DECODE_FAILED"
)

// ErrEncodeFailed wraps a failure turning a value into wire bytes.
func ErrEncodeFailed(err error) *errors.AppError {
	return errors.New(CodeEncodeFailed, "failed to serialize message", err)
}

// ErrDecodeFailed wraps a failure turning wire bytes back into a value.
func ErrDecodeFailed(err error) *errors.AppError {
	return errors.New(CodeDecodeFailed, "failed to deserialize message", err)
}

// Serializer encodes and decodes message payloads. Implementations must
// round-trip nested structs, enums (Go string/int-backed types), slices,
// maps, time.Time with timezone, time.Duration, and pointer/optional fields.
type Serializer interface {
	// Name identifies the wire format, used in the MessageFormat header.
	Name() string

	// Serialize encodes v into wire bytes.
	Serialize(v any) ([]byte, error)

	// Deserialize decodes data into the value pointed to by v.
	Deserialize(data []byte, v any) error
}
