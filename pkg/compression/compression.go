// Package compression provides byte-level compress/decompress codecs with
// magic-byte format auto-detection, used by the broker to shrink large
// payloads before they hit the wire.
//
// Usage:
//
//	codec := compression.New(compression.GZip, 6)
//	out, err := codec.Compress(payload)
//	...
//	alg := compression.Detect(received)
//	in, err := compression.New(alg, 0).Decompress(received)
package compression

import "github.com/nova-labs/messagemesh/pkg/errors"

// Algorithm identifies a compression codec.
type Algorithm string

const (
	None    Algorithm = "none"
	GZip    Algorithm = "gzip"
	Deflate Algorithm = "deflate"
	Brotli  Algorithm = "brotli"
)

// Error codes for compression operations.
const (
	CodeInvalidData = "COMPRESSION_INVALID_DATA"
	CodeUnsupported = "COMPRESSION_UNSUPPORTED_ALGORITHM"
)

// ErrInvalidData wraps a decode failure against malformed compressed bytes.
func ErrInvalidData(err error) *errors.AppError {
	return errors.New(CodeInvalidData, "data is not valid for this codec", err)
}

// Codec compresses and decompresses byte slices for a single algorithm.
type Codec interface {
	// Algorithm returns the codec's identity.
	Algorithm() Algorithm

	// Compress returns the compressed form of data at the configured level.
	// Empty input returns empty output; nil input returns nil.
	Compress(data []byte) ([]byte, error)

	// Decompress reverses Compress. Returns ErrInvalidData if data is not a
	// valid stream for this codec.
	Decompress(data []byte) ([]byte, error)

	// IsCompressed inspects the leading bytes of data for this codec's
	// magic signature.
	IsCompressed(data []byte) bool
}

// New constructs the codec for alg. New(None) returns a codec whose
// Compress/Decompress are identity functions.
func New(alg Algorithm, level int) Codec {
	switch alg {
	case GZip:
		return newGzipCodec(level)
	case Deflate:
		return newDeflateCodec(level)
	case Brotli:
		return newBrotliCodec(level)
	default:
		return noneCodec{}
	}
}

// Detect inspects the leading bytes of data and returns the algorithm whose
// magic signature matches, or None if no known signature is present.
func Detect(data []byte) Algorithm {
	switch {
	case isGzip(data):
		return GZip
	case isDeflate(data):
		return Deflate
	case isBrotli(data):
		return Brotli
	default:
		return None
	}
}

// clampLevel maps an arbitrary caller-supplied level onto [min, max].
func clampLevel(level, min, max int) int {
	if level < min {
		return min
	}
	if level > max {
		return max
	}
	return level
}

type noneCodec struct{}

func (noneCodec) Algorithm() Algorithm                    { return None }
func (noneCodec) Compress(data []byte) ([]byte, error)    { return data, nil }
func (noneCodec) Decompress(data []byte) ([]byte, error)  { return data, nil }
func (noneCodec) IsCompressed(data []byte) bool           { return false }
