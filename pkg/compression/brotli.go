package compression

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"
)

// Brotli has no fixed magic number; streams produced by this codec are
// tagged with a 2-byte sentinel header (0xCE 0xB2, the UTF-8 encoding of the
// Greek beta glyph) since brotli's own structural detection is unreliable for short
// inputs. The sentinel is stripped/added transparently by this codec.
var brotliSentinel = []byte{0xce, 0xb2}

func isBrotli(data []byte) bool {
	return len(data) >= 2 && bytes.Equal(data[:2], brotliSentinel)
}

type brotliCodec struct {
	level int
}

func newBrotliCodec(level int) *brotliCodec {
	return &brotliCodec{level: clampLevel(level, brotli.BestSpeed, brotli.BestCompression)}
}

func (c *brotliCodec) Algorithm() Algorithm { return Brotli }

func (c *brotliCodec) Compress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	if len(data) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	buf.Write(brotliSentinel)
	w := brotli.NewWriterLevel(&buf, c.level)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *brotliCodec) Decompress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	if len(data) == 0 {
		return []byte{}, nil
	}
	if !isBrotli(data) {
		return nil, ErrInvalidData(nil)
	}

	r := brotli.NewReader(bytes.NewReader(data[2:]))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrInvalidData(err)
	}
	return out, nil
}

func (c *brotliCodec) IsCompressed(data []byte) bool {
	return isBrotli(data)
}
