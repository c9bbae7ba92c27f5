package compression

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// gzip magic number: 1F 8B.
var gzipMagic = []byte{0x1f, 0x8b}

func isGzip(data []byte) bool {
	return len(data) >= 2 && bytes.Equal(data[:2], gzipMagic)
}

type gzipCodec struct {
	level int
}

func newGzipCodec(level int) *gzipCodec {
	return &gzipCodec{level: clampLevel(level, gzip.NoCompression, gzip.BestCompression)}
}

func (c *gzipCodec) Algorithm() Algorithm { return GZip }

func (c *gzipCodec) Compress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	if len(data) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *gzipCodec) Decompress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	if len(data) == 0 {
		return []byte{}, nil
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidData(err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrInvalidData(err)
	}
	return out, nil
}

func (c *gzipCodec) IsCompressed(data []byte) bool {
	return isGzip(data)
}
