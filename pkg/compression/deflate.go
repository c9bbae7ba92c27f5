package compression

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"io"
)

// zlib header first byte is always 0x78; the second byte varies with the
// compression level (01 = levels 0-1, 5E = 2-5, 9C = 6/default, DA = 7-9).
var deflateMagicByte = byte(0x78)
var deflateSecondBytes = map[byte]struct{}{0x01: {}, 0x5e: {}, 0x9c: {}, 0xda: {}}

func isDeflate(data []byte) bool {
	if len(data) < 2 || data[0] != deflateMagicByte {
		return false
	}
	_, ok := deflateSecondBytes[data[1]]
	return ok
}

type deflateCodec struct {
	level int
}

func newDeflateCodec(level int) *deflateCodec {
	return &deflateCodec{level: clampLevel(level, flate.NoCompression, flate.BestCompression)}
}

func (c *deflateCodec) Algorithm() Algorithm { return Deflate }

func (c *deflateCodec) Compress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	if len(data) == 0 {
		return []byte{}, nil
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, c.level)
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

func (c *deflateCodec) Decompress(data []byte) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	if len(data) == 0 {
		return []byte{}, nil
	}

	r, err := zlib.NewReader(bytes.NewReader(data))
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

func (c *deflateCodec) IsCompressed(data []byte) bool {
	return isDeflate(data)
}
