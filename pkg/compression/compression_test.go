package compression_test

import (
	"bytes"
	"testing"

	"github.com/nova-labs/messagemesh/pkg/compression"
)

func TestRoundTripAllAlgorithms(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 50)

	for _, alg := range []compression.Algorithm{compression.GZip, compression.Deflate, compression.Brotli} {
		t.Run(string(alg), func(t *testing.T) {
			codec := compression.New(alg, 6)

			compressed, err := codec.Compress(payload)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if !codec.IsCompressed(compressed) {
				t.Fatal("IsCompressed should be true for our own output")
			}
			if compression.Detect(compressed) != alg {
				t.Fatalf("Detect: expected %s, got %s", alg, compression.Detect(compressed))
			}

			out, err := codec.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(out, payload) {
				t.Fatal("round trip did not preserve payload")
			}
		})
	}
}

func TestEmptyAndNilInput(t *testing.T) {
	codec := compression.New(compression.GZip, 6)

	out, err := codec.Compress(nil)
	if err != nil || out != nil {
		t.Fatalf("nil input should return nil, nil; got %v, %v", out, err)
	}

	out, err = codec.Compress([]byte{})
	if err != nil || len(out) != 0 {
		t.Fatalf("empty input should return empty, nil; got %v, %v", out, err)
	}
}

func TestDecompressInvalidDataFails(t *testing.T) {
	codec := compression.New(compression.GZip, 6)
	_, err := codec.Decompress([]byte{0x1f, 0x8b, 0x00, 0x01, 0x02})
	if err == nil {
		t.Fatal("expected an error decompressing garbage")
	}
}

func TestDetectUncompressedReturnsNone(t *testing.T) {
	if alg := compression.Detect([]byte("plain text")); alg != compression.None {
		t.Fatalf("expected None, got %s", alg)
	}
}
