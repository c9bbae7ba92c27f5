package serialization_test

import (
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/serialization"
)

type testEvent struct {
	ID        string            `json:"id"`
	Count     int               `json:"count"`
	Tags      []string          `json:"tags,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	TTL       time.Duration     `json:"ttl"`
	Optional  *string           `json:"optional,omitempty"`
}

func TestJSONRoundTrip(t *testing.T) {
	opt := "present"
	loc := time.FixedZone("UTC+2", 2*60*60)
	in := testEvent{
		ID:        "evt-1",
		Count:     42,
		Tags:      []string{"a", "b"},
		Meta:      map[string]string{"k": "v"},
		CreatedAt: time.Date(2026, 7, 29, 10, 0, 0, 0, loc),
		TTL:       5 * time.Minute,
		Optional:  &opt,
	}

	ser := serialization.JSON()
	data, err := ser.Serialize(in)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	var out testEvent
	if err := ser.Deserialize(data, &out); err != nil {
		t.Fatalf("Deserialize: %v", err)
	}

	if out.ID != in.ID || out.Count != in.Count || out.TTL != in.TTL {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("timestamp mismatch: %v != %v", out.CreatedAt, in.CreatedAt)
	}
	if out.Optional == nil || *out.Optional != *in.Optional {
		t.Fatalf("optional field mismatch")
	}
}

func TestJSONDeserializeInvalidData(t *testing.T) {
	ser := serialization.JSON()
	var out testEvent
	if err := ser.Deserialize([]byte("not json"), &out); err == nil {
		t.Fatal("expected an error decoding garbage")
	}
}

func TestJSONName(t *testing.T) {
	if serialization.JSON().Name() != "json" {
		t.Fatal("expected json serializer name to be \"json\"")
	}
}
