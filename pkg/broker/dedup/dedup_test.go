package dedup_test

import (
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker/dedup"
)

// TestDeduplicationWindow mirrors spec scenario 4: Add("h1") then
// IsDuplicate("h1")=true; Add("h2") then after its window elapses
// IsDuplicate("h2")=false.
func TestDeduplicationWindow(t *testing.T) {
	c := dedup.New(dedup.Options{Window: 50 * time.Millisecond, MaxCacheSize: 1000})

	c.Add("h1")
	if !c.IsDuplicate("h1") {
		t.Fatal("expected h1 to be a duplicate immediately after Add")
	}

	c.Add("h2")
	time.Sleep(100 * time.Millisecond)
	if c.IsDuplicate("h2") {
		t.Fatal("expected h2 to have expired after the window elapsed")
	}
}

func TestBoundedEviction(t *testing.T) {
	c := dedup.New(dedup.Options{Window: time.Minute, MaxCacheSize: 2})

	c.Add("a")
	c.Add("b")
	c.Add("c") // evicts "a"

	if c.IsDuplicate("a") {
		t.Fatal("expected oldest entry a to have been evicted")
	}
	if !c.IsDuplicate("b") || !c.IsDuplicate("c") {
		t.Fatal("expected b and c to remain in the cache")
	}
	if got := c.Metrics().CurrentSize; got != 2 {
		t.Fatalf("expected cache size bounded at 2, got %d", got)
	}
}

func TestRejectsEmptyAndWhitespaceHashes(t *testing.T) {
	c := dedup.New(dedup.Options{Window: time.Minute, MaxCacheSize: 10})

	c.Add("")
	c.Add("   ")
	if c.Metrics().CurrentSize != 0 {
		t.Fatal("expected empty/whitespace hashes to be rejected")
	}
	if c.IsDuplicate("") || c.IsDuplicate("   ") {
		t.Fatal("expected IsDuplicate to reject empty/whitespace hashes")
	}
}

func TestHashPayloadIsStableSHA256(t *testing.T) {
	a := dedup.HashPayload([]byte("hello"))
	b := dedup.HashPayload([]byte("hello"))
	c := dedup.HashPayload([]byte("world"))
	if a != b {
		t.Fatal("expected identical payloads to hash identically")
	}
	if a == c {
		t.Fatal("expected different payloads to hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex SHA-256 digest, got length %d", len(a))
	}
}

func TestValidateRejectsNonPositiveFields(t *testing.T) {
	if err := (dedup.Options{Window: 0, MaxCacheSize: 10}).Validate(); err == nil {
		t.Fatal("expected Validate to reject zero Window")
	}
	if err := (dedup.Options{Window: time.Minute, MaxCacheSize: 0}).Validate(); err == nil {
		t.Fatal("expected Validate to reject zero MaxCacheSize")
	}
}
