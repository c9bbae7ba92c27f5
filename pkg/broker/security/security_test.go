package security_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/broker/security"
)

func key32() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestEnvelopeSealOpenRoundTrip(t *testing.T) {
	env, err := security.NewEnvelope(security.Options{EncryptionKey: key32()})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}

	plaintext := []byte("sensitive payload")
	sealed, err := env.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(sealed, plaintext) {
		t.Fatal("expected sealed payload to differ from plaintext")
	}

	opened, err := env.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("expected round-trip to recover plaintext, got %q", opened)
	}
}

func TestEnvelopeDisabledWithoutKey(t *testing.T) {
	env, err := security.NewEnvelope(security.Options{})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if env != nil {
		t.Fatal("expected nil Envelope when no encryption key configured")
	}
}

func TestValidateRejectsWrongKeyLength(t *testing.T) {
	if err := (security.Options{EncryptionKey: []byte("too-short")}).Validate(); err == nil {
		t.Fatal("expected Validate to reject non-32-byte key")
	}
}

func TestSharedSecretIssueAndVerifyRoundTrip(t *testing.T) {
	token, err := security.IssueSharedSecret("s3cret", "messagemesh", "user-123", []string{"admin", "editor"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueSharedSecret: %v", err)
	}

	authn := security.NewAuthenticator(security.AuthOptions{TokenFormat: security.TokenFormatSharedSecret, Secret: "s3cret"})
	claims, err := authn.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Fatalf("expected subject user-123, got %q", claims.Subject)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "admin" {
		t.Fatalf("expected roles [admin editor], got %v", claims.Roles)
	}
}

func TestSharedSecretVerifyRejectsWrongSecret(t *testing.T) {
	token, err := security.IssueSharedSecret("s3cret", "messagemesh", "user-123", nil, time.Hour)
	if err != nil {
		t.Fatalf("IssueSharedSecret: %v", err)
	}

	authn := security.NewAuthenticator(security.AuthOptions{TokenFormat: security.TokenFormatSharedSecret, Secret: "wrong-secret"})
	if _, err := authn.Verify(context.Background(), token); err == nil {
		t.Fatal("expected Verify to reject a token signed with a different secret")
	}
}

func TestAuthValidateRequiresFieldsPerFormat(t *testing.T) {
	if err := (security.AuthOptions{TokenFormat: security.TokenFormatSharedSecret}).Validate(); err == nil {
		t.Fatal("expected Validate to require Secret for shared_secret format")
	}
	if err := (security.AuthOptions{TokenFormat: security.TokenFormatIdentityProvider}).Validate(); err == nil {
		t.Fatal("expected Validate to require issuer/audience/pubkey for identity_provider format")
	}
	if err := (security.AuthOptions{}).Validate(); err == nil {
		t.Fatal("expected Validate to reject unset token format")
	}
}
