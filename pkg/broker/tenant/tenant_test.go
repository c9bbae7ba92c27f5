package tenant_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nova-labs/messagemesh/pkg/broker/tenant"
)

func TestExtractFromHeaders(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"TenantId", map[string]string{"TenantId": "t-1"}, "t-1"},
		{"X-Tenant-Id", map[string]string{"X-Tenant-Id": "t-2"}, "t-2"},
		{"X-Tenant", map[string]string{"X-Tenant": "t-3"}, "t-3"},
		{"tenant_id", map[string]string{"tenant_id": "t-4"}, "t-4"},
		{"precedence", map[string]string{"TenantId": "first", "X-Tenant": "second"}, "first"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := tenant.Extract(c.headers, "default"); got != c.want {
				t.Fatalf("expected %q, got %q", c.want, got)
			}
		})
	}
}

func TestExtractFromBearerToken(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant_id": "from-claim",
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("any-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	headers := map[string]string{"Authorization": "Bearer " + signed}
	if got := tenant.Extract(headers, "default"); got != "from-claim" {
		t.Fatalf("expected from-claim, got %q", got)
	}
}

func TestExtractFallsBackToDefault(t *testing.T) {
	if got := tenant.Extract(map[string]string{}, "default"); got != "default" {
		t.Fatalf("expected default, got %q", got)
	}
	if got := tenant.Extract(map[string]string{"Authorization": "Bearer not-a-jwt"}, "default"); got != "default" {
		t.Fatalf("expected default for unparseable token, got %q", got)
	}
}
