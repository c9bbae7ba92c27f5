// Package tenant extracts a tenant identifier from message headers or a
// bearer token, per spec §4.16.
package tenant

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Header names checked, in order, before falling back to the bearer token.
var headerKeys = []string{"TenantId", "X-Tenant-Id", "X-Tenant", "tenant_id"}

// Extract returns the first non-empty tenant id found among the well-known
// headers; failing that, it decodes the Authorization bearer token (without
// verifying its signature — signature verification is the security
// envelope's job, see pkg/broker/security) and returns its tenant_id or tid
// claim. If nothing matches, def is returned.
func Extract(headers map[string]string, def string) string {
	for _, key := range headerKeys {
		if v, ok := headers[key]; ok && v != "" {
			return v
		}
	}

	auth := headers["Authorization"]
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return def
	}
	token := strings.TrimPrefix(auth, "Bearer ")

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return def
	}

	if v, ok := claims["tenant_id"].(string); ok && v != "" {
		return v
	}
	if v, ok := claims["tid"].(string); ok && v != "" {
		return v
	}
	return def
}
