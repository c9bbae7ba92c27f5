package security

import (
	"context"
	"crypto/rsa"
	"strings"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nova-labs/messagemesh/pkg/broker"
)

// TokenFormat selects the bearer-token format Authenticator verifies.
type TokenFormat string

const (
	// TokenFormatSharedSecret verifies HS256 JWTs signed with a shared
	// secret, grounded on the teacher's pkg/auth/adapters/jwt adapter.
	TokenFormatSharedSecret TokenFormat = "shared_secret"

	// TokenFormatIdentityProvider verifies RS256 JWTs issued by an
	// external IdP, checking issuer and audience against a configured
	// public key.
	TokenFormatIdentityProvider TokenFormat = "identity_provider"

	// TokenFormatPASETO verifies local (symmetric) PASETO v4 tokens, an
	// alternate format for service-to-service calls that skip IdP
	// round-trips.
	TokenFormatPASETO TokenFormat = "paseto"
)

// AuthOptions configures an Authenticator (§4.15; constructors do not call Validate).
type AuthOptions struct {
	TokenFormat TokenFormat

	// Secret is the HMAC shared secret for TokenFormatSharedSecret.
	Secret string

	// Issuer/Audience are required claims for TokenFormatIdentityProvider.
	Issuer         string
	Audience       string
	IdentityPubKey *rsa.PublicKey

	// PASETOKey is the symmetric key for TokenFormatPASETO.
	PASETOKey paseto.V4SymmetricKey
}

// Validate checks AuthOptions against §4.15.
func (o AuthOptions) Validate() error {
	switch o.TokenFormat {
	case TokenFormatSharedSecret:
		if o.Secret == "" {
			return broker.ErrInvalidOptions("security.secret is required for shared_secret token format")
		}
	case TokenFormatIdentityProvider:
		if o.Issuer == "" || o.Audience == "" || o.IdentityPubKey == nil {
			return broker.ErrInvalidOptions("security.issuer, audience, and identity_pub_key are required for identity_provider token format")
		}
	case TokenFormatPASETO:
		// PASETOKey is always populated (zero value is a valid, if
		// useless, key); nothing further to validate.
	default:
		return broker.ErrInvalidOptions("security.token_format is unset or unrecognized")
	}
	return nil
}

// Claims is the authenticated identity extracted from a bearer token.
type Claims struct {
	Subject string
	Roles   []string
	Issuer  string
}

// Authenticator verifies bearer tokens on inbound messages.
type Authenticator struct {
	opts AuthOptions
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(opts AuthOptions) *Authenticator {
	return &Authenticator{opts: opts}
}

// Verify validates a bearer token string and returns the authenticated
// Claims, dispatching to the configured TokenFormat.
func (a *Authenticator) Verify(ctx context.Context, token string) (Claims, error) {
	switch a.opts.TokenFormat {
	case TokenFormatSharedSecret:
		return a.verifySharedSecret(token)
	case TokenFormatIdentityProvider:
		return a.verifyIdentityProvider(token)
	case TokenFormatPASETO:
		return a.verifyPASETO(token)
	default:
		return Claims{}, broker.ErrInvalidOptions("security.token_format is unset or unrecognized")
	}
}

func (a *Authenticator) verifySharedSecret(tokenStr string) (Claims, error) {
	parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return []byte(a.opts.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, broker.ErrInvalidArgument("security: invalid bearer token")
	}
	return claimsFromMapClaims(parsed.Claims)
}

func (a *Authenticator) verifyIdentityProvider(tokenStr string) (Claims, error) {
	parsed, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return a.opts.IdentityPubKey, nil
	}, jwt.WithIssuer(a.opts.Issuer), jwt.WithAudience(a.opts.Audience))
	if err != nil || !parsed.Valid {
		return Claims{}, broker.ErrInvalidArgument("security: invalid or untrusted bearer token")
	}
	return claimsFromMapClaims(parsed.Claims)
}

func (a *Authenticator) verifyPASETO(tokenStr string) (Claims, error) {
	parser := paseto.NewParser()
	parsed, err := parser.ParseV4Local(a.opts.PASETOKey, tokenStr, nil)
	if err != nil {
		return Claims{}, broker.ErrInvalidArgument("security: invalid PASETO token")
	}

	subject, _ := parsed.GetString("sub")
	issuer, _ := parsed.GetString("iss")
	var roles []string
	if rolesStr, err := parsed.GetString("roles"); err == nil {
		roles = toStringSlice(rolesStr)
	}
	return Claims{Subject: subject, Roles: roles, Issuer: issuer}, nil
}

func claimsFromMapClaims(raw jwt.Claims) (Claims, error) {
	mapClaims, ok := raw.(jwt.MapClaims)
	if !ok {
		return Claims{}, broker.ErrInvalidArgument("security: unexpected claims type")
	}

	claims := Claims{}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if iss, err := mapClaims.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	if rolesAny, ok := mapClaims["roles"]; ok {
		claims.Roles = toStringSlice(rolesAny)
	}
	return claims, nil
}

func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(vv, ",")
	default:
		return nil
	}
}

// IssueSharedSecret mints an HS256 token for the given subject/roles,
// mirroring the teacher's jwt adapter's Generate method for test/local use.
func IssueSharedSecret(secret, issuer, subject string, roles []string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":   subject,
		"iss":   issuer,
		"roles": roles,
		"exp":   time.Now().Add(ttl).Unix(),
		"iat":   time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
