package gateway

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the bearer-token claims the gateway recognizes. Subject
// identifies the actor for rate limiting.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTValidator validates HS256 bearer tokens against a shared signing
// key. Grounded on the teacher's pkg/auth/middleware.go:JWTValidator,
// simplified from a pluggable identity.KeySet to a single shared secret —
// spec.md's optional-auth Non-goal (§4.1) rules out a full identity
// provider integration, but a bearer check is still the natural ambient
// concern the teacher's stack carries.
type JWTValidator struct {
	signingKey []byte
}

// NewJWTValidator creates a validator over signingKey. A nil-equivalent
// (empty key) validator always rejects — fail closed, matching the
// teacher's "nil validator rejects" stance.
func NewJWTValidator(signingKey string) *JWTValidator {
	return &JWTValidator{signingKey: []byte(signingKey)}
}

// ParseBearer extracts and validates the bearer token from an
// Authorization header value, returning the subject claim.
func (v *JWTValidator) ParseBearer(authHeader string) (string, error) {
	if len(v.signingKey) == 0 {
		return "", fmt.Errorf("auth: validator has no signing key configured")
	}
	if authHeader == "" {
		return "", fmt.Errorf("auth: missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fmt.Errorf("auth: expected 'Bearer <token>'")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: %w", err)
	}
	if !token.Valid {
		return "", fmt.Errorf("auth: invalid token")
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("auth: token subject is required")
	}
	return claims.Subject, nil
}
