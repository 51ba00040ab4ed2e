package vchat

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is the subset of access-token claims the session layer cares
// about. Tokens are issued and signed by the chat backend; the client only
// inspects them, it never verifies signatures (it has no key material).
type TokenInfo struct {
	// Subject is the token subject, typically the guest account id.
	Subject string
	// ExpiresAt is the token expiry; zero when the token never expires.
	ExpiresAt time.Time
}

// Expired reports whether the token expiry has passed.
func (t TokenInfo) Expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// InspectAccessToken decodes the claims of a backend-issued bearer token
// without verifying its signature. Callers use it to detect stale tokens
// before opening a session instead of burning an init round trip.
func InspectAccessToken(token string) (TokenInfo, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenInfo{}, fmt.Errorf("parse access token: %w", err)
	}

	info := TokenInfo{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}
