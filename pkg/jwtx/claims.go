package jwtx

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the fallback lifetime for access tokens when the
// service does not configure one. Two hours matches the usual provider default.
const DefaultAccessTokenTTL = 2 * time.Hour

// EmbeddedUser is the identity subset carried inside the token payload.
// It must never contain credential material.
type EmbeddedUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Claims are the access-token claims. Registered claims follow RFC 7519;
// the custom fields mirror what resource servers need to authorise a request
// without a database round trip.
type Claims struct {
	jwt.RegisteredClaims

	// User is a snapshot of the resource owner at issuance time.
	User *EmbeddedUser `json:"user,omitempty"`

	// Permissions granted through the owner's role, copied at issuance.
	// Changes to the role take effect on the next token, not this one.
	Permissions []string `json:"permissions,omitempty"`

	// ClientID identifies the application the token was issued to.
	ClientID string `json:"client_id,omitempty"`
}

// NewAccessClaims builds minimally-correct claims. Timestamps are truncated
// to whole seconds so encode/decode round-trips exactly.
func NewAccessClaims(
	subject string,
	user EmbeddedUser,
	permissions []string,
	clientID string,
	ttl time.Duration,
	issuer string,
	now time.Time,
) Claims {
	now = now.UTC().Truncate(time.Second)

	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(now),
		},
		User:        &user,
		Permissions: permissions,
		ClientID:    clientID,
	}
}

// NewJTI returns a collision-resistant identifier for the "jti" claim:
// a SHA-256 digest over fresh crypto-random bytes joined with the issue
// timestamp, hex encoded. The random source carries the uniqueness; the
// timestamp just makes collisions across restarts even less plausible.
func NewJTI(now time.Time) string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	sum := sha256.Sum256(fmt.Appendf(nil, "%x:%d", b, now.Unix()))
	return hex.EncodeToString(sum[:])
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateExpiryAt checks exp/nbf against the given instant. A token whose
// exp equals now is already expired - the boundary second is not usable.
func (c *Claims) ValidateExpiryAt(now time.Time) error {
	if c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}

	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateExpiry is ValidateExpiryAt against the current wall clock.
func (c *Claims) ValidateExpiry() error {
	return c.ValidateExpiryAt(time.Now().UTC())
}
