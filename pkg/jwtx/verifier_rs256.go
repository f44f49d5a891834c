package jwtx

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RS256Verifier validates JWTs signed using RS256.
type RS256Verifier struct {
	pub    *rsa.PublicKey
	issuer string
}

// NewVerifierRS256 creates a verifier from the signing key's public half.
func NewVerifierRS256(pub *rsa.PublicKey, issuer string) (*RS256Verifier, error) {
	if pub == nil {
		return nil, ErrMissingKeyMaterial
	}
	return &RS256Verifier{pub: pub, issuer: issuer}, nil
}

// Verify validates the JWT string and returns its parsed Claims.
func (v *RS256Verifier) Verify(tokenStr string) (Claims, error) {
	claims, err := parseCompact(tokenStr, jwt.SigningMethodRS256.Alg(), func(t *jwt.Token) (any, error) {
		return v.pub, nil
	})
	if err != nil {
		return Claims{}, err
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateExpiryAt(time.Now().UTC()); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
