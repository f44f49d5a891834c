package jwtx

import "errors"

// Signer is our interface for anything that can sign token claims into a
// compact JWS string. The algorithm is fixed per signer and lands in the
// token header, never inferred from the token itself.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
}

// ErrMissingKeyMaterial reports a signer constructed without the key its
// algorithm requires. This should abort startup, not surface per request.
var ErrMissingKeyMaterial = errors.New("jwtx: missing key material")

// NewSignerHS256 creates an HS256 signer from a shared secret.
func NewSignerHS256(kid string, secret []byte) (Signer, error) {
	return newHS256Signer(kid, secret)
}

// NewSignerRS256 creates an RS256 signer from PEM bytes. Both PKCS1 and
// PKCS8 encodings are accepted.
func NewSignerRS256(kid string, pemKey []byte) (Signer, error) {
	return newRS256Signer(kid, pemKey)
}
