package domain

import "time"

// TokenPair is what the token endpoint hands back to the transport layer:
// the signed JWT access token and, when refresh issuance is enabled, an
// opaque refresh token. The wire shape is oauthx.TokenResponse; this struct
// never marshals directly.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string // typically "Bearer"
	ExpiresIn    time.Duration
}

// AccessTokenRecord is the persisted trace of an issued access token, keyed
// by jti. It exists to support the reuse policy and revocation; verification
// itself never consults it.
type AccessTokenRecord struct {
	TokenID   string // jti claim
	ClientID  string
	UserID    string
	Token     string // compact JWT, returned verbatim on reuse
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Active reports whether the record can still back a reuse decision at now.
// The expiry boundary matches token verification: exp == now is dead.
func (r AccessTokenRecord) Active(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// RefreshToken models the stored refresh token record. Only the SHA-256
// fingerprint of the opaque value is persisted.
type RefreshToken struct {
	ID            string
	UserID        string
	ClientID      string
	TokenHash     string // deterministic fingerprint (base64url SHA-256)
	AccessTokenID string // jti of the access token issued alongside
	ExpiresAt     time.Time
	Revoked       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
