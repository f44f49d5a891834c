package domain

import "time"

// User is a resource owner. The engine only ever reads users; account
// management lives outside this service.
type User struct {
	ID           string
	Email        string
	PasswordHash string  // argon2 encoded
	RoleID       string  // Foreign key to roles table
	TOTPSecret   *string // base32 TOTP secret for the totp assertion flow (nullable)
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
