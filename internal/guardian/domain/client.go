package domain

import "time"

// Client is a registered OAuth2 application. A client with an empty
// SecretHash is public and does not authenticate on the token endpoint.
type Client struct {
	ID         string
	Name       string
	SecretHash string // argon2 encoded, empty for public clients
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
