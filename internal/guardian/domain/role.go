package domain

import "time"

// Role groups the permissions a resource owner is granted. Permissions are
// embedded into tokens as issued-time snapshots.
type Role struct {
	ID          string
	Name        string
	Permissions []string // Parsed from space-delimited storage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
