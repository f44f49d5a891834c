package store

import (
	"context"
	"errors"

	"github.com/guardianhq/guardian/internal/guardian/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrUnavailable reports the backing store could not be reached in
	// time. Reuse decisions degrade on it; refresh persistence surfaces it.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the root data access interface. Concrete drivers implement this.
// It exposes sub-repositories to keep concerns tidy and testable.
type Store interface {
	Users() Users
	Roles() Roles
	Clients() Clients
	AccessTokens() AccessTokens
	RefreshTokens() RefreshTokens

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, rolling back when fn errors
	// and committing otherwise. Use it for multi-step operations that must
	// be atomic (e.g. token persistence plus refresh rotation).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the store connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail is used during the password and assertion grants.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	// Account management is external; this exists for bootstrap and tests.
	CreateUser(ctx context.Context, u domain.User) error
}

type Roles interface {
	// GetRoleByID fetches a role by its ID.
	GetRoleByID(ctx context.Context, id string) (domain.Role, error)

	// CreateRole inserts a new role (id is ULID).
	CreateRole(ctx context.Context, r domain.Role) error
}

type Clients interface {
	// GetClientByID fetches a client for token-endpoint authentication.
	GetClientByID(ctx context.Context, id string) (domain.Client, error)

	// CreateClient inserts a new client (secret_hash empty for public clients).
	CreateClient(ctx context.Context, c domain.Client) error
}

// AccessTokens is the issued-token trace consulted by the reuse policy and
// revocation. The redis driver implements just this interface for
// deployments sharing the reuse cache across replicas.
type AccessTokens interface {
	// CreateAccessToken stores the trace of a freshly signed token. A
	// racing insert for the same jti maps to ErrAlreadyExists; callers
	// treat that as "created by the concurrent request" and carry on.
	CreateAccessToken(ctx context.Context, rec domain.AccessTokenRecord) error

	// FindActiveAccessToken returns the newest non-expired, non-revoked
	// record for the (client, user) pair, or ErrNotFound.
	FindActiveAccessToken(ctx context.Context, clientID, userID string) (domain.AccessTokenRecord, error)

	// RevokeAccessToken marks the record revoked by jti.
	RevokeAccessToken(ctx context.Context, tokenID string) error

	// DeleteExpiredAccessTokens is housekeeping.
	DeleteExpiredAccessTokens(ctx context.Context) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash returns the token by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshToken flips revoked, sets updated_at.
	RevokeRefreshToken(ctx context.Context, hash string) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context) error
}
