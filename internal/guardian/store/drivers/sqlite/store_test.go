package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianhq/guardian/internal/guardian/domain"
	"github.com/guardianhq/guardian/internal/guardian/store"
	"github.com/guardianhq/guardian/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func seedUser(t *testing.T, s *Store, email string) domain.User {
	t.Helper()
	ctx := context.Background()

	role := domain.Role{
		ID:          idx.New().String(),
		Name:        "member",
		Permissions: []string{"read:profile", "write:profile"},
	}
	require.NoError(t, s.Roles().CreateRole(ctx, role))

	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		RoleID:       role.ID,
	}
	require.NoError(t, s.Users().CreateUser(ctx, u))
	return u
}

func TestStore_UsersRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "alice@example.com")

	got, err := s.Users().GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.Nil(t, got.TOTPSecret)

	byID, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)

	_, err = s.Users().GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_DuplicateEmail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "dup@example.com")

	again := domain.User{
		ID:           idx.New().String(),
		Email:        "dup@example.com",
		PasswordHash: u.PasswordHash,
		RoleID:       u.RoleID,
	}
	err := s.Users().CreateUser(ctx, again)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestStore_RolePermissions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "perm@example.com")

	role, err := s.Roles().GetRoleByID(ctx, u.RoleID)
	require.NoError(t, err)
	assert.Equal(t, []string{"read:profile", "write:profile"}, role.Permissions)
}

func TestStore_Clients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := domain.Client{ID: idx.New().String(), Name: "web"}
	require.NoError(t, s.Clients().CreateClient(ctx, c))

	got, err := s.Clients().GetClientByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "web", got.Name)
	assert.Empty(t, got.SecretHash)
}

func TestStore_AccessTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "tok@example.com")
	client := domain.Client{ID: idx.New().String(), Name: "cli"}
	require.NoError(t, s.Clients().CreateClient(ctx, client))

	now := time.Now().UTC()
	rec := domain.AccessTokenRecord{
		TokenID:   "jti-1",
		ClientID:  client.ID,
		UserID:    u.ID,
		Token:     "aaa.bbb.ccc",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, s.AccessTokens().CreateAccessToken(ctx, rec))

	// Duplicate jti reports the conflict so a racing issuer can back off.
	err := s.AccessTokens().CreateAccessToken(ctx, rec)
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := s.AccessTokens().FindActiveAccessToken(ctx, client.ID, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "jti-1", got.TokenID)
	assert.Equal(t, "aaa.bbb.ccc", got.Token)

	require.NoError(t, s.AccessTokens().RevokeAccessToken(ctx, "jti-1"))

	_, err = s.AccessTokens().FindActiveAccessToken(ctx, client.ID, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestStore_FindActiveSkipsExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "exp@example.com")
	client := domain.Client{ID: idx.New().String(), Name: "cli"}
	require.NoError(t, s.Clients().CreateClient(ctx, client))

	now := time.Now().UTC()
	dead := domain.AccessTokenRecord{
		TokenID:   "jti-dead",
		ClientID:  client.ID,
		UserID:    u.ID,
		Token:     "x.y.z",
		ExpiresAt: now.Add(-time.Minute),
		CreatedAt: now.Add(-2 * time.Hour),
	}
	require.NoError(t, s.AccessTokens().CreateAccessToken(ctx, dead))

	_, err := s.AccessTokens().FindActiveAccessToken(ctx, client.ID, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.AccessTokens().DeleteExpiredAccessTokens(ctx))
}

func TestStore_RefreshTokens(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "refresh@example.com")
	client := domain.Client{ID: idx.New().String(), Name: "cli"}
	require.NoError(t, s.Clients().CreateClient(ctx, client))

	now := time.Now().UTC()
	access := domain.AccessTokenRecord{
		TokenID:   "jti-r",
		ClientID:  client.ID,
		UserID:    u.ID,
		Token:     "a.b.c",
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
	}
	require.NoError(t, s.AccessTokens().CreateAccessToken(ctx, access))

	rt := domain.RefreshToken{
		ID:            idx.New().String(),
		UserID:        u.ID,
		ClientID:      client.ID,
		TokenHash:     "fingerprint-1",
		AccessTokenID: "jti-r",
		ExpiresAt:     now.Add(30 * 24 * time.Hour),
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, rt))

	got, err := s.RefreshTokens().GetRefreshTokenByHash(ctx, "fingerprint-1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.UserID)
	assert.False(t, got.Revoked)

	require.NoError(t, s.RefreshTokens().RevokeRefreshToken(ctx, "fingerprint-1"))

	got, err = s.RefreshTokens().GetRefreshTokenByHash(ctx, "fingerprint-1")
	require.NoError(t, err)
	assert.True(t, got.Revoked)
}

func TestStore_WithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "tx@example.com")
	client := domain.Client{ID: idx.New().String(), Name: "cli"}
	require.NoError(t, s.Clients().CreateClient(ctx, client))

	boom := assert.AnError
	err := s.WithTx(ctx, func(tx store.Tx) error {
		rec := domain.AccessTokenRecord{
			TokenID:   "jti-tx",
			ClientID:  client.ID,
			UserID:    u.ID,
			Token:     "a.b.c",
			ExpiresAt: time.Now().UTC().Add(time.Hour),
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.AccessTokens().CreateAccessToken(ctx, rec); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.AccessTokens().FindActiveAccessToken(ctx, client.ID, u.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
