package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/guardianhq/guardian/internal/guardian/store"
	"github.com/guardianhq/guardian/pkg/jwtx"
)

// ClaimsBuilder assembles the claim set for a freshly authenticated identity.
// The user is re-resolved by id so a deleted account between authentication
// and claim building cannot end up inside a signed token.
type ClaimsBuilder struct {
	Store  store.Store
	Issuer string
}

func (b *ClaimsBuilder) Build(
	ctx context.Context,
	identity Identity,
	clientID string,
	ttl time.Duration,
	now time.Time,
) (jwtx.Claims, error) {
	u, err := b.Store.Users().GetUserByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jwtx.Claims{}, fmt.Errorf("%w: identity %s no longer resolvable", ErrClaimsBuild, identity.UserID)
		}
		return jwtx.Claims{}, fmt.Errorf("%w: %v", ErrClaimsBuild, err)
	}

	role, err := b.Store.Roles().GetRoleByID(ctx, u.RoleID)
	if err != nil {
		return jwtx.Claims{}, fmt.Errorf("%w: %v", ErrClaimsBuild, err)
	}

	// Snapshot the permissions; later role edits must not reach into
	// already-issued tokens.
	permissions := make([]string, len(role.Permissions))
	copy(permissions, role.Permissions)

	claims := jwtx.NewAccessClaims(
		u.ID,
		jwtx.EmbeddedUser{ID: u.ID, Email: u.Email},
		permissions,
		clientID,
		ttl,
		b.Issuer,
		now,
	)

	return claims, nil
}
