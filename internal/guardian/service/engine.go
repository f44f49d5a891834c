package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/guardianhq/guardian/internal/guardian/domain"
	"github.com/guardianhq/guardian/internal/guardian/store"
	"github.com/guardianhq/guardian/pkg/cryptox"
	"github.com/guardianhq/guardian/pkg/idx"
	"github.com/guardianhq/guardian/pkg/jwtx"
	"github.com/guardianhq/guardian/pkg/slogx"
)

// AuthorizationEngine drives a token request through authentication, policy,
// claim building, signing and persistence, short-circuiting on the first
// failure. There are no internal retries; a failed request fails whole.
type AuthorizationEngine struct {
	Store store.Store

	// Tokens, when set, overrides where issued-token records live (the
	// redis driver). Nil means the store's own repo, inside the same
	// transaction as refresh persistence; non-nil records are written only
	// after that transaction commits.
	Tokens store.AccessTokens

	Authenticator *GrantAuthenticator
	Policy        *TokenPolicy
	Claims        *ClaimsBuilder
	Signer        jwtx.Signer
	Verifier      jwtx.Verifier

	EnabledGrants map[domain.GrantType]struct{}
}

// Issue handles one token request end to end.
func (e *AuthorizationEngine) Issue(ctx context.Context, req domain.GrantRequest) (*domain.TokenPair, error) {
	now := time.Now().UTC()
	l := slogx.FromContext(ctx)

	// 1. Gate on the enabled grant set before touching any credential or
	// doing any lookup.
	if _, ok := e.EnabledGrants[req.GrantType]; !ok {
		return nil, ErrUnsupportedGrantType
	}

	// 2. Authenticate the client when one is named. Confidential clients
	// must present their secret; public clients pass through.
	if req.ClientID != "" {
		if err := e.authenticateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
			return nil, err
		}
	}

	if req.GrantType == domain.GrantRefreshToken {
		return e.exchangeRefreshToken(ctx, req, now)
	}

	// 3. Authenticate the resource owner.
	identity, err := e.Authenticator.Authenticate(ctx, req)
	if err != nil {
		return nil, err
	}

	// 4. Evaluate policy. Reuse hands back the stored compact token
	// verbatim with its remaining lifetime.
	decision := e.Policy.Decide(ctx, req.ClientID, identity.UserID)
	if decision.ReuseExisting {
		return &domain.TokenPair{
			AccessToken: decision.Existing.Token,
			TokenType:   "Bearer",
			ExpiresIn:   decision.Existing.ExpiresAt.Sub(now).Truncate(time.Second),
		}, nil
	}

	// 5. Build and sign the claims.
	claims, err := e.Claims.Build(ctx, identity, req.ClientID, decision.TTL, now)
	if err != nil {
		return nil, err
	}

	accessToken, err := e.Signer.Sign(claims)
	if err != nil {
		l.Error("access token signing failed", slog.Any("error", err))
		return nil, err
	}

	// 6. Persist the token trace and, when policy says so, a refresh token,
	// atomically.
	refreshOpaque, err := e.persistIssue(ctx, claims, accessToken, req.ClientID, decision, now)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    decision.TTL,
	}, nil
}

func (e *AuthorizationEngine) authenticateClient(ctx context.Context, clientID, clientSecret string) error {
	client, err := e.Store.Clients().GetClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidClient
		}
		return err
	}

	if client.SecretHash == "" {
		return nil // public client
	}
	if clientSecret == "" || cryptox.VerifyPassword(clientSecret, client.SecretHash) != nil {
		slogx.FromContext(ctx).Warn("client authentication failed", slog.String("client_id", clientID))
		return ErrInvalidClient
	}
	return nil
}

// persistIssue writes the access-token record and the optional refresh token.
// A concurrent request may have stored the same jti first; that conflict is
// tolerated since both tokens verify independently. An external token store
// is written only after the transaction commits, so a rollback never leaves
// a reusable record for a token the caller never received.
func (e *AuthorizationEngine) persistIssue(
	ctx context.Context,
	claims jwtx.Claims,
	accessToken string,
	clientID string,
	decision PolicyDecision,
	now time.Time,
) (string, error) {
	rec := domain.AccessTokenRecord{
		TokenID:   claims.ID,
		ClientID:  clientID,
		UserID:    claims.Subject,
		Token:     accessToken,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: now,
	}

	var refreshOpaque string
	err := e.Store.WithTx(ctx, func(tx store.Tx) error {
		if e.Tokens == nil {
			if err := tx.AccessTokens().CreateAccessToken(ctx, rec); err != nil &&
				!errors.Is(err, store.ErrAlreadyExists) {
				return err
			}
		}

		if !decision.IssueRefresh {
			return nil
		}

		opaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			return err
		}

		rt := domain.RefreshToken{
			ID:            idx.New().String(),
			UserID:        claims.Subject,
			ClientID:      clientID,
			TokenHash:     cryptox.FingerprintToken(opaque),
			AccessTokenID: claims.ID,
			ExpiresAt:     now.Add(e.Policy.Config.RefreshTTL),
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
			return err
		}

		refreshOpaque = opaque
		return nil
	})
	if err != nil {
		return "", err
	}
	e.storeExternalRecord(ctx, rec)

	return refreshOpaque, nil
}

// exchangeRefreshToken redeems a refresh token for a fresh pair, rotating
// the refresh token in the same transaction.
func (e *AuthorizationEngine) exchangeRefreshToken(
	ctx context.Context,
	req domain.GrantRequest,
	now time.Time,
) (*domain.TokenPair, error) {
	opaque := req.Credential(domain.CredRefreshToken)
	if opaque == "" {
		return nil, ErrInvalidRefresh
	}

	// 1. Look up by fingerprint; the opaque value itself is never stored.
	fp := cryptox.FingerprintToken(opaque)
	rt, err := e.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidRefresh
		}
		return nil, err
	}

	// 2. Dead tokens and cross-client replays are both invalid.
	if rt.Revoked || now.After(rt.ExpiresAt) {
		return nil, ErrInvalidRefresh
	}
	if rt.ClientID != req.ClientID {
		return nil, ErrInvalidClient
	}

	// 3. Re-resolve the owner and mint the new access token.
	claims, err := e.Claims.Build(ctx, Identity{UserID: rt.UserID}, req.ClientID, e.Policy.Config.AccessTTL, now)
	if err != nil {
		return nil, err
	}

	accessToken, err := e.Signer.Sign(claims)
	if err != nil {
		return nil, err
	}

	// 4. Rotate: revoke the presented token and store its successor in one
	// transaction; the token record follows once the rotation has committed.
	newOpaque, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return nil, err
	}

	newRT := domain.RefreshToken{
		ID:            idx.New().String(),
		UserID:        rt.UserID,
		ClientID:      rt.ClientID,
		TokenHash:     cryptox.FingerprintToken(newOpaque),
		AccessTokenID: claims.ID,
		ExpiresAt:     now.Add(e.Policy.Config.RefreshTTL),
	}

	rec := domain.AccessTokenRecord{
		TokenID:   claims.ID,
		ClientID:  rt.ClientID,
		UserID:    rt.UserID,
		Token:     accessToken,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: now,
	}

	err = e.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().RevokeRefreshToken(ctx, fp); err != nil {
			return err
		}
		if err := tx.RefreshTokens().CreateRefreshToken(ctx, newRT); err != nil {
			return err
		}
		if e.Tokens == nil {
			if err := tx.AccessTokens().CreateAccessToken(ctx, rec); err != nil &&
				!errors.Is(err, store.ErrAlreadyExists) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.storeExternalRecord(ctx, rec)

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newOpaque,
		TokenType:    "Bearer",
		ExpiresIn:    e.Policy.Config.AccessTTL,
	}, nil
}

// Revoke invalidates a presented token. Refresh tokens revoke their linked
// access record too. Unknown tokens succeed silently per RFC 7009.
func (e *AuthorizationEngine) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	fp := cryptox.FingerprintToken(token)
	rt, err := e.Store.RefreshTokens().GetRefreshTokenByHash(ctx, fp)
	if err == nil {
		err := e.Store.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.RefreshTokens().RevokeRefreshToken(ctx, fp); err != nil {
				return err
			}
			if e.Tokens == nil && rt.AccessTokenID != "" {
				return tx.AccessTokens().RevokeAccessToken(ctx, rt.AccessTokenID)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if e.Tokens != nil && rt.AccessTokenID != "" {
			return e.Tokens.RevokeAccessToken(ctx, rt.AccessTokenID)
		}
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// Not a refresh token; try it as a compact access token and revoke by
	// jti. Verification failures are swallowed, revoking garbage is a no-op.
	claims, err := e.Verifier.Verify(token)
	if err != nil {
		return nil
	}
	return e.tokens().RevokeAccessToken(ctx, claims.ID)
}

// Introspect verifies a compact token locally. The boolean reports whether
// the token is active; claims are only meaningful when it is true.
func (e *AuthorizationEngine) Introspect(ctx context.Context, token string) (jwtx.Claims, bool) {
	claims, err := e.Verifier.Verify(token)
	if err != nil {
		return jwtx.Claims{}, false
	}
	return claims, true
}

func (e *AuthorizationEngine) tokens() store.AccessTokens {
	if e.Tokens != nil {
		return e.Tokens
	}
	return e.Store.AccessTokens()
}

// storeExternalRecord writes an issued-token record to the external token
// store. The record only backs reuse and revocation, so a write failure
// degrades those for this token instead of failing the issuance.
func (e *AuthorizationEngine) storeExternalRecord(ctx context.Context, rec domain.AccessTokenRecord) {
	if e.Tokens == nil {
		return
	}
	if err := e.Tokens.CreateAccessToken(ctx, rec); err != nil &&
		!errors.Is(err, store.ErrAlreadyExists) {
		slogx.FromContext(ctx).Warn("token record write failed; reuse and revocation skip this token",
			slog.String("token_id", rec.TokenID),
			slog.Any("error", err),
		)
	}
}
