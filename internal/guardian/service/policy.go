package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/guardianhq/guardian/internal/guardian/domain"
	"github.com/guardianhq/guardian/internal/guardian/store"
	"github.com/guardianhq/guardian/pkg/slogx"
)

// PolicyConfig is the immutable issuance policy. Validation happens once at
// startup; Decide never re-checks it.
type PolicyConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// ReuseAccessToken returns an existing active token for the same
	// (client, user) pair instead of minting a new one.
	ReuseAccessToken bool

	// IssueRefreshToken controls whether a refresh token accompanies each
	// newly minted access token.
	IssueRefreshToken bool
}

// Validate rejects configurations the engine cannot run with.
func (c PolicyConfig) Validate() error {
	if c.AccessTTL <= 0 {
		return errors.New("policy: access token ttl must be positive")
	}
	if c.IssueRefreshToken && c.RefreshTTL <= 0 {
		return errors.New("policy: refresh token ttl must be positive")
	}
	return nil
}

// PolicyDecision is what the engine acts on for one request.
type PolicyDecision struct {
	TTL          time.Duration
	IssueRefresh bool

	// ReuseExisting short-circuits signing; Existing holds the record whose
	// compact token is returned verbatim.
	ReuseExisting bool
	Existing      domain.AccessTokenRecord
}

// TokenPolicy decides, per request, whether to mint a new token or hand back
// an active one.
type TokenPolicy struct {
	Config PolicyConfig
	Tokens store.AccessTokens
}

// Decide never fails: when the token store cannot answer the reuse lookup,
// the decision degrades to issuing a new token rather than blocking issuance.
func (p *TokenPolicy) Decide(ctx context.Context, clientID, userID string) PolicyDecision {
	decision := PolicyDecision{
		TTL:          p.Config.AccessTTL,
		IssueRefresh: p.Config.IssueRefreshToken,
	}

	if !p.Config.ReuseAccessToken {
		return decision
	}

	rec, err := p.Tokens.FindActiveAccessToken(ctx, clientID, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Warn("reuse lookup degraded to issue-new",
				slog.Any("error", err),
				slog.String("client_id", clientID),
			)
		}
		return decision
	}

	decision.ReuseExisting = true
	decision.Existing = rec
	return decision
}
