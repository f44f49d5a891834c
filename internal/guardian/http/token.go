package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/guardianhq/guardian/internal/guardian/domain"
	"github.com/guardianhq/guardian/internal/guardian/service"
	"github.com/guardianhq/guardian/pkg/httpx"
	"github.com/guardianhq/guardian/pkg/oauthx"
	"github.com/guardianhq/guardian/pkg/slogx"
)

// TokenHandler serves POST /v1/oauth2/token.
// Accepts application/x-www-form-urlencoded per the RFC 6749 framework.
type TokenHandler struct {
	Engine *service.AuthorizationEngine
}

func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	// 1. Ensure the right content-type
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		oauthx.ErrInvalidContentType.WriteError(w)
		return
	}

	// 2. Parse the form body
	if err := r.ParseForm(); err != nil {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	grantType := strings.TrimSpace(r.Form.Get("grant_type"))
	if grantType == "" {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	// 3. Lift the form into a grant request. Unknown grant types flow
	// through; the engine rejects them against its enabled set.
	req := domain.GrantRequest{
		GrantType: domain.GrantType(grantType),
		Credentials: map[string]string{
			domain.CredUsername:      r.Form.Get("username"),
			domain.CredPassword:      r.Form.Get("password"),
			domain.CredAssertionType: r.Form.Get("assertion_type"),
			domain.CredAssertion:     r.Form.Get("assertion"),
			domain.CredRefreshToken:  r.Form.Get("refresh_token"),
		},
		ClientID:     strings.TrimSpace(r.Form.Get("client_id")),
		ClientSecret: r.Form.Get("client_secret"),
	}

	pair, err := h.Engine.Issue(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnsupportedGrantType):
			oauthx.ErrUnsupportedGrantType.WriteError(w)
		case errors.Is(err, service.ErrInvalidCredentials),
			errors.Is(err, service.ErrInvalidRefresh),
			errors.Is(err, service.ErrClaimsBuild):
			oauthx.ErrInvalidGrant.WriteError(w)
		case errors.Is(err, service.ErrInvalidClient):
			oauthx.ErrInvalidClient.WriteError(w)
		default:
			log.Error("token issuance failed", "err", err)
			oauthx.ErrServerError.WriteError(w)
		}
		return
	}

	response := oauthx.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    int(pair.ExpiresIn.Seconds()),
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}
