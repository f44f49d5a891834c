package http

import (
	"net/http"
	"strings"

	"github.com/guardianhq/guardian/internal/guardian/service"
	"github.com/guardianhq/guardian/pkg/httpx"
	"github.com/guardianhq/guardian/pkg/oauthx"
	"github.com/guardianhq/guardian/pkg/slogx"
)

// RevokeHandler serves POST /v1/oauth2/revoke following RFC 7009. Revoking
// an unknown token still returns 200 so callers cannot probe for valid ones.
type RevokeHandler struct {
	Engine *service.AuthorizationEngine
}

func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		oauthx.ErrInvalidContentType.WriteError(w)
		return
	}

	if err := r.ParseForm(); err != nil {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	token := r.Form.Get("token")
	if token == "" {
		oauthx.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Engine.Revoke(ctx, token); err != nil {
		log.Error("token revocation failed", "err", err)
		oauthx.ErrServerError.WriteError(w)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}
