package http

import (
	"net/http"
	"strings"

	"github.com/guardianhq/guardian/internal/guardian/service"
	"github.com/guardianhq/guardian/pkg/httpx"
	"github.com/guardianhq/guardian/pkg/oauthx"
)

// IntrospectHandler serves POST /v1/oauth2/introspect following RFC 7662.
// Callers authenticate with a bearer access token; the introspected token is
// verified locally against the signing key, no store lookup involved.
type IntrospectHandler struct {
	Engine *service.AuthorizationEngine
	Realm  string
}

func (h *IntrospectHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 1. The endpoint itself is bearer protected. A missing or dead token
	// gets the RFC 6750 challenge with our realm.
	bearer := bearerToken(r)
	if bearer == "" {
		oauthx.WriteBearerError(w, h.Realm, "missing bearer token")
		return
	}
	if _, active := h.Engine.Introspect(ctx, bearer); !active {
		oauthx.WriteBearerError(w, h.Realm, "token is expired or invalid")
		return
	}

	// 2. Parse the form body
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

	// 3. Only JWT access tokens are introspectable; any other hint is
	// answered with active=false rather than an error, per the RFC.
	if hint := r.Form.Get("token_type_hint"); hint != "" && hint != "access_token" {
		writeInactive(w)
		return
	}

	claims, active := h.Engine.Introspect(ctx, token)
	if !active {
		writeInactive(w)
		return
	}

	response := oauthx.IntrospectionResponse{
		Active:      true,
		Subject:     claims.Subject,
		ClientID:    claims.ClientID,
		Issuer:      claims.Issuer,
		TokenID:     claims.ID,
		Permissions: claims.Permissions,
	}
	if claims.IssuedAt != nil {
		response.IssuedAt = claims.IssuedAt.Unix()
	}
	if claims.ExpiresAt != nil {
		response.ExpiresAt = claims.ExpiresAt.Unix()
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, response)
}

func writeInactive(w http.ResponseWriter) {
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, oauthx.IntrospectionResponse{Active: false})
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
