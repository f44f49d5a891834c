package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/guardianhq/guardian/internal/guardian/service"
	"github.com/guardianhq/guardian/internal/guardian/store"
	"github.com/guardianhq/guardian/pkg/httpx"
	"github.com/guardianhq/guardian/pkg/jwtx"
	"github.com/guardianhq/guardian/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	Engine *service.AuthorizationEngine

	signer       jwtx.Signer
	realm        string
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store
}

func NewRouter(
	engine *service.AuthorizationEngine,
	signer jwtx.Signer,
	realm, buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		Engine:       engine,
		signer:       signer,
		realm:        realm,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerOAuth2()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerOAuth2() {
	// POST /token - strict rate limit by IP plus the username field, so a
	// single address cannot brute-force one account across grants.
	tokenHandler := &TokenHandler{Engine: r.Engine}
	r.Mux.Handle("POST /v1/oauth2/token",
		httpx.Chain(tokenHandler,
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "username"),
		),
	)

	revokeHandler := &RevokeHandler{Engine: r.Engine}
	r.Mux.Handle("POST /v1/oauth2/revoke",
		httpx.Chain(revokeHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	introspectHandler := &IntrospectHandler{Engine: r.Engine, Realm: r.realm}
	r.Mux.Handle("POST /v1/oauth2/introspect",
		httpx.Chain(introspectHandler,
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store, r.signer))
}
