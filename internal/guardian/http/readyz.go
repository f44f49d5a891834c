package http

import (
	"net/http"
	"time"

	"github.com/guardianhq/guardian/internal/guardian/store"
	"github.com/guardianhq/guardian/pkg/httpx"
	"github.com/guardianhq/guardian/pkg/jwtx"
	"github.com/guardianhq/guardian/pkg/oauthx"
)

// ReadyzHandler is the readiness probe: degraded (503) when the store does
// not answer a ping or no signer is configured.
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	signer jwtx.Signer,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &oauthx.HealthChecks{
			Database: "ok",
			Signer:   "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		if signer == nil {
			checks.Signer = "error: no signer configured"
			overallStatus = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		response := oauthx.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		httpx.WriteJSON(w, statusCode, response)
	}
}
