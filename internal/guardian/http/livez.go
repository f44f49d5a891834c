package http

import (
	"net/http"
	"time"

	"github.com/guardianhq/guardian/pkg/httpx"
	"github.com/guardianhq/guardian/pkg/oauthx"
)

// LivezHandler is the liveness probe. It answers 200 whenever the process
// is serving requests at all.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := oauthx.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}
