package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/guardianhq/guardian/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitByIP(t *testing.T) {
	t.Parallel()

	limited := httpx.Chain(okHandler(), httpx.RateLimitByIP(httpx.RateLimitConfig{
		RequestsPerWindow: 2,
		Window:            time.Minute,
		Burst:             2,
	}))

	doReq := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":12345"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, doReq("10.0.0.1"))
	require.Equal(t, http.StatusOK, doReq("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, doReq("10.0.0.1"))

	// A different client has its own bucket.
	require.Equal(t, http.StatusOK, doReq("10.0.0.2"))
}

func TestRateLimitByIPAndFormField(t *testing.T) {
	t.Parallel()

	limited := httpx.Chain(okHandler(), httpx.RateLimitByIPAndFormField(httpx.RateLimitConfig{
		RequestsPerWindow: 1,
		Window:            time.Minute,
		Burst:             1,
	}, "username"))

	doReq := func(username string) int {
		form := url.Values{"username": {username}}
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "10.0.0.1:12345"
		rec := httptest.NewRecorder()
		limited.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, doReq("alice@example.com"))
	require.Equal(t, http.StatusTooManyRequests, doReq("alice@example.com"))

	// Same IP, different account: separate bucket.
	require.Equal(t, http.StatusOK, doReq("bob@example.com"))
}

func TestIPKeyExtractorPrefersForwardedHeaders(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:9999"
	require.Equal(t, "10.0.0.1", httpx.IPKeyExtractor(req))

	req.Header.Set("X-Real-IP", "192.0.2.7")
	require.Equal(t, "192.0.2.7", httpx.IPKeyExtractor(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.4, 192.0.2.7")
	require.Equal(t, "203.0.113.4", httpx.IPKeyExtractor(req))
}
