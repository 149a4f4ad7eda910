package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit allows requests per window for each client IP, counted over a
// sliding window. It keys on RemoteAddr, so it must run after
// TrustedRealIP. Rejected requests get Retry-After and a RATE001 body.
func RateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded", "RATE001")
		}),
	)
}
