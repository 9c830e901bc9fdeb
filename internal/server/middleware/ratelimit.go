package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/agrivia/accounts/internal/model"
)

// LoginRateLimit limits login attempts per client IP to requestsPerMinute
// over a sliding window. A non-positive limit disables throttling. The key
// is r.RemoteAddr, which only reflects forwarding headers when the router
// rewrites it for a trusted proxy.
func LoginRateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	if requestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(model.ErrorResponse{
				Error: model.ErrorDetail{
					Code:    http.StatusTooManyRequests,
					Message: "Too many login attempts. Try again later.",
				},
			})
		}),
	)
}
