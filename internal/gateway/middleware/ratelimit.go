package middleware

import (
	"net/http"
	"strings"
)

// Limiter decides whether a key may spend one more request against its
// configured allowance. Implemented by ratelimit.Limiter.
type Limiter interface {
	Allow(key string, limit int) bool
}

// RateLimit returns middleware enforcing each key's own rate_limit. It must
// sit inside Auth in the chain: requests without KeyInfo in context pass
// through untouched so that Auth, not the limiter, decides their fate.
func RateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			info := GetKeyInfo(r.Context())
			if info == nil {
				next.ServeHTTP(w, r)
				return
			}

			if !limiter.Allow(info.ID, info.RateLimit) {
				w.Header().Set("Retry-After", "60")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
