// Package middleware carries the gateway's HTTP middleware: API key
// authentication, CORS, and per-key rate limiting.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/smartgrocer/basket-analytics-platform/internal/auth/apikey"
)

// KeyValidator resolves a presented raw key to its stored metadata.
// Implemented by apikey.Validator.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*apikey.KeyInfo, error)
}

type contextKey string

const apiKeyInfoKey contextKey = "api_key_info"

// Auth returns middleware that requires a valid API key on every request
// except health checks. Keys are read from Authorization: Bearer, then the
// X-API-Key header, then the api_key query parameter. Validated key
// metadata is attached to the request context for the rate limiter.
func Auth(validator KeyValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/health") {
				next.ServeHTTP(w, r)
				return
			}

			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}

			info, err := validator.Validate(r.Context(), key)
			if err != nil {
				switch {
				case errors.Is(err, apikey.ErrInvalidKey):
					writeError(w, http.StatusUnauthorized, "invalid api key")
				case errors.Is(err, apikey.ErrExpiredKey):
					writeError(w, http.StatusUnauthorized, "expired api key")
				default:
					writeError(w, http.StatusInternalServerError, "authentication error")
				}
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyInfoKey, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetKeyInfo returns the KeyInfo attached by Auth, or nil when the request
// was not authenticated.
func GetKeyInfo(ctx context.Context) *apikey.KeyInfo {
	info, _ := ctx.Value(apiKeyInfoKey).(*apikey.KeyInfo)
	return info
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
