package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/smartgrocer/basket-analytics-platform/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID returns middleware that attaches a request ID to the context and
// echoes it in the X-Request-ID response header. An incoming X-Request-ID is
// reused so IDs stay stable across the gateway hop; otherwise a new UUID is
// generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := logger.WithRequestID(r.Context(), requestID)
		w.Header().Set(requestIDHeader, requestID)
		r.Header.Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID previously attached by RequestID, or ""
// when the middleware did not run.
func GetRequestID(ctx context.Context) string {
	return logger.RequestID(ctx)
}
