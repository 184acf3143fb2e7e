package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/goodimpact/backoffice-api/internal/pkg/logger"
)

// maxRequestIDLen bounds ids accepted from callers; longer ones are replaced
const maxRequestIDLen = 64

// RequestID adds a unique request ID to each request and a request-scoped logger to its context
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)
		r.Header.Set("X-Request-ID", requestID)

		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
