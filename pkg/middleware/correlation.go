package middleware

import (
	"net/http"

	"shortener/pkg/logging"
)

const CorrelationHeader = "X-Correlation-ID"

// CorrelationID attaches the caller's correlation ID to the request
// context, minting one when absent, and echoes it in the response.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(CorrelationHeader); id != "" {
			ctx = logging.ContextWithCorrelationID(ctx, id)
		} else {
			ctx = logging.WithCorrelationID(ctx)
		}
		w.Header().Set(CorrelationHeader, logging.GetCorrelationID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
