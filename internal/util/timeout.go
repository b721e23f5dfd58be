package util

import (
	"context"
	"net/http"
	"time"
)

// WithRequestTimeout bounds the context of every request by d. Handlers are
// expected to pass r.Context() to storage and outbound calls.
func WithRequestTimeout(d time.Duration, next http.Handler) http.Handler {
	if d <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
