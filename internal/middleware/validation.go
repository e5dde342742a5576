package middleware

import (
	"net/http"
)

// DefaultMaxBodyBytes bounds chat request bodies.
const DefaultMaxBodyBytes = 1 << 20

// LimitBody caps the request body at maxBytes. Reads past the limit fail,
// which the chat handler reports as invalid input.
func LimitBody(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
