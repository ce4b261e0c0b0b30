package middleware

import (
	"net/http"
)

const (
	// DefaultMaxBodySize bounds review decision bodies.
	DefaultMaxBodySize int64 = 64 << 10 // 64KB

	// ImportMaxBodySize bounds title import bodies, which may list many titles.
	ImportMaxBodySize int64 = 1 << 20 // 1MB
)

// RequestSize limits the size of incoming request bodies.
//
// It wraps the request body with http.MaxBytesReader; a handler that reads
// past maxBytes gets an error and should answer 413.
func RequestSize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
