package middleware

import (
	"crypto/subtle"
	"net/http"
)

// InternalKeyHeader carries the shared secret for service-to-service calls.
const InternalKeyHeader = "X-Internal-Key"

// RequireInternalKey rejects requests whose X-Internal-Key does not match key.
// An empty key rejects everything.
func RequireInternalKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(InternalKeyHeader)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				WriteError(w, http.StatusForbidden, "FORBIDDEN", "invalid internal key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
