/**
 * @description
 * This file contains custom middleware for the HTTP router. The ledger-service
 * sits behind the platform gateway, which terminates end-user authentication;
 * callers prove themselves with a shared internal API key instead.
 *
 * @dependencies
 * - crypto/subtle, net/http, strings: Standard Go libraries.
 */

package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const internalAPIKeyHeader = "X-Internal-API-Key"

// InternalAuthMiddleware creates a middleware that validates the shared
// internal API key on every request. An empty configured key disables the
// check, which is only acceptable for local development.
func InternalAuthMiddleware(apiKey string) func(http.Handler) http.Handler {
	expected := []byte(strings.TrimSpace(apiKey))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(expected) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			presented := []byte(strings.TrimSpace(r.Header.Get(internalAPIKeyHeader)))
			if len(presented) == 0 {
				http.Error(w, "Internal API key required", http.StatusUnauthorized)
				return
			}
			// Constant-time compare so timing does not leak key bytes.
			if subtle.ConstantTimeCompare(expected, presented) != 1 {
				http.Error(w, "Invalid internal API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
