package middleware

import (
	"crypto/subtle"
	"net/http"
	"slices"

	"github.com/newthinker/tradebot/internal/api/response"
	"github.com/newthinker/tradebot/internal/core"
)

// APIKeyAuth returns middleware that validates the X-API-Key header.
// Browsers cannot set headers on a WebSocket upgrade, so the api_key query
// parameter is accepted too. If apiKey is empty, authentication is disabled.
// Paths in public skip the check.
func APIKeyAuth(apiKey string, public ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || slices.Contains(public, r.URL.Path) || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get("X-API-Key")
			if providedKey == "" {
				providedKey = r.URL.Query().Get("api_key")
			}
			if providedKey == "" {
				response.Fail(w, core.ErrUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
				response.Fail(w, core.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
