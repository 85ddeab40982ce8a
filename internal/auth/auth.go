// Package auth implements the SSE endpoint's auth callback contract
// (§4.6): a function invoked once per connection attempt that decides
// whether to admit it. Grounded on the teacher's AuthMiddleware/AuthInterceptor
// (internal/server/interceptors.go): same constant-time Bearer-token
// comparison, same "empty configured token disables auth" default,
// generalized from a gRPC interceptor and HTTP middleware pair into a
// single callback shape that fits sse.Handler.Auth.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// CheckFunc matches sse.AuthFunc's signature structurally so values
// returned here can be assigned directly to an sse.Handler's Auth field
// without this package importing sse.
type CheckFunc func(r *http.Request, channelID string) bool

// Permissive admits every connection. It is the default when no auth
// token is configured (§4.6).
func Permissive() CheckFunc {
	return func(r *http.Request, channelID string) bool {
		return true
	}
}

// NewBearerToken returns a CheckFunc that admits a connection only if the
// request carries "Authorization: Bearer <token>" matching token or, when
// that header is absent, a matching "token" query parameter, compared
// in constant time to avoid leaking the token through response-timing
// side channels. An empty token falls back to Permissive, matching the
// teacher's "no token configured means auth is off" behavior.
func NewBearerToken(token string) CheckFunc {
	if token == "" {
		return Permissive()
	}
	return func(r *http.Request, channelID string) bool {
		got := bearerFromRequest(r)
		if got == "" {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
	}
}

func bearerFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return strings.TrimPrefix(header, prefix)
	}
	// EventSource clients can't set custom headers on the initial request
	// in every browser; allow the token as a query parameter fallback.
	return r.URL.Query().Get("token")
}
