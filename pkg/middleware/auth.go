package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/gymledger/pkg/auth"
	"github.com/platinummonkey/gymledger/pkg/contextkeys"
	"github.com/platinummonkey/gymledger/pkg/httputil"
	"github.com/platinummonkey/gymledger/pkg/observability"
)

// AuthMiddleware requires a bearer token on every request
type AuthMiddleware struct {
	authenticator auth.Authenticator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(authenticator auth.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{authenticator: authenticator}
}

// Handler wraps an HTTP handler with authentication. The owner id of the
// verified token is stored in the request context.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		principal, err := m.authenticator.Authenticate(r.Context(), parts[1])
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("Bearer token rejected")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx := contextkeys.WithOwnerID(r.Context(), principal.OwnerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerID returns the authenticated owner of the request
func OwnerID(r *http.Request) (int64, bool) {
	return contextkeys.GetOwnerID(r.Context())
}
