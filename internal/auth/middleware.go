package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gon-jpg/TaskManagerFullstack/internal/web"
)

type contextKey string

const identityKey contextKey = "auth.identity"

// IdentityFromContext returns the identity placed by Middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// ContextWithIdentity is exported for handler tests that bypass the middleware.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// Middleware verifies the bearer access token and injects the resolved
// identity into the request context. Every failure is a 401; the body never
// distinguishes signature problems from expiry beyond the taxonomy message.
func Middleware(issuer *TokenIssuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			web.Error(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			web.Error(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			web.Error(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		identity, err := issuer.Verify(tokenStr)
		if err != nil {
			web.Fail(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), identity)))
	})
}
