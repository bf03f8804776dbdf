// Package middleware bridges the authentication adapter into the host web
// frameworks.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/kraemahz/subseq-util/internal/authn"
	"github.com/kraemahz/subseq-util/internal/identity"
	"github.com/kraemahz/subseq-util/internal/session"
)

// unexported, collision-proof context key
type userContextKeyType struct{}

var userKey = userContextKeyType{}

// UserFromContext extracts the authenticated user from the request
// context.
func UserFromContext(ctx context.Context) (*identity.User, bool) {
	u, ok := ctx.Value(userKey).(*identity.User)
	return u, ok
}

// ContextWithUser injects an authenticated user; used by the middleware
// and by tests.
func ContextWithUser(ctx context.Context, u *identity.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// ExtractTokens pulls session-token evidence from a request: the session
// cookie and, when present, an Authorization bearer token.
func ExtractTokens(r *http.Request) authn.Evidence {
	var ev authn.Evidence

	if cookie, err := r.Cookie(session.CookieName); err == nil {
		ev.CookieToken = cookie.Value
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		ev.BearerToken = strings.TrimPrefix(header, "Bearer ")
	}
	return ev
}

type AuthMiddleware struct {
	Auth *authn.Authenticator
}

func NewAuthMiddleware(auth *authn.Authenticator) *AuthMiddleware {
	return &AuthMiddleware{Auth: auth}
}

// RequireAuth authenticates the request from its token evidence. Requests
// that do not resolve to an active user get 401 with the stale cookie
// cleared; infrastructure faults get 503 so the client retries instead of
// re-prompting for credentials.
func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := a.Auth.Authenticate(r.Context(), ExtractTokens(r))

		switch result.State {
		case authn.Authenticated:
			ctx := ContextWithUser(r.Context(), result.User)
			next.ServeHTTP(w, r.WithContext(ctx))
		case authn.Failed:
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		default:
			if result.ClearToken {
				session.ClearCookie(w, session.CookieOptions{
					Secure:   true,
					SameSite: http.SameSiteLaxMode,
				})
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	})
}
