// Package chihost is the chi-based host frontend. It exposes the same
// endpoint surface as the gin host so deployments can pick either
// framework without touching the authentication core.
package chihost

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kraemahz/subseq-util/internal/auth/credentials"
	"github.com/kraemahz/subseq-util/internal/auth/provider"
	"github.com/kraemahz/subseq-util/internal/authn"
	"github.com/kraemahz/subseq-util/internal/middleware"
	"github.com/kraemahz/subseq-util/internal/session"
)

// RouterDeps collects everything the router needs.
type RouterDeps struct {
	Providers *provider.Registry
	Auth      *authn.Authenticator
	Sessions  *session.Manager
	Creds     *credentials.Service

	AuthMW  *middleware.AuthMiddleware
	Limiter *middleware.LoginRateLimiter

	// HealthCheck is invoked by GET /health; a non-nil error answers 503.
	HealthCheck func(*http.Request) error
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
}

func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()
	h := newHandler(deps)

	r.Get("/health", h.health)
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	r.Route("/auth", func(r chi.Router) {
		r.With(deps.Limiter.Middleware).Post("/login", h.login)
		r.With(deps.Limiter.Middleware).Post("/register", h.register)
		r.Post("/logout", h.logout)
	})

	r.Route("/oauth", func(r chi.Router) {
		r.Get("/login/{provider}", h.oauthLogin)
		r.Get("/callback/{provider}", h.oauthCallback)
	})

	r.Group(func(r chi.Router) {
		r.Use(deps.AuthMW.RequireAuth)

		r.Route("/api", func(r chi.Router) {
			r.Get("/me", h.me)
			r.Post("/password", h.changePassword)
		})
	})

	return r
}
