package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kraemahz/subseq-util/internal/auth/credentials"
	"github.com/kraemahz/subseq-util/internal/auth/handler"
	"github.com/kraemahz/subseq-util/internal/auth/provider"
	"github.com/kraemahz/subseq-util/internal/auth/provider/google"
	"github.com/kraemahz/subseq-util/internal/auth/provider/keycloak"
	"github.com/kraemahz/subseq-util/internal/authn"
	"github.com/kraemahz/subseq-util/internal/config"
	"github.com/kraemahz/subseq-util/internal/host/chihost"
	"github.com/kraemahz/subseq-util/internal/identity"
	"github.com/kraemahz/subseq-util/internal/logger"
	"github.com/kraemahz/subseq-util/internal/metrics"
	"github.com/kraemahz/subseq-util/internal/middleware"
	"github.com/kraemahz/subseq-util/internal/session"
)

func setupHTTP(ctx context.Context, cfg config.Config) (http.Handler, func() error, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	collector := metrics.NewCollector()
	infra.Pool.SetMetrics(collector)

	// ----------------------------
	// Dependencies
	// ----------------------------

	var sessionStore session.Store
	if cfg.SessionBackend == config.SessionBackendRedis {
		sessionStore = session.NewRedisStore(infra.Redis.Client)
	} else {
		sessionStore = session.NewPostgresStore(infra.Pool)
	}

	sessions := session.NewManager(sessionStore, session.Config{
		TTL:     cfg.SessionTTL,
		Renewal: cfg.SessionRenewal,
	})

	identityStore := identity.NewPostgresStore(infra.Pool)
	creds := credentials.NewService(identityStore, sessions)

	auth := authn.New(creds, sessions, identityStore)
	auth.SetMetrics(collector)

	registry, err := setupProviders(ctx, cfg)
	if err != nil {
		infra.Close()
		return nil, nil, err
	}

	authMW := middleware.NewAuthMiddleware(auth)
	limiter := middleware.NewLoginRateLimiter(cfg.LoginRatePerMinute)

	sweeper := session.NewSweeper(sessions, cfg.SessionSweepInterval)
	sweeper.Start()

	healthCheck := func(r *http.Request) error {
		return infra.Pool.DB().PingContext(r.Context())
	}

	// ----------------------------
	// Router
	// ----------------------------

	var root http.Handler
	if cfg.HostFramework == config.HostChi {
		root = chihost.NewRouter(&chihost.RouterDeps{
			Providers:      registry,
			Auth:           auth,
			Sessions:       sessions,
			Creds:          creds,
			AuthMW:         authMW,
			Limiter:        limiter,
			HealthCheck:    healthCheck,
			MetricsHandler: collector.Handler(),
		})
	} else {
		root = setupGin(registry, auth, sessions, creds, authMW, limiter, collector, healthCheck)
	}

	cleanup := func() error {
		sweeper.Stop()
		limiter.Stop()
		return infra.Close()
	}
	return root, cleanup, nil
}

func setupGin(
	registry *provider.Registry,
	auth *authn.Authenticator,
	sessions *session.Manager,
	creds *credentials.Service,
	authMW *middleware.AuthMiddleware,
	limiter *middleware.LoginRateLimiter,
	collector *metrics.Collector,
	healthCheck func(*http.Request) error,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	authHandler := handler.NewHandler(registry, auth, sessions, creds, limiter)
	authHandler.RegisterRoutes(router, middleware.GinRequireAuth(authMW))

	router.GET("/health", func(c *gin.Context) {
		if err := healthCheck(c.Request); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(collector.Handler()))

	return router
}

// setupProviders registers every OIDC provider whose configuration is
// present. A deployment with no providers still serves local logins.
func setupProviders(ctx context.Context, cfg config.Config) (*provider.Registry, error) {
	var list []provider.Provider

	if cfg.GoogleClientID != "" {
		googleProvider, err := google.New(
			ctx,
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleRedirectURL,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, googleProvider)
	}

	if cfg.KeycloakIssuer != "" {
		keycloakProvider, err := keycloak.New(
			ctx,
			cfg.KeycloakIssuer,
			cfg.KeycloakClientID,
			cfg.KeycloakRedirectURL,
			cfg.KeycloakPublicBaseURL,
		)
		if err != nil {
			return nil, err
		}
		list = append(list, keycloakProvider)
	}

	if len(list) == 0 {
		logger.Info("no oidc providers configured", nil)
	}
	return provider.NewRegistry(list...), nil
}
