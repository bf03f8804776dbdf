package handler

import (
	"errors"
	"net/http"

	"github.com/kraemahz/subseq-util/internal/auth/credentials"
	"github.com/kraemahz/subseq-util/internal/auth/flow"
	"github.com/kraemahz/subseq-util/internal/auth/provider"
	"github.com/kraemahz/subseq-util/internal/authn"
	"github.com/kraemahz/subseq-util/internal/logger"
	"github.com/kraemahz/subseq-util/internal/middleware"
	"github.com/kraemahz/subseq-util/internal/session"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	providers *provider.Registry
	auth      *authn.Authenticator
	sessions  *session.Manager
	creds     *credentials.Service
	limiter   *middleware.LoginRateLimiter
}

func NewHandler(
	registry *provider.Registry,
	auth *authn.Authenticator,
	sessions *session.Manager,
	creds *credentials.Service,
	limiter *middleware.LoginRateLimiter,
) *Handler {
	return &Handler{
		providers: registry,
		auth:      auth,
		sessions:  sessions,
		creds:     creds,
		limiter:   limiter,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine, requireAuth gin.HandlerFunc) {
	r.GET("/oauth/login/:provider", h.oauthLogin)
	r.GET("/oauth/callback/:provider", h.oauthCallback)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/register", h.Register)
	r.POST("/auth/logout", h.Logout)

	api := r.Group("/api", requireAuth)
	api.GET("/me", h.Me)
	api.POST("/password", h.ChangePassword)

	for _, route := range r.Routes() {
		logger.Debug("route registered", map[string]any{
			"method": route.Method,
			"path":   route.Path,
		})
	}
}

func cookieOptions() session.CookieOptions {
	return session.CookieOptions{
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// applyResult writes the token side effects and the transport response
// for an authentication result.
func applyResult(c *gin.Context, res authn.Result, okStatus int) {
	switch res.State {
	case authn.Authenticated:
		if res.SetToken != "" {
			session.SetCookie(c.Writer, res.SetToken, res.SetTokenExpiry, cookieOptions())
		}
		c.JSON(okStatus, gin.H{
			"status":  "authenticated",
			"user_id": res.User.ID.String(),
		})
	case authn.Failed:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		if res.ClearToken {
			session.ClearCookie(c.Writer, cookieOptions())
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	}
}

func (h *Handler) oauthLogin(c *gin.Context) {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown oauth provider"})
		return
	}

	c.Redirect(http.StatusFound, flow.Begin(c.Writer, p))
}

func (h *Handler) oauthCallback(c *gin.Context) {
	p, err := h.providers.Get(c.Param("provider"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown oauth provider"})
		return
	}

	assertion, err := flow.Callback(c.Request, p)
	switch {
	case err == nil:
	case errors.Is(err, flow.ErrProviderDenied):
		// The provider bounced the user back without a code; send
		// them to login to start a fresh flow.
		c.Redirect(http.StatusFound, "/login")
		return
	case errors.Is(err, flow.ErrStateMismatch):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid state"})
		return
	default:
		logger.Warn("oauth callback failed", map[string]any{
			"provider": p.Name(),
			"error":    err.Error(),
		})
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication failed"})
		return
	}

	res := h.auth.Authenticate(c.Request.Context(), authn.Evidence{Assertion: assertion})
	applyResult(c, res, http.StatusOK)
}

func (h *Handler) Logout(c *gin.Context) {
	cookie, err := c.Request.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		// Best-effort revoke; logout succeeds either way.
		if err := h.sessions.Revoke(c.Request.Context(), cookie.Value); err != nil {
			logger.Warn("logout revoke failed", map[string]any{"error": err.Error()})
		}
	}

	session.ClearCookie(c.Writer, cookieOptions())
	c.Status(http.StatusNoContent)
}

func (h *Handler) Me(c *gin.Context) {
	user, ok := middleware.UserFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":        user.ID.String(),
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"status":         user.Status,
	})
}
