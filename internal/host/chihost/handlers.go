package chihost

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kraemahz/subseq-util/internal/auth/credentials"
	"github.com/kraemahz/subseq-util/internal/auth/flow"
	"github.com/kraemahz/subseq-util/internal/authn"
	"github.com/kraemahz/subseq-util/internal/identity"
	"github.com/kraemahz/subseq-util/internal/logger"
	"github.com/kraemahz/subseq-util/internal/middleware"
	"github.com/kraemahz/subseq-util/internal/session"
)

type handler struct {
	deps *RouterDeps
}

func newHandler(deps *RouterDeps) *handler {
	return &handler{deps: deps}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func cookieOptions() session.CookieOptions {
	return session.CookieOptions{
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// applyResult writes the token side effects and the transport response
// for an authentication result.
func applyResult(w http.ResponseWriter, res authn.Result, okStatus int) {
	switch res.State {
	case authn.Authenticated:
		if res.SetToken != "" {
			session.SetCookie(w, res.SetToken, res.SetTokenExpiry, cookieOptions())
		}
		writeJSON(w, okStatus, map[string]string{
			"status":  "authenticated",
			"user_id": res.User.ID.String(),
		})
	case authn.Failed:
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		if res.ClearToken {
			session.ClearCookie(w, cookieOptions())
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	}
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.HealthCheck != nil {
		if err := h.deps.HealthCheck(r); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unhealthy")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := h.deps.Auth.Authenticate(r.Context(), authn.Evidence{
		Login: &authn.LoginForm{
			Username: req.Username,
			Password: req.Password,
		},
	})
	applyResult(w, res, http.StatusOK)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.deps.Creds.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrDuplicateEmail),
			errors.Is(err, identity.ErrDuplicateUsername):
			writeError(w, http.StatusConflict, "account already exists")
		case errors.Is(err, credentials.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, "password too short")
		default:
			// Store or pool detail stays in the log; clients get a
			// generic retryable failure.
			logger.Error("registration failed", map[string]any{"error": err.Error()})
			writeError(w, http.StatusServiceUnavailable, "service unavailable")
		}
		return
	}

	sess, err := h.deps.Sessions.Create(r.Context(), user.ID)
	if err != nil {
		logger.Error("session create after register failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	session.SetCookie(w, sess.Token, sess.ExpiresAt, cookieOptions())
	writeJSON(w, http.StatusCreated, map[string]string{
		"status":  "registered",
		"user_id": user.ID.String(),
	})
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(session.CookieName)
	if err == nil && cookie.Value != "" {
		if err := h.deps.Sessions.Revoke(r.Context(), cookie.Value); err != nil {
			logger.Warn("logout revoke failed", map[string]any{"error": err.Error()})
		}
	}

	session.ClearCookie(w, cookieOptions())
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":        user.ID.String(),
		"email":          user.Email,
		"email_verified": user.EmailVerified,
		"status":         user.Status,
	})
}

type changePasswordRequest struct {
	Username    string `json:"username" validate:"required"`
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	owner, err := h.deps.Creds.Owner(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	if owner == nil || owner.ID != user.ID {
		writeError(w, http.StatusForbidden, "not your account")
		return
	}

	err = h.deps.Creds.ChangePassword(r.Context(), req.Username, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, credentials.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	case errors.Is(err, credentials.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "password too short")
		return
	default:
		logger.Error("password change failed", map[string]any{"error": err.Error()})
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}

	// Every session was revoked, including this one.
	session.ClearCookie(w, cookieOptions())
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

func (h *handler) oauthLogin(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown oauth provider")
		return
	}

	http.Redirect(w, r, flow.Begin(w, p), http.StatusFound)
}

func (h *handler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	p, err := h.deps.Providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown oauth provider")
		return
	}

	assertion, err := flow.Callback(r, p)
	switch {
	case err == nil:
	case errors.Is(err, flow.ErrProviderDenied):
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	case errors.Is(err, flow.ErrStateMismatch):
		writeError(w, http.StatusUnauthorized, "invalid state")
		return
	default:
		logger.Warn("oauth callback failed", map[string]any{
			"provider": p.Name(),
			"error":    err.Error(),
		})
		writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	res := h.deps.Auth.Authenticate(r.Context(), authn.Evidence{Assertion: assertion})
	applyResult(w, res, http.StatusOK)
}
