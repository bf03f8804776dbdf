package handler

import (
	"errors"
	"net/http"

	"github.com/kraemahz/subseq-util/internal/auth/credentials"
	"github.com/kraemahz/subseq-util/internal/logger"
	"github.com/kraemahz/subseq-util/internal/middleware"
	"github.com/kraemahz/subseq-util/internal/session"

	"github.com/gin-gonic/gin"
)

type changePasswordRequest struct {
	Username    string `json:"username" binding:"required"`
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ChangePassword re-verifies the current password before storing the new
// hash. Every session is revoked, including the caller's, so the client
// must log in again.
func (h *Handler) ChangePassword(c *gin.Context) {
	user, ok := middleware.UserFromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	// The named account must belong to the caller.
	owner, err := h.creds.Owner(c.Request.Context(), req.Username)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}
	if owner == nil || owner.ID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your account"})
		return
	}

	err = h.creds.ChangePassword(c.Request.Context(), req.Username, req.OldPassword, req.NewPassword)
	switch {
	case err == nil:
	case errors.Is(err, credentials.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	case errors.Is(err, credentials.ErrWeakPassword):
		c.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
		return
	default:
		logger.Error("password change failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}

	session.ClearCookie(c.Writer, cookieOptions())
	c.JSON(http.StatusOK, gin.H{"status": "password_changed"})
}
