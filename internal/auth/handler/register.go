package handler

import (
	"errors"
	"net/http"

	"github.com/kraemahz/subseq-util/internal/auth/credentials"
	"github.com/kraemahz/subseq-util/internal/identity"
	"github.com/kraemahz/subseq-util/internal/logger"
	"github.com/kraemahz/subseq-util/internal/session"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Register(c *gin.Context) {
	if !h.limiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	user, err := h.creds.Register(c.Request.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrDuplicateEmail),
			errors.Is(err, identity.ErrDuplicateUsername):
			c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
		case errors.Is(err, credentials.ErrWeakPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": "password too short"})
		default:
			// Store or pool detail stays in the log; clients get a
			// generic retryable failure.
			logger.Error("registration failed", map[string]any{"error": err.Error()})
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		}
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), user.ID)
	if err != nil {
		logger.Error("session create after register failed", map[string]any{"error": err.Error()})
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
		return
	}

	session.SetCookie(c.Writer, sess.Token, sess.ExpiresAt, cookieOptions())
	c.JSON(http.StatusCreated, gin.H{
		"status":  "registered",
		"user_id": user.ID.String(),
	})
}
