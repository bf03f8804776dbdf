package handler

import (
	"net/http"

	"github.com/kraemahz/subseq-util/internal/authn"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	if !h.limiter.Allow(c.ClientIP()) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	res := h.auth.Authenticate(c.Request.Context(), authn.Evidence{
		Login: &authn.LoginForm{
			Username: req.Username,
			Password: req.Password,
		},
	})
	applyResult(c, res, http.StatusOK)
}
