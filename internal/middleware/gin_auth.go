package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GinRequireAuth adapts the net/http auth middleware to gin, so the auth
// decision stays session-based and framework-agnostic.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bridge handler to let the net/http middleware run the gin
		// chain on success.
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		auth.RequireAuth(next).ServeHTTP(c.Writer, c.Request)

		// If the middleware already wrote a response, stop the chain.
		if c.Writer.Written() {
			c.Abort()
		}
	}
}
