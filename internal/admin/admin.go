// Package admin provides operator-only endpoints behind a shared token.
package admin

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireToken gates a route group on the x-admin-token header. An empty
// configured token answers 503: failing closed beats silently exposing the
// surface, and beats a generic 401 that would send an operator hunting for
// a typo that is not there.
func RequireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "admin_disabled",
				"message": "No admin token configured on this server.",
			})
			return
		}

		presented := c.GetHeader("X-Admin-Token")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid admin token.",
			})
			return
		}

		c.Next()
	}
}
