package identity

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ContextKeyClaims holds the verified *Claims in gin context
const ContextKeyClaims = "identityClaims"

// RequireIdentity rejects requests without a valid bearer identity token.
// An unconfigured verifier answers 503 so a misdeployment is loud instead
// of silently open or silently locked as a generic 401.
func RequireIdentity(v *Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !v.Enabled() {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "identity_unconfigured",
				"message": "Identity verification is not configured on this server.",
			})
			return
		}

		header := c.GetHeader("Authorization")
		tokenString := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if tokenString == "" || tokenString == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Bearer identity token required.",
			})
			return
		}

		claims, err := v.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Identity token invalid or expired.",
			})
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// FromContext returns the verified claims from gin context.
func FromContext(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(ContextKeyClaims)
	if !ok {
		return nil, false
	}
	return v.(*Claims), true
}
