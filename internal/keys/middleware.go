package keys

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/bazaar/internal/metrics"
	"github.com/mbd888/bazaar/internal/plan"
	"github.com/mbd888/bazaar/internal/usage"
)

const (
	// ContextKeyCredential holds the authenticated *APIKey in gin context
	ContextKeyCredential = "apiCredential"
	// ContextKeyPlan holds the credential's *plan.Plan
	ContextKeyPlan = "apiPlan"
	// ContextKeyUsage holds the *usage.Status after metering
	ContextKeyUsage = "apiUsage"
)

// extractKey pulls the raw key from the "key" path param (the
// header-less client variant), the X-API-Key header, or a bearer
// Authorization header, in that order.
func extractKey(c *gin.Context) string {
	if k := c.Param("key"); k != "" {
		return k
	}
	if k := c.GetHeader("X-API-Key"); k != "" {
		return k
	}
	return c.GetHeader("Authorization")
}

// RequireKey authenticates the request's credential without metering it.
// Used by self-service endpoints that inspect or rotate a key.
func RequireKey(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, p, err := m.Authenticate(c.Request.Context(), extractKey(c))
		if err != nil {
			metrics.AuthAttemptsTotal.WithLabelValues("invalid").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "API key missing, invalid, or revoked.",
			})
			return
		}
		metrics.AuthAttemptsTotal.WithLabelValues("ok").Inc()
		c.Set(ContextKeyCredential, key)
		c.Set(ContextKeyPlan, p)
		c.Next()
	}
}

// RequireMeteredKey authenticates the credential, enforces its plan's
// per-minute rate, and claims one unit of monthly quota. The request only
// proceeds once the unit is committed; a rejected request consumes
// nothing.
func RequireMeteredKey(m *Manager, meter *usage.Service, limiter *Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, p, err := m.Authenticate(c.Request.Context(), extractKey(c))
		if err != nil {
			metrics.AuthAttemptsTotal.WithLabelValues("invalid").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "API key missing, invalid, or revoked.",
			})
			return
		}
		metrics.AuthAttemptsTotal.WithLabelValues("ok").Inc()

		if !limiter.Allow(key.ID, p.RPMLimit) {
			metrics.MeteredRequestsTotal.WithLabelValues("rate_limited").Inc()
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "rate_limited",
				"message": "Per-minute rate limit exceeded.",
			})
			return
		}

		st, err := meter.IncrementOrReject(c.Request.Context(), key.ID, p.MonthlyQuota)
		switch err {
		case nil:
			metrics.MeteredRequestsTotal.WithLabelValues("allowed").Inc()
		case usage.ErrQuotaExhausted:
			metrics.MeteredRequestsTotal.WithLabelValues("quota_exhausted").Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "quota_exhausted",
				"message": "Monthly request quota exhausted. Purchase additional requests or wait for the next period.",
				"usage":   st,
			})
			return
		case usage.ErrNotActive:
			// Revoked between authentication and metering. Same
			// undifferentiated answer as a failed authentication.
			metrics.MeteredRequestsTotal.WithLabelValues("not_active").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_api_key",
				"message": "API key missing, invalid, or revoked.",
			})
			return
		case usage.ErrContention:
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "contention",
				"message": "Usage accounting is busy, retry shortly.",
			})
			return
		default:
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Usage accounting failed.",
			})
			return
		}

		c.Set(ContextKeyCredential, key)
		c.Set(ContextKeyPlan, p)
		c.Set(ContextKeyUsage, st)
		c.Next()
	}
}

// Credential returns the authenticated credential from context.
func Credential(c *gin.Context) (*APIKey, bool) {
	v, ok := c.Get(ContextKeyCredential)
	if !ok {
		return nil, false
	}
	return v.(*APIKey), true
}

// CurrentPlan returns the authenticated credential's plan from context.
func CurrentPlan(c *gin.Context) (*plan.Plan, bool) {
	v, ok := c.Get(ContextKeyPlan)
	if !ok {
		return nil, false
	}
	return v.(*plan.Plan), true
}

// CurrentUsage returns the metering status from context, if metered.
func CurrentUsage(c *gin.Context) (*usage.Status, bool) {
	v, ok := c.Get(ContextKeyUsage)
	if !ok {
		return nil, false
	}
	return v.(*usage.Status), true
}
