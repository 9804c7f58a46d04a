package prices

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/bazaar/internal/keys"
	"github.com/mbd888/bazaar/internal/plan"
)

// Handler serves snapshot reads.
type Handler struct {
	cache *Cache
}

// NewHandler creates a prices handler.
func NewHandler(cache *Cache) *Handler {
	return &Handler{cache: cache}
}

// Public serves the raw unfiltered snapshot. No auth, no metering.
func (h *Handler) Public(c *gin.Context) {
	s := h.cache.Load()
	c.JSON(http.StatusOK, gin.H{
		"data":         s.Data,
		"last_updated": s.LastUpdated,
		"status":       s.Status,
	})
}

// Scoped serves the snapshot filtered to the authenticated credential's
// plan scope. Must sit behind keys.RequireMeteredKey.
func (h *Handler) Scoped(c *gin.Context) {
	p, ok := keys.CurrentPlan(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Missing authentication state.",
		})
		return
	}

	scope := p.Scope
	if scope == "" {
		scope = plan.ScopeAll
	}

	s := h.cache.Load()
	body := gin.H{
		"data":         Filter(s.Data, scope),
		"last_updated": s.LastUpdated,
		"status":       s.Status,
	}
	if st, ok := keys.CurrentUsage(c); ok {
		body["usage"] = st
	}
	c.JSON(http.StatusOK, body)
}
