package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/bazaar/internal/keys"
	"github.com/mbd888/bazaar/internal/plan"
)

// maxKeyListing caps the admin key listing.
const maxKeyListing = 200

// Handler provides admin HTTP endpoints.
type Handler struct {
	keys  *keys.Manager
	plans plan.Store
}

// NewHandler creates a new admin handler.
func NewHandler(keyManager *keys.Manager, plans plan.Store) *Handler {
	return &Handler{keys: keyManager, plans: plans}
}

// RegisterRoutes mounts the admin surface on a token-gated group.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/keys", h.listKeys)
	r.POST("/plans", h.createPlan)
	r.DELETE("/plans/:id", h.deactivatePlan)
}

type keyView struct {
	ID        string `json:"id"`
	Key       string `json:"key"`
	TenantID  string `json:"tenant_id"`
	PlanID    string `json:"plan_id"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

// listKeys returns the most recent credentials, masked. A raw key never
// appears in any admin response.
func (h *Handler) listKeys(c *gin.Context) {
	list, err := h.keys.ListRecent(c.Request.Context(), maxKeyListing)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list keys.",
		})
		return
	}

	views := make([]keyView, 0, len(list))
	for _, k := range list {
		views = append(views, keyView{
			ID:        k.ID,
			Key:       k.Masked(),
			TenantID:  k.TenantID,
			PlanID:    k.PlanID,
			Active:    k.Active,
			CreatedAt: k.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	c.JSON(http.StatusOK, gin.H{"keys": views, "count": len(views)})
}

type createPlanRequest struct {
	Slug         string `json:"slug" binding:"required"`
	Scope        string `json:"scope" binding:"required"`
	Name         string `json:"name"`
	MonthlyQuota int    `json:"monthly_quota" binding:"required"`
	RPMLimit     int    `json:"rpm_limit"`
	PriceIRR     int64  `json:"price_irr"`
}

func (h *Handler) createPlan(c *gin.Context) {
	var req createPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": err.Error(),
		})
		return
	}

	p := &plan.Plan{
		Slug:         req.Slug,
		Scope:        plan.Scope(req.Scope),
		Name:         req.Name,
		MonthlyQuota: req.MonthlyQuota,
		RPMLimit:     req.RPMLimit,
		PriceIRR:     req.PriceIRR,
		Active:       true,
	}
	switch err := h.plans.Create(c.Request.Context(), p); err {
	case nil:
		c.JSON(http.StatusOK, p)
	case plan.ErrInvalidScope:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Scope must be one of all, currency, crypto, gold.",
		})
	case plan.ErrSlugTaken:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "slug_taken",
			"message": "A plan with this slug already exists.",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to create plan.",
		})
	}
}

// deactivatePlan retires a plan. Existing keys on the plan stop
// authenticating until the plan is reactivated; nothing is deleted.
func (h *Handler) deactivatePlan(c *gin.Context) {
	switch err := h.plans.SetActive(c.Request.Context(), c.Param("id"), false); err {
	case nil:
		c.JSON(http.StatusOK, gin.H{"ok": true})
	case plan.ErrPlanNotFound:
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "plan_not_found",
			"message": "No such plan.",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to deactivate plan.",
		})
	}
}
