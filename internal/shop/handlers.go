// Package shop exposes the storefront: plan listing, credential purchase,
// and self-service account endpoints.
//
// Payment is out of scope here. A purchase request is treated as already
// paid; integrating a payment provider belongs in front of these handlers.
package shop

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/bazaar/internal/identity"
	"github.com/mbd888/bazaar/internal/keys"
	"github.com/mbd888/bazaar/internal/logging"
	"github.com/mbd888/bazaar/internal/metrics"
	"github.com/mbd888/bazaar/internal/plan"
	"github.com/mbd888/bazaar/internal/tenant"
	"github.com/mbd888/bazaar/internal/usage"
	"github.com/mbd888/bazaar/internal/validation"
)

// Handler serves the storefront endpoints.
type Handler struct {
	plans   plan.Store
	tenants tenant.Store
	keys    *keys.Manager
	meter   *usage.Service
}

// NewHandler creates a shop handler.
func NewHandler(plans plan.Store, tenants tenant.Store, keyManager *keys.Manager, meter *usage.Service) *Handler {
	return &Handler{plans: plans, tenants: tenants, keys: keyManager, meter: meter}
}

// RegisterPublic mounts the unauthenticated storefront routes.
func (h *Handler) RegisterPublic(r gin.IRoutes) {
	r.GET("/plans", h.listPlans)
	r.POST("/purchase", h.purchase)
}

// RegisterSelf mounts key-authenticated routes. The group must carry
// keys.RequireKey.
func (h *Handler) RegisterSelf(r gin.IRoutes) {
	r.GET("/usage", h.selfUsage)
	r.POST("/rotate", h.selfRotate)
}

// RegisterAccount mounts identity-token routes. The group must carry
// identity.RequireIdentity.
func (h *Handler) RegisterAccount(r gin.IRoutes) {
	r.POST("/purchase", h.accountPurchase)
	r.GET("/keys", h.accountKeys)
	r.POST("/keys/:id/add-requests", h.accountAddRequests)
}

type planView struct {
	Slug         string `json:"slug"`
	Scope        string `json:"scope"`
	Name         string `json:"name"`
	MonthlyQuota int    `json:"monthly_quota"`
	RPMLimit     int    `json:"rpm_limit"`
	PriceIRR     int64  `json:"price_irr"`
}

func (h *Handler) listPlans(c *gin.Context) {
	plans, err := h.plans.ListActive(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("list plans failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list plans.",
		})
		return
	}

	views := make([]planView, 0, len(plans))
	for _, p := range plans {
		views = append(views, planView{
			Slug:         p.Slug,
			Scope:        string(p.Scope),
			Name:         p.Name,
			MonthlyQuota: p.MonthlyQuota,
			RPMLimit:     p.RPMLimit,
			PriceIRR:     p.PriceIRR,
		})
	}
	c.JSON(http.StatusOK, gin.H{"plans": views})
}

type purchaseRequest struct {
	Email    string `json:"email"`
	PlanSlug string `json:"plan_slug"`
}

// purchase issues a credential to an email-identified tenant.
func (h *Handler) purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Request body must be JSON.",
		})
		return
	}

	req.Email = tenant.NormalizeEmail(req.Email)
	if errs := validation.Validate(
		validation.Required("email", req.Email),
		validation.ValidEmail("email", req.Email),
		validation.Required("plan_slug", req.PlanSlug),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
		})
		return
	}

	tn, err := h.tenants.GetOrCreateByEmail(c.Request.Context(), req.Email)
	if err != nil {
		logging.L(c.Request.Context()).Error("tenant lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to resolve account.",
		})
		return
	}

	h.issueKey(c, tn.ID, req.PlanSlug)
}

// accountPurchase issues a credential to the tenant behind a verified
// identity token.
func (h *Handler) accountPurchase(c *gin.Context) {
	claims, ok := identity.FromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Identity required.",
		})
		return
	}

	var req struct {
		PlanSlug string `json:"plan_slug"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.PlanSlug == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "plan_slug is required.",
		})
		return
	}

	tn, err := h.tenants.GetOrCreateByExternalID(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		logging.L(c.Request.Context()).Error("tenant lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to resolve account.",
		})
		return
	}

	h.issueKey(c, tn.ID, req.PlanSlug)
}

// issueKey is the shared tail of both purchase paths: resolve the plan by
// slug, mint the credential, and show the raw key this one time.
func (h *Handler) issueKey(c *gin.Context, tenantID, planSlug string) {
	p, err := h.plans.GetBySlug(c.Request.Context(), planSlug)
	if err != nil || !p.Active {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "plan_not_found",
			"message": "Plan not found.",
		})
		return
	}

	rawKey, key, err := h.keys.Issue(c.Request.Context(), tenantID, p.ID)
	if err != nil {
		logging.L(c.Request.Context()).Error("key issue failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to issue key.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"api_key":    rawKey,
		"api_key_id": key.ID,
		"plan":       gin.H{"slug": p.Slug, "name": p.Name},
		"created_at": key.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// selfUsage reports the calling credential's current-month consumption.
func (h *Handler) selfUsage(c *gin.Context) {
	key, _ := keys.Credential(c)
	p, _ := keys.CurrentPlan(c)

	st, err := h.meter.Current(c.Request.Context(), key.ID, p.MonthlyQuota)
	if err != nil {
		logging.L(c.Request.Context()).Error("usage lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to read usage.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"month":         st.Month,
		"request_count": st.Used,
		"monthly_quota": p.MonthlyQuota,
		"limit":         st.Limit,
		"remaining":     st.Remaining,
		"plan":          gin.H{"slug": p.Slug, "name": p.Name},
	})
}

// selfRotate revokes the calling credential and returns its replacement.
func (h *Handler) selfRotate(c *gin.Context) {
	key, _ := keys.Credential(c)
	p, _ := keys.CurrentPlan(c)

	rawKey, newKey, err := h.keys.Rotate(c.Request.Context(), key.ID, key.TenantID)
	if err != nil {
		logging.L(c.Request.Context()).Error("rotation failed", "error", err, "key_id", key.ID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to rotate key.",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"api_key":    rawKey,
		"api_key_id": newKey.ID,
		"plan":       gin.H{"slug": p.Slug, "name": p.Name},
		"created_at": newKey.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// accountKeys lists the tenant's active credentials with current usage.
func (h *Handler) accountKeys(c *gin.Context) {
	claims, _ := identity.FromContext(c)

	tn, err := h.tenants.GetOrCreateByExternalID(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		logging.L(c.Request.Context()).Error("tenant lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to resolve account.",
		})
		return
	}

	list, err := h.keys.ListForTenant(c.Request.Context(), tn.ID)
	if err != nil {
		logging.L(c.Request.Context()).Error("key listing failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to list keys.",
		})
		return
	}

	views := make([]gin.H, 0, len(list))
	for _, k := range list {
		if !k.Active {
			continue
		}
		view := gin.H{
			"api_key_id": k.ID,
			"masked":     k.Masked(),
			"created_at": k.CreatedAt.UTC().Format(time.RFC3339),
		}
		if p, err := h.plans.GetByID(c.Request.Context(), k.PlanID); err == nil {
			view["plan"] = gin.H{"slug": p.Slug, "name": p.Name}
			if st, err := h.meter.Current(c.Request.Context(), k.ID, p.MonthlyQuota); err == nil {
				view["usage"] = st
			}
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"keys": views})
}

type addRequestsRequest struct {
	Amount int `json:"amount"`
}

// accountAddRequests applies a purchased request pack to one of the
// tenant's credentials for the current month. Not-owned and inactive keys
// both answer 404; the endpoint does not confirm other tenants' key IDs.
func (h *Handler) accountAddRequests(c *gin.Context) {
	claims, _ := identity.FromContext(c)

	var req addRequestsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": "Request body must be JSON.",
		})
		return
	}
	if errs := validation.Validate(validation.PositiveInt("amount", req.Amount)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": errs.Error(),
		})
		return
	}

	tn, err := h.tenants.GetOrCreateByExternalID(c.Request.Context(), claims.Subject, claims.Email)
	if err != nil {
		logging.L(c.Request.Context()).Error("tenant lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to resolve account.",
		})
		return
	}

	key, err := h.keys.GetOwned(c.Request.Context(), c.Param("id"), tn.ID)
	if err != nil || !key.Active {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "key_not_found",
			"message": "No such key.",
		})
		return
	}

	p, err := h.plans.GetByID(c.Request.Context(), key.PlanID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "key_not_found",
			"message": "No such key.",
		})
		return
	}

	period, err := h.meter.AddCredit(c.Request.Context(), key.ID, req.Amount, c.GetHeader("Idempotency-Key"))
	switch err {
	case nil:
	case usage.ErrDuplicateGrant:
		c.JSON(http.StatusConflict, gin.H{
			"error":   "duplicate_grant",
			"message": "This purchase was already applied.",
		})
		return
	default:
		logging.L(c.Request.Context()).Error("credit grant failed", "error", err, "key_id", key.ID)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to add requests.",
		})
		return
	}

	metrics.CreditGrantsTotal.Inc()
	st, err := h.meter.Current(c.Request.Context(), key.ID, p.MonthlyQuota)
	if err != nil {
		st = &usage.Status{Month: period.Month}
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":    true,
		"added": req.Amount,
		"usage": st,
	})
}
