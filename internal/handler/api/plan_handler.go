package api

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"panelhub/internal/apperr"
	"panelhub/internal/audit"
	"panelhub/internal/models"
)

// PlanHandler manages plans and plan categories.
type PlanHandler struct {
	*Deps
}

func NewPlanHandler(d *Deps) *PlanHandler {
	return &PlanHandler{Deps: d}
}

type planRequest struct {
	Name                string          `json:"name"`
	DataQuotaMB         *int64          `json:"data_quota_mb"`
	IsDataUnlimited     bool            `json:"is_data_unlimited"`
	DurationDays        *int            `json:"duration_days"`
	IsDurationUnlimited bool            `json:"is_duration_unlimited"`
	Price               decimal.Decimal `json:"price"`
	CategoryID          *uint           `json:"category_id"`
	SortOrder           int             `json:"sort_order"`
}

func (r planRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return apperr.New(apperr.InvalidInput, "name is required")
	}
	if r.Price.IsNegative() {
		return apperr.New(apperr.InvalidInput, "price cannot be negative")
	}
	if !r.IsDataUnlimited && (r.DataQuotaMB == nil || *r.DataQuotaMB <= 0) {
		return apperr.New(apperr.InvalidInput, "data_quota_mb must be positive unless is_data_unlimited")
	}
	if !r.IsDurationUnlimited && (r.DurationDays == nil || *r.DurationDays <= 0) {
		return apperr.New(apperr.InvalidInput, "duration_days must be positive unless is_duration_unlimited")
	}
	return nil
}

func (r planRequest) apply(p *models.Plan) {
	p.Name = strings.TrimSpace(r.Name)
	p.DataQuotaMB = r.DataQuotaMB
	p.IsDataUnlimited = r.IsDataUnlimited
	p.DurationDays = r.DurationDays
	p.IsDurationUnlimited = r.IsDurationUnlimited
	p.Price = r.Price
	p.CategoryID = r.CategoryID
	p.SortOrder = r.SortOrder
}

type planView struct {
	models.Plan
	EffectivePrice decimal.Decimal `json:"effective_price"`
}

// List returns plans with the price the caller would pay.
// GET /api/plans
func (h *PlanHandler) List(c echo.Context) error {
	categoryID, _ := strconv.ParseUint(c.QueryParam("category_id"), 10, 64)
	plans, err := h.Repos.Plan.FindAll(uint(categoryID))
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list plans", err))
	}

	caller := callerOf(c)
	overrides, err := h.Repos.PlanTemplate.PriceOverrides(caller.ID)
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "load price list", err))
	}
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		v := planView{Plan: p, EffectivePrice: p.Price}
		if caller.IsRoot {
			v.EffectivePrice = decimal.Zero
		} else if o, ok := overrides[p.ID]; ok {
			v.EffectivePrice = o
		}
		out = append(out, v)
	}
	return successResponse(c, "Successful", out)
}

// Create adds a plan.
// POST /api/plans
func (h *PlanHandler) Create(c echo.Context) error {
	var req planRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if err := req.validate(); err != nil {
		return h.errorResponse(c, err)
	}
	p := &models.Plan{}
	req.apply(p)
	if err := h.Repos.Plan.Create(p); err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "create plan", err))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "plan.create", Target: p.Name, Meta: map[string]interface{}{"plan_id": p.ID}})
	return createdResponse(c, "Plan created", p)
}

// Update replaces a plan's fields.
// PUT /api/plans/:id
func (h *PlanHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req planRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if err := req.validate(); err != nil {
		return h.errorResponse(c, err)
	}
	p, err := h.Repos.Plan.FindByID(id)
	if err != nil {
		return h.errorResponse(c, lookupError(err, apperr.PlanNotFound, "plan not found"))
	}
	req.apply(p)
	if err := h.Repos.Plan.Save(p); err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "update plan", err))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "plan.update", Target: p.Name, Meta: map[string]interface{}{"plan_id": p.ID}})
	return successResponse(c, "Plan updated", p)
}

// Delete removes a plan.
// DELETE /api/plans/:id
func (h *PlanHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if err := h.Repos.Plan.Delete(id); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.PlanNotFound, "plan not found"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "plan.delete", Target: "plan", Meta: map[string]interface{}{"plan_id": id}})
	return successResponse(c, "Plan deleted", nil)
}

// Categories lists plan categories.
// GET /api/plan-categories
func (h *PlanHandler) Categories(c echo.Context) error {
	cats, err := h.Repos.Plan.ListCategories()
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list categories", err))
	}
	return successResponse(c, "Successful", cats)
}

type categoryRequest struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

// CreateCategory adds a category.
// POST /api/plan-categories
func (h *PlanHandler) CreateCategory(c echo.Context) error {
	var req categoryRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return h.badRequest(c, "name is required")
	}
	cat := &models.PlanCategory{Name: strings.TrimSpace(req.Name), SortOrder: req.SortOrder}
	if err := h.Repos.Plan.CreateCategory(cat); err != nil {
		return h.errorResponse(c, writeError(err, "create category"))
	}
	return createdResponse(c, "Category created", cat)
}

// UpdateCategory renames or reorders a category.
// PUT /api/plan-categories/:id
func (h *PlanHandler) UpdateCategory(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req categoryRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return h.badRequest(c, "name is required")
	}
	err = h.Repos.Plan.UpdateCategory(id, map[string]interface{}{"name": strings.TrimSpace(req.Name), "sort_order": req.SortOrder})
	if err != nil {
		return h.errorResponse(c, lookupError(err, apperr.NotFound, "category not found"))
	}
	return successResponse(c, "Category updated", nil)
}

// DeleteCategory removes a category; its plans keep existing uncategorized.
// DELETE /api/plan-categories/:id
func (h *PlanHandler) DeleteCategory(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if err := h.Repos.Plan.DeleteCategory(id); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.NotFound, "category not found"))
	}
	return successResponse(c, "Category deleted", nil)
}
