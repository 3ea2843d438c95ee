package api

import (
	"errors"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"panelhub/internal/apperr"
	"panelhub/internal/audit"
	"panelhub/internal/models"
	"panelhub/internal/repository"
)

// TemplateHandler manages inbound templates and plan price lists.
type TemplateHandler struct {
	*Deps
}

func NewTemplateHandler(d *Deps) *TemplateHandler {
	return &TemplateHandler{Deps: d}
}

type templateRequest struct {
	Name    string    `json:"name"`
	PanelID uint      `json:"panel_id"`
	Tags    *[]string `json:"tags"`
}

func templateWriteError(err error, msg string) error {
	switch {
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return apperr.Wrap(apperr.NotFound, msg+": referenced row does not exist", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperr.Wrap(apperr.Conflict, msg+": already exists", err)
	case repository.IsNotFound(err):
		return apperr.New(apperr.TemplateNotFound, "template not found")
	}
	return apperr.Wrap(apperr.Internal, msg, err)
}

// List returns templates, optionally of one panel.
// GET /api/templates
func (h *TemplateHandler) List(c echo.Context) error {
	panelID, _ := strconv.ParseUint(c.QueryParam("panel_id"), 10, 64)
	tpls, err := h.Repos.Template.FindAll(uint(panelID))
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list templates", err))
	}
	return successResponse(c, "Successful", tpls)
}

// Mine returns the template assigned to the caller, or null.
// GET /api/templates/mine
func (h *TemplateHandler) Mine(c echo.Context) error {
	tpl, err := h.Repos.Template.FindForUser(callerOf(c).ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return successResponse(c, "No template assigned", nil)
		}
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "load template", err))
	}
	return successResponse(c, "Successful", tpl)
}

// Create adds a template scoped to a panel.
// POST /api/templates
func (h *TemplateHandler) Create(c echo.Context) error {
	var req templateRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if strings.TrimSpace(req.Name) == "" || req.PanelID == 0 {
		return h.badRequest(c, "name and panel_id are required")
	}
	if _, err := h.Repos.Panel.FindByID(req.PanelID); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.PanelNotFound, "panel not found"))
	}
	var tags []string
	if req.Tags != nil {
		tags = *req.Tags
	}

	tpl := &models.Template{Name: strings.TrimSpace(req.Name), PanelID: req.PanelID}
	if err := h.Repos.Template.Create(tpl, tags); err != nil {
		return h.errorResponse(c, templateWriteError(err, "create template"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "template.create", Target: tpl.Name, Meta: map[string]interface{}{"template_id": tpl.ID, "panel_id": tpl.PanelID}})
	return createdResponse(c, "Template created", tpl)
}

// Update renames a template and replaces its tags when given.
// PUT /api/templates/:id
func (h *TemplateHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req templateRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	var tags []string
	if req.Tags != nil {
		tags = append([]string{}, (*req.Tags)...)
	}
	tpl, err := h.Repos.Template.Update(id, strings.TrimSpace(req.Name), tags)
	if err != nil {
		return h.errorResponse(c, templateWriteError(err, "update template"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "template.update", Target: tpl.Name, Meta: map[string]interface{}{"template_id": id}})
	return successResponse(c, "Template updated", tpl)
}

// Delete removes a template and its assignments.
// DELETE /api/templates/:id
func (h *TemplateHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if err := h.Repos.Template.Delete(id); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.TemplateNotFound, "template not found"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "template.delete", Target: "template", Meta: map[string]interface{}{"template_id": id}})
	return successResponse(c, "Template deleted", nil)
}

type assignRequest struct {
	UserID     uint  `json:"user_id"`
	TemplateID *uint `json:"template_id"`
}

// Assign sets or, with a null template_id, clears a user's template.
// POST /api/templates/assign
func (h *TemplateHandler) Assign(c echo.Context) error {
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if req.UserID == 0 {
		return h.badRequest(c, "user_id is required")
	}
	if req.TemplateID == nil {
		if err := h.Repos.Template.Unassign(req.UserID); err != nil {
			return h.errorResponse(c, apperr.Wrap(apperr.Internal, "unassign template", err))
		}
		return successResponse(c, "Template unassigned", nil)
	}
	if _, err := h.Repos.Template.FindByID(*req.TemplateID); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.TemplateNotFound, "template not found"))
	}
	if err := h.Repos.Template.Assign(req.UserID, *req.TemplateID); err != nil {
		return h.errorResponse(c, templateWriteError(err, "assign template"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "template.assign", Target: "user", Meta: map[string]interface{}{"user_id": req.UserID, "template_id": *req.TemplateID}})
	return successResponse(c, "Template assigned", nil)
}

type planTemplateRequest struct {
	Name  string `json:"name"`
	Items []struct {
		PlanID uint            `json:"plan_id"`
		Price  decimal.Decimal `json:"price"`
	} `json:"items"`
}

func (r planTemplateRequest) items() ([]models.PlanTemplateItem, error) {
	seen := map[uint]bool{}
	out := make([]models.PlanTemplateItem, 0, len(r.Items))
	for _, it := range r.Items {
		if it.PlanID == 0 || it.Price.IsNegative() {
			return nil, apperr.New(apperr.InvalidInput, "every item needs a plan_id and a non-negative price")
		}
		if seen[it.PlanID] {
			return nil, apperr.New(apperr.InvalidInput, "duplicate plan_id in items")
		}
		seen[it.PlanID] = true
		out = append(out, models.PlanTemplateItem{PlanID: it.PlanID, Price: it.Price})
	}
	return out, nil
}

// ListPlanTemplates returns every price list.
// GET /api/plan-templates
func (h *TemplateHandler) ListPlanTemplates(c echo.Context) error {
	pts, err := h.Repos.PlanTemplate.FindAll()
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list plan templates", err))
	}
	return successResponse(c, "Successful", pts)
}

// SavePlanTemplate creates (POST) or replaces (PUT /:id) a price list.
func (h *TemplateHandler) SavePlanTemplate(c echo.Context) error {
	var req planTemplateRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return h.badRequest(c, "name is required")
	}
	items, err := req.items()
	if err != nil {
		return h.errorResponse(c, err)
	}

	pt := &models.PlanTemplate{Name: strings.TrimSpace(req.Name)}
	if c.Param("id") != "" {
		if pt.ID, err = idParam(c, "id"); err != nil {
			return h.errorResponse(c, err)
		}
	}
	if err := h.Repos.PlanTemplate.Save(pt, items); err != nil {
		return h.errorResponse(c, templateWriteError(err, "save plan template"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "plan_template.save", Target: pt.Name, Meta: map[string]interface{}{"plan_template_id": pt.ID, "items": len(items)}})
	return successResponse(c, "Plan template saved", pt)
}

// DeletePlanTemplate removes a price list.
// DELETE /api/plan-templates/:id
func (h *TemplateHandler) DeletePlanTemplate(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if err := h.Repos.PlanTemplate.Delete(id); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.TemplateNotFound, "plan template not found"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "plan_template.delete", Target: "plan_template", Meta: map[string]interface{}{"plan_template_id": id}})
	return successResponse(c, "Plan template deleted", nil)
}

// AssignPlanTemplate sets or, with a null template_id, clears a user's price list.
// POST /api/plan-templates/assign
func (h *TemplateHandler) AssignPlanTemplate(c echo.Context) error {
	var req assignRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if req.UserID == 0 {
		return h.badRequest(c, "user_id is required")
	}
	if req.TemplateID == nil {
		if err := h.Repos.PlanTemplate.Unassign(req.UserID); err != nil {
			return h.errorResponse(c, apperr.Wrap(apperr.Internal, "unassign plan template", err))
		}
		return successResponse(c, "Plan template unassigned", nil)
	}
	if _, err := h.Repos.PlanTemplate.FindByID(*req.TemplateID); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.TemplateNotFound, "plan template not found"))
	}
	if err := h.Repos.PlanTemplate.Assign(req.UserID, *req.TemplateID); err != nil {
		return h.errorResponse(c, templateWriteError(err, "assign plan template"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "plan_template.assign", Target: "user", Meta: map[string]interface{}{"user_id": req.UserID, "plan_template_id": *req.TemplateID}})
	return successResponse(c, "Plan template assigned", nil)
}
