package api

import (
	"errors"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"panelhub/internal/apperr"
	"panelhub/internal/audit"
	"panelhub/internal/models"
	"panelhub/internal/panel"
)

// PanelHandler manages panels, their inbound selection and connection tests.
type PanelHandler struct {
	*Deps
}

func NewPanelHandler(d *Deps) *PanelHandler {
	return &PanelHandler{Deps: d}
}

type panelRequest struct {
	Name      *string `json:"name"`
	BaseURL   *string `json:"base_url"`
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	PanelType *string `json:"panel_type"`
	IsDefault *bool   `json:"is_default"`
}

func normalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimRight(strings.TrimSpace(raw), "/")
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", apperr.New(apperr.InvalidInput, "base_url must be an absolute http(s) URL")
	}
	return raw, nil
}

func normalizePanelType(t string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "", models.PanelTypeMarzban:
		return models.PanelTypeMarzban, nil
	case models.PanelTypePasarGuard:
		return models.PanelTypePasarGuard, nil
	}
	return "", apperr.New(apperr.InvalidInput, "panel_type must be marzban or pasarguard")
}

func writeError(err error, msg string) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.New(apperr.Conflict, msg+": name already in use")
	}
	return lookupError(err, apperr.PanelNotFound, msg)
}

// List returns every panel to root callers and the panels with delegated
// access to everyone else.
// GET /api/panels
func (h *PanelHandler) List(c echo.Context) error {
	caller := callerOf(c)
	page, limit := pageParams(c)
	if caller.IsRoot {
		panels, total, err := h.Repos.Panel.FindAll(limit, page, c.QueryParam("q"))
		if err != nil {
			return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list panels", err))
		}
		return successResponse(c, "Successful", paginatedResponse(panels, total, page, limit))
	}

	ids, err := h.Repos.Credential.PanelIDs(caller.ID)
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list panels", err))
	}
	panels, err := h.Repos.Panel.FindByIDs(ids)
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list panels", err))
	}
	return successResponse(c, "Successful", paginatedResponse(panels, int64(len(panels)), 1, len(panels)))
}

// Get returns one panel.
// GET /api/panels/:id
func (h *PanelHandler) Get(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	// Non-root callers only see panels they hold a delegated credential for.
	if caller := callerOf(c); !caller.IsRoot {
		if _, err := h.Repos.Credential.Find(caller.ID, id); err != nil {
			return h.errorResponse(c, lookupError(err, apperr.PanelNotFound, "panel not found"))
		}
	}
	p, err := h.Repos.Panel.FindByID(id)
	if err != nil {
		return h.errorResponse(c, lookupError(err, apperr.PanelNotFound, "panel not found"))
	}
	return successResponse(c, "Successful", p)
}

// Create adds a panel.
// POST /api/panels
func (h *PanelHandler) Create(c echo.Context) error {
	var req panelRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if req.Name == nil || strings.TrimSpace(*req.Name) == "" || req.BaseURL == nil || req.Username == nil || req.Password == nil {
		return h.badRequest(c, "name, base_url, username and password are required")
	}
	base, err := normalizeBaseURL(*req.BaseURL)
	if err != nil {
		return h.errorResponse(c, err)
	}
	typ := ""
	if req.PanelType != nil {
		typ = *req.PanelType
	}
	if typ, err = normalizePanelType(typ); err != nil {
		return h.errorResponse(c, err)
	}

	p := &models.Panel{
		Name:     strings.TrimSpace(*req.Name),
		BaseURL:  base,
		Username: *req.Username,
		Password: *req.Password,
		Type:     typ,
	}
	if req.IsDefault != nil {
		p.IsDefault = *req.IsDefault
	}
	if err := h.Repos.Panel.Create(p); err != nil {
		return h.errorResponse(c, writeError(err, "create panel"))
	}

	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "panel.create", Target: p.Name, Meta: map[string]interface{}{"panel_id": p.ID}})
	return createdResponse(c, "Panel created", p)
}

// Update changes the given panel fields.
// PUT /api/panels/:id
func (h *PanelHandler) Update(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req panelRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return h.badRequest(c, "name cannot be empty")
		}
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.BaseURL != nil {
		base, err := normalizeBaseURL(*req.BaseURL)
		if err != nil {
			return h.errorResponse(c, err)
		}
		updates["base_url"] = base
	}
	if req.Username != nil {
		updates["username"] = *req.Username
	}
	if req.Password != nil && *req.Password != "" {
		updates["password"] = *req.Password
	}
	if req.PanelType != nil {
		typ, err := normalizePanelType(*req.PanelType)
		if err != nil {
			return h.errorResponse(c, err)
		}
		updates["panel_type"] = typ
	}
	if req.IsDefault != nil {
		updates["is_default"] = *req.IsDefault
	}
	if len(updates) == 0 {
		return h.badRequest(c, "nothing to update")
	}

	if err := h.Repos.Panel.Update(id, updates); err != nil {
		return h.errorResponse(c, writeError(err, "update panel"))
	}
	p, err := h.Repos.Panel.FindByID(id)
	if err != nil {
		return h.errorResponse(c, lookupError(err, apperr.PanelNotFound, "panel not found"))
	}

	fields := make([]string, 0, len(updates))
	for k := range updates {
		fields = append(fields, k)
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "panel.update", Target: p.Name, Meta: map[string]interface{}{"panel_id": id, "fields": fields}})
	return successResponse(c, "Panel updated", p)
}

// Delete removes a panel and, through cascades, everything scoped to it.
// DELETE /api/panels/:id
func (h *PanelHandler) Delete(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if err := h.Repos.Panel.Delete(id); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.PanelNotFound, "panel not found"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "panel.delete", Target: "panel", Meta: map[string]interface{}{"panel_id": id}})
	return successResponse(c, "Panel deleted", nil)
}

type testPanelRequest struct {
	PanelID  uint   `json:"panel_id"`
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Test runs a login against a stored panel or the supplied connection data
// and reports what happened.
// POST /api/panels/test
func (h *PanelHandler) Test(c echo.Context) error {
	var req testPanelRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if req.PanelID != 0 {
		p, err := h.Repos.Panel.FindByID(req.PanelID)
		if err != nil {
			return h.errorResponse(c, lookupError(err, apperr.PanelNotFound, "panel not found"))
		}
		if req.BaseURL == "" {
			req.BaseURL = p.BaseURL
		}
		if req.Username == "" {
			req.Username, req.Password = p.Username, p.Password
		}
	}
	base, err := normalizeBaseURL(req.BaseURL)
	if err != nil {
		return h.errorResponse(c, err)
	}

	res := h.Client.TryLogin(c.Request().Context(), base, req.Username, req.Password)
	return successResponse(c, "Panel tested", map[string]interface{}{
		"ok":            res.OK,
		"endpoint":      res.Endpoint,
		"encoding":      res.Encoding,
		"status":        res.Status,
		"info":          res.Info,
		"token_preview": res.TokenPreview(),
	})
}

// Inbounds lists the live inbound catalog of a panel with the caller's
// credentials.
// GET /api/panels/:id/inbounds
func (h *PanelHandler) Inbounds(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	catalog, err := h.Engine.Catalog(c.Request().Context(), callerOf(c), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	tags := make([]string, 0, len(catalog))
	for _, ib := range catalog {
		tags = append(tags, ib.Tag)
	}
	return successResponse(c, "Successful", map[string]interface{}{
		"inbounds":    catalog,
		"by_protocol": panel.GroupByProtocol(catalog, tags),
	})
}

// Selection returns the configured inbound selection of a panel.
// GET /api/panels/:id/selection
func (h *PanelHandler) Selection(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if _, err := h.Repos.Panel.FindByID(id); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.PanelNotFound, "panel not found"))
	}
	rows, err := h.Repos.Selection.ListByPanel(id)
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "load selection", err))
	}
	return successResponse(c, "Successful", rows)
}

type selectionRequest struct {
	Inbounds []struct {
		InboundID  string `json:"inbound_id"`
		InboundTag string `json:"inbound_tag"`
	} `json:"inbounds"`
	Tags []string `json:"tags"`
}

// ReplaceSelection swaps the whole inbound selection of a panel.
// PUT /api/panels/:id/selection
func (h *PanelHandler) ReplaceSelection(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req selectionRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if _, err := h.Repos.Panel.FindByID(id); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.PanelNotFound, "panel not found"))
	}

	seen := map[string]bool{}
	var rows []models.PanelInboundSelection
	add := func(inboundID, tag string) {
		inboundID = strings.TrimSpace(inboundID)
		if inboundID == "" || seen[inboundID] {
			return
		}
		seen[inboundID] = true
		rows = append(rows, models.PanelInboundSelection{InboundID: inboundID, InboundTag: strings.TrimSpace(tag)})
	}
	for _, in := range req.Inbounds {
		add(in.InboundID, in.InboundTag)
	}
	for _, tag := range req.Tags {
		add(tag, "")
	}

	if err := h.Repos.Selection.Replace(id, rows); err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "replace selection", err))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "panel.selection", Target: "panel", Meta: map[string]interface{}{"panel_id": id, "count": len(rows)}})

	saved, _ := h.Repos.Selection.ListByPanel(id)
	return successResponse(c, "Selection saved", saved)
}
