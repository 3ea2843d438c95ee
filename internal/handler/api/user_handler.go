package api

import (
	"github.com/labstack/echo/v4"

	"panelhub/internal/apperr"
	"panelhub/internal/provision"
)

// UserHandler exposes the remote user lifecycle on a panel.
type UserHandler struct {
	*Deps
}

func NewUserHandler(d *Deps) *UserHandler {
	return &UserHandler{Deps: d}
}

// Create provisions a user from a plan.
// POST /api/panels/:id/users
func (h *UserHandler) Create(c echo.Context) error {
	panelID, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req provision.CreateRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if req.PlanID == 0 {
		return h.badRequest(c, "plan_id is required")
	}
	req.PanelID = panelID

	res, err := h.Engine.Create(c.Request().Context(), callerOf(c), req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return createdResponse(c, "User created", res)
}

// Extend resets quota and expiry from a plan or explicit limits.
// POST /api/panels/:id/users/:username/extend
func (h *UserHandler) Extend(c echo.Context) error {
	panelID, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req provision.ExtendRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	req.PanelID, req.Username = panelID, c.Param("username")

	res, err := h.Engine.Extend(c.Request().Context(), callerOf(c), req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return successResponse(c, "User extended", res)
}

// SetStatus enables or disables a user.
// PATCH /api/panels/:id/users/:username/status
func (h *UserHandler) SetStatus(c echo.Context) error {
	panelID, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}

	username := c.Param("username")
	if err := h.Engine.SetStatus(c.Request().Context(), callerOf(c), panelID, username, req.Status); err != nil {
		return h.errorResponse(c, err)
	}
	return successResponse(c, "Status updated", map[string]string{"username": username, "status": req.Status})
}

// Delete removes a user from the panel.
// DELETE /api/panels/:id/users/:username
func (h *UserHandler) Delete(c echo.Context) error {
	panelID, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if err := h.Engine.Delete(c.Request().Context(), callerOf(c), panelID, c.Param("username")); err != nil {
		return h.errorResponse(c, err)
	}
	return successResponse(c, "User deleted", nil)
}

// Info reads a user with usage.
// GET /api/panels/:id/users/:username
func (h *UserHandler) Info(c echo.Context) error {
	panelID, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	info, err := h.Engine.Info(c.Request().Context(), callerOf(c), panelID, c.Param("username"))
	if err != nil {
		return h.errorResponse(c, err)
	}
	return successResponse(c, "Successful", info)
}

// List returns the local mirror of users created on a panel. Root callers
// see every row, others only their own.
// GET /api/panels/:id/users
func (h *UserHandler) List(c echo.Context) error {
	panelID, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	caller := callerOf(c)
	var createdBy uint
	if !caller.IsRoot {
		createdBy = caller.ID
		if caller.ID == 0 {
			return h.errorResponse(c, apperr.New(apperr.Unauthorized, "authentication required"))
		}
	}
	page, limit := pageParams(c)
	rows, total, err := h.Repos.CreatedUser.List(panelID, createdBy, limit, page)
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list created users", err))
	}
	return successResponse(c, "Successful", paginatedResponse(rows, total, page, limit))
}
