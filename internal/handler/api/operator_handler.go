package api

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"panelhub/internal/apperr"
	"panelhub/internal/audit"
	"panelhub/internal/models"
	"panelhub/internal/provision"
)

// OperatorHandler covers operator onboarding, user roles and the outbox.
type OperatorHandler struct {
	*Deps
}

func NewOperatorHandler(d *Deps) *OperatorHandler {
	return &OperatorHandler{Deps: d}
}

// Create onboards an operator with delegated panel credentials.
// POST /api/operators
func (h *OperatorHandler) Create(c echo.Context) error {
	var req provision.OperatorRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	user, err := h.Operators.Create(callerOf(c), req)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return createdResponse(c, "Operator created", user)
}

// Grant adds or replaces panel access for an existing operator.
// POST /api/operators/:user_id/panels
func (h *OperatorHandler) Grant(c echo.Context) error {
	id, err := idParam(c, "user_id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var g provision.PanelGrant
	if err := bind(c, &g); err != nil {
		return h.errorResponse(c, err)
	}
	if err := h.Operators.Grant(callerOf(c), id, g); err != nil {
		return h.errorResponse(c, err)
	}
	return successResponse(c, "Panel access granted", nil)
}

// Revoke drops every delegated credential of an operator.
// DELETE /api/operators/:user_id/panels
func (h *OperatorHandler) Revoke(c echo.Context) error {
	id, err := idParam(c, "user_id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	n, err := h.Operators.Revoke(callerOf(c), id)
	if err != nil {
		return h.errorResponse(c, err)
	}
	return successResponse(c, fmt.Sprintf("%d credential(s) revoked", n), map[string]int64{"revoked": n})
}

// Credentials lists the panels delegated to an operator. Passwords are
// never serialized.
// GET /api/operators/:user_id/panels
func (h *OperatorHandler) Credentials(c echo.Context) error {
	id, err := idParam(c, "user_id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	creds, err := h.Repos.Credential.ListByUser(id)
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list credentials", err))
	}
	return successResponse(c, "Successful", creds)
}

// Users lists users with ?q= and ?role= filters.
// GET /api/users
func (h *OperatorHandler) Users(c echo.Context) error {
	page, limit := pageParams(c)
	users, total, err := h.Repos.User.FindAll(limit, page, c.QueryParam("q"), c.QueryParam("role"))
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list users", err))
	}
	return successResponse(c, "Successful", paginatedResponse(users, total, page, limit))
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

// SetActive enables or disables login for a user.
// PUT /api/users/:user_id/active
func (h *OperatorHandler) SetActive(c echo.Context) error {
	id, err := idParam(c, "user_id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	var req activeRequest
	if err := bind(c, &req); err != nil {
		return h.errorResponse(c, err)
	}
	if req.IsActive == nil {
		return h.badRequest(c, "is_active is required")
	}
	caller := callerOf(c)
	if id == caller.ID && !*req.IsActive {
		return h.badRequest(c, "cannot deactivate yourself")
	}
	if _, err := h.Repos.User.FindByID(id); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.NotFound, "user not found"))
	}
	if err := h.Repos.User.Update(id, map[string]interface{}{"is_active": *req.IsActive}); err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "update user", err))
	}
	h.Audit.Record(audit.Event{ActorID: caller.ID, Action: "user.active", Target: fmt.Sprintf("user:%d", id), Meta: map[string]interface{}{"is_active": *req.IsActive}})
	return successResponse(c, "User updated", nil)
}

// GrantRoot gives an admin user an explicit root grant.
// POST /api/users/:user_id/root
func (h *OperatorHandler) GrantRoot(c echo.Context) error {
	id, err := idParam(c, "user_id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	user, err := h.Repos.User.FindByID(id)
	if err != nil {
		return h.errorResponse(c, lookupError(err, apperr.NotFound, "user not found"))
	}
	if user.Role != models.RoleAdmin {
		return h.badRequest(c, "only admin users can hold a root grant")
	}
	if err := h.Repos.User.GrantRoot(id); err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "grant root", err))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "root.grant", Target: fmt.Sprintf("user:%d", id)})
	return successResponse(c, "Root granted", nil)
}

// RevokeRoot removes an explicit root grant. Allow-listed e-mails stay root.
// DELETE /api/users/:user_id/root
func (h *OperatorHandler) RevokeRoot(c echo.Context) error {
	id, err := idParam(c, "user_id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if id == callerOf(c).ID {
		return h.badRequest(c, "cannot revoke your own root grant")
	}
	if err := h.Repos.User.RevokeRoot(id); err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "revoke root", err))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "root.revoke", Target: fmt.Sprintf("user:%d", id)})
	return successResponse(c, "Root revoked", nil)
}

// Outbox lists background jobs, optionally by ?status=.
// GET /api/outbox
func (h *OperatorHandler) Outbox(c echo.Context) error {
	page, limit := pageParams(c)
	status := c.QueryParam("status")
	switch status {
	case "", models.OutboxStatusPending, models.OutboxStatusRunning, models.OutboxStatusDone, models.OutboxStatusFailed:
	default:
		return h.badRequest(c, "unknown status filter")
	}
	jobs, total, err := h.Repos.Outbox.FindAll(limit, page, status)
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list outbox", err))
	}
	return successResponse(c, "Successful", paginatedResponse(jobs, total, page, limit))
}

// RetryJob puts a failed job back in the queue.
// POST /api/outbox/:id/retry
func (h *OperatorHandler) RetryJob(c echo.Context) error {
	id, err := idParam(c, "id")
	if err != nil {
		return h.errorResponse(c, err)
	}
	if err := h.Repos.Outbox.Retry(id); err != nil {
		return h.errorResponse(c, lookupError(err, apperr.NotFound, "no failed job with that id"))
	}
	h.Audit.Record(audit.Event{ActorID: callerOf(c).ID, Action: "outbox.retry", Target: fmt.Sprintf("job:%d", id)})
	return successResponse(c, "Job requeued", nil)
}
