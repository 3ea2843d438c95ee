package api

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"panelhub/internal/apperr"
)

type AuditHandler struct {
	*Deps
}

func NewAuditHandler(d *Deps) *AuditHandler {
	return &AuditHandler{Deps: d}
}

// List returns audit entries, newest first, filtered by ?action= and ?user_id=.
// GET /api/audit
func (h *AuditHandler) List(c echo.Context) error {
	page, limit := pageParams(c)
	var userID uint64
	if raw := c.QueryParam("user_id"); raw != "" {
		var err error
		if userID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			return h.badRequest(c, "user_id must be numeric")
		}
	}
	rows, total, err := h.Repos.Audit.FindAll(limit, page, c.QueryParam("action"), uint(userID))
	if err != nil {
		return h.errorResponse(c, apperr.Wrap(apperr.Internal, "list audit log", err))
	}
	return successResponse(c, "Successful", paginatedResponse(rows, total, page, limit))
}
