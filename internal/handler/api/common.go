package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/audit"
	"panelhub/internal/middleware"
	"panelhub/internal/models"
	"panelhub/internal/panel"
	"panelhub/internal/provision"
	"panelhub/internal/repository"
	"panelhub/internal/wallet"
)

// Repos bundles all repositories needed by API handlers.
type Repos struct {
	User         *repository.UserRepository
	Panel        *repository.PanelRepository
	Selection    *repository.SelectionRepository
	Credential   *repository.CredentialRepository
	Plan         *repository.PlanRepository
	Template     *repository.TemplateRepository
	PlanTemplate *repository.PlanTemplateRepository
	CreatedUser  *repository.CreatedUserRepository
	Outbox       *repository.OutboxRepository
	Audit        *repository.AuditRepository
}

// NewRepos builds every repository on db.
func NewRepos(db *gorm.DB) *Repos {
	return &Repos{
		User:         repository.NewUserRepository(db),
		Panel:        repository.NewPanelRepository(db),
		Selection:    repository.NewSelectionRepository(db),
		Credential:   repository.NewCredentialRepository(db),
		Plan:         repository.NewPlanRepository(db),
		Template:     repository.NewTemplateRepository(db),
		PlanTemplate: repository.NewPlanTemplateRepository(db),
		CreatedUser:  repository.NewCreatedUserRepository(db),
		Outbox:       repository.NewOutboxRepository(db),
		Audit:        repository.NewAuditRepository(db),
	}
}

// Deps are shared by every handler.
type Deps struct {
	Repos     *Repos
	Engine    *provision.Engine
	Operators *provision.Operators
	Ledger    *wallet.Ledger
	Client    *panel.Client
	Audit     *audit.Recorder
	Logger    *zap.Logger
	// ExposeErrors adds internal error text to responses.
	ExposeErrors bool
}

func successResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusOK, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

func createdResponse(c echo.Context, msg string, obj interface{}) error {
	return c.JSON(http.StatusCreated, models.APIResponse{
		Status: true,
		Msg:    msg,
		Obj:    obj,
	})
}

// errorResponse renders err with the status of its kind. Remote status, body
// and metadata travel in obj; wrapped error text only when exposed.
func (d *Deps) errorResponse(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	resp := models.APIResponse{Status: false, Msg: "internal error", Kind: string(kind)}

	e, ok := apperr.As(err)
	if ok {
		resp.Msg = e.Message
		obj := map[string]interface{}{}
		if e.RemoteStatus != 0 {
			obj["remote_status"] = e.RemoteStatus
			obj["remote_body"] = e.RemoteBody
		}
		for k, v := range e.Meta {
			obj[k] = v
		}
		if len(obj) > 0 {
			resp.Obj = obj
		}
		if d.ExposeErrors && e.Err != nil {
			resp.Detail = e.Err.Error()
		}
	} else if d.ExposeErrors {
		resp.Detail = err.Error()
	}

	middleware.SetErrorKind(c, kind)
	if kind == apperr.Internal {
		d.Logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(apperr.HTTPStatus(kind), resp)
}

func (d *Deps) badRequest(c echo.Context, msg string) error {
	return d.errorResponse(c, apperr.New(apperr.InvalidInput, msg))
}

// lookupError classifies a repository error for a missing row of kind.
func lookupError(err error, kind apperr.Kind, msg string) error {
	if repository.IsNotFound(err) {
		return apperr.New(kind, msg)
	}
	return apperr.Wrap(apperr.Internal, msg, err)
}

func paginatedResponse(data interface{}, total int64, page, limit int) models.PaginatedResponse {
	return models.PaginatedResponse{
		Data:     data,
		Total:    total,
		Page:     page,
		PageSize: limit,
	}
}

// pageParams reads ?page= and ?limit= with defaults 1 and 50, capped at 200.
func pageParams(c echo.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.QueryParam("page"))
	limit, _ = strconv.Atoi(c.QueryParam("limit"))
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	return page, limit
}

// idParam parses a positive numeric path parameter.
func idParam(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.InvalidInput, name+" must be a positive integer")
	}
	return uint(id), nil
}

func callerOf(c echo.Context) access.Caller {
	caller, _ := access.FromContext(c.Request().Context())
	return caller
}

func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Wrap(apperr.InvalidInput, "invalid request body", err)
	}
	return nil
}
