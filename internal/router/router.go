package router

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"panelhub/internal/access"
	"panelhub/internal/handler/api"
	"panelhub/internal/middleware"
)

// Options carries what the route table needs besides the handler deps.
type Options struct {
	JWTSecret string
	Policy    *access.RootAdminPolicy
	Keys      middleware.KeyStore
	Logger    *zap.Logger
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, deps *api.Deps, opts Options) {
	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(opts.Logger))
	e.Use(middleware.CORS())

	panels := api.NewPanelHandler(deps)
	users := api.NewUserHandler(deps)
	plans := api.NewPlanHandler(deps)
	templates := api.NewTemplateHandler(deps)
	wallets := api.NewWalletHandler(deps)
	operators := api.NewOperatorHandler(deps)
	audits := api.NewAuditHandler(deps)

	g := e.Group("/api")
	g.Use(middleware.JWTAuth(opts.JWTSecret, deps.Repos.User, opts.Policy, opts.Logger))
	root := middleware.RootOnly()

	// Panels: read for everyone with access, write for root.
	g.GET("/panels", panels.List)
	g.GET("/panels/:id", panels.Get)
	g.GET("/panels/:id/inbounds", panels.Inbounds)
	g.POST("/panels", panels.Create, root)
	g.POST("/panels/test", panels.Test, root)
	g.PUT("/panels/:id", panels.Update, root)
	g.DELETE("/panels/:id", panels.Delete, root)
	g.GET("/panels/:id/selection", panels.Selection, root)
	g.PUT("/panels/:id/selection", panels.ReplaceSelection, root)

	// Remote users
	g.GET("/panels/:id/users", users.List)
	g.POST("/panels/:id/users", users.Create, middleware.Idempotency(opts.Keys))
	g.GET("/panels/:id/users/:username", users.Info)
	g.POST("/panels/:id/users/:username/extend", users.Extend, middleware.Idempotency(opts.Keys))
	g.PATCH("/panels/:id/users/:username/status", users.SetStatus)
	g.DELETE("/panels/:id/users/:username", users.Delete)

	// Plans
	g.GET("/plans", plans.List)
	g.POST("/plans", plans.Create, root)
	g.PUT("/plans/:id", plans.Update, root)
	g.DELETE("/plans/:id", plans.Delete, root)
	g.GET("/plan-categories", plans.Categories)
	g.POST("/plan-categories", plans.CreateCategory, root)
	g.PUT("/plan-categories/:id", plans.UpdateCategory, root)
	g.DELETE("/plan-categories/:id", plans.DeleteCategory, root)

	// Templates
	g.GET("/templates/mine", templates.Mine)
	g.GET("/templates", templates.List, root)
	g.POST("/templates", templates.Create, root)
	g.PUT("/templates/:id", templates.Update, root)
	g.DELETE("/templates/:id", templates.Delete, root)
	g.POST("/templates/assign", templates.Assign, root)
	g.GET("/plan-templates", templates.ListPlanTemplates, root)
	g.POST("/plan-templates", templates.SavePlanTemplate, root)
	g.PUT("/plan-templates/:id", templates.SavePlanTemplate, root)
	g.DELETE("/plan-templates/:id", templates.DeletePlanTemplate, root)
	g.POST("/plan-templates/assign", templates.AssignPlanTemplate, root)

	// Wallets
	g.GET("/wallet", wallets.Mine)
	g.GET("/wallet/transactions", wallets.MyTransactions)
	g.GET("/wallets/:user_id", wallets.Get, root)
	g.GET("/wallets/:user_id/transactions", wallets.Transactions, root)
	g.POST("/wallets/:user_id/adjust", wallets.Adjust, root, middleware.Idempotency(opts.Keys))

	// Operators, users and background jobs
	g.POST("/operators", operators.Create, root)
	g.GET("/operators/:user_id/panels", operators.Credentials, root)
	g.POST("/operators/:user_id/panels", operators.Grant, root)
	g.DELETE("/operators/:user_id/panels", operators.Revoke, root)
	g.GET("/users", operators.Users, root)
	g.PUT("/users/:user_id/active", operators.SetActive, root)
	g.POST("/users/:user_id/root", operators.GrantRoot, root)
	g.DELETE("/users/:user_id/root", operators.RevokeRoot, root)
	g.GET("/outbox", operators.Outbox, root)
	g.POST("/outbox/:id/retry", operators.RetryJob, root)
	g.GET("/audit", audits.List, root)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
