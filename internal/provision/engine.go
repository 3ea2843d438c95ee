// Package provision drives the lifecycle of end-user accounts on remote
// panels: create, extend, status changes, deletion and read-only info.
package provision

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/audit"
	"panelhub/internal/models"
	"panelhub/internal/panel"
	"panelhub/internal/pkg/utils"
	"panelhub/internal/repository"
	"panelhub/internal/wallet"
)

// Deps are the collaborators of an Engine.
type Deps struct {
	Panels     *repository.PanelRepository
	Plans      *repository.PlanRepository
	Selections *repository.SelectionRepository
	Templates  *repository.TemplateRepository
	Mirrors    *repository.CreatedUserRepository
	Resolver   *access.Resolver
	Client     *panel.Client
	Ledger     *wallet.Ledger
	Audit      *audit.Recorder
	Logger     *zap.Logger
}

// Engine provisions users on remote panels on behalf of callers.
type Engine struct {
	Deps
	now func() time.Time
}

func NewEngine(d Deps) *Engine {
	return &Engine{Deps: d, now: time.Now}
}

// CreateRequest asks for a new remote user provisioned from a plan.
type CreateRequest struct {
	PanelID  uint   `json:"panel_id"`
	Username string `json:"username"`
	PlanID   uint   `json:"plan_id"`
}

// CreateResult describes a created remote user.
type CreateResult struct {
	Username        string              `json:"username"`
	SubscriptionURL string              `json:"subscription_url,omitempty"`
	DataLimit       int64               `json:"data_limit"`
	Expire          *int64              `json:"expire"`
	Inbounds        map[string][]string `json:"inbounds"`
	Charged         decimal.Decimal     `json:"charged"`
}

// target bundles the loaded panel and an authenticated session.
type target struct {
	panel   *models.Panel
	session *panel.Session
}

func (e *Engine) loadPanel(id uint) (*models.Panel, error) {
	p, err := e.Panels.FindByID(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.New(apperr.PanelNotFound, "panel not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "load panel", err)
	}
	return p, nil
}

func (e *Engine) loadPlan(id uint) (*models.Plan, error) {
	p, err := e.Plans.FindByID(id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.New(apperr.PlanNotFound, "plan not found")
		}
		return nil, apperr.Wrap(apperr.Internal, "load plan", err)
	}
	return p, nil
}

// connect resolves the caller's credentials for p and logs in.
func (e *Engine) connect(ctx context.Context, c access.Caller, p *models.Panel) (*target, error) {
	creds, err := e.Resolver.Resolve(c, p)
	if err != nil {
		return nil, err
	}
	sess, err := e.Client.Open(ctx, p, creds.Username, creds.Password)
	if err != nil {
		return nil, err
	}
	return &target{panel: p, session: sess}, nil
}

func (e *Engine) open(ctx context.Context, c access.Caller, panelID uint) (*target, error) {
	p, err := e.loadPanel(panelID)
	if err != nil {
		return nil, err
	}
	return e.connect(ctx, c, p)
}

// userTemplate returns the caller's template when it is scoped to panelID.
func (e *Engine) userTemplate(userID, panelID uint) (*models.Template, error) {
	tpl, err := e.Templates.FindForUser(userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.Internal, "load template", err)
	}
	if tpl.PanelID != panelID {
		return nil, nil
	}
	return tpl, nil
}

// allowedTags is the caller's template for the panel when one applies,
// otherwise the panel's inbound selection.
func (e *Engine) allowedTags(c access.Caller, panelID uint) ([]string, error) {
	tpl, err := e.userTemplate(c.ID, panelID)
	if err != nil {
		return nil, err
	}
	if tpl != nil {
		if tags := tpl.Tags(); len(tags) > 0 {
			return tags, nil
		}
	}
	tags, err := e.Selections.Tags(panelID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load inbound selection", err)
	}
	return tags, nil
}

func (e *Engine) inboundsFor(ctx context.Context, t *target, tags []string) (map[string][]string, error) {
	catalog, err := t.session.ListInbounds(ctx)
	if err != nil {
		return nil, err
	}
	groups := panel.GroupByProtocol(catalog, tags)
	if len(groups) == 0 {
		return nil, apperr.New(apperr.PanelNotConfigured, "none of the configured inbounds exist on the panel")
	}
	return groups, nil
}

// checkUsername accepts a new username only as given; names that would need
// cleaning are refused, never rewritten.
func checkUsername(name string) (string, error) {
	if !utils.ValidUsername(name) {
		return "", apperr.New(apperr.InvalidInput, "username must be 3-32 characters of letters, digits, '_' or '-'")
	}
	return name, nil
}

// existingUsername names a user that already lives on the panel. It is sent
// exactly as the caller wrote it.
func existingUsername(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", apperr.New(apperr.InvalidInput, "username is required")
	}
	return name, nil
}

// Create provisions a new remote user. A chargeable plan is debited before
// the remote call and not refunded if that call fails; the error then
// carries charged_amount.
func (e *Engine) Create(ctx context.Context, c access.Caller, req CreateRequest) (*CreateResult, error) {
	username, err := checkUsername(req.Username)
	if err != nil {
		return nil, err
	}
	plan, err := e.loadPlan(req.PlanID)
	if err != nil {
		return nil, err
	}
	p, err := e.loadPanel(req.PanelID)
	if err != nil {
		return nil, err
	}

	tags, err := e.allowedTags(c, p.ID)
	if err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, apperr.New(apperr.PanelNotConfigured, "panel has no inbound selection configured")
	}

	t, err := e.connect(ctx, c, p)
	if err != nil {
		return nil, err
	}
	groups, err := e.inboundsFor(ctx, t, tags)
	if err != nil {
		return nil, err
	}

	charge, err := e.Ledger.ChargeIfNeeded(c, plan, wallet.ChargeReason("create", username, plan))
	if err != nil {
		return nil, err
	}

	spec := panel.UserSpec{
		Username:  username,
		Status:    "active",
		DataLimit: plan.DataLimitBytes(),
		Inbounds:  groups,
	}
	if exp, ok := plan.ExpireAt(e.now()); ok {
		spec.Expire = &exp
	}

	remote, err := t.session.CreateUser(ctx, spec)
	if err != nil {
		e.Logger.Warn("remote user creation failed",
			zap.Uint("panel_id", p.ID),
			zap.String("username", username),
			zap.Bool("charged", charge.Charged()),
			zap.Error(err),
		)
		if charge.Charged() {
			e.Audit.Record(audit.Event{
				ActorID: c.ID,
				Action:  "user.create_failed",
				Target:  userRef(p.ID, username),
				Meta:    map[string]interface{}{"charged_amount": charge.Amount.StringFixed(2), "tx_id": charge.TransactionID},
			})
			return nil, withCharge(err, charge)
		}
		return nil, err
	}

	raw := remote.SubscriptionURL
	if raw == "" {
		if fetched, gerr := t.session.GetUser(ctx, username); gerr == nil {
			raw = fetched.SubscriptionURL
		} else {
			e.Logger.Warn("subscription lookup failed", zap.String("username", username), zap.Error(gerr))
		}
	}
	subURL := panel.Canonicalize(p.BaseURL, raw)

	e.mirror(&models.PanelCreatedUser{PanelID: p.ID, Username: username, SubscriptionURL: subURL, CreatedBy: actorRef(c)})

	e.Audit.Record(audit.Event{
		ActorID: c.ID,
		Action:  "user.create",
		Target:  userRef(p.ID, username),
		Meta: map[string]interface{}{
			"plan_id": plan.ID,
			"charged": charge.Amount.StringFixed(2),
		},
	})

	return &CreateResult{
		Username:        username,
		SubscriptionURL: subURL,
		DataLimit:       spec.DataLimit,
		Expire:          spec.Expire,
		Inbounds:        groups,
		Charged:         charge.Amount,
	}, nil
}

func withCharge(err error, charge wallet.Charge) error {
	e, ok := apperr.As(err)
	if !ok {
		e = apperr.Wrap(apperr.RemoteRejected, "remote user creation failed", err)
	}
	return e.With("charged_amount", charge.Amount.StringFixed(2)).
		With("charge_tx_id", charge.TransactionID)
}

// mirror upserts the local copy of a created user. Failures never fail the
// operation; constraint misses log at warn, anything else at error.
func (e *Engine) mirror(row *models.PanelCreatedUser) {
	err := e.Mirrors.Upsert(row)
	if err == nil {
		return
	}
	fields := []zap.Field{zap.Uint("panel_id", row.PanelID), zap.String("username", row.Username), zap.Error(err)}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		e.Logger.Warn("created-user mirror skipped", fields...)
		return
	}
	e.Logger.Error("created-user mirror write failed", fields...)
}

func actorRef(c access.Caller) *uint {
	if c.ID == 0 {
		return nil
	}
	id := c.ID
	return &id
}
