package provision

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/audit"
	"panelhub/internal/models"
	"panelhub/internal/panel"
	"panelhub/internal/wallet"
)

func userRef(panelID uint, username string) string {
	return fmt.Sprintf("panel:%d/%s", panelID, username)
}

// ExtendRequest resets a user's quota and expiry. Either PlanID or the
// explicit overrides must be set; overrides win over the plan and are
// root only. A zero DataLimitMB or Days override means unlimited.
type ExtendRequest struct {
	PanelID     uint   `json:"panel_id"`
	Username    string `json:"username"`
	PlanID      *uint  `json:"plan_id,omitempty"`
	DataLimitMB *int64 `json:"data_limit_mb,omitempty"`
	Days        *int   `json:"days,omitempty"`
}

func (r ExtendRequest) overrides() bool {
	return r.DataLimitMB != nil || r.Days != nil
}

// ExtendResult reports the values applied to the remote user.
type ExtendResult struct {
	Username   string          `json:"username"`
	DataLimit  int64           `json:"data_limit"`
	Expire     *int64          `json:"expire"`
	UsageReset bool            `json:"usage_reset"`
	Charged    decimal.Decimal `json:"charged"`
}

// Extend resets the remote quota and expiry counted from now, then resets
// traffic counters best-effort.
func (e *Engine) Extend(ctx context.Context, c access.Caller, req ExtendRequest) (*ExtendResult, error) {
	username, err := existingUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if req.PlanID == nil && !req.overrides() {
		return nil, apperr.New(apperr.InvalidInput, "plan_id or explicit limits are required")
	}
	if req.overrides() && !c.IsRoot {
		return nil, apperr.New(apperr.Forbidden, "explicit limits require a root administrator")
	}

	var plan *models.Plan
	if req.PlanID != nil {
		if plan, err = e.loadPlan(*req.PlanID); err != nil {
			return nil, err
		}
	} else {
		plan = &models.Plan{IsDataUnlimited: true, IsDurationUnlimited: true}
	}
	if req.DataLimitMB != nil {
		plan.DataQuotaMB, plan.IsDataUnlimited = req.DataLimitMB, *req.DataLimitMB <= 0
	}
	if req.Days != nil {
		plan.DurationDays, plan.IsDurationUnlimited = req.Days, *req.Days <= 0
	}

	t, err := e.open(ctx, c, req.PanelID)
	if err != nil {
		return nil, err
	}

	spec := panel.UserSpec{Username: username, Status: "active", DataLimit: plan.DataLimitBytes()}
	if exp, ok := plan.ExpireAt(e.now()); ok {
		spec.Expire = &exp
	}
	tpl, err := e.userTemplate(c.ID, t.panel.ID)
	if err != nil {
		return nil, err
	}
	if tpl != nil && len(tpl.Tags()) > 0 {
		if spec.Inbounds, err = e.inboundsFor(ctx, t, tpl.Tags()); err != nil {
			return nil, err
		}
	}

	var charge wallet.Charge
	if req.PlanID != nil {
		if charge, err = e.Ledger.ChargeIfNeeded(c, plan, wallet.ChargeReason("extend", username, plan)); err != nil {
			return nil, err
		}
	}

	if _, err := t.session.ModifyUser(ctx, username, spec.UpdateBody()); err != nil {
		if charge.Charged() {
			return nil, withCharge(err, charge)
		}
		return nil, err
	}
	reset := t.session.ResetUsage(ctx, username)

	meta := map[string]interface{}{"data_limit": spec.DataLimit, "usage_reset": reset}
	if plan.ID != 0 {
		meta["plan_id"] = plan.ID
	}
	if spec.Expire != nil {
		meta["expire"] = *spec.Expire
	}
	if charge.Charged() {
		meta["charged"] = charge.Amount.StringFixed(2)
	}
	e.Audit.Record(audit.Event{ActorID: c.ID, Action: "user.extend", Target: userRef(t.panel.ID, username), Meta: meta})

	return &ExtendResult{Username: username, DataLimit: spec.DataLimit, Expire: spec.Expire, UsageReset: reset, Charged: charge.Amount}, nil
}

// User statuses accepted by SetStatus.
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// SetStatus enables or disables a remote user.
func (e *Engine) SetStatus(ctx context.Context, c access.Caller, panelID uint, username, status string) error {
	if status != StatusActive && status != StatusDisabled {
		return apperr.New(apperr.InvalidInput, "status must be active or disabled")
	}
	if _, err := existingUsername(username); err != nil {
		return err
	}
	t, err := e.open(ctx, c, panelID)
	if err != nil {
		return err
	}
	if err := t.session.SetStatus(ctx, username, status); err != nil {
		return err
	}
	e.Audit.Record(audit.Event{
		ActorID: c.ID,
		Action:  "user.status",
		Target:  userRef(panelID, username),
		Meta:    map[string]interface{}{"status": status},
	})
	return nil
}

// Delete removes a remote user and, best-effort, its local mirror.
func (e *Engine) Delete(ctx context.Context, c access.Caller, panelID uint, username string) error {
	if _, err := existingUsername(username); err != nil {
		return err
	}
	t, err := e.open(ctx, c, panelID)
	if err != nil {
		return err
	}
	if err := t.session.DeleteUser(ctx, username); err != nil {
		return err
	}
	if _, err := e.Mirrors.Delete(panelID, username); err != nil {
		e.Logger.Error("created-user mirror delete failed", zap.Uint("panel_id", panelID), zap.String("username", username), zap.Error(err))
	}
	e.Audit.Record(audit.Event{ActorID: c.ID, Action: "user.delete", Target: userRef(panelID, username)})
	return nil
}

// Info is a read-only snapshot of a remote user.
type Info struct {
	Username        string                 `json:"username"`
	Status          string                 `json:"status"`
	DataLimit       *int64                 `json:"data_limit"`
	Used            *int64                 `json:"used_traffic"`
	Remaining       *int64                 `json:"remaining"`
	Expire          *int64                 `json:"expire"`
	ExpiresIn       *int64                 `json:"expires_in"`
	SubscriptionURL string                 `json:"subscription_url,omitempty"`
	Usage           map[string]interface{} `json:"usage,omitempty"`
}

// Info reads the user and its usage sub-resource.
func (e *Engine) Info(ctx context.Context, c access.Caller, panelID uint, username string) (*Info, error) {
	if _, err := existingUsername(username); err != nil {
		return nil, err
	}
	t, err := e.open(ctx, c, panelID)
	if err != nil {
		return nil, err
	}
	u, err := t.session.GetUser(ctx, username)
	if err != nil {
		return nil, err
	}

	info := &Info{
		Username:        u.Username,
		Status:          u.Status,
		DataLimit:       u.DataLimit,
		Used:            u.UsedTraffic,
		Expire:          u.Expire,
		SubscriptionURL: panel.Canonicalize(t.panel.BaseURL, u.SubscriptionURL),
	}
	if used, raw, ok := t.session.Usage(ctx, username); ok {
		info.Used = &used
		info.Usage = raw
	}
	fillDerived(info, e.now().Unix())
	return info, nil
}

// fillDerived computes remaining quota for finite limits and seconds until
// expiry, both clamped at zero.
func fillDerived(info *Info, now int64) {
	if info.DataLimit != nil && *info.DataLimit > 0 && info.Used != nil {
		remaining := *info.DataLimit - *info.Used
		if remaining < 0 {
			remaining = 0
		}
		info.Remaining = &remaining
	}
	if info.Expire != nil {
		in := *info.Expire - now
		if in < 0 {
			in = 0
		}
		info.ExpiresIn = &in
	}
}

// Catalog lists the inbounds the panel offers, using the caller's panel
// credentials.
func (e *Engine) Catalog(ctx context.Context, c access.Caller, panelID uint) ([]panel.Inbound, error) {
	t, err := e.open(ctx, c, panelID)
	if err != nil {
		return nil, err
	}
	return t.session.ListInbounds(ctx)
}
