// Package access decides who may act as a root administrator and which
// panel credentials a caller presents.
package access

import (
	"context"
	"strings"

	"panelhub/internal/apperr"
	"panelhub/internal/models"
)

// Caller is the authenticated identity behind a request. IsRoot is resolved
// once per request by a RootAdminPolicy.
type Caller struct {
	ID     uint
	Email  string
	Role   string
	IsRoot bool
}

// GrantLookup answers whether a user holds an explicit root grant.
type GrantLookup interface {
	HasRootGrant(userID uint) (bool, error)
}

// RootAdminPolicy combines a configured e-mail allow-list with grant rows.
type RootAdminPolicy struct {
	emails map[string]bool
	grants GrantLookup
}

func NewRootAdminPolicy(allowList []string, grants GrantLookup) *RootAdminPolicy {
	emails := make(map[string]bool, len(allowList))
	for _, e := range allowList {
		emails[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &RootAdminPolicy{emails: emails, grants: grants}
}

// IsRoot reports whether u is a root administrator. Only the admin role can
// be root; the allow-list is checked before the grant table.
func (p *RootAdminPolicy) IsRoot(u *models.User) (bool, error) {
	if u == nil || u.Role != models.RoleAdmin {
		return false, nil
	}
	if p.emails[strings.ToLower(u.Email)] {
		return true, nil
	}
	if p.grants == nil {
		return false, nil
	}
	return p.grants.HasRootGrant(u.ID)
}

// Resolve builds the Caller for u.
func (p *RootAdminPolicy) Resolve(u *models.User) (Caller, error) {
	root, err := p.IsRoot(u)
	if err != nil {
		return Caller{}, err
	}
	return Caller{ID: u.ID, Email: u.Email, Role: u.Role, IsRoot: root}, nil
}

// RequireRoot fails with Forbidden unless the caller is root.
func RequireRoot(c Caller) error {
	if !c.IsRoot {
		return apperr.New(apperr.Forbidden, "root administrator required")
	}
	return nil
}

// CanProvision reports whether a role may provision panel users at all.
func CanProvision(c Caller) bool {
	return c.IsRoot || c.Role == models.RoleOperator || c.Role == models.RoleAdmin
}

type callerKey struct{}

// WithCaller stores the caller in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// FromContext returns the caller stored in ctx.
func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
