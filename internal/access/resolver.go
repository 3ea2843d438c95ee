package access

import (
	"panelhub/internal/apperr"
	"panelhub/internal/models"
	"panelhub/internal/repository"
)

// Credentials is the login presented to a remote panel.
type Credentials struct {
	Username  string
	Password  string
	Delegated bool
}

// CredentialStore finds delegated operator credentials.
type CredentialStore interface {
	Find(userID, panelID uint) (*models.OperatorPanelCredential, error)
}

// Resolver picks the panel credentials for a caller.
type Resolver struct {
	store CredentialStore
}

func NewResolver(store CredentialStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the panel's own admin login for root callers and the
// caller's delegated login for everyone else. Non-root callers never fall
// back to the panel's admin login.
func (r *Resolver) Resolve(c Caller, p *models.Panel) (Credentials, error) {
	if c.IsRoot {
		return Credentials{Username: p.Username, Password: p.Password}, nil
	}
	if !CanProvision(c) {
		return Credentials{}, apperr.New(apperr.Forbidden, "role may not act on panels")
	}
	cred, err := r.store.Find(c.ID, p.ID)
	if err != nil {
		if repository.IsNotFound(err) {
			return Credentials{}, apperr.New(apperr.CredentialsNotProvisioned, "no delegated panel access; ask an administrator to grant it")
		}
		return Credentials{}, apperr.Wrap(apperr.Internal, "load panel credentials", err)
	}
	return Credentials{Username: cred.Username, Password: cred.Password, Delegated: true}, nil
}
