package provision

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/audit"
	"panelhub/internal/models"
	"panelhub/internal/repository"
)

// PanelGrant is delegated access to one panel.
type PanelGrant struct {
	PanelID  uint   `json:"panel_id"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// OperatorRequest onboards a new operator with delegated panel access.
type OperatorRequest struct {
	Name   string       `json:"name"`
	Email  string       `json:"email"`
	Panels []PanelGrant `json:"panels"`
}

// Operators onboards operators. Every delegated credential is committed
// together with an outbox job that creates the matching admin account on
// the panel.
type Operators struct {
	db          *gorm.DB
	maxAttempts int
	audit       *audit.Recorder
	log         *zap.Logger
}

func NewOperators(db *gorm.DB, maxAttempts int, rec *audit.Recorder, log *zap.Logger) *Operators {
	return &Operators{db: db, maxAttempts: maxAttempts, audit: rec, log: log}
}

func (g PanelGrant) validate() error {
	if g.PanelID == 0 || strings.TrimSpace(g.Username) == "" || g.Password == "" {
		return apperr.New(apperr.InvalidInput, "panel_id, username and password are required for every panel grant")
	}
	return nil
}

// grant stores the credential and queues the remote admin creation on tx.
func (o *Operators) grant(tx *gorm.DB, userID uint, g PanelGrant) error {
	if _, err := repository.NewPanelRepository(tx).FindByID(g.PanelID); err != nil {
		if repository.IsNotFound(err) {
			return apperr.New(apperr.PanelNotFound, "panel not found")
		}
		return err
	}
	cred := &models.OperatorPanelCredential{UserID: userID, PanelID: g.PanelID, Username: strings.TrimSpace(g.Username), Password: g.Password}
	if err := repository.NewCredentialRepository(tx).Upsert(cred); err != nil {
		return err
	}
	payload := models.PanelAdminPayload{Username: cred.Username, Password: cred.Password, UserID: userID}
	_, err := repository.NewOutboxRepository(tx).Enqueue(models.OutboxKindPanelAdminCreate, g.PanelID, payload, o.maxAttempts)
	return err
}

func txError(msg string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Wrap(apperr.Conflict, msg+": already exists", err)
	}
	return apperr.Wrap(apperr.Internal, msg, err)
}

// Create adds an operator user, their panel credentials and the outbox jobs
// in one transaction.
func (o *Operators) Create(c access.Caller, req OperatorRequest) (*models.User, error) {
	if err := access.RequireRoot(c); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.New(apperr.InvalidInput, "a valid email is required")
	}
	for _, g := range req.Panels {
		if err := g.validate(); err != nil {
			return nil, err
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = email
	}

	user := &models.User{Name: name, Email: email, Role: models.RoleOperator, IsActive: true}
	err := o.db.Transaction(func(tx *gorm.DB) error {
		if err := repository.NewUserRepository(tx).Create(user); err != nil {
			return err
		}
		for _, g := range req.Panels {
			if err := o.grant(tx, user.ID, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, txError("create operator", err)
	}

	o.log.Info("operator created", zap.Uint("user_id", user.ID), zap.Int("panels", len(req.Panels)))
	o.audit.Record(audit.Event{
		ActorID: c.ID,
		Action:  "operator.create",
		Target:  "user:" + email,
		Meta:    map[string]interface{}{"user_id": user.ID, "panels": len(req.Panels)},
	})
	return user, nil
}

// Grant adds or replaces delegated access to one panel for an existing
// operator.
func (o *Operators) Grant(c access.Caller, userID uint, g PanelGrant) error {
	if err := access.RequireRoot(c); err != nil {
		return err
	}
	if err := g.validate(); err != nil {
		return err
	}
	err := o.db.Transaction(func(tx *gorm.DB) error {
		if _, err := repository.NewUserRepository(tx).FindByID(userID); err != nil {
			if repository.IsNotFound(err) {
				return apperr.New(apperr.NotFound, "user not found")
			}
			return err
		}
		return o.grant(tx, userID, g)
	})
	if err != nil {
		return txError("grant panel access", err)
	}
	o.audit.Record(audit.Event{
		ActorID: c.ID,
		Action:  "operator.grant",
		Target:  userRef(g.PanelID, g.Username),
		Meta:    map[string]interface{}{"user_id": userID},
	})
	return nil
}

// Revoke removes every delegated credential of a user. Panel-side admin
// accounts are left in place.
func (o *Operators) Revoke(c access.Caller, userID uint) (int64, error) {
	if err := access.RequireRoot(c); err != nil {
		return 0, err
	}
	n, err := repository.NewCredentialRepository(o.db).DeleteByUser(userID)
	if err != nil {
		return 0, apperr.Wrap(apperr.Internal, "revoke panel access", err)
	}
	o.audit.Record(audit.Event{
		ActorID: c.ID,
		Action:  "operator.revoke",
		Target:  fmt.Sprintf("user:%d", userID),
		Meta:    map[string]interface{}{"credentials": n},
	})
	return n, nil
}
