package provision

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/models"
	"panelhub/internal/repository"
)

func TestOperatorOnboardingQueuesPanelAdmins(t *testing.T) {
	f := newFixture(t)
	ops := NewOperators(f.db, 3, nil, zap.NewNop())

	user, err := ops.Create(f.root, OperatorRequest{
		Email:  "New.Op@Example.com",
		Panels: []PanelGrant{{PanelID: f.panel.ID, Username: "newop", Password: "pw"}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if user.Role != models.RoleOperator || user.Email != "new.op@example.com" {
		t.Fatalf("user = %+v", user)
	}

	cred, err := repository.NewCredentialRepository(f.db).Find(user.ID, f.panel.ID)
	if err != nil || cred.Username != "newop" {
		t.Fatalf("credential = %+v, %v", cred, err)
	}

	jobs, total, err := repository.NewOutboxRepository(f.db).FindAll(10, 1, models.OutboxStatusPending)
	if err != nil || total != 1 {
		t.Fatalf("jobs = %d, %v", total, err)
	}
	var payload models.PanelAdminPayload
	if err := json.Unmarshal([]byte(jobs[0].Payload), &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Username != "newop" || payload.UserID != user.ID || jobs[0].MaxAttempts != 3 {
		t.Fatalf("job = %+v payload = %+v", jobs[0], payload)
	}
}

func TestOperatorOnboardingIsAtomic(t *testing.T) {
	f := newFixture(t)
	ops := NewOperators(f.db, 3, nil, zap.NewNop())

	_, err := ops.Create(f.root, OperatorRequest{
		Email: "ghost@example.com",
		Panels: []PanelGrant{
			{PanelID: f.panel.ID, Username: "ghost", Password: "pw"},
			{PanelID: 999, Username: "ghost", Password: "pw"},
		},
	})
	if apperr.KindOf(err) != apperr.PanelNotFound {
		t.Fatalf("err = %v", err)
	}
	if _, err := repository.NewUserRepository(f.db).FindByEmail("ghost@example.com"); !repository.IsNotFound(err) {
		t.Fatalf("user survived rollback: %v", err)
	}
	if _, total, _ := repository.NewOutboxRepository(f.db).FindAll(10, 1, ""); total != 0 {
		t.Fatalf("jobs survived rollback: %d", total)
	}
}

func TestOperatorManagementIsRootOnly(t *testing.T) {
	f := newFixture(t)
	ops := NewOperators(f.db, 3, nil, zap.NewNop())
	admin := access.Caller{ID: f.root.ID, Role: models.RoleAdmin}

	if _, err := ops.Create(admin, OperatorRequest{Email: "x@example.com"}); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("create err = %v", err)
	}
	if _, err := ops.Revoke(admin, 1); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("revoke err = %v", err)
	}
}

func TestRevokeRemovesCredentials(t *testing.T) {
	f := newFixture(t)
	op := f.operator(t, 0)
	ops := NewOperators(f.db, 3, nil, zap.NewNop())

	n, err := ops.Revoke(f.root, op.ID)
	if err != nil || n != 1 {
		t.Fatalf("Revoke = %d, %v", n, err)
	}
	if _, err := repository.NewCredentialRepository(f.db).Find(op.ID, f.panel.ID); !repository.IsNotFound(err) {
		t.Fatalf("credential still present: %v", err)
	}
}
