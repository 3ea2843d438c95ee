package access

import (
	"errors"
	"testing"

	"gorm.io/gorm"

	"panelhub/internal/apperr"
	"panelhub/internal/models"
)

type grantSet map[uint]bool

func (g grantSet) HasRootGrant(id uint) (bool, error) { return g[id], nil }

type credStore map[[2]uint]*models.OperatorPanelCredential

func (s credStore) Find(userID, panelID uint) (*models.OperatorPanelCredential, error) {
	if c, ok := s[[2]uint{userID, panelID}]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func TestRootPolicy(t *testing.T) {
	policy := NewRootAdminPolicy([]string{"Root@Example.com"}, grantSet{3: true})

	cases := []struct {
		user *models.User
		want bool
	}{
		{&models.User{ID: 1, Email: "root@example.com", Role: models.RoleAdmin}, true},
		{&models.User{ID: 2, Email: "plain@example.com", Role: models.RoleAdmin}, false},
		{&models.User{ID: 3, Email: "granted@example.com", Role: models.RoleAdmin}, true},
		{&models.User{ID: 4, Email: "root@example.com", Role: models.RoleOperator}, false},
	}
	for _, tc := range cases {
		got, err := policy.IsRoot(tc.user)
		if err != nil {
			t.Fatalf("IsRoot: %v", err)
		}
		if got != tc.want {
			t.Fatalf("IsRoot(%s/%s) = %v, want %v", tc.user.Email, tc.user.Role, got, tc.want)
		}
	}
}

func TestRequireRoot(t *testing.T) {
	if err := RequireRoot(Caller{Role: models.RoleAdmin}); apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("plain admin err = %v", err)
	}
	if err := RequireRoot(Caller{Role: models.RoleAdmin, IsRoot: true}); err != nil {
		t.Fatalf("root err = %v", err)
	}
}

func TestResolverOperatorNeedsDelegation(t *testing.T) {
	panel := &models.Panel{ID: 9, Username: "panel-admin", Password: "panel-pass"}
	r := NewResolver(credStore{{5, 9}: {UserID: 5, PanelID: 9, Username: "op5", Password: "pw"}})

	creds, err := r.Resolve(Caller{ID: 5, Role: models.RoleOperator}, panel)
	if err != nil || creds.Username != "op5" || !creds.Delegated {
		t.Fatalf("delegated = %+v, %v", creds, err)
	}

	_, err = r.Resolve(Caller{ID: 6, Role: models.RoleOperator}, panel)
	if apperr.KindOf(err) != apperr.CredentialsNotProvisioned {
		t.Fatalf("missing delegation err = %v", err)
	}

	_, err = r.Resolve(Caller{ID: 7, Role: models.RoleAdmin}, panel)
	if apperr.KindOf(err) != apperr.CredentialsNotProvisioned {
		t.Fatalf("non-root admin err = %v", err)
	}

	_, err = r.Resolve(Caller{ID: 8, Role: models.RoleViewer}, panel)
	if apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("viewer err = %v", err)
	}

	creds, err = r.Resolve(Caller{ID: 1, Role: models.RoleAdmin, IsRoot: true}, panel)
	if err != nil || creds.Username != "panel-admin" || creds.Delegated {
		t.Fatalf("root = %+v, %v", creds, err)
	}
}

type brokenStore struct{}

func (brokenStore) Find(uint, uint) (*models.OperatorPanelCredential, error) {
	return nil, errors.New("db down")
}

func TestResolverStoreFailureIsInternal(t *testing.T) {
	_, err := NewResolver(brokenStore{}).Resolve(Caller{ID: 1, Role: models.RoleOperator}, &models.Panel{ID: 1})
	if apperr.KindOf(err) != apperr.Internal {
		t.Fatalf("err = %v", err)
	}
}
