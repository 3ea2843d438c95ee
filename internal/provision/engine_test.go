package provision

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/dbtest"
	"panelhub/internal/models"
	"panelhub/internal/panel"
	"panelhub/internal/panel/paneltest"
	"panelhub/internal/repository"
	"panelhub/internal/wallet"
)

type fixture struct {
	db     *gorm.DB
	fake   *paneltest.Server
	panel  *models.Panel
	engine *Engine
	root   access.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	fake := paneltest.New()
	t.Cleanup(fake.Close)

	log := zap.NewNop()
	engine := NewEngine(Deps{
		Panels:     repository.NewPanelRepository(db),
		Plans:      repository.NewPlanRepository(db),
		Selections: repository.NewSelectionRepository(db),
		Templates:  repository.NewTemplateRepository(db),
		Mirrors:    repository.NewCreatedUserRepository(db),
		Resolver:   access.NewResolver(repository.NewCredentialRepository(db)),
		Client:     panel.NewClient(panel.Options{Logger: log}),
		Ledger:     wallet.NewLedger(repository.NewWalletRepository(db), repository.NewPlanTemplateRepository(db), log),
		Logger:     log,
	})
	engine.now = func() time.Time { return time.Unix(1700000000, 0) }

	admin := dbtest.User(t, db, "root@example.com", models.RoleAdmin)
	return &fixture{
		db:     db,
		fake:   fake,
		panel:  dbtest.Panel(t, db, "main", fake.URL),
		engine: engine,
		root:   access.Caller{ID: admin.ID, Email: admin.Email, Role: admin.Role, IsRoot: true},
	}
}

func (f *fixture) selectTags(t *testing.T, tags ...string) {
	t.Helper()
	rows := make([]models.PanelInboundSelection, 0, len(tags))
	for _, tag := range tags {
		rows = append(rows, models.PanelInboundSelection{InboundID: tag})
	}
	if err := repository.NewSelectionRepository(f.db).Replace(f.panel.ID, rows); err != nil {
		t.Fatalf("Replace: %v", err)
	}
}

// operator creates an operator holding the fake panel's credentials and the
// given wallet balance.
func (f *fixture) operator(t *testing.T, balance int64) access.Caller {
	t.Helper()
	u := dbtest.User(t, f.db, "op@example.com", models.RoleOperator)
	cred := &models.OperatorPanelCredential{UserID: u.ID, PanelID: f.panel.ID, Username: "admin", Password: "secret"}
	if err := repository.NewCredentialRepository(f.db).Upsert(cred); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if balance > 0 {
		if _, err := repository.NewWalletRepository(f.db).Apply(u.ID, decimal.NewFromInt(balance), "seed"); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return access.Caller{ID: u.ID, Email: u.Email, Role: u.Role}
}

func (f *fixture) balance(t *testing.T, userID uint) string {
	t.Helper()
	w, err := repository.NewWalletRepository(f.db).Find(userID)
	if err != nil {
		t.Fatalf("Find wallet: %v", err)
	}
	return w.Balance.StringFixed(2)
}

func TestCreateWithoutSelectionFailsBeforeNetwork(t *testing.T) {
	f := newFixture(t)
	plan := dbtest.Plan(t, f.db, "basic", 1024, 30, "0")

	_, err := f.engine.Create(context.Background(), f.root, CreateRequest{PanelID: f.panel.ID, Username: "alice", PlanID: plan.ID})
	if apperr.KindOf(err) != apperr.PanelNotConfigured {
		t.Fatalf("err = %v", err)
	}
	if f.fake.Hits() != 0 {
		t.Fatalf("panel received %d requests", f.fake.Hits())
	}
}

func TestCreateRequiresDelegatedCredentials(t *testing.T) {
	f := newFixture(t)
	f.selectTags(t, "VLESS TCP")
	plan := dbtest.Plan(t, f.db, "basic", 1024, 30, "0")
	u := dbtest.User(t, f.db, "nocred@example.com", models.RoleOperator)

	_, err := f.engine.Create(context.Background(), access.Caller{ID: u.ID, Role: u.Role},
		CreateRequest{PanelID: f.panel.ID, Username: "alice", PlanID: plan.ID})
	if apperr.KindOf(err) != apperr.CredentialsNotProvisioned {
		t.Fatalf("err = %v", err)
	}
	if f.fake.Hits() != 0 {
		t.Fatal("operator without credentials must not reach the panel")
	}
}

func TestCreateUnknownPlanAndPanel(t *testing.T) {
	f := newFixture(t)
	plan := dbtest.Plan(t, f.db, "basic", 1024, 30, "0")

	_, err := f.engine.Create(context.Background(), f.root, CreateRequest{PanelID: f.panel.ID, Username: "alice", PlanID: 999})
	if apperr.KindOf(err) != apperr.PlanNotFound {
		t.Fatalf("plan err = %v", err)
	}
	_, err = f.engine.Create(context.Background(), f.root, CreateRequest{PanelID: 999, Username: "alice", PlanID: plan.ID})
	if apperr.KindOf(err) != apperr.PanelNotFound {
		t.Fatalf("panel err = %v", err)
	}
	_, err = f.engine.Create(context.Background(), f.root, CreateRequest{PanelID: f.panel.ID, Username: "a", PlanID: plan.ID})
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("username err = %v", err)
	}
}

func TestCreateMirrorsCanonicalSubscription(t *testing.T) {
	f := newFixture(t)
	f.selectTags(t, "VLESS TCP")
	plan := dbtest.Plan(t, f.db, "basic", 1024, 30, "0")

	res, err := f.engine.Create(context.Background(), f.root, CreateRequest{PanelID: f.panel.ID, Username: "alice", PlanID: plan.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := f.fake.URL + "/sub/alice-token"
	if res.SubscriptionURL != want {
		t.Fatalf("subscription = %q, want %q", res.SubscriptionURL, want)
	}
	if res.Expire == nil || *res.Expire != 1700000000+30*86400 {
		t.Fatalf("expire = %v", res.Expire)
	}
	if len(res.Inbounds) != 1 || res.Inbounds["vless"][0] != "VLESS TCP" {
		t.Fatalf("inbounds = %v", res.Inbounds)
	}

	remote, ok := f.fake.User("alice")
	if !ok {
		t.Fatal("user not created on panel")
	}
	if remote["data_limit"].(float64) != 1024*1024*1024 {
		t.Fatalf("data_limit = %v", remote["data_limit"])
	}

	row, err := repository.NewCreatedUserRepository(f.db).Find(f.panel.ID, "alice")
	if err != nil {
		t.Fatalf("mirror: %v", err)
	}
	if row.SubscriptionURL != want || row.CreatedBy == nil || *row.CreatedBy != f.root.ID {
		t.Fatalf("mirror row = %+v", row)
	}
}

func TestCreateUnlimitedPlanSendsZeroQuotaAndNoExpire(t *testing.T) {
	f := newFixture(t)
	f.selectTags(t, "VLESS TCP", "VMess WS")
	plan := dbtest.Plan(t, f.db, "forever", 0, 0, "0")

	res, err := f.engine.Create(context.Background(), f.root, CreateRequest{PanelID: f.panel.ID, Username: "bob", PlanID: plan.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.DataLimit != 0 || res.Expire != nil {
		t.Fatalf("result = %+v", res)
	}
	remote, _ := f.fake.User("bob")
	if remote["data_limit"].(float64) != 0 {
		t.Fatalf("data_limit = %v", remote["data_limit"])
	}
	if _, has := remote["expire"]; has {
		t.Fatal("unlimited plan must not send expire")
	}
}

func TestCreateUsesTemplateOverSelection(t *testing.T) {
	f := newFixture(t)
	f.selectTags(t, "VLESS TCP")
	plan := dbtest.Plan(t, f.db, "basic", 1024, 30, "0")
	templates := repository.NewTemplateRepository(f.db)
	tpl := &models.Template{Name: "vmess only", PanelID: f.panel.ID}
	if err := templates.Create(tpl, []string{"VMess WS"}); err != nil {
		t.Fatalf("template: %v", err)
	}
	if err := templates.Assign(f.root.ID, tpl.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	res, err := f.engine.Create(context.Background(), f.root, CreateRequest{PanelID: f.panel.ID, Username: "carol", PlanID: plan.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, ok := res.Inbounds["vmess"]; !ok || len(res.Inbounds) != 1 {
		t.Fatalf("inbounds = %v", res.Inbounds)
	}
}

func TestCreateSelectionMissingOnPanel(t *testing.T) {
	f := newFixture(t)
	f.selectTags(t, "gone")
	plan := dbtest.Plan(t, f.db, "basic", 1024, 30, "0")

	_, err := f.engine.Create(context.Background(), f.root, CreateRequest{PanelID: f.panel.ID, Username: "dave", PlanID: plan.ID})
	if apperr.KindOf(err) != apperr.PanelNotConfigured {
		t.Fatalf("err = %v", err)
	}
	if f.fake.Calls(http.MethodPost, "/api/user") != 0 {
		t.Fatal("no user should be posted")
	}
}

func TestOperatorIsChargedBeforeCreate(t *testing.T) {
	f := newFixture(t)
	f.selectTags(t, "VLESS TCP")
	plan := dbtest.Plan(t, f.db, "paid", 1024, 30, "10")
	op := f.operator(t, 15)

	res, err := f.engine.Create(context.Background(), op, CreateRequest{PanelID: f.panel.ID, Username: "erin", PlanID: plan.ID})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if res.Charged.StringFixed(2) != "10.00" || f.balance(t, op.ID) != "5.00" {
		t.Fatalf("charged %s, balance %s", res.Charged.StringFixed(2), f.balance(t, op.ID))
	}

	_, err = f.engine.Create(context.Background(), op, CreateRequest{PanelID: f.panel.ID, Username: "frank", PlanID: plan.ID})
	if apperr.KindOf(err) != apperr.InsufficientFunds {
		t.Fatalf("err = %v", err)
	}
	if f.fake.Calls(http.MethodPost, "/api/user") != 1 {
		t.Fatal("an unpaid create must not reach the panel")
	}
}

func TestChargeIsKeptWhenRemoteCreateFails(t *testing.T) {
	f := newFixture(t)
	f.selectTags(t, "VLESS TCP")
	plan := dbtest.Plan(t, f.db, "paid", 1024, 30, "10")
	op := f.operator(t, 10)
	f.fake.Handle(http.MethodPost, "/api/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"detail":"User already exists"}`))
	})

	_, err := f.engine.Create(context.Background(), op, CreateRequest{PanelID: f.panel.ID, Username: "gina", PlanID: plan.ID})
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.Conflict {
		t.Fatalf("err = %v", err)
	}
	if e.Meta["charged_amount"] != "10.00" {
		t.Fatalf("meta = %v", e.Meta)
	}
	if f.balance(t, op.ID) != "0.00" {
		t.Fatal("debit is not refunded automatically")
	}
}

func TestExtendResetsLimits(t *testing.T) {
	f := newFixture(t)
	f.fake.AddUser(map[string]interface{}{"username": "henry", "status": "limited", "data_limit": 1, "used_traffic": 99})
	mb, days := int64(2048), 7

	res, err := f.engine.Extend(context.Background(), f.root, ExtendRequest{PanelID: f.panel.ID, Username: "henry", DataLimitMB: &mb, Days: &days})
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if !res.UsageReset || res.DataLimit != 2048*1024*1024 {
		t.Fatalf("result = %+v", res)
	}
	remote, _ := f.fake.User("henry")
	if remote["status"] != "active" || remote["expire"].(float64) != float64(1700000000+7*86400) {
		t.Fatalf("remote = %v", remote)
	}
	if fmt.Sprint(remote["used_traffic"]) != "0" {
		t.Fatalf("usage not reset: %v", remote["used_traffic"])
	}
}

func TestExtendOverridesAreRootOnly(t *testing.T) {
	f := newFixture(t)
	op := f.operator(t, 0)
	mb := int64(1)

	_, err := f.engine.Extend(context.Background(), op, ExtendRequest{PanelID: f.panel.ID, Username: "henry", DataLimitMB: &mb})
	if apperr.KindOf(err) != apperr.Forbidden {
		t.Fatalf("err = %v", err)
	}
	_, err = f.engine.Extend(context.Background(), op, ExtendRequest{PanelID: f.panel.ID, Username: "henry"})
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("err = %v", err)
	}
}

func TestSetStatusAndDelete(t *testing.T) {
	f := newFixture(t)
	f.fake.AddUser(map[string]interface{}{"username": "ivy", "status": "active"})
	mirrors := repository.NewCreatedUserRepository(f.db)
	if err := mirrors.Upsert(&models.PanelCreatedUser{PanelID: f.panel.ID, Username: "ivy"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	ctx := context.Background()

	if err := f.engine.SetStatus(ctx, f.root, f.panel.ID, "ivy", "paused"); apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("bad status err = %v", err)
	}
	if err := f.engine.SetStatus(ctx, f.root, f.panel.ID, "ivy", StatusDisabled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if remote, _ := f.fake.User("ivy"); remote["status"] != StatusDisabled {
		t.Fatalf("status = %v", remote["status"])
	}

	if err := f.engine.Delete(ctx, f.root, f.panel.ID, "ivy"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := mirrors.Find(f.panel.ID, "ivy"); !repository.IsNotFound(err) {
		t.Fatalf("mirror still present: %v", err)
	}
	if err := f.engine.Delete(ctx, f.root, f.panel.ID, "ivy"); apperr.KindOf(err) != apperr.NotFound {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestInfoDerivesRemainingAndExpiry(t *testing.T) {
	f := newFixture(t)
	f.fake.AddUser(map[string]interface{}{
		"username":         "jack",
		"status":           "active",
		"data_limit":       1000,
		"used_traffic":     400,
		"expire":           1700003600,
		"subscription_url": "http://10.0.0.5:8000/sub/jack-token",
	})

	info, err := f.engine.Info(context.Background(), f.root, f.panel.ID, "jack")
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Remaining == nil || *info.Remaining != 600 {
		t.Fatalf("remaining = %v", info.Remaining)
	}
	if info.ExpiresIn == nil || *info.ExpiresIn != 3600 {
		t.Fatalf("expires_in = %v", info.ExpiresIn)
	}
	if info.SubscriptionURL != f.fake.URL+"/sub/jack-token" {
		t.Fatalf("subscription = %q", info.SubscriptionURL)
	}
}

func TestFillDerivedClampsAndSkipsUnlimited(t *testing.T) {
	limit, used, expire := int64(100), int64(150), int64(10)
	info := &Info{DataLimit: &limit, Used: &used, Expire: &expire}
	fillDerived(info, 20)
	if *info.Remaining != 0 || *info.ExpiresIn != 0 {
		t.Fatalf("remaining %d expires_in %d", *info.Remaining, *info.ExpiresIn)
	}

	zero := int64(0)
	unlimited := &Info{DataLimit: &zero, Used: &used}
	fillDerived(unlimited, 20)
	if unlimited.Remaining != nil || unlimited.ExpiresIn != nil {
		t.Fatal("unlimited quota and missing expiry have no derived values")
	}
}

func TestCreateRefusesNamesThatNeedCleaning(t *testing.T) {
	f := newFixture(t)
	f.selectTags(t, "VLESS TCP")
	plan := dbtest.Plan(t, f.db, "basic", 1024, 30, "0")

	for _, name := range []string{"bob.smith@x", "john.doe", " alice ", "al ice"} {
		_, err := f.engine.Create(context.Background(), f.root, CreateRequest{PanelID: f.panel.ID, Username: name, PlanID: plan.ID})
		if apperr.KindOf(err) != apperr.InvalidInput {
			t.Fatalf("Create(%q) err = %v", name, err)
		}
	}
	if f.fake.Hits() != 0 {
		t.Fatalf("panel received %d requests", f.fake.Hits())
	}
	if _, ok := f.fake.User("bobsmithx"); ok {
		t.Fatal("cleaned name was created")
	}
}

func TestExtendTargetsTheNamedUserOnly(t *testing.T) {
	f := newFixture(t)
	f.fake.AddUser(map[string]interface{}{"username": "john.doe", "status": "active", "data_limit": 1})
	f.fake.AddUser(map[string]interface{}{"username": "johndoe", "status": "active", "data_limit": 1})
	mb := int64(10)

	res, err := f.engine.Extend(context.Background(), f.root, ExtendRequest{PanelID: f.panel.ID, Username: "john.doe", DataLimitMB: &mb})
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if res.Username != "john.doe" {
		t.Fatalf("extended %q", res.Username)
	}
	dotted, _ := f.fake.User("john.doe")
	plain, _ := f.fake.User("johndoe")
	if got, _ := dotted["data_limit"].(float64); got != 10*1024*1024 {
		t.Fatalf("john.doe data_limit = %v", dotted["data_limit"])
	}
	if fmt.Sprint(plain["data_limit"]) != "1" {
		t.Fatalf("johndoe was touched: data_limit = %v", plain["data_limit"])
	}

	_, err = f.engine.Extend(context.Background(), f.root, ExtendRequest{PanelID: f.panel.ID, Username: " ", DataLimitMB: &mb})
	if apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("blank name err = %v", err)
	}
}
