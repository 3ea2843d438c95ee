package wallet

import (
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/dbtest"
	"panelhub/internal/models"
	"panelhub/internal/repository"
)

type fixture struct {
	db      *gorm.DB
	ledger  *Ledger
	wallets *repository.WalletRepository
	prices  *repository.PlanTemplateRepository
}

func newFixture(t *testing.T) *fixture {
	db := dbtest.Open(t)
	wallets := repository.NewWalletRepository(db)
	prices := repository.NewPlanTemplateRepository(db)
	return &fixture{db: db, ledger: NewLedger(wallets, prices, zap.NewNop()), wallets: wallets, prices: prices}
}

func (f *fixture) operator(t *testing.T) *models.User {
	return dbtest.User(t, f.db, "op@example.com", models.RoleOperator)
}

func TestConcurrentChargesNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	ledger, wallets := f.ledger, f.wallets
	u := f.operator(t)
	plan := &models.Plan{ID: 1, Name: "p", Price: decimal.NewFromInt(80)}
	if _, err := wallets.Apply(u.ID, decimal.NewFromInt(100), "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	caller := access.Caller{ID: u.ID, Role: models.RoleOperator}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.ChargeIfNeeded(caller, plan, "create")
		}(i)
	}
	wg.Wait()

	ok, insufficient := 0, 0
	for _, err := range errs {
		switch apperr.KindOf(err) {
		case "":
			ok++
		case apperr.InsufficientFunds:
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("ok=%d insufficient=%d", ok, insufficient)
	}
	w, _ := wallets.Find(u.ID)
	if !w.Balance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("balance = %s", w.Balance)
	}
}

func TestRootIsExempt(t *testing.T) {
	f := newFixture(t)
	ledger, wallets := f.ledger, f.wallets
	u := f.operator(t)
	charge, err := ledger.ChargeIfNeeded(access.Caller{ID: u.ID, Role: models.RoleAdmin, IsRoot: true}, &models.Plan{Price: decimal.NewFromInt(999)}, "create")
	if err != nil || charge.Charged() {
		t.Fatalf("root charge = %+v, %v", charge, err)
	}
	if _, err := wallets.Find(u.ID); !repository.IsNotFound(err) {
		t.Fatalf("root must not get a wallet touched, err = %v", err)
	}
}

func TestFirstChargeCreatesEmptyWallet(t *testing.T) {
	f := newFixture(t)
	ledger, wallets := f.ledger, f.wallets
	u := f.operator(t)
	_, err := ledger.ChargeIfNeeded(access.Caller{ID: u.ID, Role: models.RoleOperator}, &models.Plan{ID: 1, Price: decimal.NewFromInt(5)}, "create")
	if apperr.KindOf(err) != apperr.InsufficientFunds {
		t.Fatalf("err = %v", err)
	}
	w, err := wallets.Find(u.ID)
	if err != nil || !w.Balance.IsZero() {
		t.Fatalf("wallet = %+v, %v", w, err)
	}
	_, total, _ := wallets.Transactions(u.ID, 10, 1)
	if total != 0 {
		t.Fatalf("failed charge wrote %d ledger rows", total)
	}
}

func TestEffectivePriceOverride(t *testing.T) {
	f := newFixture(t)
	ledger, wallets, prices := f.ledger, f.wallets, f.prices
	u := f.operator(t)
	plan := dbtest.Plan(t, f.db, "basic", 100, 30, "10")
	pt := &models.PlanTemplate{Name: "cheap"}
	if err := prices.Save(pt, []models.PlanTemplateItem{{PlanID: plan.ID, Price: decimal.NewFromInt(4)}}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := prices.Assign(u.ID, pt.ID); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := wallets.Apply(u.ID, decimal.NewFromInt(4), "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	charge, err := ledger.ChargeIfNeeded(access.Caller{ID: u.ID, Role: models.RoleOperator}, plan, "create")
	if err != nil || !charge.Amount.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("charge = %+v, %v", charge, err)
	}
}

func TestAdjust(t *testing.T) {
	f := newFixture(t)
	ledger := f.ledger
	u := f.operator(t)
	if _, _, err := ledger.Adjust(u.ID, decimal.Zero, "noop"); apperr.KindOf(err) != apperr.InvalidInput {
		t.Fatalf("zero adjust err = %v", err)
	}
	w, _, err := ledger.Adjust(u.ID, decimal.NewFromInt(30), "top up")
	if err != nil || !w.Balance.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("credit = %+v, %v", w, err)
	}
	if _, _, err := ledger.Adjust(u.ID, decimal.NewFromInt(-31), "too much"); apperr.KindOf(err) != apperr.InsufficientFunds {
		t.Fatalf("overdraw err = %v", err)
	}
}
