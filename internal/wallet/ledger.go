package wallet

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"panelhub/internal/access"
	"panelhub/internal/apperr"
	"panelhub/internal/models"
	"panelhub/internal/repository"
)

var charges = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "panelhub_wallet_charges_total",
	Help: "Provisioning charges by outcome.",
}, []string{"result"})

// Charge describes a debit taken for a provisioning action.
type Charge struct {
	Amount        decimal.Decimal
	TransactionID uint
}

// Charged reports whether money was actually taken.
func (c Charge) Charged() bool {
	return c.TransactionID != 0
}

// Ledger enforces prepaid balances for chargeable actions.
type Ledger struct {
	wallets *repository.WalletRepository
	prices  *repository.PlanTemplateRepository
	log     *zap.Logger
}

func NewLedger(wallets *repository.WalletRepository, prices *repository.PlanTemplateRepository, log *zap.Logger) *Ledger {
	return &Ledger{wallets: wallets, prices: prices, log: log}
}

// EffectivePrice is the plan price after the user's price-list override.
func (l *Ledger) EffectivePrice(userID uint, plan *models.Plan) (decimal.Decimal, error) {
	overrides, err := l.prices.PriceOverrides(userID)
	if err != nil {
		return decimal.Zero, err
	}
	if p, ok := overrides[plan.ID]; ok {
		return p, nil
	}
	return plan.Price, nil
}

// ChargeIfNeeded debits the plan's effective price from a non-root caller.
// The debit and its ledger row are committed before returning, so callers
// must invoke it before any remote mutation.
func (l *Ledger) ChargeIfNeeded(c access.Caller, plan *models.Plan, reason string) (Charge, error) {
	if c.IsRoot {
		charges.WithLabelValues("exempt").Inc()
		return Charge{}, nil
	}

	price, err := l.EffectivePrice(c.ID, plan)
	if err != nil {
		return Charge{}, apperr.Wrap(apperr.Internal, "resolve plan price", err)
	}
	if !price.IsPositive() {
		if err := l.wallets.Ensure(c.ID); err != nil {
			return Charge{}, apperr.Wrap(apperr.Internal, "open wallet", err)
		}
		charges.WithLabelValues("free").Inc()
		return Charge{Amount: decimal.Zero}, nil
	}

	entry, err := l.wallets.Apply(c.ID, price.Neg(), reason)
	if errors.Is(err, repository.ErrInsufficientBalance) {
		charges.WithLabelValues("insufficient").Inc()
		return Charge{}, apperr.New(apperr.InsufficientFunds, "insufficient wallet balance").
			With("required", price.StringFixed(2))
	}
	if err != nil {
		charges.WithLabelValues("error").Inc()
		l.log.Error("wallet debit failed", zap.Uint("user_id", c.ID), zap.Uint("plan_id", plan.ID), zap.Error(err))
		return Charge{}, apperr.Wrap(apperr.Internal, "wallet debit failed", err)
	}

	charges.WithLabelValues("charged").Inc()
	l.log.Info("wallet charged",
		zap.Uint("user_id", c.ID),
		zap.Uint("plan_id", plan.ID),
		zap.String("amount", price.StringFixed(2)),
		zap.Uint("tx_id", entry.ID),
	)
	return Charge{Amount: price, TransactionID: entry.ID}, nil
}

// Adjust credits (positive) or debits (negative) a wallet with a ledger row.
func (l *Ledger) Adjust(userID uint, amount decimal.Decimal, reason string) (*models.Wallet, *models.WalletTransaction, error) {
	if amount.IsZero() {
		return nil, nil, apperr.New(apperr.InvalidInput, "amount must be non-zero")
	}
	entry, err := l.wallets.Apply(userID, amount, reason)
	if errors.Is(err, repository.ErrInsufficientBalance) {
		return nil, nil, apperr.New(apperr.InsufficientFunds, "adjustment would make the balance negative")
	}
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, "wallet adjust failed", err)
	}
	w, err := l.wallets.Find(userID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, "reload wallet", err)
	}
	return w, entry, nil
}

// Balance returns the wallet of a user, creating an empty one on first use.
func (l *Ledger) Balance(userID uint) (*models.Wallet, error) {
	if err := l.wallets.Ensure(userID); err != nil {
		return nil, apperr.Wrap(apperr.Internal, "open wallet", err)
	}
	w, err := l.wallets.Find(userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "load wallet", err)
	}
	return w, nil
}

// History returns the ledger of a user, newest first.
func (l *Ledger) History(userID uint, limit, page int) ([]models.WalletTransaction, int64, error) {
	rows, total, err := l.wallets.Transactions(userID, limit, page)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.Internal, "load wallet history", err)
	}
	return rows, total, nil
}

// ChargeReason is the ledger text for a provisioning debit.
func ChargeReason(action, username string, plan *models.Plan) string {
	return fmt.Sprintf("%s %s (plan %d: %s)", action, username, plan.ID, plan.Name)
}
