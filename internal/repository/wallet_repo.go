package repository

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"panelhub/internal/models"
)

// ErrInsufficientBalance is returned when a debit would overdraw a wallet.
var ErrInsufficientBalance = errors.New("insufficient balance")

// WalletRepository owns wallet balances and their ledger.
type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Ensure creates a zero-balance wallet for the user if none exists.
func (r *WalletRepository) Ensure(userID uint) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&models.Wallet{UserID: userID, Balance: decimal.Zero}).Error
}

// Find returns the wallet of a user.
func (r *WalletRepository) Find(userID uint) (*models.Wallet, error) {
	var w models.Wallet
	if err := r.db.Where("user_id = ?", userID).First(&w).Error; err != nil {
		return nil, err
	}
	return &w, nil
}

// Apply changes the balance by amount and appends the ledger row in the same
// transaction. Debits use a single conditional UPDATE so two concurrent
// debits can never both pass the balance check.
func (r *WalletRepository) Apply(userID uint, amount decimal.Decimal, reason string) (*models.WalletTransaction, error) {
	if err := r.Ensure(userID); err != nil {
		return nil, err
	}

	entry := &models.WalletTransaction{UserID: userID, Amount: amount, Reason: reason}
	err := r.db.Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Wallet{}).Where("user_id = ?", userID)
		if amount.IsNegative() {
			q = q.Where("balance >= ?", amount.Neg())
		}
		res := q.Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_at": time.Now(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrInsufficientBalance
		}
		return tx.Create(entry).Error
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Transactions returns a user's ledger, newest first.
func (r *WalletRepository) Transactions(userID uint, limit, page int) ([]models.WalletTransaction, int64, error) {
	var rows []models.WalletTransaction
	var total int64

	db := r.db.Model(&models.WalletTransaction{}).Where("user_id = ?", userID)
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := paginate(db, limit, page).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
