package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's prepaid balance. It is only changed together with a
// WalletTransaction row.
type Wallet struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    uint            `gorm:"column:user_id;not null;uniqueIndex:uq_wallets_user" json:"user_id"`
	Balance   decimal.Decimal `gorm:"column:balance;type:decimal(14,2);not null;default:0" json:"balance"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	User      *User           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Wallet) TableName() string {
	return "wallets"
}

// WalletTransaction is an append-only ledger entry. Amount is signed.
type WalletTransaction struct {
	ID        uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    uint            `gorm:"column:user_id;not null;index:idx_wallet_tx_user_created,priority:1" json:"user_id"`
	Amount    decimal.Decimal `gorm:"column:amount;type:decimal(14,2);not null" json:"amount"`
	Reason    string          `gorm:"column:reason;size:500" json:"reason"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime;index:idx_wallet_tx_user_created,priority:2" json:"created_at"`
	User      *User           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}
