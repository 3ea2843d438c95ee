package models

import (
	"time"

	"github.com/shopspring/decimal"

	"panelhub/internal/pkg/utils"
)

// PlanCategory groups plans for listing.
type PlanCategory struct {
	ID        uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string `gorm:"column:name;size:120;not null;uniqueIndex:uq_plan_categories_name" json:"name"`
	SortOrder int    `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
}

func (PlanCategory) TableName() string {
	return "plan_categories"
}

// Plan maps to the `plans` table. A nil quota or duration means unlimited;
// the Is*Unlimited flags are authoritative and keep the magnitude nil.
type Plan struct {
	ID                  uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name                string          `gorm:"column:name;size:120;not null" json:"name"`
	DataQuotaMB         *int64          `gorm:"column:data_quota_mb" json:"data_quota_mb"`
	IsDataUnlimited     bool            `gorm:"column:is_data_unlimited;not null;default:false" json:"is_data_unlimited"`
	DurationDays        *int            `gorm:"column:duration_days" json:"duration_days"`
	IsDurationUnlimited bool            `gorm:"column:is_duration_unlimited;not null;default:false" json:"is_duration_unlimited"`
	Price               decimal.Decimal `gorm:"column:price;type:decimal(14,2);not null;default:0" json:"price"`
	CategoryID          *uint           `gorm:"column:category_id;index" json:"category_id,omitempty"`
	SortOrder           int             `gorm:"column:sort_order;not null;default:0" json:"sort_order"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	Category            *PlanCategory   `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL" json:"category,omitempty"`
}

func (Plan) TableName() string {
	return "plans"
}

// DataLimitBytes is the byte quota sent to a panel; 0 means unlimited.
func (p *Plan) DataLimitBytes() int64 {
	if p.IsDataUnlimited || p.DataQuotaMB == nil || *p.DataQuotaMB <= 0 {
		return 0
	}
	return utils.MBToBytes(*p.DataQuotaMB)
}

// ExpireAt returns the absolute unix expiry counted from now, or false when unlimited.
func (p *Plan) ExpireAt(now time.Time) (int64, bool) {
	if p.IsDurationUnlimited || p.DurationDays == nil || *p.DurationDays <= 0 {
		return 0, false
	}
	return now.Unix() + int64(*p.DurationDays)*86400, true
}

// Normalize applies the unlimited flags to the magnitude fields.
func (p *Plan) Normalize() {
	if p.IsDataUnlimited {
		p.DataQuotaMB = nil
	}
	if p.IsDurationUnlimited {
		p.DurationDays = nil
	}
}
