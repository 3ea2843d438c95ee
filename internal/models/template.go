package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Template is a named subset of a panel's inbound tags.
type Template struct {
	ID        uint              `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string            `gorm:"column:name;size:120;not null" json:"name"`
	PanelID   uint              `gorm:"column:panel_id;not null;index" json:"panel_id"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	Inbounds  []TemplateInbound `gorm:"foreignKey:TemplateID" json:"inbounds"`
	Panel     *Panel            `gorm:"foreignKey:PanelID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Template) TableName() string {
	return "templates"
}

// Tags returns the inbound tags pinned by the template.
func (t *Template) Tags() []string {
	out := make([]string, 0, len(t.Inbounds))
	for _, ib := range t.Inbounds {
		out = append(out, ib.InboundTag)
	}
	return out
}

type TemplateInbound struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	TemplateID uint      `gorm:"column:template_id;not null;uniqueIndex:uq_template_inbound,priority:1" json:"template_id"`
	InboundTag string    `gorm:"column:inbound_tag;size:255;not null;uniqueIndex:uq_template_inbound,priority:2" json:"inbound_tag"`
	Template   *Template `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"-"`
}

func (TemplateInbound) TableName() string {
	return "template_inbounds"
}

// UserTemplate assigns at most one template to a user.
type UserTemplate struct {
	ID         uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID     uint      `gorm:"column:user_id;not null;uniqueIndex:uq_user_template" json:"user_id"`
	TemplateID uint      `gorm:"column:template_id;not null;index" json:"template_id"`
	User       *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Template   *Template `gorm:"foreignKey:TemplateID;constraint:OnDelete:CASCADE" json:"-"`
}

func (UserTemplate) TableName() string {
	return "user_templates"
}

// PlanTemplate is a named price list overriding plan prices for assigned users.
type PlanTemplate struct {
	ID        uint               `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string             `gorm:"column:name;size:120;not null;uniqueIndex:uq_plan_templates_name" json:"name"`
	CreatedAt time.Time          `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	Items     []PlanTemplateItem `gorm:"foreignKey:PlanTemplateID" json:"items"`
}

func (PlanTemplate) TableName() string {
	return "plan_templates"
}

type PlanTemplateItem struct {
	ID             uint            `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PlanTemplateID uint            `gorm:"column:plan_template_id;not null;uniqueIndex:uq_plan_template_item,priority:1" json:"plan_template_id"`
	PlanID         uint            `gorm:"column:plan_id;not null;uniqueIndex:uq_plan_template_item,priority:2" json:"plan_id"`
	Price          decimal.Decimal `gorm:"column:price;type:decimal(14,2);not null" json:"price"`
	PlanTemplate   *PlanTemplate   `gorm:"foreignKey:PlanTemplateID;constraint:OnDelete:CASCADE" json:"-"`
	Plan           *Plan           `gorm:"foreignKey:PlanID;constraint:OnDelete:CASCADE" json:"-"`
}

func (PlanTemplateItem) TableName() string {
	return "plan_template_items"
}

type UserPlanTemplate struct {
	ID             uint          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID         uint          `gorm:"column:user_id;not null;uniqueIndex:uq_user_plan_template" json:"user_id"`
	PlanTemplateID uint          `gorm:"column:plan_template_id;not null;index" json:"plan_template_id"`
	User           *User         `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	PlanTemplate   *PlanTemplate `gorm:"foreignKey:PlanTemplateID;constraint:OnDelete:CASCADE" json:"-"`
}

func (UserPlanTemplate) TableName() string {
	return "user_plan_templates"
}
