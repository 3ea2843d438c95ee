package models

import "time"

// Panel types understood by the panel broker.
const (
	PanelTypeMarzban    = "marzban"
	PanelTypePasarGuard = "pasarguard"
)

// Panel maps to the `panels` table: a remote proxy panel and its root admin login.
type Panel struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:name;size:120;not null;uniqueIndex:uq_panels_name" json:"name"`
	BaseURL   string    `gorm:"column:base_url;size:512;not null" json:"base_url"`
	Username  string    `gorm:"column:username;size:255;not null" json:"username"`
	Password  string    `gorm:"column:password;size:255;not null" json:"-"`
	Type      string    `gorm:"column:panel_type;size:50;not null;default:marzban" json:"panel_type"`
	IsDefault bool      `gorm:"column:is_default;not null;default:false" json:"is_default"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Panel) TableName() string {
	return "panels"
}

// PanelInboundSelection is one inbound an operator may assign new users to on a panel.
// The set for a panel is replaced wholesale, never patched.
type PanelInboundSelection struct {
	ID         uint   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PanelID    uint   `gorm:"column:panel_id;not null;index;uniqueIndex:uq_panel_inbound,priority:1" json:"panel_id"`
	InboundID  string `gorm:"column:inbound_id;size:255;not null;uniqueIndex:uq_panel_inbound,priority:2" json:"inbound_id"`
	InboundTag string `gorm:"column:inbound_tag;size:255" json:"inbound_tag,omitempty"`
	Panel      *Panel `gorm:"foreignKey:PanelID;constraint:OnDelete:CASCADE" json:"-"`
}

func (PanelInboundSelection) TableName() string {
	return "panel_inbounds"
}

// Tag returns the remote inbound tag, falling back to the inbound id.
func (s PanelInboundSelection) Tag() string {
	if s.InboundTag != "" {
		return s.InboundTag
	}
	return s.InboundID
}

// OperatorPanelCredential is a delegated panel login used by an operator
// instead of the panel's root admin credentials.
type OperatorPanelCredential struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    uint      `gorm:"column:user_id;not null;index;uniqueIndex:uq_user_panel_cred,priority:1" json:"user_id"`
	PanelID   uint      `gorm:"column:panel_id;not null;index;uniqueIndex:uq_user_panel_cred,priority:2" json:"panel_id"`
	Username  string    `gorm:"column:username;size:255;not null" json:"username"`
	Password  string    `gorm:"column:password;size:255;not null" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Panel     *Panel    `gorm:"foreignKey:PanelID;constraint:OnDelete:CASCADE" json:"-"`
}

func (OperatorPanelCredential) TableName() string {
	return "user_panel_credentials"
}

// PanelCreatedUser is the local, non-authoritative mirror of an account
// provisioned on a remote panel.
type PanelCreatedUser struct {
	ID              uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PanelID         uint      `gorm:"column:panel_id;not null;index;uniqueIndex:uq_panel_user,priority:1" json:"panel_id"`
	Username        string    `gorm:"column:username;size:255;not null;uniqueIndex:uq_panel_user,priority:2" json:"username"`
	SubscriptionURL string    `gorm:"column:subscription_url;size:1024" json:"subscription_url,omitempty"`
	CreatedBy       *uint     `gorm:"column:created_by;index" json:"created_by,omitempty"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	Panel           *Panel    `gorm:"foreignKey:PanelID;constraint:OnDelete:CASCADE" json:"-"`
	Creator         *User     `gorm:"foreignKey:CreatedBy;constraint:OnDelete:SET NULL" json:"-"`
}

func (PanelCreatedUser) TableName() string {
	return "panel_created_users"
}
