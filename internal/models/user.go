package models

import "time"

// Caller roles.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// User maps to the `users` table. Tokens are issued elsewhere; this service
// only reads users to resolve the caller.
type User struct {
	ID        uint       `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name      string     `gorm:"column:name;size:120;not null" json:"name"`
	Email     string     `gorm:"column:email;size:255;not null;uniqueIndex:uq_users_email" json:"email"`
	Role      string     `gorm:"column:role;size:50;not null;default:viewer" json:"role"`
	IsActive  bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`
	LastLogin *time.Time `gorm:"column:last_login" json:"last_login,omitempty"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// RootAdminGrant is an explicit root-administrator grant for an admin user.
type RootAdminGrant struct {
	ID     uint  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID uint  `gorm:"column:user_id;not null;uniqueIndex:uq_root_admin_user" json:"user_id"`
	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (RootAdminGrant) TableName() string {
	return "root_admins"
}
