package models

import "time"

type AuditLog struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    *uint     `gorm:"column:user_id;index" json:"user_id,omitempty"`
	Action    string    `gorm:"column:action;size:100;not null;index" json:"action"`
	Target    string    `gorm:"column:target;size:255" json:"target"`
	Meta      string    `gorm:"column:meta;type:text" json:"meta"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
