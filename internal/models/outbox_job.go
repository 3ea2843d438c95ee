package models

import "time"

// Outbox job kinds.
const (
	OutboxKindPanelAdminCreate = "panel_admin_create"
)

// Outbox job statuses.
const (
	OutboxStatusPending = "pending"
	OutboxStatusRunning = "running"
	OutboxStatusDone    = "done"
	OutboxStatusFailed  = "failed"
)

// OutboxJob is a queued side effect on a remote panel, processed by the cron
// worker with bounded attempts.
type OutboxJob struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Kind          string    `gorm:"column:kind;size:50;not null;index:idx_outbox_kind_status,priority:1" json:"kind"`
	Status        string    `gorm:"column:status;size:30;not null;index:idx_outbox_kind_status,priority:2" json:"status"`
	ExternalRef   string    `gorm:"column:external_ref;size:64;not null;uniqueIndex:uq_outbox_ref" json:"external_ref"`
	PanelID       uint      `gorm:"column:panel_id;not null;index" json:"panel_id"`
	Payload       string    `gorm:"column:payload;type:text" json:"payload"`
	Attempts      int       `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxAttempts   int       `gorm:"column:max_attempts;not null;default:5" json:"max_attempts"`
	LastError     string    `gorm:"column:last_error;type:text" json:"last_error"`
	NextAttemptAt time.Time `gorm:"column:next_attempt_at;index" json:"next_attempt_at"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	Panel         *Panel    `gorm:"foreignKey:PanelID;constraint:OnDelete:CASCADE" json:"-"`
}

func (OutboxJob) TableName() string {
	return "outbox_jobs"
}

// PanelAdminPayload is the payload of a panel_admin_create job.
type PanelAdminPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
	UserID   uint   `json:"user_id"`
}
