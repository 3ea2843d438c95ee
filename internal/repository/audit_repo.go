package repository

import (
	"time"

	"gorm.io/gorm"

	"panelhub/internal/models"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Create(entry *models.AuditLog) error {
	return r.db.Create(entry).Error
}

// FindAll lists audit entries, newest first, filtered by action and actor.
func (r *AuditRepository) FindAll(limit, page int, action string, userID uint) ([]models.AuditLog, int64, error) {
	var rows []models.AuditLog
	var total int64

	db := r.db.Model(&models.AuditLog{})
	if action != "" {
		db = db.Where("action = ?", action)
	}
	if userID > 0 {
		db = db.Where("user_id = ?", userID)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := paginate(db, limit, page).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// DeleteBefore purges entries older than cutoff.
func (r *AuditRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	res := r.db.Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	return res.RowsAffected, res.Error
}
