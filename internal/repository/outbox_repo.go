package repository

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"panelhub/internal/models"
	"panelhub/internal/pkg/utils"
)

// OutboxRepository handles queued remote side effects.
type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue writes a pending job. Run it on a transaction handle to commit the
// job together with the change that caused it.
func (r *OutboxRepository) Enqueue(kind string, panelID uint, payload interface{}, maxAttempts int) (*models.OutboxJob, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	job := &models.OutboxJob{
		Kind:          kind,
		Status:        models.OutboxStatusPending,
		ExternalRef:   utils.GenerateUUID(),
		PanelID:       panelID,
		Payload:       string(raw),
		MaxAttempts:   maxAttempts,
		NextAttemptAt: time.Now(),
	}
	if err := r.db.Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimDue moves up to limit due pending jobs to running and returns them.
// A job claimed by another worker in between is skipped.
func (r *OutboxRepository) ClaimDue(kind string, limit int, now time.Time) ([]models.OutboxJob, error) {
	var due []models.OutboxJob
	q := r.db.Where("kind = ? AND status = ? AND next_attempt_at <= ?", kind, models.OutboxStatusPending, now).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&due).Error; err != nil {
		return nil, err
	}

	claimed := make([]models.OutboxJob, 0, len(due))
	for _, job := range due {
		res := r.db.Model(&models.OutboxJob{}).
			Where("id = ? AND status = ?", job.ID, models.OutboxStatusPending).
			Updates(map[string]interface{}{
				"status":   models.OutboxStatusRunning,
				"attempts": gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		job.Status = models.OutboxStatusRunning
		job.Attempts++
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (r *OutboxRepository) MarkDone(id uint) error {
	return r.db.Model(&models.OutboxJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.OutboxStatusDone, "last_error": ""}).Error
}

// MarkRetry returns a job to pending with a delay.
func (r *OutboxRepository) MarkRetry(id uint, errMsg string, next time.Time) error {
	return r.db.Model(&models.OutboxJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          models.OutboxStatusPending,
			"last_error":      errMsg,
			"next_attempt_at": next,
		}).Error
}

func (r *OutboxRepository) MarkFailed(id uint, errMsg string) error {
	return r.db.Model(&models.OutboxJob{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.OutboxStatusFailed, "last_error": errMsg}).Error
}

// RequeueStale returns jobs left running since before cutoff to pending.
func (r *OutboxRepository) RequeueStale(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.OutboxJob{}).
		Where("status = ? AND updated_at < ?", models.OutboxStatusRunning, cutoff).
		Update("status", models.OutboxStatusPending)
	return res.RowsAffected, res.Error
}

// Retry resets a failed job so the worker picks it up again.
func (r *OutboxRepository) Retry(id uint) error {
	res := r.db.Model(&models.OutboxJob{}).
		Where("id = ? AND status = ?", id, models.OutboxStatusFailed).
		Updates(map[string]interface{}{
			"status":          models.OutboxStatusPending,
			"attempts":        0,
			"next_attempt_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *OutboxRepository) FindByID(id uint) (*models.OutboxJob, error) {
	var job models.OutboxJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// FindAll lists jobs, newest first, optionally by status.
func (r *OutboxRepository) FindAll(limit, page int, status string) ([]models.OutboxJob, int64, error) {
	var rows []models.OutboxJob
	var total int64

	db := r.db.Model(&models.OutboxJob{})
	if status != "" {
		db = db.Where("status = ?", status)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := paginate(db, limit, page).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
