package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"panelhub/internal/models"
)

// CreatedUserRepository stores the local mirror of remote panel users.
type CreatedUserRepository struct {
	db *gorm.DB
}

func NewCreatedUserRepository(db *gorm.DB) *CreatedUserRepository {
	return &CreatedUserRepository{db: db}
}

// Upsert inserts or refreshes the mirror row for (panel, username).
func (r *CreatedUserRepository) Upsert(row *models.PanelCreatedUser) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "panel_id"}, {Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"subscription_url", "created_by"}),
		}).Create(row).Error
	})
}

// UpdateSubscription refreshes the stored link of an existing row.
func (r *CreatedUserRepository) UpdateSubscription(panelID uint, username, url string) error {
	return r.db.Model(&models.PanelCreatedUser{}).
		Where("panel_id = ? AND username = ?", panelID, username).
		Update("subscription_url", url).Error
}

// Delete removes the mirror row, reporting how many rows went away.
func (r *CreatedUserRepository) Delete(panelID uint, username string) (int64, error) {
	res := r.db.Where("panel_id = ? AND username = ?", panelID, username).Delete(&models.PanelCreatedUser{})
	return res.RowsAffected, res.Error
}

func (r *CreatedUserRepository) Find(panelID uint, username string) (*models.PanelCreatedUser, error) {
	var row models.PanelCreatedUser
	if err := r.db.Where("panel_id = ? AND username = ?", panelID, username).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// List returns mirror rows of a panel, optionally only those a user created.
func (r *CreatedUserRepository) List(panelID, createdBy uint, limit, page int) ([]models.PanelCreatedUser, int64, error) {
	var rows []models.PanelCreatedUser
	var total int64

	db := r.db.Model(&models.PanelCreatedUser{}).Where("panel_id = ?", panelID)
	if createdBy > 0 {
		db = db.Where("created_by = ?", createdBy)
	}
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := paginate(db, limit, page).Order("id DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
