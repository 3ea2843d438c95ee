package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"panelhub/internal/models"
)

// CredentialRepository stores delegated operator panel logins.
type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Find returns the credential of a user on a panel.
func (r *CredentialRepository) Find(userID, panelID uint) (*models.OperatorPanelCredential, error) {
	var cred models.OperatorPanelCredential
	if err := r.db.Where("user_id = ? AND panel_id = ?", userID, panelID).First(&cred).Error; err != nil {
		return nil, err
	}
	return &cred, nil
}

// ListByUser returns all credentials held by a user.
func (r *CredentialRepository) ListByUser(userID uint) ([]models.OperatorPanelCredential, error) {
	var creds []models.OperatorPanelCredential
	err := r.db.Where("user_id = ?", userID).Order("panel_id ASC").Find(&creds).Error
	return creds, err
}

// PanelIDs returns the panels a user holds credentials for.
func (r *CredentialRepository) PanelIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.OperatorPanelCredential{}).Where("user_id = ?", userID).Pluck("panel_id", &ids).Error
	return ids, err
}

// Upsert creates or replaces the credential for (user, panel).
func (r *CredentialRepository) Upsert(cred *models.OperatorPanelCredential) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "panel_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "password"}),
	}).Create(cred).Error
}

// DeleteByUser revokes every credential of a user.
func (r *CredentialRepository) DeleteByUser(userID uint) (int64, error) {
	res := r.db.Where("user_id = ?", userID).Delete(&models.OperatorPanelCredential{})
	return res.RowsAffected, res.Error
}
