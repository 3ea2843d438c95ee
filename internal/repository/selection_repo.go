package repository

import (
	"gorm.io/gorm"

	"panelhub/internal/models"
)

// SelectionRepository manages a panel's configured inbound set.
type SelectionRepository struct {
	db *gorm.DB
}

func NewSelectionRepository(db *gorm.DB) *SelectionRepository {
	return &SelectionRepository{db: db}
}

// ListByPanel returns the selection ordered by insertion.
func (r *SelectionRepository) ListByPanel(panelID uint) ([]models.PanelInboundSelection, error) {
	var rows []models.PanelInboundSelection
	err := r.db.Where("panel_id = ?", panelID).Order("id ASC").Find(&rows).Error
	return rows, err
}

// Tags returns the selected inbound tags of a panel.
func (r *SelectionRepository) Tags(panelID uint) ([]string, error) {
	rows, err := r.ListByPanel(panelID)
	if err != nil {
		return nil, err
	}
	tags := make([]string, 0, len(rows))
	for _, row := range rows {
		tags = append(tags, row.Tag())
	}
	return tags, nil
}

// Replace swaps the whole selection in one transaction so readers never
// observe a partial set.
func (r *SelectionRepository) Replace(panelID uint, rows []models.PanelInboundSelection) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("panel_id = ?", panelID).Delete(&models.PanelInboundSelection{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].ID = 0
			rows[i].PanelID = panelID
		}
		return tx.Create(&rows).Error
	})
}
