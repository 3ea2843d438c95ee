package repository

import (
	"gorm.io/gorm"

	"panelhub/internal/models"
)

// PanelRepository handles panel database operations.
type PanelRepository struct {
	db *gorm.DB
}

func NewPanelRepository(db *gorm.DB) *PanelRepository {
	return &PanelRepository{db: db}
}

// FindAll returns panels with pagination and search.
func (r *PanelRepository) FindAll(limit, page int, query string) ([]models.Panel, int64, error) {
	var panels []models.Panel
	var total int64

	db := r.db.Model(&models.Panel{})

	if query != "" {
		search := "%" + query + "%"
		db = db.Where("name LIKE ? OR base_url LIKE ?", search, search)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := paginate(db, limit, page).Order("id ASC").Find(&panels).Error; err != nil {
		return nil, 0, err
	}
	return panels, total, nil
}

// All returns every panel.
func (r *PanelRepository) All() ([]models.Panel, error) {
	var panels []models.Panel
	err := r.db.Order("id ASC").Find(&panels).Error
	return panels, err
}

// FindByIDs returns the panels with the given ids.
func (r *PanelRepository) FindByIDs(ids []uint) ([]models.Panel, error) {
	var panels []models.Panel
	if len(ids) == 0 {
		return panels, nil
	}
	err := r.db.Where("id IN ?", ids).Order("id ASC").Find(&panels).Error
	return panels, err
}

// FindByID returns a panel by ID.
func (r *PanelRepository) FindByID(id uint) (*models.Panel, error) {
	var panel models.Panel
	if err := r.db.Where("id = ?", id).First(&panel).Error; err != nil {
		return nil, err
	}
	return &panel, nil
}

// FindByName returns a panel by its unique name.
func (r *PanelRepository) FindByName(name string) (*models.Panel, error) {
	var panel models.Panel
	if err := r.db.Where("name = ?", name).First(&panel).Error; err != nil {
		return nil, err
	}
	return &panel, nil
}

// Create inserts a panel. A default panel clears the flag on all others.
func (r *PanelRepository) Create(panel *models.Panel) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if panel.IsDefault {
			if err := clearDefault(tx, 0); err != nil {
				return err
			}
		}
		return tx.Create(panel).Error
	})
}

// Update applies column updates to a panel.
func (r *PanelRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if isDefault, ok := updates["is_default"].(bool); ok && isDefault {
			if err := clearDefault(tx, id); err != nil {
				return err
			}
		}
		res := tx.Model(&models.Panel{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Delete removes a panel; selections, credentials, templates and mirror
// rows go with it through foreign-key cascades.
func (r *PanelRepository) Delete(id uint) error {
	res := r.db.Delete(&models.Panel{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func clearDefault(tx *gorm.DB, except uint) error {
	return tx.Model(&models.Panel{}).
		Where("is_default = ? AND id <> ?", true, except).
		Update("is_default", false).Error
}
