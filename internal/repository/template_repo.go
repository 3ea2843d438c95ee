package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"panelhub/internal/models"
)

// TemplateRepository handles inbound templates and their assignment.
type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) FindAll(panelID uint) ([]models.Template, error) {
	var templates []models.Template
	db := r.db.Preload("Inbounds")
	if panelID > 0 {
		db = db.Where("panel_id = ?", panelID)
	}
	err := db.Order("id ASC").Find(&templates).Error
	return templates, err
}

func (r *TemplateRepository) FindByID(id uint) (*models.Template, error) {
	var tpl models.Template
	if err := r.db.Preload("Inbounds").Where("id = ?", id).First(&tpl).Error; err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Create inserts a template with its tags.
func (r *TemplateRepository) Create(tpl *models.Template, tags []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		tpl.Inbounds = nil
		if err := tx.Create(tpl).Error; err != nil {
			return err
		}
		return replaceTemplateTags(tx, tpl, tags)
	})
}

// Update renames a template and, when tags is non-nil, replaces its tags.
func (r *TemplateRepository) Update(id uint, name string, tags []string) (*models.Template, error) {
	var tpl models.Template
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&tpl).Error; err != nil {
			return err
		}
		if name != "" && name != tpl.Name {
			if err := tx.Model(&tpl).Update("name", name).Error; err != nil {
				return err
			}
		}
		if tags == nil {
			return tx.Where("template_id = ?", id).Find(&tpl.Inbounds).Error
		}
		return replaceTemplateTags(tx, &tpl, tags)
	})
	if err != nil {
		return nil, err
	}
	return &tpl, nil
}

func replaceTemplateTags(tx *gorm.DB, tpl *models.Template, tags []string) error {
	if err := tx.Where("template_id = ?", tpl.ID).Delete(&models.TemplateInbound{}).Error; err != nil {
		return err
	}
	seen := make(map[string]bool, len(tags))
	rows := make([]models.TemplateInbound, 0, len(tags))
	for _, tag := range tags {
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		rows = append(rows, models.TemplateInbound{TemplateID: tpl.ID, InboundTag: tag})
	}
	tpl.Inbounds = rows
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&tpl.Inbounds).Error
}

func (r *TemplateRepository) Delete(id uint) error {
	res := r.db.Delete(&models.Template{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Assign sets the template of a user, replacing any previous assignment.
func (r *TemplateRepository) Assign(userID, templateID uint) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"template_id"}),
	}).Create(&models.UserTemplate{UserID: userID, TemplateID: templateID}).Error
}

func (r *TemplateRepository) Unassign(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.UserTemplate{}).Error
}

// FindForUser returns the template assigned to a user.
func (r *TemplateRepository) FindForUser(userID uint) (*models.Template, error) {
	var ut models.UserTemplate
	if err := r.db.Where("user_id = ?", userID).First(&ut).Error; err != nil {
		return nil, err
	}
	return r.FindByID(ut.TemplateID)
}
