package repository

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"panelhub/internal/models"
)

// PlanTemplateRepository handles per-operator price lists.
type PlanTemplateRepository struct {
	db *gorm.DB
}

func NewPlanTemplateRepository(db *gorm.DB) *PlanTemplateRepository {
	return &PlanTemplateRepository{db: db}
}

func (r *PlanTemplateRepository) FindAll() ([]models.PlanTemplate, error) {
	var out []models.PlanTemplate
	err := r.db.Preload("Items").Order("id ASC").Find(&out).Error
	return out, err
}

func (r *PlanTemplateRepository) FindByID(id uint) (*models.PlanTemplate, error) {
	var pt models.PlanTemplate
	if err := r.db.Preload("Items").Where("id = ?", id).First(&pt).Error; err != nil {
		return nil, err
	}
	return &pt, nil
}

// Save creates or updates a price list, replacing its items.
func (r *PlanTemplateRepository) Save(pt *models.PlanTemplate, items []models.PlanTemplateItem) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		pt.Items = nil
		if pt.ID == 0 {
			if err := tx.Create(pt).Error; err != nil {
				return err
			}
		} else {
			res := tx.Model(&models.PlanTemplate{}).Where("id = ?", pt.ID).Update("name", pt.Name)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return gorm.ErrRecordNotFound
			}
			if err := tx.Where("plan_template_id = ?", pt.ID).Delete(&models.PlanTemplateItem{}).Error; err != nil {
				return err
			}
		}
		for i := range items {
			items[i].ID = 0
			items[i].PlanTemplateID = pt.ID
		}
		pt.Items = items
		if len(items) == 0 {
			return nil
		}
		return tx.Create(&pt.Items).Error
	})
}

func (r *PlanTemplateRepository) Delete(id uint) error {
	res := r.db.Delete(&models.PlanTemplate{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Assign sets the price list of a user.
func (r *PlanTemplateRepository) Assign(userID, planTemplateID uint) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan_template_id"}),
	}).Create(&models.UserPlanTemplate{UserID: userID, PlanTemplateID: planTemplateID}).Error
}

func (r *PlanTemplateRepository) Unassign(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.UserPlanTemplate{}).Error
}

// PriceOverrides returns plan id -> overridden price for a user's price list.
func (r *PlanTemplateRepository) PriceOverrides(userID uint) (map[uint]decimal.Decimal, error) {
	var items []models.PlanTemplateItem
	err := r.db.Table("plan_template_items AS i").
		Select("i.*").
		Joins("JOIN user_plan_templates u ON u.plan_template_id = i.plan_template_id").
		Where("u.user_id = ?", userID).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint]decimal.Decimal, len(items))
	for _, it := range items {
		out[it.PlanID] = it.Price
	}
	return out, nil
}
