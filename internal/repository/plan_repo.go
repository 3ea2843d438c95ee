package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"panelhub/internal/models"
)

// PlanRepository handles plans and plan categories.
type PlanRepository struct {
	db *gorm.DB
}

func NewPlanRepository(db *gorm.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

// FindAll returns plans ordered for display, optionally by category.
func (r *PlanRepository) FindAll(categoryID uint) ([]models.Plan, error) {
	var plans []models.Plan
	db := r.db.Preload("Category")
	if categoryID > 0 {
		db = db.Where("category_id = ?", categoryID)
	}
	err := db.Order("sort_order ASC, id ASC").Find(&plans).Error
	return plans, err
}

func (r *PlanRepository) FindByID(id uint) (*models.Plan, error) {
	var plan models.Plan
	if err := r.db.Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *PlanRepository) Create(plan *models.Plan) error {
	plan.Normalize()
	return r.db.Create(plan).Error
}

// Save writes every column of the plan, including nulled magnitudes.
func (r *PlanRepository) Save(plan *models.Plan) error {
	plan.Normalize()
	return r.db.Omit("created_at", clause.Associations).Save(plan).Error
}

func (r *PlanRepository) Delete(id uint) error {
	res := r.db.Delete(&models.Plan{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *PlanRepository) ListCategories() ([]models.PlanCategory, error) {
	var cats []models.PlanCategory
	err := r.db.Order("sort_order ASC, id ASC").Find(&cats).Error
	return cats, err
}

func (r *PlanRepository) CreateCategory(cat *models.PlanCategory) error {
	return r.db.Create(cat).Error
}

func (r *PlanRepository) UpdateCategory(id uint, updates map[string]interface{}) error {
	res := r.db.Model(&models.PlanCategory{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *PlanRepository) DeleteCategory(id uint) error {
	res := r.db.Delete(&models.PlanCategory{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
