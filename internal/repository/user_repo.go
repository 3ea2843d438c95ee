package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"panelhub/internal/models"
)

// UserRepository handles all user database operations.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindAll returns users with pagination and optional search/role filter.
func (r *UserRepository) FindAll(limit, page int, query, role string) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	db := r.db.Model(&models.User{})

	if query != "" {
		search := "%" + query + "%"
		db = db.Where("name LIKE ? OR email LIKE ?", search, search)
	}
	if role != "" {
		db = db.Where("role = ?", role)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := paginate(db, limit, page).Order("id ASC").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) FindByID(id uint) (*models.User, error) {
	var user models.User
	if err := r.db.Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) FindByEmail(email string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) Update(id uint, updates map[string]interface{}) error {
	return r.db.Model(&models.User{}).Where("id = ?", id).Updates(updates).Error
}

// HasRootGrant reports whether the user holds an explicit root grant.
func (r *UserRepository) HasRootGrant(userID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.RootAdminGrant{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) GrantRoot(userID uint) error {
	return r.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.RootAdminGrant{UserID: userID}).Error
}

func (r *UserRepository) RevokeRoot(userID uint) error {
	return r.db.Where("user_id = ?", userID).Delete(&models.RootAdminGrant{}).Error
}
