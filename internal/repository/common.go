package repository

import (
	"errors"

	"gorm.io/gorm"
)

// IsNotFound reports a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// paginate applies limit/page defaults and returns the paged query.
func paginate(db *gorm.DB, limit, page int) *gorm.DB {
	if limit <= 0 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	return db.Limit(limit).Offset((page - 1) * limit)
}
