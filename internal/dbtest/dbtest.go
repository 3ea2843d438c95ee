// Package dbtest opens migrated throwaway databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"panelhub/internal/bootstrap"
	"panelhub/internal/config"
	"panelhub/internal/models"
)

// Open returns a migrated SQLite database in t.TempDir() with foreign keys on.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := bootstrap.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// User inserts an active user.
func User(t testing.TB, db *gorm.DB, email, role string) *models.User {
	t.Helper()
	u := &models.User{Name: email, Email: email, Role: role, IsActive: true}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// Panel inserts a panel pointing at baseURL with admin/secret credentials.
func Panel(t testing.TB, db *gorm.DB, name, baseURL string) *models.Panel {
	t.Helper()
	p := &models.Panel{Name: name, BaseURL: baseURL, Username: "admin", Password: "secret", Type: models.PanelTypeMarzban}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create panel: %v", err)
	}
	return p
}

// Plan inserts a plan. Zero quota or days means unlimited.
func Plan(t testing.TB, db *gorm.DB, name string, quotaMB int64, days int, price string) *models.Plan {
	t.Helper()
	p := &models.Plan{Name: name, Price: decimal.RequireFromString(price)}
	if quotaMB > 0 {
		p.DataQuotaMB = &quotaMB
	} else {
		p.IsDataUnlimited = true
	}
	if days > 0 {
		p.DurationDays = &days
	} else {
		p.IsDurationUnlimited = true
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return p
}
