package bootstrap

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"panelhub/internal/models"
)

// Options controls seeding.
type Options struct {
	// BootstrapAdminEmail, when set, is created as an admin with a root grant.
	BootstrapAdminEmail string
}

// MigrateAndSeed ensures required tables exist and inserts baseline rows.
func MigrateAndSeed(db *gorm.DB, opts Options) error {
	if err := Migrate(db); err != nil {
		return err
	}
	if err := seedDefaults(db, opts); err != nil {
		return fmt.Errorf("seed defaults failed: %w", err)
	}
	return nil
}

// Migrate creates or updates every table, parents before children so
// foreign keys can be declared.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(allModels()...); err != nil {
		return fmt.Errorf("auto migrate failed: %w", err)
	}
	return nil
}

func allModels() []interface{} {
	return []interface{}{
		// Identity
		&models.User{},
		&models.RootAdminGrant{},
		// Panels
		&models.Panel{},
		&models.PanelInboundSelection{},
		&models.OperatorPanelCredential{},
		&models.PanelCreatedUser{},
		// Catalogue
		&models.PlanCategory{},
		&models.Plan{},
		&models.Template{},
		&models.TemplateInbound{},
		&models.UserTemplate{},
		&models.PlanTemplate{},
		&models.PlanTemplateItem{},
		&models.UserPlanTemplate{},
		// Billing
		&models.Wallet{},
		&models.WalletTransaction{},
		// Side effects
		&models.AuditLog{},
		&models.OutboxJob{},
	}
}

func seedDefaults(db *gorm.DB, opts Options) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := ensureDefaultCategory(tx); err != nil {
			return err
		}
		if opts.BootstrapAdminEmail != "" {
			if err := ensureBootstrapAdmin(tx, opts.BootstrapAdminEmail); err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureDefaultCategory(tx *gorm.DB) error {
	var count int64
	if err := tx.Model(&models.PlanCategory{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	return tx.Create(&models.PlanCategory{Name: "General"}).Error
}

func ensureBootstrapAdmin(tx *gorm.DB, email string) error {
	var user models.User
	err := tx.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{Name: "root", Email: email, Role: models.RoleAdmin, IsActive: true}
		err = tx.Create(&user).Error
	}
	if err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.RootAdminGrant{UserID: user.ID}).Error
}
