package bootstrap

import (
	"path/filepath"
	"testing"

	"panelhub/internal/config"
	"panelhub/internal/models"
)

func TestMigrateAndSeedIsIdempotent(t *testing.T) {
	db, err := config.OpenSQLite(filepath.Join(t.TempDir(), "boot.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	opts := Options{BootstrapAdminEmail: "root@example.com"}
	for i := 0; i < 2; i++ {
		if err := MigrateAndSeed(db, opts); err != nil {
			t.Fatalf("MigrateAndSeed run %d: %v", i, err)
		}
	}

	var cats, grants int64
	db.Model(&models.PlanCategory{}).Count(&cats)
	db.Model(&models.RootAdminGrant{}).Count(&grants)
	if cats != 1 || grants != 1 {
		t.Fatalf("categories=%d grants=%d", cats, grants)
	}
}
