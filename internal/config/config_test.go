package config

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("ROOT_ADMIN_EMAILS", "Root@Example.com, ops@example.com")
	t.Setenv("PANEL_TIMEOUT", "12s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Panel.Timeout != 12*time.Second {
		t.Fatalf("timeout = %v", cfg.Panel.Timeout)
	}
	if len(cfg.Access.RootAdminEmails) != 2 || cfg.Access.RootAdminEmails[0] != "root@example.com" {
		t.Fatalf("root emails = %v", cfg.Access.RootAdminEmails)
	}
	if cfg.Outbox.MaxAttempts != 5 || cfg.Audit.Buffer != 256 {
		t.Fatalf("defaults not applied: %+v %+v", cfg.Outbox, cfg.Audit)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("JWT_SECRET", "x")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestDSN(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", User: "u", Pass: "p", Name: "hub", SSLMode: "disable"}
	if got := pg.DSN(); got != "host=db port=5432 user=u password=p dbname=hub sslmode=disable" {
		t.Fatalf("postgres DSN = %q", got)
	}
	my := DatabaseConfig{Driver: "mysql", Host: "db", User: "u", Pass: "p", Name: "hub", Charset: "utf8mb4"}
	if got := my.DSN(); !strings.HasPrefix(got, "u:p@tcp(db:3306)/hub?charset=utf8mb4") {
		t.Fatalf("mysql DSN = %q", got)
	}
	lite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
	if got := lite.DSN(); !strings.Contains(got, "foreign_keys(1)") {
		t.Fatalf("sqlite DSN = %q", got)
	}
}

func TestLoadDatabaseOnlySkipsJWT(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_PATH", "/tmp/boot.db")
	t.Setenv("JWT_SECRET", "")

	db, err := LoadDatabaseOnly()
	if err != nil {
		t.Fatalf("LoadDatabaseOnly: %v", err)
	}
	if db.Driver != "sqlite" || db.Path != "/tmp/boot.db" {
		t.Fatalf("db config = %+v", db)
	}
}

func TestDatabaseLoggerIgnoresMisses(t *testing.T) {
	if !gormLogConfig.IgnoreRecordNotFoundError {
		t.Fatal("record-not-found must not be logged")
	}
	if gormLogConfig.LogLevel != logger.Warn {
		t.Fatalf("log level = %v", gormLogConfig.LogLevel)
	}

	db, err := OpenSQLite(filepath.Join(t.TempDir(), "miss.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	type row struct{ ID uint }
	if err := db.AutoMigrate(&row{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	var r row
	if err := db.First(&r, 42).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("miss = %v", err)
	}
}
