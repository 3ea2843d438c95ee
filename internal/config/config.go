package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"panelhub/internal/pkg/utils"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Access   AccessConfig
	Panel    PanelConfig
	Outbox   OutboxConfig
	Audit    AuditConfig
	Bot      BotConfig
}

type ServerConfig struct {
	Port         int
	Env          string // "development", "production"
	ExposeErrors bool
}

// Production reports whether internal error detail must stay hidden.
func (s ServerConfig) Production() bool {
	return s.Env == "production"
}

type DatabaseConfig struct {
	Driver  string // mysql, postgres, sqlite
	Host    string
	Port    string
	Name    string
	User    string
	Pass    string
	Charset string
	SSLMode string
	Path    string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type JWTConfig struct {
	Secret string
}

type AccessConfig struct {
	RootAdminEmails     []string
	BootstrapAdminEmail string
}

type PanelConfig struct {
	Timeout     time.Duration
	VerifyToken bool
}

type OutboxConfig struct {
	MaxAttempts int
	Batch       int
}

type AuditConfig struct {
	Buffer        int
	RetentionDays int
}

type BotConfig struct {
	Token   string
	AdminID int64
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	// Load .env file (ignore error if missing)
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("EXPOSE_ERRORS", false)
	viper.SetDefault("DB_DRIVER", "mysql")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_PATH", "panelhub.db")
	viper.SetDefault("REDIS_ADDR", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("PANEL_TIMEOUT", "15s")
	viper.SetDefault("PANEL_VERIFY_TOKEN", false)
	viper.SetDefault("OUTBOX_MAX_ATTEMPTS", 5)
	viper.SetDefault("OUTBOX_BATCH", 10)
	viper.SetDefault("AUDIT_BUFFER", 256)
	viper.SetDefault("AUDIT_RETENTION_DAYS", 0)

	timeout, err := time.ParseDuration(viper.GetString("PANEL_TIMEOUT"))
	if err != nil {
		return nil, fmt.Errorf("invalid PANEL_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetInt("APP_PORT"),
			Env:          viper.GetString("APP_ENV"),
			ExposeErrors: viper.GetBool("EXPOSE_ERRORS"),
		},
		Database: databaseFromEnv(),
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("JWT_SECRET"),
		},
		Access: AccessConfig{
			RootAdminEmails:     normalizeEmails(utils.SplitCSV(viper.GetString("ROOT_ADMIN_EMAILS"))),
			BootstrapAdminEmail: strings.ToLower(strings.TrimSpace(viper.GetString("BOOTSTRAP_ADMIN_EMAIL"))),
		},
		Panel: PanelConfig{
			Timeout:     timeout,
			VerifyToken: viper.GetBool("PANEL_VERIFY_TOKEN"),
		},
		Outbox: OutboxConfig{
			MaxAttempts: viper.GetInt("OUTBOX_MAX_ATTEMPTS"),
			Batch:       viper.GetInt("OUTBOX_BATCH"),
		},
		Audit: AuditConfig{
			Buffer:        viper.GetInt("AUDIT_BUFFER"),
			RetentionDays: viper.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Bot: BotConfig{
			Token:   viper.GetString("BOT_TOKEN"),
			AdminID: viper.GetInt64("BOT_ADMIN_ID"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func databaseFromEnv() DatabaseConfig {
	return DatabaseConfig{
		Driver:  strings.ToLower(viper.GetString("DB_DRIVER")),
		Host:    viper.GetString("DB_HOST"),
		Port:    viper.GetString("DB_PORT"),
		Name:    viper.GetString("DB_NAME"),
		User:    viper.GetString("DB_USER"),
		Pass:    viper.GetString("DB_PASS"),
		Charset: viper.GetString("DB_CHARSET"),
		SSLMode: viper.GetString("DB_SSLMODE"),
		Path:    viper.GetString("DB_PATH"),
	}
}

// LoadDatabaseOnly reads just the database settings, for schema bootstrap
// runs that must not require the full runtime config.
func LoadDatabaseOnly() (*DatabaseConfig, error) {
	_ = godotenv.Load()
	viper.AutomaticEnv()
	viper.SetDefault("DB_DRIVER", "mysql")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_PATH", "panelhub.db")

	db := databaseFromEnv()
	switch db.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", db.Driver)
	}
	return &db, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.Driver != "sqlite" && c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required for %s", c.Database.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	return nil
}

func normalizeEmails(in []string) []string {
	out := make([]string, 0, len(in))
	for _, e := range in {
		out = append(out, strings.ToLower(e))
	}
	return out
}

// DSN returns the driver-specific DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		port := d.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			d.Host, port, d.User, d.Pass, d.Name, d.SSLMode)
	case "sqlite":
		return SQLiteDSN(d.Path)
	default:
		port := d.Port
		if port == "" {
			port = "3306"
		}
		return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local"
	}
}

// SQLiteDSN enables foreign keys and a busy timeout on a file database.
func SQLiteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}
