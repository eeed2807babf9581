package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"proxycrawler/internal/config"
	"proxycrawler/internal/domain"
	"proxycrawler/internal/support"
)

const defaultDatabaseFile = "database.db"

var (
	DB *gorm.DB
)

type Config struct {
	DSN string
}

type Option func(*Config)

func SetupDB(opts ...Option) (*gorm.DB, error) {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		dsn = buildDSN()
	}

	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: silentLogger()})
	if err != nil {
		return nil, fmt.Errorf("database: open connection: %w", err)
	}
	DB = db
	configureConnectionPool(db)

	if err := DB.AutoMigrate(defaultMigrations()...); err != nil {
		return nil, fmt.Errorf("database: auto migrate: %w", err)
	}
	log.Debug("Database migration completed.", "driver", dialector.Name())

	return DB, nil
}

// buildDSN resolves the connection string: DATABASE_URL, then the settings
// file, then a sqlite file in the proxycrawler home directory.
func buildDSN() string {
	if dsn := strings.TrimSpace(support.GetEnv("DATABASE_URL", "")); dsn != "" {
		return dsn
	}
	if dsn := strings.TrimSpace(config.GetConfig().Database.URL); dsn != "" {
		return dsn
	}
	return filepath.Join(config.HomeDir(), defaultDatabaseFile)
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	if isPostgresDSN(dsn) {
		return postgres.Open(dsn), nil
	}

	path := strings.TrimPrefix(dsn, "sqlite://")
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("database: create directory for %s: %w", path, err)
		}
	}
	return sqlite.Open(path), nil
}

func isPostgresDSN(dsn string) bool {
	lower := strings.ToLower(dsn)
	return strings.HasPrefix(lower, "postgres://") ||
		strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=")
}

func silentLogger() logger.Interface {
	return logger.New(
		log.Default(),
		logger.Config{LogLevel: logger.Silent},
	)
}

func defaultMigrations() []any {
	return []any{
		domain.StoredProxy{},
	}
}

// WithDSN overrides the connection string resolved from DATABASE_URL and the
// settings file.
func WithDSN(dsn string) Option {
	return func(cfg *Config) {
		cfg.DSN = dsn
	}
}

func configureConnectionPool(db *gorm.DB) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Error("database: get sql.DB", "error", err)
		return
	}

	maxOpen := support.GetEnvInt("DB_MAX_OPEN_CONNS", 32)
	maxIdle := support.GetEnvInt("DB_MAX_IDLE_CONNS", maxOpen)
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	connLifetimeSeconds := support.GetEnvInt("DB_CONN_MAX_LIFETIME", 300)
	connIdleSeconds := support.GetEnvInt("DB_CONN_MAX_IDLE_TIME", 60)

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if connLifetimeSeconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(connLifetimeSeconds) * time.Second)
	}
	if connIdleSeconds > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(connIdleSeconds) * time.Second)
	}
}

// CloseDB releases the global connection.
func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	DB = nil
	return sqlDB.Close()
}
