// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"fmt"
	"time"

	gormigrate "github.com/go-gormigrate/gormigrate/v2"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/giveaway-engine/internal/config"
	"github.com/aimd54/giveaway-engine/internal/models"
	"github.com/aimd54/giveaway-engine/pkg/logger"
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDB creates a new database connection for the configured driver.
func NewDB(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	// Configure GORM logger
	var gormLogLevel gormlogger.LogLevel
	switch log.Level() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		gormLogLevel = gormlogger.Info
	default:
		gormLogLevel = gormlogger.Warn
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	}

	var (
		dialector gorm.Dialector
		maxOpen   = cfg.Postgres.MaxOpenConns
		maxIdle   = cfg.Postgres.MaxIdleConns
	)

	switch cfg.Driver {
	case "", "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Postgres.Host,
			cfg.Postgres.Port,
			cfg.Postgres.User,
			cfg.Postgres.Password,
			cfg.Postgres.Database,
			cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLite.Path)
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY under load.
		maxOpen, maxIdle = 1, 1
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Set connection pool settings
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if cfg.Postgres.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second)
	}

	// Test connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("driver", cfg.Driver).
		Str("host", cfg.Postgres.Host).
		Str("database", cfg.Postgres.Database).
		Msg("Connected to database")

	return &DB{db}, nil
}

// NewSQLiteDB opens a SQLite database at path with GORM logging silenced.
// Use ":memory:" for a private in-memory database.
func NewSQLiteDB(path string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	sqlDB.SetMaxOpenConns(1)

	return &DB{db}, nil
}

// Migrate applies the versioned schema migrations.
func (db *DB) Migrate() error {
	m := gormigrate.New(db.DB, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202406010001_giveaways",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.Giveaway{}, &models.Entry{}, &models.Winner{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("giveaway_winners", "giveaway_entries", "giveaways")
			},
		},
		{
			ID: "202406010002_member_facts",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&models.MemberFacts{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("member_facts")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
