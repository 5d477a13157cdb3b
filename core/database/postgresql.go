package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"riq-studio-api/core/constants"
	"riq-studio-api/core/logger"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type IDatabase interface {
	ExecContext(ctx context.Context, query string, args ...any) error
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	BeginTxx(ctx context.Context) (*sqlx.Tx, error)
	SQLx() *sqlx.DB
}

type Database struct {
	db   *sql.DB
	sqlx *sqlx.DB
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func InitDB(config DatabaseConfig) (*Database, error) {
	logger.Info("Initializing database...")

	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = constants.DatabaseSSLMode
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, sslMode)

	sqlxDB, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB := sqlxDB.DB
	sqlDB.SetMaxOpenConns(constants.DatabaseMaxOpenConns)
	sqlDB.SetMaxIdleConns(constants.DatabaseMaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(constants.DatabaseConnMaxLifetime) * time.Minute)

	if err = sqlDB.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &Database{
		db:   sqlDB,
		sqlx: sqlxDB,
	}

	if err := db.ensureSchema(); err != nil {
		logger.Error("Failed to ensure schema", "error", err)
		return nil, err
	}

	logger.Info("Database initialized successfully",
		"host", config.Host,
		"port", config.Port,
		"database", config.DBName,
		"user", config.User,
	)

	return db, nil
}

// ensureSchema creates the availability tables when they are missing, so a
// fresh database works without a separate migration step.
func (d *Database) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS availability (
			id BIGSERIAL PRIMARY KEY,
			date DATE NOT NULL,
			studio_id TEXT NOT NULL,
			time_slot_id TEXT NOT NULL,
			available BOOLEAN NOT NULL,
			source TEXT NOT NULL DEFAULT 'recordco',
			last_updated TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			sync_status TEXT NOT NULL DEFAULT 'synced',
			UNIQUE (date, studio_id, time_slot_id)
		);
		CREATE INDEX IF NOT EXISTS idx_availability_last_updated ON availability (last_updated);

		CREATE TABLE IF NOT EXISTS sync_logs (
			id BIGSERIAL PRIMARY KEY,
			sync_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			status TEXT NOT NULL,
			records_updated INTEGER NOT NULL DEFAULT 0,
			errors TEXT,
			details TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sync_logs_sync_time ON sync_logs (sync_time);
		CREATE INDEX IF NOT EXISTS idx_sync_logs_status ON sync_logs (status);
	`
	_, err := d.db.Exec(schema)
	return err
}

func (d *Database) ExecContext(ctx context.Context, query string, args ...any) error {
	_, err := d.sqlx.ExecContext(ctx, query, args...)
	return err
}

func (d *Database) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.sqlx.GetContext(ctx, dest, query, args...)
}

func (d *Database) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return d.sqlx.SelectContext(ctx, dest, query, args...)
}

func (d *Database) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

func (d *Database) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.db.QueryContext(ctx, query, args...)
}

func (d *Database) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return d.sqlx.NamedExecContext(ctx, query, arg)
}

func (d *Database) BeginTxx(ctx context.Context) (*sqlx.Tx, error) {
	return d.sqlx.BeginTxx(ctx, nil)
}

func (d *Database) SQLx() *sqlx.DB {
	return d.sqlx
}
