// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

var (
	ErrDBNotInitialized = errors.New("database not initialized")
	ErrNotFound         = errors.New("record not found")
)

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS scoring_parameters (
		params_id SERIAL PRIMARY KEY,
		config_name VARCHAR(255) NOT NULL DEFAULT 'default',
		version INTEGER NOT NULL DEFAULT 1,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		params JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT uq_scoring_parameters_config_version UNIQUE (config_name, version)
	);
	CREATE INDEX IF NOT EXISTS idx_scoring_parameters_config_active ON scoring_parameters(config_name, is_active, created_at DESC);

	CREATE TABLE IF NOT EXISTS allocation_requests (
		request_id TEXT PRIMARY KEY,
		round_number INTEGER NOT NULL,
		miner_kind SMALLINT NOT NULL,
		request_type VARCHAR(16) NOT NULL,
		block BIGINT NOT NULL,
		assets_and_pools JSONB,
		miner_uids INTEGER[] NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_allocation_requests_created ON allocation_requests(created_at DESC);

	CREATE TABLE IF NOT EXISTS allocations (
		request_id TEXT NOT NULL REFERENCES allocation_requests(request_id) ON DELETE CASCADE,
		miner_uid INTEGER NOT NULL,
		status VARCHAR(16) NOT NULL,
		allocation JSONB,
		apy NUMERIC(78, 0) NOT NULL DEFAULT 0,
		reward DOUBLE PRECISION NOT NULL DEFAULT 0,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		timed_out BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (request_id, miner_uid)
	);
	CREATE INDEX IF NOT EXISTS idx_allocations_miner ON allocations(miner_uid);

	CREATE TABLE IF NOT EXISTS validator_scores (
		miner_uid INTEGER PRIMARY KEY,
		score DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	-- Round counter table for persistent global round tracking
	CREATE TABLE IF NOT EXISTS round_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_round INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	INSERT INTO round_counter (id, current_round)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

const dropSchemaSQL = `
	DROP TABLE IF EXISTS allocations CASCADE;
	DROP TABLE IF EXISTS allocation_requests CASCADE;
	DROP TABLE IF EXISTS validator_scores CASCADE;
	DROP TABLE IF EXISTS scoring_parameters CASCADE;
	DROP TABLE IF EXISTS round_counter CASCADE;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every table owned by the validator. Used by the reset-db command.
func DropSchema() error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if _, err := DB.Exec(dropSchemaSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("All validator tables dropped")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
