// Package database persists recommendation records, resolution events and
// scan runs in PostgreSQL.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// Config holds database configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection pool.
func NewDB(cfg Config, logger zerolog.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log := logger.With().Str("component", "database").Logger()
	log.Info().Str("database", cfg.Database).Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: log}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("database connection closed")
	}
}

// RunMigrations executes the schema migrations.
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS recommendations (
			id UUID PRIMARY KEY,
			position_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			account VARCHAR(64) NOT NULL,
			action VARCHAR(32) NOT NULL,
			priority VARCHAR(16) NOT NULL,
			reason TEXT NOT NULL,
			proposed_strike DECIMAL(12, 2),
			proposed_expiration DATE,
			net_cost DECIMAL(12, 4),
			itm_percent DECIMAL(8, 4),
			scan_id UUID,
			scan_kind VARCHAR(16),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_position ON recommendations(position_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_symbol ON recommendations(symbol, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_created ON recommendations(created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS resolution_events (
			id UUID PRIMARY KEY,
			position_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			account VARCHAR(64) NOT NULL,
			kind VARCHAR(24) NOT NULL,
			strike DECIMAL(12, 2),
			expiration DATE,
			resolved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_resolution_events_position ON resolution_events(position_id)`,

		`CREATE TABLE IF NOT EXISTS scan_runs (
			id UUID PRIMARY KEY,
			kind VARCHAR(16) NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			evaluated INT NOT NULL,
			emitted INT NOT NULL,
			resolved INT NOT NULL,
			skipped BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at DESC)`,

		`CREATE TABLE IF NOT EXISTS recommendation_feedback (
			id UUID PRIMARY KEY,
			recommendation_id UUID NOT NULL REFERENCES recommendations(id),
			verdict VARCHAR(16) NOT NULL,
			comment TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feedback_recommendation ON recommendation_feedback(recommendation_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("count", len(migrations)).Msg("migrations completed")
	return nil
}
