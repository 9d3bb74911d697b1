package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/config"
	"github.com/therealutkarshpriyadarshi/multimodal/internal/metrics"
)

// ErrNotFound is returned when a catalog record does not exist
var ErrNotFound = errors.New("database: record not found")

// DB wraps the database connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection
func New(cfg config.DatabaseConfig) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d pool_min_conns=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		cfg.MaxConns, cfg.MinConns,
	)
	return open(dsn)
}

func open(dsn string) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Set connection pool settings
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Ping the database to verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Migrate creates the catalog tables when they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Health checks if the database is healthy
func (db *DB) Health(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// observe records the outcome of one catalog operation
func observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil && !errors.Is(err, ErrNotFound) {
		status = "error"
	}
	metrics.RecordDatabaseOperation(operation, status, time.Since(start).Seconds())
}

const schema = `
CREATE TABLE IF NOT EXISTS datasets (
	id          UUID PRIMARY KEY,
	name        TEXT NOT NULL,
	object_key  TEXT NOT NULL UNIQUE,
	size        BIGINT NOT NULL DEFAULT 0,
	duration    DOUBLE PRECISION NOT NULL DEFAULT 0,
	modalities  TEXT[] NOT NULL DEFAULT '{}',
	metadata    JSONB NOT NULL DEFAULT '{}',
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id           UUID PRIMARY KEY,
	type         TEXT NOT NULL,
	dataset_key  TEXT NOT NULL,
	status       TEXT NOT NULL,
	priority     INTEGER NOT NULL DEFAULT 0,
	error_msg    TEXT,
	retry_count  INTEGER NOT NULL DEFAULT 0,
	worker_id    TEXT,
	started_at   TIMESTAMPTZ,
	completed_at TIMESTAMPTZ,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	params       JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS jobs_dataset_key_idx ON jobs (dataset_key);

CREATE TABLE IF NOT EXISTS segmentation_runs (
	id              UUID PRIMARY KEY,
	dataset_id      UUID NOT NULL REFERENCES datasets (id) ON DELETE CASCADE,
	job_id          TEXT NOT NULL,
	modality        TEXT NOT NULL,
	facet           TEXT NOT NULL,
	interval_set    TEXT NOT NULL,
	segments        INTEGER NOT NULL,
	covered_seconds DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
