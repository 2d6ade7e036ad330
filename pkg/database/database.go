package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds archive database connection configuration.
type Config struct {
	DatabaseURL string
	MaxConns    int32
	MinConns    int32
	MaxConnIdle time.Duration
	MaxConnLife time.Duration
	HealthCheck time.Duration
}

// DefaultConfig returns a Config sized for the snapshot archive (one writer per refresh).
func DefaultConfig() *Config {
	return &Config{
		MaxConns:    4,
		MinConns:    1,
		MaxConnIdle: 30 * time.Minute,
		MaxConnLife: 1 * time.Hour,
		HealthCheck: 1 * time.Minute,
	}
}

// ConfigFromURL returns the default config pointed at databaseURL.
func ConfigFromURL(databaseURL string) (*Config, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database url is required (set DATABASE_URL)")
	}
	cfg := DefaultConfig()
	cfg.DatabaseURL = databaseURL
	return cfg, nil
}

// DB wraps a pgxpool.Pool.
type DB struct {
	Pool *pgxpool.Pool
}

// Connect establishes a connection pool to the database and pings it.
func Connect(ctx context.Context, cfg *Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdle
	poolConfig.MaxConnLifetime = cfg.MaxConnLife
	poolConfig.HealthCheckPeriod = cfg.HealthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
