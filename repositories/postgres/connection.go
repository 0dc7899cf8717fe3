package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/upb/academic-records/config"
	"go.uber.org/zap"
)

const (
	defaultDatabaseName = "records"
	connectTimeout      = 5 * time.Second
	healthCheckTimeout  = 2 * time.Second
)

// DB is the connection pool for the academic records database.
type DB struct {
	*sql.DB
	name   string
	logger *zap.Logger
}

// PoolStats is the part of sql.DBStats reported on the readiness endpoint.
type PoolStats struct {
	MaxOpen   int   `json:"max_open"`
	Open      int   `json:"open"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	WaitCount int64 `json:"wait_count"`
	WaitMs    int64 `json:"wait_ms"`
}

// NewDB opens the records database and verifies it answers before returning.
func NewDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	name := cfg.Database
	if name == "" {
		name = defaultDatabaseName
	}
	logger = logger.With(zap.String("database", name))

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open records database %q: %w", name, err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("records database %q unreachable: %w", name, err)
	}

	logger.Info("records database connected",
		zap.String("connection", cfg.LogString()),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return &DB{DB: db, name: name, logger: logger}, nil
}

// WrapDB adapts an already opened pool, used by tests with sqlmock.
func WrapDB(db *sql.DB, logger *zap.Logger) *DB {
	return &DB{DB: db, name: defaultDatabaseName, logger: logger.With(zap.String("database", defaultDatabaseName))}
}

// Close closes the pool, logging how busy it was.
func (db *DB) Close() error {
	s := db.PoolStats()
	db.logger.Info("closing records database",
		zap.Int("open", s.Open),
		zap.Int("in_use", s.InUse),
		zap.Int64("wait_count", s.WaitCount))
	return db.DB.Close()
}

// HealthCheck pings the records database and runs a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("records database %q unreachable: %w", db.name, err)
	}

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("records database %q did not answer a query: %w", db.name, err)
	}

	return nil
}

// PoolStats summarizes the connection pool.
func (db *DB) PoolStats() PoolStats {
	s := db.DB.Stats()
	return PoolStats{
		MaxOpen:   s.MaxOpenConnections,
		Open:      s.OpenConnections,
		InUse:     s.InUse,
		Idle:      s.Idle,
		WaitCount: s.WaitCount,
		WaitMs:    s.WaitDuration.Milliseconds(),
	}
}
