// Package storage is the optional PostgreSQL sink for decode results.
//
// It manages a pgxpool connection pool, forward-only migrations, run
// bookkeeping, and COPY-based batch inserts of extrinsic and storage item
// records.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/kiroku/internal/telemetry"
)

// DB wraps a pgxpool.Pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// maxSinkConns bounds the pool unless the DSN sets pool_max_conns. One sink
// flusher plus run bookkeeping never needs more.
const maxSinkConns = 4

// New opens a connection pool to dsn and verifies connectivity.
func New(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}
	if !strings.Contains(dsn, "pool_max_conns") {
		poolCfg.MaxConns = maxSinkConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.pool.Close()
}

// RegisterPoolMetrics exposes pool saturation as OTEL gauges.
func (db *DB) RegisterPoolMetrics() {
	meter := telemetry.Meter("kiroku/storage")
	_, _ = meter.Int64ObservableGauge("kiroku.storage.pool.acquired",
		metric.WithDescription("Connections currently checked out of the pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(db.pool.Stat().AcquiredConns()))
			return nil
		}),
	)
	_, _ = meter.Int64ObservableGauge("kiroku.storage.pool.total",
		metric.WithDescription("Connections open in the pool"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(db.pool.Stat().TotalConns()))
			return nil
		}),
	)
}
