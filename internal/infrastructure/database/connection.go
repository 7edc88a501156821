package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/config"
	"github.com/clearsight/scenario-audit-backend/internal/metrics"
)

// Pool wraps the pgx connection pool with the runtime parameters the
// correlation services assume (UTC, reporting-first search path) and a
// stats loop that feeds the metrics registry.
type Pool struct {
	pool     *pgxpool.Pool
	registry *metrics.Registry
	logger   *zap.Logger
	stop     chan struct{}
}

// NewPool connects to Postgres and verifies the connection
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, registry *metrics.Registry, logger *zap.Logger) (*Pool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = metrics.NewNopRegistry()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheckPeriod
	}
	poolCfg.ConnConfig.ConnectTimeout = 5 * time.Second

	// Timestamps are compared and bucketed in UTC everywhere; the
	// session must not reinterpret them.
	poolCfg.ConnConfig.RuntimeParams = map[string]string{
		"application_name":  "scenario_audit_backend",
		"search_path":       "rpt,app,public",
		"timezone":          "UTC",
		"lock_timeout":      "10s",
		"statement_timeout": "30s",
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	p := &Pool{
		pool:     pool,
		registry: registry,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	go p.statsLoop()

	logger.Info("database pool ready",
		zap.Int32("max_conns", poolCfg.MaxConns),
		zap.Int32("min_conns", poolCfg.MinConns))

	return p, nil
}

// Pgx returns the underlying pgx pool
func (p *Pool) Pgx() *pgxpool.Pool {
	return p.pool
}

// StdDB returns a database/sql view of the pool for tooling that needs it
func (p *Pool) StdDB() *sql.DB {
	return stdlib.OpenDBFromPool(p.pool)
}

// Healthy pings the database; used by the readiness endpoint
func (p *Pool) Healthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx)
}

func (p *Pool) statsLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats := p.pool.Stat()
			p.registry.SetDBPoolSize(int64(stats.TotalConns()))
			p.logger.Debug("pool stats",
				zap.Int32("total", stats.TotalConns()),
				zap.Int32("acquired", stats.AcquiredConns()),
				zap.Int32("idle", stats.IdleConns()))
		case <-p.stop:
			return
		}
	}
}

// Close stops the stats loop and releases every connection
func (p *Pool) Close() {
	close(p.stop)
	p.pool.Close()
	p.logger.Info("database pool closed")
}
