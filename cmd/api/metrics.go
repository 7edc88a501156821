package main

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/database"
)

// Process-level gauges exposed on /metrics alongside the Go runtime
// collectors. Request and pipeline metrics live in the OTel registry.

var (
	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sab",
			Subsystem: "api",
			Name:      "build_info",
			Help:      "Build information, value is always 1",
		},
		[]string{"version"},
	)

	dbPoolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "sab",
			Subsystem: "db",
			Name:      "pool_connections",
			Help:      "Current number of connections in the pool by state",
		},
		[]string{"state"},
	)

	dbPoolMax = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sab",
			Subsystem: "db",
			Name:      "pool_max_connections",
			Help:      "Configured maximum number of pool connections",
		},
	)

	dbPoolAcquires = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sab",
			Subsystem: "db",
			Name:      "pool_acquires_total",
			Help:      "Total number of connection acquisitions",
		},
	)
)

func recordBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// pollPoolMetrics mirrors pgxpool stats into the Prometheus gauges until
// the context ends.
func pollPoolMetrics(ctx context.Context, pool *database.Pool) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	var lastAcquires int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := pool.Pgx().Stat()
			dbPoolConnections.WithLabelValues("acquired").Set(float64(stats.AcquiredConns()))
			dbPoolConnections.WithLabelValues("idle").Set(float64(stats.IdleConns()))
			dbPoolConnections.WithLabelValues("constructing").Set(float64(stats.ConstructingConns()))
			dbPoolMax.Set(float64(stats.MaxConns()))

			if acquires := stats.AcquireCount(); acquires > lastAcquires {
				dbPoolAcquires.Add(float64(acquires - lastAcquires))
				lastAcquires = acquires
			}
		}
	}
}
