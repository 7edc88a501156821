package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Registry holds the application's domain metrics
type Registry struct {
	meter metric.Meter

	// Pipeline Metrics
	EventsNormalized   metric.Int64Counter
	RecordsSkipped     metric.Int64Counter
	AnomaliesDetected  metric.Int64Counter
	ScenarioDuration   metric.Float64Histogram
	ScenarioSuccesses  metric.Int64Counter
	ScenarioFailures   metric.Int64Counter
	BatchDuration      metric.Float64Histogram
	ScenariosPerSecond metric.Float64ObservableGauge
	TaskQueueDepth     metric.Int64ObservableGauge

	// Timeline Metrics
	MergeDuration     metric.Float64Histogram
	DuplicatesDropped metric.Int64Counter

	// System Metrics
	DatabaseConnectionPool metric.Int64ObservableGauge
	CacheHitRate           metric.Float64ObservableGauge
	APIRequestDuration     metric.Float64Histogram
	APIRequestCounter      metric.Int64Counter

	// State for observable metrics
	mu                 sync.RWMutex
	taskQueueDepth     int64
	dbPoolSize         int64
	cacheHits          int64
	cacheMisses        int64
	scenariosProcessed int64
	lastScenarioCount  int64
	lastScenarioTime   time.Time
}

// NewRegistry creates a metrics registry on the globally configured meter
// provider.
func NewRegistry(meterName string) (*Registry, error) {
	return newRegistry(otel.Meter(meterName))
}

// NewNopRegistry creates a registry whose instruments record nowhere.
// Used by tests and callers that run without a meter provider.
func NewNopRegistry() *Registry {
	r, _ := newRegistry(noop.NewMeterProvider().Meter("nop"))
	return r
}

func newRegistry(meter metric.Meter) (*Registry, error) {
	r := &Registry{
		meter:            meter,
		lastScenarioTime: time.Now(),
	}

	if err := r.initPipelineMetrics(); err != nil {
		return nil, err
	}

	if err := r.initTimelineMetrics(); err != nil {
		return nil, err
	}

	if err := r.initSystemMetrics(); err != nil {
		return nil, err
	}

	return r, nil
}

// initPipelineMetrics initializes batch pipeline metrics
func (r *Registry) initPipelineMetrics() error {
	var err error

	r.EventsNormalized, err = r.meter.Int64Counter(
		"sab.pipeline.events_normalized_total",
		metric.WithDescription("Total canonical events produced by normalization"),
	)
	if err != nil {
		return err
	}

	r.RecordsSkipped, err = r.meter.Int64Counter(
		"sab.pipeline.records_skipped_total",
		metric.WithDescription("Total malformed source records skipped"),
	)
	if err != nil {
		return err
	}

	r.AnomaliesDetected, err = r.meter.Int64Counter(
		"sab.pipeline.anomalies_total",
		metric.WithDescription("Total data anomalies flagged during normalization and merge"),
	)
	if err != nil {
		return err
	}

	r.ScenarioDuration, err = r.meter.Float64Histogram(
		"sab.pipeline.scenario_duration",
		metric.WithDescription("Per-scenario processing duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 5, 10, 30, 60),
	)
	if err != nil {
		return err
	}

	r.ScenarioSuccesses, err = r.meter.Int64Counter(
		"sab.pipeline.scenario_success_total",
		metric.WithDescription("Total scenarios processed successfully"),
	)
	if err != nil {
		return err
	}

	r.ScenarioFailures, err = r.meter.Int64Counter(
		"sab.pipeline.scenario_failure_total",
		metric.WithDescription("Total scenarios that failed processing"),
	)
	if err != nil {
		return err
	}

	r.BatchDuration, err = r.meter.Float64Histogram(
		"sab.pipeline.batch_duration",
		metric.WithDescription("End-to-end batch duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 1, 5, 15, 60, 300, 600),
	)
	if err != nil {
		return err
	}

	r.ScenariosPerSecond, err = r.meter.Float64ObservableGauge(
		"sab.pipeline.scenario_throughput_per_second",
		metric.WithDescription("Current scenario processing throughput per second"),
		metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
			r.mu.Lock()
			defer r.mu.Unlock()

			now := time.Now()
			elapsed := now.Sub(r.lastScenarioTime).Seconds()
			if elapsed > 0 {
				rate := float64(r.scenariosProcessed-r.lastScenarioCount) / elapsed
				o.Observe(rate)
				r.lastScenarioCount = r.scenariosProcessed
				r.lastScenarioTime = now
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.TaskQueueDepth, err = r.meter.Int64ObservableGauge(
		"sab.pipeline.task_queue_depth",
		metric.WithDescription("Current depth of the worker pool task queue"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.taskQueueDepth)
			return nil
		}),
	)

	return err
}

// initTimelineMetrics initializes merge metrics
func (r *Registry) initTimelineMetrics() error {
	var err error

	r.MergeDuration, err = r.meter.Float64Histogram(
		"sab.timeline.merge_duration",
		metric.WithDescription("Timeline merge duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000),
	)
	if err != nil {
		return err
	}

	r.DuplicatesDropped, err = r.meter.Int64Counter(
		"sab.timeline.duplicates_dropped_total",
		metric.WithDescription("Total duplicate events collapsed during merge"),
	)

	return err
}

// initSystemMetrics initializes system-level metrics
func (r *Registry) initSystemMetrics() error {
	var err error

	r.DatabaseConnectionPool, err = r.meter.Int64ObservableGauge(
		"sab.system.db_connection_pool_size",
		metric.WithDescription("Current database connection pool size"),
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()
			o.Observe(r.dbPoolSize)
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.CacheHitRate, err = r.meter.Float64ObservableGauge(
		"sab.system.cache_hit_rate",
		metric.WithDescription("Timeline cache hit rate since start"),
		metric.WithFloat64Callback(func(ctx context.Context, o metric.Float64Observer) error {
			r.mu.RLock()
			defer r.mu.RUnlock()

			total := r.cacheHits + r.cacheMisses
			if total > 0 {
				o.Observe(float64(r.cacheHits) / float64(total))
			}
			return nil
		}),
	)
	if err != nil {
		return err
	}

	r.APIRequestDuration, err = r.meter.Float64Histogram(
		"sab.api.request_duration",
		metric.WithDescription("API request duration in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return err
	}

	r.APIRequestCounter, err = r.meter.Int64Counter(
		"sab.api.request_total",
		metric.WithDescription("Total number of API requests"),
	)

	return err
}

// Helper methods for updating observable metric values

// SetTaskQueueDepth sets the worker pool queue depth
func (r *Registry) SetTaskQueueDepth(depth int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.taskQueueDepth = depth
}

// SetDBPoolSize sets the database connection pool size
func (r *Registry) SetDBPoolSize(size int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dbPoolSize = size
}

// RecordCacheLookup counts one cache lookup toward the hit rate
func (r *Registry) RecordCacheLookup(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.cacheHits++
	} else {
		r.cacheMisses++
	}
}

// Helper methods for recording metrics with common attribute patterns

// RecordScenarioProcessed records one scenario task's outcome
func (r *Registry) RecordScenarioProcessed(ctx context.Context, duration time.Duration, mode string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	}

	r.ScenarioDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))

	if success {
		r.ScenarioSuccesses.Add(ctx, 1, metric.WithAttributes(attrs...))
	} else {
		r.ScenarioFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
	}

	r.mu.Lock()
	r.scenariosProcessed++
	r.mu.Unlock()
}

// RecordNormalization records one batch result's event and anomaly counts
func (r *Registry) RecordNormalization(ctx context.Context, events, skipped, anomalies int) {
	r.EventsNormalized.Add(ctx, int64(events))
	r.RecordsSkipped.Add(ctx, int64(skipped))
	r.AnomaliesDetected.Add(ctx, int64(anomalies))
}

// RecordMerge records one timeline merge
func (r *Registry) RecordMerge(ctx context.Context, duration time.Duration, duplicates int) {
	r.MergeDuration.Record(ctx, float64(duration.Microseconds())/1000.0)
	r.DuplicatesDropped.Add(ctx, int64(duplicates))
}

// RecordBatchCompleted records one pipeline batch
func (r *Registry) RecordBatchCompleted(ctx context.Context, duration time.Duration, mode string, success bool) {
	r.BatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", success),
	))
}

// RecordAPIRequest records API request metrics
func (r *Registry) RecordAPIRequest(ctx context.Context, duration float64, method, path string, statusCode int) {
	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("path", path),
		attribute.Int("status_code", statusCode),
	}

	r.APIRequestDuration.Record(ctx, duration, metric.WithAttributes(attrs...))
	r.APIRequestCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
