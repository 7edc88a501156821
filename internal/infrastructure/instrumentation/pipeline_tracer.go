package instrumentation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/telemetry"
	"github.com/clearsight/scenario-audit-backend/internal/service/pipeline"
)

// TracedRunner wraps the batch runner with OpenTelemetry spans. One span
// covers the whole batch; per-scenario detail stays in metrics and logs,
// where the cardinality belongs.
type TracedRunner struct {
	runner *pipeline.Runner
	tracer telemetry.TracerInterface
	logger *zap.Logger
}

// NewTracedRunner creates an instrumented batch runner
func NewTracedRunner(runner *pipeline.Runner, tracer telemetry.TracerInterface, logger *zap.Logger) *TracedRunner {
	return &TracedRunner{
		runner: runner,
		tracer: tracer,
		logger: logger,
	}
}

// Run executes one batch under a span and annotates it with the report
func (r *TracedRunner) Run(ctx context.Context, opts pipeline.Options) (*pipeline.BatchReport, error) {
	ctx, span := r.tracer.StartSpanWithAttributes(ctx, "pipeline.Run", map[string]interface{}{
		"batch.mode":     string(opts.Mode),
		"batch.scenario": opts.ScenarioID,
		"span.kind":      "internal",
		"component":      "pipeline",
	})
	defer span.End()

	start := time.Now()
	report, err := r.runner.Run(ctx, opts)
	elapsedMS := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		r.tracer.RecordError(span, err, "batch aborted")
		return nil, err
	}

	r.tracer.SetAttributes(span, map[string]interface{}{
		"batch.id":                  report.BatchID,
		"batch.scenarios_processed": report.ScenariosProcessed,
		"batch.scenarios_failed":    report.ScenariosFailed,
		"batch.events_new":          report.EventsNew,
		"batch.records_skipped":     report.RecordsSkipped,
		"batch.duration_ms":         elapsedMS,
	})

	if !report.Succeeded() {
		r.tracer.AddEvent(span, "scenarios_failed", map[string]interface{}{
			"scenario_ids": report.Failures,
		})
	}

	if traceID := r.tracer.GetTraceID(span); traceID != "" {
		r.logger.Debug("batch traced", zap.String("trace_id", traceID), zap.String("batch_id", report.BatchID))
	}

	return report, nil
}
