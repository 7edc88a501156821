package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/config"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/database"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/instrumentation"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/logsource"
	"github.com/clearsight/scenario-audit-backend/internal/infrastructure/telemetry"
	"github.com/clearsight/scenario-audit-backend/internal/metrics"
	"github.com/clearsight/scenario-audit-backend/internal/service/pipeline"
)

var (
	configPath = flag.String("config", "", "path to configuration file")
	mode       = flag.String("mode", "incremental", "batch mode: full, incremental, or scenario")
	scenarioID = flag.String("scenario-id", "", "scenario to reprocess (mode=scenario)")
	logPath    = flag.String("logs", "", "path to an NDJSON application log export")
	logDays    = flag.Int("log-days", 0, "trailing days of logs to extract, overriding the configured window")
	jsonReport = flag.Bool("json-report", false, "print the batch report as JSON on stdout")
)

func main() {
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	report, err := run(ctx, cfg, logger)
	if err != nil {
		logger.Error("batch failed", zap.Error(err))
		os.Exit(1)
	}

	if *jsonReport {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			logger.Error("encoding batch report", zap.Error(err))
			os.Exit(1)
		}
		fmt.Println(string(out))
	}

	if !report.Succeeded() {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*pipeline.BatchReport, error) {
	batchMode, err := pipeline.ParseMode(*mode)
	if err != nil {
		return nil, err
	}

	logger.Info("starting correlation batch",
		zap.String("mode", string(batchMode)),
		zap.String("scenario_id", *scenarioID),
		zap.Int("workers", cfg.Pipeline.Workers))

	telCfg := telemetry.DefaultConfig()
	telCfg.ServiceName = cfg.Telemetry.ServiceName + "-etl"
	telCfg.ServiceVersion = cfg.Version
	telCfg.Environment = cfg.Environment
	telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	telCfg.Enabled = cfg.Telemetry.MetricsEnabled

	provider, err := telemetry.Setup(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		// Flush the batch's metrics before the process exits.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	registry, err := metrics.NewRegistry(telCfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}

	pool, err := database.NewPool(ctx, &cfg.Database, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	sources := database.NewSourceRepository(pool, logger)
	store := database.NewReportingRepository(pool, logger)

	var logs pipeline.LogProvider
	if *logPath != "" {
		fileLogs, err := logsource.NewFileProvider(*logPath, logger)
		if err != nil {
			return nil, fmt.Errorf("loading log export: %w", err)
		}
		logs = fileLogs
	} else {
		logs = logsource.NewStaticProvider(nil, logger)
	}

	logWindow := cfg.Pipeline.LogWindow
	if *logDays > 0 {
		logWindow = time.Duration(*logDays) * 24 * time.Hour
	}

	runner := instrumentation.NewTracedRunner(
		pipeline.NewRunner(sources, store, logs, registry, cfg.Pipeline.Workers, logger),
		telemetry.NewOpenTelemetryTracer(telCfg.ServiceName),
		logger)

	report, err := runner.Run(ctx, pipeline.Options{
		Mode:       batchMode,
		ScenarioID: *scenarioID,
		LogWindow:  logWindow,
		SessionGap: cfg.Correlation.SessionGap,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("batch complete",
		zap.String("batch_id", report.BatchID),
		zap.Int("scenarios_processed", report.ScenariosProcessed),
		zap.Int("scenarios_failed", report.ScenariosFailed),
		zap.Int("events_new", report.EventsNew),
		zap.Int("runs_loaded", report.RunsLoaded),
		zap.Int("sessions_loaded", report.SessionsLoaded),
		zap.Int("records_skipped", report.RecordsSkipped),
		zap.Int("anomalies", report.Anomalies),
		zap.Bool("watermark_advanced", report.WatermarkAdvanced),
		zap.Duration("duration", report.Duration))

	return report, nil
}
