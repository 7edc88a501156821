package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
	"github.com/clearsight/scenario-audit-backend/internal/metrics"
	"github.com/clearsight/scenario-audit-backend/internal/service/insights"
	"github.com/clearsight/scenario-audit-backend/internal/service/journey"
	"github.com/clearsight/scenario-audit-backend/internal/service/normalize"
	"github.com/clearsight/scenario-audit-backend/internal/service/timeline"
)

// Mode selects the batch scope
type Mode string

const (
	ModeFull        Mode = "full"
	ModeIncremental Mode = "incremental"
	ModeScenario    Mode = "scenario"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFull, ModeIncremental, ModeScenario:
		return Mode(s), nil
	default:
		return "", errors.NewValidationError("INVALID_MODE",
			"mode must be full, incremental, or scenario")
	}
}

// DefaultLogWindow bounds how far back log records are fetched per batch.
const DefaultLogWindow = 7 * 24 * time.Hour

// Options configures one batch
type Options struct {
	Mode       Mode
	ScenarioID string
	LogWindow  time.Duration
	SessionGap time.Duration
}

// BatchReport summarizes one pipeline batch
type BatchReport struct {
	BatchID            string        `json:"batch_id"`
	Mode               Mode          `json:"mode"`
	StartedAt          time.Time     `json:"started_at"`
	CompletedAt        time.Time     `json:"completed_at"`
	ScenariosProcessed int           `json:"scenarios_processed"`
	ScenariosFailed    int           `json:"scenarios_failed"`
	EventsLoaded       int           `json:"events_loaded"`
	EventsNew          int           `json:"events_new"`
	RunsLoaded         int           `json:"runs_loaded"`
	InputChangesLoaded int           `json:"input_changes_loaded"`
	SessionsLoaded     int           `json:"sessions_loaded"`
	RecordsSkipped     int           `json:"records_skipped"`
	Anomalies          int           `json:"anomalies"`
	WatermarkAdvanced  bool          `json:"watermark_advanced"`
	Duration           time.Duration `json:"duration"`
	Failures           []string      `json:"failures,omitempty"`
}

// Succeeded reports whether every scenario loaded cleanly
func (r *BatchReport) Succeeded() bool {
	return r.ScenariosFailed == 0
}

// Runner orchestrates correlation batches: extract per scenario, fan out
// over the worker pool, aggregate results, then run the batch-wide
// session and rollup passes. The canonical events themselves are produced
// by the pure services; the runner owns I/O, parallelism, and watermarks.
type Runner struct {
	sources    SourceReader
	store      ReportingStore
	logs       LogProvider
	registry   *metrics.Registry
	normalizer normalize.Service
	merger     *timeline.Merger
	journeys   journey.Service
	insight    insights.Service
	workers    int
	logger     *zap.Logger
}

// NewRunner creates a batch runner
func NewRunner(
	sources SourceReader,
	store ReportingStore,
	logs LogProvider,
	registry *metrics.Registry,
	workers int,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = metrics.NewNopRegistry()
	}
	if workers < 1 {
		workers = 4
	}

	journeys := journey.NewService(logger)
	return &Runner{
		sources:    sources,
		store:      store,
		logs:       logs,
		registry:   registry,
		normalizer: normalize.NewService(normalize.MustDefaultCategorizer(), logger),
		merger:     timeline.NewMerger(logger),
		journeys:   journeys,
		insight:    insights.NewService(journeys, logger),
		workers:    workers,
		logger:     logger,
	}
}

// Run executes one batch and reports what it loaded. Scenario-level
// failures are counted, not fatal; the returned error covers batch-level
// faults (listing scenarios, the session or rollup pass).
func (r *Runner) Run(ctx context.Context, opts Options) (*BatchReport, error) {
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.Mode == ModeScenario && opts.ScenarioID == "" {
		return nil, errors.NewValidationError("MISSING_SCENARIO_ID",
			"scenario mode requires a scenario id")
	}
	if opts.LogWindow <= 0 {
		opts.LogWindow = DefaultLogWindow
	}

	report := &BatchReport{
		BatchID:   uuid.NewString(),
		Mode:      opts.Mode,
		StartedAt: time.Now().UTC(),
	}
	logger := r.logger.With(
		zap.String("batch_id", report.BatchID),
		zap.String("mode", string(opts.Mode)),
	)

	since, err := r.resolveSince(ctx, opts.Mode)
	if err != nil {
		return nil, err
	}

	scenarioIDs, err := r.resolveScenarios(ctx, opts, since)
	if err != nil {
		return nil, err
	}
	logger.Info("starting batch",
		zap.Int("scenarios", len(scenarioIDs)),
		zap.Time("since", since),
		zap.Int("workers", r.workers))

	if r.advancesWatermark(opts.Mode) {
		r.markInProgress(ctx, report.StartedAt)
	}

	logSince := report.StartedAt.Add(-opts.LogWindow)
	pool := NewWorkerPool(ctx, r.workers, r.processTask(), logger)
	pool.Start()

	go func() {
		defer pool.Close()
		for _, scenarioID := range scenarioIDs {
			if !pool.Submit(Task{
				TaskID:     uuid.NewString(),
				ScenarioID: scenarioID,
				Since:      since,
				LogSince:   logSince,
			}) {
				return
			}
		}
	}()

	var batchRuns []*audit.Run
	var userActions []*audit.Event
	for result := range pool.Results() {
		r.registry.SetTaskQueueDepth(int64(pool.Status().QueuedTasks))
		r.registry.RecordScenarioProcessed(ctx, result.Duration, string(opts.Mode), result.Err == nil)

		if result.Err != nil {
			report.ScenariosFailed++
			report.Failures = append(report.Failures, result.ScenarioID)
			continue
		}

		report.ScenariosProcessed++
		report.EventsLoaded += result.EventsTotal
		report.EventsNew += result.EventsNew
		report.RunsLoaded += result.RunsLoaded
		report.InputChangesLoaded += result.ChangesLoaded
		report.RecordsSkipped += result.Skipped
		report.Anomalies += result.Anomalies
		batchRuns = append(batchRuns, result.Runs...)
		userActions = append(userActions, result.UserActions...)
	}
	sort.Strings(report.Failures)

	sessionsLoaded, err := r.loadSessions(ctx, userActions, opts.SessionGap)
	if err != nil {
		r.finishWatermark(ctx, report, false)
		return report, err
	}
	report.SessionsLoaded = sessionsLoaded

	if err := r.loadRollups(ctx, batchRuns); err != nil {
		r.finishWatermark(ctx, report, false)
		return report, err
	}

	r.finishWatermark(ctx, report, report.Succeeded())

	report.CompletedAt = time.Now().UTC()
	report.Duration = report.CompletedAt.Sub(report.StartedAt)
	r.registry.RecordBatchCompleted(ctx, report.Duration, string(opts.Mode), report.Succeeded())

	logger.Info("batch complete",
		zap.Int("scenarios_processed", report.ScenariosProcessed),
		zap.Int("scenarios_failed", report.ScenariosFailed),
		zap.Int("events_loaded", report.EventsLoaded),
		zap.Int("events_new", report.EventsNew),
		zap.Int("sessions_loaded", report.SessionsLoaded),
		zap.Int("records_skipped", report.RecordsSkipped),
		zap.Int("anomalies", report.Anomalies),
		zap.Bool("watermark_advanced", report.WatermarkAdvanced),
		zap.Duration("duration", report.Duration))

	return report, nil
}

// resolveSince picks the extraction cutoff: the stored watermark for
// incremental batches, everything otherwise.
func (r *Runner) resolveSince(ctx context.Context, mode Mode) (time.Time, error) {
	if mode != ModeIncremental {
		return time.Time{}, nil
	}

	wm, err := r.store.GetWatermark(ctx, WatermarkAuditTrail)
	if err != nil {
		return time.Time{}, errors.WrapWithCode(err, "WATERMARK_READ_FAILED",
			"could not read audit trail watermark")
	}
	if wm == nil {
		// First incremental run behaves like a full load.
		return time.Time{}, nil
	}
	return wm.LastLoadedAt, nil
}

func (r *Runner) resolveScenarios(ctx context.Context, opts Options, since time.Time) ([]string, error) {
	if opts.Mode == ModeScenario {
		return []string{opts.ScenarioID}, nil
	}

	ids, err := r.sources.ListScenarioIDs(ctx, since)
	if err != nil {
		return nil, errors.WrapWithCode(err, "SCENARIO_LIST_FAILED",
			"could not list scenarios to process")
	}
	return ids, nil
}

// advancesWatermark reports whether this mode owns the watermark. A
// targeted scenario backfill must not mask unprocessed changes elsewhere.
func (r *Runner) advancesWatermark(mode Mode) bool {
	return mode == ModeFull || mode == ModeIncremental
}

// markInProgress stamps the watermark before extraction starts. The
// loaded-through position carries over so a crash or failure mid-batch
// never loses it.
func (r *Runner) markInProgress(ctx context.Context, startedAt time.Time) {
	wm := &Watermark{
		Key:            WatermarkAuditTrail,
		LastRunStarted: startedAt,
		Status:         StatusInProgress,
	}
	if prev, err := r.store.GetWatermark(ctx, WatermarkAuditTrail); err == nil && prev != nil {
		wm.LastLoadedAt = prev.LastLoadedAt
	}

	if err := r.store.UpsertWatermark(ctx, wm); err != nil {
		r.logger.Warn("could not mark watermark in progress", zap.Error(err))
	}
}

// finishWatermark records the batch outcome. LastLoadedAt advances to the
// batch start time, and only on success, so rows written mid-batch are
// picked up again next run instead of lost.
func (r *Runner) finishWatermark(ctx context.Context, report *BatchReport, success bool) {
	if !r.advancesWatermark(report.Mode) {
		return
	}

	wm := &Watermark{
		Key:              WatermarkAuditTrail,
		LastRunStarted:   report.StartedAt,
		LastRunCompleted: time.Now().UTC(),
		RowsLoaded:       int64(report.EventsNew),
		Status:           StatusFailed,
	}
	if success {
		wm.LastLoadedAt = report.StartedAt
		wm.Status = StatusSuccess
		report.WatermarkAdvanced = true
	} else if prev, err := r.store.GetWatermark(ctx, WatermarkAuditTrail); err == nil && prev != nil {
		wm.LastLoadedAt = prev.LastLoadedAt
	}

	if err := r.store.UpsertWatermark(ctx, wm); err != nil {
		r.logger.Warn("could not update watermark", zap.Error(err))
		report.WatermarkAdvanced = false
	}
}

// processTask builds the worker body for this batch
func (r *Runner) processTask() ProcessFunc {
	return func(ctx context.Context, task Task) Result {
		res := Result{TaskID: task.TaskID, ScenarioID: task.ScenarioID}

		batch, err := r.extract(ctx, task.ScenarioID, task.LogSince)
		if err != nil {
			res.Err = err
			return res
		}

		normalized := r.normalizer.NormalizeBatch(*batch)
		res.Skipped = normalized.SkippedRecords
		res.Anomalies = normalized.AnomalyCount

		mergeStart := time.Now()
		merged, err := r.merger.MergeScenario(task.ScenarioID, normalized.EventSources())
		if err != nil {
			res.Err = err
			return res
		}
		res.Anomalies += len(merged.Anomalies)
		r.registry.RecordNormalization(ctx, len(merged.Events), res.Skipped, res.Anomalies)
		r.registry.RecordMerge(ctx, time.Since(mergeStart), merged.DuplicatesDropped)

		if res.Err = r.load(ctx, merged.Events, normalized, &res); res.Err != nil {
			return res
		}

		res.Runs = normalized.Runs
		for _, e := range merged.Events {
			if e.Type == audit.EventUserAction && e.Actor != "" {
				res.UserActions = append(res.UserActions, e)
			}
		}
		return res
	}
}

func (r *Runner) extract(ctx context.Context, scenarioID string, logSince time.Time) (*normalize.RecordBatch, error) {
	scenario, err := r.sources.FetchScenario(ctx, scenarioID)
	if err != nil {
		return nil, errors.WrapWithCode(err, "SCENARIO_FETCH_FAILED",
			"could not fetch scenario row")
	}

	nodeRows, err := r.sources.FetchNodeRows(ctx, scenarioID)
	if err != nil {
		return nil, errors.WrapWithCode(err, "NODE_FETCH_FAILED",
			"could not fetch node data rows")
	}

	runRows, err := r.sources.FetchRunRows(ctx, scenarioID)
	if err != nil {
		return nil, errors.WrapWithCode(err, "RUN_FETCH_FAILED",
			"could not fetch run rows")
	}

	logRecords, err := r.logs.FetchLogRecords(ctx, scenarioID, logSince)
	if err != nil {
		return nil, errors.WrapWithCode(err, "LOG_FETCH_FAILED",
			"could not fetch log records")
	}

	batch := &normalize.RecordBatch{
		NodeData: nodeRows,
		Runs:     runRows,
		Logs:     logRecords,
	}
	if scenario != nil {
		batch.Scenarios = []normalize.ScenarioRow{*scenario}
	}
	return batch, nil
}

func (r *Runner) load(ctx context.Context, events []*audit.Event, normalized *normalize.BatchResult, res *Result) error {
	newEvents, err := r.store.SaveEvents(ctx, events)
	if err != nil {
		return errors.WrapWithCode(err, "EVENT_LOAD_FAILED", "could not save events")
	}
	res.EventsTotal = len(events)
	res.EventsNew = newEvents

	if err := r.store.SaveRuns(ctx, normalized.Runs); err != nil {
		return errors.WrapWithCode(err, "RUN_LOAD_FAILED", "could not save runs")
	}
	res.RunsLoaded = len(normalized.Runs)

	if err := r.store.SaveInputChanges(ctx, normalized.InputChanges); err != nil {
		return errors.WrapWithCode(err, "INPUT_CHANGE_LOAD_FAILED", "could not save input changes")
	}
	res.ChangesLoaded = len(normalized.InputChanges)

	return nil
}

// loadSessions runs the batch-wide session pass: one grouping per user
// over that user's actions from every scenario in the batch.
func (r *Runner) loadSessions(ctx context.Context, userActions []*audit.Event, gap time.Duration) (int, error) {
	if len(userActions) == 0 {
		return 0, nil
	}

	byUser := make(map[string][]*audit.Event)
	users := make([]string, 0)
	for _, e := range userActions {
		if _, ok := byUser[e.Actor]; !ok {
			users = append(users, e.Actor)
		}
		byUser[e.Actor] = append(byUser[e.Actor], e)
	}
	sort.Strings(users)

	var sessions []*audit.Session
	for _, user := range users {
		grouped, err := r.journeys.GroupSessions(user, byUser[user], gap)
		if err != nil {
			return 0, err
		}
		sessions = append(sessions, grouped...)
	}

	if err := r.store.SaveSessions(ctx, sessions); err != nil {
		return 0, errors.WrapWithCode(err, "SESSION_LOAD_FAILED", "could not save sessions")
	}
	return len(sessions), nil
}

func (r *Runner) loadRollups(ctx context.Context, runs []*audit.Run) error {
	if len(runs) == 0 {
		return nil
	}

	rates := r.insight.DailySuccessRate(runs, insights.Window{})
	if err := r.store.SaveDailyRollups(ctx, rates); err != nil {
		return errors.WrapWithCode(err, "ROLLUP_LOAD_FAILED", "could not save daily rollups")
	}
	return nil
}
