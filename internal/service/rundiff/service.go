package rundiff

import (
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

// Service answers "what changed between this run and the last good one".
type Service interface {
	// Compare diffs the target run against its baseline: the latest
	// successful run that started strictly before it. With no such run the
	// comparison covers everything since scenario creation.
	Compare(scenarioID, targetRunID string, runs []*audit.Run, changes []*audit.InputChangeRecord) (*audit.RunComparison, error)

	// CompareHistory is Compare over pre-built aggregates, for callers that
	// already hold a RunHistory and InputLog.
	CompareHistory(history *audit.RunHistory, log *audit.InputLog, targetRunID string) (*audit.RunComparison, error)
}

type service struct {
	logger *zap.Logger
}

// NewService creates a run comparison service
func NewService(logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{logger: logger}
}

func (s *service) Compare(scenarioID, targetRunID string, runs []*audit.Run, changes []*audit.InputChangeRecord) (*audit.RunComparison, error) {
	if scenarioID == "" {
		return nil, errors.NewValidationError("MISSING_SCENARIO_ID", "scenario id is required")
	}
	if targetRunID == "" {
		return nil, errors.NewValidationError("MISSING_RUN_ID", "target run id is required")
	}

	history := audit.NewRunHistory(scenarioID, runs)
	log := audit.NewInputLog(scenarioID, changes)
	return s.CompareHistory(history, log, targetRunID)
}

func (s *service) CompareHistory(history *audit.RunHistory, log *audit.InputLog, targetRunID string) (*audit.RunComparison, error) {
	target, err := history.Get(targetRunID)
	if err != nil {
		return nil, err
	}

	baseline := history.LatestSuccessBefore(target.StartedAt)

	// Window (baseline.StartedAt, target.StartedAt]. With no baseline the
	// left boundary is the zero time, so every change up to the target
	// counts.
	var after time.Time
	var gapSeconds float64
	if baseline != nil {
		after = baseline.StartedAt
		gapSeconds = target.StartedAt.Sub(baseline.StartedAt).Seconds()
	}

	comparison := &audit.RunComparison{
		ScenarioID:         history.ScenarioID(),
		RunA:               baseline,
		RunB:               target,
		TimeGapSeconds:     gapSeconds,
		ChangedNodes:       collectNodeChanges(log, after, target.StartedAt),
		BaselineIsCreation: baseline == nil,
	}

	s.logger.Debug("compared runs",
		zap.String("scenario_id", history.ScenarioID()),
		zap.String("target_run_id", targetRunID),
		zap.Bool("baseline_is_creation", comparison.BaselineIsCreation),
		zap.Int("changed_nodes", len(comparison.ChangedNodes)),
	)

	return comparison, nil
}

// collectNodeChanges folds each node's in-window changes into one entry:
// OldHash from the first change's predecessor, NewHash from the last.
// Nodes come out in sorted id order.
func collectNodeChanges(log *audit.InputLog, after, until time.Time) []audit.NodeChange {
	changed := make([]audit.NodeChange, 0)
	for _, nodeID := range log.NodeIDs() {
		inWindow := log.Node(nodeID).InWindow(after, until)
		if len(inWindow) == 0 {
			continue
		}

		first := inWindow[0]
		last := inWindow[len(inWindow)-1]
		changed = append(changed, audit.NodeChange{
			NodeID:      nodeID,
			OldHash:     first.PreviousHash,
			NewHash:     last.InputHash,
			ChangedBy:   last.ChangedBy,
			ChangedAt:   last.ChangedAt,
			ChangeCount: len(inWindow),
		})
	}
	return changed
}
