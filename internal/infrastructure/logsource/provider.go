package logsource

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/clearsight/scenario-audit-backend/internal/service/normalize"
)

// Provider fetches application log records for one scenario. The pipeline
// consumes this seam; swapping in a real log-store client needs no pipeline
// changes.
type Provider interface {
	FetchLogRecords(ctx context.Context, scenarioID string, since time.Time) ([]normalize.LogRecord, error)
}

// StaticProvider serves log records from an in-memory set, loaded either
// directly or from a newline-delimited JSON file. It backs development and
// test runs where no log store is reachable.
type StaticProvider struct {
	records []normalize.LogRecord
	logger  *zap.Logger
}

// NewStaticProvider creates a provider over a fixed record set
func NewStaticProvider(records []normalize.LogRecord, logger *zap.Logger) *StaticProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StaticProvider{records: records, logger: logger}
}

// logLine is the wire form of one record in an NDJSON log file. A missing
// stream_offset maps to -1, meaning the source provided no position.
type logLine struct {
	Timestamp     time.Time `json:"timestamp"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlation_id"`
	ScenarioID    string    `json:"scenario_id"`
	RunID         string    `json:"run_id"`
	UserID        string    `json:"user_id"`
	StackTrace    string    `json:"stack_trace"`
	StreamOffset  *int64    `json:"stream_offset"`
}

// NewFileProvider loads records from a newline-delimited JSON file. Blank
// lines are skipped; a malformed line fails the load with its line number.
func NewFileProvider(path string, logger *zap.Logger) (*StaticProvider, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	// Stack traces can exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var records []normalize.LogRecord
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ll logLine
		if err := json.Unmarshal(line, &ll); err != nil {
			return nil, fmt.Errorf("parse log file %s line %d: %w", path, lineNo, err)
		}

		rec := normalize.LogRecord{
			Timestamp:     ll.Timestamp,
			Severity:      ll.Severity,
			Message:       ll.Message,
			CorrelationID: ll.CorrelationID,
			ScenarioID:    ll.ScenarioID,
			RunID:         ll.RunID,
			UserID:        ll.UserID,
			StackTrace:    ll.StackTrace,
			StreamOffset:  -1,
		}
		if ll.StreamOffset != nil {
			rec.StreamOffset = *ll.StreamOffset
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log file %s: %w", path, err)
	}

	provider := NewStaticProvider(records, logger)
	logger.Info("static log source loaded",
		zap.String("path", path),
		zap.Int("records", len(records)))
	return provider, nil
}

// FetchLogRecords returns the records for one scenario at or after since,
// ordered by timestamp then stream offset. A zero since means no lower bound.
func (p *StaticProvider) FetchLogRecords(ctx context.Context, scenarioID string, since time.Time) ([]normalize.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []normalize.LogRecord
	for _, rec := range p.records {
		if rec.ScenarioID != scenarioID {
			continue
		}
		if !since.IsZero() && rec.Timestamp.Before(since) {
			continue
		}
		out = append(out, rec)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].StreamOffset < out[j].StreamOffset
	})

	return out, nil
}
