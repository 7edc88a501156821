package fixtures

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/values"
)

// Hash returns a valid input hash built from one repeated hex digit, so
// assertions can tell versions apart by eye. The digit must be 0-9 or a-f.
func Hash(digit byte) values.InputHash {
	return values.MustInputHash(strings.Repeat(string(digit), 64))
}

// ChangeBuilder builds node input change records for tests
type ChangeBuilder struct {
	t          *testing.T
	scenarioID string
	nodeID     string
	hash       values.InputHash
	previous   *values.InputHash
	changedBy  string
	changedAt  time.Time
}

// NewChangeBuilder creates a ChangeBuilder defaulting to a node's first value
func NewChangeBuilder(t *testing.T, scenarioID, nodeID string) *ChangeBuilder {
	t.Helper()
	return &ChangeBuilder{
		t:          t,
		scenarioID: scenarioID,
		nodeID:     nodeID,
		hash:       Hash('a'),
		changedAt:  time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

// WithHash sets the new input hash
func (b *ChangeBuilder) WithHash(h values.InputHash) *ChangeBuilder {
	b.hash = h
	return b
}

// From sets the previous hash, making this an update rather than a creation
func (b *ChangeBuilder) From(previous values.InputHash) *ChangeBuilder {
	b.previous = &previous
	return b
}

// By sets the user who made the change
func (b *ChangeBuilder) By(user string) *ChangeBuilder {
	b.changedBy = user
	return b
}

// At sets when the change happened
func (b *ChangeBuilder) At(ts time.Time) *ChangeBuilder {
	b.changedAt = ts
	return b
}

// Build validates and returns the change record
func (b *ChangeBuilder) Build() *audit.InputChangeRecord {
	b.t.Helper()
	rec, err := audit.NewInputChangeRecord(b.scenarioID, b.nodeID, b.hash, b.changedAt)
	require.NoError(b.t, err)

	rec.PreviousHash = b.previous
	rec.ChangedBy = b.changedBy
	return rec
}
