package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

func TestCategorizer_DefaultRules(t *testing.T) {
	c := MustDefaultCategorizer()

	tests := []struct {
		name    string
		message string
		want    audit.ErrorCategory
	}{
		{
			name:    "timeout keyword",
			message: "run timed out after 300s",
			want:    audit.CategoryTimeout,
		},
		{
			name:    "deadline exceeded",
			message: "context deadline exceeded while waiting for node",
			want:    audit.CategoryTimeout,
		},
		{
			name:    "validation failure",
			message: "validation failed: volume must be positive",
			want:    audit.CategoryValidation,
		},
		{
			name:    "invalid keyword",
			message: "Invalid node reference in scenario graph",
			want:    audit.CategoryValidation,
		},
		{
			name:    "database failure",
			message: "pq: connection refused",
			want:    audit.CategoryDatabase,
		},
		{
			name:    "deadlock",
			message: "deadlock detected on rpt.audit_event",
			want:    audit.CategoryDatabase,
		},
		{
			name:    "calculation failure",
			message: "overflow in projection compute step",
			want:    audit.CategoryCalculation,
		},
		{
			name:    "divide by zero",
			message: "divide by zero in growth rate",
			want:    audit.CategoryCalculation,
		},
		{
			name:    "unmatched message",
			message: "something unexpected happened",
			want:    audit.CategoryUncategorized,
		},
		{
			name:    "empty message",
			message: "",
			want:    audit.CategoryUncategorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Categorize(tt.message))
		})
	}
}

func TestCategorizer_TimeoutPrecedesCalculation(t *testing.T) {
	c := MustDefaultCategorizer()

	// Matches both the timeout and calculation rules; the earlier rule wins.
	assert.Equal(t, audit.CategoryTimeout, c.Categorize("calculation timed out"))
	assert.Equal(t, audit.CategoryTimeout, c.Categorize("Compute stage hit a TIMEOUT"))
}

func TestCategorizer_CaseInsensitive(t *testing.T) {
	c := MustDefaultCategorizer()

	assert.Equal(t, audit.CategoryTimeout, c.Categorize("TIMED OUT"))
	assert.Equal(t, audit.CategoryDatabase, c.Categorize("SQL error 1205"))
	assert.Equal(t, audit.CategoryValidation, c.Categorize("CONSTRAINT violated"))
}

func TestCategorizer_CustomRules(t *testing.T) {
	c, err := NewCategorizer([]Rule{
		{Category: "permission", Pattern: `permission denied|forbidden`},
		{Category: audit.CategoryTimeout, Pattern: `timeout`},
	})
	require.NoError(t, err)

	assert.Equal(t, audit.ErrorCategory("permission"), c.Categorize("Permission denied for analyst2"))
	assert.Equal(t, audit.CategoryTimeout, c.Categorize("gateway timeout"))
	assert.Equal(t, audit.CategoryUncategorized, c.Categorize("validation failed"))
	assert.Equal(t, 2, c.RuleCount())
}

func TestNewCategorizer_Validation(t *testing.T) {
	t.Run("empty rule set", func(t *testing.T) {
		_, err := NewCategorizer(nil)
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "EMPTY_RULE_SET"))
	})

	t.Run("missing category", func(t *testing.T) {
		_, err := NewCategorizer([]Rule{{Category: "", Pattern: "x"}})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "MISSING_CATEGORY"))
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := NewCategorizer([]Rule{{Category: audit.CategoryTimeout, Pattern: `([unclosed`}})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, "INVALID_RULE_PATTERN"))
	})
}

func TestCategorizer_RuleStability(t *testing.T) {
	corpus := []string{
		"run timed out after 300s",
		"validation failed on node-p4",
		"deadlock detected",
		"overflow in compute",
		"mystery failure",
		"calculation timed out",
		"",
	}

	c := MustDefaultCategorizer()

	first := make([]audit.ErrorCategory, len(corpus))
	for i, msg := range corpus {
		first[i] = c.Categorize(msg)
	}

	// Same corpus, same rules: results must be identical on every pass.
	for pass := 0; pass < 3; pass++ {
		for i, msg := range corpus {
			assert.Equal(t, first[i], c.Categorize(msg), "pass %d message %q", pass, msg)
		}
	}
}
