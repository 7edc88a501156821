package normalize

import (
	"fmt"
	"regexp"

	"github.com/clearsight/scenario-audit-backend/internal/domain/audit"
	"github.com/clearsight/scenario-audit-backend/internal/domain/errors"
)

// Rule maps a failure-message pattern onto an error category. Patterns are
// regular expressions matched case-insensitively; plain substrings work
// unchanged.
type Rule struct {
	Category audit.ErrorCategory
	Pattern  string
}

type compiledRule struct {
	category audit.ErrorCategory
	re       *regexp.Regexp
}

// Categorizer classifies failure messages by running an ordered rule list.
// The first matching rule wins, so rule order is part of the contract:
// the default set checks timeout before calculation, which is why
// "calculation timed out" lands in timeout.
//
// A categorizer is stateless after construction and safe for concurrent use.
type Categorizer struct {
	rules []compiledRule
}

// DefaultRules returns the standard rule set in match order.
func DefaultRules() []Rule {
	return []Rule{
		{Category: audit.CategoryTimeout, Pattern: `timeout|timed out|deadline exceeded`},
		{Category: audit.CategoryValidation, Pattern: `validation|invalid|constraint`},
		{Category: audit.CategoryDatabase, Pattern: `database|sql|connection refused|deadlock`},
		{Category: audit.CategoryCalculation, Pattern: `calculation|compute|overflow|divide by zero`},
	}
}

// NewCategorizer compiles an ordered rule set. An invalid pattern fails
// construction; rules never compile per message.
func NewCategorizer(rules []Rule) (*Categorizer, error) {
	if len(rules) == 0 {
		return nil, errors.NewValidationError("EMPTY_RULE_SET",
			"categorizer requires at least one rule")
	}

	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		if rule.Category == "" {
			return nil, errors.NewValidationError("MISSING_CATEGORY",
				fmt.Sprintf("rule %d has no category", i))
		}

		re, err := regexp.Compile(`(?i)` + rule.Pattern)
		if err != nil {
			return nil, errors.NewValidationError("INVALID_RULE_PATTERN",
				fmt.Sprintf("rule %d (%s) does not compile", i, rule.Category)).WithCause(err)
		}

		compiled = append(compiled, compiledRule{category: rule.Category, re: re})
	}

	return &Categorizer{rules: compiled}, nil
}

// MustDefaultCategorizer builds the default categorizer. The default rule
// set is static, so compilation cannot fail.
func MustDefaultCategorizer() *Categorizer {
	c, err := NewCategorizer(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// Categorize classifies one failure message. Unmatched messages, including
// empty ones, are uncategorized.
func (c *Categorizer) Categorize(message string) audit.ErrorCategory {
	if message == "" {
		return audit.CategoryUncategorized
	}

	for _, rule := range c.rules {
		if rule.re.MatchString(message) {
			return rule.category
		}
	}
	return audit.CategoryUncategorized
}

// RuleCount returns the number of active rules
func (c *Categorizer) RuleCount() int {
	return len(c.rules)
}
