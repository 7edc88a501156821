package querybuilder

import (
	"fmt"
	"strings"
)

// Builder assembles parameterized SELECT statements for the reporting
// schema. Conditions are ANDed in the order added; placeholders are
// numbered at Build time so callers never track positions themselves.
type Builder struct {
	table   string
	columns []string
	conds   []condition
	orders  []string
	limit   int
}

// Operator is the comparison applied by one condition
type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	// Any renders col = ANY($n) with a slice argument
	Any
	IsNull
	IsNotNull
)

type condition struct {
	column string
	op     Operator
	value  any
}

// Select starts a query over the given columns
func Select(columns ...string) *Builder {
	return &Builder{columns: columns}
}

// From sets the table
func (b *Builder) From(table string) *Builder {
	b.table = table
	return b
}

// Where adds one condition
func (b *Builder) Where(column string, op Operator, value any) *Builder {
	b.conds = append(b.conds, condition{column: column, op: op, value: value})
	return b
}

// WhereEqual adds an equality condition
func (b *Builder) WhereEqual(column string, value any) *Builder {
	return b.Where(column, Equal, value)
}

// WhereAny adds a membership condition against a slice argument
func (b *Builder) WhereAny(column string, values any) *Builder {
	return b.Where(column, Any, values)
}

// WhereTimeRange bounds column to [from, to]. Zero bounds are skipped, so
// callers can pass optional filters straight through.
func (b *Builder) WhereTimeRange(column string, from, to any) *Builder {
	if !isZeroTime(from) {
		b.Where(column, GreaterThanOrEqual, from)
	}
	if !isZeroTime(to) {
		b.Where(column, LessThanOrEqual, to)
	}
	return b
}

// OrderByAsc appends an ascending sort key
func (b *Builder) OrderByAsc(column string) *Builder {
	b.orders = append(b.orders, column+" ASC")
	return b
}

// OrderByDesc appends a descending sort key
func (b *Builder) OrderByDesc(column string) *Builder {
	b.orders = append(b.orders, column+" DESC")
	return b
}

// Limit caps the result set. Zero or negative means no limit.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Build renders the SQL and its ordered argument list
func (b *Builder) Build() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(b.columns, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	args := make([]any, 0, len(b.conds))
	for i, c := range b.conds {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}

		switch c.op {
		case IsNull:
			sb.WriteString(c.column + " IS NULL")
		case IsNotNull:
			sb.WriteString(c.column + " IS NOT NULL")
		case Any:
			args = append(args, c.value)
			fmt.Fprintf(&sb, "%s = ANY($%d)", c.column, len(args))
		default:
			args = append(args, c.value)
			fmt.Fprintf(&sb, "%s %s $%d", c.column, c.op.symbol(), len(args))
		}
	}

	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orders, ", "))
	}
	if b.limit > 0 {
		args = append(args, b.limit)
		fmt.Fprintf(&sb, " LIMIT $%d", len(args))
	}

	return sb.String(), args
}

func (op Operator) symbol() string {
	switch op {
	case Equal:
		return "="
	case NotEqual:
		return "<>"
	case GreaterThan:
		return ">"
	case GreaterThanOrEqual:
		return ">="
	case LessThan:
		return "<"
	case LessThanOrEqual:
		return "<="
	default:
		return "="
	}
}

type zeroable interface {
	IsZero() bool
}

func isZeroTime(v any) bool {
	if v == nil {
		return true
	}
	if z, ok := v.(zeroable); ok {
		return z.IsZero()
	}
	return false
}
