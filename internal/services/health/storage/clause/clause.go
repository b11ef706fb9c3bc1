// Package clause composes SQL WHERE predicates for record statements.
//
// WhereClauses is immutable: every append returns a new value, so a partially
// built clause can be shared between requests without aliasing.
package clause

import (
	"strconv"
	"strings"
)

// Operator joins the fragments of one WhereClauses.
type Operator string

const (
	And Operator = "AND"
	Or  Operator = "OR"
)

// WhereClauses is an ordered set of predicate fragments joined by one operator.
type WhereClauses struct {
	op        Operator
	fragments []string
}

// New returns an empty clause set joined by op.
func New(op Operator) WhereClauses {
	if op != Or {
		op = And
	}
	return WhereClauses{op: op}
}

// Operator returns the joining operator.
func (w WhereClauses) Operator() Operator {
	if w.op == "" {
		return And
	}
	return w.op
}

// IsEmpty reports whether no fragment has been added.
func (w WhereClauses) IsEmpty() bool {
	return len(w.fragments) == 0
}

// Len returns the number of fragments.
func (w WhereClauses) Len() int {
	return len(w.fragments)
}

func (w WhereClauses) with(fragment string) WhereClauses {
	fragments := make([]string, len(w.fragments), len(w.fragments)+1)
	copy(fragments, w.fragments)
	return WhereClauses{op: w.Operator(), fragments: append(fragments, fragment)}
}

// Equal appends column = 'value'.
func (w WhereClauses) Equal(column, value string) WhereClauses {
	return w.with(column + " = " + Quote(value))
}

// NotEqual appends column != 'value'.
func (w WhereClauses) NotEqual(column, value string) WhereClauses {
	return w.with(column + " != " + Quote(value))
}

// EqualInt appends column = value.
func (w WhereClauses) EqualInt(column string, value int64) WhereClauses {
	return w.with(column + " = " + strconv.FormatInt(value, 10))
}

// In appends column IN ('a', 'b'). An empty value list matches nothing.
func (w WhereClauses) In(column string, values []string) WhereClauses {
	if len(values) == 0 {
		return w.with("1 = 0")
	}
	quoted := make([]string, len(values))
	for i, value := range values {
		quoted[i] = Quote(value)
	}
	return w.with(column + " IN (" + strings.Join(quoted, ", ") + ")")
}

// InInts appends column IN (1, 2). An empty value list matches nothing.
func (w WhereClauses) InInts(column string, values []int64) WhereClauses {
	if len(values) == 0 {
		return w.with("1 = 0")
	}
	formatted := make([]string, len(values))
	for i, value := range values {
		formatted[i] = strconv.FormatInt(value, 10)
	}
	return w.with(column + " IN (" + strings.Join(formatted, ", ") + ")")
}

// GreaterThan appends column > value.
func (w WhereClauses) GreaterThan(column string, value int64) WhereClauses {
	return w.with(column + " > " + strconv.FormatInt(value, 10))
}

// GreaterThanOrEqual appends column >= value.
func (w WhereClauses) GreaterThanOrEqual(column string, value int64) WhereClauses {
	return w.with(column + " >= " + strconv.FormatInt(value, 10))
}

// LessThan appends column < value.
func (w WhereClauses) LessThan(column string, value int64) WhereClauses {
	return w.with(column + " < " + strconv.FormatInt(value, 10))
}

// LessThanOrEqual appends column <= value.
func (w WhereClauses) LessThanOrEqual(column string, value int64) WhereClauses {
	return w.with(column + " <= " + strconv.FormatInt(value, 10))
}

// Nested appends other as a single fragment. A single-fragment clause is
// emitted bare; several fragments are parenthesized. Empty clauses are skipped.
func (w WhereClauses) Nested(other WhereClauses) WhereClauses {
	switch other.Len() {
	case 0:
		return w
	case 1:
		return w.with(other.fragments[0])
	default:
		return w.with("(" + other.Fragment() + ")")
	}
}

// Fragment renders the joined predicates without the WHERE keyword.
func (w WhereClauses) Fragment() string {
	return strings.Join(w.fragments, " "+string(w.Operator())+" ")
}

// String renders "WHERE ..." or the empty string when no fragment exists.
func (w WhereClauses) String() string {
	if w.IsEmpty() {
		return ""
	}
	return "WHERE " + w.Fragment()
}

// Quote renders value as a single-quoted SQL string literal.
func Quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
