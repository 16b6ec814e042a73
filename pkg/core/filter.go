package core

import (
	"fmt"
	"strings"
)

// Operator is a field comparison understood by store query engines.
type Operator string

const (
	OpEqual            Operator = "=="
	OpNotEqual         Operator = "!="
	OpLess             Operator = "<"
	OpLessOrEqual      Operator = "<="
	OpGreater          Operator = ">"
	OpGreaterOrEqual   Operator = ">="
	OpIn               Operator = "in"
	OpNotIn            Operator = "not-in"
	OpArrayContains    Operator = "array-contains"
	OpArrayContainsAny Operator = "array-contains-any"
)

// Valid reports whether op is a known operator.
func (op Operator) Valid() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual,
		OpIn, OpNotIn, OpArrayContains, OpArrayContainsAny:
		return true
	}
	return false
}

// Filter is an opaque predicate handed to the store unchanged.
// Only store adapters interpret it.
type Filter interface {
	filter()
	String() string
}

// FieldFilter compares one (possibly dotted) field path against a value.
type FieldFilter struct {
	Field string
	Op    Operator
	Value any
}

func (FieldFilter) filter() {}

func (f FieldFilter) String() string {
	return fmt.Sprintf("%s %s %v", f.Field, f.Op, f.Value)
}

// CompositeOp joins several filters.
type CompositeOp string

const (
	CompositeAnd CompositeOp = "and"
	CompositeOr  CompositeOp = "or"
)

// CompositeFilter combines filters with AND or OR.
type CompositeFilter struct {
	Op      CompositeOp
	Filters []Filter
}

func (CompositeFilter) filter() {}

func (f CompositeFilter) String() string {
	parts := make([]string, 0, len(f.Filters))
	for _, sub := range f.Filters {
		parts = append(parts, sub.String())
	}
	return "(" + strings.Join(parts, " "+string(f.Op)+" ") + ")"
}

// Where builds a field comparison.
func Where(field string, op Operator, value any) FieldFilter {
	return FieldFilter{Field: field, Op: op, Value: value}
}

// And matches documents satisfying every filter.
func And(filters ...Filter) CompositeFilter {
	return CompositeFilter{Op: CompositeAnd, Filters: filters}
}

// Or matches documents satisfying at least one filter.
func Or(filters ...Filter) CompositeFilter {
	return CompositeFilter{Op: CompositeOr, Filters: filters}
}

// ParseWhere parses the textual form "field<op>value" used by the CLI and the
// HTTP API, e.g. "status==open" or "age>=18". Values are parsed as JSON when
// possible and fall back to a plain string.
func ParseWhere(expr string, parseValue func(string) any) (FieldFilter, error) {
	// Word operators use a colon syntax: "tags:array-contains:go". The value
	// may itself contain symbols, so this form is tried first.
	if parts := strings.SplitN(expr, ":", 3); len(parts) == 3 {
		op := Operator(parts[1])
		field := strings.TrimSpace(parts[0])
		if op.Valid() && field != "" && !strings.ContainsAny(field, "=!<>") {
			return Where(field, op, parseValue(parts[2])), nil
		}
	}

	// The leftmost symbol operator splits field from value; at the same
	// position the longer operator wins so "<=" is not read as "<".
	ops := []Operator{OpEqual, OpNotEqual, OpLessOrEqual, OpGreaterOrEqual, OpLess, OpGreater}
	best, bestAt := Operator(""), -1
	for _, op := range ops {
		i := strings.Index(expr, string(op))
		if i < 0 {
			continue
		}
		if bestAt < 0 || i < bestAt || (i == bestAt && len(op) > len(best)) {
			best, bestAt = op, i
		}
	}
	if bestAt > 0 {
		field := strings.TrimSpace(expr[:bestAt])
		if field != "" {
			raw := strings.TrimSpace(expr[bestAt+len(best):])
			return Where(field, best, parseValue(raw)), nil
		}
	}
	return FieldFilter{}, fmt.Errorf("%w: invalid filter expression %q", ErrInvalidArgument, expr)
}
