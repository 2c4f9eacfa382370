package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// SortableModifiedField is the indexed form of the modification date.
	SortableModifiedField = "modified_sortable"
	// FilterParameter is the task parameter key holding the filter expression.
	FilterParameter = "filter"
)

type FilterOp string

const (
	FilterEq FilterOp = "eq"
	FilterNe FilterOp = "ne"
	FilterGt FilterOp = "gt"
	FilterGe FilterOp = "ge"
	FilterLt FilterOp = "lt"
	FilterLe FilterOp = "le"
)

// Filter is a single "field op value" predicate.
type Filter struct {
	Field string
	Op    FilterOp
	Value string
}

// ModifiedSinceFilter selects records modified at or after since.
func ModifiedSinceFilter(since time.Time) string {
	return fmt.Sprintf("%s %s %d", SortableModifiedField, FilterGe, since.UnixMilli())
}

func ParseFilter(expr string) (Filter, error) {
	parts := strings.Fields(expr)
	if len(parts) != 3 {
		return Filter{}, fmt.Errorf("malformed filter %q: want \"field op value\"", expr)
	}
	op := FilterOp(strings.ToLower(parts[1]))
	switch op {
	case FilterEq, FilterNe, FilterGt, FilterGe, FilterLt, FilterLe:
	default:
		return Filter{}, fmt.Errorf("malformed filter %q: unknown operator %q", expr, parts[1])
	}
	return Filter{Field: parts[0], Op: op, Value: parts[2]}, nil
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %s", f.Field, f.Op, f.Value)
}

// Time interprets Value as epoch milliseconds.
func (f Filter) Time() (time.Time, error) {
	ms, err := strconv.ParseInt(f.Value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("filter value %q is not epoch millis: %w", f.Value, err)
	}
	return time.UnixMilli(ms), nil
}

// SQLOperator maps Op to its SQL comparison.
func (f Filter) SQLOperator() string {
	switch f.Op {
	case FilterEq:
		return "="
	case FilterNe:
		return "<>"
	case FilterGt:
		return ">"
	case FilterGe:
		return ">="
	case FilterLt:
		return "<"
	default:
		return "<="
	}
}
