package server

import (
	"encoding/json"
	"strings"

	"github.com/aretw0/firekit/pkg/adapters/query"
	"github.com/aretw0/firekit/pkg/core"
)

// ParseValue reads a filter operand: JSON when it parses, a plain string otherwise.
func ParseValue(raw string) any {
	if !json.Valid([]byte(raw)) {
		return raw
	}
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var v any
	if err := decoder.Decode(&v); err != nil {
		return raw
	}
	return query.Normalize(v)
}

// ParseFilters turns "field<op>value" expressions into one filter. Several
// expressions are combined with AND; none yields a nil filter.
func ParseFilters(exprs []string) (core.Filter, error) {
	filters := make([]core.Filter, 0, len(exprs))
	for _, expr := range exprs {
		f, err := core.ParseWhere(expr, ParseValue)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	switch len(filters) {
	case 0:
		return nil, nil
	case 1:
		return filters[0], nil
	default:
		return core.And(filters...), nil
	}
}
