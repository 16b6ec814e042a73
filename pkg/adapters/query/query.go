// Package query evaluates core.Filter values against decoded documents and
// implements merge writes for the adapters that do not have a native query
// engine (memory, fs, sqlite).
package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/firekit/pkg/core"
)

// Match reports whether data satisfies f. A nil filter matches everything.
func Match(f core.Filter, data map[string]any) (bool, error) {
	if f == nil {
		return true, nil
	}
	switch v := f.(type) {
	case core.FieldFilter:
		return matchField(v, data)
	case *core.FieldFilter:
		return matchField(*v, data)
	case core.CompositeFilter:
		return matchComposite(v, data)
	case *core.CompositeFilter:
		return matchComposite(*v, data)
	default:
		return false, fmt.Errorf("%w: unsupported filter type %T", core.ErrInvalidArgument, f)
	}
}

func matchComposite(f core.CompositeFilter, data map[string]any) (bool, error) {
	switch f.Op {
	case core.CompositeAnd:
		for _, sub := range f.Filters {
			ok, err := Match(sub, data)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case core.CompositeOr:
		for _, sub := range f.Filters {
			ok, err := Match(sub, data)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unsupported composite operator %q", core.ErrInvalidArgument, f.Op)
	}
}

func matchField(f core.FieldFilter, data map[string]any) (bool, error) {
	if !f.Op.Valid() {
		return false, fmt.Errorf("%w: unsupported operator %q", core.ErrInvalidArgument, f.Op)
	}
	got, present := Lookup(data, f.Field)
	want := Normalize(f.Value)

	switch f.Op {
	case core.OpEqual:
		return present && equal(got, want), nil
	case core.OpNotEqual:
		// Firestore semantics: documents lacking the field never match.
		return present && !equal(got, want), nil
	case core.OpLess, core.OpLessOrEqual, core.OpGreater, core.OpGreaterOrEqual:
		if !present {
			return false, nil
		}
		c, ok := compare(got, want)
		if !ok {
			return false, nil
		}
		switch f.Op {
		case core.OpLess:
			return c < 0, nil
		case core.OpLessOrEqual:
			return c <= 0, nil
		case core.OpGreater:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case core.OpIn, core.OpNotIn:
		list, ok := want.([]any)
		if !ok {
			return false, fmt.Errorf("%w: operator %q needs a list value", core.ErrInvalidArgument, f.Op)
		}
		if !present {
			return false, nil
		}
		found := containsValue(list, got)
		if f.Op == core.OpIn {
			return found, nil
		}
		return !found, nil
	case core.OpArrayContains:
		arr, ok := got.([]any)
		return present && ok && containsValue(arr, want), nil
	case core.OpArrayContainsAny:
		list, ok := want.([]any)
		if !ok {
			return false, fmt.Errorf("%w: operator %q needs a list value", core.ErrInvalidArgument, f.Op)
		}
		arr, ok := got.([]any)
		if !present || !ok {
			return false, nil
		}
		for _, candidate := range list {
			if containsValue(arr, candidate) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

// Lookup resolves a dotted field path inside nested maps.
func Lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func containsValue(list []any, v any) bool {
	for _, item := range list {
		if equal(item, v) {
			return true
		}
	}
	return false
}

func equal(a, b any) bool {
	if c, ok := compare(a, b); ok {
		return c == 0
	}
	return reflect.DeepEqual(a, b)
}

// compare orders numbers and strings. ok is false for incomparable values.
func compare(a, b any) (int, bool) {
	if isNumber(a) && isNumber(b) {
		return compareNumbers(a, b)
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

// maxExactInt is the largest magnitude float64 holds without rounding.
const maxExactInt = 1 << 53

// Normalize converts arbitrary Go values into the JSON data model
// (map[string]any, []any, float64, string, bool, nil) so that values coming
// from callers compare equal to values decoded from storage. Integers that
// float64 cannot hold exactly stay int64, or uint64 above math.MaxInt64.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x
	case json.Number:
		return normalizeNumber(x)
	case int:
		return normalizeInt(int64(x))
	case int8:
		return float64(x)
	case int16:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return normalizeInt(x)
	case uint:
		return normalizeUint(uint64(x))
	case uint8:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	case uint64:
		return normalizeUint(x)
	case float32:
		return float64(x)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = Normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = Normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Normalize(val)
		}
		return out
	}

	// Fall back to a JSON round trip for structs, typed slices and maps.
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return Normalize(out)
}

func normalizeInt(i int64) any {
	if i >= -maxExactInt && i <= maxExactInt {
		return float64(i)
	}
	return i
}

func normalizeUint(u uint64) any {
	switch {
	case u <= maxExactInt:
		return float64(u)
	case u <= math.MaxInt64:
		return int64(u)
	}
	return u
}

func normalizeNumber(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return normalizeInt(i)
	}
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return normalizeUint(u)
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

// Merge applies patch on top of base. Nested maps are merged recursively,
// every other value in patch overwrites base. base is not modified.
func Merge(base, patch map[string]any) map[string]any {
	out := Clone(base)
	if out == nil {
		out = make(map[string]any, len(patch))
	}
	for k, v := range patch {
		pm, pok := v.(map[string]any)
		bm, bok := out[k].(map[string]any)
		if pok && bok {
			out[k] = Merge(bm, pm)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Clone deep-copies a document payload.
func Clone(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return Clone(x)
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// Filter returns the documents matching f, sorted by ID.
func Filter(docs []core.Document, f core.Filter) ([]core.Document, error) {
	out := make([]core.Document, 0, len(docs))
	for _, d := range docs {
		ok, err := Match(f, d.Data)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	SortByID(out)
	return out, nil
}

// SortByID orders documents deterministically.
func SortByID(docs []core.Document) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
}
