package query

import (
	"cmp"
	"math"
)

// two63 is 2^63 as a float64, the first value above math.MaxInt64.
const two63 = float64(1 << 63)

func isNumber(v any) bool {
	switch v.(type) {
	case float64, int64, uint64:
		return true
	}
	return false
}

// compareNumbers orders float64, int64 and uint64 values without rounding
// the integers through float64. NaN is incomparable.
func compareNumbers(a, b any) (int, bool) {
	switch x := a.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		switch y := b.(type) {
		case float64:
			if math.IsNaN(y) {
				return 0, false
			}
			return cmp.Compare(x, y), true
		case int64:
			c, ok := compareIntFloat(y, x)
			return -c, ok
		case uint64:
			c, ok := compareUintFloat(y, x)
			return -c, ok
		}
	case int64:
		switch y := b.(type) {
		case float64:
			return compareIntFloat(x, y)
		case int64:
			return cmp.Compare(x, y), true
		case uint64:
			if x < 0 {
				return -1, true
			}
			return cmp.Compare(uint64(x), y), true
		}
	case uint64:
		switch y := b.(type) {
		case float64:
			return compareUintFloat(x, y)
		case int64:
			if y < 0 {
				return 1, true
			}
			return cmp.Compare(x, uint64(y)), true
		case uint64:
			return cmp.Compare(x, y), true
		}
	}
	return 0, false
}

func compareIntFloat(i int64, f float64) (int, bool) {
	switch {
	case math.IsNaN(f):
		return 0, false
	case f >= two63:
		return -1, true
	case f < -two63:
		return 1, true
	}
	t := math.Trunc(f)
	if c := cmp.Compare(i, int64(t)); c != 0 {
		return c, true
	}
	// Same integer part: the fraction decides.
	return cmp.Compare(t, f), true
}

func compareUintFloat(u uint64, f float64) (int, bool) {
	switch {
	case math.IsNaN(f):
		return 0, false
	case f < 0:
		return 1, true
	case f >= 2*two63:
		return -1, true
	}
	t := math.Trunc(f)
	if c := cmp.Compare(u, uint64(t)); c != 0 {
		return c, true
	}
	return cmp.Compare(t, f), true
}
