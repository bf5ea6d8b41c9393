package condition

import (
	"encoding/json"
	"math"
	"math/big"
	"reflect"
	"strings"
	"time"
)

func numeric(v any) (*big.Float, bool) {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return new(big.Float).SetInt64(i), true
		}
		f, err := n.Float64()
		if err != nil || math.IsNaN(f) {
			return nil, false
		}
		return new(big.Float).SetFloat64(f), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return new(big.Float).SetInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Float).SetUint64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) {
			return nil, false
		}
		return new(big.Float).SetFloat64(f), true
	}
	return nil, false
}

func stringOf(v any) (string, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return "", false
	}
	return rv.String(), true
}

func timeOf(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}

// timePair converts a (time, RFC 3339 string) pair so configured literals can
// be compared against time fields.
func timePair(a, b any) (time.Time, time.Time, bool) {
	ta, okA := timeOf(a)
	tb, okB := timeOf(b)
	switch {
	case okA && okB:
		return ta, tb, true
	case okA:
		if s, ok := stringOf(b); ok {
			if parsed, err := time.Parse(time.RFC3339, s); err == nil {
				return ta, parsed, true
			}
		}
	case okB:
		if s, ok := stringOf(a); ok {
			if parsed, err := time.Parse(time.RFC3339, s); err == nil {
				return parsed, tb, true
			}
		}
	}
	return time.Time{}, time.Time{}, false
}

// equal compares two values, normalising numeric and string kinds.
func equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if na, ok := numeric(a); ok {
		if nb, ok := numeric(b); ok {
			return na.Cmp(nb) == 0
		}
		return false
	}
	if sa, ok := stringOf(a); ok {
		if sb, ok := stringOf(b); ok {
			return sa == sb
		}
	}
	if ta, tb, ok := timePair(a, b); ok {
		return ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

// compare orders a against b. ok is false when the operands have no common ordering.
func compare(a, b any) (cmp int, ok bool) {
	if a == nil || b == nil {
		return 0, false
	}
	if na, isNum := numeric(a); isNum {
		nb, isNum := numeric(b)
		if !isNum {
			return 0, false
		}
		return na.Cmp(nb), true
	}
	if sa, isStr := stringOf(a); isStr {
		if sb, isStr := stringOf(b); isStr {
			return strings.Compare(sa, sb), true
		}
	}
	if ta, tb, isTime := timePair(a, b); isTime {
		return ta.Compare(tb), true
	}
	return 0, false
}

// contains tests membership of v in container. valid is false when the pair
// cannot be tested (container is not a container, or a non-string is
// searched for inside a string).
func contains(container, v any) (found, valid bool) {
	if container == nil {
		return false, false
	}
	rc := reflect.ValueOf(container)
	switch rc.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rc.Len(); i++ {
			if !rc.Index(i).CanInterface() {
				continue
			}
			if equal(rc.Index(i).Interface(), v) {
				return true, true
			}
		}
		return false, true
	case reflect.Map:
		iter := rc.MapRange()
		for iter.Next() {
			if equal(iter.Key().Interface(), v) {
				return true, true
			}
		}
		return false, true
	case reflect.String:
		s, ok := stringOf(v)
		if !ok {
			return false, false
		}
		return strings.Contains(rc.String(), s), true
	}
	return false, false
}
