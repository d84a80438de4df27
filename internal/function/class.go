// Package function holds the value classes and the three function families a
// schema or view can reference: aggregate operators, predicates and
// transform functions.
package function

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Class names the Go representation of a property or vertex value.
type Class string

const (
	ClassString  Class = "string"
	ClassLong    Class = "long"
	ClassInt     Class = "int"
	ClassDouble  Class = "double"
	ClassBoolean Class = "boolean"
	// ClassSet values are sorted, de-duplicated []string.
	ClassSet Class = "set"
	// ClassMap values are map[string]int64 frequency maps.
	ClassMap Class = "map"
	ClassAny Class = "any"
)

var knownClasses = map[Class]bool{
	ClassString: true, ClassLong: true, ClassInt: true, ClassDouble: true,
	ClassBoolean: true, ClassSet: true, ClassMap: true, ClassAny: true,
}

// KnownClass reports whether c is a supported value class.
func KnownClass(c Class) bool {
	return knownClasses[c]
}

// Numeric reports whether values of c are numbers.
func (c Class) Numeric() bool {
	return c == ClassLong || c == ClassInt || c == ClassDouble
}

// Coerce converts a decoded value into the Go type of class c.
// nil is passed through unchanged.
func Coerce(c Class, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	v = Normalise(v)
	switch c {
	case ClassAny:
		return v, nil
	case ClassString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ClassBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case ClassLong:
		if n, ok := toInt64(v); ok {
			return n, nil
		}
	case ClassInt:
		if n, ok := toInt64(v); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return int(n), nil
		}
	case ClassDouble:
		if f, ok := toFloat64(v); ok {
			return f, nil
		}
	case ClassSet:
		if s, ok := toStringSet(v); ok {
			return s, nil
		}
	case ClassMap:
		if m, ok := toFreqMap(v); ok {
			return m, nil
		}
	default:
		return nil, fmt.Errorf("unknown class %q", c)
	}
	return nil, fmt.Errorf("value %v (%T) is not a valid %s", v, v, c)
}

// Normalise turns json.Number into int64 when integral and float64 otherwise,
// recursing into slices and maps produced by a generic JSON decode.
func Normalise(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = Normalise(x)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = Normalise(x)
		}
		return out
	default:
		return v
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func isInteger(v any) bool {
	switch v.(type) {
	case int64, int, int32:
		return true
	}
	return false
}

func toStringSet(v any) ([]string, bool) {
	var items []string
	switch t := v.(type) {
	case []string:
		items = append(items, t...)
	case []any:
		for _, x := range t {
			s, ok := x.(string)
			if !ok {
				return nil, false
			}
			items = append(items, s)
		}
	default:
		return nil, false
	}
	return sortedUnique(items), true
}

func sortedUnique(items []string) []string {
	sort.Strings(items)
	out := items[:0]
	for i, s := range items {
		if i == 0 || s != items[i-1] {
			out = append(out, s)
		}
	}
	return out
}

func toFreqMap(v any) (map[string]int64, bool) {
	switch t := v.(type) {
	case map[string]int64:
		out := make(map[string]int64, len(t))
		for k, n := range t {
			out[k] = n
		}
		return out, true
	case map[string]any:
		out := make(map[string]int64, len(t))
		for k, x := range t {
			n, ok := toInt64(Normalise(x))
			if !ok {
				return nil, false
			}
			out[k] = n
		}
		return out, true
	}
	return nil, false
}

// Compare orders two values of the same comparable kind. Numbers of
// different Go types compare numerically. ok is false when the values are
// not mutually comparable (including nil).
func Compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	a, b = Normalise(a), Normalise(b)
	if isInteger(a) && isInteger(b) {
		x, _ := toInt64(a)
		y, _ := toInt64(b)
		return cmp(x < y, x > y), true
	}
	if x, ok := toFloat64(a); ok {
		if y, ok := toFloat64(b); ok {
			return cmp(x < y, x > y), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return cmp(x < y, x > y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmp(!x && y, x && !y), true
		}
	}
	return 0, false
}

func cmp(less, more bool) int {
	switch {
	case less:
		return -1
	case more:
		return 1
	default:
		return 0
	}
}

// Equal compares values numerically where possible and structurally
// otherwise.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := Compare(a, b); ok {
		return c == 0
	}
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(x) == string(y)
}
