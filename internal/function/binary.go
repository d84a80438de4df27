package function

import (
	"fmt"
)

// BinaryOperator merges two values of one property. A nil operand is the
// operator's identity element.
type BinaryOperator interface {
	Name() string
	Apply(a, b any) (any, error)
	// Commutative reports whether Apply(a, b) == Apply(b, a) for all a, b.
	Commutative() bool
	// Accepts reports whether the operator can merge values of class c.
	Accepts(c Class) bool
}

func identity(a, b any) (any, bool) {
	if a == nil {
		return b, true
	}
	if b == nil {
		return a, true
	}
	return nil, false
}

// Sum adds numbers. Two integers stay integral.
type Sum struct{}

func (Sum) Name() string          { return "Sum" }
func (Sum) Commutative() bool     { return true }
func (Sum) Accepts(c Class) bool  { return c.Numeric() || c == ClassAny }
func (Sum) Apply(a, b any) (any, error) {
	if v, ok := identity(a, b); ok {
		return v, nil
	}
	a, b = Normalise(a), Normalise(b)
	if isInteger(a) && isInteger(b) {
		x, _ := toInt64(a)
		y, _ := toInt64(b)
		_, aInt := a.(int)
		_, bInt := b.(int)
		if aInt && bInt {
			return int(x + y), nil
		}
		return x + y, nil
	}
	x, okA := toFloat64(a)
	y, okB := toFloat64(b)
	if !okA || !okB {
		return nil, fmt.Errorf("Sum: cannot add %T and %T", a, b)
	}
	return x + y, nil
}

// Max keeps the larger value.
type Max struct{}

func (Max) Name() string         { return "Max" }
func (Max) Commutative() bool    { return true }
func (Max) Accepts(c Class) bool { return c.Numeric() || c == ClassString || c == ClassAny }
func (Max) Apply(a, b any) (any, error) {
	if v, ok := identity(a, b); ok {
		return v, nil
	}
	c, ok := Compare(a, b)
	if !ok {
		return nil, fmt.Errorf("Max: cannot compare %T and %T", a, b)
	}
	if c >= 0 {
		return a, nil
	}
	return b, nil
}

// Min keeps the smaller value.
type Min struct{}

func (Min) Name() string         { return "Min" }
func (Min) Commutative() bool    { return true }
func (Min) Accepts(c Class) bool { return c.Numeric() || c == ClassString || c == ClassAny }
func (Min) Apply(a, b any) (any, error) {
	if v, ok := identity(a, b); ok {
		return v, nil
	}
	c, ok := Compare(a, b)
	if !ok {
		return nil, fmt.Errorf("Min: cannot compare %T and %T", a, b)
	}
	if c <= 0 {
		return a, nil
	}
	return b, nil
}

// And is boolean conjunction.
type And struct{}

func (And) Name() string         { return "And" }
func (And) Commutative() bool    { return true }
func (And) Accepts(c Class) bool { return c == ClassBoolean || c == ClassAny }
func (And) Apply(a, b any) (any, error) {
	if v, ok := identity(a, b); ok {
		return v, nil
	}
	x, okA := a.(bool)
	y, okB := b.(bool)
	if !okA || !okB {
		return nil, fmt.Errorf("And: expected booleans, got %T and %T", a, b)
	}
	return x && y, nil
}

// Or is boolean disjunction.
type Or struct{}

func (Or) Name() string         { return "Or" }
func (Or) Commutative() bool    { return true }
func (Or) Accepts(c Class) bool { return c == ClassBoolean || c == ClassAny }
func (Or) Apply(a, b any) (any, error) {
	if v, ok := identity(a, b); ok {
		return v, nil
	}
	x, okA := a.(bool)
	y, okB := b.(bool)
	if !okA || !okB {
		return nil, fmt.Errorf("Or: expected booleans, got %T and %T", a, b)
	}
	return x || y, nil
}

// SetUnion merges string sets into a sorted, de-duplicated set.
type SetUnion struct{}

func (SetUnion) Name() string         { return "SetUnion" }
func (SetUnion) Commutative() bool    { return true }
func (SetUnion) Accepts(c Class) bool { return c == ClassSet || c == ClassAny }
func (SetUnion) Apply(a, b any) (any, error) {
	if v, ok := identity(a, b); ok {
		if v == nil {
			return nil, nil
		}
		s, ok := toStringSet(v)
		if !ok {
			return nil, fmt.Errorf("SetUnion: expected a set, got %T", v)
		}
		return s, nil
	}
	x, okA := toStringSet(a)
	y, okB := toStringSet(b)
	if !okA || !okB {
		return nil, fmt.Errorf("SetUnion: expected sets, got %T and %T", a, b)
	}
	return sortedUnique(append(x, y...)), nil
}

// MapSum merges frequency maps by summing counts per key.
type MapSum struct{}

func (MapSum) Name() string         { return "MapSum" }
func (MapSum) Commutative() bool    { return true }
func (MapSum) Accepts(c Class) bool { return c == ClassMap || c == ClassAny }
func (MapSum) Apply(a, b any) (any, error) {
	if v, ok := identity(a, b); ok {
		if v == nil {
			return nil, nil
		}
		m, ok := toFreqMap(v)
		if !ok {
			return nil, fmt.Errorf("MapSum: expected a map, got %T", v)
		}
		return m, nil
	}
	x, okA := toFreqMap(a)
	y, okB := toFreqMap(b)
	if !okA || !okB {
		return nil, fmt.Errorf("MapSum: expected maps, got %T and %T", a, b)
	}
	for k, n := range y {
		x[k] += n
	}
	return x, nil
}

// First keeps the existing value. Order dependent.
type First struct{}

func (First) Name() string         { return "First" }
func (First) Commutative() bool    { return false }
func (First) Accepts(Class) bool   { return true }
func (First) Apply(a, b any) (any, error) {
	if a != nil {
		return a, nil
	}
	return b, nil
}

// Last keeps the incoming value (last write wins). Order dependent.
type Last struct{}

func (Last) Name() string         { return "Last" }
func (Last) Commutative() bool    { return false }
func (Last) Accepts(Class) bool   { return true }
func (Last) Apply(a, b any) (any, error) {
	if b != nil {
		return b, nil
	}
	return a, nil
}
