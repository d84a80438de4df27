package function

import (
	"fmt"
	"strings"
)

// Function maps selected input values to output values that a transformer
// projects back onto an element.
type Function interface {
	Name() string
	Apply(args ...any) ([]any, error)
}

// Identity returns its inputs unchanged.
type Identity struct{}

func (Identity) Name() string                    { return "Identity" }
func (Identity) Apply(args ...any) ([]any, error) { return append([]any(nil), args...), nil }

// ToString formats the first input. nil stays nil.
type ToString struct{}

func (ToString) Name() string { return "ToString" }
func (ToString) Apply(args ...any) ([]any, error) {
	v := first(args)
	if v == nil {
		return []any{nil}, nil
	}
	return []any{fmt.Sprint(v)}, nil
}

// ToUpper upper-cases a string input.
type ToUpper struct{}

func (ToUpper) Name() string { return "ToUpper" }
func (ToUpper) Apply(args ...any) ([]any, error) {
	v := first(args)
	if v == nil {
		return []any{nil}, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("ToUpper: expected string, got %T", v)
	}
	return []any{strings.ToUpper(s)}, nil
}

// Concat joins the non-nil inputs with Separator.
type Concat struct {
	Separator string `json:"separator,omitempty"`
}

func (Concat) Name() string { return "Concat" }
func (f Concat) Apply(args ...any) ([]any, error) {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a != nil {
			parts = append(parts, fmt.Sprint(a))
		}
	}
	return []any{strings.Join(parts, f.Separator)}, nil
}

// Multiply returns the product of its inputs, integral when every input is.
type Multiply struct{}

func (Multiply) Name() string { return "Multiply" }
func (Multiply) Apply(args ...any) ([]any, error) {
	if len(args) == 0 {
		return []any{nil}, nil
	}
	allInts := true
	var ip int64 = 1
	fp := 1.0
	for _, a := range args {
		a = Normalise(a)
		if a == nil {
			return []any{nil}, nil
		}
		f, ok := toFloat64(a)
		if !ok {
			return nil, fmt.Errorf("Multiply: %T is not numeric", a)
		}
		fp *= f
		if n, ok := toInt64(a); ok && isInteger(a) {
			ip *= n
		} else {
			allInts = false
		}
	}
	if allInts {
		return []any{ip}, nil
	}
	return []any{fp}, nil
}

// Length returns the length of a string, set, map or list.
type Length struct{}

func (Length) Name() string { return "Length" }
func (Length) Apply(args ...any) ([]any, error) {
	switch v := first(args).(type) {
	case nil:
		return []any{int64(0)}, nil
	case string:
		return []any{int64(len(v))}, nil
	case []string:
		return []any{int64(len(v))}, nil
	case []any:
		return []any{int64(len(v))}, nil
	case map[string]int64:
		return []any{int64(len(v))}, nil
	case map[string]any:
		return []any{int64(len(v))}, nil
	default:
		return nil, fmt.Errorf("Length: unsupported type %T", v)
	}
}

// Divide returns quotient and remainder of two inputs. Integer inputs give
// integer division; otherwise the remainder is zero.
type Divide struct{}

func (Divide) Name() string { return "Divide" }
func (Divide) Apply(args ...any) ([]any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("Divide: expected 2 inputs, got %d", len(args))
	}
	a, b := Normalise(args[0]), Normalise(args[1])
	if a == nil || b == nil {
		return []any{nil, nil}, nil
	}
	if isInteger(a) && isInteger(b) {
		x, _ := toInt64(a)
		y, _ := toInt64(b)
		if y == 0 {
			return nil, fmt.Errorf("Divide: division by zero")
		}
		return []any{x / y, x % y}, nil
	}
	x, okA := toFloat64(a)
	y, okB := toFloat64(b)
	if !okA || !okB {
		return nil, fmt.Errorf("Divide: cannot divide %T by %T", a, b)
	}
	if y == 0 {
		return nil, fmt.Errorf("Divide: division by zero")
	}
	return []any{x / y, 0.0}, nil
}
