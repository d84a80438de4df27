package function

import (
	"encoding/json"
	"regexp"
)

// Predicate tests one or more selected values. Unless documented
// otherwise a predicate reads only its first argument, and a missing
// argument is nil.
type Predicate interface {
	Name() string
	Test(args ...any) bool
}

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

// Exists passes when the value is non-nil.
type Exists struct{}

func (Exists) Name() string            { return "Exists" }
func (Exists) Test(args ...any) bool   { return first(args) != nil }

// IsEqual passes when the value equals Value. nil equals only nil.
type IsEqual struct {
	Value any `json:"value"`
}

func (IsEqual) Name() string            { return "IsEqual" }
func (p IsEqual) Test(args ...any) bool { return Equal(first(args), p.Value) }

// IsIn passes when the value equals one of Values. nil never passes.
type IsIn struct {
	Values []any `json:"values"`
}

func (IsIn) Name() string { return "IsIn" }
func (p IsIn) Test(args ...any) bool {
	v := first(args)
	if v == nil {
		return false
	}
	for _, x := range p.Values {
		if Equal(v, x) {
			return true
		}
	}
	return false
}

// IsLessThan passes when the value is below Value. nil is never less than
// anything, so nil rejects.
type IsLessThan struct {
	Value     any  `json:"value"`
	OrEqualTo bool `json:"orEqualTo,omitempty"`
}

func (IsLessThan) Name() string { return "IsLessThan" }
func (p IsLessThan) Test(args ...any) bool {
	c, ok := Compare(first(args), p.Value)
	return ok && (c < 0 || (p.OrEqualTo && c == 0))
}

// IsMoreThan passes when the value is above Value. nil rejects.
type IsMoreThan struct {
	Value     any  `json:"value"`
	OrEqualTo bool `json:"orEqualTo,omitempty"`
}

func (IsMoreThan) Name() string { return "IsMoreThan" }
func (p IsMoreThan) Test(args ...any) bool {
	c, ok := Compare(first(args), p.Value)
	return ok && (c > 0 || (p.OrEqualTo && c == 0))
}

// InRange passes for Start <= value < End (value <= End when EndInclusive).
// A nil bound is open. A nil value rejects.
type InRange struct {
	Start        any  `json:"start,omitempty"`
	End          any  `json:"end,omitempty"`
	EndInclusive bool `json:"endInclusive,omitempty"`
}

func (InRange) Name() string { return "InRange" }
func (p InRange) Test(args ...any) bool {
	v := first(args)
	if v == nil {
		return false
	}
	if p.Start != nil {
		c, ok := Compare(v, p.Start)
		if !ok || c < 0 {
			return false
		}
	}
	if p.End != nil {
		c, ok := Compare(v, p.End)
		if !ok || c > 0 || (c == 0 && !p.EndInclusive) {
			return false
		}
	}
	return true
}

// Regex passes when a string value fully matches Pattern. Non-strings and
// nil reject.
type Regex struct {
	Pattern string `json:"pattern"`
	re      *regexp.Regexp
}

// NewRegex compiles pattern anchored to the whole value.
func NewRegex(pattern string) (*Regex, error) {
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, err
	}
	return &Regex{Pattern: pattern, re: re}, nil
}

func (*Regex) Name() string { return "Regex" }
func (p *Regex) Test(args ...any) bool {
	s, ok := first(args).(string)
	if !ok {
		return false
	}
	if p.re == nil {
		matched, err := regexp.MatchString("^(?:"+p.Pattern+")$", s)
		return err == nil && matched
	}
	return p.re.MatchString(s)
}

func (p *Regex) UnmarshalJSON(data []byte) error {
	var raw struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	compiled, err := NewRegex(raw.Pattern)
	if err != nil {
		return err
	}
	*p = *compiled
	return nil
}

// IsTrue passes for boolean true only.
type IsTrue struct{}

func (IsTrue) Name() string { return "IsTrue" }
func (IsTrue) Test(args ...any) bool {
	b, ok := first(args).(bool)
	return ok && b
}

// IsFalse passes for boolean false only; nil rejects.
type IsFalse struct{}

func (IsFalse) Name() string { return "IsFalse" }
func (IsFalse) Test(args ...any) bool {
	b, ok := first(args).(bool)
	return ok && !b
}

// Not inverts the wrapped predicate, including its nil handling.
type Not struct {
	Predicate Predicate `json:"predicate"`
}

func (Not) Name() string            { return "Not" }
func (p Not) Test(args ...any) bool { return !p.Predicate.Test(args...) }

func (p *Not) UnmarshalJSON(data []byte) error {
	var raw struct {
		Predicate json.RawMessage `json:"predicate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	inner, err := UnmarshalPredicate(raw.Predicate)
	if err != nil {
		return err
	}
	p.Predicate = inner
	return nil
}

func (p Not) MarshalJSON() ([]byte, error) {
	inner, err := MarshalFunc(p.Predicate)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]json.RawMessage{"predicate": inner})
}

// AnyOf passes when any wrapped predicate passes. Encoded as "Or".
type AnyOf struct {
	Predicates []Predicate `json:"predicates"`
}

func (AnyOf) Name() string { return "Or" }
func (p AnyOf) Test(args ...any) bool {
	for _, q := range p.Predicates {
		if q.Test(args...) {
			return true
		}
	}
	return false
}

func (p *AnyOf) UnmarshalJSON(data []byte) error {
	preds, err := unmarshalPredicateList(data)
	p.Predicates = preds
	return err
}

func (p AnyOf) MarshalJSON() ([]byte, error) { return marshalPredicateList(p.Predicates) }

// AllOf passes when every wrapped predicate passes. Encoded as "And".
type AllOf struct {
	Predicates []Predicate `json:"predicates"`
}

func (AllOf) Name() string { return "And" }
func (p AllOf) Test(args ...any) bool {
	for _, q := range p.Predicates {
		if !q.Test(args...) {
			return false
		}
	}
	return true
}

func (p *AllOf) UnmarshalJSON(data []byte) error {
	preds, err := unmarshalPredicateList(data)
	p.Predicates = preds
	return err
}

func (p AllOf) MarshalJSON() ([]byte, error) { return marshalPredicateList(p.Predicates) }

// IsXLessThanY compares two selected values. nil on either side rejects.
type IsXLessThanY struct{}

func (IsXLessThanY) Name() string { return "IsXLessThanY" }
func (IsXLessThanY) Test(args ...any) bool {
	if len(args) < 2 {
		return false
	}
	c, ok := Compare(args[0], args[1])
	return ok && c < 0
}

// IsXMoreThanY compares two selected values. nil on either side rejects.
type IsXMoreThanY struct{}

func (IsXMoreThanY) Name() string { return "IsXMoreThanY" }
func (IsXMoreThanY) Test(args ...any) bool {
	if len(args) < 2 {
		return false
	}
	c, ok := Compare(args[0], args[1])
	return ok && c > 0
}

func unmarshalPredicateList(data []byte) ([]Predicate, error) {
	var raw struct {
		Predicates []json.RawMessage `json:"predicates"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make([]Predicate, 0, len(raw.Predicates))
	for _, r := range raw.Predicates {
		p, err := UnmarshalPredicate(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func marshalPredicateList(preds []Predicate) ([]byte, error) {
	out := make([]json.RawMessage, 0, len(preds))
	for _, p := range preds {
		b, err := MarshalFunc(p)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return json.Marshal(map[string][]json.RawMessage{"predicates": out})
}
