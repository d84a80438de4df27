package function

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Named is implemented by every encodable function.
type Named interface {
	Name() string
}

var binaryOperators = map[string]func() BinaryOperator{
	"Sum":      func() BinaryOperator { return Sum{} },
	"Max":      func() BinaryOperator { return Max{} },
	"Min":      func() BinaryOperator { return Min{} },
	"And":      func() BinaryOperator { return And{} },
	"Or":       func() BinaryOperator { return Or{} },
	"SetUnion": func() BinaryOperator { return SetUnion{} },
	"MapSum":   func() BinaryOperator { return MapSum{} },
	"First":    func() BinaryOperator { return First{} },
	"Last":     func() BinaryOperator { return Last{} },
}

var predicates = map[string]func() Predicate{
	"Exists":       func() Predicate { return &Exists{} },
	"IsEqual":      func() Predicate { return &IsEqual{} },
	"IsIn":         func() Predicate { return &IsIn{} },
	"IsLessThan":   func() Predicate { return &IsLessThan{} },
	"IsMoreThan":   func() Predicate { return &IsMoreThan{} },
	"InRange":      func() Predicate { return &InRange{} },
	"Regex":        func() Predicate { return &Regex{} },
	"IsTrue":       func() Predicate { return &IsTrue{} },
	"IsFalse":      func() Predicate { return &IsFalse{} },
	"Not":          func() Predicate { return &Not{} },
	"Or":           func() Predicate { return &AnyOf{} },
	"And":          func() Predicate { return &AllOf{} },
	"IsXLessThanY": func() Predicate { return &IsXLessThanY{} },
	"IsXMoreThanY": func() Predicate { return &IsXMoreThanY{} },
}

var functions = map[string]func() Function{
	"Identity": func() Function { return &Identity{} },
	"ToString": func() Function { return &ToString{} },
	"ToUpper":  func() Function { return &ToUpper{} },
	"Concat":   func() Function { return &Concat{} },
	"Multiply": func() Function { return &Multiply{} },
	"Length":   func() Function { return &Length{} },
	"Divide":   func() Function { return &Divide{} },
}

// LookupBinaryOperator returns the operator registered under name.
func LookupBinaryOperator(name string) (BinaryOperator, bool) {
	f, ok := binaryOperators[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// MarshalFunc encodes f as {"class": name, ...fields}.
func MarshalFunc(f Named) ([]byte, error) {
	if f == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	class, _ := json.Marshal(f.Name())
	body = bytes.TrimSpace(body)
	if bytes.Equal(body, []byte("{}")) || bytes.Equal(body, []byte("null")) {
		return []byte(`{"class":` + string(class) + `}`), nil
	}
	if len(body) == 0 || body[0] != '{' {
		return nil, fmt.Errorf("function %s did not encode as an object", f.Name())
	}
	var buf bytes.Buffer
	buf.WriteString(`{"class":`)
	buf.Write(class)
	buf.WriteByte(',')
	buf.Write(body[1:])
	return buf.Bytes(), nil
}

func classOf(data []byte) (string, error) {
	var head struct {
		Class string `json:"class"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", err
	}
	if head.Class == "" {
		return "", fmt.Errorf("missing class discriminator")
	}
	return head.Class, nil
}

func decodeInto(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(target)
}

// UnmarshalBinaryOperator decodes an aggregate function from the allow-list.
func UnmarshalBinaryOperator(data []byte) (BinaryOperator, error) {
	class, err := classOf(data)
	if err != nil {
		return nil, fmt.Errorf("aggregate function: %w", err)
	}
	op, ok := LookupBinaryOperator(class)
	if !ok {
		return nil, fmt.Errorf("unknown aggregate function %q", class)
	}
	return op, nil
}

// UnmarshalPredicate decodes a predicate from the allow-list.
func UnmarshalPredicate(data []byte) (Predicate, error) {
	class, err := classOf(data)
	if err != nil {
		return nil, fmt.Errorf("predicate: %w", err)
	}
	newPred, ok := predicates[class]
	if !ok {
		return nil, fmt.Errorf("unknown predicate %q", class)
	}
	p := newPred()
	if err := decodeInto(data, p); err != nil {
		return nil, fmt.Errorf("predicate %s: %w", class, err)
	}
	normalisePredicate(p)
	return p, nil
}

// UnmarshalFunction decodes a transform function from the allow-list.
func UnmarshalFunction(data []byte) (Function, error) {
	class, err := classOf(data)
	if err != nil {
		return nil, fmt.Errorf("function: %w", err)
	}
	newFn, ok := functions[class]
	if !ok {
		return nil, fmt.Errorf("unknown function %q", class)
	}
	f := newFn()
	if err := decodeInto(data, f); err != nil {
		return nil, fmt.Errorf("function %s: %w", class, err)
	}
	return f, nil
}

// normalisePredicate converts json.Number literals into int64/float64.
func normalisePredicate(p Predicate) {
	switch t := p.(type) {
	case *IsEqual:
		t.Value = Normalise(t.Value)
	case *IsIn:
		for i := range t.Values {
			t.Values[i] = Normalise(t.Values[i])
		}
	case *IsLessThan:
		t.Value = Normalise(t.Value)
	case *IsMoreThan:
		t.Value = Normalise(t.Value)
	case *InRange:
		t.Start = Normalise(t.Start)
		t.End = Normalise(t.End)
	}
}
