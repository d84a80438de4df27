package filter

import (
	"encoding/json"
	"fmt"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/function"
)

// TupleAdaptedFunction selects inputs, applies a function and projects the
// outputs onto property names.
type TupleAdaptedFunction struct {
	Selection  []string
	Function   function.Function
	Projection []string
}

type tupleAdaptedFunctionJSON struct {
	Selection  []string        `json:"selection"`
	Function   json.RawMessage `json:"function"`
	Projection []string        `json:"projection"`
}

func (f TupleAdaptedFunction) MarshalJSON() ([]byte, error) {
	fn, err := function.MarshalFunc(f.Function)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tupleAdaptedFunctionJSON{Selection: f.Selection, Function: fn, Projection: f.Projection})
}

func (f *TupleAdaptedFunction) UnmarshalJSON(data []byte) error {
	var raw tupleAdaptedFunctionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Projection) == 0 {
		return fmt.Errorf("function has an empty projection")
	}
	fn, err := function.UnmarshalFunction(raw.Function)
	if err != nil {
		return err
	}
	f.Selection = raw.Selection
	f.Function = fn
	f.Projection = raw.Projection
	return nil
}

// ElementTransformer runs its functions in declaration order; each step
// sees the outputs of the steps before it.
type ElementTransformer struct {
	Functions []TupleAdaptedFunction
}

// Apply transforms e in place. Outputs may create properties the schema
// does not declare; identifiers cannot be overwritten.
func (t *ElementTransformer) Apply(e *element.Element) error {
	if t == nil {
		return nil
	}
	for i, step := range t.Functions {
		out, err := step.Function.Apply(selectValues(e, step.Selection)...)
		if err != nil {
			return fmt.Errorf("transform step %d (%s) on group %s: %w", i, step.Function.Name(), e.Group, err)
		}
		if len(out) < len(step.Projection) {
			return fmt.Errorf("transform step %d (%s) on group %s returned %d values for %d projections",
				i, step.Function.Name(), e.Group, len(out), len(step.Projection))
		}
		for j, name := range step.Projection {
			if err := e.Put(name, out[j]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Empty reports whether the transformer has no steps.
func (t *ElementTransformer) Empty() bool {
	return t == nil || len(t.Functions) == 0
}

// ConcatTransformers returns a transformer running a's steps then b's.
func ConcatTransformers(a, b *ElementTransformer) *ElementTransformer {
	if a.Empty() {
		return b
	}
	if b.Empty() {
		return a
	}
	fns := make([]TupleAdaptedFunction, 0, len(a.Functions)+len(b.Functions))
	fns = append(fns, a.Functions...)
	fns = append(fns, b.Functions...)
	return &ElementTransformer{Functions: fns}
}

func (t ElementTransformer) MarshalJSON() ([]byte, error) {
	if t.Functions == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(t.Functions)
}

func (t *ElementTransformer) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &t.Functions)
}

// TransformerBuilder assembles transformers fluently.
type TransformerBuilder struct {
	fns       []TupleAdaptedFunction
	selection []string
	fn        function.Function
}

// NewTransformerBuilder starts an empty transformer.
func NewTransformerBuilder() *TransformerBuilder { return &TransformerBuilder{} }

// Select names the inputs of the next function.
func (b *TransformerBuilder) Select(names ...string) *TransformerBuilder {
	b.selection = names
	return b
}

// Execute sets the next function.
func (b *TransformerBuilder) Execute(fn function.Function) *TransformerBuilder {
	b.fn = fn
	return b
}

// Project names the outputs and completes the step.
func (b *TransformerBuilder) Project(names ...string) *TransformerBuilder {
	b.fns = append(b.fns, TupleAdaptedFunction{Selection: b.selection, Function: b.fn, Projection: names})
	b.selection, b.fn = nil, nil
	return b
}

// Build returns the transformer.
func (b *TransformerBuilder) Build() *ElementTransformer {
	return &ElementTransformer{Functions: b.fns}
}
