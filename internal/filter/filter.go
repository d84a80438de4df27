// Package filter evaluates predicate and transform chains over element
// identifiers and properties.
package filter

import (
	"encoding/json"
	"fmt"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/function"
)

func selectValues(e *element.Element, selection []string) []any {
	args := make([]any, len(selection))
	for i, name := range selection {
		args[i] = e.Get(name)
	}
	return args
}

// TupleAdaptedPredicate selects named values from an element and tests them
// together with one predicate.
type TupleAdaptedPredicate struct {
	Selection []string
	Predicate function.Predicate
}

// Test applies the predicate to the selected values.
func (p TupleAdaptedPredicate) Test(e *element.Element) bool {
	return p.Predicate.Test(selectValues(e, p.Selection)...)
}

type tupleAdaptedPredicateJSON struct {
	Selection []string        `json:"selection"`
	Predicate json.RawMessage `json:"predicate"`
}

func (p TupleAdaptedPredicate) MarshalJSON() ([]byte, error) {
	pred, err := function.MarshalFunc(p.Predicate)
	if err != nil {
		return nil, err
	}
	return json.Marshal(tupleAdaptedPredicateJSON{Selection: p.Selection, Predicate: pred})
}

func (p *TupleAdaptedPredicate) UnmarshalJSON(data []byte) error {
	var raw tupleAdaptedPredicateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Selection) == 0 {
		return fmt.Errorf("predicate has an empty selection")
	}
	pred, err := function.UnmarshalPredicate(raw.Predicate)
	if err != nil {
		return err
	}
	p.Selection = raw.Selection
	p.Predicate = pred
	return nil
}

// ElementFilter is an ordered conjunction of predicates. A nil filter
// accepts everything.
type ElementFilter struct {
	Predicates []TupleAdaptedPredicate
}

// Test returns true only if every predicate passes, stopping at the first
// failure. Filters never mutate the element.
func (f *ElementFilter) Test(e *element.Element) bool {
	if f == nil {
		return true
	}
	for _, p := range f.Predicates {
		if !p.Test(e) {
			return false
		}
	}
	return true
}

// Empty reports whether the filter has no predicates.
func (f *ElementFilter) Empty() bool {
	return f == nil || len(f.Predicates) == 0
}

// Selections returns every name the filter reads.
func (f *ElementFilter) Selections() []string {
	if f == nil {
		return nil
	}
	var names []string
	for _, p := range f.Predicates {
		names = append(names, p.Selection...)
	}
	return names
}

// Concat returns a filter running a's predicates then b's.
func Concat(a, b *ElementFilter) *ElementFilter {
	if a.Empty() {
		return b
	}
	if b.Empty() {
		return a
	}
	preds := make([]TupleAdaptedPredicate, 0, len(a.Predicates)+len(b.Predicates))
	preds = append(preds, a.Predicates...)
	preds = append(preds, b.Predicates...)
	return &ElementFilter{Predicates: preds}
}

func (f ElementFilter) MarshalJSON() ([]byte, error) {
	if f.Predicates == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(f.Predicates)
}

func (f *ElementFilter) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &f.Predicates)
}

// Builder assembles filters fluently:
//
//	filter.NewBuilder().Select("count").Execute(&function.IsMoreThan{Value: int64(1)}).Build()
type Builder struct {
	preds     []TupleAdaptedPredicate
	selection []string
}

// NewBuilder starts an empty filter.
func NewBuilder() *Builder { return &Builder{} }

// Select names the values the next predicate reads.
func (b *Builder) Select(names ...string) *Builder {
	b.selection = names
	return b
}

// Execute adds a predicate over the current selection.
func (b *Builder) Execute(p function.Predicate) *Builder {
	b.preds = append(b.preds, TupleAdaptedPredicate{Selection: b.selection, Predicate: p})
	b.selection = nil
	return b
}

// Build returns the filter.
func (b *Builder) Build() *ElementFilter {
	return &ElementFilter{Predicates: b.preds}
}
