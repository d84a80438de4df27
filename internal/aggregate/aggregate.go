// Package aggregate merges observations of the same element using the
// per-property aggregate functions declared in the schema.
package aggregate

import (
	"iter"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/schema"
)

// Aggregator merges elements of matching identity. The zero group-by
// override uses the schema's group-by properties.
type Aggregator struct {
	schema  *schema.Schema
	groupBy map[string][]string
}

// New returns an aggregator for s.
func New(s *schema.Schema) *Aggregator {
	return &Aggregator{schema: s}
}

// WithGroupBy returns a copy that groups the given group by a narrower set
// of properties. Properties dropped from the schema's group-by are then
// aggregated, so each must have an aggregate function.
func (a *Aggregator) WithGroupBy(group string, groupBy []string) (*Aggregator, error) {
	def, ok := a.schema.Element(group)
	if !ok {
		return nil, errors.ValidationErrorf("group %s is not in the schema", group).WithContext("group", group)
	}
	for _, p := range groupBy {
		if !def.IsGroupBy(p) {
			return nil, errors.ValidationErrorf("group %s: %s is not a schema group-by property; a view may only narrow group-by", group, p).
				WithContext("group", group).WithContext("property", p)
		}
	}
	kept := map[string]bool{}
	for _, p := range groupBy {
		kept[p] = true
	}
	for _, p := range def.GroupBy {
		if !kept[p] && a.schema.AggregatorFor(group, p) == nil {
			return nil, errors.ValidationErrorf("group %s: cannot drop %s from group-by, its type has no aggregate function", group, p).
				WithContext("group", group).WithContext("property", p)
		}
	}

	out := &Aggregator{schema: a.schema, groupBy: map[string][]string{}}
	for g, props := range a.groupBy {
		out.groupBy[g] = props
	}
	out.groupBy[group] = append([]string{}, groupBy...)
	return out, nil
}

// IdentityProperties returns the properties that take part in identity
// for group, in addition to the identifiers.
func (a *Aggregator) IdentityProperties(group string) []string {
	override, ok := a.groupBy[group]
	if !ok {
		return a.schema.IdentityProperties(group)
	}
	props := append([]string(nil), override...)
	vis := a.schema.VisibilityProperty()
	if def, ok := a.schema.Element(group); ok && vis != "" && def.HasProperty(vis) {
		props = append(props, vis)
	}
	return props
}

// Key is the aggregation identity of e.
func (a *Aggregator) Key(e *element.Element) string {
	return e.IdentityKey(a.IdentityProperties(e.Group))
}

// Aggregates reports whether elements of group are summarised.
func (a *Aggregator) Aggregates(group string) bool {
	def, ok := a.schema.Element(group)
	return ok && def.Aggregates()
}

// Aggregate merges incoming into existing and returns a new element;
// neither argument is modified. A nil existing yields a copy of incoming.
//
// Declared properties outside identity are merged in declaration order with
// their type's aggregate function, nil standing for the identity element.
// Properties the group does not declare are kept from existing when present
// there, otherwise taken from incoming.
func (a *Aggregator) Aggregate(existing, incoming *element.Element) (*element.Element, error) {
	if incoming == nil {
		if existing == nil {
			return nil, nil
		}
		return existing.Clone(), nil
	}
	if existing == nil {
		return incoming.Clone(), nil
	}
	if existing.Group != incoming.Group {
		return nil, errors.IdentityMismatchf("cannot aggregate group %s with group %s", existing.Group, incoming.Group).
			WithContext("group", existing.Group)
	}
	def, ok := a.schema.Element(existing.Group)
	if !ok {
		return nil, errors.ValidationErrorf("group %s is not in the schema", existing.Group).WithContext("group", existing.Group)
	}
	if !def.Aggregates() {
		return nil, errors.ValidationErrorf("group %s has aggregation disabled", existing.Group).WithContext("group", existing.Group)
	}
	identity := a.IdentityProperties(existing.Group)
	if existing.IdentityKey(identity) != incoming.IdentityKey(identity) {
		return nil, errors.IdentityMismatchf("cannot aggregate %s with %s: identities differ", existing, incoming).
			WithContext("group", existing.Group)
	}

	inIdentity := make(map[string]bool, len(identity))
	for _, p := range identity {
		inIdentity[p] = true
	}

	out := existing.Clone()
	for _, p := range def.Properties {
		if inIdentity[p.Name] {
			continue
		}
		op := a.schema.AggregatorFor(existing.Group, p.Name)
		if op == nil {
			continue
		}
		merged, err := op.Apply(out.Properties[p.Name], incoming.Properties[p.Name])
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "aggregate function failed").
				WithContext("group", existing.Group).WithContext("property", p.Name).WithContext("function", op.Name())
		}
		if merged == nil {
			delete(out.Properties, p.Name)
		} else {
			// Operators may hand back an operand; copy it off incoming.
			out.Properties[p.Name] = element.CloneValue(merged)
		}
	}
	for name, v := range incoming.Properties {
		if def.HasProperty(name) {
			continue
		}
		if _, ok := out.Properties[name]; !ok {
			out.Properties[name] = element.CloneValue(v)
		}
	}
	return out, nil
}

// Summarise folds a stream of observations into one element per identity,
// keeping first-seen order. Groups with aggregation disabled and groups
// outside the schema only lose exact duplicates.
func (a *Aggregator) Summarise(elements iter.Seq[*element.Element]) ([]*element.Element, error) {
	var out []*element.Element
	index := map[string]int{}
	for e := range elements {
		if e == nil {
			continue
		}
		if !a.Aggregates(e.Group) {
			key := "exact|" + e.ContentKey()
			if _, seen := index[key]; !seen {
				index[key] = len(out)
				out = append(out, e.Clone())
			}
			continue
		}
		key := a.Key(e)
		i, seen := index[key]
		if !seen {
			index[key] = len(out)
			out = append(out, e.Clone())
			continue
		}
		merged, err := a.Aggregate(out[i], e)
		if err != nil {
			return nil, err
		}
		out[i] = merged
	}
	return out, nil
}
