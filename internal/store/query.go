package store

import (
	"iter"

	"github.com/rohankatakam/elemgraph/internal/aggregate"
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/view"
)

// query applies a resolved view to stored elements for one user.
type query struct {
	view       *view.View
	user       engine.User
	visibility string
	agg        *aggregate.Aggregator
}

func (s *Store) newQuery(v *view.View, user engine.User) (*query, error) {
	if v == nil {
		v = view.FromSchema(s.schema)
	}
	if v.IsNamed() {
		return nil, errors.NestedNamedViewNotAllowedf("view references named view %s; it must be resolved before execution", v.Name).
			WithContext("named_view", v.Name)
	}
	v = v.Expand(s.schema)
	if err := v.Validate(s.schema); err != nil {
		return nil, err
	}
	q := &query{view: v, user: user, visibility: s.schema.VisibilityProperty()}
	if v.Summarises() {
		agg := aggregate.New(s.schema)
		for _, defs := range []map[string]*view.ElementDefinition{v.Entities, v.Edges} {
			for group, def := range defs {
				if def == nil || def.GroupBy == nil {
					continue
				}
				var err error
				if agg, err = agg.WithGroupBy(group, def.GroupBy); err != nil {
					return nil, err
				}
			}
		}
		q.agg = agg
	}
	return q, nil
}

func (q *query) definition(e *element.Element) (*view.ElementDefinition, bool) {
	defs := q.view.Entities
	if e.IsEdge() {
		defs = q.view.Edges
	}
	def, ok := defs[e.Group]
	return def, ok
}

// run takes stored elements through group selection, visibility, the
// pre-aggregation filter, optional summarisation, the post-aggregation
// filter, the transformer, the post-transform filter and finally property
// projection.
func (q *query) run(stored iter.Seq[*element.Element]) ([]*element.Element, error) {
	var selected []*element.Element
	for e := range stored {
		def, ok := q.definition(e)
		if !ok || !q.visible(e) {
			continue
		}
		if def != nil && !def.PreAggregationFilter.Test(e) {
			continue
		}
		selected = append(selected, e)
	}

	if q.agg != nil {
		summarised, err := q.agg.Summarise(func(yield func(*element.Element) bool) {
			for _, e := range selected {
				if !yield(e) {
					return
				}
			}
		})
		if err != nil {
			return nil, err
		}
		selected = summarised
	}

	out := selected[:0]
	for _, e := range selected {
		def, _ := q.definition(e)
		if def == nil {
			out = append(out, e)
			continue
		}
		if !def.PostAggregationFilter.Test(e) {
			continue
		}
		if !def.Transformer.Empty() {
			e = e.Clone()
			if err := def.Transformer.Apply(e); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "view transform failed").
					WithContext("group", e.Group)
			}
		}
		if !def.PostTransformFilter.Test(e) {
			continue
		}
		project(def, e)
		out = append(out, e)
	}
	return out, nil
}

func project(def *view.ElementDefinition, e *element.Element) {
	for name := range e.Properties {
		if !def.Keeps(name) {
			delete(e.Properties, name)
		}
	}
}
