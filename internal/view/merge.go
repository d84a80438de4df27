package view

import (
	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/function"
)

// Merge lays over on top of base and returns a new plain view. Groups are
// united. For a group present in both, fields set in over win; filter and
// transformer lists are concatenated (base first) unless over marks the
// definition as an override.
func Merge(base, over *View) *View {
	if base == nil && over == nil {
		return nil
	}
	if base == nil {
		return over.inline()
	}
	if over == nil {
		return base.inline()
	}
	out := &View{
		Entities:    mergeDefs(base.Entities, over.Entities),
		Edges:       mergeDefs(base.Edges, over.Edges),
		AllEntities: base.AllEntities || over.AllEntities,
		AllEdges:    base.AllEdges || over.AllEdges,
	}
	switch {
	case over.Summarise != nil:
		s := *over.Summarise
		out.Summarise = &s
	case base.Summarise != nil:
		s := *base.Summarise
		out.Summarise = &s
	}
	return out
}

func mergeDefs(base, over map[string]*ElementDefinition) map[string]*ElementDefinition {
	if base == nil && over == nil {
		return nil
	}
	out := make(map[string]*ElementDefinition, len(base)+len(over))
	for g, d := range base {
		out[g] = d.clone()
	}
	for g, o := range over {
		b, ok := out[g]
		if !ok {
			out[g] = o.clone()
			continue
		}
		out[g] = mergeDefinition(b, o)
	}
	return out
}

func mergeDefinition(b, o *ElementDefinition) *ElementDefinition {
	if o == nil {
		return b.clone()
	}
	out := b.clone()
	out.Override = false
	if o.GroupBy != nil {
		out.GroupBy = cloneStrings(o.GroupBy)
	}
	if o.Properties != nil {
		out.Properties = cloneStrings(o.Properties)
	}
	if o.ExcludeProperties != nil {
		out.ExcludeProperties = cloneStrings(o.ExcludeProperties)
	}
	if len(o.TransientProperties) > 0 {
		if out.TransientProperties == nil {
			out.TransientProperties = map[string]function.Class{}
		}
		for k, v := range o.TransientProperties {
			out.TransientProperties[k] = v
		}
	}
	if o.Override {
		out.PreAggregationFilter = o.PreAggregationFilter
		out.PostAggregationFilter = o.PostAggregationFilter
		out.Transformer = o.Transformer
		out.PostTransformFilter = o.PostTransformFilter
		return out
	}
	out.PreAggregationFilter = filter.Concat(b.PreAggregationFilter, o.PreAggregationFilter)
	out.PostAggregationFilter = filter.Concat(b.PostAggregationFilter, o.PostAggregationFilter)
	out.Transformer = filter.ConcatTransformers(b.Transformer, o.Transformer)
	out.PostTransformFilter = filter.Concat(b.PostTransformFilter, o.PostTransformFilter)
	return out
}
