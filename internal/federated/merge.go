package federated

import (
	"iter"
	"slices"

	"github.com/rohankatakam/elemgraph/internal/aggregate"
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/rohankatakam/elemgraph/internal/view"
)

// merge combines delegate results with op's merge kind. values holds one
// result per delegate that ran, in federation order.
func (s *Store) merge(op *operation.FederatedOperation, values []any) (any, error) {
	kind := op.MergeKind()
	switch kind {
	case operation.MergeNone:
		return nil, nil
	case operation.MergeConcat:
		return concat(values)
	case operation.MergeAggregate:
		return s.aggregate(op, values)
	case operation.MergeSum, operation.MergeMin, operation.MergeMax:
		return reduceLong(kind, values)
	case operation.MergeOr, operation.MergeAnd:
		return reduceBool(kind, values)
	case operation.MergeMapSum:
		return sumGroupCounts(values)
	case operation.MergeSchema:
		var schemas []*schema.Schema
		for _, v := range values {
			if sc, ok := v.(*schema.Schema); ok && sc != nil {
				schemas = append(schemas, sc)
			}
		}
		return mergeSchemas(schemas)
	}
	return nil, errors.ValidationErrorf("unknown merge kind %q", kind).WithContext("merge", kind)
}

// concat chains the delegate sequences lazily, keeping the element type
// when every delegate returned the same kind of sequence.
func concat(values []any) (any, error) {
	var nonNil []any
	for _, v := range values {
		if v != nil {
			nonNil = append(nonNil, v)
		}
	}
	if seq, ok := chainAs[*element.Element](nonNil); ok {
		return seq, nil
	}
	if seq, ok := chainAs[element.ID](nonNil); ok {
		return seq, nil
	}
	if seq, ok := chainAs[string](nonNil); ok {
		return seq, nil
	}
	seqs := make([]iter.Seq[any], 0, len(nonNil))
	for _, v := range nonNil {
		seq, ok := operation.Objects(v)
		if !ok {
			return nil, errors.ValidationErrorf("cannot concatenate %T results", v).WithContext("merge", operation.MergeConcat)
		}
		seqs = append(seqs, seq)
	}
	return chain(seqs), nil
}

func chainAs[T any](values []any) (iter.Seq[T], bool) {
	seqs := make([]iter.Seq[T], 0, len(values))
	for _, v := range values {
		seq, ok := v.(iter.Seq[T])
		if !ok {
			return nil, false
		}
		seqs = append(seqs, seq)
	}
	return chain(seqs), true
}

func chain[T any](seqs []iter.Seq[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for _, seq := range seqs {
			for x := range seq {
				if !yield(x) {
					return
				}
			}
		}
	}
}

// aggregate summarises elements across delegates with the federation
// schema and any group-by overrides of the payload view. Exact duplicates
// of non-aggregating groups are dropped.
func (s *Store) aggregate(op *operation.FederatedOperation, values []any) (any, error) {
	agg := aggregate.New(s.Schema())
	if v, ok := op.Payload.(operation.Viewer); ok && v.GetView() != nil {
		for _, defs := range []map[string]*view.ElementDefinition{v.GetView().Entities, v.GetView().Edges} {
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
	}
	seqs := make([]iter.Seq[*element.Element], 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		seq, err := operation.Elements(v)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "cannot aggregate delegate results").
				WithContext("merge", operation.MergeAggregate)
		}
		seqs = append(seqs, seq)
	}
	out, err := agg.Summarise(chain(seqs))
	if err != nil {
		return nil, err
	}
	return slices.Values(out), nil
}

func reduceLong(kind string, values []any) (any, error) {
	var out int64
	seen := false
	for _, v := range values {
		if v == nil {
			continue
		}
		converted, err := operation.Convert(operation.TypeLong, v)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "cannot merge delegate results").
				WithContext("merge", kind)
		}
		n := converted.(int64)
		switch {
		case !seen:
			out = n
		case kind == operation.MergeSum:
			out += n
		case kind == operation.MergeMin:
			out = min(out, n)
		case kind == operation.MergeMax:
			out = max(out, n)
		}
		seen = true
	}
	if !seen && kind != operation.MergeSum {
		return nil, nil
	}
	return out, nil
}

func reduceBool(kind string, values []any) (any, error) {
	out := kind == operation.MergeAnd
	for _, v := range values {
		if v == nil {
			continue
		}
		b, ok := v.(bool)
		if !ok {
			return nil, errors.ValidationErrorf("cannot merge %T results as booleans", v).WithContext("merge", kind)
		}
		if kind == operation.MergeAnd {
			out = out && b
		} else {
			out = out || b
		}
	}
	return out, nil
}

func sumGroupCounts(values []any) (any, error) {
	out := &operation.GroupCounts{Entities: map[string]int64{}, Edges: map[string]int64{}}
	for _, v := range values {
		if v == nil {
			continue
		}
		gc, ok := v.(*operation.GroupCounts)
		if !ok {
			return nil, errors.ValidationErrorf("cannot merge %T results as group counts", v).WithContext("merge", operation.MergeMapSum)
		}
		for _, pair := range [][2]map[string]int64{{out.Entities, gc.Entities}, {out.Edges, gc.Edges}} {
			for group, n := range pair[1] {
				pair[0][group] += n
			}
		}
		out.LimitHit = out.LimitHit || gc.LimitHit
	}
	return out, nil
}
