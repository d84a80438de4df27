// Package handler implements the operations that do not depend on a
// storage backend: counting, limiting, filtering, set exports, jobs and the
// named view and named operation caches.
package handler

import (
	"context"
	"iter"
	"slices"

	"github.com/rohankatakam/elemgraph/internal/aggregate"
	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/rohankatakam/elemgraph/internal/view"
	"github.com/sirupsen/logrus"
)

// Options are the dependencies of the generic handlers. Handlers whose
// dependency is nil are not registered.
type Options struct {
	Schema *schema.Schema
	// SchemaSource, when set, is consulted on every call instead of Schema.
	SchemaSource    func() *schema.Schema
	Jobs            *jobs.Tracker
	NamedViews      cache.Cache[view.NamedViewDetail]
	NamedOperations cache.Cache[operation.NamedOperationDetail]
	Logger          *logrus.Logger
}

// Register installs the generic handlers into reg.
func Register(reg *engine.Registry, opts Options) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	reg.RegisterFunc("OperationChain", handleChain)
	reg.RegisterFunc("Count", handleCount)
	reg.RegisterFunc("CountGroups", handleCountGroups)
	reg.RegisterFunc("ExtractGroupCount", handleExtractGroupCount)
	reg.RegisterFunc("Limit", handleLimit)
	reg.RegisterFunc("ToSet", handleToSet)
	reg.RegisterFunc("DiscardOutput", handleDiscard)
	reg.RegisterFunc("Filter", handleFilter)
	reg.RegisterFunc("Transform", handleTransform)
	reg.RegisterFunc("ExportToSet", handleExportToSet)
	reg.RegisterFunc("GetSetExport", handleGetSetExport)

	if opts.SchemaSource == nil && opts.Schema != nil {
		s := opts.Schema
		opts.SchemaSource = func() *schema.Schema { return s }
	}
	if opts.SchemaSource != nil {
		source := opts.SchemaSource
		reg.RegisterFunc("GetSchema", func(context.Context, operation.Operation, *engine.Request) (any, error) {
			return source(), nil
		})
		reg.Register("Aggregate", &aggregateHandler{schema: source})
	}
	if opts.Jobs != nil {
		registerJobs(reg, opts.Jobs)
	}
	if opts.NamedViews != nil {
		registerNamedViews(reg, opts.NamedViews, opts.Logger)
	}
	if opts.NamedOperations != nil {
		registerNamedOperations(reg, opts.NamedOperations, opts.Logger)
	}
}

func handleChain(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
	return req.Executor().RunChain(ctx, op.(*operation.Chain), req)
}

func handleCount(_ context.Context, op operation.Operation, _ *engine.Request) (any, error) {
	var n int64
	seq, ok := operation.Objects(op.(*operation.Count).GetInput())
	if !ok {
		return n, nil
	}
	for range seq {
		n++
	}
	return n, nil
}

func handleCountGroups(_ context.Context, op operation.Operation, _ *engine.Request) (any, error) {
	o := op.(*operation.CountGroups)
	counts := &operation.GroupCounts{Entities: map[string]int64{}, Edges: map[string]int64{}}
	if o.GetInput() == nil {
		return counts, nil
	}
	elements, err := operation.Elements(o.GetInput())
	if err != nil {
		return nil, err
	}
	var seen int
	for e := range elements {
		if o.Limit > 0 && seen >= o.Limit {
			counts.LimitHit = true
			break
		}
		seen++
		if e.IsEdge() {
			counts.Edges[e.Group]++
		} else {
			counts.Entities[e.Group]++
		}
	}
	return counts, nil
}

func handleExtractGroupCount(_ context.Context, op operation.Operation, _ *engine.Request) (any, error) {
	o := op.(*operation.ExtractGroupCount)
	counts, _ := o.GetInput().(*operation.GroupCounts)
	if counts == nil {
		return int64(0), nil
	}
	if n, ok := counts.Entities[o.Group]; ok {
		return n, nil
	}
	return counts.Edges[o.Group], nil
}

func handleLimit(_ context.Context, op operation.Operation, _ *engine.Request) (any, error) {
	o := op.(*operation.Limit)
	in := o.GetInput()
	if in == nil {
		return nil, nil
	}
	if !o.Truncates() {
		items, _ := operation.Collect(in)
		if len(items) > o.ResultLimit {
			return nil, errors.ValidationErrorf("limit of %d exceeded", o.ResultLimit).
				WithContext("operation", o.Class()).WithContext("limit", o.ResultLimit)
		}
		return retype(in, items), nil
	}
	switch seq := in.(type) {
	case iter.Seq[*element.Element]:
		return take(seq, o.ResultLimit), nil
	case iter.Seq[element.ID]:
		return take(seq, o.ResultLimit), nil
	}
	seq, ok := operation.Objects(in)
	if !ok {
		return nil, errors.ValidationErrorf("%T is not iterable", in).WithContext("operation", o.Class())
	}
	return take(seq, o.ResultLimit), nil
}

func take[T any](seq iter.Seq[T], n int) iter.Seq[T] {
	return func(yield func(T) bool) {
		if n <= 0 {
			return
		}
		i := 0
		for v := range seq {
			if !yield(v) {
				return
			}
			i++
			if i >= n {
				return
			}
		}
	}
}

func handleToSet(_ context.Context, op operation.Operation, _ *engine.Request) (any, error) {
	in := op.(*operation.ToSet).GetInput()
	switch seq := in.(type) {
	case nil:
		return nil, nil
	case iter.Seq[*element.Element]:
		return distinct(seq, (*element.Element).ContentKey), nil
	case iter.Seq[element.ID]:
		return distinct(seq, element.ID.Key), nil
	}
	seq, ok := operation.Objects(in)
	if !ok {
		return nil, errors.ValidationErrorf("%T is not iterable", in).WithContext("operation", op.Class())
	}
	return distinct(seq, func(v any) string {
		switch t := v.(type) {
		case *element.Element:
			return "e|" + t.ContentKey()
		case element.ID:
			return "i|" + t.Key()
		}
		return "v|" + element.ValueKey(v)
	}), nil
}

func distinct[T any](seq iter.Seq[T], key func(T) string) iter.Seq[T] {
	return func(yield func(T) bool) {
		seen := map[string]bool{}
		for v := range seq {
			k := key(v)
			if seen[k] {
				continue
			}
			seen[k] = true
			if !yield(v) {
				return
			}
		}
	}
}

func handleDiscard(context.Context, operation.Operation, *engine.Request) (any, error) {
	return nil, nil
}

func handleFilter(_ context.Context, op operation.Operation, _ *engine.Request) (any, error) {
	o := op.(*operation.Filter)
	if o.GetInput() == nil {
		return nil, nil
	}
	elements, err := operation.Elements(o.GetInput())
	if err != nil {
		return nil, err
	}
	return iter.Seq[*element.Element](func(yield func(*element.Element) bool) {
		for e := range elements {
			f, ok := o.For(e)
			if !ok || !f.Test(e) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}), nil
}

func handleTransform(_ context.Context, op operation.Operation, _ *engine.Request) (any, error) {
	o := op.(*operation.Transform)
	if o.GetInput() == nil {
		return nil, nil
	}
	elements, err := operation.Elements(o.GetInput())
	if err != nil {
		return nil, err
	}
	var out []*element.Element
	for e := range elements {
		t := o.For(e)
		if t.Empty() {
			out = append(out, e)
			continue
		}
		c := e.Clone()
		if err := t.Apply(c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return slices.Values(out), nil
}

type aggregateHandler struct {
	schema func() *schema.Schema
}

func (h *aggregateHandler) Handle(_ context.Context, op operation.Operation, _ *engine.Request) (any, error) {
	o := op.(*operation.Aggregate)
	if o.GetInput() == nil {
		return nil, nil
	}
	elements, err := operation.Elements(o.GetInput())
	if err != nil {
		return nil, err
	}
	agg := aggregate.New(h.schema())
	for _, groups := range []map[string][]string{o.Entities, o.Edges} {
		for group, groupBy := range groups {
			if groupBy == nil {
				continue
			}
			if agg, err = agg.WithGroupBy(group, groupBy); err != nil {
				return nil, err
			}
		}
	}
	out, err := agg.Summarise(elements)
	if err != nil {
		return nil, err
	}
	return slices.Values(out), nil
}

func handleExportToSet(_ context.Context, op operation.Operation, req *engine.Request) (any, error) {
	o := op.(*operation.ExportToSet)
	in := o.GetInput()
	items, ok := operation.Collect(in)
	if !ok && in != nil {
		return nil, errors.ValidationErrorf("%T is not iterable", in).WithContext("operation", o.Class())
	}
	req.Export(operation.ExportKey(o.Key), items)
	return retype(in, items), nil
}

func handleGetSetExport(_ context.Context, op operation.Operation, req *engine.Request) (any, error) {
	o := op.(*operation.GetSetExport)
	key := operation.ExportKey(o.Key)
	items, ok := req.Exported(key)
	if !ok {
		return nil, errors.ValidationErrorf("no set exported under %s", key).WithContext("key", key)
	}
	start := min(o.Start, len(items))
	end := len(items)
	if o.End > 0 {
		end = min(o.End, len(items))
	}
	return slices.Values(items[start:end]), nil
}

// retype rebuilds a collected input as a sequence of the input's own
// element type, so pass-through operations keep their output type.
func retype(in any, items []any) any {
	switch in.(type) {
	case iter.Seq[*element.Element]:
		out := make([]*element.Element, 0, len(items))
		for _, v := range items {
			out = append(out, v.(*element.Element))
		}
		return slices.Values(out)
	case iter.Seq[element.ID]:
		out := make([]element.ID, 0, len(items))
		for _, v := range items {
			out = append(out, v.(element.ID))
		}
		return slices.Values(out)
	}
	return slices.Values(items)
}
