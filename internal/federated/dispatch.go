package federated

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/view"
)

type outcome struct {
	graphID string
	value   any
	err     error
	skipped bool
}

// Federate runs op's payload on its target delegates and merges the
// results. Under the skip policy failing delegates are recorded on req and
// left out of the merge, and the call fails only when every delegate
// fails. Otherwise the first failure cancels the others and is returned.
func (s *Store) Federate(ctx context.Context, op *operation.FederatedOperation, req *engine.Request) (any, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	targets, err := s.targets(op.GraphIDs)
	if err != nil {
		return nil, err
	}
	skip := s.opts.SkipFailed
	if op.SkipFailedExecution != nil {
		skip = *op.SkipFailedExecution
	}
	class := op.Payload.Class()
	input := materialise(op.GetInput())

	var g *errgroup.Group
	dispatchCtx := ctx
	if skip {
		g = &errgroup.Group{}
	} else {
		g, dispatchCtx = errgroup.WithContext(ctx)
	}
	if s.opts.MaxConcurrency > 0 {
		g.SetLimit(s.opts.MaxConcurrency)
	}

	start := time.Now()
	outcomes := make([]outcome, len(targets))
	var mu sync.Mutex
	for i, d := range targets {
		g.Go(func() error {
			value, skipped, err := s.dispatch(dispatchCtx, d, op.Payload, input, req)
			mu.Lock()
			outcomes[i] = outcome{graphID: d.GraphID(), value: value, err: err, skipped: skipped}
			mu.Unlock()
			if err == nil {
				return nil
			}
			s.logger.WithError(err).WithFields(logrus.Fields{
				"graph_id":  d.GraphID(),
				"operation": class,
				"job_id":    req.JobID,
				"skipped":   skip,
			}).Warn("Delegate graph failed")
			if skip {
				req.RecordFailure(engine.Failure{GraphID: d.GraphID(), Operation: class, Err: err})
				return nil
			}
			return errors.DelegateError(err, d.GraphID(), class)
		})
	}
	waitErr := g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if waitErr != nil {
		return nil, waitErr
	}

	var values []any
	var failed int
	var last outcome
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			failed++
			last = o
		case !o.skipped:
			values = append(values, o.value)
		}
	}
	if failed > 0 && failed == len(targets) {
		return nil, errors.DelegateError(last.err, last.graphID, class).
			WithContext("failed_graphs", failed)
	}
	s.logger.WithFields(logrus.Fields{
		"operation": class,
		"graphs":    len(targets),
		"failed":    failed,
		"duration":  time.Since(start),
	}).Debug("Federated operation completed")

	return s.merge(op, values)
}

// dispatch runs payload on one delegate. A delegate that can hold none of
// the payload's view groups is skipped.
func (s *Store) dispatch(ctx context.Context, d Delegate, payload operation.Operation, input any, req *engine.Request) (any, bool, error) {
	op := payload.Clone()
	if in, ok := op.(operation.Input); ok && input != nil {
		in.SetInput(forDelegate(d, input))
	}
	if v, ok := op.(operation.Viewer); ok && v.GetView() != nil {
		adjusted, ok := restrictView(v.GetView(), d)
		if !ok {
			return nil, true, nil
		}
		v.SetView(adjusted)
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, false, err
		}
	}
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	value, err := d.Run(ctx, op, req.Derive())
	if err != nil {
		return nil, false, err
	}
	// Lazy results would otherwise outlive the delegate's timeout.
	return materialise(value), false, nil
}

// restrictView drops the groups d's schema does not declare. It reports
// false when a view that named groups keeps none of them.
func restrictView(v *view.View, d Delegate) (*view.View, bool) {
	if v.IsNamed() {
		return v, true
	}
	sc := d.Schema()
	out := v.Clone()
	named := len(v.Entities)+len(v.Edges) > 0
	for _, defs := range []map[string]*view.ElementDefinition{out.Entities, out.Edges} {
		for group := range defs {
			if !sc.HasGroup(group) {
				delete(defs, group)
			}
		}
	}
	if named && len(out.Entities)+len(out.Edges) == 0 && !out.AllEntities && !out.AllEdges {
		return nil, false
	}
	return out, true
}

// forDelegate keeps only the input elements of groups d declares.
func forDelegate(d Delegate, input any) any {
	seq, ok := input.(iter.Seq[*element.Element])
	if !ok {
		return input
	}
	sc := d.Schema()
	var out []*element.Element
	for e := range seq {
		if sc.HasGroup(e.Group) {
			out = append(out, e)
		}
	}
	return slices.Values(out)
}

// materialise collects lazy sequences so they can be read more than once
// and concurrently.
func materialise(v any) any {
	switch t := v.(type) {
	case iter.Seq[*element.Element]:
		return slices.Values(slices.Collect(t))
	case iter.Seq[element.ID]:
		return slices.Values(slices.Collect(t))
	case iter.Seq[string]:
		return slices.Values(slices.Collect(t))
	case iter.Seq[any]:
		return slices.Values(slices.Collect(t))
	}
	return v
}
