// Package hooks provides the graph hooks run around every chain execution.
package hooks

import (
	"context"
	"strings"

	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/handler"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/view"
	"github.com/sirupsen/logrus"
)

// maxExpansionDepth bounds named operations that expand to other named
// operations.
const maxExpansionDepth = 10

// NamedViewResolver replaces named views on every operation of a chain,
// including nested ones, with the views they resolve to.
type NamedViewResolver struct {
	engine.BaseHook
	resolver *view.Resolver
}

// NewNamedViewResolver returns a hook resolving against c.
func NewNamedViewResolver(c cache.Cache[view.NamedViewDetail]) *NamedViewResolver {
	return &NamedViewResolver{resolver: view.NewResolver(c)}
}

func (h *NamedViewResolver) PreExecute(ctx context.Context, chain *operation.Chain, _ *engine.Request) error {
	var err error
	operation.Walk(chain, func(op operation.Operation) bool {
		if err != nil {
			return false
		}
		v, ok := op.(operation.Viewer)
		if !ok || !v.GetView().IsNamed() {
			return true
		}
		resolved, rerr := h.resolver.Resolve(ctx, v.GetView())
		if rerr != nil {
			err = rerr
			return false
		}
		v.SetView(resolved)
		return true
	})
	return err
}

// NamedOperationResolver replaces NamedOperation steps with the chains
// stored for them.
type NamedOperationResolver struct {
	engine.BaseHook
	cache cache.Cache[operation.NamedOperationDetail]
}

// NewNamedOperationResolver returns a hook expanding against c.
func NewNamedOperationResolver(c cache.Cache[operation.NamedOperationDetail]) *NamedOperationResolver {
	return &NamedOperationResolver{cache: c}
}

func (h *NamedOperationResolver) PreExecute(ctx context.Context, chain *operation.Chain, _ *engine.Request) error {
	return h.expand(ctx, chain, 0)
}

func (h *NamedOperationResolver) expand(ctx context.Context, parent operation.Nested, depth int) error {
	ops := parent.Operations()
	for i, op := range ops {
		if named, ok := op.(*operation.NamedOperation); ok {
			if depth >= maxExpansionDepth {
				return errors.ValidationErrorf("named operation %s expands more than %d levels deep", named.Name, maxExpansionDepth).
					WithContext("named_operation", named.Name)
			}
			chain, err := handler.Expand(ctx, h.cache, named)
			if err != nil {
				return err
			}
			if err := h.expand(ctx, chain, depth+1); err != nil {
				return err
			}
			ops[i] = chain
			continue
		}
		if n, ok := op.(operation.Nested); ok {
			if err := h.expand(ctx, n, depth); err != nil {
				return err
			}
		}
	}
	parent.SetOperations(ops)
	return nil
}

// LoggingHook logs each chain with its user and correlation id.
type LoggingHook struct {
	logger *logrus.Logger
}

// NewLoggingHook returns a logging hook.
func NewLoggingHook(logger *logrus.Logger) *LoggingHook {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) fields(chain *operation.Chain, req *engine.Request) logrus.Fields {
	classes := make([]string, 0, len(chain.Ops))
	for _, op := range chain.Ops {
		classes = append(classes, op.Class())
	}
	return logrus.Fields{
		"job_id":     req.JobID,
		"user":       req.User.ID,
		"operations": strings.Join(classes, ","),
	}
}

func (h *LoggingHook) PreExecute(_ context.Context, chain *operation.Chain, req *engine.Request) error {
	h.logger.WithFields(h.fields(chain, req)).Info("Executing operation chain")
	return nil
}

func (h *LoggingHook) PostExecute(_ context.Context, result any, chain *operation.Chain, req *engine.Request) (any, error) {
	entry := h.logger.WithFields(h.fields(chain, req))
	if failures := req.Failures(); len(failures) > 0 {
		entry = entry.WithField("skipped_graphs", len(failures))
	}
	entry.Debug("Operation chain finished")
	return result, nil
}

func (h *LoggingHook) OnFailure(_ context.Context, result any, chain *operation.Chain, req *engine.Request, err error) (any, error) {
	h.logger.WithFields(h.fields(chain, req)).WithError(err).Error("Operation chain failed")
	return result, err
}

// ChainLimiter rejects chains with more than Max operations, counting
// nested operations.
type ChainLimiter struct {
	engine.BaseHook
	Max int
}

func (h *ChainLimiter) PreExecute(_ context.Context, chain *operation.Chain, _ *engine.Request) error {
	if h.Max <= 0 {
		return nil
	}
	n := 0
	operation.Walk(chain, func(op operation.Operation) bool {
		if _, ok := op.(*operation.Chain); !ok {
			n++
		}
		return true
	})
	if n > h.Max {
		return errors.ValidationErrorf("operation chain has %d operations, the maximum is %d", n, h.Max).
			WithContext("operations", n)
	}
	return nil
}
