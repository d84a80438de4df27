package engine

import (
	"context"
	"time"

	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/sirupsen/logrus"
)

// Executor runs chains against a handler registry with a fixed list of
// hooks.
type Executor struct {
	registry *Registry
	hooks    []Hook
	logger   *logrus.Logger
}

// NewExecutor returns an executor. Hooks run in the given order before
// execution and in reverse order after it.
func NewExecutor(registry *Registry, logger *logrus.Logger, hooks ...Hook) *Executor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Executor{registry: registry, hooks: hooks, logger: logger}
}

// Registry returns the handler registry.
func (x *Executor) Registry() *Registry {
	return x.registry
}

// Execute runs op, wrapped in a chain if needed. The caller's operation is
// never modified: hooks and input binding work on a copy.
func (x *Executor) Execute(ctx context.Context, op operation.Operation, req *Request) (any, error) {
	if op == nil {
		return nil, errors.ValidationErrorf("no operation to execute")
	}
	if req == nil {
		req = NewRequest(User{})
	}
	req.executor = x
	chain := operation.AsChain(op).CloneChain()
	log := x.logger.WithFields(logrus.Fields{"job_id": req.JobID, "user": req.User.ID})

	for _, h := range x.hooks {
		if err := h.PreExecute(ctx, chain, req); err != nil {
			return x.fail(ctx, nil, chain, req, err)
		}
	}

	if err := x.Validate(chain); err != nil {
		log.WithError(err).Debug("Chain rejected")
		return nil, err
	}

	start := time.Now()
	result, err := x.RunChain(ctx, chain, req)
	if err != nil {
		return x.fail(ctx, nil, chain, req, err)
	}

	for i := len(x.hooks) - 1; i >= 0; i-- {
		if result, err = x.hooks[i].PostExecute(ctx, result, chain, req); err != nil {
			return x.fail(ctx, nil, chain, req, err)
		}
	}
	log.WithField("duration", time.Since(start)).Debug("Chain executed")
	return result, nil
}

// Validate type-checks the chain and checks every operation, however
// deeply nested, has a handler. Payloads of federated operations run on
// other graphs and are not checked here.
func (x *Executor) Validate(chain *operation.Chain) error {
	if err := chain.Validate(); err != nil {
		return err
	}
	var missing error
	operation.Walk(chain, func(op operation.Operation) bool {
		if missing != nil {
			return false
		}
		if _, ok := op.(*operation.Chain); !ok {
			if _, ok := x.registry.Lookup(op); !ok {
				missing = errors.ValidationErrorf("operation %s is not supported by this graph", op.Class()).
					WithContext("operation", op.Class())
				return false
			}
		}
		_, federated := op.(*operation.FederatedOperation)
		return !federated
	})
	return missing
}

// RunChain executes the steps of chain in order without hooks, binding each
// result to the next operation's input. It is used for nested chains.
func (x *Executor) RunChain(ctx context.Context, chain *operation.Chain, req *Request) (any, error) {
	if req.executor == nil {
		req.executor = x
	}
	var result any
	for i, op := range chain.Ops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i > 0 && result != nil && op.InputType() != operation.TypeVoid {
			if in, ok := op.(operation.Input); ok {
				if err := operation.BindInput(in, result); err != nil {
					return nil, err
				}
			}
		}
		out, err := x.runStep(ctx, op, req)
		if err != nil {
			return nil, err
		}
		result = out
	}
	return result, nil
}

func (x *Executor) runStep(ctx context.Context, op operation.Operation, req *Request) (any, error) {
	if c, ok := op.(*operation.Chain); ok && !x.registry.Has(c.Class()) {
		return x.RunChain(ctx, c, req)
	}
	h, ok := x.registry.Lookup(op)
	if !ok {
		return nil, errors.ValidationErrorf("operation %s is not supported by this graph", op.Class()).
			WithContext("operation", op.Class())
	}
	x.logger.WithFields(logrus.Fields{"job_id": req.JobID, "operation": op.Class()}).Debug("Executing operation")
	out, err := h.Handle(ctx, op, req)
	if err != nil {
		if errors.Is(err, errors.ErrHandlerExecution) || ctx.Err() != nil {
			return nil, err
		}
		return nil, errors.HandlerError(err, op.Class())
	}
	return out, nil
}

// fail gives each hook a chance to substitute a result for err. The first
// hook returning a nil error wins; otherwise err is returned.
func (x *Executor) fail(ctx context.Context, result any, chain *operation.Chain, req *Request, err error) (any, error) {
	x.logger.WithFields(logrus.Fields{"job_id": req.JobID}).WithError(err).Debug("Chain failed")
	for _, h := range x.hooks {
		substitute, herr := h.OnFailure(ctx, result, chain, req, err)
		if herr == nil {
			return substitute, nil
		}
	}
	return nil, err
}
