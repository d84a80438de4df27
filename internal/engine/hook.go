package engine

import (
	"context"

	"github.com/rohankatakam/elemgraph/internal/operation"
)

// Hook observes and may rewrite chain executions. PreExecute may mutate
// the chain, which is a private copy. PostExecute may replace the result.
// OnFailure may substitute a result by returning a nil error.
type Hook interface {
	PreExecute(ctx context.Context, chain *operation.Chain, req *Request) error
	PostExecute(ctx context.Context, result any, chain *operation.Chain, req *Request) (any, error)
	OnFailure(ctx context.Context, result any, chain *operation.Chain, req *Request, err error) (any, error)
}

// BaseHook implements every callback as a no-op; embed it and override.
type BaseHook struct{}

func (BaseHook) PreExecute(context.Context, *operation.Chain, *Request) error { return nil }

func (BaseHook) PostExecute(_ context.Context, result any, _ *operation.Chain, _ *Request) (any, error) {
	return result, nil
}

func (BaseHook) OnFailure(_ context.Context, result any, _ *operation.Chain, _ *Request, err error) (any, error) {
	return result, err
}
