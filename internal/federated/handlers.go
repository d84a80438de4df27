package federated

import (
	"context"
	"slices"

	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/operation"
)

// delegatedTypes are the output types whose unregistered operations are
// sent to every delegate.
var delegatedTypes = []operation.Type{
	operation.TypeVoid,
	operation.TypeAny,
	operation.TypeElements,
	operation.TypeElementIDs,
	operation.TypeObjects,
	operation.TypeLong,
	operation.TypeBoolean,
	operation.TypeGroupCounts,
	operation.TypeSchema,
	operation.TypeStrings,
}

// Register installs FederatedOperation and the graph management handlers,
// and falls back to federating any operation the federation cannot run
// itself, such as element reads and writes.
func (s *Store) Register(reg *engine.Registry) {
	reg.RegisterFunc("FederatedOperation", func(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
		return s.Federate(ctx, op.(*operation.FederatedOperation), req)
	})
	reg.RegisterFunc("GetAllGraphIds", func(context.Context, operation.Operation, *engine.Request) (any, error) {
		return slices.Values(s.GraphIDs()), nil
	})
	reg.RegisterFunc("RemoveGraph", func(_ context.Context, op operation.Operation, _ *engine.Request) (any, error) {
		return s.RemoveGraph(op.(*operation.RemoveGraph).GraphID), nil
	})

	fallback := engine.HandlerFunc(func(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
		return s.Federate(ctx, &operation.FederatedOperation{Payload: op}, req)
	})
	for _, t := range delegatedTypes {
		reg.RegisterFallback(t, fallback)
	}
}
