package store

import (
	"context"
	"slices"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/operation"
)

// Register installs the element handlers backed by s.
func (s *Store) Register(reg *engine.Registry) {
	reg.RegisterFunc("AddElements", s.handleAddElements)
	reg.RegisterFunc("GetAllElements", s.handleGetAllElements)
	reg.RegisterFunc("GetElements", s.handleGetElements)
	reg.RegisterFunc("GetAdjacentIDs", s.handleGetAdjacentIDs)
}

func (s *Store) handleAddElements(ctx context.Context, op operation.Operation, _ *engine.Request) (any, error) {
	o := op.(*operation.AddElements)
	if o.GetInput() == nil {
		return nil, nil
	}
	elements, err := operation.Elements(o.GetInput())
	if err != nil {
		return nil, err
	}
	return nil, s.AddElements(ctx, elements, o.ValidateElements, o.SkipInvalid)
}

func (s *Store) handleGetAllElements(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
	o := op.(*operation.GetAllElements)
	out, err := s.GetAllElements(ctx, o.View, o.DirectedType, req.User)
	if err != nil {
		return nil, err
	}
	return slices.Values(out), nil
}

func (s *Store) handleGetElements(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
	o := op.(*operation.GetElements)
	seeds, err := seedsOf(o.GetInput())
	if err != nil {
		return nil, err
	}
	out, err := s.GetElements(ctx, seeds, o.IncludeIncomingOutGoing, o.DirectedType, o.View, req.User)
	if err != nil {
		return nil, err
	}
	return slices.Values(out), nil
}

func (s *Store) handleGetAdjacentIDs(ctx context.Context, op operation.Operation, req *engine.Request) (any, error) {
	o := op.(*operation.GetAdjacentIDs)
	seeds, err := seedsOf(o.GetInput())
	if err != nil {
		return nil, err
	}
	out, err := s.GetAdjacentIDs(ctx, seeds, o.IncludeIncomingOutGoing, o.DirectedType, o.View, req.User)
	if err != nil {
		return nil, err
	}
	return slices.Values(out), nil
}

func seedsOf(in any) ([]element.ID, error) {
	if in == nil {
		return nil, nil
	}
	ids, err := operation.IDs(in)
	if err != nil {
		return nil, err
	}
	return slices.Collect(ids), nil
}
