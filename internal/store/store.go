// Package store runs element operations against a storage backend: ingest
// validation and the view-driven query path shared by every backend.
package store

import (
	"context"
	"iter"
	"slices"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/rohankatakam/elemgraph/internal/view"
	"github.com/sirupsen/logrus"
)

// Backend persists elements. Backends built with an aggregator merge
// observations of aggregating groups on ingest; everything else about a
// query is applied by Store. Returned elements belong to the caller.
type Backend interface {
	AddElements(ctx context.Context, elements []*element.Element) error
	GetAllElements(ctx context.Context) ([]*element.Element, error)
	// GetRelated returns every stored entity with one of the vertices and
	// every stored edge touching one, each once.
	GetRelated(ctx context.Context, vertices []any) ([]*element.Element, error)
	Close() error
}

// DefaultBatchSize is the number of elements handed to a backend at once.
const DefaultBatchSize = 1000

// Options configure a Store.
type Options struct {
	BatchSize int
	Logger    *logrus.Logger
}

// Store executes element operations for one graph.
type Store struct {
	backend   Backend
	schema    *schema.Schema
	batchSize int
	logger    *logrus.Logger
}

// New returns a store over backend.
func New(backend Backend, s *schema.Schema, opts Options) *Store {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Store{backend: backend, schema: s, batchSize: opts.BatchSize, logger: opts.Logger}
}

// Schema returns the store schema.
func (s *Store) Schema() *schema.Schema { return s.schema }

// Close closes the backend.
func (s *Store) Close() error { return s.backend.Close() }

// AddElements coerces each element to the schema and, when validate is
// set, applies the schema validation functions. Invalid elements fail the
// call unless skipInvalid is set.
func (s *Store) AddElements(ctx context.Context, elements iter.Seq[*element.Element], validate, skipInvalid bool) error {
	batch := make([]*element.Element, 0, s.batchSize)
	var added, skipped int
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.backend.AddElements(ctx, batch); err != nil {
			return errors.DatabaseErrorf(err, "failed to add %d elements", len(batch))
		}
		added += len(batch)
		batch = batch[:0]
		return nil
	}
	for e := range elements {
		if e == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c := e.Clone()
		err := s.schema.Coerce(c)
		if err == nil && validate {
			err = s.schema.Validate(c)
		}
		if err != nil {
			if skipInvalid {
				skipped++
				s.logger.WithError(err).WithField("group", c.Group).Debug("Skipping invalid element")
				continue
			}
			return errors.Wrap(err, errors.ErrorTypeSchemaValidation, errors.SeverityHigh, "invalid element").
				WithContext("group", c.Group)
		}
		batch = append(batch, c)
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"added": added, "skipped": skipped}).Debug("Elements added")
	return nil
}

// GetAllElements returns every element visible through v.
func (s *Store) GetAllElements(ctx context.Context, v *view.View, dt element.DirectedType, user engine.User) ([]*element.Element, error) {
	q, err := s.newQuery(v, user)
	if err != nil {
		return nil, err
	}
	stored, err := s.backend.GetAllElements(ctx)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "failed to read elements")
	}
	return q.run(func(yield func(*element.Element) bool) {
		for _, e := range stored {
			if e.IsEdge() && !directedMatches(dt, e) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	})
}

// GetElements returns the elements related to seeds: entities on an entity
// seed's vertex and edges touching it, and edges an edge seed identifies.
func (s *Store) GetElements(ctx context.Context, seeds []element.ID, inOut string, dt element.DirectedType, v *view.View, user engine.User) ([]*element.Element, error) {
	q, err := s.newQuery(v, user)
	if err != nil {
		return nil, err
	}
	related, err := s.related(ctx, seeds)
	if err != nil {
		return nil, err
	}
	return q.run(func(yield func(*element.Element) bool) {
		for _, e := range related {
			if !slices.ContainsFunc(seeds, func(id element.ID) bool { return seedMatches(id, e, inOut, dt) }) {
				continue
			}
			if !yield(e) {
				return
			}
		}
	})
}

// GetAdjacentIDs returns the vertices at the far end of edges touching the
// seed vertices, each once, in first-seen order.
func (s *Store) GetAdjacentIDs(ctx context.Context, seeds []element.ID, inOut string, dt element.DirectedType, v *view.View, user engine.User) ([]element.ID, error) {
	vertices := make([]element.ID, 0, len(seeds))
	for _, id := range seeds {
		if id.IsEntityID() {
			vertices = append(vertices, id)
		}
	}
	if v != nil {
		v = v.Clone()
		v.Entities, v.AllEntities = nil, false
	}
	edges, err := s.GetElements(ctx, vertices, inOut, dt, v, user)
	if err != nil {
		return nil, err
	}
	var out []element.ID
	seen := map[string]bool{}
	for _, e := range edges {
		for _, id := range vertices {
			far, ok := farEnd(id.Vertex, e, inOut)
			if !ok {
				continue
			}
			adj := element.EntityID(far)
			if !seen[adj.Key()] {
				seen[adj.Key()] = true
				out = append(out, adj)
			}
		}
	}
	return out, nil
}

func (s *Store) related(ctx context.Context, seeds []element.ID) ([]*element.Element, error) {
	var vertices []any
	seen := map[string]bool{}
	add := func(v any) {
		if k := element.ValueKey(v); !seen[k] {
			seen[k] = true
			vertices = append(vertices, v)
		}
	}
	for _, id := range seeds {
		if id.IsEntityID() {
			add(id.Vertex)
		} else {
			add(id.Source)
		}
	}
	if len(vertices) == 0 {
		return nil, nil
	}
	related, err := s.backend.GetRelated(ctx, vertices)
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "failed to read related elements")
	}
	return related, nil
}

func directedMatches(dt element.DirectedType, e *element.Element) bool {
	switch dt {
	case element.DirectedTypeDirected:
		return e.Directed
	case element.DirectedTypeUndirected:
		return !e.Directed
	}
	return true
}

func seedMatches(id element.ID, e *element.Element, inOut string, dt element.DirectedType) bool {
	if !id.IsEntityID() {
		return id.MatchesEdge(e)
	}
	if e.IsEntity() {
		return element.ValueKey(e.Vertex) == element.ValueKey(id.Vertex)
	}
	if !directedMatches(dt, e) {
		return false
	}
	_, ok := farEnd(id.Vertex, e, inOut)
	return ok
}

// farEnd returns the endpoint of e opposite vertex, subject to the
// direction filter. Undirected edges count as both incoming and outgoing.
func farEnd(vertex any, e *element.Element, inOut string) (any, bool) {
	if !e.IsEdge() {
		return nil, false
	}
	k := element.ValueKey(vertex)
	src, dst := element.ValueKey(e.Source) == k, element.ValueKey(e.Destination) == k
	switch {
	case src && (inOut != operation.IncludeEdgesIncoming || !e.Directed):
		return e.Destination, true
	case dst && (inOut != operation.IncludeEdgesOutgoing || !e.Directed):
		return e.Source, true
	}
	return nil, false
}
