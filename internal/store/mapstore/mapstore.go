// Package mapstore is an in-memory element backend.
package mapstore

import (
	"context"
	"strconv"
	"sync"

	"github.com/rohankatakam/elemgraph/internal/aggregate"
	"github.com/rohankatakam/elemgraph/internal/element"
)

// Store keeps elements in maps: one slot per aggregation identity for
// aggregating groups, one per observation otherwise, plus a vertex index.
type Store struct {
	agg *aggregate.Aggregator

	mu       sync.RWMutex
	elements map[string]*element.Element
	order    []string
	vertices map[string]map[string]struct{}
	seq      uint64
}

// New returns an empty store. A nil aggregator stores every observation.
func New(agg *aggregate.Aggregator) *Store {
	return &Store{
		agg:      agg,
		elements: map[string]*element.Element{},
		vertices: map[string]map[string]struct{}{},
	}
}

// AddElements stores elements, merging each into the stored element of the
// same identity when its group aggregates. The batch is applied only if
// every element in it merges.
func (s *Store) AddElements(ctx context.Context, elements []*element.Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged := map[string]*element.Element{}
	var added []string
	seq := s.seq
	for _, e := range elements {
		if err := ctx.Err(); err != nil {
			return err
		}
		var key string
		if s.agg != nil && s.agg.Aggregates(e.Group) {
			key = "agg|" + s.agg.Key(e)
		} else {
			seq++
			key = "obs|" + strconv.FormatUint(seq, 10)
		}
		existing, ok := staged[key]
		if !ok {
			existing, ok = s.elements[key]
		}
		if !ok {
			added = append(added, key)
			staged[key] = e.Clone()
			continue
		}
		merged, err := s.agg.Aggregate(existing, e)
		if err != nil {
			return err
		}
		staged[key] = merged
	}

	s.seq = seq
	for _, key := range added {
		s.order = append(s.order, key)
		s.index(key, staged[key])
	}
	for key, e := range staged {
		s.elements[key] = e
	}
	return nil
}

func (s *Store) index(key string, e *element.Element) {
	for _, v := range e.Vertices() {
		vk := element.ValueKey(v)
		keys, ok := s.vertices[vk]
		if !ok {
			keys = map[string]struct{}{}
			s.vertices[vk] = keys
		}
		keys[key] = struct{}{}
	}
}

// GetAllElements returns copies of every stored element in insertion order.
func (s *Store) GetAllElements(ctx context.Context) ([]*element.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*element.Element, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.elements[key].Clone())
	}
	return out, ctx.Err()
}

// GetRelated returns copies of the elements touching any of vertices.
func (s *Store) GetRelated(ctx context.Context, vertices []any) ([]*element.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := map[string]bool{}
	for _, v := range vertices {
		for key := range s.vertices[element.ValueKey(v)] {
			wanted[key] = true
		}
	}
	var out []*element.Element
	for _, key := range s.order {
		if wanted[key] {
			out = append(out, s.elements[key].Clone())
		}
	}
	return out, ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
