// Package federated dispatches operations to a set of delegate graphs and
// merges their results.
package federated

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/schema"
)

// Delegate is one graph of a federation.
type Delegate interface {
	GraphID() string
	Schema() *schema.Schema
	// Run executes op for req, including the delegate's own hooks.
	Run(ctx context.Context, op operation.Operation, req *engine.Request) (any, error)
}

// Options configure dispatch.
type Options struct {
	// SkipFailed drops failing delegates from the merge instead of failing
	// the call. FederatedOperation.SkipFailedExecution overrides it.
	SkipFailed bool
	// Timeout bounds each delegate call; zero means no bound.
	Timeout time.Duration
	// MaxConcurrency bounds in-flight delegate calls; zero means one per
	// delegate.
	MaxConcurrency int
	// RateLimit throttles delegate calls per second; zero disables it.
	RateLimit float64
	Burst     int
	Logger    *logrus.Logger
}

// Store is a federation of delegate graphs. Delegates may be added and
// removed while operations run.
type Store struct {
	opts    Options
	limiter *rate.Limiter
	logger  *logrus.Logger

	mu     sync.RWMutex
	graphs map[string]Delegate
	order  []string
	schema *schema.Schema
}

// New returns a federation over delegates.
func New(opts Options, delegates ...Delegate) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	s := &Store{opts: opts, logger: opts.Logger, graphs: map[string]Delegate{}}
	if opts.RateLimit > 0 {
		burst := max(opts.Burst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	for _, d := range delegates {
		if err := s.AddGraph(d); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// AddGraph adds a delegate. Its schema must be compatible with the
// schemas already federated.
func (s *Store) AddGraph(d Delegate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := d.GraphID()
	if id == "" {
		return errors.ValidationErrorf("delegate graph requires a graph id")
	}
	if _, exists := s.graphs[id]; exists {
		return errors.ValidationErrorf("graph %s is already in the federation", id).WithContext("graph_id", id)
	}
	merged, err := mergeSchemas(append(s.schemas(), d.Schema()))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeSchemaValidation, errors.SeverityHigh,
			"delegate schema conflicts with the federation").WithContext("graph_id", id)
	}
	s.graphs[id] = d
	s.order = append(s.order, id)
	s.schema = merged
	s.logger.WithField("graph_id", id).Info("Added graph to federation")
	return nil
}

// RemoveGraph detaches a delegate, reporting whether it was present.
func (s *Store) RemoveGraph(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[id]; !ok {
		return false
	}
	delete(s.graphs, id)
	for i, g := range s.order {
		if g == id {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	// Remaining schemas merged cleanly before, so they still do.
	s.schema, _ = mergeSchemas(s.schemas())
	s.logger.WithField("graph_id", id).Info("Removed graph from federation")
	return true
}

// GraphIDs lists delegate ids in the order they were added.
func (s *Store) GraphIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Schema is the merge of every delegate schema.
func (s *Store) Schema() *schema.Schema {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schema
}

func (s *Store) schemas() []*schema.Schema {
	out := make([]*schema.Schema, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.graphs[id].Schema())
	}
	return out
}

// targets resolves the delegates named by ids, or every delegate.
func (s *Store) targets(ids []string) ([]Delegate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(ids) == 0 {
		ids = s.order
	}
	out := make([]Delegate, 0, len(ids))
	for _, id := range ids {
		d, ok := s.graphs[id]
		if !ok {
			return nil, errors.ValidationErrorf("graph %s is not in the federation", id).WithContext("graph_id", id)
		}
		out = append(out, d)
	}
	return out, nil
}

func mergeSchemas(schemas []*schema.Schema) (*schema.Schema, error) {
	b := schema.NewBuilder()
	for _, sc := range schemas {
		b.Merge(sc)
	}
	return b.Build()
}
