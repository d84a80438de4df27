package graph

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/federated"
	"github.com/rohankatakam/elemgraph/internal/handler"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/rohankatakam/elemgraph/internal/store"
	"github.com/rohankatakam/elemgraph/internal/view"
)

// Builder assembles a Graph. Exactly one of Backend and Federated must be
// called.
type Builder struct {
	id          string
	description string
	schema      *schema.Schema
	logger      *logrus.Logger

	backend   store.Backend
	storeOpts store.Options

	federated bool
	fedOpts   federated.Options
	delegates []federated.Delegate

	hooks           []engine.Hook
	namedViews      cache.Cache[view.NamedViewDetail]
	namedOperations cache.Cache[operation.NamedOperationDetail]
	jobs            cache.Cache[jobs.JobDetail]
	maxJobs         int

	closers []io.Closer
}

// NewBuilder starts a graph with the given id.
func NewBuilder(id string) *Builder {
	return &Builder{id: id}
}

func (b *Builder) Description(d string) *Builder {
	b.description = d
	return b
}

// Schema sets the schema of a store-backed graph. Federated graphs use
// the merged schema of their delegates.
func (b *Builder) Schema(s *schema.Schema) *Builder {
	b.schema = s
	return b
}

func (b *Builder) Logger(l *logrus.Logger) *Builder {
	b.logger = l
	return b
}

// Backend stores elements in backend. The graph closes it.
func (b *Builder) Backend(backend store.Backend, opts store.Options) *Builder {
	b.backend = backend
	b.storeOpts = opts
	return b
}

// Federated makes the graph a federation over delegates.
func (b *Builder) Federated(opts federated.Options, delegates ...federated.Delegate) *Builder {
	b.federated = true
	b.fedOpts = opts
	b.delegates = append(b.delegates, delegates...)
	return b
}

// Hooks appends hooks; they run in the order added.
func (b *Builder) Hooks(hooks ...engine.Hook) *Builder {
	b.hooks = append(b.hooks, hooks...)
	return b
}

func (b *Builder) NamedViews(c cache.Cache[view.NamedViewDetail]) *Builder {
	b.namedViews = c
	return b
}

func (b *Builder) NamedOperations(c cache.Cache[operation.NamedOperationDetail]) *Builder {
	b.namedOperations = c
	return b
}

// Jobs enables job tracking in c, running at most maxConcurrent jobs at
// once (zero for no bound).
func (b *Builder) Jobs(c cache.Cache[jobs.JobDetail], maxConcurrent int) *Builder {
	b.jobs = c
	b.maxJobs = maxConcurrent
	return b
}

// closeWith registers resources the graph releases on Close, after its
// backend.
func (b *Builder) closeWith(c ...io.Closer) *Builder {
	b.closers = append(b.closers, c...)
	return b
}

// Build validates the configuration and returns the graph.
func (b *Builder) Build() (*Graph, error) {
	if b.id == "" {
		return nil, errors.ValidationErrorf("graph id is required")
	}
	if b.logger == nil {
		b.logger = logrus.StandardLogger()
	}
	if b.federated == (b.backend != nil) {
		return nil, errors.ConfigErrorf("graph %s needs exactly one of a backend or a federation", b.id).
			WithContext("graph_id", b.id)
	}

	reg := engine.NewRegistry(b.logger)
	g := &Graph{
		id:          b.id,
		description: b.description,
		logger:      b.logger,
	}
	if b.jobs != nil {
		g.tracker = jobs.NewTracker(b.jobs, b.logger)
	}
	opts := handler.Options{
		Jobs:            g.tracker,
		NamedViews:      b.namedViews,
		NamedOperations: b.namedOperations,
		Logger:          b.logger,
	}

	if b.federated {
		if b.fedOpts.Logger == nil {
			b.fedOpts.Logger = b.logger
		}
		fs, err := federated.New(b.fedOpts, b.delegates...)
		if err != nil {
			return nil, err
		}
		opts.SchemaSource = fs.Schema
		g.schema = fs.Schema
		handler.Register(reg, opts)
		fs.Register(reg)
	} else {
		if b.schema == nil {
			return nil, errors.ConfigErrorf("graph %s has no schema", b.id).WithContext("graph_id", b.id)
		}
		if b.storeOpts.Logger == nil {
			b.storeOpts.Logger = b.logger
		}
		st := store.New(b.backend, b.schema, b.storeOpts)
		s := b.schema
		opts.Schema = s
		g.schema = func() *schema.Schema { return s }
		handler.Register(reg, opts)
		st.Register(reg)
		g.closers = append(g.closers, st)
	}
	g.closers = append(g.closers, b.closers...)

	g.executor = engine.NewExecutor(reg, b.logger, b.hooks...)
	if b.maxJobs > 0 {
		g.jobSlots = make(chan struct{}, b.maxJobs)
	}
	g.ctx, g.cancel = context.WithCancel(context.Background())

	b.logger.WithFields(logrus.Fields{
		"graph_id":  b.id,
		"federated": b.federated,
		"hooks":     len(b.hooks),
		"jobs":      g.tracker != nil,
	}).Debug("Graph built")
	return g, nil
}
