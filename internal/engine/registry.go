package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/sirupsen/logrus"
)

// Handler executes one operation.
type Handler interface {
	Handle(ctx context.Context, op operation.Operation, req *Request) (any, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, op operation.Operation, req *Request) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, op operation.Operation, req *Request) (any, error) {
	return f(ctx, op, req)
}

// Registry maps operation classes to handlers, with fallbacks by output
// type for classes that have no handler of their own.
type Registry struct {
	handlers  map[string]Handler
	fallbacks map[operation.Type]Handler
	logger    *logrus.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		handlers:  make(map[string]Handler),
		fallbacks: make(map[operation.Type]Handler),
		logger:    logger,
	}
}

// Register installs the handler for an operation class.
func (r *Registry) Register(class string, h Handler) {
	if _, exists := r.handlers[class]; exists {
		panic(fmt.Sprintf("handler for operation '%s' already registered", class))
	}
	r.logger.WithField("operation", class).Debug("Registering operation handler")
	r.handlers[class] = h
}

// RegisterFunc installs a handler function.
func (r *Registry) RegisterFunc(class string, f HandlerFunc) {
	r.Register(class, f)
}

// Replace installs h for class, returning the handler it replaced, if any.
func (r *Registry) Replace(class string, h Handler) Handler {
	prev := r.handlers[class]
	r.handlers[class] = h
	return prev
}

// RegisterFallback installs the handler used for unregistered classes with
// the given output type.
func (r *Registry) RegisterFallback(out operation.Type, h Handler) {
	if _, exists := r.fallbacks[out]; exists {
		panic(fmt.Sprintf("fallback handler for output type '%s' already registered", out))
	}
	r.fallbacks[out] = h
}

// Lookup returns the handler for op.
func (r *Registry) Lookup(op operation.Operation) (Handler, bool) {
	if h, ok := r.handlers[op.Class()]; ok {
		return h, true
	}
	h, ok := r.fallbacks[op.OutputType()]
	return h, ok
}

// Has reports whether class has its own handler.
func (r *Registry) Has(class string) bool {
	_, ok := r.handlers[class]
	return ok
}

// Classes lists the classes with handlers, sorted.
func (r *Registry) Classes() []string {
	out := make([]string, 0, len(r.handlers))
	for class := range r.handlers {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}
