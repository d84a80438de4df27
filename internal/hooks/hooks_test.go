package hooks

import (
	"bytes"
	"context"
	"testing"

	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/view"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedViewResolver(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache[view.NamedViewDetail]()
	d, err := view.NewNamedViewDetail("entities", view.NewBuilder().Entity("E").Build(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Add(ctx, d.Name, d, false))
	h := NewNamedViewResolver(c)

	nested := &operation.GetAllElements{View: view.NewBuilder().Named("entities", nil).Build()}
	plain := &operation.GetAllElements{View: view.NewBuilder().Edge("road").Build()}
	chain := operation.NewChain(
		&operation.FederatedOperation{Payload: operation.NewChain(nested)},
		&operation.DiscardOutput{},
		plain,
	)
	require.NoError(t, h.PreExecute(ctx, chain, engine.NewRequest(engine.User{})))
	assert.False(t, nested.View.IsNamed())
	assert.Equal(t, []string{"E"}, nested.View.Groups())
	assert.Equal(t, []string{"road"}, plain.View.Groups())

	missing := operation.NewChain(&operation.GetAllElements{View: view.NewBuilder().Named("nope", nil).Build()})
	err = h.PreExecute(ctx, missing, engine.NewRequest(engine.User{}))
	assert.ErrorIs(t, err, errors.ErrNamedViewNotFound)
}

func addNamedOperation(t *testing.T, c cache.Cache[operation.NamedOperationDetail], name, template string) {
	t.Helper()
	d := operation.NamedOperationDetail{Name: name, Chain: template}
	require.NoError(t, c.Add(context.Background(), name, d, false))
}

func TestNamedOperationResolver(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache[operation.NamedOperationDetail]()
	addNamedOperation(t, c, "count", `{"class":"OperationChain","operations":[{"class":"Count"}]}`)
	addNamedOperation(t, c, "all-then-count",
		`{"class":"OperationChain","operations":[{"class":"GetAllElements"},{"class":"NamedOperation","operationName":"count"}]}`)
	addNamedOperation(t, c, "loop", `{"class":"NamedOperation","operationName":"loop"}`)
	h := NewNamedOperationResolver(c)

	t.Run("expands recursively", func(t *testing.T) {
		chain := operation.NewChain(&operation.NamedOperation{Name: "all-then-count"})
		require.NoError(t, h.PreExecute(ctx, chain, engine.NewRequest(engine.User{})))

		var classes []string
		operation.Walk(chain, func(op operation.Operation) bool {
			classes = append(classes, op.Class())
			return true
		})
		assert.Equal(t, []string{"OperationChain", "OperationChain", "GetAllElements", "OperationChain", "Count"}, classes)
		require.NoError(t, chain.Validate())
		assert.Equal(t, operation.TypeLong, chain.OutputType())
	})

	t.Run("injects input", func(t *testing.T) {
		named := &operation.NamedOperation{Name: "count"}
		named.SetInput([]any{1, 2, 3})
		chain := operation.NewChain(named)
		require.NoError(t, h.PreExecute(ctx, chain, engine.NewRequest(engine.User{})))
		inner := chain.Ops[0].(*operation.Chain)
		assert.NotNil(t, inner.Ops[0].(*operation.Count).GetInput())
	})

	t.Run("self reference", func(t *testing.T) {
		chain := operation.NewChain(&operation.NamedOperation{Name: "loop"})
		err := h.PreExecute(ctx, chain, engine.NewRequest(engine.User{}))
		assert.ErrorIs(t, err, errors.ErrValidation)
	})
}

func TestChainLimiter(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		wantErr bool
	}{
		{name: "unlimited", max: 0},
		{name: "at limit", max: 3},
		{name: "over limit", max: 2, wantErr: true},
	}
	chain := operation.NewChain(
		&operation.GetAllElements{},
		operation.NewChain(&operation.Count{}),
		&operation.DiscardOutput{},
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &ChainLimiter{Max: tt.max}
			err := h.PreExecute(context.Background(), chain, engine.NewRequest(engine.User{}))
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoggingHook(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)
	h := NewLoggingHook(logger)

	chain := operation.NewChain(&operation.GetAllElements{}, &operation.Count{})
	req := engine.NewRequest(engine.User{ID: "alice"})
	require.NoError(t, h.PreExecute(context.Background(), chain, req))
	assert.Contains(t, buf.String(), "operations=\"GetAllElements,Count\"")
	assert.Contains(t, buf.String(), "user=alice")

	boom := errors.ValidationErrorf("boom")
	_, err := h.OnFailure(context.Background(), nil, chain, req, boom)
	assert.Same(t, boom, err)
	assert.Contains(t, buf.String(), "Operation chain failed")
}
