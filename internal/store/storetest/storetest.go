// Package storetest holds the behaviour every store backend must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/elemgraph/internal/aggregate"
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/function"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/rohankatakam/elemgraph/internal/store"
)

// Opener returns a fresh, empty backend for the schema.
type Opener func(t *testing.T, s *schema.Schema, agg *aggregate.Aggregator) store.Backend

// Schema has an aggregating entity group "E", an aggregating edge group
// "road" and a non-aggregating edge group "log". The "vis" property holds
// visibility expressions.
func Schema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder().
		Type("v", schema.TypeDefinition{Class: function.ClassString}).
		Type("dir", schema.TypeDefinition{Class: function.ClassBoolean}).
		Type("count", schema.TypeDefinition{Class: function.ClassLong, AggregateFunction: function.Sum{}}).
		Type("label", schema.TypeDefinition{Class: function.ClassString, AggregateFunction: function.Max{}}).
		Type("vis", schema.TypeDefinition{Class: function.ClassString, AggregateFunction: function.Max{}}).
		Entity("E", schema.ElementDefinition{
			Vertex: "v",
			Properties: []schema.Property{
				{Name: "count", Type: "count"}, {Name: "label", Type: "label"}, {Name: "vis", Type: "vis"},
			},
			GroupBy: []string{"label"},
		}).
		Edge("road", schema.ElementDefinition{
			Source: "v", Destination: "v", Directed: "dir",
			Properties: []schema.Property{{Name: "count", Type: "count"}, {Name: "vis", Type: "vis"}},
		}).
		Edge("log", schema.ElementDefinition{
			Source: "v", Destination: "v", Directed: "dir",
			Properties:         []schema.Property{{Name: "count", Type: "count"}},
			DisableAggregation: true,
		}).
		VisibilityProperty("vis").
		Build()
	require.NoError(t, err)
	return s
}

// Run exercises a backend.
func Run(t *testing.T, open Opener) {
	ctx := context.Background()
	s := Schema(t)

	t.Run("aggregates on ingest", func(t *testing.T) {
		b := open(t, s, aggregate.New(s))
		require.NoError(t, b.AddElements(ctx, []*element.Element{
			element.NewEdge("road", "a", "b", true, element.Properties{"count": int64(1)}),
		}))
		require.NoError(t, b.AddElements(ctx, []*element.Element{
			element.NewEdge("road", "a", "b", true, element.Properties{"count": int64(2)}),
		}))
		all, err := b.GetAllElements(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, int64(3), all[0].Properties["count"])
	})

	t.Run("group-by keeps observations apart", func(t *testing.T) {
		b := open(t, s, aggregate.New(s))
		require.NoError(t, b.AddElements(ctx, []*element.Element{
			element.NewEntity("E", "a", element.Properties{"count": int64(1), "label": "x"}),
			element.NewEntity("E", "a", element.Properties{"count": int64(2), "label": "y"}),
			element.NewEntity("E", "a", element.Properties{"count": int64(4), "label": "x"}),
		}))
		all, err := b.GetAllElements(ctx)
		require.NoError(t, err)
		counts := map[any]any{}
		for _, e := range all {
			counts[e.Properties["label"]] = e.Properties["count"]
		}
		assert.Equal(t, map[any]any{"x": int64(5), "y": int64(2)}, counts)
	})

	t.Run("non-aggregating group keeps every observation", func(t *testing.T) {
		b := open(t, s, aggregate.New(s))
		e := element.NewEdge("log", "a", "b", true, element.Properties{"count": int64(1)})
		require.NoError(t, b.AddElements(ctx, []*element.Element{e, e.Clone()}))
		all, err := b.GetAllElements(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("nil aggregator keeps every observation", func(t *testing.T) {
		b := open(t, s, nil)
		e := element.NewEdge("road", "a", "b", true, element.Properties{"count": int64(1)})
		require.NoError(t, b.AddElements(ctx, []*element.Element{e, e.Clone()}))
		all, err := b.GetAllElements(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("related", func(t *testing.T) {
		b := open(t, s, aggregate.New(s))
		require.NoError(t, b.AddElements(ctx, []*element.Element{
			element.NewEntity("E", "a", element.Properties{"count": int64(1)}),
			element.NewEntity("E", "c", element.Properties{"count": int64(1)}),
			element.NewEdge("road", "a", "b", true, element.Properties{"count": int64(1)}),
			element.NewEdge("road", "b", "c", false, element.Properties{"count": int64(1)}),
		}))

		tests := []struct {
			name     string
			vertices []any
			want     []string
		}{
			{name: "entity and edge", vertices: []any{"a"}, want: []string{"E a", "road a-b"}},
			{name: "destination side", vertices: []any{"b"}, want: []string{"road a-b", "road b-c"}},
			{name: "each once", vertices: []any{"a", "b"}, want: []string{"E a", "road a-b", "road b-c"}},
			{name: "unknown vertex", vertices: []any{"z"}, want: nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := b.GetRelated(ctx, tt.vertices)
				require.NoError(t, err)
				var names []string
				for _, e := range got {
					names = append(names, describe(e))
				}
				assert.ElementsMatch(t, tt.want, names)
			})
		}
	})

	t.Run("returns copies", func(t *testing.T) {
		b := open(t, s, aggregate.New(s))
		require.NoError(t, b.AddElements(ctx, []*element.Element{
			element.NewEntity("E", "a", element.Properties{"count": int64(1)}),
		}))
		first, err := b.GetAllElements(ctx)
		require.NoError(t, err)
		first[0].Properties["count"] = int64(99)
		again, err := b.GetAllElements(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), again[0].Properties["count"])
	})

	t.Run("cancelled context", func(t *testing.T) {
		b := open(t, s, aggregate.New(s))
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := b.AddElements(cctx, []*element.Element{
			element.NewEntity("E", "a", element.Properties{"count": int64(1)}),
		})
		assert.Error(t, err)
	})
}

func describe(e *element.Element) string {
	if e.IsEntity() {
		return e.Group + " " + e.Vertex.(string)
	}
	return e.Group + " " + e.Source.(string) + "-" + e.Destination.(string)
}
