package view

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/function"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.NewBuilder().
		Type("v", schema.TypeDefinition{Class: function.ClassString}).
		Type("dir", schema.TypeDefinition{Class: function.ClassBoolean}).
		Type("count", schema.TypeDefinition{Class: function.ClassLong, AggregateFunction: function.Sum{}}).
		Type("label", schema.TypeDefinition{Class: function.ClassString, AggregateFunction: function.Max{}}).
		Entity("E", schema.ElementDefinition{
			Vertex:     "v",
			Properties: []schema.Property{{Name: "count", Type: "count"}, {Name: "label", Type: "label"}},
			GroupBy:    []string{"label"},
		}).
		Entity("X", schema.ElementDefinition{
			Vertex:     "v",
			Properties: []schema.Property{{Name: "count", Type: "count"}},
		}).
		Edge("road", schema.ElementDefinition{
			Source: "v", Destination: "v", Directed: "dir",
			Properties: []schema.Property{{Name: "count", Type: "count"}},
		}).
		Build()
	require.NoError(t, err)
	return s
}

func countAbove(n int64) *filter.ElementFilter {
	return filter.NewBuilder().Select("count").Execute(function.IsMoreThan{Value: n}).Build()
}

func addNamed(t *testing.T, c cache.Cache[NamedViewDetail], d NamedViewDetail) {
	t.Helper()
	require.NoError(t, d.Validate())
	require.NoError(t, c.Add(context.Background(), d.Name, d, false))
}

func TestResolve_PlainViewUnchanged(t *testing.T) {
	r := NewResolver(cache.NewMemoryCache[NamedViewDetail]())
	v := NewBuilder().Entity("E").Build()

	got, err := r.Resolve(context.Background(), v)
	require.NoError(t, err)
	assert.Same(t, v, got)
}

func TestResolve_NamedView(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache[NamedViewDetail]()
	basic, err := NewNamedViewDetail("basic", NewBuilder().Entity("E").Build(), nil)
	require.NoError(t, err)
	addNamed(t, c, basic)
	r := NewResolver(c)

	t.Run("template only", func(t *testing.T) {
		got, err := r.Resolve(ctx, NewBuilder().Named("basic", nil).Build())
		require.NoError(t, err)
		assert.False(t, got.IsNamed())
		assert.Equal(t, []string{"E"}, got.EntityGroups())
		assert.Empty(t, got.EdgeGroups())
		require.NoError(t, got.Validate(testSchema(t)))
	})

	t.Run("inline group is added", func(t *testing.T) {
		in := NewBuilder().
			Entity("X", &ElementDefinition{PreAggregationFilter: countAbove(1)}).
			Named("basic", nil).
			Build()
		got, err := r.Resolve(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, []string{"E", "X"}, got.EntityGroups())

		x, ok := got.Element("X")
		require.True(t, ok)
		require.NotNil(t, x.PreAggregationFilter)
		assert.True(t, x.PreAggregationFilter.Test(element.NewEntity("X", "a", element.Properties{"count": int64(2)})))
		assert.False(t, x.PreAggregationFilter.Test(element.NewEntity("X", "a", element.Properties{"count": int64(1)})))
	})
}

func TestResolve_Errors(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache[NamedViewDetail]()
	addNamed(t, c, NamedViewDetail{
		Name: "threshold",
		View: `{"class":"View","entities":{"E":{"preAggregationFilterFunctions":[` +
			`{"selection":["count"],"predicate":{"class":"IsMoreThan","value":"${min}"}}]}}}`,
		Parameters: map[string]ParameterDetail{
			"min": {ValueClass: function.ClassLong, Required: true},
		},
	})
	addNamed(t, c, NamedViewDetail{Name: "a", View: `{"class":"View"}`, MergedNamedViews: []string{"b"}})
	addNamed(t, c, NamedViewDetail{Name: "b", View: `{"class":"View"}`, MergedNamedViews: []string{"a"}})
	// Stored directly; Validate would reject it.
	require.NoError(t, c.Add(ctx, "nested", NamedViewDetail{Name: "nested", View: `{"class":"NamedView","name":"basic"}`}, false))
	r := NewResolver(c)

	tests := []struct {
		name    string
		view    *View
		wantErr error
	}{
		{
			name:    "unknown named view",
			view:    NewBuilder().Named("missing", nil).Build(),
			wantErr: errors.ErrNamedViewNotFound,
		},
		{
			name:    "unknown merged named view",
			view:    NewBuilder().Named("threshold", map[string]any{"min": 1}, "missing").Build(),
			wantErr: errors.ErrNamedViewNotFound,
		},
		{
			name:    "required parameter missing",
			view:    NewBuilder().Named("threshold", nil).Build(),
			wantErr: errors.ErrMissingRequiredParameter,
		},
		{
			name:    "undeclared parameter",
			view:    NewBuilder().Named("threshold", map[string]any{"min": 1, "max": 2}).Build(),
			wantErr: errors.ErrValidation,
		},
		{
			name:    "parameter of the wrong class",
			view:    NewBuilder().Named("threshold", map[string]any{"min": "lots"}).Build(),
			wantErr: errors.ErrValidation,
		},
		{
			name:    "template references a named view",
			view:    NewBuilder().Named("nested", nil).Build(),
			wantErr: errors.ErrNestedNamedViewNotAllowed,
		},
		{
			name:    "merge cycle",
			view:    NewBuilder().Named("a", nil).Build(),
			wantErr: errors.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Resolve(ctx, tt.view)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolve_Parameters(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache[NamedViewDetail]()
	addNamed(t, c, NamedViewDetail{
		Name: "threshold",
		View: `{"class":"View","entities":{"E":{"preAggregationFilterFunctions":[` +
			`{"selection":["count"],"predicate":{"class":"IsMoreThan","value":"${min}"}},` +
			`{"selection":["label"],"predicate":{"class":"Regex","pattern":"${prefix}.*"}}]}}}`,
		Parameters: map[string]ParameterDetail{
			"min":    {ValueClass: function.ClassLong, DefaultValue: int64(10)},
			"prefix": {ValueClass: function.ClassString, DefaultValue: "a"},
		},
	})
	r := NewResolver(c)

	tests := []struct {
		name   string
		params map[string]any
		count  int64
		label  string
		want   bool
	}{
		{name: "defaults pass", count: 11, label: "ab", want: true},
		{name: "defaults reject count", count: 10, label: "ab", want: false},
		{name: "supplied min", params: map[string]any{"min": 2}, count: 3, label: "ab", want: true},
		{name: "supplied prefix", params: map[string]any{"prefix": "z"}, count: 11, label: "ab", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, NewBuilder().Named("threshold", tt.params).Build())
			require.NoError(t, err)
			def, ok := got.Element("E")
			require.True(t, ok)
			e := element.NewEntity("E", "v", element.Properties{"count": tt.count, "label": tt.label})
			assert.Equal(t, tt.want, def.PreAggregationFilter.Test(e))
		})
	}
}

func TestResolve_MergeOrder(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache[NamedViewDetail]()

	base, err := NewNamedViewDetail("base", NewBuilder().
		Entity("E", &ElementDefinition{Properties: []string{"count"}, PreAggregationFilter: countAbove(1)}).
		Summarise(false).
		Build(), nil)
	require.NoError(t, err)
	base.MergedNamedViews = []string{"roads"}
	addNamed(t, c, base)

	roads, err := NewNamedViewDetail("roads", NewBuilder().Edge("road").Build(), nil)
	require.NoError(t, err)
	addNamed(t, c, roads)

	wide, err := NewNamedViewDetail("wide", NewBuilder().
		Entity("E", &ElementDefinition{Properties: []string{"count", "label"}, PreAggregationFilter: countAbove(2)}).
		Build(), nil)
	require.NoError(t, err)
	addNamed(t, c, wide)

	r := NewResolver(c)

	t.Run("later views win and filters accumulate", func(t *testing.T) {
		got, err := r.Resolve(ctx, NewBuilder().Named("base", nil, "wide").Summarise(true).Build())
		require.NoError(t, err)
		assert.Equal(t, []string{"road"}, got.EdgeGroups())
		assert.True(t, got.Summarises())

		e, ok := got.Element("E")
		require.True(t, ok)
		assert.Equal(t, []string{"count", "label"}, e.Properties)
		require.Len(t, e.PreAggregationFilter.Predicates, 2)
		assert.False(t, e.PreAggregationFilter.Test(element.NewEntity("E", "v", element.Properties{"count": int64(2)})))
	})

	t.Run("inline override replaces filters", func(t *testing.T) {
		in := NewBuilder().
			Entity("E", &ElementDefinition{PreAggregationFilter: countAbove(5), Override: true}).
			Named("base", nil).
			Build()
		got, err := r.Resolve(ctx, in)
		require.NoError(t, err)
		e, ok := got.Element("E")
		require.True(t, ok)
		require.Len(t, e.PreAggregationFilter.Predicates, 1)
		assert.Equal(t, []string{"count"}, e.Properties)
		assert.False(t, got.Summarises())
	})
}

func TestResolve_ParametersAcrossMergedViews(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache[NamedViewDetail]()
	addNamed(t, c, NamedViewDetail{
		Name: "threshold",
		View: `{"class":"View","entities":{"E":{"preAggregationFilterFunctions":[` +
			`{"selection":["count"],"predicate":{"class":"IsMoreThan","value":"${min}"}}]}}}`,
		Parameters: map[string]ParameterDetail{"min": {ValueClass: function.ClassLong, DefaultValue: int64(0)}},
	})
	addNamed(t, c, NamedViewDetail{
		Name: "labelled",
		View: `{"class":"View","entities":{"E":{"preAggregationFilterFunctions":[` +
			`{"selection":["label"],"predicate":{"class":"Regex","pattern":"${prefix}.*"}}]}}}`,
		Parameters: map[string]ParameterDetail{"prefix": {ValueClass: function.ClassString, DefaultValue: "a"}},
	})
	r := NewResolver(c)

	got, err := r.Resolve(ctx, NewBuilder().Named("labelled", map[string]any{"min": 5, "prefix": "z"}, "threshold").Build())
	require.NoError(t, err)
	def, ok := got.Element("E")
	require.True(t, ok)
	assert.True(t, def.PreAggregationFilter.Test(element.NewEntity("E", "v", element.Properties{"count": int64(6), "label": "zz"})))
	assert.False(t, def.PreAggregationFilter.Test(element.NewEntity("E", "v", element.Properties{"count": int64(5), "label": "zz"})))

	_, err = r.Resolve(ctx, NewBuilder().Named("threshold", map[string]any{"mni": 10}).Build())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrValidation)
	assert.Contains(t, err.Error(), "mni")
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name     string
		template string
		values   map[string]any
		want     string
	}{
		{
			name:     "whole string becomes json value",
			template: `{"n":"${n}","s":"${s}"}`,
			values:   map[string]any{"n": int64(3), "s": "x"},
			want:     `{"n":3,"s":"x"}`,
		},
		{
			name:     "embedded placeholder becomes text",
			template: `{"p":"${prefix}.*"}`,
			values:   map[string]any{"prefix": `a"b`},
			want:     `{"p":"a\"b.*"}`,
		},
		{
			name:     "values are not expanded again",
			template: `{"a":"${a}","bb":"${bb}"}`,
			values:   map[string]any{"a": "x", "bb": "${a}"},
			want:     `{"a":"x","bb":"${a}"}`,
		},
		{
			name:     "unknown placeholder kept",
			template: `{"a":"${other}"}`,
			values:   map[string]any{"a": 1},
			want:     `{"a":"${other}"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Substitute(tt.template, tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMerge_DoesNotAlias(t *testing.T) {
	base := NewBuilder().Entity("E", &ElementDefinition{GroupBy: []string{"label"}}).Build()
	over := NewBuilder().Entity("X").Build()

	merged := Merge(base, over)
	merged.Entities["E"].GroupBy[0] = "changed"
	assert.Equal(t, "label", base.Entities["E"].GroupBy[0])
	assert.Nil(t, Merge(nil, nil))
}

func TestView_Validate(t *testing.T) {
	s := testSchema(t)
	tests := []struct {
		name    string
		view    *View
		wantErr error
	}{
		{name: "entity and edge", view: NewBuilder().Entity("E").Edge("road").Build()},
		{name: "edge group used as entity", view: NewBuilder().Entity("road").Build(), wantErr: errors.ErrValidation},
		{name: "unknown group", view: NewBuilder().Edge("rail").Build(), wantErr: errors.ErrValidation},
		{
			name:    "group-by not in schema group-by",
			view:    NewBuilder().Entity("E", &ElementDefinition{GroupBy: []string{"count"}}).Build(),
			wantErr: errors.ErrValidation,
		},
		{name: "narrowed group-by", view: NewBuilder().Entity("E", &ElementDefinition{GroupBy: []string{}}).Build()},
		{
			name: "transient shadows schema property",
			view: NewBuilder().Entity("E", &ElementDefinition{
				TransientProperties: map[string]function.Class{"count": function.ClassLong},
			}).Build(),
			wantErr: errors.ErrValidation,
		},
		{
			name:    "unresolved named view",
			view:    NewBuilder().Named("basic", nil).Build(),
			wantErr: errors.ErrNestedNamedViewNotAllowed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.view.Validate(s)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestView_Expand(t *testing.T) {
	s := testSchema(t)
	v := NewBuilder().Entity("E", &ElementDefinition{Properties: []string{"count"}}).AllEntities().AllEdges().Build()

	got := v.Expand(s)
	assert.Equal(t, []string{"E", "X"}, got.EntityGroups())
	assert.Equal(t, []string{"road"}, got.EdgeGroups())
	assert.Equal(t, []string{"count"}, got.Entities["E"].Properties)
	assert.True(t, v.AllEntities)
}

func TestView_JSON(t *testing.T) {
	v := NewBuilder().
		Entity("E", &ElementDefinition{
			GroupBy:              []string{},
			Properties:           []string{"count"},
			PreAggregationFilter: countAbove(3),
			Transformer: filter.NewTransformerBuilder().
				Select("count").Execute(function.ToString{}).Project("text").Build(),
			TransientProperties: map[string]function.Class{"text": function.ClassString},
		}).
		Edge("road").
		Summarise(true).
		Build()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	got, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, v.EntityGroups(), got.EntityGroups())
	assert.Equal(t, v.EdgeGroups(), got.EdgeGroups())
	assert.True(t, got.Summarises())
	e := got.Entities["E"]
	assert.NotNil(t, e.GroupBy)
	assert.Empty(t, e.GroupBy)
	assert.Equal(t, []string{"count"}, e.Properties)
	assert.Equal(t, function.ClassString, e.TransientProperties["text"])
	assert.True(t, e.PreAggregationFilter.Test(element.NewEntity("E", "v", element.Properties{"count": int64(4)})))
	require.NotNil(t, e.Transformer)
	assert.Len(t, e.Transformer.Functions, 1)

	again, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestView_JSONNamed(t *testing.T) {
	in := []byte(`{"class":"NamedView","name":"basic","parameters":{"n":3},"mergedNamedViewNames":["x"],` +
		`"entities":{"X":{}}}`)
	v, err := Decode(in)
	require.NoError(t, err)
	assert.True(t, v.IsNamed())
	assert.Equal(t, int64(3), v.Parameters["n"])
	assert.Equal(t, []string{"x"}, v.MergedNamedViewNames)
	assert.Equal(t, []string{"X"}, v.EntityGroups())

	for _, bad := range []string{
		`{"class":"View","name":"basic"}`,
		`{"class":"NamedView"}`,
		`{"class":"Graph"}`,
	} {
		_, err := Decode([]byte(bad))
		assert.Error(t, err, bad)
	}
}
