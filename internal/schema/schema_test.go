package schema

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/function"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roadBuilder() *Builder {
	return NewBuilder().
		Type("vertex.string", TypeDefinition{Class: function.ClassString, Serialiser: "string"}).
		Type("directed.boolean", TypeDefinition{Class: function.ClassBoolean}).
		Type("count.long", TypeDefinition{Class: function.ClassLong, AggregateFunction: function.Sum{}, Serialiser: "ordered_long"}).
		Type("name.string", TypeDefinition{Class: function.ClassString, AggregateFunction: function.Last{}}).
		Type("vis.string", TypeDefinition{Class: function.ClassString}).
		Edge("road", ElementDefinition{
			Source: "vertex.string", Destination: "vertex.string", Directed: "directed.boolean",
			Properties: []Property{{"count", "count.long"}, {"visibility", "vis.string"}},
		}).
		Entity("junction", ElementDefinition{
			Vertex:     "vertex.string",
			Properties: []Property{{"name", "name.string"}, {"count", "count.long"}},
		}).
		VisibilityProperty("visibility")
}

func TestBuild_Valid(t *testing.T) {
	s, err := roadBuilder().Build()
	require.NoError(t, err)

	assert.Equal(t, []string{"junction", "road"}, s.Groups())
	assert.Equal(t, function.ClassLong, s.PropertyClass("road", "count"))
	assert.Equal(t, function.ClassAny, s.PropertyClass("road", "missing"))
	assert.Equal(t, function.ClassString, s.VertexClass("road"))
	assert.Equal(t, "Sum", s.AggregatorFor("road", "count").Name())
	assert.Equal(t, []string{"visibility"}, s.IdentityProperties("road"))
	assert.Equal(t, "string", s.VertexSerialiser().Name())

	def, ok := s.Element("junction")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "count"}, def.PropertyNames())

	require.Len(t, s.Warnings(), 1)
	assert.Contains(t, s.Warnings()[0], "order-dependent")
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		wantMsg string
	}{
		{
			name: "undeclared property type",
			builder: NewBuilder().
				Type("v", TypeDefinition{Class: function.ClassString}).
				Entity("e", ElementDefinition{Vertex: "v", Properties: []Property{{"p", "nope"}}}),
			wantMsg: `property p has undeclared type "nope"`,
		},
		{
			name: "edge without directed type",
			builder: NewBuilder().
				Type("v", TypeDefinition{Class: function.ClassString}).
				Edge("e", ElementDefinition{Source: "v", Destination: "v"}),
			wantMsg: "no directed type declared",
		},
		{
			name: "directed type not boolean",
			builder: NewBuilder().
				Type("v", TypeDefinition{Class: function.ClassString}).
				Edge("e", ElementDefinition{Source: "v", Destination: "v", Directed: "v"}),
			wantMsg: "must be of class boolean",
		},
		{
			name: "missing aggregate function",
			builder: NewBuilder().
				Type("v", TypeDefinition{Class: function.ClassString}).
				Type("l", TypeDefinition{Class: function.ClassLong}).
				Entity("e", ElementDefinition{Vertex: "v", Properties: []Property{{"count", "l"}}}),
			wantMsg: "property count (type l) has no aggregate function",
		},
		{
			name: "group-by not a property",
			builder: NewBuilder().
				Type("v", TypeDefinition{Class: function.ClassString}).
				Entity("e", ElementDefinition{Vertex: "v", GroupBy: []string{"x"}, DisableAggregation: true}),
			wantMsg: "group-by property x is not a declared property",
		},
		{
			name: "operator cannot merge class",
			builder: NewBuilder().
				Type("v", TypeDefinition{Class: function.ClassString, AggregateFunction: function.Sum{}}),
			wantMsg: "aggregate function Sum cannot merge string values",
		},
		{
			name: "serialiser cannot handle class",
			builder: NewBuilder().
				Type("v", TypeDefinition{Class: function.ClassString, Serialiser: "ordered_long"}),
			wantMsg: "serialiser ordered_long cannot handle string values",
		},
		{
			name: "group is entity and edge",
			builder: NewBuilder().
				Type("v", TypeDefinition{Class: function.ClassString}).
				Type("b", TypeDefinition{Class: function.ClassBoolean}).
				Entity("x", ElementDefinition{Vertex: "v"}).
				Edge("x", ElementDefinition{Source: "v", Destination: "v", Directed: "b"}),
			wantMsg: "declared as both an entity and an edge",
		},
		{
			name: "conflicting type redeclaration",
			builder: NewBuilder().
				Type("v", TypeDefinition{Class: function.ClassString}).
				Type("v", TypeDefinition{Class: function.ClassLong}),
			wantMsg: "type v is declared twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.builder.Build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrSchemaValidation))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestBuild_AggregationDisabledNeedsNoOperators(t *testing.T) {
	_, err := NewBuilder().
		Type("v", TypeDefinition{Class: function.ClassString}).
		Type("l", TypeDefinition{Class: function.ClassLong}).
		Entity("e", ElementDefinition{Vertex: "v", Properties: []Property{{"count", "l"}}, DisableAggregation: true}).
		Build()
	assert.NoError(t, err)
}

func TestJSON_RoundTripKeepsPropertyOrder(t *testing.T) {
	s, err := roadBuilder().
		Entity("ordered", ElementDefinition{
			Vertex: "vertex.string",
			Properties: []Property{
				{"zeta", "count.long"}, {"alpha", "count.long"}, {"mid", "name.string"},
			},
			GroupBy: []string{"mid"},
			ValidateFunctions: []filter.TupleAdaptedPredicate{
				{Selection: []string{"zeta"}, Predicate: &function.IsMoreThan{Value: int64(0)}},
			},
		}).
		Build()
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	decoded, err := FromJSON(data)
	require.NoError(t, err)

	def, ok := decoded.Element("ordered")
	require.True(t, ok)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, def.PropertyNames())
	assert.Equal(t, []string{"mid"}, def.GroupBy)
	require.Len(t, def.ValidateFunctions, 1)
	assert.Equal(t, "visibility", decoded.VisibilityProperty())

	again, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestFromYAML(t *testing.T) {
	doc := `
types:
  vertex.string:
    class: string
  directed.boolean:
    class: boolean
  count.long:
    class: long
    aggregateFunction:
      class: Sum
    validateFunctions:
      - class: IsMoreThan
        value: 0
edges:
  road:
    source: vertex.string
    destination: vertex.string
    directed: directed.boolean
    properties:
      zcount: count.long
      acount: count.long
`
	s, err := FromYAML([]byte(doc))
	require.NoError(t, err)

	def, ok := s.Element("road")
	require.True(t, ok)
	assert.Equal(t, []string{"zcount", "acount"}, def.PropertyNames())

	bad := element.NewEdge("road", "A", "B", true, element.Properties{"zcount": int64(-1)})
	require.NoError(t, s.Coerce(bad))
	assert.Error(t, s.Validate(bad))
}

func TestLoad_MergesParts(t *testing.T) {
	dir := t.TempDir()
	types := `{"types":{"v":{"class":"string"},"l":{"class":"long","aggregateFunction":{"class":"Max"}}}}`
	elements := "entities:\n  person:\n    vertex: v\n    properties:\n      age: l\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_types.json"), []byte(types), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_elements.yaml"), []byte(elements), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0o644))

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"person"}, s.EntityGroups())
	assert.Equal(t, "Max", s.AggregatorFor("person", "age").Name())
}

func TestMerge_Conflicts(t *testing.T) {
	a, err := roadBuilder().Build()
	require.NoError(t, err)
	same, err := roadBuilder().Build()
	require.NoError(t, err)

	merged, err := NewBuilder().Merge(a).Merge(same).Build()
	require.NoError(t, err)
	assert.Equal(t, a.Groups(), merged.Groups())

	other, err := NewBuilder().
		Type("vertex.string", TypeDefinition{Class: function.ClassLong}).
		Build()
	require.NoError(t, err)
	_, err = NewBuilder().Merge(a).Merge(other).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "type vertex.string is declared twice")
}

func TestCoerce(t *testing.T) {
	s, err := roadBuilder().Build()
	require.NoError(t, err)

	e := element.NewEdge("road", "B", "A", false, element.Properties{"count": json.Number("3")})
	require.NoError(t, s.Coerce(e))
	assert.Equal(t, int64(3), e.Properties["count"])
	assert.Equal(t, "A", e.Source)

	tests := []struct {
		name string
		e    *element.Element
		want string
	}{
		{"unknown group", element.NewEntity("nope", "x", nil), "not in the schema"},
		{"kind mismatch", element.NewEntity("road", "x", nil), "is an Edge group"},
		{"undeclared property", element.NewEntity("junction", "x", element.Properties{"extra": 1}), "no property extra"},
		{"wrong class", element.NewEntity("junction", "x", element.Properties{"count": "many"}), "invalid property value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Coerce(tt.e)
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), err.Error())
		})
	}
}

func TestSerialisers(t *testing.T) {
	ordered, ok := LookupSerialiser("ordered_long")
	require.True(t, ok)

	values := []int64{-5, -1, 0, 1, 42}
	var prev []byte
	for _, v := range values {
		b, err := ordered.Serialise(v)
		require.NoError(t, err)
		if prev != nil {
			assert.Less(t, string(prev), string(b), "byte order must follow numeric order")
		}
		back, err := ordered.Deserialise(b)
		require.NoError(t, err)
		assert.Equal(t, v, back)
		prev = b
	}

	js, _ := LookupSerialiser("json")
	b, err := js.Serialise(map[string]int64{"a": 1})
	require.NoError(t, err)
	back, err := js.Deserialise(b)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1)}, back)
}
