package filter

import (
	"encoding/json"
	"testing"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/function"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingPredicate records how many times it was evaluated.
type countingPredicate struct {
	calls  *int
	result bool
}

func (countingPredicate) Name() string { return "Counting" }
func (p countingPredicate) Test(args ...any) bool {
	*p.calls++
	return p.result
}

func TestElementFilter_AndSemantics(t *testing.T) {
	edge := element.NewEdge("road", "A", "B", true, element.Properties{"count": int64(3), "limit": int64(5)})

	tests := []struct {
		name   string
		filter *ElementFilter
		want   bool
	}{
		{"nil filter passes", nil, true},
		{"single passing", NewBuilder().Select("count").Execute(function.IsMoreThan{Value: int64(1)}).Build(), true},
		{"second fails", NewBuilder().
			Select("count").Execute(function.IsMoreThan{Value: int64(1)}).
			Select("count").Execute(function.IsLessThan{Value: int64(2)}).Build(), false},
		{"multi-argument selection", NewBuilder().Select("count", "limit").Execute(function.IsXLessThanY{}).Build(), true},
		{"identifier selection", NewBuilder().Select(element.IdentifierSource).Execute(function.IsEqual{Value: "A"}).Build(), true},
		{"absent property fails closed", NewBuilder().Select("missing").Execute(function.IsLessThan{Value: int64(10)}).Build(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Test(edge))
		})
	}
}

func TestElementFilter_ShortCircuits(t *testing.T) {
	calls := 0
	f := NewBuilder().
		Select("count").Execute(function.IsEqual{Value: "never"}).
		Select("count").Execute(countingPredicate{calls: &calls, result: true}).
		Build()

	assert.False(t, f.Test(element.NewEntity("g", "v", element.Properties{"count": int64(1)})))
	assert.Equal(t, 0, calls)
}

func TestElementFilter_DoesNotMutate(t *testing.T) {
	e := element.NewEntity("g", "v", element.Properties{"count": int64(1)})
	before := e.Clone()
	NewBuilder().Select("count").Execute(function.Exists{}).Build().Test(e)
	assert.True(t, before.Equal(e))
}

func TestElementTransformer_OrderAndProjection(t *testing.T) {
	e := element.NewEdge("road", "A", "B", true, element.Properties{"count": int64(7)})

	tr := NewTransformerBuilder().
		Select(element.IdentifierSource, element.IdentifierDestination).Execute(function.Concat{Separator: "->"}).Project("label").
		Select("label").Execute(function.ToUpper{}).Project("label").
		Select("count", "count").Execute(function.Multiply{}).Project("countSquared").
		Select("count", "countSquared").Execute(function.Divide{}).Project("quotient", "remainder").
		Build()

	require.NoError(t, tr.Apply(e))
	assert.Equal(t, "A->B", e.Properties["label"])
	assert.Equal(t, int64(49), e.Properties["countSquared"])
	assert.Equal(t, int64(0), e.Properties["quotient"])
	assert.Equal(t, int64(7), e.Properties["remainder"])
}

func TestElementTransformer_UpperCaseSeesEarlierStep(t *testing.T) {
	e := element.NewEntity("g", "v", element.Properties{"name": "bob"})
	tr := NewTransformerBuilder().
		Select("name").Execute(function.Concat{}).Project("display").
		Select("display").Execute(function.ToUpper{}).Project("display").
		Build()

	require.NoError(t, tr.Apply(e))
	assert.Equal(t, "BOB", e.Properties["display"])
}

func TestElementTransformer_CannotWriteIdentifier(t *testing.T) {
	e := element.NewEntity("g", "v", nil)
	tr := NewTransformerBuilder().Select(element.IdentifierVertex).Execute(function.ToUpper{}).Project(element.IdentifierVertex).Build()
	assert.Error(t, tr.Apply(e))
}

func TestJSON_RoundTrip(t *testing.T) {
	f := NewBuilder().
		Select("count").Execute(&function.IsMoreThan{Value: int64(1)}).
		Select("a", "b").Execute(&function.IsXLessThanY{}).
		Build()
	data, err := json.Marshal(f)
	require.NoError(t, err)

	var decoded ElementFilter
	require.NoError(t, json.Unmarshal(data, &decoded))
	again, err := json.Marshal(&decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))

	tr := NewTransformerBuilder().Select("x").Execute(&function.Concat{Separator: ","}).Project("y").Build()
	data, err = json.Marshal(tr)
	require.NoError(t, err)
	var decodedTr ElementTransformer
	require.NoError(t, json.Unmarshal(data, &decodedTr))
	assert.Len(t, decodedTr.Functions, 1)
	assert.Equal(t, []string{"y"}, decodedTr.Functions[0].Projection)
}
