package operation

import (
	"encoding/json"
	"iter"
	"slices"
	"testing"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/function"
	"github.com/rohankatakam/elemgraph/internal/view"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_AssignableTo(t *testing.T) {
	tests := []struct {
		out, in Type
		want    bool
	}{
		{TypeElements, TypeElements, true},
		{TypeElements, TypeElementIDs, true},
		{TypeElements, TypeObjects, true},
		{TypeElements, TypeGroupCounts, false},
		{TypeElementIDs, TypeElements, false},
		{TypeGroupCounts, TypeObjects, false},
		{TypeStrings, TypeObjects, true},
		{TypeLong, TypeAny, true},
		{TypeAny, TypeLong, true},
		{TypeVoid, TypeObjects, false},
		{TypeVoid, TypeAny, true},
	}
	for _, tt := range tests {
		t.Run(tt.out.String()+"->"+tt.in.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.out.AssignableTo(tt.in))
		})
	}
}

func TestChain_Validate(t *testing.T) {
	seeded := NewGetElements(element.EntityID("a"))
	tests := []struct {
		name    string
		chain   *Chain
		wantErr error
	}{
		{
			name:  "elements into group counts extraction via count groups",
			chain: NewChain(&GetAllElements{}, &CountGroups{}, &ExtractGroupCount{Group: "road"}),
		},
		{
			name:    "elements into group count extraction",
			chain:   NewChain(&GetAllElements{}, &ExtractGroupCount{Group: "road"}),
			wantErr: errors.ErrOperationChainType,
		},
		{
			name:  "limit keeps the element type",
			chain: NewChain(&GetAllElements{}, &Limit{ResultLimit: 3}, &CountGroups{}),
		},
		{
			name:    "limit over group counts",
			chain:   NewChain(&GetAllElements{}, &CountGroups{}, &Limit{ResultLimit: 3}),
			wantErr: errors.ErrOperationChainType,
		},
		{
			name:  "elements as seeds",
			chain: NewChain(&GetAllElements{}, &GetElements{}, &Count{}),
		},
		{
			name:  "preset input after void output",
			chain: NewChain(NewAddElements(element.NewEntity("E", "a", nil)), seeded),
		},
		{
			name:    "void output into count",
			chain:   NewChain(&GetAllElements{}, &DiscardOutput{}, &Count{}),
			wantErr: errors.ErrOperationChainType,
		},
		{
			name:  "input-less operation ignores previous output",
			chain: NewChain(&GetAllElements{}, &GetSchema{}),
		},
		{
			name:    "operation validation runs",
			chain:   NewChain(&GetAllElements{}, &CountGroups{}, &ExtractGroupCount{}),
			wantErr: errors.ErrValidation,
		},
		{
			name:    "empty chain",
			chain:   NewChain(),
			wantErr: errors.ErrValidation,
		},
		{
			name: "nested chain type checks on its boundary",
			chain: NewChain(
				NewChain(&GetAllElements{}, &CountGroups{}),
				&ExtractGroupCount{Group: "road"},
			),
		},
		{
			name: "federated keeps payload output type",
			chain: NewChain(
				&FederatedOperation{Payload: &GetAllElements{}},
				&Count{},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.chain.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFederatedOperation_Merge(t *testing.T) {
	tests := []struct {
		name    string
		op      *FederatedOperation
		want    string
		wantErr bool
	}{
		{name: "elements default", op: &FederatedOperation{Payload: &GetAllElements{}}, want: MergeConcat},
		{
			name: "summarising view aggregates",
			op:   &FederatedOperation{Payload: &GetAllElements{View: view.NewBuilder().Summarise(true).Build()}},
			want: MergeAggregate,
		},
		{name: "count sums", op: &FederatedOperation{Payload: NewChain(&GetAllElements{}, &Count{})}, want: MergeSum},
		{name: "group counts", op: &FederatedOperation{Payload: NewChain(&GetAllElements{}, &CountGroups{})}, want: MergeMapSum},
		{name: "void", op: &FederatedOperation{Payload: NewAddElements()}, want: MergeNone},
		{name: "explicit min", op: &FederatedOperation{Payload: NewChain(&GetAllElements{}, &Count{}), Merge: MergeMin}, want: MergeMin},
		{name: "unknown kind", op: &FederatedOperation{Payload: &GetAllElements{}, Merge: "median"}, want: "median", wantErr: true},
		{name: "sum of elements", op: &FederatedOperation{Payload: &GetAllElements{}, Merge: MergeSum}, want: MergeSum, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.MergeKind())
			err := NewChain(tt.op).Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, errors.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBindInput(t *testing.T) {
	a := element.NewEntity("E", "a", nil)
	road := element.NewEdge("road", "a", "b", true, nil)

	get := &GetElements{}
	require.NoError(t, BindInput(get, slices.Values([]*element.Element{a, road})))
	ids := slices.Collect(get.GetInput().(iter.Seq[element.ID]))
	assert.Equal(t, []element.ID{element.EntityID("a"), element.EdgeID("a", "b", element.DirectedTypeDirected)}, ids)

	require.NoError(t, BindInput(get, []any{"x", int64(2)}))
	ids = slices.Collect(get.GetInput().(iter.Seq[element.ID]))
	assert.Equal(t, []element.ID{element.EntityID("x"), element.EntityID(int64(2))}, ids)

	count := &Count{}
	err := BindInput(count, int64(3))
	assert.ErrorIs(t, err, errors.ErrConfig)

	limit := &Limit{}
	require.NoError(t, BindInput(limit, slices.Values([]*element.Element{a})))
	_, kept := limit.GetInput().(iter.Seq[*element.Element])
	assert.True(t, kept, "pass-through operations keep the element sequence type")

	extract := &ExtractGroupCount{}
	assert.ErrorIs(t, BindInput(extract, slices.Values([]*element.Element{a})), errors.ErrConfig)
}

func TestChain_CloneIsIndependent(t *testing.T) {
	v := view.NewBuilder().Entity("E").Build()
	orig := NewChain(&GetAllElements{View: v}, &Limit{ResultLimit: 1})
	orig.Ops[1].(*Limit).SetOption("k", "v")

	c := orig.CloneChain()
	c.Ops[0].(*GetAllElements).View.Entities["X"] = &view.ElementDefinition{}
	c.Ops[1].(*Limit).ResultLimit = 5
	c.Ops[1].(*Limit).SetOption("k", "changed")

	assert.Equal(t, []string{"E"}, v.EntityGroups())
	assert.Equal(t, 1, orig.Ops[1].(*Limit).ResultLimit)
	assert.Equal(t, "v", orig.Ops[1].(*Limit).Option("k"))
}

func TestCodec_RoundTrip(t *testing.T) {
	skip := true
	chain := NewChain(
		NewAddElements(
			element.NewEntity("E", "a", element.Properties{"count": int64(1)}),
			element.NewEdge("road", "a", "b", false, element.Properties{"count": int64(2)}),
		),
		NewGetElements(element.EntityID("a"), element.EdgeID("a", "b", element.DirectedTypeEither)),
		&Filter{Entities: map[string]*filter.ElementFilter{
			"E": filter.NewBuilder().Select("count").Execute(function.IsMoreThan{Value: int64(0)}).Build(),
		}},
		&FederatedOperation{
			GraphIDs:            []string{"g1", "g2"},
			Payload:             NewChain(&GetAllElements{View: view.NewBuilder().Edge("road").Summarise(true).Build()}, &Count{}),
			Merge:               MergeSum,
			SkipFailedExecution: &skip,
		},
		&NamedOperation{Name: "two-hop", Parameters: map[string]any{"n": int64(2)}},
	)

	data, err := Encode(chain)
	require.NoError(t, err)
	op, err := Decode(data)
	require.NoError(t, err)
	got, ok := op.(*Chain)
	require.True(t, ok)
	require.Len(t, got.Ops, 5)

	add := got.Ops[0].(*AddElements)
	assert.True(t, add.ValidateElements)
	elements := slices.Collect(add.GetInput().(iter.Seq[*element.Element]))
	require.Len(t, elements, 2)
	assert.True(t, elements[0].Equal(element.NewEntity("E", "a", element.Properties{"count": int64(1)})))

	seeds := slices.Collect(got.Ops[1].(*GetElements).GetInput().(iter.Seq[element.ID]))
	assert.Equal(t, []element.ID{element.EntityID("a"), element.EdgeID("a", "b", element.DirectedTypeEither)}, seeds)

	fed := got.Ops[3].(*FederatedOperation)
	assert.Equal(t, []string{"g1", "g2"}, fed.GraphIDs)
	assert.Equal(t, MergeSum, fed.Merge)
	require.NotNil(t, fed.SkipFailedExecution)
	assert.True(t, *fed.SkipFailedExecution)
	assert.Equal(t, TypeLong, fed.OutputType())

	named := got.Ops[4].(*NamedOperation)
	assert.Equal(t, int64(2), named.Parameters["n"])

	again, err := Encode(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

func TestCodec_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown class", doc: `{"class":"DropTable"}`},
		{name: "missing class", doc: `{"input":[]}`},
		{name: "input on input-less operation", doc: `{"class":"GetSchema","input":[1]}`},
		{name: "unknown nested class", doc: `{"class":"OperationChain","operations":[{"class":"Nope"}]}`},
		{name: "bad element", doc: `{"class":"AddElements","input":[{"class":"Vertex","group":"E"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestNamedOperationDetail_Instantiate(t *testing.T) {
	add := &AddNamedOperation{
		Name:  "top",
		Chain: NewChain(&GetAllElements{}, &Limit{ResultLimit: 1}),
		Parameters: map[string]view.ParameterDetail{
			"limit": {ValueClass: function.ClassInt, DefaultValue: 10},
		},
	}
	require.NoError(t, add.Validate())
	detail, err := add.Detail("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", detail.Creator)

	// Templates normally carry placeholders; write one in.
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(detail.Chain), &doc))
	doc["operations"].([]any)[1].(map[string]any)["resultLimit"] = "${limit}"
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	detail.Chain = string(raw)

	chain, err := detail.Instantiate(nil)
	require.NoError(t, err)
	assert.Equal(t, 10, chain.Ops[1].(*Limit).ResultLimit)

	chain, err = detail.Instantiate(map[string]any{"limit": 3})
	require.NoError(t, err)
	assert.Equal(t, 3, chain.Ops[1].(*Limit).ResultLimit)

	_, err = detail.Instantiate(map[string]any{"other": 1})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestAddNamedOperation_JSON(t *testing.T) {
	tests := []struct {
		name         string
		doc          string
		wantTemplate bool
	}{
		{
			name: "chain object",
			doc:  `{"class":"AddNamedOperation","operationName":"all","operationChain":{"class":"OperationChain","operations":[{"class":"GetAllElements"}]}}`,
		},
		{
			name:         "template string",
			doc:          `{"class":"AddNamedOperation","operationName":"top","operationChain":"{\"class\":\"OperationChain\",\"operations\":[{\"class\":\"GetAllElements\"},{\"class\":\"Limit\",\"resultLimit\":\"${n}\"}]}","parameters":{"n":{"valueClass":"int","defaultValue":2}}}`,
			wantTemplate: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := Decode([]byte(tt.doc))
			require.NoError(t, err)
			add := op.(*AddNamedOperation)
			require.NoError(t, add.Validate())
			assert.Equal(t, tt.wantTemplate, add.Template != "")
			assert.Equal(t, !tt.wantTemplate, add.Chain != nil)

			detail, err := add.Detail("bob")
			require.NoError(t, err)
			chain, err := detail.Instantiate(nil)
			require.NoError(t, err)
			assert.Equal(t, "GetAllElements", chain.Ops[0].Class())

			again, err := Encode(add)
			require.NoError(t, err)
			assert.JSONEq(t, tt.doc, string(again))
		})
	}
}

func TestWalk(t *testing.T) {
	inner := &GetAllElements{}
	chain := NewChain(&FederatedOperation{Payload: NewChain(inner, &Count{})}, &Limit{})

	var classes []string
	Walk(chain, func(op Operation) bool {
		classes = append(classes, op.Class())
		return true
	})
	assert.Equal(t, []string{"OperationChain", "FederatedOperation", "OperationChain", "GetAllElements", "Count", "Limit"}, classes)
}
