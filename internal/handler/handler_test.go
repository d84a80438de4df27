package handler

import (
	"context"
	"iter"
	"slices"
	"testing"

	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/function"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/rohankatakam/elemgraph/internal/view"
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
		}).
		Edge("road", schema.ElementDefinition{
			Source: "v", Destination: "v", Directed: "dir",
			Properties: []schema.Property{{Name: "count", Type: "count"}},
		}).
		Build()
	require.NoError(t, err)
	return s
}

func sampleElements() []*element.Element {
	return []*element.Element{
		element.NewEntity("E", "a", element.Properties{"count": int64(1), "label": "x"}),
		element.NewEntity("E", "b", element.Properties{"count": int64(5), "label": "y"}),
		element.NewEdge("road", "a", "b", true, element.Properties{"count": int64(1)}),
		element.NewEdge("road", "a", "b", true, element.Properties{"count": int64(2)}),
	}
}

type fixture struct {
	executor *engine.Executor
	tracker  *jobs.Tracker
}

func newFixture(t *testing.T) *fixture {
	reg := engine.NewRegistry(nil)
	reg.RegisterFunc("GetAllElements", func(context.Context, operation.Operation, *engine.Request) (any, error) {
		return slices.Values(sampleElements()), nil
	})
	tracker := jobs.NewTracker(cache.NewMemoryCache[jobs.JobDetail](), nil)
	Register(reg, Options{
		Schema:          testSchema(t),
		Jobs:            tracker,
		NamedViews:      cache.NewMemoryCache[view.NamedViewDetail](),
		NamedOperations: cache.NewMemoryCache[operation.NamedOperationDetail](),
	})
	return &fixture{executor: engine.NewExecutor(reg, nil), tracker: tracker}
}

func (f *fixture) run(t *testing.T, user string, ops ...operation.Operation) (any, error) {
	t.Helper()
	return f.executor.Execute(context.Background(), operation.NewChain(ops...), engine.NewRequest(engine.User{ID: user}))
}

func collectElements(t *testing.T, v any) []*element.Element {
	t.Helper()
	seq, ok := v.(iter.Seq[*element.Element])
	require.True(t, ok, "got %T", v)
	return slices.Collect(seq)
}

func TestCounting(t *testing.T) {
	tests := []struct {
		name string
		ops  []operation.Operation
		want any
	}{
		{
			name: "count",
			ops:  []operation.Operation{&operation.GetAllElements{}, &operation.Count{}},
			want: int64(4),
		},
		{
			name: "entity group count",
			ops:  []operation.Operation{&operation.GetAllElements{}, &operation.CountGroups{}, &operation.ExtractGroupCount{Group: "E"}},
			want: int64(2),
		},
		{
			name: "edge group count",
			ops:  []operation.Operation{&operation.GetAllElements{}, &operation.CountGroups{}, &operation.ExtractGroupCount{Group: "road"}},
			want: int64(2),
		},
		{
			name: "limited group counts",
			ops:  []operation.Operation{&operation.GetAllElements{}, &operation.CountGroups{Limit: 1}},
			want: &operation.GroupCounts{Entities: map[string]int64{"E": 1}, Edges: map[string]int64{}, LimitHit: true},
		},
		{
			name: "count after limit",
			ops:  []operation.Operation{&operation.GetAllElements{}, &operation.Limit{ResultLimit: 3}, &operation.Count{}},
			want: int64(3),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newFixture(t).run(t, "u", tt.ops...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLimit(t *testing.T) {
	f := newFixture(t)
	got, err := f.run(t, "u", &operation.GetAllElements{}, &operation.Limit{ResultLimit: 2})
	require.NoError(t, err)
	assert.Len(t, collectElements(t, got), 2)

	strict := false
	_, err = f.run(t, "u", &operation.GetAllElements{}, &operation.Limit{ResultLimit: 2, Truncate: &strict})
	assert.ErrorIs(t, err, errors.ErrValidation)

	got, err = f.run(t, "u", &operation.GetAllElements{}, &operation.Limit{ResultLimit: 10, Truncate: &strict})
	require.NoError(t, err)
	assert.Len(t, collectElements(t, got), 4)
}

func TestToSet(t *testing.T) {
	f := newFixture(t)
	toSet := &operation.ToSet{}
	toSet.SetInput([]any{"a", "b", "a", int64(1), int64(1)})

	got, err := f.run(t, "u", toSet)
	require.NoError(t, err)
	seq, ok := got.(iter.Seq[any])
	require.True(t, ok)
	assert.Equal(t, []any{"a", "b", int64(1)}, slices.Collect(seq))
}

func TestFilterAndTransform(t *testing.T) {
	f := newFixture(t)
	filterOp := &operation.Filter{
		Entities: map[string]*filter.ElementFilter{
			"E": filter.NewBuilder().Select("count").Execute(function.IsMoreThan{Value: int64(1)}).Build(),
		},
	}
	transform := &operation.Transform{
		Entities: map[string]*filter.ElementTransformer{
			"E": filter.NewTransformerBuilder().Select("label").Execute(function.ToUpper{}).Project("label").Build(),
		},
	}

	got, err := f.run(t, "u", &operation.GetAllElements{}, filterOp, transform)
	require.NoError(t, err)
	elements := collectElements(t, got)
	require.Len(t, elements, 1)
	assert.Equal(t, "b", elements[0].Vertex)
	assert.Equal(t, "Y", elements[0].Properties["label"])
}

func TestAggregate(t *testing.T) {
	f := newFixture(t)
	got, err := f.run(t, "u", &operation.GetAllElements{}, &operation.Aggregate{})
	require.NoError(t, err)
	elements := collectElements(t, got)
	require.Len(t, elements, 3)
	assert.Equal(t, int64(3), elements[2].Properties["count"])
}

func TestExports(t *testing.T) {
	f := newFixture(t)
	got, err := f.run(t, "u",
		&operation.GetAllElements{},
		&operation.ExportToSet{Key: "all"},
		&operation.DiscardOutput{},
		&operation.GetSetExport{Key: "all", Start: 1, End: 3},
		&operation.Count{},
	)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	_, err = f.run(t, "u", &operation.GetSetExport{Key: "missing"})
	assert.ErrorIs(t, err, errors.ErrValidation)
}

func TestGetSchema(t *testing.T) {
	got, err := newFixture(t).run(t, "u", &operation.GetSchema{})
	require.NoError(t, err)
	s, ok := got.(*schema.Schema)
	require.True(t, ok)
	assert.Equal(t, []string{"E", "road"}, s.Groups())
}

func TestJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	parent, err := f.tracker.Start(ctx, jobs.JobDetail{User: "alice", Status: jobs.StatusScheduledParent})
	require.NoError(t, err)
	_, err = f.tracker.Start(ctx, jobs.JobDetail{User: "bob"})
	require.NoError(t, err)

	got, err := f.run(t, "alice", &operation.GetAllJobDetails{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, parent.JobID, got.([]jobs.JobDetail)[0].JobID)

	_, err = f.run(t, "bob", &operation.GetJobDetails{JobID: parent.JobID})
	assert.ErrorIs(t, err, errors.ErrValidation, "jobs are visible to their creator only")
	_, err = f.run(t, "bob", &operation.CancelScheduledJob{JobID: parent.JobID})
	assert.ErrorIs(t, err, errors.ErrValidation)

	got, err = f.run(t, "alice", &operation.GetJobDetails{JobID: parent.JobID})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusScheduledParent, got.([]jobs.JobDetail)[0].Status)

	_, err = f.run(t, "alice", &operation.CancelScheduledJob{JobID: parent.JobID})
	require.NoError(t, err)

	got, err = f.run(t, "alice", &operation.GetJobDetails{JobID: parent.JobID})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCancelled, got.([]jobs.JobDetail)[0].Status)

	_, err = f.run(t, "alice", &operation.GetJobDetails{JobID: "missing"})
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestNamedViews(t *testing.T) {
	f := newFixture(t)
	add := &operation.AddNamedView{Name: "entities", View: view.NewBuilder().Entity("E").Build()}

	_, err := f.run(t, "alice", add)
	require.NoError(t, err)
	_, err = f.run(t, "alice", add)
	assert.ErrorIs(t, err, cache.ErrAlreadyExists)

	overwrite := add.Clone().(*operation.AddNamedView)
	overwrite.Overwrite = true
	_, err = f.run(t, "bob", overwrite)
	assert.ErrorIs(t, err, errors.ErrValidation)

	_, err = f.run(t, "alice", &operation.AddNamedView{Name: "more", View: view.NewBuilder().Build(), MergedNamedViews: []string{"nope"}})
	assert.ErrorIs(t, err, errors.ErrNamedViewNotFound)

	got, err := f.run(t, "alice", &operation.GetAllNamedViews{})
	require.NoError(t, err)
	details := got.([]view.NamedViewDetail)
	require.Len(t, details, 1)
	assert.Equal(t, "alice", details[0].Creator)

	_, err = f.run(t, "bob", &operation.DeleteNamedView{Name: "entities"})
	assert.ErrorIs(t, err, errors.ErrValidation)
	_, err = f.run(t, "alice", &operation.DeleteNamedView{Name: "entities"})
	require.NoError(t, err)

	got, err = f.run(t, "alice", &operation.GetAllNamedViews{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNamedOperations(t *testing.T) {
	f := newFixture(t)
	add := &operation.AddNamedOperation{
		Name:     "firstN",
		Template: `{"class":"OperationChain","operations":[{"class":"Limit","resultLimit":"${n}"},{"class":"Count"}]}`,
		Parameters: map[string]view.ParameterDetail{
			"n": {ValueClass: function.ClassInt, DefaultValue: 1},
		},
	}
	_, err := f.run(t, "alice", add)
	require.NoError(t, err)

	tests := []struct {
		name    string
		params  map[string]any
		want    int64
		wantErr error
	}{
		{name: "default", want: 1},
		{name: "supplied", params: map[string]any{"n": 3}, want: 3},
		{name: "wrong class", params: map[string]any{"n": "many"}, wantErr: errors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.run(t, "bob", &operation.GetAllElements{}, &operation.NamedOperation{Name: "firstN", Parameters: tt.params})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err = f.run(t, "bob", &operation.NamedOperation{Name: "unknown"})
	assert.ErrorIs(t, err, errors.ErrValidation)

	got, err := f.run(t, "bob", &operation.GetAllNamedOperations{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	_, err = f.run(t, "alice", &operation.DeleteNamedOperation{Name: "firstN"})
	require.NoError(t, err)
}
