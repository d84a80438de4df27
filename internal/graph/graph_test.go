package graph

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/elemgraph/internal/aggregate"
	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/config"
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/engine"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/federated"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/rohankatakam/elemgraph/internal/logging"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/store"
	"github.com/rohankatakam/elemgraph/internal/store/mapstore"
	"github.com/rohankatakam/elemgraph/internal/store/storetest"
	"github.com/rohankatakam/elemgraph/internal/view"
)

var alice = engine.User{ID: "alice"}

func road(src, dst string, count int64) *element.Element {
	return element.NewEdge("road", src, dst, true, element.Properties{"count": count})
}

// newMapGraph builds a map-backed graph with ingest aggregation and an
// in-memory job tracker.
func newMapGraph(t *testing.T, id string) *Graph {
	t.Helper()
	s := storetest.Schema(t)
	g, err := NewBuilder(id).
		Schema(s).
		Backend(mapstore.New(aggregate.New(s)), store.Options{}).
		Jobs(cache.NewMemoryCache[jobs.JobDetail](), 2).
		Logger(logging.Discard()).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { g.Close() })
	return g
}

func count(t *testing.T, g *Graph, op operation.Operation) int64 {
	t.Helper()
	out, err := g.Execute(context.Background(), operation.NewChain(op, &operation.Count{}), alice)
	require.NoError(t, err)
	return out.(int64)
}

func jobDetail(t *testing.T, g *Graph, id string) jobs.JobDetail {
	t.Helper()
	out, err := g.ExecuteOperation(context.Background(), &operation.GetJobDetails{JobID: id}, alice)
	require.NoError(t, err)
	details := out.([]jobs.JobDetail)
	require.Len(t, details, 1)
	return details[0]
}

func TestBuilder_Validation(t *testing.T) {
	s := storetest.Schema(t)
	tests := []struct {
		name  string
		build func() *Builder
		want  *errors.Error
	}{
		{
			name:  "missing id",
			build: func() *Builder { return NewBuilder("").Schema(s).Backend(mapstore.New(nil), store.Options{}) },
			want:  errors.ErrValidation,
		},
		{
			name:  "no store",
			build: func() *Builder { return NewBuilder("g").Schema(s) },
			want:  errors.ErrConfig,
		},
		{
			name: "backend and federation",
			build: func() *Builder {
				return NewBuilder("g").Schema(s).Backend(mapstore.New(nil), store.Options{}).Federated(federated.Options{})
			},
			want: errors.ErrConfig,
		},
		{
			name:  "backend without schema",
			build: func() *Builder { return NewBuilder("g").Backend(mapstore.New(nil), store.Options{}) },
			want:  errors.ErrConfig,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Logger(logging.Discard()).Build()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestGraph_Execute(t *testing.T) {
	ctx := context.Background()
	g := newMapGraph(t, "roads")

	_, err := g.ExecuteOperation(ctx, operation.NewAddElements(road("a", "b", 1), road("a", "b", 2)), alice)
	require.NoError(t, err)

	out, err := g.ExecuteOperation(ctx, &operation.GetAllElements{}, alice)
	require.NoError(t, err)
	seq, err := operation.Elements(out)
	require.NoError(t, err)
	all := slices.Collect(seq)
	require.Len(t, all, 1)
	assert.Equal(t, int64(3), all[0].Properties["count"])

	assert.Equal(t, "roads", g.GraphID())
	assert.True(t, g.Schema().HasGroup("road"))
	assert.True(t, g.Registry().Has("GetAllElements"))
}

func TestGraph_ConcurrentChains(t *testing.T) {
	ctx := context.Background()
	g := newMapGraph(t, "roads")
	summarised := view.NewBuilder().Edge("road").Summarise(true).Build()

	const writers, adds = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < adds; i++ {
				_, err := g.ExecuteOperation(ctx, operation.NewAddElements(road("a", "b", 1)), alice)
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < adds; i++ {
				chain := operation.NewChain(&operation.GetAllElements{View: summarised}, &operation.Count{})
				out, err := g.Execute(ctx, chain, alice)
				if assert.NoError(t, err) {
					assert.LessOrEqual(t, out.(int64), int64(1))
				}
			}
		}()
	}
	wg.Wait()

	out, err := g.ExecuteOperation(ctx, &operation.GetAllElements{View: summarised}, alice)
	require.NoError(t, err)
	seq, err := operation.Elements(out)
	require.NoError(t, err)
	all := slices.Collect(seq)
	require.Len(t, all, 1)
	assert.Equal(t, int64(writers*adds), all[0].Properties["count"])
}

func TestGraph_Federated(t *testing.T) {
	ctx := context.Background()
	a, b := newMapGraph(t, "a"), newMapGraph(t, "b")
	_, err := a.ExecuteOperation(ctx, operation.NewAddElements(road("x", "y", 1)), alice)
	require.NoError(t, err)
	_, err = b.ExecuteOperation(ctx, operation.NewAddElements(road("x", "y", 2), road("y", "z", 5)), alice)
	require.NoError(t, err)

	fed, err := NewBuilder("fed").
		Federated(federated.Options{Timeout: time.Second}, a, b).
		Logger(logging.Discard()).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { fed.Close() })

	assert.Equal(t, int64(3), count(t, fed, &operation.GetAllElements{}), "concat keeps each delegate's copy")
	assert.Equal(t, int64(2), count(t, fed, &operation.FederatedOperation{
		Payload: &operation.GetAllElements{},
		Merge:   operation.MergeAggregate,
	}), "aggregate merges x->y across delegates")

	out, err := fed.ExecuteOperation(ctx, &operation.GetAllGraphIDs{}, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, slices.Collect(out.(iter.Seq[string])))
	assert.True(t, fed.Schema().HasGroup("road"))

	// Skipped failures surface on the caller's request.
	req := engine.NewRequest(alice)
	require.NoError(t, a.Close())
	skip := true
	_, err = fed.Run(ctx, &operation.FederatedOperation{
		Payload:             &operation.GetAllElements{},
		SkipFailedExecution: &skip,
	}, req)
	require.NoError(t, err)
	failures := req.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "a", failures[0].GraphID)
}

func TestGraph_ExecuteJob(t *testing.T) {
	ctx := context.Background()
	g := newMapGraph(t, "jobs")

	ok, err := g.ExecuteJob(ctx, operation.NewAddElements(road("a", "b", 1)), alice)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusRunning, ok.Status)
	assert.Contains(t, ok.Chain, "AddElements")

	bad, err := g.ExecuteJob(ctx, &operation.GetAllGraphIDs{}, alice)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return jobDetail(t, g, ok.JobID).Status.Terminal() && jobDetail(t, g, bad.JobID).Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, jobs.StatusFinished, jobDetail(t, g, ok.JobID).Status)
	failed := jobDetail(t, g, bad.JobID)
	assert.Equal(t, jobs.StatusFailed, failed.Status)
	assert.Contains(t, failed.Description, "GetAllGraphIds")
	assert.NotNil(t, failed.EndTime)
	assert.Equal(t, int64(1), count(t, g, &operation.GetAllElements{}))
}

func TestGraph_ExecuteJob_NoTracker(t *testing.T) {
	s := storetest.Schema(t)
	g, err := NewBuilder("g").Schema(s).Backend(mapstore.New(nil), store.Options{}).Logger(logging.Discard()).Build()
	require.NoError(t, err)
	defer g.Close()

	_, err = g.ExecuteJob(context.Background(), &operation.GetAllElements{}, alice)
	assert.True(t, errors.Is(err, errors.ErrConfig))
	assert.False(t, g.Registry().Has("GetJobDetails"))
}

func TestGraph_ScheduleJob(t *testing.T) {
	ctx := context.Background()
	g := newMapGraph(t, "sched")

	_, err := g.ScheduleJob(ctx, &operation.GetAllElements{}, alice, jobs.Repeat{Period: 0})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	parent, err := g.ScheduleJob(ctx, operation.NewAddElements(road("a", "b", 1)), alice,
		jobs.Repeat{InitialDelay: time.Millisecond, Period: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusScheduledParent, parent.Status)

	children := func() []jobs.JobDetail {
		out, err := g.ExecuteOperation(ctx, &operation.GetAllJobDetails{}, alice)
		require.NoError(t, err)
		var runs []jobs.JobDetail
		for _, d := range out.([]jobs.JobDetail) {
			if d.ParentJobID == parent.JobID {
				runs = append(runs, d)
			}
		}
		return runs
	}
	require.Eventually(t, func() bool { return len(children()) >= 2 }, 2*time.Second, 5*time.Millisecond)

	_, err = g.ExecuteOperation(ctx, &operation.CancelScheduledJob{JobID: parent.JobID}, alice)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCancelled, jobDetail(t, g, parent.JobID).Status)

	time.Sleep(50 * time.Millisecond)
	settled := len(children())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, len(children()), "no runs after cancellation")

	// Every run added the same edge, aggregated into one.
	out, err := g.ExecuteOperation(ctx, &operation.GetAllElements{}, alice)
	require.NoError(t, err)
	seq, err := operation.Elements(out)
	require.NoError(t, err)
	all := slices.Collect(seq)
	require.Len(t, all, 1)
	assert.Equal(t, int64(settled), all[0].Properties["count"])
}

func TestGraph_Close(t *testing.T) {
	ctx := context.Background()
	g := newMapGraph(t, "closing")

	parent, err := g.ScheduleJob(ctx, &operation.GetAllElements{}, alice, jobs.Repeat{InitialDelay: time.Hour, Period: time.Hour})
	require.NoError(t, err)
	assert.NotEmpty(t, parent.JobID)

	require.NoError(t, g.Close())
	require.NoError(t, g.Close())

	_, err = g.ExecuteOperation(ctx, &operation.GetAllElements{}, alice)
	assert.Error(t, err)
	_, err = g.ExecuteJob(ctx, &operation.GetAllElements{}, alice)
	assert.Error(t, err)
}

const roadSchema = `
types:
  vertex.string:
    class: string
  directed.boolean:
    class: boolean
  count.long:
    class: long
    aggregateFunction:
      class: Sum
edges:
  road:
    source: vertex.string
    destination: vertex.string
    directed: directed.boolean
    properties:
      count: count.long
`

func TestFromConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(roadSchema), 0o644))

	delegate := func(id string, storeType string) config.Config {
		c := *config.Default()
		c.Graph.ID = id
		c.Graph.Schema = []string{schemaPath}
		c.Store.Type = storeType
		c.Store.BoltPath = filepath.Join(dir, id+".db")
		return c
	}
	cfg := config.Default()
	cfg.Graph.ID = "fed"
	cfg.Store.Type = config.StoreFederated
	cfg.Federation.Graphs = []config.Config{
		delegate("mem", config.StoreMap),
		delegate("disk", config.StoreBolt),
	}
	cfg.Caches.NamedViews = config.CacheConfig{Type: config.CacheBolt, Path: filepath.Join(dir, "caches.db")}
	cfg.Caches.NamedOperations = config.CacheConfig{Type: config.CacheBolt, Path: filepath.Join(dir, "caches.db")}
	cfg.Caches.Jobs = config.CacheConfig{Type: config.CacheSQLite, Path: filepath.Join(dir, "jobs.db")}
	cfg.Graph.Hooks = append(cfg.Graph.Hooks, "chain_limit")
	cfg.Graph.MaxChainLength = 3

	g, err := FromConfig(ctx, cfg, logging.Discard())
	require.NoError(t, err)

	_, err = g.ExecuteOperation(ctx, operation.NewAddElements(road("a", "b", 1), road("a", "b", 2)), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count(t, g, &operation.GetAllElements{}), "each delegate aggregated its copy")

	d, err := g.ExecuteJob(ctx, &operation.GetAllElements{}, alice)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return jobDetail(t, g, d.JobID).Status.Terminal() }, 2*time.Second, 5*time.Millisecond)

	long := operation.NewChain(&operation.GetAllElements{}, &operation.Limit{ResultLimit: 5}, &operation.ToSet{}, &operation.Count{})
	_, err = g.Execute(ctx, long, alice)
	assert.True(t, errors.Is(err, errors.ErrValidation), "chain_limit hook rejects long chains")

	require.NoError(t, g.Close())

	// The bolt delegate persisted its edge.
	reopened, err := FromConfig(ctx, &cfg.Federation.Graphs[1], logging.Discard())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, int64(1), count(t, reopened, &operation.GetAllElements{}))
}

func TestFromConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{name: "unknown store", modify: func(c *config.Config) { c.Store.Type = "mongo" }},
		{name: "missing schema file", modify: func(c *config.Config) { c.Graph.Schema = []string{"/does/not/exist.yaml"} }},
		{
			name: "bad delegate",
			modify: func(c *config.Config) {
				sub := *config.Default()
				sub.Graph.ID = "child"
				sub.Graph.Schema = []string{"/does/not/exist.yaml"}
				c.Store.Type = config.StoreFederated
				c.Federation.Graphs = []config.Config{sub}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(cfg)
			_, err := FromConfig(context.Background(), cfg, logging.Discard())
			assert.True(t, errors.Is(err, errors.ErrConfig), "got %v", err)
		})
	}
}
