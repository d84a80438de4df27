package graph

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/elemgraph/internal/aggregate"
	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/config"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/federated"
	"github.com/rohankatakam/elemgraph/internal/hooks"
	"github.com/rohankatakam/elemgraph/internal/jobs"
	"github.com/rohankatakam/elemgraph/internal/operation"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/rohankatakam/elemgraph/internal/storage"
	"github.com/rohankatakam/elemgraph/internal/store"
	"github.com/rohankatakam/elemgraph/internal/store/boltstore"
	"github.com/rohankatakam/elemgraph/internal/store/mapstore"
	"github.com/rohankatakam/elemgraph/internal/store/neo4jstore"
	"github.com/rohankatakam/elemgraph/internal/view"
)

// FromConfig builds a graph from cfg. Federated graphs build each
// delegate graph from its own configuration and close them on Close.
func FromConfig(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Graph, error) {
	if result := cfg.Validate(); result.HasErrors() {
		return nil, errors.ConfigErrorf("%s", result.Error()).WithContext("graph_id", cfg.Graph.ID)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := &resources{logger: logger, boltFiles: map[string]*bolt.DB{}}
	g, err := r.build(ctx, cfg)
	if err != nil {
		r.release()
		return nil, err
	}
	return g, nil
}

// resources tracks what FromConfig opened, so a failed build releases it.
type resources struct {
	logger    *logrus.Logger
	boltFiles map[string]*bolt.DB
	opened    []io.Closer
}

func (r *resources) track(c io.Closer) {
	r.opened = append(r.opened, c)
}

func (r *resources) release() {
	for i := len(r.opened) - 1; i >= 0; i-- {
		r.opened[i].Close()
	}
}

func (r *resources) build(ctx context.Context, cfg *config.Config) (*Graph, error) {
	log := r.logger.WithFields(logrus.Fields{"graph_id": cfg.Graph.ID, "store": cfg.Store.Type})
	b := NewBuilder(cfg.Graph.ID).Description(cfg.Graph.Description).Logger(r.logger)
	mark := len(r.opened)

	if cfg.Store.Type == config.StoreFederated {
		delegates := make([]federated.Delegate, 0, len(cfg.Federation.Graphs))
		for i := range cfg.Federation.Graphs {
			sub, err := r.build(ctx, &cfg.Federation.Graphs[i])
			if err != nil {
				return nil, fmt.Errorf("delegate graph %q: %w", cfg.Federation.Graphs[i].Graph.ID, err)
			}
			r.track(sub)
			delegates = append(delegates, sub)
		}
		b.Federated(federated.Options{
			SkipFailed:     cfg.Federation.SkipFailed,
			Timeout:        cfg.Federation.Timeout,
			MaxConcurrency: cfg.Federation.MaxConcurrency,
			RateLimit:      cfg.Federation.RateLimit,
			Burst:          cfg.Federation.Burst,
		}, delegates...)
	} else {
		sc, err := loadSchema(cfg.Graph.Schema)
		if err != nil {
			return nil, err
		}
		backend, err := r.openBackend(ctx, cfg, sc)
		if err != nil {
			return nil, err
		}
		r.track(backend)
		b.Schema(sc).Backend(backend, store.Options{BatchSize: cfg.Store.BatchSize})
	}

	namedViews, err := openCache[view.NamedViewDetail](ctx, r, cfg.Graph.ID, "named_views", cfg.Caches.NamedViews)
	if err != nil {
		return nil, err
	}
	namedOps, err := openCache[operation.NamedOperationDetail](ctx, r, cfg.Graph.ID, "named_operations", cfg.Caches.NamedOperations)
	if err != nil {
		return nil, err
	}
	b.NamedViews(namedViews).NamedOperations(namedOps)

	if cfg.Jobs.Enabled {
		jobCache, err := r.openJobCache(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.Jobs(jobCache, cfg.Jobs.MaxConcurrent)
	}

	for _, name := range cfg.Graph.Hooks {
		switch name {
		case "named_operations":
			b.Hooks(hooks.NewNamedOperationResolver(namedOps))
		case "named_views":
			b.Hooks(hooks.NewNamedViewResolver(namedViews))
		case "chain_limit":
			b.Hooks(&hooks.ChainLimiter{Max: cfg.Graph.MaxChainLength})
		case "logging":
			b.Hooks(hooks.NewLoggingHook(r.logger))
		default:
			return nil, errors.ConfigErrorf("unknown hook %q", name).WithContext("graph_id", cfg.Graph.ID)
		}
	}

	// The graph closes everything opened for it, delegates included. The
	// backend is closed through the store.
	for _, c := range r.opened[mark:] {
		if c != io.Closer(b.backend) {
			b.closeWith(c)
		}
	}

	g, err := b.Build()
	if err != nil {
		return nil, err
	}
	log.Info("Graph ready")
	return g, nil
}

func loadSchema(paths []string) (*schema.Schema, error) {
	if len(paths) == 0 {
		return schema.NewBuilder().Build()
	}
	return schema.Load(paths...)
}

func (r *resources) openBackend(ctx context.Context, cfg *config.Config, sc *schema.Schema) (store.Backend, error) {
	var agg *aggregate.Aggregator
	if cfg.Store.IngestAggregation {
		agg = aggregate.New(sc)
	}
	switch cfg.Store.Type {
	case config.StoreMap:
		return mapstore.New(agg), nil
	case config.StoreBolt:
		return boltstore.Open(cfg.Store.BoltPath, sc, agg, r.logger)
	case config.StoreNeo4j:
		n := cfg.Store.Neo4j
		return neo4jstore.Open(ctx, neo4jstore.Options{
			URI:      n.URI,
			Username: n.Username,
			Password: n.Password,
			Database: n.Database,
			Logger:   r.logger,
		}, sc, agg)
	}
	return nil, errors.ConfigErrorf("unknown store type %q", cfg.Store.Type).WithContext("graph_id", cfg.Graph.ID)
}

// boltDB opens path once per build; caches configured with the same file
// share it under different buckets.
func (r *resources) boltDB(path string) (*bolt.DB, error) {
	path = filepath.Clean(path)
	if db, ok := r.boltFiles[path]; ok {
		return db, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.CacheError(err, "create directory", path)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.CacheError(err, "open", path)
	}
	r.boltFiles[path] = db
	r.track(db)
	return db, nil
}

func openCache[V any](ctx context.Context, r *resources, graphID, name string, cc config.CacheConfig) (cache.Cache[V], error) {
	bucket := cc.Bucket
	if bucket == "" {
		bucket = name
	}
	switch cc.Type {
	case "", config.CacheMemory:
		return cache.NewMemoryCache[V](), nil
	case config.CacheBolt:
		db, err := r.boltDB(cc.Path)
		if err != nil {
			return nil, err
		}
		return cache.NewBoltCache[V](db, bucket)
	case config.CacheRedis:
		hash := cc.Redis.Hash
		if hash == "" {
			hash = fmt.Sprintf("elemgraph:%s:%s", graphID, name)
		}
		c, err := cache.DialRedisCache[V](ctx, cache.RedisOptions{
			Addr:     cc.Redis.Addr,
			Password: cc.Redis.Password,
			DB:       cc.Redis.DB,
		}, hash, r.logger)
		if err != nil {
			return nil, err
		}
		r.track(c)
		return c, nil
	}
	return nil, errors.ConfigErrorf("cache %s does not support type %q", name, cc.Type).WithContext("graph_id", graphID)
}

func (r *resources) openJobCache(ctx context.Context, cfg *config.Config) (cache.Cache[jobs.JobDetail], error) {
	cc := cfg.Caches.Jobs
	switch cc.Type {
	case config.CacheSQLite:
		path := cc.Path
		if path == "" {
			path = cc.DSN
		}
		js, err := storage.NewSQLiteJobStore(path, r.logger)
		if err != nil {
			return nil, errors.CacheError(err, "open", path)
		}
		r.track(js)
		return js, nil
	case config.CachePostgres:
		js, err := storage.NewPostgresJobStore(ctx, cc.DSN, r.logger)
		if err != nil {
			return nil, errors.CacheError(err, "open", "postgres")
		}
		r.track(js)
		return js, nil
	}
	return openCache[jobs.JobDetail](ctx, r, cfg.Graph.ID, "jobs", cc)
}

var _ federated.Delegate = (*Graph)(nil)
