package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/elemgraph/internal/errors"
)

// RedisCache keeps JSON-encoded values in one Redis hash, so several graph
// instances can share named views and job details.
type RedisCache[V any] struct {
	client *redis.Client
	hash   string
	logger *logrus.Logger
	owned  bool
}

// RedisOptions locates a Redis server.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedisCache connects to Redis and fails fast when the server is not
// reachable.
func DialRedisCache[V any](ctx context.Context, opts RedisOptions, hash string, logger *logrus.Logger) (*RedisCache[V], error) {
	if opts.Addr == "" {
		return nil, errors.ConfigErrorf("redis address missing")
	}
	client := redis.NewClient(&redis.Options{Addr: opts.Addr, Password: opts.Password, DB: opts.DB})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.CacheError(fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err), "connect", hash)
	}
	c := NewRedisCache[V](client, hash, logger)
	c.owned = true
	c.logger.WithFields(logrus.Fields{"addr": opts.Addr, "hash": hash}).Info("redis cache connected")
	return c, nil
}

// NewRedisCache uses an existing client.
func NewRedisCache[V any](client *redis.Client, hash string, logger *logrus.Logger) *RedisCache[V] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisCache[V]{client: client, hash: hash, logger: logger}
}

// Close closes the client when the cache dialled it.
func (c *RedisCache[V]) Close() error {
	if !c.owned {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return errors.CacheError(err, "close", c.hash)
	}
	return nil
}

func (c *RedisCache[V]) Add(ctx context.Context, key string, value V, overwrite bool) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.CacheError(err, "encode", key)
	}
	if overwrite {
		if err := c.client.HSet(ctx, c.hash, key, data).Err(); err != nil {
			return errors.CacheError(err, "add", key)
		}
		return nil
	}
	added, err := c.client.HSetNX(ctx, c.hash, key, data).Result()
	if err != nil {
		return errors.CacheError(err, "add", key)
	}
	if !added {
		return AlreadyExists(key)
	}
	c.logger.WithFields(logrus.Fields{"hash": c.hash, "key": key}).Debug("cache add")
	return nil
}

func (c *RedisCache[V]) Get(ctx context.Context, key string) (V, error) {
	var value V
	raw, err := c.client.HGet(ctx, c.hash, key).Result()
	if stderrors.Is(err, redis.Nil) {
		return value, NotFound(key)
	}
	if err != nil {
		return value, errors.CacheError(err, "get", key)
	}
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return value, errors.CacheError(err, "decode", key)
	}
	return value, nil
}

func (c *RedisCache[V]) GetAll(ctx context.Context) ([]V, error) {
	all, err := c.client.HGetAll(ctx, c.hash).Result()
	if err != nil {
		return nil, errors.CacheError(err, "get all", "")
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		var value V
		if err := json.Unmarshal([]byte(all[k]), &value); err != nil {
			return nil, errors.CacheError(err, "decode", k)
		}
		out = append(out, value)
	}
	return out, nil
}

func (c *RedisCache[V]) Remove(ctx context.Context, key string) error {
	if err := c.client.HDel(ctx, c.hash, key).Err(); err != nil {
		return errors.CacheError(err, "remove", key)
	}
	return nil
}
