package cache

import (
	"context"
	"sort"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache keeps values in process memory without expiry.
type MemoryCache[V any] struct {
	items *gocache.Cache
}

// NewMemoryCache returns an empty in-memory cache.
func NewMemoryCache[V any]() *MemoryCache[V] {
	return &MemoryCache[V]{items: gocache.New(gocache.NoExpiration, 0)}
}

func (c *MemoryCache[V]) Add(ctx context.Context, key string, value V, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if overwrite {
		c.items.Set(key, value, gocache.NoExpiration)
		return nil
	}
	if err := c.items.Add(key, value, gocache.NoExpiration); err != nil {
		return AlreadyExists(key)
	}
	return nil
}

func (c *MemoryCache[V]) Get(ctx context.Context, key string) (V, error) {
	var zero V
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	v, found := c.items.Get(key)
	if !found {
		return zero, NotFound(key)
	}
	return v.(V), nil
}

func (c *MemoryCache[V]) GetAll(ctx context.Context) ([]V, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items := c.items.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]V, 0, len(keys))
	for _, k := range keys {
		out = append(out, items[k].Object.(V))
	}
	return out, nil
}

func (c *MemoryCache[V]) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.items.Delete(key)
	return nil
}
