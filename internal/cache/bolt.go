package cache

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/elemgraph/internal/errors"
)

// BoltCache persists JSON-encoded values in one bbolt bucket. Keys are
// iterated in byte order, so GetAll is ordered by key.
type BoltCache[V any] struct {
	db     *bolt.DB
	bucket []byte
	owned  bool
}

// OpenBoltCache opens (or creates) a bbolt file holding one cache bucket.
func OpenBoltCache[V any](path, bucket string) (*BoltCache[V], error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.CacheError(err, "open", path)
	}
	c, err := NewBoltCache[V](db, bucket)
	if err != nil {
		db.Close()
		return nil, err
	}
	c.owned = true
	return c, nil
}

// NewBoltCache uses a bucket of an already open database. Several caches
// may share one database under different buckets.
func NewBoltCache[V any](db *bolt.DB, bucket string) (*BoltCache[V], error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, errors.CacheError(err, "create bucket", bucket)
	}
	return &BoltCache[V]{db: db, bucket: []byte(bucket)}, nil
}

// Close releases the database when the cache opened it.
func (c *BoltCache[V]) Close() error {
	if c.owned {
		return c.db.Close()
	}
	return nil
}

func (c *BoltCache[V]) Add(ctx context.Context, key string, value V, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return errors.CacheError(err, "encode", key)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return bolt.ErrBucketNotFound
		}
		if !overwrite && b.Get([]byte(key)) != nil {
			return ErrAlreadyExists
		}
		return b.Put([]byte(key), data)
	})
	if stderrors.Is(err, ErrAlreadyExists) {
		return AlreadyExists(key)
	}
	if err != nil {
		return errors.CacheError(err, "add", key)
	}
	return nil
}

func (c *BoltCache[V]) Get(ctx context.Context, key string) (V, error) {
	var value V
	if err := ctx.Err(); err != nil {
		return value, err
	}
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return bolt.ErrBucketNotFound
		}
		if v := b.Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return value, errors.CacheError(err, "get", key)
	}
	if data == nil {
		return value, NotFound(key)
	}
	if err := json.Unmarshal(data, &value); err != nil {
		return value, errors.CacheError(err, "decode", key)
	}
	return value, nil
}

func (c *BoltCache[V]) GetAll(ctx context.Context) ([]V, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []V
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return bolt.ErrBucketNotFound
		}
		return b.ForEach(func(k, v []byte) error {
			var value V
			if err := json.Unmarshal(v, &value); err != nil {
				return errors.CacheError(err, "decode", string(k))
			}
			out = append(out, value)
			return nil
		})
	})
	if err != nil {
		return nil, errors.CacheError(err, "get all", "")
	}
	return out, nil
}

func (c *BoltCache[V]) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(c.bucket)
		if b == nil {
			return bolt.ErrBucketNotFound
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return errors.CacheError(err, "remove", key)
	}
	return nil
}
