// Package boltstore is a persistent element backend on a bbolt key-value
// file.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/elemgraph/internal/aggregate"
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/sirupsen/logrus"
)

var (
	elementsBucket = []byte("elements")
	indexBucket    = []byte("vertex_index")
)

// Store keeps JSON-encoded elements in the "elements" bucket. Aggregating
// groups are keyed by their aggregation identity and merged in the write
// transaction; other observations get sequence keys. The "vertex_index"
// bucket maps each serialised vertex to the keys of the elements touching
// it.
type Store struct {
	db         *bolt.DB
	schema     *schema.Schema
	agg        *aggregate.Aggregator
	serialiser schema.Serialiser
	logger     *logrus.Logger
}

// Open opens or creates the store file at path. A nil aggregator stores
// every observation.
func Open(path string, s *schema.Schema, agg *aggregate.Aggregator, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{elementsBucket, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}
	logger.WithField("path", path).Info("Opened bolt element store")
	return &Store{db: db, schema: s, agg: agg, serialiser: s.VertexSerialiser(), logger: logger}, nil
}

// AddElements writes all elements in one transaction.
func (s *Store) AddElements(ctx context.Context, elements []*element.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, index := tx.Bucket(elementsBucket), tx.Bucket(indexBucket)
		for _, e := range elements {
			key, err := s.key(data, e)
			if err != nil {
				return err
			}
			stored := e
			if raw := data.Get(key); raw != nil {
				existing, err := s.decode(raw)
				if err != nil {
					return err
				}
				if stored, err = s.agg.Aggregate(existing, e); err != nil {
					return err
				}
			} else if err := s.index(index, key, e); err != nil {
				return err
			}
			raw, err := json.Marshal(stored)
			if err != nil {
				return fmt.Errorf("failed to encode %s element: %w", e.Group, err)
			}
			if err := data.Put(key, raw); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) key(data *bolt.Bucket, e *element.Element) ([]byte, error) {
	if s.agg != nil && s.agg.Aggregates(e.Group) {
		return []byte("agg|" + s.agg.Key(e)), nil
	}
	seq, err := data.NextSequence()
	if err != nil {
		return nil, err
	}
	key := make([]byte, 0, 12)
	key = append(key, "obs|"...)
	return binary.BigEndian.AppendUint64(key, seq), nil
}

// vertexPrefix is the length-prefixed serialised vertex, so one vertex's
// entries never share a prefix with a longer vertex.
func (s *Store) vertexPrefix(v any) ([]byte, error) {
	b, err := s.serialiser.Serialise(v)
	if err != nil {
		return nil, fmt.Errorf("failed to serialise vertex %v: %w", v, err)
	}
	prefix := binary.BigEndian.AppendUint32(nil, uint32(len(b)))
	return append(prefix, b...), nil
}

func (s *Store) index(index *bolt.Bucket, key []byte, e *element.Element) error {
	for _, v := range e.Vertices() {
		prefix, err := s.vertexPrefix(v)
		if err != nil {
			return err
		}
		if err := index.Put(append(prefix, key...), nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) decode(raw []byte) (*element.Element, error) {
	var e element.Element
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to decode stored element: %w", err)
	}
	if err := s.schema.Coerce(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

// GetAllElements reads every stored element in key order.
func (s *Store) GetAllElements(ctx context.Context) ([]*element.Element, error) {
	var out []*element.Element
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(elementsBucket).ForEach(func(_, raw []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := s.decode(raw)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// GetRelated scans the vertex index for each vertex.
func (s *Store) GetRelated(ctx context.Context, vertices []any) ([]*element.Element, error) {
	var out []*element.Element
	err := s.db.View(func(tx *bolt.Tx) error {
		data, index := tx.Bucket(elementsBucket), tx.Bucket(indexBucket)
		seen := map[string]bool{}
		for _, v := range vertices {
			if err := ctx.Err(); err != nil {
				return err
			}
			prefix, err := s.vertexPrefix(v)
			if err != nil {
				return err
			}
			c := index.Cursor()
			for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Next() {
				key := k[len(prefix):]
				if seen[string(key)] {
					continue
				}
				seen[string(key)] = true
				raw := data.Get(key)
				if raw == nil {
					s.logger.WithField("key", string(key)).Warn("Vertex index references a missing element")
					continue
				}
				e, err := s.decode(raw)
				if err != nil {
					return err
				}
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// Close closes the bolt file.
func (s *Store) Close() error {
	return s.db.Close()
}
