// Package neo4jstore is an element backend on Neo4j. Vertices are nodes,
// entities are nodes attached to their vertex and edges are relationships
// between vertex nodes. Each element's JSON document is kept on its node or
// relationship.
package neo4jstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/elemgraph/internal/aggregate"
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/schema"
)

// Options configure a connection.
type Options struct {
	URI      string
	Username string
	Password string
	Database string
	Labels   Labels
	Logger   *logrus.Logger
}

// Store implements the store backend against one Neo4j database.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	labels   Labels
	schema   *schema.Schema
	agg      *aggregate.Aggregator
	logger   *logrus.Logger
}

// Open connects, verifies connectivity and creates the key constraints.
func Open(ctx context.Context, opts Options, s *schema.Schema, agg *aggregate.Aggregator) (*Store, error) {
	labels, err := opts.Labels.withDefaults()
	if err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}
	st := &Store{driver: driver, database: opts.Database, labels: labels, schema: s, agg: agg, logger: opts.Logger}
	for _, q := range newCypherBuilder(labels).constraints() {
		if _, err := neo4j.ExecuteQuery(ctx, driver, q, nil, neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(opts.Database)); err != nil {
			driver.Close(ctx)
			return nil, fmt.Errorf("failed to create constraint: %w", err)
		}
	}
	opts.Logger.WithFields(logrus.Fields{"uri": opts.URI, "database": opts.Database}).Info("Connected to Neo4j element store")
	return st, nil
}

func (s *Store) storageKey(e *element.Element) string {
	if s.agg != nil && s.agg.Aggregates(e.Group) {
		return "agg|" + s.agg.Key(e)
	}
	return "obs|" + uuid.NewString()
}

// AddElements writes a batch in one write transaction, merging aggregating
// groups into the stored document of the same identity.
func (s *Store) AddElements(ctx context.Context, elements []*element.Element) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	base := time.Now().UnixNano()
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for i, e := range elements {
			if err := s.write(ctx, tx, e, base+int64(i)); err != nil {
				return nil, fmt.Errorf("element %d (%s) failed: %w", i, e.Group, err)
			}
		}
		return nil, nil
	})
	return err
}

func (s *Store) write(ctx context.Context, tx neo4j.ManagedTransaction, e *element.Element, created int64) error {
	skey := s.storageKey(e)
	stored := e
	if s.agg != nil && s.agg.Aggregates(e.Group) {
		b := newCypherBuilder(s.labels)
		q := b.readEntity(skey)
		if e.IsEdge() {
			q = b.readEdge(skey)
		}
		res, err := tx.Run(ctx, q, b.Params())
		if err != nil {
			return err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return err
		}
		if len(records) > 0 {
			existing, err := s.decode(records[0])
			if err != nil {
				return err
			}
			if stored, err = s.agg.Aggregate(existing, e); err != nil {
				return err
			}
		}
	}
	doc, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	b := newCypherBuilder(s.labels)
	var q string
	if e.IsEntity() {
		q = b.mergeEntity(element.ValueKey(e.Vertex), skey, e.Group, string(doc), created)
	} else {
		q = b.mergeEdge(element.ValueKey(e.Source), element.ValueKey(e.Destination), skey, e.Group, string(doc), created)
	}
	_, err = tx.Run(ctx, q, b.Params())
	return err
}

func (s *Store) decode(rec *neo4j.Record) (*element.Element, error) {
	raw, ok := rec.Get("doc")
	doc, isString := raw.(string)
	if !ok || !isString {
		return nil, fmt.Errorf("record has no element document")
	}
	var e element.Element
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return nil, fmt.Errorf("failed to decode stored element: %w", err)
	}
	if err := s.schema.Coerce(&e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) read(ctx context.Context, q string, params map[string]any) ([]*element.Element, error) {
	result, err := neo4j.ExecuteQuery(ctx, s.driver, q, params,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	type row struct {
		e       *element.Element
		created int64
	}
	rows := make([]row, 0, len(result.Records))
	for _, rec := range result.Records {
		e, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		created, _ := rec.Get("created")
		n, _ := created.(int64)
		rows = append(rows, row{e: e, created: n})
	}
	slices.SortStableFunc(rows, func(a, b row) int { return cmp.Compare(a.created, b.created) })
	out := make([]*element.Element, len(rows))
	for i, r := range rows {
		out[i] = r.e
	}
	return out, nil
}

// GetAllElements returns every stored element in insertion order.
func (s *Store) GetAllElements(ctx context.Context) ([]*element.Element, error) {
	b := newCypherBuilder(s.labels)
	return s.read(ctx, b.all(), b.Params())
}

// GetRelated returns the entities on, and edges touching, the vertices.
func (s *Store) GetRelated(ctx context.Context, vertices []any) ([]*element.Element, error) {
	keys := make([]string, len(vertices))
	for i, v := range vertices {
		keys[i] = element.ValueKey(v)
	}
	b := newCypherBuilder(s.labels)
	return s.read(ctx, b.related(keys), b.Params())
}

// Close closes the driver.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}
