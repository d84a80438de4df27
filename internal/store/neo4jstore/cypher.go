package neo4jstore

import (
	"fmt"
	"regexp"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier reports whether s can be spliced into Cypher as a label
// or relationship type. Values always go through parameters.
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Labels names the node labels and relationship types the store writes.
type Labels struct {
	Vertex string
	Entity string
	Edge   string
	Of     string
}

// DefaultLabels are used for zero Labels fields.
var DefaultLabels = Labels{Vertex: "Vertex", Entity: "Entity", Edge: "EDGE", Of: "OF"}

func (l Labels) withDefaults() (Labels, error) {
	for _, f := range []struct {
		v   *string
		def string
	}{{&l.Vertex, DefaultLabels.Vertex}, {&l.Entity, DefaultLabels.Entity}, {&l.Edge, DefaultLabels.Edge}, {&l.Of, DefaultLabels.Of}} {
		if *f.v == "" {
			*f.v = f.def
		}
		if !isValidIdentifier(*f.v) {
			return l, fmt.Errorf("invalid label %q (must be alphanumeric + underscore)", *f.v)
		}
	}
	return l, nil
}

// cypherBuilder builds parameterised queries over one label set.
type cypherBuilder struct {
	labels  Labels
	params  map[string]any
	counter int
}

func newCypherBuilder(labels Labels) *cypherBuilder {
	return &cypherBuilder{labels: labels, params: map[string]any{}}
}

// param adds a parameter and returns its placeholder.
func (b *cypherBuilder) param(value any) string {
	name := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[name] = value
	return "$" + name
}

func (b *cypherBuilder) Params() map[string]any {
	return b.params
}

func (b *cypherBuilder) constraints() []string {
	l := b.labels
	return []string{
		fmt.Sprintf("CREATE CONSTRAINT %s_vkey IF NOT EXISTS FOR (v:%s) REQUIRE v.vkey IS UNIQUE", l.Vertex, l.Vertex),
		fmt.Sprintf("CREATE CONSTRAINT %s_skey IF NOT EXISTS FOR (n:%s) REQUIRE n.skey IS UNIQUE", l.Entity, l.Entity),
		fmt.Sprintf("CREATE INDEX %s_skey IF NOT EXISTS FOR ()-[r:%s]-() ON (r.skey)", l.Edge, l.Edge),
	}
}

func (b *cypherBuilder) readEntity(skey string) string {
	return fmt.Sprintf("MATCH (n:%s {skey: %s}) RETURN n.doc AS doc", b.labels.Entity, b.param(skey))
}

func (b *cypherBuilder) readEdge(skey string) string {
	return fmt.Sprintf("MATCH (:%s)-[r:%s {skey: %s}]->(:%s) RETURN r.doc AS doc",
		b.labels.Vertex, b.labels.Edge, b.param(skey), b.labels.Vertex)
}

func (b *cypherBuilder) mergeEntity(vkey, skey, group, doc string, created int64) string {
	l := b.labels
	return fmt.Sprintf(
		"MERGE (v:%s {vkey: %s}) MERGE (n:%s {skey: %s}) ON CREATE SET n.created = %s SET n.group = %s, n.doc = %s MERGE (n)-[:%s]->(v)",
		l.Vertex, b.param(vkey), l.Entity, b.param(skey), b.param(created), b.param(group), b.param(doc), l.Of,
	)
}

func (b *cypherBuilder) mergeEdge(srcKey, dstKey, skey, group, doc string, created int64) string {
	l := b.labels
	return fmt.Sprintf(
		"MERGE (a:%s {vkey: %s}) MERGE (b:%s {vkey: %s}) MERGE (a)-[r:%s {skey: %s}]->(b) ON CREATE SET r.created = %s SET r.group = %s, r.doc = %s",
		l.Vertex, b.param(srcKey), l.Vertex, b.param(dstKey), l.Edge, b.param(skey), b.param(created), b.param(group), b.param(doc),
	)
}

func (b *cypherBuilder) all() string {
	l := b.labels
	return fmt.Sprintf(
		"MATCH (n:%s) RETURN n.doc AS doc, n.created AS created UNION ALL MATCH (:%s)-[r:%s]->(:%s) RETURN r.doc AS doc, r.created AS created",
		l.Entity, l.Vertex, l.Edge, l.Vertex,
	)
}

func (b *cypherBuilder) related(vkeys []string) string {
	l := b.labels
	p := b.param(vkeys)
	return fmt.Sprintf(
		"MATCH (n:%s)-[:%s]->(v:%s) WHERE v.vkey IN %s RETURN DISTINCT n.doc AS doc, n.created AS created "+
			"UNION MATCH (a:%s)-[r:%s]-(:%s) WHERE a.vkey IN %s RETURN DISTINCT r.doc AS doc, r.created AS created",
		l.Entity, l.Of, l.Vertex, p, l.Vertex, l.Edge, l.Vertex, p,
	)
}
