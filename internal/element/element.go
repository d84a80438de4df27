// Package element is the runtime representation of graph elements: an
// Entity (one vertex plus properties) or an Edge (source, destination,
// directed flag plus properties), selected by a group name.
package element

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rohankatakam/elemgraph/internal/function"
)

// Kind tags the element variant.
type Kind string

const (
	KindEntity Kind = "Entity"
	KindEdge   Kind = "Edge"
)

// Identifier names readable by filters and transformers alongside
// property names.
const (
	IdentifierGroup       = "GROUP"
	IdentifierVertex      = "VERTEX"
	IdentifierSource      = "SOURCE"
	IdentifierDestination = "DESTINATION"
	IdentifierDirected    = "DIRECTED"
)

// IsIdentifier reports whether name is a reserved identifier.
func IsIdentifier(name string) bool {
	switch name {
	case IdentifierGroup, IdentifierVertex, IdentifierSource, IdentifierDestination, IdentifierDirected:
		return true
	}
	return false
}

// Properties maps property names to values.
type Properties map[string]any

// Clone deep-copies the map, including set and map values.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies set, map and list values.
func CloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = CloneValue(x)
		}
		return out
	case map[string]int64:
		out := make(map[string]int64, len(t))
		for k, n := range t {
			out[k] = n
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = CloneValue(x)
		}
		return out
	default:
		return v
	}
}

// Element is an Entity or an Edge. Vertex is set for entities; Source,
// Destination and Directed for edges.
type Element struct {
	Kind        Kind
	Group       string
	Vertex      any
	Source      any
	Destination any
	Directed    bool
	Properties  Properties
}

// NewEntity creates an entity.
func NewEntity(group string, vertex any, props Properties) *Element {
	if props == nil {
		props = Properties{}
	}
	return &Element{Kind: KindEntity, Group: group, Vertex: vertex, Properties: props}
}

// NewEdge creates an edge. Undirected edges are stored with the smaller
// endpoint as source so both orientations share one identity.
func NewEdge(group string, source, destination any, directed bool, props Properties) *Element {
	if props == nil {
		props = Properties{}
	}
	e := &Element{
		Kind:        KindEdge,
		Group:       group,
		Source:      source,
		Destination: destination,
		Directed:    directed,
		Properties:  props,
	}
	e.normaliseEdge()
	return e
}

func (e *Element) normaliseEdge() {
	if e.Kind == KindEdge && !e.Directed && ValueKey(e.Source) > ValueKey(e.Destination) {
		e.Source, e.Destination = e.Destination, e.Source
	}
}

// IsEntity reports whether e is an entity.
func (e *Element) IsEntity() bool { return e.Kind == KindEntity }

// IsEdge reports whether e is an edge.
func (e *Element) IsEdge() bool { return e.Kind == KindEdge }

// Clone returns a deep copy that shares no mutable state with e.
func (e *Element) Clone() *Element {
	c := *e
	c.Properties = e.Properties.Clone()
	return &c
}

// Identifier returns the value of a reserved identifier.
func (e *Element) Identifier(name string) (any, bool) {
	switch name {
	case IdentifierGroup:
		return e.Group, true
	case IdentifierVertex:
		if e.IsEntity() {
			return e.Vertex, true
		}
	case IdentifierSource:
		if e.IsEdge() {
			return e.Source, true
		}
	case IdentifierDestination:
		if e.IsEdge() {
			return e.Destination, true
		}
	case IdentifierDirected:
		if e.IsEdge() {
			return e.Directed, true
		}
	}
	return nil, false
}

// Get returns an identifier or property value; absent values are nil.
func (e *Element) Get(name string) any {
	if IsIdentifier(name) {
		v, _ := e.Identifier(name)
		return v
	}
	return e.Properties[name]
}

// Put sets a property. Identifiers cannot be written.
func (e *Element) Put(name string, value any) error {
	if IsIdentifier(name) {
		return fmt.Errorf("cannot write identifier %s on group %s", name, e.Group)
	}
	if e.Properties == nil {
		e.Properties = Properties{}
	}
	e.Properties[name] = value
	return nil
}

// ID returns the seed identifying e.
func (e *Element) ID() ID {
	if e.IsEntity() {
		return EntityID(e.Vertex)
	}
	dt := DirectedTypeUndirected
	if e.Directed {
		dt = DirectedTypeDirected
	}
	return EdgeID(e.Source, e.Destination, dt)
}

// Vertices returns the vertices an element touches.
func (e *Element) Vertices() []any {
	if e.IsEntity() {
		return []any{e.Vertex}
	}
	return []any{e.Source, e.Destination}
}

// IdentityKey is a canonical key over group, identifiers and the values
// of the given group-by properties. Elements with equal keys are
// aggregation-compatible.
func (e *Element) IdentityKey(groupBy []string, extra ...string) string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteByte('|')
	sb.WriteString(e.Group)
	if e.IsEntity() {
		sb.WriteString("|v=")
		sb.WriteString(ValueKey(e.Vertex))
	} else {
		sb.WriteString("|s=")
		sb.WriteString(ValueKey(e.Source))
		sb.WriteString("|d=")
		sb.WriteString(ValueKey(e.Destination))
		fmt.Fprintf(&sb, "|dir=%t", e.Directed)
	}
	for _, names := range [][]string{groupBy, extra} {
		for _, p := range names {
			sb.WriteString("|")
			sb.WriteString(p)
			sb.WriteByte('=')
			sb.WriteString(ValueKey(e.Properties[p]))
		}
	}
	return sb.String()
}

// Equal reports whether two elements have identical identity and
// properties.
func (e *Element) Equal(o *Element) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.IdentityKey(nil) != o.IdentityKey(nil) || len(e.Properties) != len(o.Properties) {
		return false
	}
	for k, v := range e.Properties {
		w, ok := o.Properties[k]
		if !ok || !function.Equal(v, w) {
			return false
		}
	}
	return true
}

// ContentKey is an identity key that also covers every property value; two
// exact duplicates share a content key.
func (e *Element) ContentKey() string {
	names := make([]string, 0, len(e.Properties))
	for k := range e.Properties {
		names = append(names, k)
	}
	sort.Strings(names)
	return e.IdentityKey(nil, names...)
}

func (e *Element) String() string {
	if e.IsEntity() {
		return fmt.Sprintf("Entity[group=%s,vertex=%v,properties=%v]", e.Group, e.Vertex, e.Properties)
	}
	return fmt.Sprintf("Edge[group=%s,source=%v,destination=%v,directed=%t,properties=%v]",
		e.Group, e.Source, e.Destination, e.Directed, e.Properties)
}

// ValueKey renders a value as canonical JSON so that numerically equal
// integers share a key and map keys are ordered.
func ValueKey(v any) string {
	b, err := json.Marshal(function.Normalise(v))
	if err != nil {
		return fmt.Sprintf("%T:%v", v, v)
	}
	return string(b)
}
