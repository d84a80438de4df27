// Package schema describes element groups, their properties and the value
// types that decide how properties are validated, serialised and aggregated.
package schema

import (
	"sort"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/function"
)

// TypeDefinition declares one named value type.
type TypeDefinition struct {
	Class             function.Class
	AggregateFunction function.BinaryOperator
	ValidateFunctions []function.Predicate
	Serialiser        string
	Description       string
}

// Property binds a property name to a type name.
type Property struct {
	Name string
	Type string
}

// ElementDefinition declares an entity or edge group.
type ElementDefinition struct {
	Group string
	Kind  element.Kind

	// Vertex is the vertex type of an entity group.
	Vertex string
	// Source, Destination and Directed are the identifier types of an edge group.
	Source      string
	Destination string
	Directed    string

	// Properties in declaration order. Aggregation visits them in this order.
	Properties []Property
	GroupBy    []string

	// DisableAggregation turns off summarisation for the group; identical
	// observations are then only de-duplicated.
	DisableAggregation bool

	ValidateFunctions []filter.TupleAdaptedPredicate
	Description       string
}

// Aggregates reports whether observations of the group are summarised.
func (d *ElementDefinition) Aggregates() bool {
	return !d.DisableAggregation
}

// PropertyNames returns the declared property names in order.
func (d *ElementDefinition) PropertyNames() []string {
	names := make([]string, len(d.Properties))
	for i, p := range d.Properties {
		names[i] = p.Name
	}
	return names
}

// PropertyType returns the type name declared for a property.
func (d *ElementDefinition) PropertyType(name string) (string, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p.Type, true
		}
	}
	return "", false
}

// HasProperty reports whether the group declares name.
func (d *ElementDefinition) HasProperty(name string) bool {
	_, ok := d.PropertyType(name)
	return ok
}

// IsGroupBy reports whether name is one of the group-by properties.
func (d *ElementDefinition) IsGroupBy(name string) bool {
	for _, g := range d.GroupBy {
		if g == name {
			return true
		}
	}
	return false
}

func (d *ElementDefinition) clone() *ElementDefinition {
	c := *d
	c.Properties = append([]Property(nil), d.Properties...)
	c.GroupBy = append([]string(nil), d.GroupBy...)
	c.ValidateFunctions = append([]filter.TupleAdaptedPredicate(nil), d.ValidateFunctions...)
	return &c
}

// Schema is an immutable set of group and type definitions. Build one
// with a Builder; a built Schema is safe for concurrent readers.
type Schema struct {
	entities map[string]*ElementDefinition
	edges    map[string]*ElementDefinition
	types    map[string]*TypeDefinition

	visibilityProperty string
	timestampProperty  string
	// vertexSerialiser is the declared override; resolvedSerialiser is what
	// Build settled on.
	vertexSerialiser   string
	resolvedSerialiser string

	warnings []string
}

func newSchema() *Schema {
	return &Schema{
		entities: map[string]*ElementDefinition{},
		edges:    map[string]*ElementDefinition{},
		types:    map[string]*TypeDefinition{},
	}
}

// Element returns the definition of an entity or edge group. Callers must
// treat the returned definition as read-only.
func (s *Schema) Element(group string) (*ElementDefinition, bool) {
	if d, ok := s.entities[group]; ok {
		return d, true
	}
	d, ok := s.edges[group]
	return d, ok
}

// Entity returns an entity group definition.
func (s *Schema) Entity(group string) (*ElementDefinition, bool) {
	d, ok := s.entities[group]
	return d, ok
}

// Edge returns an edge group definition.
func (s *Schema) Edge(group string) (*ElementDefinition, bool) {
	d, ok := s.edges[group]
	return d, ok
}

// Type returns a type definition.
func (s *Schema) Type(name string) (*TypeDefinition, bool) {
	t, ok := s.types[name]
	return t, ok
}

// HasGroup reports whether group is declared.
func (s *Schema) HasGroup(group string) bool {
	_, ok := s.Element(group)
	return ok
}

// EntityGroups returns the entity group names, sorted.
func (s *Schema) EntityGroups() []string { return sortedKeys(s.entities) }

// EdgeGroups returns the edge group names, sorted.
func (s *Schema) EdgeGroups() []string { return sortedKeys(s.edges) }

// Groups returns every group name, entities first.
func (s *Schema) Groups() []string {
	return append(s.EntityGroups(), s.EdgeGroups()...)
}

// TypeNames returns the declared type names, sorted.
func (s *Schema) TypeNames() []string { return sortedKeys(s.types) }

// VisibilityProperty names the property carrying access labels, if any.
func (s *Schema) VisibilityProperty() string { return s.visibilityProperty }

// TimestampProperty names the property carrying observation time, if any.
func (s *Schema) TimestampProperty() string { return s.timestampProperty }

// Warnings lists non-fatal findings from Build.
func (s *Schema) Warnings() []string { return append([]string(nil), s.warnings...) }

// PropertyClass returns the class of a group property, or ClassAny when it
// is not declared.
func (s *Schema) PropertyClass(group, property string) function.Class {
	def, ok := s.Element(group)
	if !ok {
		return function.ClassAny
	}
	typeName, ok := def.PropertyType(property)
	if !ok {
		return function.ClassAny
	}
	if t, ok := s.types[typeName]; ok {
		return t.Class
	}
	return function.ClassAny
}

// VertexClass returns the class of an entity's vertex or an edge's
// endpoints.
func (s *Schema) VertexClass(group string) function.Class {
	def, ok := s.Element(group)
	if !ok {
		return function.ClassAny
	}
	name := def.Vertex
	if def.Kind == element.KindEdge {
		name = def.Source
	}
	if t, ok := s.types[name]; ok {
		return t.Class
	}
	return function.ClassAny
}

// AggregatorFor returns the aggregate function of a group property, or nil.
func (s *Schema) AggregatorFor(group, property string) function.BinaryOperator {
	def, ok := s.Element(group)
	if !ok {
		return nil
	}
	typeName, ok := def.PropertyType(property)
	if !ok {
		return nil
	}
	if t, ok := s.types[typeName]; ok {
		return t.AggregateFunction
	}
	return nil
}

// IdentityProperties returns the properties that, with the identifiers,
// decide whether two observations are the same element: the group-by
// properties, then the visibility property when the group declares it.
func (s *Schema) IdentityProperties(group string) []string {
	def, ok := s.Element(group)
	if !ok {
		return nil
	}
	props := append([]string(nil), def.GroupBy...)
	if s.visibilityProperty != "" && def.HasProperty(s.visibilityProperty) && !def.IsGroupBy(s.visibilityProperty) {
		props = append(props, s.visibilityProperty)
	}
	return props
}

// VertexSerialiser returns the serialiser used for vertex index keys.
func (s *Schema) VertexSerialiser() Serialiser {
	if ser, ok := LookupSerialiser(s.resolvedSerialiser); ok {
		return ser
	}
	return jsonSerialiser{}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
