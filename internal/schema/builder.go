package schema

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/function"
)

// Builder accumulates definitions and validates them in Build.
type Builder struct {
	s        *Schema
	problems []string
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{s: newSchema()}
}

// Type declares a named type. Re-declaring a name with a different
// definition is a conflict.
func (b *Builder) Type(name string, def TypeDefinition) *Builder {
	if existing, ok := b.s.types[name]; ok && !sameType(existing, &def) {
		b.problems = append(b.problems, fmt.Sprintf("type %s is declared twice with different definitions", name))
		return b
	}
	d := def
	b.s.types[name] = &d
	return b
}

// Entity declares an entity group.
func (b *Builder) Entity(group string, def ElementDefinition) *Builder {
	def.Group, def.Kind = group, element.KindEntity
	return b.element(b.s.entities, &def)
}

// Edge declares an edge group.
func (b *Builder) Edge(group string, def ElementDefinition) *Builder {
	def.Group, def.Kind = group, element.KindEdge
	return b.element(b.s.edges, &def)
}

func (b *Builder) element(into map[string]*ElementDefinition, def *ElementDefinition) *Builder {
	if existing, ok := into[def.Group]; ok && !sameElement(existing, def) {
		b.problems = append(b.problems, fmt.Sprintf("group %s is declared twice with different definitions", def.Group))
		return b
	}
	into[def.Group] = def.clone()
	return b
}

// VisibilityProperty names the property holding access labels.
func (b *Builder) VisibilityProperty(name string) *Builder {
	b.s.visibilityProperty = b.setOnce("visibility property", b.s.visibilityProperty, name)
	return b
}

// TimestampProperty names the property holding observation time.
func (b *Builder) TimestampProperty(name string) *Builder {
	b.s.timestampProperty = b.setOnce("timestamp property", b.s.timestampProperty, name)
	return b
}

// VertexSerialiser overrides the serialiser used for vertex index keys.
func (b *Builder) VertexSerialiser(name string) *Builder {
	b.s.vertexSerialiser = b.setOnce("vertex serialiser", b.s.vertexSerialiser, name)
	return b
}

func (b *Builder) setOnce(what, current, next string) string {
	if next == "" {
		return current
	}
	if current != "" && current != next {
		b.problems = append(b.problems, fmt.Sprintf("%s is declared as both %q and %q", what, current, next))
		return current
	}
	return next
}

// Merge adds every definition of other. Identical definitions collapse;
// conflicting ones fail at Build.
func (b *Builder) Merge(other *Schema) *Builder {
	if other == nil {
		return b
	}
	for _, name := range other.TypeNames() {
		b.Type(name, *other.types[name])
	}
	for _, group := range other.EntityGroups() {
		b.Entity(group, *other.entities[group])
	}
	for _, group := range other.EdgeGroups() {
		b.Edge(group, *other.edges[group])
	}
	b.VisibilityProperty(other.visibilityProperty)
	b.TimestampProperty(other.timestampProperty)
	b.VertexSerialiser(other.vertexSerialiser)
	return b
}

// Build validates the accumulated definitions and returns a frozen schema.
// Every problem found is reported in one SchemaValidation error.
func (b *Builder) Build() (*Schema, error) {
	s := b.snapshot()
	problems := append([]string(nil), b.problems...)
	var warnings []string

	for _, name := range s.TypeNames() {
		problems = append(problems, validateType(name, s.types[name])...)
	}
	for _, group := range s.EntityGroups() {
		if _, dup := s.edges[group]; dup {
			problems = append(problems, fmt.Sprintf("group %s is declared as both an entity and an edge", group))
		}
		p, w := s.validateElement(s.entities[group])
		problems, warnings = append(problems, p...), append(warnings, w...)
	}
	for _, group := range s.EdgeGroups() {
		p, w := s.validateElement(s.edges[group])
		problems, warnings = append(problems, p...), append(warnings, w...)
	}
	s.resolvedSerialiser = s.vertexSerialiser
	if s.resolvedSerialiser == "" {
		s.resolvedSerialiser = s.inferVertexSerialiser()
	} else if _, ok := LookupSerialiser(s.vertexSerialiser); !ok {
		problems = append(problems, fmt.Sprintf("unknown vertex serialiser %q", s.vertexSerialiser))
	}

	if len(problems) > 0 {
		return nil, errors.SchemaErrorf("invalid schema: %s", strings.Join(problems, "; ")).
			WithContext("problems", len(problems))
	}
	s.warnings = warnings
	return s, nil
}

func (b *Builder) snapshot() *Schema {
	s := newSchema()
	for k, v := range b.s.types {
		t := *v
		s.types[k] = &t
	}
	for k, v := range b.s.entities {
		s.entities[k] = v.clone()
	}
	for k, v := range b.s.edges {
		s.edges[k] = v.clone()
	}
	s.visibilityProperty = b.s.visibilityProperty
	s.timestampProperty = b.s.timestampProperty
	s.vertexSerialiser = b.s.vertexSerialiser
	return s
}

func validateType(name string, t *TypeDefinition) []string {
	var problems []string
	if !function.KnownClass(t.Class) {
		problems = append(problems, fmt.Sprintf("type %s has unknown class %q", name, t.Class))
		return problems
	}
	if t.AggregateFunction != nil && !t.AggregateFunction.Accepts(t.Class) {
		problems = append(problems, fmt.Sprintf("type %s: aggregate function %s cannot merge %s values",
			name, t.AggregateFunction.Name(), t.Class))
	}
	if t.Serialiser != "" {
		ser, ok := LookupSerialiser(t.Serialiser)
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("type %s has unknown serialiser %q", name, t.Serialiser))
		case !ser.CanHandle(t.Class):
			problems = append(problems, fmt.Sprintf("type %s: serialiser %s cannot handle %s values", name, t.Serialiser, t.Class))
		}
	}
	return problems
}

func (s *Schema) validateElement(def *ElementDefinition) (problems, warnings []string) {
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf("group %s: ", def.Group)+fmt.Sprintf(format, args...))
	}
	requireType := func(role, typeName string) *TypeDefinition {
		if typeName == "" {
			fail("no %s type declared", role)
			return nil
		}
		t, ok := s.types[typeName]
		if !ok {
			fail("%s type %s is not declared", role, typeName)
			return nil
		}
		return t
	}

	if def.Group == "" {
		problems = append(problems, "a group has an empty name")
	}
	switch def.Kind {
	case element.KindEntity:
		requireType("vertex", def.Vertex)
	case element.KindEdge:
		requireType("source", def.Source)
		requireType("destination", def.Destination)
		if t := requireType("directed", def.Directed); t != nil && t.Class != function.ClassBoolean {
			fail("directed type %s must be of class boolean, not %s", def.Directed, t.Class)
		}
	}

	seen := map[string]bool{}
	for _, p := range def.Properties {
		switch {
		case p.Name == "":
			fail("property with empty name")
			continue
		case element.IsIdentifier(p.Name):
			fail("property %s clashes with an identifier name", p.Name)
		case seen[p.Name]:
			fail("property %s is declared twice", p.Name)
		}
		seen[p.Name] = true
		if _, ok := s.types[p.Type]; !ok {
			fail("property %s has undeclared type %q", p.Name, p.Type)
		}
	}

	groupBySeen := map[string]bool{}
	for _, g := range def.GroupBy {
		if !seen[g] {
			fail("group-by property %s is not a declared property", g)
		}
		if groupBySeen[g] {
			fail("group-by property %s is listed twice", g)
		}
		groupBySeen[g] = true
	}

	if !def.Aggregates() {
		return problems, warnings
	}
	for _, p := range def.Properties {
		if def.IsGroupBy(p.Name) || p.Name == s.visibilityProperty {
			continue
		}
		t, ok := s.types[p.Type]
		if !ok {
			continue
		}
		if t.AggregateFunction == nil {
			fail("property %s (type %s) has no aggregate function; declare one (Last for last-write-wins) or disable aggregation for the group",
				p.Name, p.Type)
			continue
		}
		if !t.AggregateFunction.Commutative() {
			warnings = append(warnings, fmt.Sprintf("group %s: property %s uses order-dependent aggregate function %s; summarised values depend on observation order",
				def.Group, p.Name, t.AggregateFunction.Name()))
		}
	}
	return problems, warnings
}

// inferVertexSerialiser picks the serialiser shared by every vertex and
// endpoint type, falling back to json when they differ.
func (s *Schema) inferVertexSerialiser() string {
	names := map[string]bool{}
	add := func(typeName string) {
		if t, ok := s.types[typeName]; ok {
			ser := t.Serialiser
			if ser == "" {
				ser = defaultSerialiser
			}
			names[ser] = true
		}
	}
	for _, d := range s.entities {
		add(d.Vertex)
	}
	for _, d := range s.edges {
		add(d.Source)
		add(d.Destination)
	}
	if len(names) == 1 {
		for name := range names {
			return name
		}
	}
	return defaultSerialiser
}

func sameType(a, b *TypeDefinition) bool {
	x, errA := encodeType(a)
	y, errB := encodeType(b)
	return errA == nil && errB == nil && jsonEqual(x, y)
}

func sameElement(a, b *ElementDefinition) bool {
	if a.Kind != b.Kind {
		return false
	}
	x, errA := encodeElement(a)
	y, errB := encodeElement(b)
	return errA == nil && errB == nil && jsonEqual(x, y)
}
