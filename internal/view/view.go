// Package view holds request-scoped overlays that select groups and
// properties and attach filters and transforms, plus the resolution of
// named, cached views.
package view

import (
	"sort"

	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/function"
	"github.com/rohankatakam/elemgraph/internal/schema"
)

// ElementDefinition configures one group within a view.
type ElementDefinition struct {
	// GroupBy overrides the schema group-by when non-nil. It may only narrow it.
	GroupBy []string
	// Properties keeps only the listed properties when non-nil.
	Properties        []string
	ExcludeProperties []string
	// TransientProperties are computed by the transformer and not stored.
	TransientProperties map[string]function.Class

	PreAggregationFilter  *filter.ElementFilter
	PostAggregationFilter *filter.ElementFilter
	Transformer           *filter.ElementTransformer
	PostTransformFilter   *filter.ElementFilter

	// Override makes this definition's filters and transformer replace,
	// rather than extend, those of a view it is merged onto.
	Override bool
}

func (d *ElementDefinition) clone() *ElementDefinition {
	if d == nil {
		return &ElementDefinition{}
	}
	c := *d
	c.GroupBy = cloneStrings(d.GroupBy)
	c.Properties = cloneStrings(d.Properties)
	c.ExcludeProperties = cloneStrings(d.ExcludeProperties)
	if d.TransientProperties != nil {
		c.TransientProperties = make(map[string]function.Class, len(d.TransientProperties))
		for k, v := range d.TransientProperties {
			c.TransientProperties[k] = v
		}
	}
	return &c
}

// Keeps reports whether property survives the view's projection.
func (d *ElementDefinition) Keeps(property string) bool {
	if d == nil {
		return true
	}
	for _, p := range d.ExcludeProperties {
		if p == property {
			return false
		}
	}
	if d.Properties == nil {
		return true
	}
	for _, p := range d.Properties {
		if p == property {
			return true
		}
	}
	return false
}

// View selects groups and configures how their elements are filtered,
// summarised and transformed. A view with Name set is a reference to a
// named view; its other fields are inline overrides.
type View struct {
	Entities map[string]*ElementDefinition
	Edges    map[string]*ElementDefinition
	// AllEntities and AllEdges select every schema group of that kind.
	AllEntities bool
	AllEdges    bool
	// Summarise is unset when nil so that merges can tell "off" from "absent".
	Summarise *bool

	Name                 string
	Parameters           map[string]any
	MergedNamedViewNames []string
}

// IsNamed reports whether v references a named view.
func (v *View) IsNamed() bool {
	return v != nil && v.Name != ""
}

// Summarises reports whether elements should be aggregated at query time.
func (v *View) Summarises() bool {
	return v != nil && v.Summarise != nil && *v.Summarise
}

// EntityGroups returns the selected entity groups, sorted.
func (v *View) EntityGroups() []string {
	if v == nil {
		return nil
	}
	return sortedKeys(v.Entities)
}

// EdgeGroups returns the selected edge groups, sorted.
func (v *View) EdgeGroups() []string {
	if v == nil {
		return nil
	}
	return sortedKeys(v.Edges)
}

// Groups returns every selected group.
func (v *View) Groups() []string {
	return append(v.EntityGroups(), v.EdgeGroups()...)
}

// Element returns the definition for group and whether the view selects it.
func (v *View) Element(group string) (*ElementDefinition, bool) {
	if v == nil {
		return nil, false
	}
	if d, ok := v.Entities[group]; ok {
		return d, true
	}
	d, ok := v.Edges[group]
	return d, ok
}

// Clone deep-copies the view structure. Filters and transformers are
// shared; they are never modified after construction.
func (v *View) Clone() *View {
	if v == nil {
		return nil
	}
	c := &View{
		Entities:             cloneDefs(v.Entities),
		Edges:                cloneDefs(v.Edges),
		AllEntities:          v.AllEntities,
		AllEdges:             v.AllEdges,
		Name:                 v.Name,
		MergedNamedViewNames: cloneStrings(v.MergedNamedViewNames),
	}
	if v.Summarise != nil {
		s := *v.Summarise
		c.Summarise = &s
	}
	if v.Parameters != nil {
		c.Parameters = make(map[string]any, len(v.Parameters))
		for k, p := range v.Parameters {
			c.Parameters[k] = p
		}
	}
	return c
}

// inline returns v without its named-view reference fields.
func (v *View) inline() *View {
	c := v.Clone()
	c.Name, c.Parameters, c.MergedNamedViewNames = "", nil, nil
	return c
}

// Expand replaces AllEntities/AllEdges with explicit schema groups.
func (v *View) Expand(s *schema.Schema) *View {
	c := v.Clone()
	if c == nil {
		return nil
	}
	if c.Entities == nil {
		c.Entities = map[string]*ElementDefinition{}
	}
	if c.Edges == nil {
		c.Edges = map[string]*ElementDefinition{}
	}
	if c.AllEntities {
		for _, g := range s.EntityGroups() {
			if _, ok := c.Entities[g]; !ok {
				c.Entities[g] = &ElementDefinition{}
			}
		}
	}
	if c.AllEdges {
		for _, g := range s.EdgeGroups() {
			if _, ok := c.Edges[g]; !ok {
				c.Edges[g] = &ElementDefinition{}
			}
		}
	}
	c.AllEntities, c.AllEdges = false, false
	return c
}

// Validate checks a resolved view against a schema.
func (v *View) Validate(s *schema.Schema) error {
	if v.IsNamed() {
		return errors.NestedNamedViewNotAllowedf("view still references named view %q; resolve it first", v.Name)
	}
	check := func(group string, d *ElementDefinition, want func(string) (*schema.ElementDefinition, bool)) error {
		def, ok := want(group)
		if !ok {
			return errors.ValidationErrorf("view group %s is not a schema group of that kind", group).WithContext("group", group)
		}
		if d == nil {
			return nil
		}
		for _, p := range d.GroupBy {
			if !def.IsGroupBy(p) {
				return errors.ValidationErrorf("view group %s: group-by %s is not a schema group-by property", group, p).
					WithContext("group", group).WithContext("property", p)
			}
		}
		for name, class := range d.TransientProperties {
			if def.HasProperty(name) {
				return errors.ValidationErrorf("view group %s: transient property %s shadows a schema property", group, name).
					WithContext("group", group).WithContext("property", name)
			}
			if !function.KnownClass(class) {
				return errors.ValidationErrorf("view group %s: transient property %s has unknown class %q", group, name, class).
					WithContext("group", group)
			}
		}
		return nil
	}
	for _, g := range v.EntityGroups() {
		if err := check(g, v.Entities[g], s.Entity); err != nil {
			return err
		}
	}
	for _, g := range v.EdgeGroups() {
		if err := check(g, v.Edges[g], s.Edge); err != nil {
			return err
		}
	}
	return nil
}

// FromSchema returns a view selecting every schema group without filters.
func FromSchema(s *schema.Schema) *View {
	v := &View{Entities: map[string]*ElementDefinition{}, Edges: map[string]*ElementDefinition{}}
	for _, g := range s.EntityGroups() {
		v.Entities[g] = &ElementDefinition{}
	}
	for _, g := range s.EdgeGroups() {
		v.Edges[g] = &ElementDefinition{}
	}
	return v
}

// Builder assembles views fluently.
type Builder struct {
	v *View
}

// NewBuilder starts an empty view.
func NewBuilder() *Builder {
	return &Builder{v: &View{Entities: map[string]*ElementDefinition{}, Edges: map[string]*ElementDefinition{}}}
}

// Entity selects an entity group, optionally with a definition.
func (b *Builder) Entity(group string, def ...*ElementDefinition) *Builder {
	b.v.Entities[group] = firstDef(def)
	return b
}

// Edge selects an edge group, optionally with a definition.
func (b *Builder) Edge(group string, def ...*ElementDefinition) *Builder {
	b.v.Edges[group] = firstDef(def)
	return b
}

// Summarise sets the summarise flag.
func (b *Builder) Summarise(on bool) *Builder {
	b.v.Summarise = &on
	return b
}

// AllEntities selects every entity group.
func (b *Builder) AllEntities() *Builder {
	b.v.AllEntities = true
	return b
}

// AllEdges selects every edge group.
func (b *Builder) AllEdges() *Builder {
	b.v.AllEdges = true
	return b
}

// Named turns the view into a reference to a named view; groups already
// added become inline overrides.
func (b *Builder) Named(name string, params map[string]any, merged ...string) *Builder {
	b.v.Name = name
	b.v.Parameters = params
	b.v.MergedNamedViewNames = merged
	return b
}

// Build returns the view.
func (b *Builder) Build() *View {
	return b.v
}

func firstDef(defs []*ElementDefinition) *ElementDefinition {
	if len(defs) > 0 && defs[0] != nil {
		return defs[0]
	}
	return &ElementDefinition{}
}

func cloneDefs(in map[string]*ElementDefinition) map[string]*ElementDefinition {
	if in == nil {
		return nil
	}
	out := make(map[string]*ElementDefinition, len(in))
	for k, d := range in {
		out[k] = d.clone()
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
