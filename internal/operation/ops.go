package operation

import (
	"maps"
	"slices"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/view"
)

// Seed matching for GetElements and GetAdjacentIDs.
const (
	// IncludeEdgesEither follows edges in both directions.
	IncludeEdgesEither = "EITHER"
	// IncludeEdgesOutgoing follows edges whose source is the seed.
	IncludeEdgesOutgoing = "OUTGOING"
	// IncludeEdgesIncoming follows edges whose destination is the seed.
	IncludeEdgesIncoming = "INCOMING"
)

// AddElements ingests elements.
type AddElements struct {
	Base
	input
	// ValidateElements coerces and validates each element against the schema.
	ValidateElements bool `json:"validate"`
	// SkipInvalid drops invalid elements instead of failing the operation.
	SkipInvalid bool `json:"skipInvalidElements,omitempty"`
}

// NewAddElements returns an AddElements over elements with validation on.
func NewAddElements(elements ...*element.Element) *AddElements {
	op := &AddElements{ValidateElements: true}
	if len(elements) > 0 {
		op.SetInput(slices.Values(elements))
	}
	return op
}

func (*AddElements) Class() string    { return "AddElements" }
func (*AddElements) InputType() Type  { return TypeElements }
func (*AddElements) OutputType() Type { return TypeVoid }
func (o *AddElements) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// GetElements returns elements related to the input seeds: entities whose
// vertex matches an entity seed, edges touching it, and edges matching an
// edge seed.
type GetElements struct {
	Base
	input
	View *view.View `json:"view,omitempty"`
	// IncludeIncomingOutGoing restricts edges found from entity seeds.
	IncludeIncomingOutGoing string `json:"includeIncomingOutGoing,omitempty"`
	// DirectedType restricts edges by directedness.
	DirectedType element.DirectedType `json:"directedType,omitempty"`
}

// NewGetElements seeds a GetElements with ids.
func NewGetElements(seeds ...element.ID) *GetElements {
	op := &GetElements{}
	if len(seeds) > 0 {
		op.SetInput(slices.Values(seeds))
	}
	return op
}

func (*GetElements) Class() string          { return "GetElements" }
func (*GetElements) InputType() Type        { return TypeElementIDs }
func (*GetElements) OutputType() Type       { return TypeElements }
func (o *GetElements) GetView() *view.View  { return o.View }
func (o *GetElements) SetView(v *view.View) { o.View = v }
func (o *GetElements) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	c.View = o.View.Clone()
	return &c
}

func (o *GetElements) Validate() error {
	return validateDirection(o.Class(), o.IncludeIncomingOutGoing, o.DirectedType)
}

func validateDirection(class, inOut string, dt element.DirectedType) error {
	switch inOut {
	case "", IncludeEdgesEither, IncludeEdgesOutgoing, IncludeEdgesIncoming:
	default:
		return errors.ValidationErrorf("%s: unknown includeIncomingOutGoing %q", class, inOut).WithContext("operation", class)
	}
	switch dt {
	case "", element.DirectedTypeEither, element.DirectedTypeDirected, element.DirectedTypeUndirected:
	default:
		return errors.ValidationErrorf("%s: unknown directedType %q", class, dt).WithContext("operation", class)
	}
	return nil
}

// GetAllElements returns every element the view selects.
type GetAllElements struct {
	Base
	View         *view.View           `json:"view,omitempty"`
	DirectedType element.DirectedType `json:"directedType,omitempty"`
}

func (*GetAllElements) Class() string          { return "GetAllElements" }
func (*GetAllElements) InputType() Type        { return TypeVoid }
func (*GetAllElements) OutputType() Type       { return TypeElements }
func (o *GetAllElements) GetView() *view.View  { return o.View }
func (o *GetAllElements) SetView(v *view.View) { o.View = v }
func (o *GetAllElements) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	c.View = o.View.Clone()
	return &c
}

func (o *GetAllElements) Validate() error {
	return validateDirection(o.Class(), "", o.DirectedType)
}

// GetAdjacentIDs returns the vertices one hop from the seeds across the
// edges the view selects.
type GetAdjacentIDs struct {
	Base
	input
	View                    *view.View           `json:"view,omitempty"`
	IncludeIncomingOutGoing string               `json:"includeIncomingOutGoing,omitempty"`
	DirectedType            element.DirectedType `json:"directedType,omitempty"`
}

func (*GetAdjacentIDs) Class() string          { return "GetAdjacentIDs" }
func (*GetAdjacentIDs) InputType() Type        { return TypeElementIDs }
func (*GetAdjacentIDs) OutputType() Type       { return TypeElementIDs }
func (o *GetAdjacentIDs) GetView() *view.View  { return o.View }
func (o *GetAdjacentIDs) SetView(v *view.View) { o.View = v }
func (o *GetAdjacentIDs) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	c.View = o.View.Clone()
	return &c
}

func (o *GetAdjacentIDs) Validate() error {
	return validateDirection(o.Class(), o.IncludeIncomingOutGoing, o.DirectedType)
}

// Count counts the items of its input.
type Count struct {
	Base
	input
}

func (*Count) Class() string    { return "Count" }
func (*Count) InputType() Type  { return TypeObjects }
func (*Count) OutputType() Type { return TypeLong }
func (o *Count) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// GroupCounts holds element counts per group.
type GroupCounts struct {
	Entities map[string]int64 `json:"entities,omitempty"`
	Edges    map[string]int64 `json:"edges,omitempty"`
	// LimitHit is set when counting stopped at the operation's limit.
	LimitHit bool `json:"limitHit,omitempty"`
}

// Total sums every group count.
func (g *GroupCounts) Total() int64 {
	var n int64
	for _, c := range g.Entities {
		n += c
	}
	for _, c := range g.Edges {
		n += c
	}
	return n
}

// Merge adds other's counts into g.
func (g *GroupCounts) Merge(other *GroupCounts) {
	if other == nil {
		return
	}
	if g.Entities == nil {
		g.Entities = map[string]int64{}
	}
	if g.Edges == nil {
		g.Edges = map[string]int64{}
	}
	for k, v := range other.Entities {
		g.Entities[k] += v
	}
	for k, v := range other.Edges {
		g.Edges[k] += v
	}
	g.LimitHit = g.LimitHit || other.LimitHit
}

// CountGroups counts input elements per group.
type CountGroups struct {
	Base
	input
	// Limit stops counting after this many elements when positive.
	Limit int `json:"limit,omitempty"`
}

func (*CountGroups) Class() string    { return "CountGroups" }
func (*CountGroups) InputType() Type  { return TypeElements }
func (*CountGroups) OutputType() Type { return TypeGroupCounts }
func (o *CountGroups) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// ExtractGroupCount reads one group's count out of a GroupCounts.
type ExtractGroupCount struct {
	Base
	input
	Group string `json:"group"`
}

func (*ExtractGroupCount) Class() string    { return "ExtractGroupCount" }
func (*ExtractGroupCount) InputType() Type  { return TypeGroupCounts }
func (*ExtractGroupCount) OutputType() Type { return TypeLong }
func (o *ExtractGroupCount) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

func (o *ExtractGroupCount) Validate() error {
	if o.Group == "" {
		return errors.ValidationErrorf("%s requires a group", o.Class()).WithContext("operation", o.Class())
	}
	return nil
}

// Limit truncates its input.
type Limit struct {
	Base
	input
	ResultLimit int `json:"resultLimit"`
	// Truncate false makes exceeding the limit an error.
	Truncate *bool `json:"truncate,omitempty"`
}

func (*Limit) Class() string    { return "Limit" }
func (*Limit) InputType() Type  { return TypeObjects }
func (*Limit) OutputType() Type { return TypeObjects }
func (*Limit) passThrough()     {}
func (o *Limit) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// Truncates reports whether extra items are dropped rather than rejected.
func (o *Limit) Truncates() bool {
	return o.Truncate == nil || *o.Truncate
}

func (o *Limit) Validate() error {
	if o.ResultLimit < 0 {
		return errors.ValidationErrorf("%s: resultLimit must not be negative", o.Class()).WithContext("operation", o.Class())
	}
	return nil
}

// ToSet removes duplicate items, keeping first-seen order.
type ToSet struct {
	Base
	input
}

func (*ToSet) Class() string    { return "ToSet" }
func (*ToSet) InputType() Type  { return TypeObjects }
func (*ToSet) OutputType() Type { return TypeObjects }
func (*ToSet) passThrough()     {}
func (o *ToSet) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// DiscardOutput drops its input.
type DiscardOutput struct {
	Base
	input
}

func (*DiscardOutput) Class() string    { return "DiscardOutput" }
func (*DiscardOutput) InputType() Type  { return TypeAny }
func (*DiscardOutput) OutputType() Type { return TypeVoid }
func (o *DiscardOutput) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// Filter keeps the input elements that pass the filter for their group.
// Elements of groups not listed are dropped unless a global filter is set.
type Filter struct {
	Base
	input
	Entities map[string]*filter.ElementFilter `json:"entities,omitempty"`
	Edges    map[string]*filter.ElementFilter `json:"edges,omitempty"`
	// GlobalElements applies to every element.
	GlobalElements *filter.ElementFilter `json:"globalElements,omitempty"`
}

func (*Filter) Class() string    { return "Filter" }
func (*Filter) InputType() Type  { return TypeElements }
func (*Filter) OutputType() Type { return TypeElements }
func (o *Filter) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	c.Entities = maps.Clone(o.Entities)
	c.Edges = maps.Clone(o.Edges)
	return &c
}

// For returns the filter of e's group and whether the group is selected.
func (o *Filter) For(e *element.Element) (*filter.ElementFilter, bool) {
	groups := o.Entities
	if e.IsEdge() {
		groups = o.Edges
	}
	f, ok := groups[e.Group]
	if !ok && o.GlobalElements == nil {
		return nil, false
	}
	return filter.Concat(o.GlobalElements, f), true
}

// Transform applies per-group transformers to the input elements. Elements
// of other groups pass unchanged.
type Transform struct {
	Base
	input
	Entities map[string]*filter.ElementTransformer `json:"entities,omitempty"`
	Edges    map[string]*filter.ElementTransformer `json:"edges,omitempty"`
}

func (*Transform) Class() string    { return "Transform" }
func (*Transform) InputType() Type  { return TypeElements }
func (*Transform) OutputType() Type { return TypeElements }
func (o *Transform) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	c.Entities = maps.Clone(o.Entities)
	c.Edges = maps.Clone(o.Edges)
	return &c
}

// For returns the transformer of e's group, or nil.
func (o *Transform) For(e *element.Element) *filter.ElementTransformer {
	if e.IsEdge() {
		return o.Edges[e.Group]
	}
	return o.Entities[e.Group]
}

// Aggregate summarises the input elements per identity. A group listed with
// a group-by narrows the schema group-by for that group.
type Aggregate struct {
	Base
	input
	Entities map[string][]string `json:"entities,omitempty"`
	Edges    map[string][]string `json:"edges,omitempty"`
}

func (*Aggregate) Class() string    { return "Aggregate" }
func (*Aggregate) InputType() Type  { return TypeElements }
func (*Aggregate) OutputType() Type { return TypeElements }
func (o *Aggregate) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	c.Entities = maps.Clone(o.Entities)
	c.Edges = maps.Clone(o.Edges)
	return &c
}

// ExportToSet stores its input under Key on the request and returns it.
type ExportToSet struct {
	Base
	input
	Key string `json:"key,omitempty"`
}

func (*ExportToSet) Class() string    { return "ExportToSet" }
func (*ExportToSet) InputType() Type  { return TypeObjects }
func (*ExportToSet) OutputType() Type { return TypeObjects }
func (*ExportToSet) passThrough()     {}
func (o *ExportToSet) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

// GetSetExport returns a previously exported set.
type GetSetExport struct {
	Base
	Key   string `json:"key,omitempty"`
	Start int    `json:"start,omitempty"`
	// End is exclusive; zero means the end of the set.
	End int `json:"end,omitempty"`
}

func (*GetSetExport) Class() string    { return "GetSetExport" }
func (*GetSetExport) InputType() Type  { return TypeVoid }
func (*GetSetExport) OutputType() Type { return TypeObjects }
func (o *GetSetExport) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}

func (o *GetSetExport) Validate() error {
	if o.Start < 0 || (o.End != 0 && o.End < o.Start) {
		return errors.ValidationErrorf("%s: invalid range [%d, %d)", o.Class(), o.Start, o.End).WithContext("operation", o.Class())
	}
	return nil
}

// ExportKey returns the key, defaulting to "ALL".
func ExportKey(key string) string {
	if key == "" {
		return "ALL"
	}
	return key
}

// GetSchema returns the graph schema.
type GetSchema struct {
	Base
}

func (*GetSchema) Class() string    { return "GetSchema" }
func (*GetSchema) InputType() Type  { return TypeVoid }
func (*GetSchema) OutputType() Type { return TypeSchema }
func (o *GetSchema) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	return &c
}
