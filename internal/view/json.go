package view

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/function"
)

const (
	classView      = "View"
	classNamedView = "NamedView"
)

type viewJSON struct {
	Class                string                     `json:"class,omitempty"`
	Name                 string                     `json:"name,omitempty"`
	Parameters           map[string]any             `json:"parameters,omitempty"`
	MergedNamedViewNames []string                   `json:"mergedNamedViewNames,omitempty"`
	Entities             map[string]*elementDefJSON `json:"entities,omitempty"`
	Edges                map[string]*elementDefJSON `json:"edges,omitempty"`
	AllEntities          bool                       `json:"allEntities,omitempty"`
	AllEdges             bool                       `json:"allEdges,omitempty"`
	Summarise            *bool                      `json:"summarise,omitempty"`
}

type elementDefJSON struct {
	GroupBy               *[]string                  `json:"groupBy,omitempty"`
	Properties            *[]string                  `json:"properties,omitempty"`
	ExcludeProperties     []string                   `json:"excludeProperties,omitempty"`
	TransientProperties   map[string]function.Class  `json:"transientProperties,omitempty"`
	PreAggregationFilter  *filter.ElementFilter      `json:"preAggregationFilterFunctions,omitempty"`
	PostAggregationFilter *filter.ElementFilter      `json:"postAggregationFilterFunctions,omitempty"`
	Transformer           *filter.ElementTransformer `json:"transformFunctions,omitempty"`
	PostTransformFilter   *filter.ElementFilter      `json:"postTransformFilterFunctions,omitempty"`
	Override              bool                       `json:"override,omitempty"`
}

func encodeDefs(in map[string]*ElementDefinition) map[string]*elementDefJSON {
	if in == nil {
		return nil
	}
	out := make(map[string]*elementDefJSON, len(in))
	for g, d := range in {
		if d == nil {
			d = &ElementDefinition{}
		}
		e := &elementDefJSON{
			ExcludeProperties:     d.ExcludeProperties,
			TransientProperties:   d.TransientProperties,
			PreAggregationFilter:  d.PreAggregationFilter,
			PostAggregationFilter: d.PostAggregationFilter,
			Transformer:           d.Transformer,
			PostTransformFilter:   d.PostTransformFilter,
			Override:              d.Override,
		}
		if d.GroupBy != nil {
			groupBy := d.GroupBy
			e.GroupBy = &groupBy
		}
		if d.Properties != nil {
			props := d.Properties
			e.Properties = &props
		}
		out[g] = e
	}
	return out
}

func decodeDefs(in map[string]*elementDefJSON) map[string]*ElementDefinition {
	if in == nil {
		return nil
	}
	out := make(map[string]*ElementDefinition, len(in))
	for g, e := range in {
		d := &ElementDefinition{}
		if e != nil {
			d.ExcludeProperties = e.ExcludeProperties
			d.TransientProperties = e.TransientProperties
			d.PreAggregationFilter = e.PreAggregationFilter
			d.PostAggregationFilter = e.PostAggregationFilter
			d.Transformer = e.Transformer
			d.PostTransformFilter = e.PostTransformFilter
			d.Override = e.Override
			if e.GroupBy != nil {
				d.GroupBy = append([]string{}, (*e.GroupBy)...)
			}
			if e.Properties != nil {
				d.Properties = append([]string{}, (*e.Properties)...)
			}
		}
		out[g] = d
	}
	return out
}

// MarshalJSON encodes the view; named view references carry the
// "NamedView" class.
func (v View) MarshalJSON() ([]byte, error) {
	out := viewJSON{
		Class:                classView,
		Name:                 v.Name,
		Parameters:           v.Parameters,
		MergedNamedViewNames: v.MergedNamedViewNames,
		Entities:             encodeDefs(v.Entities),
		Edges:                encodeDefs(v.Edges),
		AllEntities:          v.AllEntities,
		AllEdges:             v.AllEdges,
		Summarise:            v.Summarise,
	}
	if v.IsNamed() {
		out.Class = classNamedView
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a View or NamedView document.
func (v *View) UnmarshalJSON(data []byte) error {
	var in viewJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	switch in.Class {
	case "", classView:
		if in.Name != "" {
			return fmt.Errorf("view has a name but class %q; use class %s", in.Class, classNamedView)
		}
	case classNamedView:
		if in.Name == "" {
			return fmt.Errorf("named view has no name")
		}
	default:
		return fmt.Errorf("unknown view class %q", in.Class)
	}
	params := make(map[string]any, len(in.Parameters))
	for k, p := range in.Parameters {
		params[k] = function.Normalise(p)
	}
	if len(params) == 0 {
		params = nil
	}
	*v = View{
		Name:                 in.Name,
		Parameters:           params,
		MergedNamedViewNames: in.MergedNamedViewNames,
		Entities:             decodeDefs(in.Entities),
		Edges:                decodeDefs(in.Edges),
		AllEntities:          in.AllEntities,
		AllEdges:             in.AllEdges,
		Summarise:            in.Summarise,
	}
	return nil
}

// Decode parses a view document.
func Decode(data []byte) (*View, error) {
	var v View
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
