package element

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/rohankatakam/elemgraph/internal/function"
)

type elementJSON struct {
	Class       string         `json:"class"`
	Group       string         `json:"group"`
	Vertex      any            `json:"vertex,omitempty"`
	Source      any            `json:"source,omitempty"`
	Destination any            `json:"destination,omitempty"`
	Directed    *bool          `json:"directed,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// MarshalJSON encodes the element with a class discriminator.
func (e Element) MarshalJSON() ([]byte, error) {
	out := elementJSON{Class: string(e.Kind), Group: e.Group, Properties: e.Properties}
	switch e.Kind {
	case KindEntity:
		out.Vertex = e.Vertex
	case KindEdge:
		out.Source = e.Source
		out.Destination = e.Destination
		directed := e.Directed
		out.Directed = &directed
	default:
		return nil, fmt.Errorf("unknown element kind %q", e.Kind)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an Entity or Edge; any other class is rejected.
func (e *Element) UnmarshalJSON(data []byte) error {
	var in elementJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	props := Properties{}
	for k, v := range in.Properties {
		props[k] = function.Normalise(v)
	}
	switch Kind(in.Class) {
	case KindEntity:
		if in.Vertex == nil {
			return fmt.Errorf("entity of group %q has no vertex", in.Group)
		}
		*e = *NewEntity(in.Group, function.Normalise(in.Vertex), props)
	case KindEdge:
		if in.Source == nil || in.Destination == nil {
			return fmt.Errorf("edge of group %q needs source and destination", in.Group)
		}
		directed := true
		if in.Directed != nil {
			directed = *in.Directed
		}
		*e = *NewEdge(in.Group, function.Normalise(in.Source), function.Normalise(in.Destination), directed, props)
	default:
		return fmt.Errorf("unknown element class %q", in.Class)
	}
	if e.Group == "" {
		return fmt.Errorf("element has no group")
	}
	return nil
}

type idJSON struct {
	Class        string       `json:"class"`
	Vertex       any          `json:"vertex,omitempty"`
	Source       any          `json:"source,omitempty"`
	Destination  any          `json:"destination,omitempty"`
	DirectedType DirectedType `json:"directedType,omitempty"`
}

// MarshalJSON encodes the seed as EntitySeed or EdgeSeed.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsEntityID() {
		return json.Marshal(idJSON{Class: "EntitySeed", Vertex: id.Vertex})
	}
	return json.Marshal(idJSON{Class: "EdgeSeed", Source: id.Source, Destination: id.Destination, DirectedType: id.DirectedType})
}

// UnmarshalJSON decodes an EntitySeed or EdgeSeed.
func (id *ID) UnmarshalJSON(data []byte) error {
	var in idJSON
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return err
	}
	switch in.Class {
	case "EntitySeed":
		*id = EntityID(function.Normalise(in.Vertex))
	case "EdgeSeed":
		*id = EdgeID(function.Normalise(in.Source), function.Normalise(in.Destination), in.DirectedType)
	default:
		return fmt.Errorf("unknown seed class %q", in.Class)
	}
	return nil
}
