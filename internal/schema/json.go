package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/filter"
	"github.com/rohankatakam/elemgraph/internal/function"
)

type schemaJSON struct {
	Entities           map[string]elementDefJSON `json:"entities,omitempty"`
	Edges              map[string]elementDefJSON `json:"edges,omitempty"`
	Types              map[string]typeDefJSON    `json:"types,omitempty"`
	VisibilityProperty string                    `json:"visibilityProperty,omitempty"`
	TimestampProperty  string                    `json:"timestampProperty,omitempty"`
	VertexSerialiser   string                    `json:"vertexSerialiser,omitempty"`
}

type elementDefJSON struct {
	Vertex            string                         `json:"vertex,omitempty"`
	Source            string                         `json:"source,omitempty"`
	Destination       string                         `json:"destination,omitempty"`
	Directed          string                         `json:"directed,omitempty"`
	Properties        propertiesJSON                 `json:"properties,omitempty"`
	GroupBy           []string                       `json:"groupBy,omitempty"`
	Aggregate         *bool                          `json:"aggregate,omitempty"`
	ValidateFunctions []filter.TupleAdaptedPredicate `json:"validateFunctions,omitempty"`
	Description       string                         `json:"description,omitempty"`
}

type typeDefJSON struct {
	Class             string            `json:"class"`
	AggregateFunction json.RawMessage   `json:"aggregateFunction,omitempty"`
	ValidateFunctions []json.RawMessage `json:"validateFunctions,omitempty"`
	Serialiser        string            `json:"serialiser,omitempty"`
	Description       string            `json:"description,omitempty"`
}

// propertiesJSON keeps property declaration order through a JSON object.
type propertiesJSON []Property

func (p propertiesJSON) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, prop := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(prop.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(prop.Type)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *propertiesJSON) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("properties must be an object of name to type")
	}
	var out []Property
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var typeName string
		if err := dec.Decode(&typeName); err != nil {
			return fmt.Errorf("property %s: %w", name, err)
		}
		out = append(out, Property{Name: name, Type: typeName})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}

func encodeType(t *TypeDefinition) (typeDefJSON, error) {
	out := typeDefJSON{Class: string(t.Class), Serialiser: t.Serialiser, Description: t.Description}
	if t.AggregateFunction != nil {
		agg, err := function.MarshalFunc(t.AggregateFunction)
		if err != nil {
			return out, err
		}
		out.AggregateFunction = agg
	}
	for _, p := range t.ValidateFunctions {
		raw, err := function.MarshalFunc(p)
		if err != nil {
			return out, err
		}
		out.ValidateFunctions = append(out.ValidateFunctions, raw)
	}
	return out, nil
}

func decodeType(name string, in typeDefJSON) (TypeDefinition, error) {
	t := TypeDefinition{Class: function.Class(in.Class), Serialiser: in.Serialiser, Description: in.Description}
	if len(in.AggregateFunction) > 0 && string(in.AggregateFunction) != "null" {
		agg, err := function.UnmarshalBinaryOperator(in.AggregateFunction)
		if err != nil {
			return t, fmt.Errorf("type %s: %w", name, err)
		}
		t.AggregateFunction = agg
	}
	for _, raw := range in.ValidateFunctions {
		p, err := function.UnmarshalPredicate(raw)
		if err != nil {
			return t, fmt.Errorf("type %s: %w", name, err)
		}
		t.ValidateFunctions = append(t.ValidateFunctions, p)
	}
	return t, nil
}

func encodeElement(d *ElementDefinition) (elementDefJSON, error) {
	out := elementDefJSON{
		Vertex:            d.Vertex,
		Source:            d.Source,
		Destination:       d.Destination,
		Directed:          d.Directed,
		Properties:        propertiesJSON(d.Properties),
		GroupBy:           d.GroupBy,
		ValidateFunctions: d.ValidateFunctions,
		Description:       d.Description,
	}
	if d.DisableAggregation {
		off := false
		out.Aggregate = &off
	}
	return out, nil
}

func decodeElement(in elementDefJSON) ElementDefinition {
	return ElementDefinition{
		Vertex:             in.Vertex,
		Source:             in.Source,
		Destination:        in.Destination,
		Directed:           in.Directed,
		Properties:         []Property(in.Properties),
		GroupBy:            in.GroupBy,
		DisableAggregation: in.Aggregate != nil && !*in.Aggregate,
		ValidateFunctions:  in.ValidateFunctions,
		Description:        in.Description,
	}
}

// MarshalJSON encodes the schema with properties in declaration order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	out := schemaJSON{
		Entities:           map[string]elementDefJSON{},
		Edges:              map[string]elementDefJSON{},
		Types:              map[string]typeDefJSON{},
		VisibilityProperty: s.visibilityProperty,
		TimestampProperty:  s.timestampProperty,
		VertexSerialiser:   s.vertexSerialiser,
	}
	for name, t := range s.types {
		enc, err := encodeType(t)
		if err != nil {
			return nil, fmt.Errorf("type %s: %w", name, err)
		}
		out.Types[name] = enc
	}
	for group, d := range s.entities {
		out.Entities[group], _ = encodeElement(d)
	}
	for group, d := range s.edges {
		out.Edges[group], _ = encodeElement(d)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a schema document.
func (s *Schema) UnmarshalJSON(data []byte) error {
	built, err := FromJSON(data)
	if err != nil {
		return err
	}
	*s = *built
	return nil
}

// decodeInto adds the definitions of one schema document to b.
func decodeInto(b *Builder, data []byte) error {
	var in schemaJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	for _, name := range sortedKeys(in.Types) {
		t, err := decodeType(name, in.Types[name])
		if err != nil {
			return err
		}
		b.Type(name, t)
	}
	for _, group := range sortedKeys(in.Entities) {
		b.Entity(group, decodeElement(in.Entities[group]))
	}
	for _, group := range sortedKeys(in.Edges) {
		b.Edge(group, decodeElement(in.Edges[group]))
	}
	b.VisibilityProperty(in.VisibilityProperty)
	b.TimestampProperty(in.TimestampProperty)
	b.VertexSerialiser(in.VertexSerialiser)
	return nil
}

// FromJSON decodes and validates a schema document.
func FromJSON(data []byte) (*Schema, error) {
	b := NewBuilder()
	if err := decodeInto(b, data); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchemaValidation, errors.SeverityCritical, "failed to decode schema")
	}
	return b.Build()
}

// FromYAML decodes a YAML schema document. Mapping order is kept, so
// property declaration order survives.
func FromYAML(data []byte) (*Schema, error) {
	doc, err := yamlToJSON(data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeSchemaValidation, errors.SeverityCritical, "failed to parse YAML schema")
	}
	return FromJSON(doc)
}

// Load reads and merges schema parts from files or directories. A
// directory contributes every .json, .yaml and .yml file in it.
func Load(paths ...string) (*Schema, error) {
	files, err := expandPaths(paths)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityCritical, "failed to list schema files")
	}
	if len(files) == 0 {
		return nil, errors.ConfigErrorf("no schema files found in %v", paths)
	}
	b := NewBuilder()
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityCritical, "failed to read schema file").
				WithContext("path", path)
		}
		if isYAML(path) {
			if data, err = yamlToJSON(data); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeSchemaValidation, errors.SeverityCritical, "failed to parse YAML schema").
					WithContext("path", path)
			}
		}
		if err := decodeInto(b, data); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeSchemaValidation, errors.SeverityCritical, "failed to decode schema").
				WithContext("path", path)
		}
	}
	return b.Build()
}

func expandPaths(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, err
		}
		var inDir []string
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if !e.IsDir() && (ext == ".json" || ext == ".yaml" || ext == ".yml") {
				inDir = append(inDir, filepath.Join(p, e.Name()))
			}
		}
		sort.Strings(inDir)
		files = append(files, inDir...)
	}
	return files, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeYAMLNode(&buf, &doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeYAMLNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case 0:
		buf.WriteString("null")
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeYAMLNode(buf, n.Content[0])
	case yaml.AliasNode:
		return writeYAMLNode(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLNode(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		var v any = n.Value
		if n.ShortTag() != "!!str" {
			if err := n.Decode(&v); err != nil {
				return err
			}
		}
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		buf.Write(out)
	default:
		return fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
	return nil
}

func jsonEqual(a, b any) bool {
	x, errA := json.Marshal(a)
	y, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	var u, v any
	if json.Unmarshal(x, &u) != nil || json.Unmarshal(y, &v) != nil {
		return false
	}
	return reflect.DeepEqual(u, v)
}
