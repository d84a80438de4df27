package schema

import (
	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/function"
)

func (s *Schema) classOf(typeName string) function.Class {
	if t, ok := s.types[typeName]; ok {
		return t.Class
	}
	return function.ClassAny
}

// Coerce converts identifier and property values of e in place to the
// Go types of their declared classes. Undeclared groups and properties
// are rejected.
func (s *Schema) Coerce(e *element.Element) error {
	def, ok := s.Element(e.Group)
	if !ok {
		return errors.ValidationErrorf("group %s is not in the schema", e.Group).WithContext("group", e.Group)
	}
	if def.Kind != e.Kind {
		return errors.ValidationErrorf("group %s is an %s group, got an %s", e.Group, def.Kind, e.Kind).
			WithContext("group", e.Group)
	}

	for name, v := range e.Properties {
		typeName, ok := def.PropertyType(name)
		if !ok {
			return errors.ValidationErrorf("group %s has no property %s", e.Group, name).
				WithContext("group", e.Group).WithContext("property", name)
		}
		coerced, err := function.Coerce(s.classOf(typeName), v)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "invalid property value").
				WithContext("group", e.Group).WithContext("property", name)
		}
		e.Properties[name] = coerced
	}

	switch e.Kind {
	case element.KindEntity:
		v, err := function.Coerce(s.classOf(def.Vertex), e.Vertex)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "invalid vertex").
				WithContext("group", e.Group)
		}
		e.Vertex = v
	case element.KindEdge:
		src, err := function.Coerce(s.classOf(def.Source), e.Source)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "invalid edge source").
				WithContext("group", e.Group)
		}
		dst, err := function.Coerce(s.classOf(def.Destination), e.Destination)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "invalid edge destination").
				WithContext("group", e.Group)
		}
		// Rebuilt so undirected endpoints are re-ordered on the coerced values.
		*e = *element.NewEdge(e.Group, src, dst, e.Directed, e.Properties)
	}
	return nil
}

// Validate applies type and group validate functions to e.
func (s *Schema) Validate(e *element.Element) error {
	def, ok := s.Element(e.Group)
	if !ok {
		return errors.ValidationErrorf("group %s is not in the schema", e.Group).WithContext("group", e.Group)
	}
	for _, p := range def.Properties {
		t, ok := s.types[p.Type]
		if !ok {
			continue
		}
		v := e.Properties[p.Name]
		for _, pred := range t.ValidateFunctions {
			if !pred.Test(v) {
				return errors.ValidationErrorf("group %s property %s failed %s validation", e.Group, p.Name, pred.Name()).
					WithContext("group", e.Group).WithContext("property", p.Name)
			}
		}
	}
	for _, vf := range def.ValidateFunctions {
		if !vf.Test(e) {
			return errors.ValidationErrorf("group %s failed %s validation on %v", e.Group, vf.Predicate.Name(), vf.Selection).
				WithContext("group", e.Group)
		}
	}
	return nil
}
