package view

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/rohankatakam/elemgraph/internal/cache"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/function"
)

// ParameterDetail declares one named view or named operation parameter.
type ParameterDetail struct {
	Description  string         `json:"description,omitempty"`
	DefaultValue any            `json:"defaultValue,omitempty"`
	ValueClass   function.Class `json:"valueClass,omitempty"`
	// Required parameters must be supplied by the caller; the default is
	// not used for them.
	Required bool `json:"required,omitempty"`
}

// NamedViewDetail is the cached form of a named view. View is a JSON view
// template in which "${param}" placeholders are substituted on resolution.
type NamedViewDetail struct {
	Name             string                     `json:"name"`
	Description      string                     `json:"description,omitempty"`
	Creator          string                     `json:"creator,omitempty"`
	View             string                     `json:"view"`
	Parameters       map[string]ParameterDetail `json:"parameters,omitempty"`
	MergedNamedViews []string                   `json:"mergedNamedViews,omitempty"`
}

// NewNamedViewDetail encodes v as the template of a named view.
func NewNamedViewDetail(name string, v *View, params map[string]ParameterDetail) (NamedViewDetail, error) {
	if v.IsNamed() {
		return NamedViewDetail{}, errors.NestedNamedViewNotAllowedf("named view %s cannot be defined as another named view (%s)", name, v.Name).
			WithContext("named_view", name)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return NamedViewDetail{}, err
	}
	d := NamedViewDetail{Name: name, View: string(data), Parameters: params}
	return d, d.Validate()
}

// Validate checks that the template parses as a plain view and that
// parameter defaults match their declared class.
func (d NamedViewDetail) Validate() error {
	if d.Name == "" {
		return errors.ValidationErrorf("named view has no name")
	}
	v, err := Decode([]byte(d.View))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "named view template is not a view").
			WithContext("named_view", d.Name)
	}
	if v.IsNamed() {
		return errors.NestedNamedViewNotAllowedf("named view %s has a template that references named view %s", d.Name, v.Name).
			WithContext("named_view", d.Name)
	}
	for name, p := range d.Parameters {
		if p.ValueClass != "" && !function.KnownClass(p.ValueClass) {
			return errors.ValidationErrorf("named view %s parameter %s has unknown class %q", d.Name, name, p.ValueClass).
				WithContext("named_view", d.Name)
		}
		if p.DefaultValue != nil && p.ValueClass != "" {
			if _, err := function.Coerce(p.ValueClass, p.DefaultValue); err != nil {
				return errors.ValidationErrorf("named view %s parameter %s default: %v", d.Name, name, err).
					WithContext("named_view", d.Name)
			}
		}
	}
	for _, ref := range d.MergedNamedViews {
		if ref == d.Name {
			return errors.ValidationErrorf("named view %s merges itself", d.Name).WithContext("named_view", d.Name)
		}
	}
	return nil
}

// Bind resolves the value of every declared parameter from the supplied
// values and defaults.
func Bind(owner string, declared map[string]ParameterDetail, supplied map[string]any) (map[string]any, error) {
	for name := range supplied {
		if _, ok := declared[name]; !ok {
			return nil, errors.ValidationErrorf("%s has no parameter %s", owner, name).WithContext("parameter", name)
		}
	}
	values := make(map[string]any, len(declared))
	for name, p := range declared {
		v, ok := supplied[name]
		if !ok || v == nil {
			if p.Required || p.DefaultValue == nil {
				return nil, errors.MissingRequiredParameter(owner, name)
			}
			v = p.DefaultValue
		}
		if p.ValueClass != "" {
			coerced, err := function.Coerce(p.ValueClass, v)
			if err != nil {
				return nil, errors.ValidationErrorf("%s parameter %s: %v", owner, name, err).WithContext("parameter", name)
			}
			v = coerced
		}
		values[name] = v
	}
	return values, nil
}

var placeholder = regexp.MustCompile(`"\$\{([A-Za-z0-9_.-]+)\}"|\$\{([A-Za-z0-9_.-]+)\}`)

// Substitute replaces "${name}" placeholders in a JSON template in a single
// pass, so substituted text is never expanded again. A placeholder that is a
// whole JSON string becomes the JSON encoding of the value; one embedded in
// a longer string is replaced by its text. Unknown placeholders are left.
func Substitute(template string, values map[string]any) (string, error) {
	var firstErr error
	out := placeholder.ReplaceAllStringFunc(template, func(match string) string {
		sub := placeholder.FindStringSubmatch(match)
		whole, name := sub[1] != "", sub[1]+sub[2]
		v, ok := values[name]
		if !ok {
			return match
		}
		if whole {
			encoded, err := json.Marshal(v)
			if err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("parameter %s: %w", name, err)
				}
				return match
			}
			return string(encoded)
		}
		text, _ := json.Marshal(fmt.Sprint(v))
		return string(text[1 : len(text)-1])
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Resolver turns named view references into plain views using a cache of
// NamedViewDetail.
type Resolver struct {
	cache cache.Cache[NamedViewDetail]
}

// NewResolver returns a resolver over c.
func NewResolver(c cache.Cache[NamedViewDetail]) *Resolver {
	return &Resolver{cache: c}
}

// Resolve returns v unchanged when it is a plain view. For a named view it
// merges, in order, the cached template, the views the template lists, the
// views the request lists, and finally the request's inline fields, each
// later source winning field by field.
func (r *Resolver) Resolve(ctx context.Context, v *View) (*View, error) {
	if !v.IsNamed() {
		return v, nil
	}
	visiting := map[string]bool{}
	declared := map[string]bool{}
	resolved, err := r.resolveNamed(ctx, v.Name, v.Parameters, visiting, declared)
	if err != nil {
		return nil, err
	}
	for _, name := range v.MergedNamedViewNames {
		other, err := r.resolveNamed(ctx, name, v.Parameters, visiting, declared)
		if err != nil {
			return nil, err
		}
		resolved = Merge(resolved, other)
	}
	for _, name := range sortedKeys(v.Parameters) {
		if !declared[name] {
			return nil, errors.ValidationErrorf("named view %s has no parameter %s", v.Name, name).
				WithContext("named_view", v.Name).
				WithContext("parameter", name)
		}
	}
	return Merge(resolved, v.inline()), nil
}

// resolveNamed records in declared every parameter the views it visits
// declare.
func (r *Resolver) resolveNamed(ctx context.Context, name string, supplied map[string]any, visiting, declared map[string]bool) (*View, error) {
	if visiting[name] {
		return nil, errors.ValidationErrorf("named view %s references itself", name).WithContext("named_view", name)
	}
	detail, err := r.cache.Get(ctx, name)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, errors.NamedViewNotFound(name)
	}
	if err != nil {
		return nil, err
	}
	for p := range detail.Parameters {
		declared[p] = true
	}

	values, err := Bind(fmt.Sprintf("named view %s", name), detail.Parameters, onlyDeclared(supplied, detail.Parameters))
	if err != nil {
		return nil, err
	}
	text, err := Substitute(detail.View, values)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "failed to substitute parameters").
			WithContext("named_view", name)
	}
	base, err := Decode([]byte(text))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh, "named view template is not a view").
			WithContext("named_view", name)
	}
	if base.IsNamed() {
		return nil, errors.NestedNamedViewNotAllowedf("named view %s has a template that references named view %s", name, base.Name).
			WithContext("named_view", name)
	}

	visiting[name] = true
	defer delete(visiting, name)
	for _, ref := range detail.MergedNamedViews {
		other, err := r.resolveNamed(ctx, ref, supplied, visiting, declared)
		if err != nil {
			return nil, err
		}
		base = Merge(base, other)
	}
	return base, nil
}

// onlyDeclared drops supplied values a view does not declare; one request
// parameter map feeds every view in a merge, and Resolve rejects names no
// view in it declares.
func onlyDeclared(supplied map[string]any, declared map[string]ParameterDetail) map[string]any {
	out := make(map[string]any, len(supplied))
	for k, v := range supplied {
		if _, ok := declared[k]; ok {
			out[k] = v
		}
	}
	return out
}
