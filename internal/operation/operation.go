// Package operation declares the operations a graph executes, the chains
// that compose them and their JSON form.
package operation

import (
	"fmt"
	"iter"
	"maps"
	"reflect"
	"slices"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/errors"
	"github.com/rohankatakam/elemgraph/internal/schema"
	"github.com/rohankatakam/elemgraph/internal/view"
)

// Operation is one step of a chain.
type Operation interface {
	// Class is the stable name used as the JSON discriminator and as the
	// handler registry key.
	Class() string
	InputType() Type
	OutputType() Type
	Options() map[string]string
	Clone() Operation
}

// Input is implemented by operations that consume the previous step's
// result.
type Input interface {
	Operation
	GetInput() any
	SetInput(v any)
}

// Viewer is implemented by operations that read elements through a view.
type Viewer interface {
	Operation
	GetView() *view.View
	SetView(v *view.View)
}

// Validatable operations check their own fields before a chain runs.
type Validatable interface {
	Validate() error
}

// Nested is implemented by operations that wrap other operations. Hooks use
// it to rewrite every level of a chain.
type Nested interface {
	Operations() []Operation
	SetOperations(ops []Operation)
}

// PassThrough operations return their input, possibly truncated, so their
// static output type is the type bound to them.
type PassThrough interface {
	passThrough()
}

// Base carries the free-form options every operation accepts.
type Base struct {
	Opts map[string]string `json:"options,omitempty"`
}

func (b *Base) Options() map[string]string { return b.Opts }

// Option returns one option value.
func (b *Base) Option(key string) string { return b.Opts[key] }

// SetOption sets one option value.
func (b *Base) SetOption(key, value string) {
	if b.Opts == nil {
		b.Opts = map[string]string{}
	}
	b.Opts[key] = value
}

func (b Base) clone() Base {
	return Base{Opts: maps.Clone(b.Opts)}
}

// input holds the bound input of an Input operation. It is not encoded by
// encoding/json; the codec handles it.
type input struct {
	value any
}

func (i *input) GetInput() any  { return i.value }
func (i *input) SetInput(v any) { i.value = v }

// BindInput converts v to op's input type and sets it. A value that cannot
// be converted is a configuration error.
func BindInput(op Input, v any) error {
	if _, ok := op.(PassThrough); ok {
		if v != nil && !isIterable(v) {
			return bindError(op, v)
		}
		op.SetInput(v)
		return nil
	}
	converted, err := Convert(op.InputType(), v)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, errors.SeverityHigh,
			fmt.Sprintf("cannot bind %T as input of %s", v, op.Class())).WithContext("operation", op.Class())
	}
	op.SetInput(converted)
	return nil
}

func bindError(op Operation, v any) error {
	return errors.ConfigErrorf("cannot bind %T as input of %s", v, op.Class()).WithContext("operation", op.Class())
}

// Convert adapts a result value to the Go representation of t:
// Elements as iter.Seq[*element.Element], ElementIDs as iter.Seq[element.ID],
// Objects as iter.Seq[any], Long as int64, GroupCounts as *GroupCounts.
func Convert(t Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeAny, TypeVoid:
		return v, nil
	case TypeElements:
		return Elements(v)
	case TypeElementIDs:
		return IDs(v)
	case TypeObjects:
		seq, ok := Objects(v)
		if !ok {
			return nil, fmt.Errorf("%T is not iterable", v)
		}
		return seq, nil
	case TypeLong:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case TypeGroupCounts:
		if gc, ok := v.(*GroupCounts); ok {
			return gc, nil
		}
	case TypeSchema:
		if s, ok := v.(*schema.Schema); ok {
			return s, nil
		}
	default:
		if isIterable(v) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%T is not a %s value", v, t)
}

// Elements adapts v to a sequence of elements. Generic sequences are
// checked eagerly.
func Elements(v any) (iter.Seq[*element.Element], error) {
	switch t := v.(type) {
	case iter.Seq[*element.Element]:
		return t, nil
	case []*element.Element:
		return slices.Values(t), nil
	case *element.Element:
		return slices.Values([]*element.Element{t}), nil
	}
	objs, ok := Objects(v)
	if !ok {
		return nil, fmt.Errorf("%T is not a sequence of elements", v)
	}
	var out []*element.Element
	for o := range objs {
		e, ok := o.(*element.Element)
		if !ok {
			return nil, fmt.Errorf("%T is not an element", o)
		}
		out = append(out, e)
	}
	return slices.Values(out), nil
}

// IDs adapts v to a sequence of seeds. Elements become their own ids and
// bare values become entity ids.
func IDs(v any) (iter.Seq[element.ID], error) {
	switch t := v.(type) {
	case iter.Seq[element.ID]:
		return t, nil
	case []element.ID:
		return slices.Values(t), nil
	case element.ID:
		return slices.Values([]element.ID{t}), nil
	case iter.Seq[*element.Element]:
		return func(yield func(element.ID) bool) {
			for e := range t {
				if !yield(e.ID()) {
					return
				}
			}
		}, nil
	case []*element.Element:
		return IDs(slices.Values(t))
	}
	objs, ok := Objects(v)
	if !ok {
		return nil, fmt.Errorf("%T is not a sequence of ids", v)
	}
	var out []element.ID
	for o := range objs {
		switch x := o.(type) {
		case element.ID:
			out = append(out, x)
		case *element.Element:
			out = append(out, x.ID())
		case nil:
			return nil, fmt.Errorf("nil seed")
		default:
			out = append(out, element.EntityID(x))
		}
	}
	return slices.Values(out), nil
}

// Objects adapts any slice or known sequence to iter.Seq[any].
func Objects(v any) (iter.Seq[any], bool) {
	switch t := v.(type) {
	case iter.Seq[any]:
		return t, true
	case iter.Seq[*element.Element]:
		return mapSeq(t), true
	case iter.Seq[element.ID]:
		return mapSeq(t), true
	case iter.Seq[string]:
		return mapSeq(t), true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	return func(yield func(any) bool) {
		for i := 0; i < rv.Len(); i++ {
			if !yield(rv.Index(i).Interface()) {
				return
			}
		}
	}, true
}

func isIterable(v any) bool {
	_, ok := Objects(v)
	return ok
}

func mapSeq[T any](seq iter.Seq[T]) iter.Seq[any] {
	return func(yield func(any) bool) {
		for x := range seq {
			if !yield(x) {
				return
			}
		}
	}
}

// Collect materialises an iterable result as a slice of generic values.
func Collect(v any) ([]any, bool) {
	seq, ok := Objects(v)
	if !ok {
		return nil, false
	}
	return slices.Collect(seq), true
}
