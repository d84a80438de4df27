package operation

import (
	"slices"

	"github.com/rohankatakam/elemgraph/internal/errors"
)

// Merge kinds for FederatedOperation.
const (
	MergeConcat    = "concat"
	MergeAggregate = "aggregate"
	MergeSum       = "sum"
	MergeMapSum    = "map_sum"
	MergeOr        = "or"
	MergeAnd       = "and"
	MergeMin       = "min"
	MergeMax       = "max"
	MergeSchema    = "schema"
	MergeNone      = "none"
)

var mergeOutputs = map[string]func(Type) bool{
	MergeConcat:    Type.Iterable,
	MergeAggregate: func(t Type) bool { return t == TypeElements },
	MergeSum:       func(t Type) bool { return t == TypeLong },
	MergeMapSum:    func(t Type) bool { return t == TypeGroupCounts },
	MergeOr:        func(t Type) bool { return t == TypeBoolean },
	MergeAnd:       func(t Type) bool { return t == TypeBoolean },
	MergeMin:       func(t Type) bool { return t == TypeLong },
	MergeMax:       func(t Type) bool { return t == TypeLong },
	MergeSchema:    func(t Type) bool { return t == TypeSchema },
	MergeNone:      func(Type) bool { return true },
}

// DefaultMerge returns the merge kind used for an output type when none is
// configured. Summarising element queries aggregate.
func DefaultMerge(out Type, summarise bool) string {
	switch out {
	case TypeElements:
		if summarise {
			return MergeAggregate
		}
		return MergeConcat
	case TypeLong:
		return MergeSum
	case TypeBoolean:
		return MergeOr
	case TypeGroupCounts:
		return MergeMapSum
	case TypeSchema:
		return MergeSchema
	case TypeVoid, TypeAny:
		return MergeNone
	}
	if out.Iterable() {
		return MergeConcat
	}
	return MergeNone
}

// ValidateMerge rejects unknown merge kinds and kinds that cannot combine
// results of type out.
func ValidateMerge(kind string, out Type) error {
	accepts, ok := mergeOutputs[kind]
	if !ok {
		return errors.ValidationErrorf("unknown merge kind %q", kind).WithContext("merge", kind)
	}
	if out != TypeAny && !accepts(out) {
		return errors.ValidationErrorf("merge kind %q cannot combine %s results", kind, out).WithContext("merge", kind)
	}
	return nil
}

// FederatedOperation runs Payload on a subset of a federated store's
// delegate graphs and merges their results.
type FederatedOperation struct {
	Base
	// GraphIDs limits the delegates; empty means all of them.
	GraphIDs []string
	Payload  Operation
	// Merge is a merge kind; empty selects DefaultMerge.
	Merge string
	// SkipFailedExecution overrides the store's skip policy when set.
	SkipFailedExecution *bool
}

func (*FederatedOperation) Class() string { return "FederatedOperation" }

func (o *FederatedOperation) InputType() Type {
	if o.Payload == nil {
		return TypeVoid
	}
	return o.Payload.InputType()
}

func (o *FederatedOperation) OutputType() Type {
	if o.Payload == nil {
		return TypeVoid
	}
	return o.Payload.OutputType()
}

func (o *FederatedOperation) Clone() Operation {
	c := *o
	c.Base = o.Base.clone()
	c.GraphIDs = slices.Clone(o.GraphIDs)
	if o.Payload != nil {
		c.Payload = o.Payload.Clone()
	}
	if o.SkipFailedExecution != nil {
		skip := *o.SkipFailedExecution
		c.SkipFailedExecution = &skip
	}
	return &c
}

func (o *FederatedOperation) GetInput() any {
	if in, ok := o.Payload.(Input); ok {
		return in.GetInput()
	}
	return nil
}

func (o *FederatedOperation) SetInput(v any) {
	if in, ok := o.Payload.(Input); ok {
		in.SetInput(v)
	}
}

func (o *FederatedOperation) Operations() []Operation {
	if o.Payload == nil {
		return nil
	}
	return []Operation{o.Payload}
}

func (o *FederatedOperation) SetOperations(ops []Operation) {
	if len(ops) == 1 {
		o.Payload = ops[0]
		return
	}
	o.Payload = NewChain(ops...)
}

// MergeKind returns the configured or default merge kind.
func (o *FederatedOperation) MergeKind() string {
	if o.Merge != "" {
		return o.Merge
	}
	summarise := false
	if v, ok := o.Payload.(Viewer); ok {
		summarise = v.GetView().Summarises()
	}
	return DefaultMerge(o.OutputType(), summarise)
}

func (o *FederatedOperation) Validate() error {
	if o.Payload == nil {
		return errors.ValidationErrorf("%s requires a payload operation", o.Class()).WithContext("operation", o.Class())
	}
	if err := ValidateMerge(o.MergeKind(), o.OutputType()); err != nil {
		return err
	}
	if v, ok := o.Payload.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
