package operation

import (
	"github.com/rohankatakam/elemgraph/internal/errors"
)

// Chain is an ordered list of operations; the output of each is bound as
// the input of the next. A chain is itself an operation so it can nest.
type Chain struct {
	Base
	Ops []Operation
}

// NewChain builds a chain.
func NewChain(ops ...Operation) *Chain {
	return &Chain{Ops: ops}
}

// AsChain wraps op in a chain unless it already is one.
func AsChain(op Operation) *Chain {
	if c, ok := op.(*Chain); ok {
		return c
	}
	return NewChain(op)
}

func (*Chain) Class() string { return "OperationChain" }

func (c *Chain) InputType() Type {
	if len(c.Ops) == 0 {
		return TypeVoid
	}
	return c.Ops[0].InputType()
}

func (c *Chain) OutputType() Type {
	out := TypeVoid
	for _, op := range c.Ops {
		out = staticOutput(op, out)
	}
	return out
}

func (c *Chain) Clone() Operation { return c.CloneChain() }

// CloneChain deep-copies the chain so hooks can rewrite it without touching
// the caller's copy.
func (c *Chain) CloneChain() *Chain {
	out := &Chain{Base: c.Base.clone(), Ops: make([]Operation, len(c.Ops))}
	for i, op := range c.Ops {
		out.Ops[i] = op.Clone()
	}
	return out
}

func (c *Chain) GetInput() any {
	if len(c.Ops) == 0 {
		return nil
	}
	if in, ok := c.Ops[0].(Input); ok {
		return in.GetInput()
	}
	return nil
}

func (c *Chain) SetInput(v any) {
	if len(c.Ops) == 0 {
		return
	}
	if in, ok := c.Ops[0].(Input); ok {
		in.SetInput(v)
	}
}

func (c *Chain) Operations() []Operation        { return c.Ops }
func (c *Chain) SetOperations(ops []Operation) { c.Ops = ops }

// Validate checks each operation and that every operation's output can be
// bound to the next operation's input. Operations with an input already
// set may follow operations with no output.
func (c *Chain) Validate() error {
	if len(c.Ops) == 0 {
		return errors.ValidationErrorf("operation chain has no operations")
	}
	prev := TypeVoid
	for i, op := range c.Ops {
		if op == nil {
			return errors.ValidationErrorf("operation %d of the chain is nil", i)
		}
		if v, ok := op.(Validatable); ok {
			if err := v.Validate(); err != nil {
				return err
			}
		}
		if i > 0 && op.InputType() != TypeVoid {
			in, ok := op.(Input)
			preset := ok && in.GetInput() != nil
			if ok && !(preset && prev == TypeVoid) && !prev.AssignableTo(op.InputType()) {
				return errors.ChainTypeErrorf("operation %d (%s) outputs %s but operation %d (%s) takes %s",
					i-1, c.Ops[i-1].Class(), prev, i, op.Class(), op.InputType()).
					WithContext("operation", op.Class()).WithContext("index", i)
			}
		}
		prev = staticOutput(op, prev)
	}
	return nil
}

// staticOutput is op's output type given the type bound to its input.
func staticOutput(op Operation, in Type) Type {
	if _, ok := op.(PassThrough); ok && in != TypeVoid && in != TypeAny {
		return in
	}
	return op.OutputType()
}

// Walk calls fn for op and, depth first, every operation nested in it.
// Returning false from fn skips the children of that operation.
func Walk(op Operation, fn func(Operation) bool) {
	if op == nil || !fn(op) {
		return
	}
	if n, ok := op.(Nested); ok {
		for _, child := range n.Operations() {
			Walk(child, fn)
		}
	}
}
