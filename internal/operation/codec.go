package operation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"sort"

	"github.com/rohankatakam/elemgraph/internal/element"
	"github.com/rohankatakam/elemgraph/internal/function"
)

// registry is the allow-list of decodable operation classes.
var registry = map[string]func() Operation{}

func register(factories ...func() Operation) {
	for _, f := range factories {
		class := f().Class()
		if _, dup := registry[class]; dup {
			panic(fmt.Sprintf("operation class %q registered twice", class))
		}
		registry[class] = f
	}
}

func init() {
	register(
		func() Operation { return &AddElements{} },
		func() Operation { return &GetElements{} },
		func() Operation { return &GetAllElements{} },
		func() Operation { return &GetAdjacentIDs{} },
		func() Operation { return &Count{} },
		func() Operation { return &CountGroups{} },
		func() Operation { return &ExtractGroupCount{} },
		func() Operation { return &Limit{} },
		func() Operation { return &ToSet{} },
		func() Operation { return &DiscardOutput{} },
		func() Operation { return &Filter{} },
		func() Operation { return &Transform{} },
		func() Operation { return &Aggregate{} },
		func() Operation { return &ExportToSet{} },
		func() Operation { return &GetSetExport{} },
		func() Operation { return &GetSchema{} },
		func() Operation { return &GetJobDetails{} },
		func() Operation { return &GetAllJobDetails{} },
		func() Operation { return &CancelScheduledJob{} },
		func() Operation { return &AddNamedView{} },
		func() Operation { return &GetAllNamedViews{} },
		func() Operation { return &DeleteNamedView{} },
		func() Operation { return &AddNamedOperation{} },
		func() Operation { return &GetAllNamedOperations{} },
		func() Operation { return &DeleteNamedOperation{} },
		func() Operation { return &NamedOperation{} },
		func() Operation { return &Chain{} },
		func() Operation { return &GetAllGraphIDs{} },
		func() Operation { return &RemoveGraph{} },
		func() Operation { return &FederatedOperation{} },
	)
}

// Classes lists the decodable operation classes, sorted.
func Classes() []string {
	out := make([]string, 0, len(registry))
	for class := range registry {
		out = append(out, class)
	}
	sort.Strings(out)
	return out
}

// New returns a zero operation of class.
func New(class string) (Operation, bool) {
	f, ok := registry[class]
	if !ok {
		return nil, false
	}
	return f(), true
}

// Encode writes op as {"class": ..., fields..., "input": [...]}.
func Encode(op Operation) ([]byte, error) {
	if op == nil {
		return []byte("null"), nil
	}
	if m, ok := op.(json.Marshaler); ok {
		return m.MarshalJSON()
	}
	body, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", op.Class(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", op.Class(), err)
	}
	fields["class"], _ = json.Marshal(op.Class())
	if in, ok := op.(Input); ok && in.GetInput() != nil {
		raw, err := encodeInput(in.GetInput())
		if err != nil {
			return nil, fmt.Errorf("encode %s input: %w", op.Class(), err)
		}
		fields["input"] = raw
	}
	return json.Marshal(fields)
}

func encodeInput(v any) (json.RawMessage, error) {
	if items, ok := Collect(v); ok {
		return json.Marshal(items)
	}
	return json.Marshal(v)
}

// Decode reads an operation document. Unknown classes are rejected.
func Decode(data []byte) (Operation, error) {
	var head struct {
		Class string          `json:"class"`
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}
	if head.Class == "" {
		return nil, fmt.Errorf("operation has no class")
	}
	op, ok := New(head.Class)
	if !ok {
		return nil, fmt.Errorf("unknown operation class %q", head.Class)
	}
	if u, ok := op.(json.Unmarshaler); ok {
		if err := u.UnmarshalJSON(data); err != nil {
			return nil, fmt.Errorf("decode %s: %w", head.Class, err)
		}
		return op, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(op); err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.Class, err)
	}
	if n, ok := op.(*NamedOperation); ok {
		for k, v := range n.Parameters {
			n.Parameters[k] = function.Normalise(v)
		}
	}
	if len(head.Input) > 0 && !bytes.Equal(bytes.TrimSpace(head.Input), []byte("null")) {
		in, ok := op.(Input)
		if !ok {
			return nil, fmt.Errorf("%s takes no input", head.Class)
		}
		v, err := decodeInput(op.InputType(), head.Input)
		if err != nil {
			return nil, fmt.Errorf("decode %s input: %w", head.Class, err)
		}
		if err := BindInput(in, v); err != nil {
			return nil, err
		}
	}
	return op, nil
}

func decodeInput(t Type, data json.RawMessage) (any, error) {
	switch t {
	case TypeElements:
		var elements []*element.Element
		if err := json.Unmarshal(data, &elements); err != nil {
			return nil, err
		}
		return slices.Values(elements), nil
	case TypeGroupCounts:
		var gc GroupCounts
		if err := json.Unmarshal(data, &gc); err != nil {
			return nil, err
		}
		return &gc, nil
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return decodeValue(trimmed)
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, err
	}
	out := make([]any, 0, len(raws))
	for _, raw := range raws {
		v, err := decodeValue(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// decodeValue reads one input item: an element, a seed, or a plain value.
func decodeValue(raw json.RawMessage) (any, error) {
	var head struct {
		Class string `json:"class"`
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &head); err != nil {
			return nil, err
		}
		switch head.Class {
		case string(element.KindEntity), string(element.KindEdge):
			e := &element.Element{}
			if err := json.Unmarshal(trimmed, e); err != nil {
				return nil, err
			}
			return e, nil
		case "EntitySeed", "EdgeSeed":
			var id element.ID
			if err := json.Unmarshal(trimmed, &id); err != nil {
				return nil, err
			}
			return id, nil
		}
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return function.Normalise(v), nil
}

type chainJSON struct {
	Class      string            `json:"class"`
	Operations []json.RawMessage `json:"operations"`
	Options    map[string]string `json:"options,omitempty"`
}

// MarshalJSON encodes the chain and its operations.
func (c *Chain) MarshalJSON() ([]byte, error) {
	out := chainJSON{Class: c.Class(), Options: c.Opts, Operations: make([]json.RawMessage, 0, len(c.Ops))}
	for _, op := range c.Ops {
		raw, err := Encode(op)
		if err != nil {
			return nil, err
		}
		out.Operations = append(out.Operations, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an OperationChain document.
func (c *Chain) UnmarshalJSON(data []byte) error {
	var in chainJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Class != "" && in.Class != c.Class() {
		return fmt.Errorf("expected class %s, got %q", c.Class(), in.Class)
	}
	ops := make([]Operation, 0, len(in.Operations))
	for i, raw := range in.Operations {
		op, err := Decode(raw)
		if err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	*c = Chain{Base: Base{Opts: in.Options}, Ops: ops}
	return nil
}

type federatedJSON struct {
	Class               string            `json:"class"`
	GraphIDs            []string          `json:"graphIds,omitempty"`
	Payload             json.RawMessage   `json:"operation"`
	Merge               string            `json:"mergeFunction,omitempty"`
	SkipFailedExecution *bool             `json:"skipFailedFederatedExecution,omitempty"`
	Options             map[string]string `json:"options,omitempty"`
}

// MarshalJSON encodes the federated operation with its payload.
func (o *FederatedOperation) MarshalJSON() ([]byte, error) {
	payload, err := Encode(o.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(federatedJSON{
		Class:               o.Class(),
		GraphIDs:            o.GraphIDs,
		Payload:             payload,
		Merge:               o.Merge,
		SkipFailedExecution: o.SkipFailedExecution,
		Options:             o.Opts,
	})
}

// UnmarshalJSON decodes a FederatedOperation document.
func (o *FederatedOperation) UnmarshalJSON(data []byte) error {
	var in federatedJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	var payload Operation
	if len(in.Payload) > 0 && !bytes.Equal(bytes.TrimSpace(in.Payload), []byte("null")) {
		var err error
		if payload, err = Decode(in.Payload); err != nil {
			return fmt.Errorf("payload: %w", err)
		}
	}
	*o = FederatedOperation{
		Base:                Base{Opts: in.Options},
		GraphIDs:            in.GraphIDs,
		Payload:             payload,
		Merge:               in.Merge,
		SkipFailedExecution: in.SkipFailedExecution,
	}
	return nil
}
