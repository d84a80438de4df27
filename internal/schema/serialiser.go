package schema

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/rohankatakam/elemgraph/internal/function"
)

const defaultSerialiser = "json"

// Serialiser encodes values of a class to bytes. Stores use it for index
// keys, so ordered serialisers keep byte order equal to value order.
type Serialiser interface {
	Name() string
	CanHandle(c function.Class) bool
	Serialise(v any) ([]byte, error)
	Deserialise(b []byte) (any, error)
}

var serialisers = map[string]Serialiser{
	"json":         jsonSerialiser{},
	"ordered_long": orderedLongSerialiser{},
	"string":       stringSerialiser{},
	"boolean":      booleanSerialiser{},
}

// LookupSerialiser returns a serialiser by name.
func LookupSerialiser(name string) (Serialiser, bool) {
	s, ok := serialisers[name]
	return s, ok
}

type jsonSerialiser struct{}

func (jsonSerialiser) Name() string                  { return "json" }
func (jsonSerialiser) CanHandle(function.Class) bool { return true }
func (jsonSerialiser) Serialise(v any) ([]byte, error) {
	return json.Marshal(function.Normalise(v))
}
func (jsonSerialiser) Deserialise(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return function.Normalise(v), nil
}

// orderedLongSerialiser writes big-endian int64 with the sign bit flipped
// so that byte order matches numeric order.
type orderedLongSerialiser struct{}

func (orderedLongSerialiser) Name() string { return "ordered_long" }
func (orderedLongSerialiser) CanHandle(c function.Class) bool {
	return c == function.ClassLong || c == function.ClassInt
}
func (orderedLongSerialiser) Serialise(v any) ([]byte, error) {
	n, err := function.Coerce(function.ClassLong, v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, uint64(n.(int64))^(1<<63))
	return out, nil
}
func (orderedLongSerialiser) Deserialise(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, fmt.Errorf("ordered_long: expected 8 bytes, got %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63)), nil
}

type stringSerialiser struct{}

func (stringSerialiser) Name() string                    { return "string" }
func (stringSerialiser) CanHandle(c function.Class) bool { return c == function.ClassString }
func (stringSerialiser) Serialise(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("string: cannot serialise %T", v)
	}
	return []byte(s), nil
}
func (stringSerialiser) Deserialise(b []byte) (any, error) { return string(b), nil }

type booleanSerialiser struct{}

func (booleanSerialiser) Name() string                    { return "boolean" }
func (booleanSerialiser) CanHandle(c function.Class) bool { return c == function.ClassBoolean }
func (booleanSerialiser) Serialise(v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("boolean: cannot serialise %T", v)
	}
	if b {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}
func (booleanSerialiser) Deserialise(b []byte) (any, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("boolean: expected 1 byte, got %d", len(b))
	}
	return b[0] == 1, nil
}
