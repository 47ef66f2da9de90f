package packet

import (
	"encoding/json"
	"fmt"
)

// Kind tags the runtime type of a decoded widget value.
type Kind uint8

const (
	KindBool Kind = iota
	KindUint
	KindInt
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one decoded widget: a tagged bool, unsigned integer, or
// signed integer. Values are plain data and safe to copy.
type Value struct {
	kind Kind
	b    bool
	u    uint64
	i    int64
}

// BoolValue wraps a decoded single-bit state.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// UintValue wraps a decoded multi-bit unsigned integer.
func UintValue(u uint64) Value { return Value{kind: KindUint, u: u} }

// IntValue wraps a decoded signed integer.
func IntValue(i int64) Value { return Value{kind: KindInt, i: i} }

// Kind returns the tag of the value.
func (v Value) Kind() Kind { return v.kind }

// Bool returns the boolean payload. It is false for non-bool values.
func (v Value) Bool() bool { return v.kind == KindBool && v.b }

// Uint returns the unsigned payload, or 0 for other kinds.
func (v Value) Uint() uint64 {
	if v.kind != KindUint {
		return 0
	}
	return v.u
}

// Int returns the signed payload, or 0 for other kinds.
func (v Value) Int() int64 {
	if v.kind != KindInt {
		return 0
	}
	return v.i
}

// Equal reports whether two values have the same kind and payload.
// go-cmp uses this method when comparing decoded frames.
func (v Value) Equal(o Value) bool { return v == o }

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return fmt.Sprintf("%t", v.b)
	case KindUint:
		return fmt.Sprintf("%d", v.u)
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	default:
		return "invalid"
	}
}

// MarshalJSON encodes the value as its natural JSON type.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	default:
		return json.Marshal(v.u)
	}
}

// Frame is the decoded form of one raw frame: widget name to value.
// A Frame is produced atomically by Decoder.Decode and is not written
// to afterwards by this package.
type Frame map[string]Value
