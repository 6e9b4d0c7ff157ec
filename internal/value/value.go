// Package value is the decoded, schema-independent representation of SCALE
// data. Every decoded value carries the type identifier it was decoded from
// as a string context so output can be traced back to its type.
package value

import (
	"math/big"
)

// Value is a decoded value and the type it was decoded as.
type Value struct {
	Def     Def
	Context string
}

// Def is one of Bool, Char, Str, Int, Composite, Variant or BitSequence.
type Def interface {
	isDef()
}

type (
	// Bool is a decoded bool.
	Bool bool
	// Char is a decoded unicode scalar.
	Char rune
	// Str is a decoded string.
	Str string
	// Int is a decoded integer. Width is the fixed bit width it was decoded
	// from, or 0 for compact and otherwise unsized integers.
	Int struct {
		V     *big.Int
		Width uint16
	}
	// BitSequence is a decoded bit vector, in bit order.
	BitSequence []bool
)

// Composite is a struct (Names set) or a tuple/sequence (Names nil).
type Composite struct {
	Names  []string
	Values []Value
}

// Variant is one case of an enum.
type Variant struct {
	Name   string
	Index  uint8
	Fields Composite
}

func (Bool) isDef()        {}
func (Char) isDef()        {}
func (Str) isDef()         {}
func (Int) isDef()         {}
func (BitSequence) isDef() {}
func (Composite) isDef()   {}
func (Variant) isDef()     {}

// WithContext returns v with its context replaced.
func (v Value) WithContext(ctx string) Value {
	v.Context = ctx
	return v
}

// NewBool returns a bool value.
func NewBool(b bool) Value { return Value{Def: Bool(b)} }

// NewChar returns a char value.
func NewChar(r rune) Value { return Value{Def: Char(r)} }

// NewStr returns a string value.
func NewStr(s string) Value { return Value{Def: Str(s)} }

// NewUint returns an unsigned integer value.
func NewUint(n uint64) Value { return Value{Def: Int{V: new(big.Int).SetUint64(n)}} }

// NewInt returns a signed integer value.
func NewInt(n int64) Value { return Value{Def: Int{V: big.NewInt(n)}} }

// NewBigInt returns an integer value backed by n.
func NewBigInt(n *big.Int) Value { return Value{Def: Int{V: n}} }

// NewSized returns an integer value decoded from a fixed-width field.
func NewSized(n *big.Int, width uint16) Value { return Value{Def: Int{V: n, Width: width}} }

// NewUnnamed returns a tuple-like composite.
func NewUnnamed(vals ...Value) Value {
	if vals == nil {
		vals = []Value{}
	}
	return Value{Def: Composite{Values: vals}}
}

// NewNamed returns a struct-like composite. names and vals must be the same length.
func NewNamed(names []string, vals []Value) Value {
	return Value{Def: Composite{Names: names, Values: vals}}
}

// NewVariant returns an enum value.
func NewVariant(name string, index uint8, fields Composite) Value {
	return Value{Def: Variant{Name: name, Index: index, Fields: fields}}
}

// NewBytes returns a composite of u8 values, the decoded shape of Vec<u8>.
func NewBytes(b []byte) Value {
	vals := make([]Value, len(b))
	for i, x := range b {
		vals[i] = NewSized(big.NewInt(int64(x)), 8)
	}
	return NewUnnamed(vals...)
}

// Unit returns the empty tuple.
func Unit() Value { return NewUnnamed() }

// Named reports whether the composite has field names.
func (c Composite) Named() bool { return len(c.Names) > 0 && len(c.Names) == len(c.Values) }

// Field returns the value of the named field.
func (c Composite) Field(name string) (Value, bool) {
	for i, n := range c.Names {
		if n == name && i < len(c.Values) {
			return c.Values[i], true
		}
	}
	return Value{}, false
}

// AsUint64 returns the value as a uint64 if it is a non-negative integer that fits.
func (v Value) AsUint64() (uint64, bool) {
	i, ok := v.Def.(Int)
	if !ok || i.V == nil || !i.V.IsUint64() {
		return 0, false
	}
	return i.V.Uint64(), true
}

// AsBytes returns the bytes of a non-empty unnamed composite whose values
// are all u8 integers.
func (v Value) AsBytes() ([]byte, bool) {
	c, ok := v.Def.(Composite)
	if !ok || len(c.Values) == 0 || c.Named() {
		return nil, false
	}
	out := make([]byte, len(c.Values))
	for i, e := range c.Values {
		n, ok := e.Def.(Int)
		if !ok || n.Width != 8 || n.V == nil {
			return nil, false
		}
		out[i] = byte(n.V.Uint64())
	}
	return out, true
}
