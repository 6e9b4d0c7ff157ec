// Package portable decodes and resolves the self-describing type table
// carried by runtime metadata V14 and later. Types are identified by their
// numeric index in the table.
package portable

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ashita-ai/kiroku/internal/scale"
)

// Type is one entry of the portable type table.
type Type struct {
	ID     uint32      `json:"id"`
	Path   []string    `json:"path,omitempty"`
	Params []TypeParam `json:"params,omitempty"`
	Def    TypeDef     `json:"def"`
	Docs   []string    `json:"docs,omitempty"`
}

// PathString joins the type path with "::".
func (t Type) PathString() string { return strings.Join(t.Path, "::") }

// Param returns the type bound to the named generic parameter.
func (t Type) Param(name string) (uint32, bool) {
	for _, p := range t.Params {
		if p.Name == name && p.Type != nil {
			return *p.Type, true
		}
	}
	return 0, false
}

// TypeParam is a generic parameter. Type is nil when the parameter was
// erased.
type TypeParam struct {
	Name string  `json:"name"`
	Type *uint32 `json:"type,omitempty"`
}

// TypeDef is the definition of a type.
type TypeDef interface {
	isTypeDef()
}

type (
	CompositeDef struct {
		Fields []Field `json:"fields"`
	}
	VariantDef struct {
		Variants []Variant `json:"variants"`
	}
	SequenceDef struct {
		Elem uint32 `json:"elem"`
	}
	ArrayDef struct {
		Len  uint32 `json:"len"`
		Elem uint32 `json:"elem"`
	}
	TupleDef struct {
		Elems []uint32 `json:"elems"`
	}
	PrimitiveDef struct {
		Kind Primitive `json:"primitive"`
	}
	CompactDef struct {
		Elem uint32 `json:"compact"`
	}
	BitSequenceDef struct {
		Store uint32 `json:"store"`
		Order uint32 `json:"order"`
	}
)

func (CompositeDef) isTypeDef()   {}
func (VariantDef) isTypeDef()     {}
func (SequenceDef) isTypeDef()    {}
func (ArrayDef) isTypeDef()       {}
func (TupleDef) isTypeDef()       {}
func (PrimitiveDef) isTypeDef()   {}
func (CompactDef) isTypeDef()     {}
func (BitSequenceDef) isTypeDef() {}

// Field is a composite or variant field. Name is empty for positional fields.
type Field struct {
	Name     string   `json:"name,omitempty"`
	Type     uint32   `json:"type"`
	TypeName string   `json:"typeName,omitempty"`
	Docs     []string `json:"docs,omitempty"`
}

// Variant is one enum case.
type Variant struct {
	Name   string   `json:"name"`
	Fields []Field  `json:"fields,omitempty"`
	Index  uint8    `json:"index"`
	Docs   []string `json:"docs,omitempty"`
}

// Primitive enumerates the primitive types in encoding order.
type Primitive uint8

const (
	Bool Primitive = iota
	Char
	Str
	U8
	U16
	U32
	U64
	U128
	U256
	I8
	I16
	I32
	I64
	I128
	I256
)

var primitiveNames = [...]string{"bool", "char", "str", "u8", "u16", "u32", "u64", "u128", "u256", "i8", "i16", "i32", "i64", "i128", "i256"}

func (p Primitive) String() string {
	if int(p) < len(primitiveNames) {
		return primitiveNames[p]
	}
	return fmt.Sprintf("primitive(%d)", uint8(p))
}

// MarshalText renders the primitive name.
func (p Primitive) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// width returns the byte width and signedness of integer primitives.
func (p Primitive) width() (int, bool) {
	switch p {
	case U8, I8:
		return 1, p == I8
	case U16, I16:
		return 2, p == I16
	case U32, I32:
		return 4, p == I32
	case U64, I64:
		return 8, p == I64
	case U128, I128:
		return 16, p == I128
	case U256, I256:
		return 32, p == I256
	}
	return 0, false
}

// Registry is a decoded portable type table. It is immutable and safe for
// concurrent use.
type Registry struct {
	types map[uint32]Type
	order []uint32
}

// NewRegistry builds a registry from types.
func NewRegistry(types ...Type) *Registry {
	r := &Registry{types: make(map[uint32]Type, len(types))}
	for _, t := range types {
		if _, dup := r.types[t.ID]; !dup {
			r.order = append(r.order, t.ID)
		}
		r.types[t.ID] = t
	}
	return r
}

// Type returns the type with the given id.
func (r *Registry) Type(id uint32) (Type, bool) {
	t, ok := r.types[id]
	return t, ok
}

// Types returns every type in table order.
func (r *Registry) Types() []Type {
	out := make([]Type, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.types[id])
	}
	return out
}

// Len returns the number of types.
func (r *Registry) Len() int { return len(r.types) }

// MarshalJSON renders the table as a list of types in table order.
func (r *Registry) MarshalJSON() ([]byte, error) { return json.Marshal(r.Types()) }

// DecodeRegistry reads a PortableRegistry from the cursor.
func DecodeRegistry(c *scale.Cursor) (*Registry, error) {
	n, err := c.ReadLen()
	if err != nil {
		return nil, fmt.Errorf("portable: type count: %w", err)
	}
	types := make([]Type, 0, min(n, c.Remaining()))
	for i := range n {
		t, err := decodeType(c)
		if err != nil {
			return nil, fmt.Errorf("portable: type %d: %w", i, err)
		}
		types = append(types, t)
	}
	return NewRegistry(types...), nil
}

func decodeType(c *scale.Cursor) (Type, error) {
	var t Type
	var err error
	if t.ID, err = c.ReadCompactU32(); err != nil {
		return t, err
	}
	if t.Path, err = c.ReadStrings(); err != nil {
		return t, fmt.Errorf("path: %w", err)
	}
	np, err := c.ReadLen()
	if err != nil {
		return t, err
	}
	for range np {
		var p TypeParam
		if p.Name, err = c.ReadString(); err != nil {
			return t, fmt.Errorf("param: %w", err)
		}
		some, err := c.ReadOption()
		if err != nil {
			return t, err
		}
		if some {
			id, err := c.ReadCompactU32()
			if err != nil {
				return t, err
			}
			p.Type = &id
		}
		t.Params = append(t.Params, p)
	}
	if t.Def, err = decodeTypeDef(c); err != nil {
		return t, fmt.Errorf("def: %w", err)
	}
	if t.Docs, err = c.ReadStrings(); err != nil {
		return t, fmt.Errorf("docs: %w", err)
	}
	return t, nil
}

func decodeTypeDef(c *scale.Cursor) (TypeDef, error) {
	tag, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		fields, err := decodeFields(c)
		return CompositeDef{Fields: fields}, err
	case 1:
		n, err := c.ReadLen()
		if err != nil {
			return nil, err
		}
		var d VariantDef
		for range n {
			var v Variant
			if v.Name, err = c.ReadString(); err != nil {
				return nil, err
			}
			if v.Fields, err = decodeFields(c); err != nil {
				return nil, err
			}
			if v.Index, err = c.ReadU8(); err != nil {
				return nil, err
			}
			if v.Docs, err = c.ReadStrings(); err != nil {
				return nil, err
			}
			d.Variants = append(d.Variants, v)
		}
		return d, nil
	case 2:
		id, err := c.ReadCompactU32()
		return SequenceDef{Elem: id}, err
	case 3:
		l, err := c.ReadU32()
		if err != nil {
			return nil, err
		}
		id, err := c.ReadCompactU32()
		return ArrayDef{Len: l, Elem: id}, err
	case 4:
		n, err := c.ReadLen()
		if err != nil {
			return nil, err
		}
		var d TupleDef
		if n > 0 {
			d.Elems = make([]uint32, 0, min(n, c.Remaining()))
		}
		for range n {
			id, err := c.ReadCompactU32()
			if err != nil {
				return nil, err
			}
			d.Elems = append(d.Elems, id)
		}
		return d, nil
	case 5:
		p, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		if int(p) >= len(primitiveNames) {
			return nil, fmt.Errorf("unknown primitive %d", p)
		}
		return PrimitiveDef{Kind: Primitive(p)}, nil
	case 6:
		id, err := c.ReadCompactU32()
		return CompactDef{Elem: id}, err
	case 7:
		store, err := c.ReadCompactU32()
		if err != nil {
			return nil, err
		}
		order, err := c.ReadCompactU32()
		return BitSequenceDef{Store: store, Order: order}, err
	default:
		return nil, fmt.Errorf("unknown type def tag %d", tag)
	}
}

func decodeFields(c *scale.Cursor) ([]Field, error) {
	n, err := c.ReadLen()
	if err != nil || n == 0 {
		return nil, err
	}
	fields := make([]Field, 0, min(n, c.Remaining()))
	for range n {
		var f Field
		if f.Name, _, err = c.ReadOptionString(); err != nil {
			return nil, err
		}
		if f.Type, err = c.ReadCompactU32(); err != nil {
			return nil, err
		}
		if f.TypeName, _, err = c.ReadOptionString(); err != nil {
			return nil, err
		}
		if f.Docs, err = c.ReadStrings(); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}
