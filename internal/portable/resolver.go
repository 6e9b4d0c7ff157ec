package portable

import (
	"fmt"
	"strconv"

	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
	"github.com/ashita-ai/kiroku/internal/value"
)

const maxDepth = 256

// Decode decodes one value of type id at the cursor.
func (r *Registry) Decode(c *scale.Cursor, id uint32) (value.Value, error) {
	return r.decode(c, id, 0)
}

func (r *Registry) decode(c *scale.Cursor, id uint32, depth int) (value.Value, error) {
	if depth > maxDepth {
		return value.Value{}, fmt.Errorf("portable: type nesting too deep at %d", id)
	}
	t, ok := r.types[id]
	if !ok {
		return value.Value{}, &schema.Error{Kind: schema.TypeNotFound, Detail: strconv.FormatUint(uint64(id), 10)}
	}
	v, err := r.decodeDef(c, t, depth)
	if err != nil {
		return value.Value{}, err
	}
	return v.WithContext(strconv.FormatUint(uint64(id), 10)), nil
}

func (r *Registry) decodeDef(c *scale.Cursor, t Type, depth int) (value.Value, error) {
	switch d := t.Def.(type) {
	case CompositeDef:
		comp, err := r.decodeFields(c, d.Fields, depth)
		if err != nil {
			return value.Value{}, err
		}
		return value.Value{Def: comp}, nil
	case VariantDef:
		idx, err := c.ReadU8()
		if err != nil {
			return value.Value{}, err
		}
		for _, v := range d.Variants {
			if v.Index != idx {
				continue
			}
			comp, err := r.decodeFields(c, v.Fields, depth)
			if err != nil {
				return value.Value{}, fmt.Errorf("portable: variant %s: %w", v.Name, err)
			}
			return value.NewVariant(v.Name, v.Index, comp), nil
		}
		return value.Value{}, fmt.Errorf("portable: %s has no variant with index %d", t.PathString(), idx)
	case SequenceDef:
		n, err := c.ReadLen()
		if err != nil {
			return value.Value{}, err
		}
		return r.decodeSeq(c, d.Elem, n, depth)
	case ArrayDef:
		return r.decodeSeq(c, d.Elem, int(d.Len), depth)
	case TupleDef:
		vals := make([]value.Value, 0, len(d.Elems))
		for _, e := range d.Elems {
			v, err := r.decode(c, e, depth+1)
			if err != nil {
				return value.Value{}, err
			}
			vals = append(vals, v)
		}
		return value.NewUnnamed(vals...), nil
	case PrimitiveDef:
		return decodePrimitive(c, d.Kind)
	case CompactDef:
		n, err := c.ReadCompact()
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBigInt(n), nil
	case BitSequenceDef:
		return r.decodeBits(c, d)
	default:
		return value.Value{}, fmt.Errorf("portable: unknown type def %T", t.Def)
	}
}

func (r *Registry) decodeFields(c *scale.Cursor, fields []Field, depth int) (value.Composite, error) {
	comp := value.Composite{Values: make([]value.Value, 0, len(fields))}
	named := len(fields) > 0 && fields[0].Name != ""
	for _, f := range fields {
		v, err := r.decode(c, f.Type, depth+1)
		if err != nil {
			if f.Name != "" {
				return comp, fmt.Errorf("field %s: %w", f.Name, err)
			}
			return comp, err
		}
		if named {
			comp.Names = append(comp.Names, f.Name)
		}
		comp.Values = append(comp.Values, v)
	}
	return comp, nil
}

func (r *Registry) decodeSeq(c *scale.Cursor, elem uint32, n, depth int) (value.Value, error) {
	vals := make([]value.Value, 0, min(n, c.Remaining()))
	for i := range n {
		before := c.Remaining()
		v, err := r.decode(c, elem, depth+1)
		if err != nil {
			return value.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		if i == 0 && c.Remaining() == before && n > before {
			return value.Value{}, fmt.Errorf("%w: %d elements", scale.ErrZeroSizedSequence, n)
		}
		vals = append(vals, v)
	}
	return value.NewUnnamed(vals...), nil
}

func (r *Registry) decodeBits(c *scale.Cursor, d BitSequenceDef) (value.Value, error) {
	storeBytes := 1
	if st, ok := r.types[d.Store]; ok {
		if p, ok := st.Def.(PrimitiveDef); ok {
			if w, signed := p.Kind.width(); w > 0 && !signed {
				storeBytes = w
			}
		}
	}
	msb := false
	if ot, ok := r.types[d.Order]; ok && len(ot.Path) > 0 {
		msb = ot.Path[len(ot.Path)-1] == "Msb0"
	}
	bits, err := c.ReadBits(storeBytes, msb)
	if err != nil {
		return value.Value{}, err
	}
	return value.Value{Def: value.BitSequence(bits)}, nil
}

func decodePrimitive(c *scale.Cursor, p Primitive) (value.Value, error) {
	switch p {
	case Bool:
		b, err := c.ReadBool()
		return value.NewBool(b), err
	case Char:
		n, err := c.ReadU32()
		return value.NewChar(rune(n)), err
	case Str:
		s, err := c.ReadString()
		return value.NewStr(s), err
	}
	w, signed := p.width()
	if w == 0 {
		return value.Value{}, fmt.Errorf("portable: unknown primitive %d", p)
	}
	if signed {
		n, err := c.ReadInt(w)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewSized(n, uint16(w*8)), nil
	}
	n, err := c.ReadUint(w)
	if err != nil {
		return value.Value{}, err
	}
	return value.NewSized(n, uint16(w*8)), nil
}
