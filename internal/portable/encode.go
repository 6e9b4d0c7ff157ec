package portable

import "github.com/ashita-ai/kiroku/internal/scale"

// EncodeTo writes the registry in PortableRegistry form, the inverse of
// DecodeRegistry.
func (r *Registry) EncodeTo(e *scale.Encoder) {
	e.Compact(uint64(len(r.order)))
	for _, id := range r.order {
		encodeType(e, r.types[id])
	}
}

func encodeType(e *scale.Encoder, t Type) {
	e.Compact(uint64(t.ID)).Strings(t.Path...)
	e.Compact(uint64(len(t.Params)))
	for _, p := range t.Params {
		e.String(p.Name)
		if p.Type == nil {
			e.None()
		} else {
			e.Some().Compact(uint64(*p.Type))
		}
	}
	switch d := t.Def.(type) {
	case CompositeDef:
		e.U8(0)
		encodeFields(e, d.Fields)
	case VariantDef:
		e.U8(1).Compact(uint64(len(d.Variants)))
		for _, v := range d.Variants {
			e.String(v.Name)
			encodeFields(e, v.Fields)
			e.U8(v.Index).Strings(v.Docs...)
		}
	case SequenceDef:
		e.U8(2).Compact(uint64(d.Elem))
	case ArrayDef:
		e.U8(3).U32(d.Len).Compact(uint64(d.Elem))
	case TupleDef:
		e.U8(4).Compact(uint64(len(d.Elems)))
		for _, id := range d.Elems {
			e.Compact(uint64(id))
		}
	case PrimitiveDef:
		e.U8(5).U8(uint8(d.Kind))
	case CompactDef:
		e.U8(6).Compact(uint64(d.Elem))
	case BitSequenceDef:
		e.U8(7).Compact(uint64(d.Store)).Compact(uint64(d.Order))
	}
	e.Strings(t.Docs...)
}

func encodeFields(e *scale.Encoder, fields []Field) {
	e.Compact(uint64(len(fields)))
	for _, f := range fields {
		if f.Name == "" {
			e.None()
		} else {
			e.Some().String(f.Name)
		}
		e.Compact(uint64(f.Type))
		if f.TypeName == "" {
			e.None()
		} else {
			e.Some().String(f.TypeName)
		}
		e.Strings(f.Docs...)
	}
}
