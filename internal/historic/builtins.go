package historic

import (
	"fmt"

	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/value"
)

var intWidths = map[string]struct {
	bytes  int
	signed bool
}{
	"u8": {1, false}, "u16": {2, false}, "u32": {4, false}, "u64": {8, false}, "u128": {16, false}, "u256": {32, false},
	"i8": {1, true}, "i16": {2, true}, "i32": {4, true}, "i64": {8, true}, "i128": {16, true}, "i256": {32, true},
}

// Sequence-like and transparent wrappers from the Rust standard library and
// FRAME, keyed by the last path segment.
var (
	seqTypes = map[string]bool{
		"Vec": true, "VecDeque": true, "BTreeSet": true, "BinaryHeap": true, "HashSet": true,
		"BoundedVec": true, "WeakBoundedVec": true, "BoundedBTreeSet": true,
	}
	mapTypes = map[string]bool{
		"BTreeMap": true, "HashMap": true, "BoundedBTreeMap": true,
	}
	wrapperTypes = map[string]bool{
		"Box": true, "Arc": true, "Rc": true, "Cow": true,
	}
)

// decodeBuiltin decodes types that are not defined in any registry. The
// second result reports whether id named a built-in at all.
func (r *Resolver) decodeBuiltin(c *scale.Cursor, id LookupName, depth int) (value.Value, bool, error) {
	name := id.last()
	params := id.params
	param := func(i int) LookupName { return params[i].scoped(id.pallet) }

	if w, ok := intWidths[name]; ok && len(params) == 0 {
		var n value.Value
		if w.signed {
			v, err := c.ReadInt(w.bytes)
			if err != nil {
				return value.Value{}, true, err
			}
			n = value.NewSized(v, uint16(w.bytes*8))
		} else {
			v, err := c.ReadUint(w.bytes)
			if err != nil {
				return value.Value{}, true, err
			}
			n = value.NewSized(v, uint16(w.bytes*8))
		}
		return n, true, nil
	}

	switch {
	case name == "bool" && len(params) == 0:
		b, err := c.ReadBool()
		return value.NewBool(b), true, err

	case name == "char" && len(params) == 0:
		n, err := c.ReadU32()
		return value.NewChar(rune(n)), true, err

	case (name == "str" || name == "String" || name == "Text") && len(params) == 0:
		s, err := c.ReadString()
		return value.NewStr(s), true, err

	case name == "Bytes" && len(params) == 0:
		b, err := c.ReadByteVec()
		return value.NewBytes(b), true, err

	case (name == "Null" || name == "PhantomData") && len(params) <= 1:
		return value.Unit(), true, nil

	case seqTypes[name] && len(params) >= 1:
		n, err := c.ReadLen()
		if err != nil {
			return value.Value{}, true, err
		}
		v, err := r.decodeSeq(c, param(0), n, depth)
		return v, true, err

	case mapTypes[name] && len(params) == 2:
		n, err := c.ReadLen()
		if err != nil {
			return value.Value{}, true, err
		}
		pair := LookupName{kind: kindTuple, params: []LookupName{param(0), param(1)}}
		v, err := r.decodeSeq(c, pair, n, depth)
		return v, true, err

	case wrapperTypes[name] && len(params) >= 1:
		v, err := r.decodeInner(c, param(0), depth+1)
		return v, true, err

	case name == "Option" && len(params) == 1:
		v, err := r.decodeOption(c, param(0), depth)
		return v, true, err

	case name == "Result" && len(params) == 2:
		tag, err := c.ReadU8()
		if err != nil {
			return value.Value{}, true, err
		}
		if tag > 1 {
			return value.Value{}, true, fmt.Errorf("historic: invalid Result tag %d", tag)
		}
		inner, err := r.decode(c, param(int(tag)), depth+1)
		if err != nil {
			return value.Value{}, true, err
		}
		variant := "Ok"
		if tag == 1 {
			variant = "Err"
		}
		return value.NewVariant(variant, tag, value.Composite{Values: []value.Value{inner}}), true, nil

	case name == "Compact" && len(params) == 1:
		n, err := c.ReadCompact()
		return value.NewBigInt(n), true, err

	case (name == "Range" || name == "RangeInclusive") && len(params) == 1:
		v, err := r.decodeTuple(c, []LookupName{param(0), param(0)}, id.pallet, nil, depth)
		return v, true, err

	case name == "BitVec":
		v, err := decodeBitVec(c, params)
		return v, true, err

	case name == "Era" || name == "ExtrinsicEra":
		v, err := decodeEra(c)
		return v, true, err

	// Call and Event resolve to the enums synthesized from metadata, so
	// wrapper calls like utility.batch decode their nested calls. Only
	// reached when no registry defines the name.
	case name == "Call" && id.Path() != "builtin::Call":
		v, err := r.decodeInner(c, named("builtin::Call"), depth+1)
		return v, true, err

	case name == "Event" && id.Path() != "builtin::Event":
		v, err := r.decodeInner(c, named("builtin::Event"), depth+1)
		return v, true, err
	}
	return value.Value{}, false, nil
}

// decodeOption handles Option<T>, including the single byte Option<bool>.
func (r *Resolver) decodeOption(c *scale.Cursor, inner LookupName, depth int) (value.Value, error) {
	tag, err := c.ReadU8()
	if err != nil {
		return value.Value{}, err
	}
	if inner.kind == kindNamed && inner.Path() == "bool" {
		switch tag {
		case 0:
			return value.NewVariant("None", 0, value.Composite{}), nil
		case 1, 2:
			b := value.NewBool(tag == 1).WithContext("bool")
			return value.NewVariant("Some", 1, value.Composite{Values: []value.Value{b}}), nil
		}
		return value.Value{}, fmt.Errorf("historic: invalid Option<bool> byte %d", tag)
	}
	switch tag {
	case 0:
		return value.NewVariant("None", 0, value.Composite{}), nil
	case 1:
		v, err := r.decode(c, inner, depth+1)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewVariant("Some", 1, value.Composite{Values: []value.Value{v}}), nil
	default:
		return value.Value{}, fmt.Errorf("%w: 0x%02x", scale.ErrInvalidOption, tag)
	}
}

func decodeBitVec(c *scale.Cursor, params []LookupName) (value.Value, error) {
	storeBytes, msb := 1, false
	if len(params) == 2 {
		msb = params[0].last() == "Msb0"
		if w, ok := intWidths[params[1].last()]; ok && !w.signed {
			storeBytes = w.bytes
		}
	}
	bits, err := c.ReadBits(storeBytes, msb)
	if err != nil {
		return value.Value{}, err
	}
	return value.Value{Def: value.BitSequence(bits)}, nil
}

// decodeEra decodes a transaction mortality. A zero byte is immortal; any
// other first byte starts a two byte encoding of period and phase.
func decodeEra(c *scale.Cursor) (value.Value, error) {
	first, err := c.ReadU8()
	if err != nil {
		return value.Value{}, err
	}
	if first == 0 {
		return value.NewVariant("Immortal", 0, value.Composite{}), nil
	}
	second, err := c.ReadU8()
	if err != nil {
		return value.Value{}, err
	}
	encoded := uint64(first) | uint64(second)<<8
	period := uint64(2) << (encoded % (1 << 4))
	quantizeFactor := max(period>>12, 1)
	phase := (encoded >> 4) * quantizeFactor
	return value.NewVariant("Mortal", 1, value.Composite{
		Names:  []string{"period", "phase"},
		Values: []value.Value{value.NewUint(period), value.NewUint(phase)},
	}), nil
}
