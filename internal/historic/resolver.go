package historic

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
	"github.com/ashita-ai/kiroku/internal/value"
)

// maxDepth bounds alias and nesting chains so a self-referential definition
// fails instead of overflowing the stack.
const maxDepth = 256

var errTooDeep = errors.New("historic: type nesting too deep")

// Resolver decodes bytes using the legacy type definitions in a RegistrySet,
// falling back to built-in Rust and SCALE types.
type Resolver struct {
	types *RegistrySet
}

// NewResolver returns a resolver over types.
func NewResolver(types *RegistrySet) *Resolver {
	return &Resolver{types: types}
}

// Decode decodes one value of type id at the cursor.
func (r *Resolver) Decode(c *scale.Cursor, id LookupName) (value.Value, error) {
	return r.decode(c, id, 0)
}

func (r *Resolver) decode(c *scale.Cursor, id LookupName, depth int) (value.Value, error) {
	v, err := r.decodeInner(c, id, depth)
	if err != nil {
		return value.Value{}, err
	}
	return v.WithContext(id.String()), nil
}

func (r *Resolver) decodeInner(c *scale.Cursor, id LookupName, depth int) (value.Value, error) {
	if depth > maxDepth {
		return value.Value{}, fmt.Errorf("%w: %s", errTooDeep, id)
	}
	switch id.kind {
	case kindArray:
		return r.decodeSeq(c, id.params[0].scoped(id.pallet), int(id.length), depth)
	case kindTuple:
		return r.decodeTuple(c, id.params, id.pallet, nil, depth)
	}

	if shape, bindings, ok := r.types.Lookup(id); ok {
		return r.decodeShape(c, shape, bindings, id.pallet, depth)
	}
	if v, ok, err := r.decodeBuiltin(c, id, depth); ok {
		return v, err
	}
	return value.Value{}, &schema.Error{Kind: schema.TypeNotFound, Pallet: id.pallet, Detail: id.String()}
}

func (r *Resolver) decodeShape(c *scale.Cursor, shape Shape, bindings map[string]LookupName, pallet string, depth int) (value.Value, error) {
	child := func(n LookupName) LookupName {
		return n.substitute(bindings).scoped(pallet)
	}
	switch s := shape.(type) {
	case Alias:
		return r.decodeInner(c, child(s.Target), depth+1)
	case Tuple:
		return r.decodeTuple(c, s.Elems, pallet, bindings, depth)
	case Struct:
		comp, err := r.decodeFields(c, s.Fields, child, depth)
		if err != nil {
			return value.Value{}, err
		}
		return value.Value{Def: comp}, nil
	case Enum:
		idx, err := c.ReadU8()
		if err != nil {
			return value.Value{}, err
		}
		v, ok := s.variant(idx)
		if !ok {
			return value.Value{}, fmt.Errorf("historic: no variant with index %d", idx)
		}
		comp, err := r.decodeFields(c, v.Fields, child, depth)
		if err != nil {
			return value.Value{}, fmt.Errorf("historic: variant %s: %w", v.Name, err)
		}
		return value.NewVariant(v.Name, v.Index, comp), nil
	case BitFlags:
		n, err := c.ReadUint(s.Bits / 8)
		if err != nil {
			return value.Value{}, err
		}
		var set []value.Value
		for _, f := range s.Flags {
			mask := new(big.Int).SetUint64(f.Mask)
			if new(big.Int).And(n, mask).Cmp(mask) == 0 && f.Mask != 0 {
				set = append(set, value.NewStr(f.Name))
			}
		}
		return value.NewUnnamed(set...), nil
	default:
		return value.Value{}, fmt.Errorf("historic: unknown shape %T", shape)
	}
}

func (r *Resolver) decodeFields(c *scale.Cursor, fields []Field, child func(LookupName) LookupName, depth int) (value.Composite, error) {
	comp := value.Composite{Values: make([]value.Value, 0, len(fields))}
	named := len(fields) > 0 && fields[0].Name != ""
	for _, f := range fields {
		v, err := r.decode(c, child(f.Type), depth+1)
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

func (r *Resolver) decodeTuple(c *scale.Cursor, elems []LookupName, pallet string, bindings map[string]LookupName, depth int) (value.Value, error) {
	vals := make([]value.Value, 0, len(elems))
	for _, e := range elems {
		v, err := r.decode(c, e.substitute(bindings).scoped(pallet), depth+1)
		if err != nil {
			return value.Value{}, err
		}
		vals = append(vals, v)
	}
	return value.NewUnnamed(vals...), nil
}

func (r *Resolver) decodeSeq(c *scale.Cursor, elem LookupName, n, depth int) (value.Value, error) {
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
