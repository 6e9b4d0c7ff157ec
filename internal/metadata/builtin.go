package metadata

import (
	"fmt"

	"github.com/ashita-ai/kiroku/internal/historic"
)

// BuiltinTypes synthesizes the outer call and event enums of legacy
// metadata, which the chain types document cannot know: one variant type
// per module ("builtin::module::call::<Module>") and a top level
// "builtin::Call" keyed by pallet index, and likewise for events. Prepend
// the result to the chain types so nested calls decode. V14 and later
// describe these types themselves and get an empty registry.
func BuiltinTypes(md Metadata) (*historic.Registry, error) {
	r := historic.NewRegistry()
	legacy, ok := md.(*Legacy)
	if !ok {
		return r, nil
	}
	if err := legacy.insertCalls(r); err != nil {
		return nil, err
	}
	if err := legacy.insertEvents(r); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *Legacy) insertCalls(r *historic.Registry) error {
	var outer historic.Enum
	pos := 0
	for _, mod := range m.Modules {
		if !mod.HasCalls {
			continue
		}
		index := uint8(pos)
		if m.MetadataVersion >= 12 {
			index = mod.Index
		}
		pos++

		var inner historic.Enum
		for i, call := range mod.Calls {
			v := historic.Variant{Index: uint8(i), Name: call.Name}
			for _, a := range call.Args {
				id, err := parseInPallet(a.Type, mod.Name)
				if err != nil {
					return fmt.Errorf("metadata: builtin call %s.%s: %w", mod.Name, call.Name, err)
				}
				v.Fields = append(v.Fields, historic.Field{Name: a.Name, Type: id})
			}
			inner.Variants = append(inner.Variants, v)
		}
		name := "builtin::module::call::" + mod.Name
		if err := r.Insert(name, inner); err != nil {
			return err
		}
		outer.Variants = append(outer.Variants, historic.Variant{
			Index:  index,
			Name:   mod.Name,
			Fields: []historic.Field{{Type: historic.MustParseLookupName(name)}},
		})
	}
	return r.Insert("builtin::Call", outer)
}

func (m *Legacy) insertEvents(r *historic.Registry) error {
	var outer historic.Enum
	pos := 0
	for _, mod := range m.Modules {
		if !mod.HasEvents {
			continue
		}
		index := uint8(pos)
		if m.MetadataVersion >= 12 {
			index = mod.Index
		}
		pos++

		var inner historic.Enum
		for i, ev := range mod.Events {
			v := historic.Variant{Index: uint8(i), Name: ev.Name}
			for _, a := range ev.Args {
				id, err := parseInPallet(a, mod.Name)
				if err != nil {
					return fmt.Errorf("metadata: builtin event %s.%s: %w", mod.Name, ev.Name, err)
				}
				v.Fields = append(v.Fields, historic.Field{Type: id})
			}
			inner.Variants = append(inner.Variants, v)
		}
		name := "builtin::module::event::" + mod.Name
		if err := r.Insert(name, inner); err != nil {
			return err
		}
		outer.Variants = append(outer.Variants, historic.Variant{
			Index:  index,
			Name:   mod.Name,
			Fields: []historic.Field{{Type: historic.MustParseLookupName(name)}},
		})
	}
	return r.Insert("builtin::Event", outer)
}
