// Package metadatatest encodes metadata documents for tests. It is the
// inverse of metadata.Decode for the fields the decoder keeps.
package metadatatest

import (
	"github.com/ashita-ai/kiroku/internal/metadata"
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
)

// Encode returns the prefixed encoding of md.
func Encode(md metadata.Metadata) []byte {
	e := new(scale.Encoder)
	e.Raw(metadata.Magic).U8(uint8(md.Version()))
	switch m := md.(type) {
	case *metadata.Legacy:
		encodeLegacy(e, m)
	case *metadata.V14:
		encodeV14(e, m)
	case *metadata.V15:
		encodeV15(e, m)
	}
	return e.Bytes()
}

func hasher(e *scale.Encoder, h schema.Hasher, version int) {
	if version == 8 {
		v8 := map[schema.Hasher]uint8{
			schema.Blake2_128: 0, schema.Blake2_256: 1, schema.Twox128: 2, schema.Twox256: 3, schema.Twox64Concat: 4,
		}
		e.U8(v8[h])
		return
	}
	e.U8(uint8(h))
}

func encodeLegacy(e *scale.Encoder, m *metadata.Legacy) {
	v := m.MetadataVersion
	e.Compact(uint64(len(m.Modules)))
	for _, mod := range m.Modules {
		e.String(mod.Name)
		if mod.Storage == nil {
			e.None()
		} else {
			e.Some().String(mod.Storage.Prefix).Compact(uint64(len(mod.Storage.Entries)))
			for _, s := range mod.Storage.Entries {
				encodeLegacyEntry(e, s, v)
			}
		}
		if !mod.HasCalls {
			e.None()
		} else {
			e.Some().Compact(uint64(len(mod.Calls)))
			for _, c := range mod.Calls {
				e.String(c.Name).Compact(uint64(len(c.Args)))
				for _, a := range c.Args {
					e.String(a.Name).String(a.Type)
				}
				e.Strings(c.Docs...)
			}
		}
		if !mod.HasEvents {
			e.None()
		} else {
			e.Some().Compact(uint64(len(mod.Events)))
			for _, ev := range mod.Events {
				e.String(ev.Name).Strings(ev.Args...).Strings(ev.Docs...)
			}
		}
		e.Compact(uint64(len(mod.Constants)))
		for _, k := range mod.Constants {
			e.String(k.Name).String(k.Type).ByteVec(k.Value).Strings(k.Docs...)
		}
		e.Compact(uint64(len(mod.Errors)))
		for _, er := range mod.Errors {
			e.String(er.Name).Strings(er.Docs...)
		}
		if v >= 12 {
			e.U8(mod.Index)
		}
	}
	if v >= 11 {
		ext := m.Extrinsic
		if ext == nil {
			ext = &metadata.Extrinsic{Version: 4}
		}
		e.U8(ext.Version).Strings(ext.SignedExtensions...)
	}
}

func encodeLegacyEntry(e *scale.Encoder, s metadata.StorageEntry, v int) {
	e.String(s.Name).U8(uint8(s.Modifier)).U8(uint8(s.Kind))
	switch s.Kind {
	case metadata.Plain:
		e.String(s.Value)
	case metadata.Map:
		hasher(e, s.Hashers[0], v)
		e.String(s.Keys[0]).String(s.Value).Bool(false)
	case metadata.DoubleMap:
		hasher(e, s.Hashers[0], v)
		e.String(s.Keys[0]).String(s.Keys[1]).String(s.Value)
		hasher(e, s.Hashers[1], v)
	case metadata.NMap:
		e.Strings(s.Keys...).Compact(uint64(len(s.Hashers)))
		for _, h := range s.Hashers {
			hasher(e, h, v)
		}
		e.String(s.Value)
	}
	e.ByteVec(s.Default).Strings(s.Docs...)
}

func encodePallets(e *scale.Encoder, pallets []metadata.Pallet, withDocs bool) {
	optional := func(id *uint32) {
		if id == nil {
			e.None()
		} else {
			e.Some().Compact(uint64(*id))
		}
	}
	e.Compact(uint64(len(pallets)))
	for _, p := range pallets {
		e.String(p.Name)
		if p.Storage == nil {
			e.None()
		} else {
			e.Some().String(p.Storage.Prefix).Compact(uint64(len(p.Storage.Entries)))
			for _, s := range p.Storage.Entries {
				e.String(s.Name).U8(uint8(s.Modifier))
				if s.Key == nil {
					e.U8(0).Compact(uint64(s.Value))
				} else {
					e.U8(1).Compact(uint64(len(s.Hashers)))
					for _, h := range s.Hashers {
						hasher(e, h, 14)
					}
					e.Compact(uint64(*s.Key)).Compact(uint64(s.Value))
				}
				e.ByteVec(s.Default).Strings(s.Docs...)
			}
		}
		optional(p.Calls)
		optional(p.Event)
		e.Compact(uint64(len(p.Constants)))
		for _, k := range p.Constants {
			e.String(k.Name).Compact(uint64(k.Type)).ByteVec(k.Value).Strings(k.Docs...)
		}
		optional(p.Error)
		e.U8(p.Index)
		if withDocs {
			e.Strings(p.Docs...)
		}
	}
}

func encodeSignedExtensions(e *scale.Encoder, exts []metadata.SignedExtension) {
	e.Compact(uint64(len(exts)))
	for _, s := range exts {
		e.String(s.Identifier).Compact(uint64(s.Type)).Compact(uint64(s.AdditionalSigned))
	}
}

func encodeV14(e *scale.Encoder, m *metadata.V14) {
	m.Types.EncodeTo(e)
	encodePallets(e, m.Pallets, false)
	e.Compact(uint64(m.Extrinsic.Type)).U8(m.Extrinsic.Version)
	encodeSignedExtensions(e, m.Extrinsic.SignedExtensions)
	e.Compact(uint64(m.RuntimeType))
}

func encodeV15(e *scale.Encoder, m *metadata.V15) {
	m.Types.EncodeTo(e)
	encodePallets(e, m.Pallets, true)
	x := m.Extrinsic
	e.U8(x.Version).
		Compact(uint64(x.AddressType)).
		Compact(uint64(x.CallType)).
		Compact(uint64(x.SignatureType)).
		Compact(uint64(x.ExtraType))
	encodeSignedExtensions(e, x.SignedExtensions)
	e.Compact(uint64(m.RuntimeType))
	e.Compact(uint64(len(m.APIs)))
	for _, api := range m.APIs {
		e.String(api.Name).Compact(uint64(len(api.Methods)))
		for _, meth := range api.Methods {
			e.String(meth.Name).Compact(uint64(len(meth.Inputs)))
			for _, in := range meth.Inputs {
				e.String(in.Name).Compact(uint64(in.Type))
			}
			e.Compact(uint64(meth.Output)).Strings(meth.Docs...)
		}
		e.Strings(api.Docs...)
	}
	e.Compact(uint64(m.OuterEnums.Call)).Compact(uint64(m.OuterEnums.Event)).Compact(uint64(m.OuterEnums.Error))
	e.Compact(uint64(len(m.Custom)))
	for _, c := range m.Custom {
		e.String(c.Name).Compact(uint64(c.Type)).ByteVec(c.Value)
	}
}
