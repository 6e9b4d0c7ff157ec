package metadata

import (
	"fmt"

	"github.com/ashita-ai/kiroku/internal/portable"
	"github.com/ashita-ai/kiroku/internal/schema"
)

var (
	_ schema.ExtrinsicTypeInfo[uint32] = (*V14)(nil)
	_ schema.StorageTypeInfo[uint32]   = (*V14)(nil)
	_ schema.ExtrinsicTypeInfo[uint32] = (*V15)(nil)
	_ schema.StorageTypeInfo[uint32]   = (*V15)(nil)
)

// ExtrinsicInfo returns the call variant at the given indexes.
func (m *V14) ExtrinsicInfo(palletIndex, callIndex uint8) (schema.ExtrinsicInfo[uint32], error) {
	return callInfo(m.Types, m.Pallets, palletIndex, callIndex)
}

// SignatureInfo reads the address and signature types from the generic
// parameters of the extrinsic type.
func (m *V14) SignatureInfo() (schema.SignatureInfo[uint32], error) {
	var info schema.SignatureInfo[uint32]
	t, ok := m.Types.Type(m.Extrinsic.Type)
	if !ok {
		return info, &schema.Error{Kind: schema.TypeNotFound, Detail: fmt.Sprintf("extrinsic type %d", m.Extrinsic.Type)}
	}
	if info.AddressType, ok = t.Param("Address"); !ok {
		return info, &schema.Error{Kind: schema.InvalidMetadata, Detail: "extrinsic type has no Address parameter"}
	}
	if info.SignatureType, ok = t.Param("Signature"); !ok {
		return info, &schema.Error{Kind: schema.InvalidMetadata, Detail: "extrinsic type has no Signature parameter"}
	}
	info.Extensions = extensions(m.Extrinsic.SignedExtensions)
	return info, nil
}

// StorageInfo returns the key and value types of a storage entry.
func (m *V14) StorageInfo(pallet, entry string) (schema.StorageInfo[uint32], error) {
	return storageInfo(m.Types, m.Pallets, pallet, entry)
}

// StorageEntries lists every storage entry in declaration order.
func (m *V14) StorageEntries() []schema.StorageEntry { return storageEntries(m.Pallets) }

// ExtrinsicInfo returns the call variant at the given indexes.
func (m *V15) ExtrinsicInfo(palletIndex, callIndex uint8) (schema.ExtrinsicInfo[uint32], error) {
	return callInfo(m.Types, m.Pallets, palletIndex, callIndex)
}

// SignatureInfo returns the envelope types declared by the metadata.
func (m *V15) SignatureInfo() (schema.SignatureInfo[uint32], error) {
	return schema.SignatureInfo[uint32]{
		AddressType:   m.Extrinsic.AddressType,
		SignatureType: m.Extrinsic.SignatureType,
		Extensions:    extensions(m.Extrinsic.SignedExtensions),
	}, nil
}

// StorageInfo returns the key and value types of a storage entry.
func (m *V15) StorageInfo(pallet, entry string) (schema.StorageInfo[uint32], error) {
	return storageInfo(m.Types, m.Pallets, pallet, entry)
}

// StorageEntries lists every storage entry in declaration order.
func (m *V15) StorageEntries() []schema.StorageEntry { return storageEntries(m.Pallets) }

func callInfo(types *portable.Registry, pallets []Pallet, palletIndex, callIndex uint8) (schema.ExtrinsicInfo[uint32], error) {
	var info schema.ExtrinsicInfo[uint32]
	var p *Pallet
	for i := range pallets {
		if pallets[i].Index == palletIndex {
			p = &pallets[i]
			break
		}
	}
	if p == nil {
		return info, &schema.Error{Kind: schema.PalletNotFound, Detail: fmt.Sprintf("index %d", palletIndex)}
	}
	if p.Calls == nil {
		return info, &schema.Error{Kind: schema.NoCalls, Pallet: p.Name}
	}
	t, ok := types.Type(*p.Calls)
	if !ok {
		return info, &schema.Error{Kind: schema.TypeNotFound, Pallet: p.Name, Detail: fmt.Sprintf("calls type %d", *p.Calls)}
	}
	def, ok := t.Def.(portable.VariantDef)
	if !ok {
		return info, &schema.Error{Kind: schema.InvalidMetadata, Pallet: p.Name, Detail: "calls type is not a variant"}
	}
	for _, v := range def.Variants {
		if v.Index != callIndex {
			continue
		}
		info.PalletName = p.Name
		info.CallName = v.Name
		for _, f := range v.Fields {
			info.Args = append(info.Args, schema.Arg[uint32]{Name: f.Name, Type: f.Type})
		}
		return info, nil
	}
	return info, &schema.Error{Kind: schema.CallNotFound, Pallet: p.Name, Detail: fmt.Sprintf("index %d", callIndex)}
}

func extensions(exts []SignedExtension) []schema.Extension[uint32] {
	out := make([]schema.Extension[uint32], 0, len(exts))
	for _, e := range exts {
		out = append(out, schema.Extension[uint32]{Name: e.Identifier, Type: e.Type})
	}
	return out
}

func storageInfo(types *portable.Registry, pallets []Pallet, pallet, entry string) (schema.StorageInfo[uint32], error) {
	var info schema.StorageInfo[uint32]
	var p *Pallet
	for i := range pallets {
		if pallets[i].Name == pallet && pallets[i].Storage != nil {
			p = &pallets[i]
			break
		}
	}
	if p == nil {
		return info, &schema.Error{Kind: schema.StorageNotFound, Pallet: pallet, Item: entry}
	}
	var e *PalletStorageEntry
	for i := range p.Storage.Entries {
		if p.Storage.Entries[i].Name == entry {
			e = &p.Storage.Entries[i]
			break
		}
	}
	if e == nil {
		return info, &schema.Error{Kind: schema.StorageNotFound, Pallet: pallet, Item: entry}
	}

	info.Prefix = p.Storage.Prefix
	info.Value = e.Value
	info.Default = e.Default
	if e.Key == nil {
		return info, nil
	}

	keyType, ok := types.Type(*e.Key)
	if !ok {
		return info, &schema.Error{Kind: schema.TypeNotFound, Pallet: pallet, Item: entry, Detail: fmt.Sprintf("key type %d", *e.Key)}
	}
	// A tuple key is one key per element; anything else is a single key.
	if tuple, ok := keyType.Def.(portable.TupleDef); ok {
		keys, err := schema.PairHashers(pallet, entry, e.Hashers, tuple.Elems)
		if err != nil {
			return info, err
		}
		info.Keys = keys
		return info, nil
	}
	if len(e.Hashers) != 1 {
		return info, &schema.Error{
			Kind:   schema.HasherMismatch,
			Pallet: pallet,
			Item:   entry,
			Detail: fmt.Sprintf("%d hashers for 1 key", len(e.Hashers)),
		}
	}
	info.Keys = []schema.StorageKey[uint32]{{Hasher: e.Hashers[0], Type: *e.Key}}
	return info, nil
}

func storageEntries(pallets []Pallet) []schema.StorageEntry {
	var out []schema.StorageEntry
	for _, p := range pallets {
		if p.Storage == nil {
			continue
		}
		for _, e := range p.Storage.Entries {
			out = append(out, schema.StorageEntry{Pallet: p.Name, Entry: e.Name})
		}
	}
	return out
}
