package metadata

import (
	"fmt"

	"github.com/ashita-ai/kiroku/internal/historic"
	"github.com/ashita-ai/kiroku/internal/schema"
)

// Type names for the signed envelope of metadata that predates explicit
// extrinsic descriptions. The chain types document defines them.
const (
	HardcodedAddress    = "hardcoded::ExtrinsicAddress"
	HardcodedSignature  = "hardcoded::ExtrinsicSignature"
	HardcodedExtensions = "hardcoded::ExtrinsicSignedExtensions"
)

var (
	_ schema.ExtrinsicTypeInfo[historic.LookupName] = (*Legacy)(nil)
	_ schema.StorageTypeInfo[historic.LookupName]   = (*Legacy)(nil)
)

// callModule finds the module a pallet index refers to. Before V12 the
// index is the position among modules that declare calls; from V12 it is
// the module's declared index.
func (m *Legacy) callModule(palletIndex uint8) (*Module, error) {
	if m.MetadataVersion < 12 {
		pos := 0
		for i := range m.Modules {
			if !m.Modules[i].HasCalls {
				continue
			}
			if pos == int(palletIndex) {
				return &m.Modules[i], nil
			}
			pos++
		}
		return nil, &schema.Error{Kind: schema.PalletNotFound, Detail: fmt.Sprintf("index %d", palletIndex)}
	}
	for i := range m.Modules {
		if m.Modules[i].Index != palletIndex {
			continue
		}
		if !m.Modules[i].HasCalls {
			return nil, &schema.Error{Kind: schema.NoCalls, Pallet: m.Modules[i].Name}
		}
		return &m.Modules[i], nil
	}
	return nil, &schema.Error{Kind: schema.PalletNotFound, Detail: fmt.Sprintf("index %d", palletIndex)}
}

// ExtrinsicInfo returns the call at the given indexes with its argument
// types scoped to the owning pallet.
func (m *Legacy) ExtrinsicInfo(palletIndex, callIndex uint8) (schema.ExtrinsicInfo[historic.LookupName], error) {
	var info schema.ExtrinsicInfo[historic.LookupName]
	mod, err := m.callModule(palletIndex)
	if err != nil {
		return info, err
	}
	if int(callIndex) >= len(mod.Calls) {
		return info, &schema.Error{Kind: schema.CallNotFound, Pallet: mod.Name, Detail: fmt.Sprintf("index %d", callIndex)}
	}
	call := mod.Calls[callIndex]
	info.PalletName = mod.Name
	info.CallName = call.Name
	for _, a := range call.Args {
		id, err := parseInPallet(a.Type, mod.Name)
		if err != nil {
			return info, &schema.Error{Kind: schema.InvalidTypeName, Pallet: mod.Name, Item: call.Name, Detail: a.Name, Err: err}
		}
		info.Args = append(info.Args, schema.Arg[historic.LookupName]{Name: a.Name, Type: id})
	}
	return info, nil
}

// SignatureInfo returns the signed envelope types. V8 to V10 carry no
// extrinsic description and every signed extension is covered by one
// hardcoded type; V11 to V13 list the extensions by name.
func (m *Legacy) SignatureInfo() (schema.SignatureInfo[historic.LookupName], error) {
	info := schema.SignatureInfo[historic.LookupName]{
		AddressType:   historic.MustParseLookupName(HardcodedAddress),
		SignatureType: historic.MustParseLookupName(HardcodedSignature),
	}
	if m.MetadataVersion < 11 || m.Extrinsic == nil {
		info.Extensions = []schema.Extension[historic.LookupName]{{
			Name: "ExtrinsicSignedExtensions",
			Type: historic.MustParseLookupName(HardcodedExtensions),
		}}
		return info, nil
	}
	for _, name := range m.Extrinsic.SignedExtensions {
		id, err := historic.ParseLookupName(name)
		if err != nil {
			return info, &schema.Error{Kind: schema.InvalidTypeName, Item: name, Err: err}
		}
		info.Extensions = append(info.Extensions, schema.Extension[historic.LookupName]{Name: name, Type: id})
	}
	return info, nil
}

// StorageInfo returns the key and value types of a storage entry.
func (m *Legacy) StorageInfo(pallet, entry string) (schema.StorageInfo[historic.LookupName], error) {
	var info schema.StorageInfo[historic.LookupName]
	var (
		mod *Module
		e   *StorageEntry
	)
	for i := range m.Modules {
		if m.Modules[i].Name == pallet && m.Modules[i].Storage != nil {
			mod = &m.Modules[i]
			break
		}
	}
	if mod == nil {
		return info, &schema.Error{Kind: schema.StorageNotFound, Pallet: pallet, Item: entry}
	}
	for i := range mod.Storage.Entries {
		if mod.Storage.Entries[i].Name == entry {
			e = &mod.Storage.Entries[i]
			break
		}
	}
	if e == nil {
		return info, &schema.Error{Kind: schema.StorageNotFound, Pallet: pallet, Item: entry}
	}

	invalid := func(err error) error {
		return &schema.Error{Kind: schema.InvalidTypeName, Pallet: pallet, Item: entry, Err: err}
	}
	info.Prefix = mod.Storage.Prefix
	info.Default = e.Default
	value, err := parseInPallet(e.Value, pallet)
	if err != nil {
		return info, invalid(err)
	}
	info.Value = value

	keys := make([]historic.LookupName, 0, len(e.Keys))
	for _, k := range e.Keys {
		id, err := parseInPallet(k, pallet)
		if err != nil {
			return info, invalid(err)
		}
		keys = append(keys, id)
	}
	if len(keys) == 0 {
		return info, nil
	}
	if info.Keys, err = schema.PairHashers(pallet, entry, e.Hashers, keys); err != nil {
		return info, err
	}
	return info, nil
}

// StorageEntries lists every storage entry in declaration order.
func (m *Legacy) StorageEntries() []schema.StorageEntry {
	var out []schema.StorageEntry
	for _, mod := range m.Modules {
		if mod.Storage == nil {
			continue
		}
		for _, e := range mod.Storage.Entries {
			out = append(out, schema.StorageEntry{Pallet: mod.Name, Entry: e.Name})
		}
	}
	return out
}

func parseInPallet(s, pallet string) (historic.LookupName, error) {
	id, err := historic.ParseLookupName(s)
	if err != nil {
		return id, err
	}
	return id.InPallet(pallet), nil
}
