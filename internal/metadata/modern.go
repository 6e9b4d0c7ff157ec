package metadata

import (
	"fmt"

	"github.com/ashita-ai/kiroku/internal/portable"
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
)

// V14 is metadata V14, the first version with a portable type table.
type V14 struct {
	Types       *portable.Registry `json:"types"`
	Pallets     []Pallet           `json:"pallets"`
	Extrinsic   ExtrinsicV14       `json:"extrinsic"`
	RuntimeType uint32             `json:"runtimeType"`
}

// Version returns 14.
func (*V14) Version() int { return 14 }

// V15 extends V14 with pallet docs, explicit envelope types, runtime APIs,
// outer enums and custom values.
type V15 struct {
	Types       *portable.Registry `json:"types"`
	Pallets     []Pallet           `json:"pallets"`
	Extrinsic   ExtrinsicV15       `json:"extrinsic"`
	RuntimeType uint32             `json:"runtimeType"`
	APIs        []RuntimeAPI       `json:"apis"`
	OuterEnums  OuterEnums         `json:"outerEnums"`
	Custom      []CustomValue      `json:"custom,omitempty"`
}

// Version returns 15.
func (*V15) Version() int { return 15 }

// Pallet is a V14 or V15 pallet. Optional type ids are nil when the pallet
// declares no calls, events or errors.
type Pallet struct {
	Name      string           `json:"name"`
	Storage   *PalletStorage   `json:"storage,omitempty"`
	Calls     *uint32          `json:"calls,omitempty"`
	Event     *uint32          `json:"event,omitempty"`
	Constants []PalletConstant `json:"constants,omitempty"`
	Error     *uint32          `json:"error,omitempty"`
	Index     uint8            `json:"index"`
	Docs      []string         `json:"docs,omitempty"`
}

type PalletStorage struct {
	Prefix  string               `json:"prefix"`
	Entries []PalletStorageEntry `json:"entries"`
}

// PalletStorageEntry is a storage entry. Key is nil for plain entries; for
// maps it is a single type, or a tuple when there are several hashers.
type PalletStorageEntry struct {
	Name     string          `json:"name"`
	Modifier Modifier        `json:"modifier"`
	Hashers  []schema.Hasher `json:"hashers,omitempty"`
	Key      *uint32         `json:"key,omitempty"`
	Value    uint32          `json:"value"`
	Default  []byte          `json:"default"`
	Docs     []string        `json:"docs,omitempty"`
}

type PalletConstant struct {
	Name  string   `json:"name"`
	Type  uint32   `json:"type"`
	Value []byte   `json:"value"`
	Docs  []string `json:"docs,omitempty"`
}

type ExtrinsicV14 struct {
	Type             uint32            `json:"type"`
	Version          uint8             `json:"version"`
	SignedExtensions []SignedExtension `json:"signedExtensions"`
}

type ExtrinsicV15 struct {
	Version          uint8             `json:"version"`
	AddressType      uint32            `json:"addressType"`
	CallType         uint32            `json:"callType"`
	SignatureType    uint32            `json:"signatureType"`
	ExtraType        uint32            `json:"extraType"`
	SignedExtensions []SignedExtension `json:"signedExtensions"`
}

type SignedExtension struct {
	Identifier       string `json:"identifier"`
	Type             uint32 `json:"type"`
	AdditionalSigned uint32 `json:"additionalSigned"`
}

type RuntimeAPI struct {
	Name    string             `json:"name"`
	Methods []RuntimeAPIMethod `json:"methods"`
	Docs    []string           `json:"docs,omitempty"`
}

type RuntimeAPIMethod struct {
	Name   string            `json:"name"`
	Inputs []RuntimeAPIParam `json:"inputs,omitempty"`
	Output uint32            `json:"output"`
	Docs   []string          `json:"docs,omitempty"`
}

type RuntimeAPIParam struct {
	Name string `json:"name"`
	Type uint32 `json:"type"`
}

type OuterEnums struct {
	Call  uint32 `json:"call"`
	Event uint32 `json:"event"`
	Error uint32 `json:"error"`
}

// CustomValue is one entry of the V15 custom map, kept in encoded order.
type CustomValue struct {
	Name  string `json:"name"`
	Type  uint32 `json:"type"`
	Value []byte `json:"value"`
}

func decodeV14(c *scale.Cursor) (*V14, error) {
	types, err := portable.DecodeRegistry(c)
	if err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}
	md := &V14{Types: types}
	if md.Pallets, err = decodePallets(c, false); err != nil {
		return nil, err
	}
	if md.Extrinsic.Type, err = c.ReadCompactU32(); err != nil {
		return nil, fmt.Errorf("extrinsic: %w", err)
	}
	if md.Extrinsic.Version, err = c.ReadU8(); err != nil {
		return nil, fmt.Errorf("extrinsic: %w", err)
	}
	if md.Extrinsic.SignedExtensions, err = decodeSignedExtensions(c); err != nil {
		return nil, fmt.Errorf("extrinsic: %w", err)
	}
	if md.RuntimeType, err = c.ReadCompactU32(); err != nil {
		return nil, fmt.Errorf("runtime type: %w", err)
	}
	return md, nil
}

func decodeV15(c *scale.Cursor) (*V15, error) {
	types, err := portable.DecodeRegistry(c)
	if err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}
	md := &V15{Types: types}
	if md.Pallets, err = decodePallets(c, true); err != nil {
		return nil, err
	}

	ext := &md.Extrinsic
	if ext.Version, err = c.ReadU8(); err != nil {
		return nil, fmt.Errorf("extrinsic: %w", err)
	}
	for _, dst := range []*uint32{&ext.AddressType, &ext.CallType, &ext.SignatureType, &ext.ExtraType} {
		if *dst, err = c.ReadCompactU32(); err != nil {
			return nil, fmt.Errorf("extrinsic: %w", err)
		}
	}
	if ext.SignedExtensions, err = decodeSignedExtensions(c); err != nil {
		return nil, fmt.Errorf("extrinsic: %w", err)
	}
	if md.RuntimeType, err = c.ReadCompactU32(); err != nil {
		return nil, fmt.Errorf("runtime type: %w", err)
	}
	if md.APIs, err = decodeAPIs(c); err != nil {
		return nil, fmt.Errorf("apis: %w", err)
	}
	for _, dst := range []*uint32{&md.OuterEnums.Call, &md.OuterEnums.Event, &md.OuterEnums.Error} {
		if *dst, err = c.ReadCompactU32(); err != nil {
			return nil, fmt.Errorf("outer enums: %w", err)
		}
	}
	if md.Custom, err = decodeCustom(c); err != nil {
		return nil, fmt.Errorf("custom: %w", err)
	}
	return md, nil
}

func decodePallets(c *scale.Cursor, withDocs bool) ([]Pallet, error) {
	n, err := c.ReadLen()
	if err != nil {
		return nil, err
	}
	pallets := make([]Pallet, 0, min(n, c.Remaining()))
	for i := range n {
		p, err := decodePallet(c, withDocs)
		if err != nil {
			return nil, fmt.Errorf("pallet %d: %w", i, err)
		}
		pallets = append(pallets, p)
	}
	return pallets, nil
}

func decodePallet(c *scale.Cursor, withDocs bool) (Pallet, error) {
	var p Pallet
	var err error
	if p.Name, err = c.ReadString(); err != nil {
		return p, err
	}
	some, err := c.ReadOption()
	if err != nil {
		return p, err
	}
	if some {
		if p.Storage, err = decodePalletStorage(c); err != nil {
			return p, fmt.Errorf("%s storage: %w", p.Name, err)
		}
	}
	if p.Calls, err = readOptionalType(c); err != nil {
		return p, err
	}
	if p.Event, err = readOptionalType(c); err != nil {
		return p, err
	}
	if p.Constants, err = decodePalletConstants(c); err != nil {
		return p, fmt.Errorf("%s constants: %w", p.Name, err)
	}
	if p.Error, err = readOptionalType(c); err != nil {
		return p, err
	}
	if p.Index, err = c.ReadU8(); err != nil {
		return p, err
	}
	if withDocs {
		if p.Docs, err = c.ReadStrings(); err != nil {
			return p, err
		}
	}
	return p, nil
}

func readOptionalType(c *scale.Cursor) (*uint32, error) {
	some, err := c.ReadOption()
	if err != nil || !some {
		return nil, err
	}
	id, err := c.ReadCompactU32()
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func decodePalletStorage(c *scale.Cursor) (*PalletStorage, error) {
	prefix, err := c.ReadString()
	if err != nil {
		return nil, err
	}
	n, err := c.ReadLen()
	if err != nil {
		return nil, err
	}
	s := &PalletStorage{Prefix: prefix}
	for range n {
		var e PalletStorageEntry
		if e.Name, err = c.ReadString(); err != nil {
			return nil, err
		}
		if e.Modifier, err = decodeModifier(c); err != nil {
			return nil, err
		}
		kind, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		switch kind {
		case 0:
			if e.Value, err = c.ReadCompactU32(); err != nil {
				return nil, err
			}
		case 1:
			if e.Hashers, err = decodeHashers(c, 14); err != nil {
				return nil, err
			}
			key, err := c.ReadCompactU32()
			if err != nil {
				return nil, err
			}
			e.Key = &key
			if e.Value, err = c.ReadCompactU32(); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("entry %s: unknown storage kind %d", e.Name, kind)
		}
		if e.Default, err = c.ReadByteVec(); err != nil {
			return nil, err
		}
		if e.Docs, err = c.ReadStrings(); err != nil {
			return nil, err
		}
		s.Entries = append(s.Entries, e)
	}
	return s, nil
}

func decodePalletConstants(c *scale.Cursor) ([]PalletConstant, error) {
	n, err := c.ReadLen()
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]PalletConstant, 0, min(n, c.Remaining()))
	for range n {
		var k PalletConstant
		if k.Name, err = c.ReadString(); err != nil {
			return nil, err
		}
		if k.Type, err = c.ReadCompactU32(); err != nil {
			return nil, err
		}
		if k.Value, err = c.ReadByteVec(); err != nil {
			return nil, err
		}
		if k.Docs, err = c.ReadStrings(); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func decodeSignedExtensions(c *scale.Cursor) ([]SignedExtension, error) {
	n, err := c.ReadLen()
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]SignedExtension, 0, min(n, c.Remaining()))
	for range n {
		var s SignedExtension
		if s.Identifier, err = c.ReadString(); err != nil {
			return nil, err
		}
		if s.Type, err = c.ReadCompactU32(); err != nil {
			return nil, err
		}
		if s.AdditionalSigned, err = c.ReadCompactU32(); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func decodeAPIs(c *scale.Cursor) ([]RuntimeAPI, error) {
	n, err := c.ReadLen()
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]RuntimeAPI, 0, min(n, c.Remaining()))
	for range n {
		var api RuntimeAPI
		if api.Name, err = c.ReadString(); err != nil {
			return nil, err
		}
		nm, err := c.ReadLen()
		if err != nil {
			return nil, err
		}
		for range nm {
			var m RuntimeAPIMethod
			if m.Name, err = c.ReadString(); err != nil {
				return nil, err
			}
			ni, err := c.ReadLen()
			if err != nil {
				return nil, err
			}
			for range ni {
				var p RuntimeAPIParam
				if p.Name, err = c.ReadString(); err != nil {
					return nil, err
				}
				if p.Type, err = c.ReadCompactU32(); err != nil {
					return nil, err
				}
				m.Inputs = append(m.Inputs, p)
			}
			if m.Output, err = c.ReadCompactU32(); err != nil {
				return nil, err
			}
			if m.Docs, err = c.ReadStrings(); err != nil {
				return nil, err
			}
			api.Methods = append(api.Methods, m)
		}
		if api.Docs, err = c.ReadStrings(); err != nil {
			return nil, err
		}
		out = append(out, api)
	}
	return out, nil
}

func decodeCustom(c *scale.Cursor) ([]CustomValue, error) {
	n, err := c.ReadLen()
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]CustomValue, 0, min(n, c.Remaining()))
	for range n {
		var v CustomValue
		if v.Name, err = c.ReadString(); err != nil {
			return nil, err
		}
		if v.Type, err = c.ReadCompactU32(); err != nil {
			return nil, err
		}
		if v.Value, err = c.ReadByteVec(); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
