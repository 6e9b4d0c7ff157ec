// Package schema defines the contracts shared by every runtime metadata
// version: how to find the types of a call, of the signature envelope and of
// a storage entry, and how to turn bytes at a cursor into a value given one
// of those types.
//
// Type identifiers are a type parameter. Legacy metadata (V8 to V13) names
// types symbolically and resolves them through a historic type registry;
// V14 and later index a portable type table by number. The two
// representations never mix within one resolution call.
package schema

import (
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/value"
)

// TypeResolver decodes bytes at a cursor into a value of the given type.
type TypeResolver[T any] interface {
	Decode(c *scale.Cursor, id T) (value.Value, error)
}

// ExtrinsicTypeInfo locates the types needed to decode an extrinsic.
type ExtrinsicTypeInfo[T any] interface {
	ExtrinsicInfo(palletIndex, callIndex uint8) (ExtrinsicInfo[T], error)
	SignatureInfo() (SignatureInfo[T], error)
}

// StorageTypeInfo locates the types needed to decode a storage entry.
type StorageTypeInfo[T any] interface {
	StorageInfo(pallet, entry string) (StorageInfo[T], error)
	// StorageEntries returns every storage entry. Each call returns a fresh slice.
	StorageEntries() []StorageEntry
}

// ExtrinsicInfo describes a single call.
type ExtrinsicInfo[T any] struct {
	PalletName string
	CallName   string
	Args       []Arg[T]
}

// Arg is one call argument.
type Arg[T any] struct {
	Name string
	Type T
}

// SignatureInfo describes the signed envelope of an extrinsic.
type SignatureInfo[T any] struct {
	AddressType   T
	SignatureType T
	Extensions    []Extension[T]
}

// Extension is one signed extension, decoded in declaration order.
type Extension[T any] struct {
	Name string
	Type T
}

// StorageInfo describes a storage entry. An entry with no keys is a plain
// value; one or more keys make it a map.
type StorageInfo[T any] struct {
	// Prefix is the storage prefix hashed into every key, usually the pallet name.
	Prefix string
	Keys   []StorageKey[T]
	Value  T
	// Default is the SCALE encoded value returned by the runtime when the
	// entry is absent.
	Default []byte
}

// IsIterable reports whether the entry is a map and must be iterated.
func (s StorageInfo[T]) IsIterable() bool { return len(s.Keys) > 0 }

// StorageKey is one component of a storage map key.
type StorageKey[T any] struct {
	Hasher Hasher
	Type   T
}

// StorageEntry names a storage entry.
type StorageEntry struct {
	Pallet string `json:"pallet"`
	Entry  string `json:"entry"`
}

// PairHashers assigns hashers to key types. A single hasher applies to every
// key; otherwise there must be exactly one hasher per key.
func PairHashers[T any](pallet, entry string, hashers []Hasher, keys []T) ([]StorageKey[T], error) {
	out := make([]StorageKey[T], len(keys))
	switch {
	case len(hashers) == 1:
		for i, k := range keys {
			out[i] = StorageKey[T]{Hasher: hashers[0], Type: k}
		}
	case len(hashers) == len(keys):
		for i, k := range keys {
			out[i] = StorageKey[T]{Hasher: hashers[i], Type: k}
		}
	default:
		return nil, &Error{
			Kind:   HasherMismatch,
			Pallet: pallet,
			Item:   entry,
			Detail: hasherCountDetail(len(hashers), len(keys)),
		}
	}
	return out, nil
}
