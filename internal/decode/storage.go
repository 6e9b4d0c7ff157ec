package decode

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ashita-ai/kiroku/internal/hashing"
	"github.com/ashita-ai/kiroku/internal/historic"
	"github.com/ashita-ai/kiroku/internal/metadata"
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
	"github.com/ashita-ai/kiroku/internal/value"
)

// PrefixLen is the length of the twox128(pallet) ++ twox128(entry) prefix
// every storage key starts with.
const PrefixLen = 32

// StorageKey is one decoded component of a storage map key. Value is set
// only for reversible hashers.
type StorageKey struct {
	Hasher schema.Hasher `json:"hasher"`
	Hash   []byte        `json:"hash,omitempty"`
	Value  *value.Value  `json:"value,omitempty"`
}

func (k StorageKey) String() string {
	if k.Value != nil {
		return k.Hasher.String() + ": " + k.Value.String()
	}
	return k.Hasher.String() + ": 0x" + hex.EncodeToString(k.Hash)
}

// FormatKeys renders key parts joined with " + ", or "plain" for none.
func FormatKeys(keys []StorageKey) string {
	if len(keys) == 0 {
		return "plain"
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.String()
	}
	return strings.Join(parts, " + ")
}

// StorageDecoder decodes the storage keys and values described by one
// metadata document. It is safe for concurrent use.
type StorageDecoder struct {
	md      metadata.Metadata
	backend storageBackend
}

type storageBackend interface {
	lookup(pallet, entry string) (entryInfo, error)
	keys(pallet, entry string, key []byte) ([]StorageKey, error)
	value(pallet, entry string, data []byte) (value.Value, error)
	entries() []schema.StorageEntry
}

// entryInfo is the part of schema.StorageInfo that does not depend on the
// type id representation.
type entryInfo struct {
	prefix   string
	keyCount int
	def      []byte
}

// NewStorageDecoder returns a decoder for md. types is required for V8 to
// V13 metadata and ignored otherwise.
func NewStorageDecoder(md metadata.Metadata, types *historic.RegistrySet) (*StorageDecoder, error) {
	d := &StorageDecoder{md: md}
	switch m := md.(type) {
	case *metadata.Legacy:
		if types == nil {
			types = historic.NewRegistrySet()
		}
		d.backend = typedStorage[historic.LookupName]{meta: m, types: historic.NewResolver(types)}
	case *metadata.V14:
		d.backend = typedStorage[uint32]{meta: m, types: m.Types}
	case *metadata.V15:
		d.backend = typedStorage[uint32]{meta: m, types: m.Types}
	default:
		return nil, &schema.Error{Kind: schema.UnsupportedMetadata, Detail: fmt.Sprintf("%T", md)}
	}
	return d, nil
}

// Metadata returns the metadata the decoder was built from.
func (d *StorageDecoder) Metadata() metadata.Metadata { return d.md }

// Entries lists every storage entry of the metadata.
func (d *StorageDecoder) Entries() []schema.StorageEntry { return d.backend.entries() }

// IsIterable reports whether the entry is a map whose keys must be listed.
func (d *StorageDecoder) IsIterable(pallet, entry string) (bool, error) {
	info, err := d.backend.lookup(pallet, entry)
	if err != nil {
		return false, err
	}
	return info.keyCount > 0, nil
}

// Prefix returns the storage key prefix of an entry.
func (d *StorageDecoder) Prefix(pallet, entry string) ([]byte, error) {
	info, err := d.backend.lookup(pallet, entry)
	if err != nil {
		return nil, err
	}
	return hashing.StoragePrefix(info.prefix, entry), nil
}

// DecodeKey decodes a full storage key, prefix included.
func (d *StorageDecoder) DecodeKey(pallet, entry string, key []byte) ([]StorageKey, error) {
	return d.backend.keys(pallet, entry, key)
}

// DecodeValue decodes a storage value.
func (d *StorageDecoder) DecodeValue(pallet, entry string, data []byte) (value.Value, error) {
	return d.backend.value(pallet, entry, data)
}

// DefaultValue decodes the value the runtime returns for an absent entry.
// It reports false when the metadata declares no default bytes.
func (d *StorageDecoder) DefaultValue(pallet, entry string) (value.Value, bool, error) {
	info, err := d.backend.lookup(pallet, entry)
	if err != nil || len(info.def) == 0 {
		return value.Value{}, false, err
	}
	v, err := d.backend.value(pallet, entry, info.def)
	return v, err == nil, err
}

type typedStorage[T any] struct {
	meta  schema.StorageTypeInfo[T]
	types schema.TypeResolver[T]
}

func (s typedStorage[T]) entries() []schema.StorageEntry { return s.meta.StorageEntries() }

func (s typedStorage[T]) lookup(pallet, entry string) (entryInfo, error) {
	info, err := s.meta.StorageInfo(pallet, entry)
	if err != nil {
		return entryInfo{}, err
	}
	return entryInfo{prefix: prefixName(info.Prefix, pallet), keyCount: len(info.Keys), def: info.Default}, nil
}

func (s typedStorage[T]) keys(pallet, entry string, key []byte) ([]StorageKey, error) {
	info, err := s.meta.StorageInfo(pallet, entry)
	if err != nil {
		return nil, err
	}
	want := hashing.StoragePrefix(prefixName(info.Prefix, pallet), entry)
	if !bytes.HasPrefix(key, want) {
		return nil, &Error{
			Kind:   PrefixMismatch,
			Pallet: pallet,
			Item:   entry,
			Detail: fmt.Sprintf("want 0x%x, have 0x%x", want, key[:min(len(key), PrefixLen)]),
		}
	}

	c := scale.NewCursor(key[PrefixLen:])
	out := make([]StorageKey, 0, len(info.Keys))
	for i, k := range info.Keys {
		hash, err := c.ReadBytes(k.Hasher.HashLen())
		if err != nil {
			return nil, &Error{Kind: MalformedLength, Pallet: pallet, Item: entry, Detail: fmt.Sprintf("key %d hash", i), Keys: out, Err: err}
		}
		part := StorageKey{Hasher: k.Hasher, Hash: hash}
		if k.Hasher.Reversible() {
			v, err := s.types.Decode(c, k.Type)
			if err != nil {
				return nil, &Error{Kind: InvalidValue, Pallet: pallet, Item: entry, Detail: fmt.Sprintf("key %d", i), Keys: out, Err: err}
			}
			part.Value = &v
		}
		out = append(out, part)
	}
	if c.Remaining() > 0 {
		return nil, &Error{Kind: LeftoverBytes, Pallet: pallet, Item: entry, Keys: out, Leftover: c.Rest()}
	}
	return out, nil
}

func (s typedStorage[T]) value(pallet, entry string, data []byte) (value.Value, error) {
	info, err := s.meta.StorageInfo(pallet, entry)
	if err != nil {
		return value.Value{}, err
	}
	c := scale.NewCursor(data)
	v, err := s.types.Decode(c, info.Value)
	if err != nil {
		return value.Value{}, &Error{Kind: InvalidValue, Pallet: pallet, Item: entry, Err: err}
	}
	if c.Remaining() > 0 {
		return value.Value{}, &Error{
			Kind:     LeftoverBytes,
			Pallet:   pallet,
			Item:     entry,
			Detail:   "decoded " + v.String(),
			Leftover: c.Rest(),
		}
	}
	return v, nil
}

func prefixName(prefix, pallet string) string {
	if prefix == "" {
		return pallet
	}
	return prefix
}
