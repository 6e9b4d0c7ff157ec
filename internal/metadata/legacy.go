package metadata

import (
	"fmt"

	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
)

// Legacy is metadata V8 to V13. The versions share one layout with small
// additions: V11 adds extrinsic info, V12 adds explicit pallet indexes and
// V13 adds N-ary storage maps.
type Legacy struct {
	MetadataVersion int        `json:"version"`
	Modules         []Module   `json:"modules"`
	Extrinsic       *Extrinsic `json:"extrinsic,omitempty"`
}

// Version returns the metadata version, 8 to 13.
func (m *Legacy) Version() int { return m.MetadataVersion }

// Module is a legacy pallet.
type Module struct {
	Name      string     `json:"name"`
	Storage   *Storage   `json:"storage,omitempty"`
	HasCalls  bool       `json:"-"`
	Calls     []Call     `json:"calls,omitempty"`
	HasEvents bool       `json:"-"`
	Events    []Event    `json:"events,omitempty"`
	Constants []Constant `json:"constants,omitempty"`
	Errors    []Error    `json:"errors,omitempty"`
	// Index is declared from V12 onward.
	Index uint8 `json:"index"`
}

type Call struct {
	Name string   `json:"name"`
	Args []Arg    `json:"args,omitempty"`
	Docs []string `json:"docs,omitempty"`
}

type Arg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type Event struct {
	Name string   `json:"name"`
	Args []string `json:"args,omitempty"`
	Docs []string `json:"docs,omitempty"`
}

type Constant struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Value []byte   `json:"value"`
	Docs  []string `json:"docs,omitempty"`
}

type Error struct {
	Name string   `json:"name"`
	Docs []string `json:"docs,omitempty"`
}

type Storage struct {
	Prefix  string         `json:"prefix"`
	Entries []StorageEntry `json:"entries"`
}

// StorageKind is the shape of a legacy storage entry.
type StorageKind uint8

const (
	Plain StorageKind = iota
	Map
	DoubleMap
	NMap
)

var storageKindNames = [...]string{"plain", "map", "double_map", "n_map"}

func (k StorageKind) String() string {
	if int(k) < len(storageKindNames) {
		return storageKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// MarshalText renders the kind name.
func (k StorageKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// StorageEntry is a legacy storage entry. Map entries have one key and
// hasher, double maps two, and N-maps any number of keys with either one
// hasher or one per key.
type StorageEntry struct {
	Name     string          `json:"name"`
	Modifier Modifier        `json:"modifier"`
	Kind     StorageKind     `json:"kind"`
	Hashers  []schema.Hasher `json:"hashers,omitempty"`
	Keys     []string        `json:"keys,omitempty"`
	Value    string          `json:"value"`
	Default  []byte          `json:"default"`
	Docs     []string        `json:"docs,omitempty"`
}

// Extrinsic is the extrinsic description added in V11.
type Extrinsic struct {
	Version          uint8    `json:"version"`
	SignedExtensions []string `json:"signedExtensions"`
}

func decodeLegacy(c *scale.Cursor, version int) (*Legacy, error) {
	n, err := c.ReadLen()
	if err != nil {
		return nil, err
	}
	md := &Legacy{MetadataVersion: version}
	for i := range n {
		m, err := decodeModule(c, version)
		if err != nil {
			return nil, fmt.Errorf("module %d: %w", i, err)
		}
		md.Modules = append(md.Modules, m)
	}
	if version >= 11 {
		var ext Extrinsic
		if ext.Version, err = c.ReadU8(); err != nil {
			return nil, fmt.Errorf("extrinsic: %w", err)
		}
		if ext.SignedExtensions, err = c.ReadStrings(); err != nil {
			return nil, fmt.Errorf("extrinsic: %w", err)
		}
		md.Extrinsic = &ext
	}
	return md, nil
}

func decodeModule(c *scale.Cursor, version int) (Module, error) {
	var m Module
	var err error
	if m.Name, err = c.ReadString(); err != nil {
		return m, err
	}

	some, err := c.ReadOption()
	if err != nil {
		return m, err
	}
	if some {
		if m.Storage, err = decodeStorage(c, version); err != nil {
			return m, fmt.Errorf("%s storage: %w", m.Name, err)
		}
	}

	if m.HasCalls, err = c.ReadOption(); err != nil {
		return m, err
	}
	if m.HasCalls {
		if m.Calls, err = decodeCalls(c); err != nil {
			return m, fmt.Errorf("%s calls: %w", m.Name, err)
		}
	}

	if m.HasEvents, err = c.ReadOption(); err != nil {
		return m, err
	}
	if m.HasEvents {
		if m.Events, err = decodeEvents(c); err != nil {
			return m, fmt.Errorf("%s events: %w", m.Name, err)
		}
	}

	if m.Constants, err = decodeConstants(c); err != nil {
		return m, fmt.Errorf("%s constants: %w", m.Name, err)
	}
	if m.Errors, err = decodeErrors(c); err != nil {
		return m, fmt.Errorf("%s errors: %w", m.Name, err)
	}
	if version >= 12 {
		if m.Index, err = c.ReadU8(); err != nil {
			return m, err
		}
	}
	return m, nil
}

func decodeStorage(c *scale.Cursor, version int) (*Storage, error) {
	prefix, err := c.ReadString()
	if err != nil {
		return nil, err
	}
	n, err := c.ReadLen()
	if err != nil {
		return nil, err
	}
	s := &Storage{Prefix: prefix}
	for range n {
		e, err := decodeStorageEntry(c, version)
		if err != nil {
			return nil, err
		}
		s.Entries = append(s.Entries, e)
	}
	return s, nil
}

func decodeStorageEntry(c *scale.Cursor, version int) (StorageEntry, error) {
	var e StorageEntry
	var err error
	if e.Name, err = c.ReadString(); err != nil {
		return e, err
	}
	if e.Modifier, err = decodeModifier(c); err != nil {
		return e, err
	}
	kind, err := c.ReadU8()
	if err != nil {
		return e, err
	}
	e.Kind = StorageKind(kind)
	switch e.Kind {
	case Plain:
		if e.Value, err = c.ReadString(); err != nil {
			return e, err
		}
	case Map:
		h, err := decodeHasher(c, version)
		if err != nil {
			return e, err
		}
		key, err := c.ReadString()
		if err != nil {
			return e, err
		}
		if e.Value, err = c.ReadString(); err != nil {
			return e, err
		}
		// is_linked before V11, unused after.
		if _, err := c.ReadBool(); err != nil {
			return e, err
		}
		e.Hashers, e.Keys = []schema.Hasher{h}, []string{key}
	case DoubleMap:
		h1, err := decodeHasher(c, version)
		if err != nil {
			return e, err
		}
		k1, err := c.ReadString()
		if err != nil {
			return e, err
		}
		k2, err := c.ReadString()
		if err != nil {
			return e, err
		}
		if e.Value, err = c.ReadString(); err != nil {
			return e, err
		}
		h2, err := decodeHasher(c, version)
		if err != nil {
			return e, err
		}
		e.Hashers, e.Keys = []schema.Hasher{h1, h2}, []string{k1, k2}
	case NMap:
		if version < 13 {
			return e, fmt.Errorf("entry %s: N-map storage before V13", e.Name)
		}
		if e.Keys, err = c.ReadStrings(); err != nil {
			return e, err
		}
		if e.Hashers, err = decodeHashers(c, version); err != nil {
			return e, err
		}
		if e.Value, err = c.ReadString(); err != nil {
			return e, err
		}
	default:
		return e, fmt.Errorf("entry %s: unknown storage kind %d", e.Name, kind)
	}
	if e.Default, err = c.ReadByteVec(); err != nil {
		return e, err
	}
	if e.Docs, err = c.ReadStrings(); err != nil {
		return e, err
	}
	return e, nil
}

func decodeCalls(c *scale.Cursor) ([]Call, error) {
	n, err := c.ReadLen()
	if err != nil {
		return nil, err
	}
	calls := make([]Call, 0, min(n, c.Remaining()))
	for range n {
		var call Call
		if call.Name, err = c.ReadString(); err != nil {
			return nil, err
		}
		na, err := c.ReadLen()
		if err != nil {
			return nil, err
		}
		for range na {
			var a Arg
			if a.Name, err = c.ReadString(); err != nil {
				return nil, err
			}
			if a.Type, err = c.ReadString(); err != nil {
				return nil, err
			}
			call.Args = append(call.Args, a)
		}
		if call.Docs, err = c.ReadStrings(); err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func decodeEvents(c *scale.Cursor) ([]Event, error) {
	n, err := c.ReadLen()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, min(n, c.Remaining()))
	for range n {
		var ev Event
		if ev.Name, err = c.ReadString(); err != nil {
			return nil, err
		}
		if ev.Args, err = c.ReadStrings(); err != nil {
			return nil, err
		}
		if ev.Docs, err = c.ReadStrings(); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeConstants(c *scale.Cursor) ([]Constant, error) {
	n, err := c.ReadLen()
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]Constant, 0, min(n, c.Remaining()))
	for range n {
		var k Constant
		if k.Name, err = c.ReadString(); err != nil {
			return nil, err
		}
		if k.Type, err = c.ReadString(); err != nil {
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

func decodeErrors(c *scale.Cursor) ([]Error, error) {
	n, err := c.ReadLen()
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]Error, 0, min(n, c.Remaining()))
	for range n {
		var e Error
		if e.Name, err = c.ReadString(); err != nil {
			return nil, err
		}
		if e.Docs, err = c.ReadStrings(); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
