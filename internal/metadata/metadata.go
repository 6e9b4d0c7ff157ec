// Package metadata decodes runtime metadata V8 to V15 and adapts each
// version to the schema contracts used by the extrinsic and storage
// decoders.
//
// V8 to V13 describe types by name and decode through a historic type
// registry (*Legacy). V14 and V15 carry a portable type table (*V14, *V15).
package metadata

import (
	"bytes"
	"fmt"

	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
)

// Magic is the prefix of every encoded metadata document ("meta").
var Magic = []byte("meta")

const (
	MinVersion = 8
	MaxVersion = 15
)

// Metadata is one decoded metadata document: *Legacy, *V14 or *V15.
type Metadata interface {
	Version() int
	isMetadata()
}

func (*Legacy) isMetadata() {}
func (*V14) isMetadata()    {}
func (*V15) isMetadata()    {}

// Decode decodes a metadata document as returned by state_getMetadata.
func Decode(data []byte) (Metadata, error) {
	if len(data) < len(Magic)+1 || !bytes.Equal(data[:len(Magic)], Magic) {
		return nil, &schema.Error{Kind: schema.InvalidMetadata, Detail: "missing magic prefix"}
	}
	version := int(data[len(Magic)])
	if version < MinVersion || version > MaxVersion {
		return nil, &schema.Error{Kind: schema.UnsupportedMetadata, Detail: fmt.Sprintf("version %d", version)}
	}
	c := scale.NewCursor(data[len(Magic)+1:])

	var (
		md  Metadata
		err error
	)
	switch version {
	case 14:
		md, err = decodeV14(c)
	case 15:
		md, err = decodeV15(c)
	default:
		md, err = decodeLegacy(c, version)
	}
	if err != nil {
		return nil, &schema.Error{Kind: schema.InvalidMetadata, Detail: fmt.Sprintf("V%d", version), Err: err}
	}
	if c.Remaining() != 0 {
		return nil, &schema.Error{Kind: schema.InvalidMetadata, Detail: fmt.Sprintf("V%d: %d trailing bytes", version, c.Remaining())}
	}
	return md, nil
}

// Modifier says what a storage read returns when the entry is absent.
type Modifier uint8

const (
	Optional Modifier = iota
	Default
)

func (m Modifier) String() string {
	if m == Optional {
		return "optional"
	}
	return "default"
}

// MarshalText renders the modifier name.
func (m Modifier) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// decodeHasher reads a storage hasher. V8 lacks Blake2_128Concat and every
// version before V11 lacks Identity, so the discriminants differ.
func decodeHasher(c *scale.Cursor, version int) (schema.Hasher, error) {
	tag, err := c.ReadU8()
	if err != nil {
		return 0, err
	}
	if version == 8 {
		v8 := []schema.Hasher{schema.Blake2_128, schema.Blake2_256, schema.Twox128, schema.Twox256, schema.Twox64Concat}
		if int(tag) >= len(v8) {
			return 0, fmt.Errorf("unknown V8 hasher %d", tag)
		}
		return v8[tag], nil
	}
	maxTag := schema.Twox64Concat
	if version >= 11 {
		maxTag = schema.Identity
	}
	if schema.Hasher(tag) > maxTag {
		return 0, fmt.Errorf("unknown V%d hasher %d", version, tag)
	}
	return schema.Hasher(tag), nil
}

func decodeHashers(c *scale.Cursor, version int) ([]schema.Hasher, error) {
	n, err := c.ReadLen()
	if err != nil {
		return nil, err
	}
	out := make([]schema.Hasher, 0, min(n, c.Remaining()))
	for range n {
		h, err := decodeHasher(c, version)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func decodeModifier(c *scale.Cursor) (Modifier, error) {
	b, err := c.ReadU8()
	if err != nil {
		return 0, err
	}
	if b > 1 {
		return 0, fmt.Errorf("unknown storage modifier %d", b)
	}
	return Modifier(b), nil
}
