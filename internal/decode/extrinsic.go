// Package decode turns raw extrinsic and storage bytes into values using a
// decoded metadata document and, for legacy metadata, a historic type
// registry.
package decode

import (
	"encoding/hex"
	"fmt"

	"github.com/ashita-ai/kiroku/internal/historic"
	"github.com/ashita-ai/kiroku/internal/metadata"
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
	"github.com/ashita-ai/kiroku/internal/ss58"
	"github.com/ashita-ai/kiroku/internal/value"
)

// Kind is the envelope shape of an extrinsic.
type Kind string

const (
	Unsigned Kind = "unsigned"
	Signed   Kind = "signed"
	General  Kind = "general"
)

// Envelope version bytes.
const (
	envelopeUnsigned byte = 0x04
	envelopeSigned   byte = 0x84
	envelopeGeneral  byte = 0x45
)

// Field is a named decoded value: a call argument or a signed extension.
type Field struct {
	Name  string      `json:"name"`
	Value value.Value `json:"value"`
}

// Span is a half-open byte range of the encoded extrinsic.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Call is the decoded call data.
type Call struct {
	Pallet string  `json:"pallet"`
	Name   string  `json:"call"`
	Args   []Field `json:"args"`
}

// Extrinsic is a decoded extrinsic. Address, Signature and their spans are
// set only for signed extrinsics; Extensions for signed and general ones.
type Extrinsic struct {
	Kind             Kind    `json:"kind"`
	Version          uint8   `json:"version"`
	ExtensionVersion uint8   `json:"extensionVersion,omitempty"`
	Address          string  `json:"address,omitempty"`
	AddressSpan      Span    `json:"-"`
	Signature        string  `json:"signature,omitempty"`
	SignatureSpan    Span    `json:"-"`
	Extensions       []Field `json:"extensions,omitempty"`
	Call             Call    `json:"call"`
}

// DecodeExtrinsic decodes one length-prefixed extrinsic. types supplies the
// historic type definitions for V8 to V13 metadata, with the builtin types
// of md already prepended; it is unused for V14 and later.
func DecodeExtrinsic(data []byte, md metadata.Metadata, types *historic.RegistrySet, opts ...Option) (*Extrinsic, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	switch m := md.(type) {
	case *metadata.Legacy:
		if types == nil {
			types = historic.NewRegistrySet()
		}
		return decodeExtrinsic(data, m, historic.NewResolver(types), o)
	case *metadata.V14:
		return decodeExtrinsic(data, m, m.Types, o)
	case *metadata.V15:
		return decodeExtrinsic(data, m, m.Types, o)
	default:
		return nil, &schema.Error{Kind: schema.UnsupportedMetadata, Detail: fmt.Sprintf("%T", md)}
	}
}

func decodeExtrinsic[T any](data []byte, info schema.ExtrinsicTypeInfo[T], types schema.TypeResolver[T], o options) (*Extrinsic, error) {
	c, err := body(data, o.strict)
	if err != nil {
		return nil, err
	}

	ext := &Extrinsic{}
	envelope, err := c.ReadU8()
	if err != nil {
		return nil, &Error{Kind: MalformedLength, Detail: "missing version byte", Err: err}
	}
	switch envelope {
	case envelopeUnsigned:
		ext.Kind, ext.Version = Unsigned, 4
	case envelopeSigned:
		ext.Kind, ext.Version = Signed, 4
	case envelopeGeneral:
		ext.Kind, ext.Version = General, 5
		if ext.ExtensionVersion, err = c.ReadU8(); err != nil {
			return nil, &Error{Kind: MalformedLength, Detail: "missing extension version byte", Err: err}
		}
	default:
		return nil, &Error{Kind: UnsupportedVersion, Detail: fmt.Sprintf("version byte 0x%02x", envelope)}
	}

	if ext.Kind != Unsigned {
		sig, err := info.SignatureInfo()
		if err != nil {
			return nil, err
		}
		if ext.Kind == Signed {
			start := c.Pos()
			if _, err := types.Decode(c, sig.AddressType); err != nil {
				return nil, &Error{Kind: InvalidValue, Detail: "address", Err: err}
			}
			ext.AddressSpan = Span{start, c.Pos()}
			ext.Address = renderAddress(c.Span(start, c.Pos()), o.ss58Prefix)

			start = c.Pos()
			if _, err := types.Decode(c, sig.SignatureType); err != nil {
				return nil, &Error{Kind: InvalidValue, Detail: "signature", Err: err}
			}
			ext.SignatureSpan = Span{start, c.Pos()}
			ext.Signature = "0x" + hex.EncodeToString(c.Span(start, c.Pos()))
		}
		for _, e := range sig.Extensions {
			v, err := types.Decode(c, e.Type)
			if err != nil {
				return nil, &Error{Kind: InvalidValue, Detail: "extension " + e.Name, Err: err}
			}
			ext.Extensions = append(ext.Extensions, Field{Name: e.Name, Value: v})
		}
	}

	palletIndex, err := c.ReadU8()
	if err != nil {
		return nil, &Error{Kind: MalformedLength, Detail: "missing pallet index", Err: err}
	}
	callIndex, err := c.ReadU8()
	if err != nil {
		return nil, &Error{Kind: MalformedLength, Detail: "missing call index", Err: err}
	}
	call, err := info.ExtrinsicInfo(palletIndex, callIndex)
	if err != nil {
		return nil, err
	}
	ext.Call = Call{Pallet: call.PalletName, Name: call.CallName, Args: make([]Field, 0, len(call.Args))}
	for _, a := range call.Args {
		v, err := types.Decode(c, a.Type)
		if err != nil {
			return nil, &Error{
				Kind:   InvalidValue,
				Pallet: call.PalletName,
				Item:   call.CallName,
				Detail: "argument " + a.Name,
				Args:   ext.Call.Args,
				Err:    err,
			}
		}
		ext.Call.Args = append(ext.Call.Args, Field{Name: a.Name, Value: v})
	}

	if c.Remaining() > 0 {
		return nil, &Error{
			Kind:     LeftoverBytes,
			Pallet:   call.PalletName,
			Item:     call.CallName,
			Args:     ext.Call.Args,
			Leftover: c.Rest(),
		}
	}
	return ext, nil
}

// body strips the compact length prefix and returns a cursor over exactly
// the bytes it covers. Spans recorded from the cursor index into data.
func body(data []byte, strict bool) (*scale.Cursor, error) {
	c := scale.NewCursor(data)
	n, err := c.ReadLen()
	if err != nil {
		return nil, &Error{Kind: MalformedLength, Err: err}
	}
	switch {
	case c.Remaining() < n:
		return nil, &Error{Kind: MalformedLength, Detail: fmt.Sprintf("length prefix %d exceeds %d remaining bytes", n, c.Remaining())}
	case c.Remaining() > n && strict:
		return nil, &Error{Kind: LeftoverBytes, Detail: "bytes after declared length", Leftover: c.Rest()[n:]}
	}
	end := c.Pos() + n
	bc := scale.NewCursor(data[:end])
	if err := bc.Skip(c.Pos()); err != nil {
		return nil, err
	}
	return bc, nil
}

// renderAddress prints raw 32 byte account ids as SS58 and anything else,
// such as a MultiAddress, as hex.
func renderAddress(b []byte, prefix uint16) string {
	if len(b) == 32 {
		if s, err := ss58.Encode(b, prefix); err == nil {
			return s
		}
	}
	return "0x" + hex.EncodeToString(b)
}
