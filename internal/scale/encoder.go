package scale

import (
	"encoding/binary"
	"math/big"
)

// Encoder builds SCALE-encoded byte strings. The zero value is ready to use.
type Encoder struct {
	buf []byte
}

// Bytes returns the encoded output.
func (e *Encoder) Bytes() []byte { return e.buf }

// Raw appends b without a length prefix.
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

func (e *Encoder) U8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

func (e *Encoder) U16(v uint16) *Encoder {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
	return e
}

func (e *Encoder) U32(v uint32) *Encoder {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
	return e
}

func (e *Encoder) U64(v uint64) *Encoder {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
	return e
}

// Uint appends v as a little-endian integer of the given byte width.
func (e *Encoder) Uint(v *big.Int, width int) *Encoder {
	be := v.Bytes()
	le := make([]byte, width)
	for i := 0; i < len(be) && i < width; i++ {
		le[i] = be[len(be)-1-i]
	}
	e.buf = append(e.buf, le...)
	return e
}

func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.U8(1)
	}
	return e.U8(0)
}

// Compact appends v in compact encoding.
func (e *Encoder) Compact(v uint64) *Encoder {
	e.buf = AppendCompact(e.buf, v)
	return e
}

// ByteVec appends a length-prefixed byte vector.
func (e *Encoder) ByteVec(b []byte) *Encoder {
	return e.Compact(uint64(len(b))).Raw(b)
}

// String appends a length-prefixed string.
func (e *Encoder) String(s string) *Encoder {
	return e.ByteVec([]byte(s))
}

// Strings appends a Vec<String>.
func (e *Encoder) Strings(ss ...string) *Encoder {
	e.Compact(uint64(len(ss)))
	for _, s := range ss {
		e.String(s)
	}
	return e
}

// None appends an empty Option tag.
func (e *Encoder) None() *Encoder { return e.U8(0) }

// Some appends the Option tag for a present value. The value itself
// is appended by the caller.
func (e *Encoder) Some() *Encoder { return e.U8(1) }

// AppendCompact appends the compact encoding of v to dst.
func AppendCompact(dst []byte, v uint64) []byte {
	switch {
	case v < 1<<6:
		return append(dst, byte(v<<2))
	case v < 1<<14:
		return binary.LittleEndian.AppendUint16(dst, uint16(v<<2|0b01))
	case v < 1<<30:
		return binary.LittleEndian.AppendUint32(dst, uint32(v<<2|0b10))
	default:
		n := 0
		for x := v; x > 0; x >>= 8 {
			n++
		}
		dst = append(dst, byte((n-4)<<2|0b11))
		for i := 0; i < n; i++ {
			dst = append(dst, byte(v>>(8*i)))
		}
		return dst
	}
}

// EncodeCompact returns the compact encoding of v.
func EncodeCompact(v uint64) []byte {
	return AppendCompact(nil, v)
}
