// Package scale implements the SCALE binary codec primitives used by
// runtime metadata, extrinsics and storage entries.
//
// Only the primitives live here. Schema-driven decoding (structs, enums,
// sequences described by a type registry) is done by the resolvers in
// internal/historic and internal/portable on top of a Cursor.
package scale

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/big"
)

var (
	// ErrUnexpectedEOF is returned when a read runs past the end of the input.
	ErrUnexpectedEOF = errors.New("scale: unexpected end of input")

	// ErrInvalidBool is returned when a bool byte is neither 0 nor 1.
	ErrInvalidBool = errors.New("scale: invalid bool")

	// ErrInvalidOption is returned when an option tag is neither 0 nor 1.
	ErrInvalidOption = errors.New("scale: invalid option tag")

	// ErrLengthOverflow is returned when a compact length does not fit in an int.
	ErrLengthOverflow = errors.New("scale: length overflow")

	// ErrZeroSizedSequence is returned when a sequence of zero-sized elements
	// claims more elements than there are input bytes left.
	ErrZeroSizedSequence = errors.New("scale: zero-sized sequence longer than input")
)

// Cursor reads SCALE primitives from a byte slice, tracking its position.
// A Cursor is not safe for concurrent use.
type Cursor struct {
	data []byte
	pos  int
}

// NewCursor returns a cursor positioned at the start of data.
func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Pos returns the number of bytes consumed so far.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Rest returns the unread bytes without consuming them.
func (c *Cursor) Rest() []byte { return c.data[c.pos:] }

// Span returns the bytes between two absolute positions previously
// obtained from Pos.
func (c *Cursor) Span(from, to int) []byte { return c.data[from:to] }

// ReadBytes consumes exactly n bytes. The returned slice aliases the input.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrUnexpectedEOF, n, c.Remaining())
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	_, err := c.ReadBytes(n)
	return err
}

func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadUint reads a little-endian unsigned integer of the given byte width.
// Widths above 8 (u128, u256) are returned as big.Int.
func (c *Cursor) ReadUint(width int) (*big.Int, error) {
	b, err := c.ReadBytes(width)
	if err != nil {
		return nil, err
	}
	return leToBig(b), nil
}

// ReadInt reads a little-endian two's complement integer of the given byte width.
func (c *Cursor) ReadInt(width int) (*big.Int, error) {
	n, err := c.ReadUint(width)
	if err != nil {
		return nil, err
	}
	bits := uint(width * 8)
	if n.Bit(int(bits)-1) == 1 {
		n.Sub(n, new(big.Int).Lsh(big.NewInt(1), bits))
	}
	return n, nil
}

func (c *Cursor) ReadBool() (bool, error) {
	b, err := c.ReadU8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: 0x%02x", ErrInvalidBool, b)
	}
}

// ReadOption reads an Option tag and reports whether a value follows.
func (c *Cursor) ReadOption() (bool, error) {
	b, err := c.ReadU8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: 0x%02x", ErrInvalidOption, b)
	}
}

// ReadCompact reads a compact-encoded unsigned integer of any size.
func (c *Cursor) ReadCompact() (*big.Int, error) {
	first, err := c.ReadU8()
	if err != nil {
		return nil, err
	}
	switch first & 0b11 {
	case 0b00:
		return big.NewInt(int64(first >> 2)), nil
	case 0b01:
		second, err := c.ReadU8()
		if err != nil {
			return nil, err
		}
		v := (uint64(first) | uint64(second)<<8) >> 2
		return new(big.Int).SetUint64(v), nil
	case 0b10:
		rest, err := c.ReadBytes(3)
		if err != nil {
			return nil, err
		}
		v := (uint64(first) | uint64(rest[0])<<8 | uint64(rest[1])<<16 | uint64(rest[2])<<24) >> 2
		return new(big.Int).SetUint64(v), nil
	default:
		n := int(first>>2) + 4
		b, err := c.ReadBytes(n)
		if err != nil {
			return nil, err
		}
		return leToBig(b), nil
	}
}

// ReadCompactU64 reads a compact integer that must fit in a uint64.
func (c *Cursor) ReadCompactU64() (uint64, error) {
	n, err := c.ReadCompact()
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, fmt.Errorf("%w: %s does not fit in u64", ErrLengthOverflow, n)
	}
	return n.Uint64(), nil
}

// ReadCompactU32 reads a compact integer that must fit in a uint32.
func (c *Cursor) ReadCompactU32() (uint32, error) {
	n, err := c.ReadCompactU64()
	if err != nil {
		return 0, err
	}
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d does not fit in u32", ErrLengthOverflow, n)
	}
	return uint32(n), nil
}

// ReadLen reads a compact length prefix and converts it to an int.
func (c *Cursor) ReadLen() (int, error) {
	n, err := c.ReadCompactU64()
	if err != nil {
		return 0, err
	}
	if n > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d", ErrLengthOverflow, n)
	}
	return int(n), nil
}

// ReadByteVec reads a length-prefixed byte vector.
func (c *Cursor) ReadByteVec() ([]byte, error) {
	n, err := c.ReadLen()
	if err != nil {
		return nil, err
	}
	return c.ReadBytes(n)
}

// ReadString reads a length-prefixed UTF-8 string.
func (c *Cursor) ReadString() (string, error) {
	b, err := c.ReadByteVec()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadStrings reads a Vec<String>. An empty vector is returned as nil.
func (c *Cursor) ReadStrings() ([]string, error) {
	n, err := c.ReadLen()
	if err != nil || n == 0 {
		return nil, err
	}
	out := make([]string, 0, min(n, c.Remaining()))
	for range n {
		s, err := c.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadOptionString reads an Option<String>.
func (c *Cursor) ReadOptionString() (string, bool, error) {
	some, err := c.ReadOption()
	if err != nil || !some {
		return "", false, err
	}
	s, err := c.ReadString()
	return s, err == nil, err
}

func leToBig(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}
