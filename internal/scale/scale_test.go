package scale_test

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/scale"
)

func TestCompactRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		want  []byte
	}{
		{"single byte", 1, []byte{0x04}},
		{"single byte max", 63, []byte{0xfc}},
		{"two byte", 64, []byte{0x01, 0x01}},
		{"two byte max", 16383, []byte{0xfd, 0xff}},
		{"four byte", 16384, []byte{0x02, 0x00, 0x01, 0x00}},
		{"big int mode", 1 << 30, []byte{0x03, 0x00, 0x00, 0x00, 0x40}},
		{"u64 max", ^uint64(0), []byte{0x13, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := scale.EncodeCompact(tt.value)
			assert.Equal(t, tt.want, enc)

			c := scale.NewCursor(enc)
			got, err := c.ReadCompactU64()
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
			assert.Zero(t, c.Remaining())
		})
	}
}

func TestReadIntSigned(t *testing.T) {
	c := scale.NewCursor([]byte{0xff, 0xfe, 0xff, 0xff, 0xff})
	v, err := c.ReadInt(1)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), v.Int64())

	v, err = c.ReadInt(4)
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v.Int64())
}

func TestReadUintWide(t *testing.T) {
	var e scale.Encoder
	want, _ := new(big.Int).SetString("340282366920938463463374607431768211455", 10)
	e.Uint(want, 16)

	c := scale.NewCursor(e.Bytes())
	got, err := c.ReadUint(16)
	require.NoError(t, err)
	assert.Equal(t, 0, want.Cmp(got))
}

func TestReadBytesEOF(t *testing.T) {
	c := scale.NewCursor([]byte{1, 2})
	_, err := c.ReadBytes(3)
	require.ErrorIs(t, err, scale.ErrUnexpectedEOF)
	assert.Equal(t, 0, c.Pos(), "failed read must not advance")
}

func TestStringsAndOptions(t *testing.T) {
	var e scale.Encoder
	e.Strings("System", "Balances").Some().String("doc").None().Bool(true)

	c := scale.NewCursor(e.Bytes())
	ss, err := c.ReadStrings()
	require.NoError(t, err)
	assert.Equal(t, []string{"System", "Balances"}, ss)

	s, ok, err := c.ReadOptionString()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "doc", s)

	_, ok, err = c.ReadOptionString()
	require.NoError(t, err)
	assert.False(t, ok)

	b, err := c.ReadBool()
	require.NoError(t, err)
	assert.True(t, b)
	assert.Zero(t, c.Remaining())
}

func TestInvalidBool(t *testing.T) {
	_, err := scale.NewCursor([]byte{2}).ReadBool()
	require.ErrorIs(t, err, scale.ErrInvalidBool)
}
