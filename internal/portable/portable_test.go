package portable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/portable"
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
)

func ptr(v uint32) *uint32 { return &v }

// testRegistry models a small runtime: an account id, a balances call enum
// and a few containers.
func testRegistry() *portable.Registry {
	return portable.NewRegistry(
		portable.Type{ID: 0, Def: portable.PrimitiveDef{Kind: portable.U8}},
		portable.Type{ID: 1, Path: []string{"sp_core", "crypto", "AccountId32"}, Def: portable.CompositeDef{Fields: []portable.Field{{Type: 2, TypeName: "[u8; 32]"}}}},
		portable.Type{ID: 2, Def: portable.ArrayDef{Len: 4, Elem: 0}},
		portable.Type{ID: 3, Def: portable.PrimitiveDef{Kind: portable.U128}},
		portable.Type{ID: 4, Def: portable.CompactDef{Elem: 3}},
		portable.Type{ID: 5, Path: []string{"pallet_balances", "pallet", "Call"}, Params: []portable.TypeParam{{Name: "T"}}, Def: portable.VariantDef{Variants: []portable.Variant{
			{Name: "transfer", Index: 0, Fields: []portable.Field{{Name: "dest", Type: 1}, {Name: "value", Type: 4}}},
			{Name: "remark", Index: 7, Fields: []portable.Field{{Name: "data", Type: 6}}},
		}}},
		portable.Type{ID: 6, Def: portable.SequenceDef{Elem: 0}},
		portable.Type{ID: 7, Def: portable.TupleDef{Elems: []uint32{0, 8}}},
		portable.Type{ID: 8, Def: portable.PrimitiveDef{Kind: portable.I32}},
		portable.Type{ID: 9, Def: portable.BitSequenceDef{Store: 0, Order: 10}},
		portable.Type{ID: 10, Path: []string{"bitvec", "order", "Msb0"}, Def: portable.CompositeDef{}},
		portable.Type{ID: 11, Path: []string{"Wrapper"}, Params: []portable.TypeParam{{Name: "Address", Type: ptr(1)}}, Def: portable.CompositeDef{}},
	)
}

func decode(t *testing.T, r *portable.Registry, id uint32, data []byte) string {
	t.Helper()
	c := scale.NewCursor(data)
	v, err := r.Decode(c, id)
	require.NoError(t, err)
	assert.Zero(t, c.Remaining())
	return v.String()
}

func TestDecodeVariantCall(t *testing.T) {
	r := testRegistry()
	var e scale.Encoder
	e.U8(0).Raw([]byte{1, 2, 3, 4}).Compact(500)
	assert.Equal(t, "transfer { dest: (0x01020304), value: 500 }", decode(t, r, 5, e.Bytes()))

	var remark scale.Encoder
	remark.U8(7).ByteVec([]byte("hi"))
	assert.Equal(t, "remark { data: 0x6869 }", decode(t, r, 5, remark.Bytes()))
}

func TestDecodeUnknownVariant(t *testing.T) {
	_, err := testRegistry().Decode(scale.NewCursor([]byte{3}), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no variant with index 3")
}

func TestDecodeTupleAndSigned(t *testing.T) {
	assert.Equal(t, "(1, -2)", decode(t, testRegistry(), 7, []byte{1, 0xfe, 0xff, 0xff, 0xff}))
}

func TestDecodeMsb0Bits(t *testing.T) {
	assert.Equal(t, "<110>", decode(t, testRegistry(), 9, []byte{12, 0b1100_0000}))
}

func TestUnknownTypeIsSchemaError(t *testing.T) {
	_, err := testRegistry().Decode(scale.NewCursor(nil), 99)
	assert.True(t, schema.IsKind(err, schema.TypeNotFound))
}

func TestZeroSizedSequenceLongerThanInput(t *testing.T) {
	r := portable.NewRegistry(
		portable.Type{ID: 0, Def: portable.TupleDef{}},
		portable.Type{ID: 1, Def: portable.SequenceDef{Elem: 0}},
		portable.Type{ID: 2, Def: portable.ArrayDef{Len: 1000, Elem: 0}},
	)

	var e scale.Encoder
	e.Compact(1 << 24)
	_, err := r.Decode(scale.NewCursor(e.Bytes()), 1)
	require.ErrorIs(t, err, scale.ErrZeroSizedSequence)

	_, err = r.Decode(scale.NewCursor(nil), 2)
	require.ErrorIs(t, err, scale.ErrZeroSizedSequence)

	c := scale.NewCursor([]byte{4})
	_, err = r.Decode(c, 1)
	require.NoError(t, err)
	assert.Zero(t, c.Remaining())
}

func TestRegistryEncodeDecodeRoundTrip(t *testing.T) {
	r := testRegistry()
	var e scale.Encoder
	r.EncodeTo(&e)

	c := scale.NewCursor(e.Bytes())
	got, err := portable.DecodeRegistry(c)
	require.NoError(t, err)
	assert.Zero(t, c.Remaining())
	assert.Equal(t, r.Types(), got.Types())

	w, ok := got.Type(11)
	require.True(t, ok)
	addr, ok := w.Param("Address")
	require.True(t, ok)
	assert.Equal(t, uint32(1), addr)
}
