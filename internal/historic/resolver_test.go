package historic_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/historic"
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
)

const chainTypes = `
global:
  types:
    Balance: u128
    AccountId: "[u8; 4]"
    Transfer:
      from: AccountId
      amount: Compact<Balance>
    Status:
      _enum: [Active, Frozen]
    Reason:
      _enum:
        Other: Text
        Slashed: [u32, bool]
        Moved: { to: AccountId }
        Nothing: null
    Pair<T>: (T, T)
    Permissions:
      _set:
        _bitLength: 8
        Read: 1
        Write: 2
        Exec: 4
  palletTypes:
    Staking:
      Balance: u32
forSpec:
  - range: [null, 99]
    types:
      Balance: u64
  - range: [50, 60]
    types:
      Balance: u16
`

func resolverFor(t *testing.T, spec uint32) *historic.Resolver {
	t.Helper()
	chain, err := historic.ParseChainRegistry([]byte(chainTypes))
	require.NoError(t, err)
	return historic.NewResolver(chain.ForSpecVersion(spec))
}

func decodeString(t *testing.T, r *historic.Resolver, name string, data []byte) string {
	t.Helper()
	c := scale.NewCursor(data)
	v, err := r.Decode(c, historic.MustParseLookupName(name))
	require.NoError(t, err)
	assert.Zero(t, c.Remaining(), "all bytes consumed")
	return v.String()
}

func TestForSpecVersionPriority(t *testing.T) {
	// 16 byte u128, 8 byte u64, 2 byte u16 depending on spec version.
	tests := []struct {
		spec uint32
		size int
	}{
		{10, 8},
		{55, 2},
		{100, 16},
	}
	for _, tt := range tests {
		r := resolverFor(t, tt.spec)
		data := make([]byte, tt.size)
		data[0] = 5
		assert.Equal(t, "5", decodeString(t, r, "Balance", data), "spec %d", tt.spec)
	}
}

func TestDecodeStructAndCompact(t *testing.T) {
	r := resolverFor(t, 100)
	var e scale.Encoder
	e.Raw([]byte{1, 2, 3, 4}).Compact(1000)
	assert.Equal(t, "{ from: 0x01020304, amount: 1000 }", decodeString(t, r, "Transfer", e.Bytes()))
}

func TestDecodeEnums(t *testing.T) {
	r := resolverFor(t, 100)
	assert.Equal(t, "Frozen", decodeString(t, r, "Status", []byte{1}))

	var e scale.Encoder
	e.U8(0).String("gone")
	assert.Equal(t, `Other("gone")`, decodeString(t, r, "Reason", e.Bytes()))

	assert.Equal(t, "Slashed(7, true)", decodeString(t, r, "Reason", []byte{1, 7, 0, 0, 0, 1}))
	assert.Equal(t, "Moved { to: 0x09090909 }", decodeString(t, r, "Reason", []byte{2, 9, 9, 9, 9}))
	assert.Equal(t, "Nothing", decodeString(t, r, "Reason", []byte{3}))

	_, err := r.Decode(scale.NewCursor([]byte{9}), historic.MustParseLookupName("Status"))
	require.Error(t, err)
}

func TestDecodeGenericDefinition(t *testing.T) {
	r := resolverFor(t, 100)
	assert.Equal(t, "(1, 2)", decodeString(t, r, "Pair<u16>", []byte{1, 0, 2, 0}))
	assert.Equal(t, "0x0102", decodeString(t, r, "Pair<u8>", []byte{1, 2}))
}

func TestDecodeBitFlags(t *testing.T) {
	r := resolverFor(t, 100)
	assert.Equal(t, `("Read", "Exec")`, decodeString(t, r, "Permissions", []byte{5}))
}

func TestPalletScopedTypesWin(t *testing.T) {
	r := resolverFor(t, 100)
	c := scale.NewCursor([]byte{1, 0, 0, 0})
	v, err := r.Decode(c, historic.MustParseLookupName("T::Balance").InPallet("Staking"))
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())
	assert.Zero(t, c.Remaining())
}

func TestDecodeBuiltins(t *testing.T) {
	r := resolverFor(t, 100)

	var vec scale.Encoder
	vec.Compact(2).U16(1).U16(2)
	assert.Equal(t, "(1, 2)", decodeString(t, r, "Vec<u16>", vec.Bytes()))

	assert.Equal(t, "None", decodeString(t, r, "Option<u32>", []byte{0}))
	assert.Equal(t, "Some(false)", decodeString(t, r, "Option<bool>", []byte{2}))
	assert.Equal(t, "Err(3)", decodeString(t, r, "Result<(), u8>", []byte{1, 3}))
	assert.Equal(t, "-1", decodeString(t, r, "i16", []byte{0xff, 0xff}))
	assert.Equal(t, "Immortal", decodeString(t, r, "T::Era", []byte{0}))
	assert.Equal(t, "((1, 2), (3, 4))", decodeString(t, r, "BTreeMap<u8, u16>", []byte{8, 1, 2, 0, 3, 4, 0}))
	assert.Equal(t, "<101>", decodeString(t, r, "BitVec<Lsb0, u8>", []byte{12, 0b101}))
}

func TestDecodeMortalEra(t *testing.T) {
	r := resolverFor(t, 100)
	// period 64, phase 42 encodes as 0xa5 0x02.
	assert.Equal(t, "Mortal { period: 64, phase: 42 }", decodeString(t, r, "Era", []byte{0xa5, 0x02}))
}

func TestCallResolvesToPrependedEnum(t *testing.T) {
	chain, err := historic.ParseChainRegistry([]byte(chainTypes))
	require.NoError(t, err)
	types := chain.ForSpecVersion(100)

	calls := historic.NewRegistry()
	require.NoError(t, calls.Insert("builtin::Call", historic.Enum{Variants: []historic.Variant{
		{Index: 0, Name: "System", Fields: []historic.Field{{Type: historic.MustParseLookupName("u8")}}},
	}}))
	types.Prepend(calls)

	r := historic.NewResolver(types)
	assert.Equal(t, "(System(7))", decodeString(t, r, "Vec<<T as Trait>::Call>", []byte{4, 0, 7}))
}

func TestRegistryCallWinsOverBuiltin(t *testing.T) {
	chain, err := historic.ParseChainRegistry([]byte(chainTypes))
	require.NoError(t, err)
	types := chain.ForSpecVersion(100)

	calls := historic.NewRegistry()
	require.NoError(t, calls.Insert("builtin::Call", historic.Enum{Variants: []historic.Variant{
		{Index: 0, Name: "System", Fields: []historic.Field{{Type: historic.MustParseLookupName("u8")}}},
	}}))
	require.NoError(t, calls.Insert("Call", historic.Alias{Target: historic.MustParseLookupName("u16")}))
	types.Prepend(calls)

	r := historic.NewResolver(types)
	assert.Equal(t, "513", decodeString(t, r, "Call", []byte{1, 2}))
}

func TestZeroSizedSequenceLongerThanInput(t *testing.T) {
	r := resolverFor(t, 100)

	var e scale.Encoder
	e.Compact(1 << 24)
	for _, name := range []string{"Vec<()>", "Vec<Null>"} {
		_, err := r.Decode(scale.NewCursor(e.Bytes()), historic.MustParseLookupName(name))
		require.ErrorIs(t, err, scale.ErrZeroSizedSequence, name)
	}
	_, err := r.Decode(scale.NewCursor(nil), historic.MustParseLookupName("[(); 1000]"))
	require.ErrorIs(t, err, scale.ErrZeroSizedSequence)

	// A short run still decodes when the input covers it.
	c := scale.NewCursor([]byte{8})
	_, err = r.Decode(c, historic.MustParseLookupName("Vec<()>"))
	require.NoError(t, err)
	assert.Zero(t, c.Remaining())
}

func TestUnknownTypeIsSchemaError(t *testing.T) {
	r := resolverFor(t, 100)
	_, err := r.Decode(scale.NewCursor([]byte{0}), historic.MustParseLookupName("Mystery"))
	require.Error(t, err)
	assert.True(t, schema.IsKind(err, schema.TypeNotFound))
}

func TestPrependTakesPriority(t *testing.T) {
	chain, err := historic.ParseChainRegistry([]byte(chainTypes))
	require.NoError(t, err)
	types := chain.ForSpecVersion(100)

	override := historic.NewRegistry()
	require.NoError(t, override.Insert("Balance", historic.Alias{Target: historic.MustParseLookupName("u8")}))
	types.Prepend(override)

	assert.Equal(t, "9", decodeString(t, historic.NewResolver(types), "Balance", []byte{9}))
}
