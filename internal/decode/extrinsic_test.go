package decode_test

import (
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/decode"
	"github.com/ashita-ai/kiroku/internal/historic"
	"github.com/ashita-ai/kiroku/internal/metadata"
	"github.com/ashita-ai/kiroku/internal/metadata/metadatatest"
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
)

var alice, _ = hex.DecodeString("d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")

const aliceSS58 = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

func legacyTypes(t *testing.T, md *metadata.Legacy) *historic.RegistrySet {
	t.Helper()
	chain, err := historic.ParseChainRegistry([]byte(metadatatest.ChainTypes))
	require.NoError(t, err)
	builtins, err := metadata.BuiltinTypes(md)
	require.NoError(t, err)
	types := chain.ForSpecVersion(1)
	types.Prepend(builtins)
	return types
}

func prefixed(body []byte) []byte {
	return append(scale.EncodeCompact(uint64(len(body))), body...)
}

func signature() []byte {
	sig := make([]byte, 64)
	for i := range sig {
		sig[i] = byte(i)
	}
	return sig
}

// legacyTransfer encodes Balances.transfer(bob, 12345) for LegacyV12.
func legacyTransfer(e *scale.Encoder) {
	bob := make([]byte, 32)
	bob[0] = 0xb0
	e.U8(5).U8(0).Raw(bob).Compact(12345)
}

func TestDecodeLegacyUnsigned(t *testing.T) {
	md := metadatatest.LegacyV12()
	var e scale.Encoder
	e.U8(0x04)
	legacyTransfer(&e)

	ext, err := decode.DecodeExtrinsic(prefixed(e.Bytes()), md, legacyTypes(t, md))
	require.NoError(t, err)
	assert.Equal(t, decode.Unsigned, ext.Kind)
	assert.Equal(t, uint8(4), ext.Version)
	assert.Empty(t, ext.Address)
	assert.Empty(t, ext.Extensions)
	assert.Equal(t, "Balances", ext.Call.Pallet)
	assert.Equal(t, "transfer", ext.Call.Name)
	require.Len(t, ext.Call.Args, 2)
	assert.Equal(t, "dest", ext.Call.Args[0].Name)
	assert.Equal(t, "0xb0"+hex.EncodeToString(make([]byte, 31)), ext.Call.Args[0].Value.String())
	assert.Equal(t, "12345", ext.Call.Args[1].Value.String())
	assert.Equal(t, "Compact<T::Balance>", ext.Call.Args[1].Value.Context)
}

func TestDecodeLegacySigned(t *testing.T) {
	md := metadatatest.LegacyV12()
	var e scale.Encoder
	e.U8(0x84).Raw(alice)
	e.U8(1).Raw(signature()) // MultiSignature::Sr25519
	e.U8(0).Compact(3).Compact(0)
	e.U8(0).U8(0).ByteVec([]byte("hello"))
	data := prefixed(e.Bytes())

	ext, err := decode.DecodeExtrinsic(data, md, legacyTypes(t, md))
	require.NoError(t, err)
	assert.Equal(t, decode.Signed, ext.Kind)
	assert.Equal(t, aliceSS58, ext.Address)
	assert.Equal(t, alice, data[ext.AddressSpan.Start:ext.AddressSpan.End])
	assert.Equal(t, "0x01"+hex.EncodeToString(signature()), ext.Signature)

	var names []string
	for _, x := range ext.Extensions {
		names = append(names, x.Name)
	}
	assert.Equal(t, []string{"CheckMortality", "CheckNonce", "ChargeTransactionPayment"}, names)
	assert.Equal(t, "3", ext.Extensions[1].Value.String())
	assert.Equal(t, "System", ext.Call.Pallet)
	assert.Equal(t, "remark", ext.Call.Name)
	assert.Equal(t, "0x68656c6c6f", ext.Call.Args[0].Value.String())
}

func TestDecodeLegacyNestedBatch(t *testing.T) {
	md := metadatatest.LegacyV12()
	var e scale.Encoder
	e.U8(0x04).U8(6).U8(0).Compact(2)
	legacyTransfer(&e)
	legacyTransfer(&e)

	ext, err := decode.DecodeExtrinsic(prefixed(e.Bytes()), md, legacyTypes(t, md))
	require.NoError(t, err)
	assert.Equal(t, "batch", ext.Call.Name)
	assert.Contains(t, ext.Call.Args[0].Value.String(), "Balances(transfer { dest: 0xb0")
}

// modernTransfer encodes Balances.transfer_keep_alive(Id(bob), 500).
func modernTransfer(e *scale.Encoder) {
	bob := make([]byte, 32)
	bob[0] = 0xb0
	e.U8(5).U8(3).U8(0).Raw(bob).Compact(500)
}

func modernEnvelopes() map[string][]byte {
	unsigned := new(scale.Encoder).U8(0x04)
	modernTransfer(unsigned)

	signed := new(scale.Encoder).U8(0x84)
	signed.U8(0).Raw(alice)       // MultiAddress::Id
	signed.U8(0).Raw(signature()) // MultiSignature::Ed25519
	signed.U8(1).U8(7).Compact(9).Compact(100)
	modernTransfer(signed)

	general := new(scale.Encoder).U8(0x45).U8(0)
	general.U8(0).Compact(9).Compact(0)
	modernTransfer(general)

	return map[string][]byte{
		"unsigned": prefixed(unsigned.Bytes()),
		"signed":   prefixed(signed.Bytes()),
		"general":  prefixed(general.Bytes()),
	}
}

func TestDecodeModernEnvelopes(t *testing.T) {
	for _, md := range []metadata.Metadata{metadatatest.V14(), metadatatest.V15()} {
		envelopes := modernEnvelopes()

		ext, err := decode.DecodeExtrinsic(envelopes["unsigned"], md, nil)
		require.NoError(t, err)
		assert.Equal(t, decode.Unsigned, ext.Kind)
		assert.Equal(t, "transfer_keep_alive", ext.Call.Name)
		assert.Equal(t, "500", ext.Call.Args[1].Value.String())

		ext, err = decode.DecodeExtrinsic(envelopes["signed"], md, nil)
		require.NoError(t, err)
		assert.Equal(t, decode.Signed, ext.Kind)
		// MultiAddress is 33 bytes, so it renders as hex.
		assert.Equal(t, "0x00"+hex.EncodeToString(alice), ext.Address)
		assert.Equal(t, "0x00"+hex.EncodeToString(signature()), ext.Signature)
		require.Len(t, ext.Extensions, 3)
		assert.Equal(t, "Mortal1(7)", ext.Extensions[0].Value.String())
		assert.Equal(t, "9", ext.Extensions[1].Value.String())
		assert.Equal(t, "(100)", ext.Extensions[2].Value.String())

		ext, err = decode.DecodeExtrinsic(envelopes["general"], md, nil)
		require.NoError(t, err)
		assert.Equal(t, decode.General, ext.Kind)
		assert.Equal(t, uint8(5), ext.Version)
		assert.Empty(t, ext.Address)
		assert.Empty(t, ext.Signature)
		assert.Len(t, ext.Extensions, 3)
		assert.Equal(t, "Balances", ext.Call.Pallet)
	}
}

func TestLeftoverBytesAlwaysFail(t *testing.T) {
	md := metadatatest.V14()
	for name, data := range modernEnvelopes() {
		for _, suffix := range [][]byte{{0}, {1, 2, 3}} {
			// Bytes after the declared length.
			_, err := decode.DecodeExtrinsic(append(append([]byte{}, data...), suffix...), md, nil)
			assert.ErrorIs(t, err, decode.ErrLeftoverBytes, name)

			// Bytes inside the declared length but after the call.
			_, n := splitPrefix(t, data)
			body := append(append([]byte{}, n...), suffix...)
			_, err = decode.DecodeExtrinsic(prefixed(body), md, nil)
			var de *decode.Error
			require.ErrorAs(t, err, &de, name)
			assert.Equal(t, decode.LeftoverBytes, de.Kind)
			assert.Equal(t, "Balances", de.Pallet)
			assert.Equal(t, "transfer_keep_alive", de.Item)
			assert.Len(t, de.Args, 2)
			assert.Equal(t, suffix, de.Leftover)
		}
	}
}

func splitPrefix(t *testing.T, data []byte) ([]byte, []byte) {
	t.Helper()
	c := scale.NewCursor(data)
	_, err := c.ReadLen()
	require.NoError(t, err)
	return data[:c.Pos()], c.Rest()
}

func TestNonStrictLengthIgnoresTrailingBytes(t *testing.T) {
	data := append(modernEnvelopes()["unsigned"], 0xff)
	ext, err := decode.DecodeExtrinsic(data, metadatatest.V14(), nil, decode.WithStrictLength(false))
	require.NoError(t, err)
	assert.Equal(t, "transfer_keep_alive", ext.Call.Name)
}

func TestMalformedLength(t *testing.T) {
	data := modernEnvelopes()["unsigned"]
	_, err := decode.DecodeExtrinsic(data[:len(data)-1], metadatatest.V14(), nil)
	assert.ErrorIs(t, err, decode.ErrMalformedLength)

	_, err = decode.DecodeExtrinsic(nil, metadatatest.V14(), nil)
	assert.ErrorIs(t, err, decode.ErrMalformedLength)
}

func TestUnsupportedEnvelope(t *testing.T) {
	for _, v := range []byte{0x03, 0x05, 0x85, 0x44} {
		_, err := decode.DecodeExtrinsic(prefixed([]byte{v, 0, 0}), metadatatest.V14(), nil)
		assert.ErrorIs(t, err, decode.ErrUnsupportedVersion, "0x%02x", v)
		assert.False(t, errors.Is(err, decode.ErrLeftoverBytes))
	}
}

func TestUnknownCallIsSchemaError(t *testing.T) {
	_, err := decode.DecodeExtrinsic(prefixed([]byte{0x04, 5, 9}), metadatatest.V14(), nil)
	assert.True(t, schema.IsKind(err, schema.CallNotFound))
}

func TestInvalidArgumentKeepsDecodedArgs(t *testing.T) {
	// Valid dest, then a truncated compact value.
	var e scale.Encoder
	e.U8(0x04).U8(5).U8(3).U8(0).Raw(alice).U8(0x03)
	_, err := decode.DecodeExtrinsic(prefixed(e.Bytes()), metadatatest.V14(), nil)
	var de *decode.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, decode.InvalidValue, de.Kind)
	require.Len(t, de.Args, 1)
	assert.Equal(t, "dest", de.Args[0].Name)
}

func TestSS58PrefixOption(t *testing.T) {
	md := metadatatest.LegacyV12()
	var e scale.Encoder
	e.U8(0x84).Raw(alice).U8(1).Raw(signature()).U8(0).Compact(0).Compact(0)
	e.U8(0).U8(0).ByteVec(nil)

	ext, err := decode.DecodeExtrinsic(prefixed(e.Bytes()), md, legacyTypes(t, md), decode.WithSS58Prefix(0))
	require.NoError(t, err)
	assert.Equal(t, "15oF4uVJwmo4TdGW7VfQxNLavjCXviqxT9S1MgbjMNHr6Sp5", ext.Address)
}

func hexOf(b []byte) string { return hex.EncodeToString(b) }
