package decode_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/decode"
	"github.com/ashita-ai/kiroku/internal/hashing"
	"github.com/ashita-ai/kiroku/internal/metadata"
	"github.com/ashita-ai/kiroku/internal/metadata/metadatatest"
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/schema"
)

var allHashers = []schema.Hasher{
	schema.Blake2_128, schema.Blake2_256, schema.Blake2_128Concat,
	schema.Twox128, schema.Twox256, schema.Twox64Concat, schema.Identity,
}

// hasherMetadata adds a "Test" pallet with one u32 -> u8 map per hasher,
// each entry named after its hasher.
func hasherMetadata() *metadata.V14 {
	md := metadatatest.V14()
	key := metadatatest.TypeU32
	storage := &metadata.PalletStorage{Prefix: "Test"}
	for _, h := range allHashers {
		storage.Entries = append(storage.Entries, metadata.PalletStorageEntry{
			Name: h.String(), Hashers: []schema.Hasher{h}, Key: &key, Value: metadatatest.TypeU8,
		})
	}
	md.Pallets = append(md.Pallets, metadata.Pallet{Name: "Test", Storage: storage, Index: 9})
	return md
}

func storageKey(pallet, entry string, parts ...[]byte) []byte {
	return append(hashing.StoragePrefix(pallet, entry), bytes.Join(parts, nil)...)
}

func TestStorageKeyRoundTripEveryHasher(t *testing.T) {
	d, err := decode.NewStorageDecoder(hasherMetadata(), nil)
	require.NoError(t, err)

	encoded := new(scale.Encoder).U32(42).Bytes()
	for _, h := range allHashers {
		t.Run(h.String(), func(t *testing.T) {
			key := storageKey("Test", h.String(), h.Hash(encoded))
			keys, err := d.DecodeKey("Test", h.String(), key)
			require.NoError(t, err)
			require.Len(t, keys, 1)
			assert.Equal(t, h, keys[0].Hasher)
			assert.Len(t, keys[0].Hash, h.HashLen())
			if h.Reversible() {
				require.NotNil(t, keys[0].Value, "reversible keys carry the value")
				assert.Equal(t, "42", keys[0].Value.String())
			} else {
				assert.Nil(t, keys[0].Value, "one-way keys carry only the hash")
			}
		})
	}
}

func TestStorageKeysLegacy(t *testing.T) {
	md := metadatatest.LegacyV12()
	d, err := decode.NewStorageDecoder(md, legacyTypes(t, md))
	require.NoError(t, err)

	key := storageKey("System", "Account", schema.Blake2_128Concat.Hash(alice))
	keys, err := d.DecodeKey("System", "Account", key)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, hashing.Blake2_128(alice), keys[0].Hash)
	assert.Equal(t, "0xd43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d", keys[0].Value.String())

	value := new(scale.Encoder).U32(5).U64(100).U64(0).Bytes()
	v, err := d.DecodeValue("System", "Account", value)
	require.NoError(t, err)
	assert.Equal(t, "{ nonce: 5, free: 100 }", v.String())

	pairKey := storageKey("Balances", "Pairs",
		schema.Twox64Concat.Hash(new(scale.Encoder).U32(7).Bytes()),
		schema.Blake2_128.Hash(alice))
	keys, err = d.DecodeKey("Balances", "Pairs", pairKey)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "7", keys[0].Value.String())
	assert.Nil(t, keys[1].Value)
	assert.Equal(t, "twox64_concat: 7 + blake2_128: 0x"+hexOf(hashing.Blake2_128(alice)), decode.FormatKeys(keys))
}

func TestStorageIterability(t *testing.T) {
	d, err := decode.NewStorageDecoder(metadatatest.V15(), nil)
	require.NoError(t, err)

	plain, err := d.IsIterable("Timestamp", "Now")
	require.NoError(t, err)
	assert.False(t, plain)

	keys, err := d.DecodeKey("Timestamp", "Now", hashing.StoragePrefix("Timestamp", "Now"))
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Equal(t, "plain", decode.FormatKeys(keys))

	mapped, err := d.IsIterable("System", "Account")
	require.NoError(t, err)
	assert.True(t, mapped)

	prefix, err := d.Prefix("System", "Account")
	require.NoError(t, err)
	assert.Len(t, prefix, decode.PrefixLen)
	assert.Equal(t, "26aa394eea5630e07c48ae0c9558cef7b99d880ec681799c0cf30e8886371da9", hexOf(prefix))

	_, err = d.IsIterable("System", "Missing")
	assert.True(t, schema.IsKind(err, schema.StorageNotFound))
}

func TestStoragePrefixMismatch(t *testing.T) {
	d, err := decode.NewStorageDecoder(metadatatest.V14(), nil)
	require.NoError(t, err)

	key := storageKey("System", "Account", schema.Blake2_128Concat.Hash(alice))
	key[3] ^= 0xff
	_, err = d.DecodeKey("System", "Account", key)
	assert.ErrorIs(t, err, decode.ErrPrefixMismatch)

	_, err = d.DecodeKey("System", "Account", key[:10])
	assert.ErrorIs(t, err, decode.ErrPrefixMismatch)
}

func TestStorageLeftoverBytes(t *testing.T) {
	d, err := decode.NewStorageDecoder(hasherMetadata(), nil)
	require.NoError(t, err)

	encoded := new(scale.Encoder).U32(42).Bytes()
	for _, h := range allHashers {
		key := append(storageKey("Test", h.String(), h.Hash(encoded)), 0xee)
		_, err := d.DecodeKey("Test", h.String(), key)
		var de *decode.Error
		require.ErrorAs(t, err, &de, h.String())
		assert.Equal(t, decode.LeftoverBytes, de.Kind)
		assert.Len(t, de.Keys, 1)
		assert.Equal(t, []byte{0xee}, de.Leftover)
	}

	_, err = d.DecodeValue("Test", "identity", []byte{1, 2})
	assert.ErrorIs(t, err, decode.ErrLeftoverBytes)

	_, err = d.DecodeKey("Test", "twox_256", storageKey("Test", "twox_256", []byte{1, 2}))
	assert.ErrorIs(t, err, decode.ErrMalformedLength)
}

func TestDefaultValue(t *testing.T) {
	d, err := decode.NewStorageDecoder(metadatatest.V14(), nil)
	require.NoError(t, err)

	v, ok, err := d.DefaultValue("System", "Account")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "{ nonce: 0, free: 0 }", v.String())

	_, ok, err = d.DefaultValue("Balances", "Pairs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodeItemSkipPolicy(t *testing.T) {
	d, err := decode.NewStorageDecoder(metadatatest.V14(), nil)
	require.NoError(t, err)

	key := storageKey("System", "Account", schema.Blake2_128Concat.Hash(alice))
	bad := []byte{1, 2, 3}
	policy := decode.NewSkipPolicy(decode.SkipRule{Key: key, FromSpec: 100, Reason: "corrupt"})

	skipped := d.DecodeItem("System", "Account", key, bad, 100, policy)
	require.NoError(t, skipped.Err)
	assert.Equal(t, "corrupt", skipped.Skipped)
	// The placeholder is a string value, rendered quoted like any other.
	assert.Equal(t, `"<skipped: corrupt>"`, skipped.Value.String())

	// Below the floor the entry decodes normally and fails.
	failed := d.DecodeItem("System", "Account", key, bad, 99, policy)
	assert.Empty(t, failed.Skipped)
	assert.Error(t, failed.Err)
	assert.Len(t, failed.Keys, 1)

	good := new(scale.Encoder).U32(1).U64(2).U64(0).Bytes()
	ok := d.DecodeItem("System", "Account", key, good, 99, nil)
	require.NoError(t, ok.Err)
	assert.Equal(t, "{ nonce: 1, free: 2 }", ok.Value.String())
}

func TestParseSkipRules(t *testing.T) {
	rules, err := decode.ParseSkipRules("0x0102@30, 0a0b ,")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, []byte{1, 2}, rules[0].Key)
	assert.Equal(t, uint32(30), rules[0].FromSpec)
	assert.Equal(t, []byte{0x0a, 0x0b}, rules[1].Key)
	assert.Zero(t, rules[1].FromSpec)

	_, err = decode.ParseSkipRules("zz")
	assert.Error(t, err)
	_, err = decode.ParseSkipRules("0x01@x")
	assert.Error(t, err)

	p := decode.NewSkipPolicy(rules...)
	rules[0].Key[0] = 9
	_, matched := p.Match([]byte{1, 2}, 30)
	assert.True(t, matched, "policy keeps its own copy")
}
