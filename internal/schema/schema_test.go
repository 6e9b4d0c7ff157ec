package schema_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/schema"
)

func TestPairHashers(t *testing.T) {
	keys := []string{"A", "B", "C"}

	t.Run("one hasher applies to every key", func(t *testing.T) {
		got, err := schema.PairHashers("P", "E", []schema.Hasher{schema.Twox64Concat}, keys)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, k := range got {
			assert.Equal(t, schema.Twox64Concat, k.Hasher)
			assert.Equal(t, keys[i], k.Type)
		}
	})

	t.Run("one hasher per key pairs positionally", func(t *testing.T) {
		hashers := []schema.Hasher{schema.Blake2_128Concat, schema.Identity, schema.Twox256}
		got, err := schema.PairHashers("P", "E", hashers, keys)
		require.NoError(t, err)
		for i, k := range got {
			assert.Equal(t, hashers[i], k.Hasher)
			assert.Equal(t, keys[i], k.Type)
		}
	})

	t.Run("any other count is a schema error", func(t *testing.T) {
		_, err := schema.PairHashers("P", "E", []schema.Hasher{schema.Identity, schema.Identity}, keys)
		require.Error(t, err)
		assert.True(t, schema.IsKind(err, schema.HasherMismatch))
		assert.Contains(t, err.Error(), "2 hashers for 3 keys")
	})
}

func TestHasherProperties(t *testing.T) {
	tests := []struct {
		h          schema.Hasher
		hashLen    int
		reversible bool
	}{
		{schema.Blake2_128, 16, false},
		{schema.Blake2_256, 32, false},
		{schema.Blake2_128Concat, 16, true},
		{schema.Twox128, 16, false},
		{schema.Twox256, 32, false},
		{schema.Twox64Concat, 8, true},
		{schema.Identity, 0, true},
	}
	key := []byte{1, 2, 3, 4}
	for _, tt := range tests {
		t.Run(tt.h.String(), func(t *testing.T) {
			assert.Equal(t, tt.hashLen, tt.h.HashLen())
			assert.Equal(t, tt.reversible, tt.h.Reversible())

			hashed := tt.h.Hash(key)
			if tt.reversible {
				assert.Len(t, hashed, tt.hashLen+len(key))
				assert.Equal(t, key, hashed[tt.hashLen:])
			} else {
				assert.Len(t, hashed, tt.hashLen)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := &schema.Error{Kind: schema.CallNotFound, Pallet: "Balances", Item: "7"}
	assert.True(t, errors.Is(err, &schema.Error{Kind: schema.CallNotFound}))
	assert.False(t, errors.Is(err, &schema.Error{Kind: schema.NoCalls}))
	assert.Equal(t, "schema: call not found (Balances.7)", err.Error())
}
