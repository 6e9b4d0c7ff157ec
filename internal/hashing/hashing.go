// Package hashing implements the hash functions used to build storage keys.
package hashing

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// Twox64 returns the 8-byte xxHash64 (seed 0) of data, little-endian.
func Twox64(data []byte) []byte {
	return twox(data, 1)
}

// Twox128 returns two concatenated xxHash64 digests with seeds 0 and 1.
func Twox128(data []byte) []byte {
	return twox(data, 2)
}

// Twox256 returns four concatenated xxHash64 digests with seeds 0 through 3.
func Twox256(data []byte) []byte {
	return twox(data, 4)
}

func twox(data []byte, rounds int) []byte {
	out := make([]byte, 0, rounds*8)
	for seed := range rounds {
		d := xxhash.NewWithSeed(uint64(seed))
		_, _ = d.Write(data)
		out = binary.LittleEndian.AppendUint64(out, d.Sum64())
	}
	return out
}

// Blake2_128 returns the 16-byte blake2b digest of data.
func Blake2_128(data []byte) []byte {
	h, err := blake2b.New(16, nil)
	if err != nil {
		panic(err) // size 16 with no key is always valid
	}
	_, _ = h.Write(data)
	return h.Sum(nil)
}

// Blake2_256 returns the 32-byte blake2b digest of data.
func Blake2_256(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// StoragePrefix returns twox128(pallet) ++ twox128(entry), the 32 bytes every
// storage key for an entry starts with.
func StoragePrefix(pallet, entry string) []byte {
	return append(Twox128([]byte(pallet)), Twox128([]byte(entry))...)
}
