package schema

import (
	"fmt"

	"github.com/ashita-ai/kiroku/internal/hashing"
)

// Hasher is a storage key hasher.
type Hasher uint8

const (
	Blake2_128 Hasher = iota
	Blake2_256
	Blake2_128Concat
	Twox128
	Twox256
	Twox64Concat
	Identity
)

var hasherNames = [...]string{
	Blake2_128:       "blake2_128",
	Blake2_256:       "blake2_256",
	Blake2_128Concat: "blake2_128_concat",
	Twox128:          "twox_128",
	Twox256:          "twox_256",
	Twox64Concat:     "twox64_concat",
	Identity:         "identity",
}

func (h Hasher) String() string {
	if int(h) < len(hasherNames) {
		return hasherNames[h]
	}
	return fmt.Sprintf("hasher(%d)", uint8(h))
}

// MarshalText renders the hasher name.
func (h Hasher) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// HashLen is the number of hash bytes the hasher prepends to a key.
func (h Hasher) HashLen() int {
	switch h {
	case Blake2_128, Blake2_128Concat, Twox128:
		return 16
	case Blake2_256, Twox256:
		return 32
	case Twox64Concat:
		return 8
	default:
		return 0
	}
}

// Reversible reports whether the hashed key carries the original key bytes.
func (h Hasher) Reversible() bool {
	return h == Blake2_128Concat || h == Twox64Concat || h == Identity
}

// Hash produces the key bytes stored on chain for an encoded key.
func (h Hasher) Hash(encoded []byte) []byte {
	var prefix []byte
	switch h {
	case Blake2_128, Blake2_128Concat:
		prefix = hashing.Blake2_128(encoded)
	case Blake2_256:
		prefix = hashing.Blake2_256(encoded)
	case Twox128:
		prefix = hashing.Twox128(encoded)
	case Twox256:
		prefix = hashing.Twox256(encoded)
	case Twox64Concat:
		prefix = hashing.Twox64(encoded)
	}
	if !h.Reversible() {
		return prefix
	}
	return append(prefix, encoded...)
}
