// Package ss58 renders account identifiers in the SS58 address format.
package ss58

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// DefaultPrefix is the generic Substrate network prefix.
const DefaultPrefix uint16 = 42

var checksumPreimage = []byte("SS58PRE")

// ErrInvalidAddress is returned by Decode for malformed or mis-checksummed input.
var ErrInvalidAddress = errors.New("ss58: invalid address")

// Encode renders a public key under the given network prefix. Prefixes up to
// 16383 are supported.
func Encode(pub []byte, prefix uint16) (string, error) {
	if prefix >= 1<<14 {
		return "", fmt.Errorf("ss58: prefix %d out of range", prefix)
	}
	ident := prefixBytes(prefix)
	payload := append(append([]byte{}, ident...), pub...)
	sum := checksum(payload)
	return base58.Encode(append(payload, sum[:checksumLen(len(pub))]...)), nil
}

// Decode parses an address and returns the prefix and public key bytes.
func Decode(addr string) (uint16, []byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) < 3 {
		return 0, nil, ErrInvalidAddress
	}
	var prefix uint16
	identLen := 1
	if raw[0]&0b0100_0000 != 0 {
		identLen = 2
		lower := (raw[0]&0b0011_1111)<<2 | raw[1]>>6
		upper := raw[1] & 0b0011_1111
		prefix = uint16(lower) | uint16(upper)<<8
	} else {
		prefix = uint16(raw[0])
	}
	body := raw[identLen:]
	// Keys of up to 8 bytes carry a 1-byte checksum.
	csLen := 2
	if len(body) <= 9 {
		csLen = 1
	}
	if len(body) <= csLen || checksumLen(len(body)-csLen) != csLen {
		return 0, nil, ErrInvalidAddress
	}
	pub := body[:len(body)-csLen]
	sum := checksum(raw[:len(raw)-csLen])
	if !bytes.Equal(sum[:csLen], raw[len(raw)-csLen:]) {
		return 0, nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidAddress)
	}
	return prefix, pub, nil
}

func prefixBytes(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	first := byte((prefix&0b0000_0000_1111_1100)>>2) | 0b0100_0000
	second := byte(prefix>>8) | byte(prefix&0b11)<<6
	return []byte{first, second}
}

func checksumLen(keyLen int) int {
	if keyLen <= 8 {
		return 1
	}
	return 2
}

func checksum(payload []byte) [64]byte {
	return blake2b.Sum512(append(append([]byte{}, checksumPreimage...), payload...))
}
