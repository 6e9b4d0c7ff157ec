package scale

import "fmt"

// ReadBits reads a bit sequence: a compact bit count followed by the bits
// packed into store words of storeBytes each. msb selects most significant
// bit first ordering within each word.
func (c *Cursor) ReadBits(storeBytes int, msb bool) ([]bool, error) {
	switch storeBytes {
	case 1, 2, 4, 8:
	default:
		return nil, fmt.Errorf("scale: unsupported bit store width %d", storeBytes)
	}
	n, err := c.ReadLen()
	if err != nil {
		return nil, err
	}
	storeBits := storeBytes * 8
	words := (n + storeBits - 1) / storeBits
	raw, err := c.ReadBytes(words * storeBytes)
	if err != nil {
		return nil, err
	}
	bits := make([]bool, n)
	for i := range n {
		word := raw[(i/storeBits)*storeBytes : (i/storeBits+1)*storeBytes]
		bit := i % storeBits
		if msb {
			bit = storeBits - 1 - bit
		}
		// Words are little-endian.
		bits[i] = word[bit/8]>>(bit%8)&1 == 1
	}
	return bits, nil
}
