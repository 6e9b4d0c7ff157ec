package rpc

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Bytes is a byte string carried as "0x" prefixed hex on the wire.
type Bytes []byte

// MarshalJSON encodes b as 0x-prefixed hex.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(b))
}

// UnmarshalJSON decodes 0x-prefixed hex.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	out, err := DecodeHex(s)
	if err != nil {
		return err
	}
	*b = out
	return nil
}

func (b Bytes) String() string { return "0x" + hex.EncodeToString(b) }

// DecodeHex decodes a hex string with an optional 0x prefix.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("rpc: invalid hex: %w", err)
	}
	return out, nil
}

// BlockNumber is a block height, which nodes send as a hex string.
type BlockNumber uint64

// UnmarshalJSON accepts a hex string or a plain JSON number.
func (n *BlockNumber) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var u uint64
		if err := json.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("rpc: invalid block number %s", data)
		}
		*n = BlockNumber(u)
		return nil
	}
	u, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("rpc: invalid block number %q: %w", s, err)
	}
	*n = BlockNumber(u)
	return nil
}

// Header is a block header, without its digest.
type Header struct {
	ParentHash     Bytes       `json:"parentHash"`
	Number         BlockNumber `json:"number"`
	StateRoot      Bytes       `json:"stateRoot"`
	ExtrinsicsRoot Bytes       `json:"extrinsicsRoot"`
}

// Block is a block body with its header.
type Block struct {
	Header     Header  `json:"header"`
	Extrinsics []Bytes `json:"extrinsics"`
}

// SignedBlock is the result of chain_getBlock.
type SignedBlock struct {
	Block Block `json:"block"`
}

// RuntimeVersion is the result of state_getRuntimeVersion.
type RuntimeVersion struct {
	SpecName           string `json:"specName"`
	ImplName           string `json:"implName"`
	SpecVersion        uint32 `json:"specVersion"`
	ImplVersion        uint32 `json:"implVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
}
