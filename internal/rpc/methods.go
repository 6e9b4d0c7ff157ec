package rpc

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the node has no block at the requested height.
var ErrNotFound = errors.New("rpc: not found")

// at returns the trailing block hash param, omitted when hash is nil so the
// node answers at its best block.
func at(hash Bytes) []any {
	if hash == nil {
		return nil
	}
	return []any{hash}
}

// ChainGetBlockHash returns the hash of block n.
func (c *Client) ChainGetBlockHash(ctx context.Context, n uint64) (Bytes, error) {
	var hash *Bytes
	if err := c.Call(ctx, "chain_getBlockHash", &hash, n); err != nil {
		return nil, err
	}
	if hash == nil {
		return nil, fmt.Errorf("rpc: block %d: %w", n, ErrNotFound)
	}
	return *hash, nil
}

// ChainGetBlock returns the block with the given hash.
func (c *Client) ChainGetBlock(ctx context.Context, hash Bytes) (*Block, error) {
	var sb *SignedBlock
	if err := c.Call(ctx, "chain_getBlock", &sb, at(hash)...); err != nil {
		return nil, err
	}
	if sb == nil {
		return nil, fmt.Errorf("rpc: block %s: %w", hash, ErrNotFound)
	}
	return &sb.Block, nil
}

// ChainGetHeader returns the header of the given block, or of the best
// block when hash is nil.
func (c *Client) ChainGetHeader(ctx context.Context, hash Bytes) (*Header, error) {
	var h *Header
	if err := c.Call(ctx, "chain_getHeader", &h, at(hash)...); err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("rpc: header %s: %w", hash, ErrNotFound)
	}
	return h, nil
}

// StateGetRuntimeVersion returns the runtime version in force at hash.
func (c *Client) StateGetRuntimeVersion(ctx context.Context, hash Bytes) (*RuntimeVersion, error) {
	var v RuntimeVersion
	if err := c.Call(ctx, "state_getRuntimeVersion", &v, at(hash)...); err != nil {
		return nil, err
	}
	return &v, nil
}

// StateGetMetadata returns the raw metadata bytes in force at hash.
func (c *Client) StateGetMetadata(ctx context.Context, hash Bytes) ([]byte, error) {
	var md Bytes
	if err := c.Call(ctx, "state_getMetadata", &md, at(hash)...); err != nil {
		return nil, err
	}
	return md, nil
}

// StateGetStorage returns the value stored under key at hash. The boolean
// is false when no value is stored.
func (c *Client) StateGetStorage(ctx context.Context, key []byte, hash Bytes) ([]byte, bool, error) {
	var v *Bytes
	if err := c.Call(ctx, "state_getStorage", &v, append([]any{Bytes(key)}, at(hash)...)...); err != nil {
		return nil, false, err
	}
	if v == nil {
		return nil, false, nil
	}
	return *v, true, nil
}

// StateGetKeysPaged returns up to count keys with the given prefix that sort
// after startKey, at hash.
func (c *Client) StateGetKeysPaged(ctx context.Context, prefix []byte, count uint32, startKey []byte, hash Bytes) ([][]byte, error) {
	var start any
	if startKey != nil {
		start = Bytes(startKey)
	}
	params := []any{Bytes(prefix), count, start}
	params = append(params, at(hash)...)
	var keys []Bytes
	if err := c.Call(ctx, "state_getKeysPaged", &keys, params...); err != nil {
		return nil, err
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out, nil
}
