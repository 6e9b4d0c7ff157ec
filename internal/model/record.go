package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// ExtrinsicRecord is the outcome of decoding one extrinsic. Exactly one of
// Decoded and Error is set.
type ExtrinsicRecord struct {
	RunID       uuid.UUID       `json:"run_id"`
	BlockNumber uint64          `json:"block_number"`
	BlockHash   []byte          `json:"block_hash"`
	SpecVersion uint32          `json:"spec_version"`
	Index       int             `json:"index"`
	Pallet      string          `json:"pallet,omitempty"`
	Call        string          `json:"call,omitempty"`
	Decoded     json.RawMessage `json:"decoded,omitempty"`
	Error       string          `json:"error,omitempty"`
	Bytes       []byte          `json:"bytes,omitempty"`
}

// Failed reports whether the extrinsic could not be decoded.
func (r ExtrinsicRecord) Failed() bool { return r.Error != "" }

// StorageItemRecord is the outcome of decoding one storage key and value.
type StorageItemRecord struct {
	RunID       uuid.UUID       `json:"run_id"`
	BlockNumber uint64          `json:"block_number"`
	SpecVersion uint32          `json:"spec_version"`
	Pallet      string          `json:"pallet"`
	Entry       string          `json:"entry"`
	Key         []byte          `json:"key"`
	Keys        json.RawMessage `json:"keys,omitempty"`
	Value       json.RawMessage `json:"value,omitempty"`
	Skipped     bool            `json:"skipped,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Failed reports whether the item could not be decoded.
func (r StorageItemRecord) Failed() bool { return r.Error != "" }
