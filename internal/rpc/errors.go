package rpc

import (
	"encoding/json"
	"fmt"
)

// CodeOversized is the error code nodes use when a response would exceed
// their configured maximum size.
const CodeOversized = -32008

// Error is a JSON-RPC error object returned by the node.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("node error %d: %s (%s)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("node error %d: %s", e.Code, e.Message)
}

// Is reports oversized-response errors as ErrOversized.
func (e *Error) Is(target error) bool {
	return target == ErrOversized && e.Code == CodeOversized
}
