package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies schema failures.
type ErrorKind string

const (
	UnsupportedMetadata ErrorKind = "unsupported metadata"
	PalletNotFound      ErrorKind = "pallet not found"
	CallNotFound        ErrorKind = "call not found"
	NoCalls             ErrorKind = "pallet has no calls"
	StorageNotFound     ErrorKind = "storage entry not found"
	HasherMismatch      ErrorKind = "hasher count does not match key count"
	InvalidTypeName     ErrorKind = "invalid type name"
	TypeNotFound        ErrorKind = "type not found"
	InvalidMetadata     ErrorKind = "invalid metadata"
)

// Error is a schema lookup failure. It is fatal to the decode operation that
// raised it and is never retried.
type Error struct {
	Kind   ErrorKind
	Pallet string
	Item   string // call or storage entry name, when known
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("schema: ")
	sb.WriteString(string(e.Kind))
	if e.Pallet != "" || e.Item != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Pallet)
		if e.Item != "" {
			sb.WriteString(".")
			sb.WriteString(e.Item)
		}
		sb.WriteString(")")
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, &schema.Error{Kind: schema.CallNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// IsKind reports whether err is a schema error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == kind
}

func hasherCountDetail(hashers, keys int) string {
	return fmt.Sprintf("%d hashers for %d keys", hashers, keys)
}
