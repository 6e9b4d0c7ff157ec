package decode

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies decode failures.
type ErrorKind string

const (
	MalformedLength    ErrorKind = "malformed length"
	UnsupportedVersion ErrorKind = "unsupported extrinsic version"
	LeftoverBytes      ErrorKind = "leftover bytes"
	PrefixMismatch     ErrorKind = "storage prefix mismatch"
	InvalidValue       ErrorKind = "invalid value"
)

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrMalformedLength    = &Error{Kind: MalformedLength}
	ErrUnsupportedVersion = &Error{Kind: UnsupportedVersion}
	ErrLeftoverBytes      = &Error{Kind: LeftoverBytes}
	ErrPrefixMismatch     = &Error{Kind: PrefixMismatch}
	ErrInvalidValue       = &Error{Kind: InvalidValue}
)

// Error is a failure to decode one extrinsic or storage item. It carries
// whatever was decoded before the failure.
type Error struct {
	Kind   ErrorKind
	Pallet string
	// Item is the call or storage entry name.
	Item   string
	Detail string
	// Args holds call arguments decoded before the failure.
	Args []Field
	// Keys holds storage key parts decoded before the failure.
	Keys     []StorageKey
	Leftover []byte
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("decode: ")
	sb.WriteString(string(e.Kind))
	if e.Pallet != "" {
		fmt.Fprintf(&sb, " in %s.%s", e.Pallet, e.Item)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	if len(e.Leftover) > 0 {
		fmt.Fprintf(&sb, ": %d leftover bytes 0x%x", len(e.Leftover), e.Leftover)
	}
	if len(e.Args) > 0 {
		sb.WriteString(" (decoded")
		for _, a := range e.Args {
			fmt.Fprintf(&sb, " %s: %s", a.Name, a.Value)
		}
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// IsKind reports whether err is a decode error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == kind
}
