package value

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
)

// String renders v compactly on one line. Byte sequences render as 0x-hex.
func (v Value) String() string {
	var sb strings.Builder
	writeCompact(&sb, v)
	return sb.String()
}

func writeCompact(sb *strings.Builder, v Value) {
	switch d := v.Def.(type) {
	case nil:
		sb.WriteString("()")
	case Bool:
		sb.WriteString(strconv.FormatBool(bool(d)))
	case Char:
		sb.WriteString(strconv.QuoteRune(rune(d)))
	case Str:
		sb.WriteString(strconv.Quote(string(d)))
	case Int:
		if d.V == nil {
			sb.WriteString("0")
			return
		}
		sb.WriteString(d.V.String())
	case BitSequence:
		sb.WriteString("<")
		for _, b := range d {
			if b {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		sb.WriteString(">")
	case Composite:
		if b, ok := v.AsBytes(); ok {
			sb.WriteString("0x")
			sb.WriteString(hex.EncodeToString(b))
			return
		}
		writeComposite(sb, d)
	case Variant:
		sb.WriteString(d.Name)
		if len(d.Fields.Values) == 0 {
			return
		}
		if d.Fields.Named() {
			sb.WriteString(" ")
		}
		writeComposite(sb, d.Fields)
	}
}

func writeComposite(sb *strings.Builder, c Composite) {
	if c.Named() {
		sb.WriteString("{ ")
		for i, f := range c.Values {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(c.Names[i])
			sb.WriteString(": ")
			writeCompact(sb, f)
		}
		sb.WriteString(" }")
		return
	}
	sb.WriteString("(")
	for i, f := range c.Values {
		if i > 0 {
			sb.WriteString(", ")
		}
		writeCompact(sb, f)
	}
	sb.WriteString(")")
}

// MarshalJSON renders integers as JSON numbers, byte sequences as hex
// strings, named composites as objects and variants as single-key objects.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v Value) error {
	switch d := v.Def.(type) {
	case nil:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(d)))
	case Char:
		return writeJSONString(buf, string(rune(d)))
	case Str:
		return writeJSONString(buf, string(d))
	case Int:
		if d.V == nil {
			buf.WriteString("0")
		} else {
			buf.WriteString(d.V.String())
		}
	case BitSequence:
		var sb strings.Builder
		for _, b := range d {
			if b {
				sb.WriteByte('1')
			} else {
				sb.WriteByte('0')
			}
		}
		return writeJSONString(buf, sb.String())
	case Composite:
		if b, ok := v.AsBytes(); ok {
			return writeJSONString(buf, "0x"+hex.EncodeToString(b))
		}
		return writeJSONComposite(buf, d)
	case Variant:
		buf.WriteString("{")
		if err := writeJSONString(buf, d.Name); err != nil {
			return err
		}
		buf.WriteString(":")
		if err := writeJSONComposite(buf, d.Fields); err != nil {
			return err
		}
		buf.WriteString("}")
	}
	return nil
}

func writeJSONComposite(buf *bytes.Buffer, c Composite) error {
	if c.Named() {
		buf.WriteString("{")
		for i, f := range c.Values {
			if i > 0 {
				buf.WriteString(",")
			}
			if err := writeJSONString(buf, c.Names[i]); err != nil {
				return err
			}
			buf.WriteString(":")
			if err := writeJSON(buf, f); err != nil {
				return err
			}
		}
		buf.WriteString("}")
		return nil
	}
	buf.WriteString("[")
	for i, f := range c.Values {
		if i > 0 {
			buf.WriteString(",")
		}
		if err := writeJSON(buf, f); err != nil {
			return err
		}
	}
	buf.WriteString("]")
	return nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	buf.Write(b)
	return nil
}
