package historic

import (
	"fmt"
	"strconv"
	"strings"
)

type nameKind uint8

const (
	kindNamed nameKind = iota
	kindArray
	kindTuple
)

// LookupName is a parsed legacy type name such as "Vec<T::AccountId>",
// "[u8; 32]" or "(Balance, BlockNumber)". Names may be scoped to a pallet,
// in which case pallet-specific definitions take precedence.
type LookupName struct {
	kind   nameKind
	path   []string
	params []LookupName // generic params, tuple elements or the array element
	length uint64
	pallet string
}

// ParseLookupName parses a legacy type string. Newlines and surrounding
// whitespace, which old metadata sometimes contains, are ignored.
func ParseLookupName(s string) (LookupName, error) {
	p := &nameParser{src: sanitize(s)}
	p.skipSpace()
	n, err := p.parseType()
	if err != nil {
		return LookupName{}, fmt.Errorf("historic: parse %q: %w", s, err)
	}
	p.skipSpace()
	if !p.eof() {
		return LookupName{}, fmt.Errorf("historic: parse %q: trailing input at offset %d", s, p.pos)
	}
	return n, nil
}

// MustParseLookupName is ParseLookupName for names known to be valid.
func MustParseLookupName(s string) LookupName {
	n, err := ParseLookupName(s)
	if err != nil {
		panic(err)
	}
	return n
}

func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(s)
}

// InPallet returns the name scoped to the given pallet.
func (n LookupName) InPallet(pallet string) LookupName {
	n.pallet = pallet
	return n
}

// Pallet returns the pallet the name is scoped to, if any.
func (n LookupName) Pallet() string { return n.pallet }

// Path returns the "::" separated path of a named type, or "" for arrays and tuples.
func (n LookupName) Path() string {
	if n.kind != kindNamed {
		return ""
	}
	return strings.Join(n.path, "::")
}

// Params returns generic parameters of a named type.
func (n LookupName) Params() []LookupName {
	if n.kind != kindNamed {
		return nil
	}
	return n.params
}

func (n LookupName) String() string {
	var sb strings.Builder
	n.write(&sb)
	return sb.String()
}

func (n LookupName) write(sb *strings.Builder) {
	switch n.kind {
	case kindArray:
		sb.WriteString("[")
		n.params[0].write(sb)
		sb.WriteString("; ")
		sb.WriteString(strconv.FormatUint(n.length, 10))
		sb.WriteString("]")
	case kindTuple:
		sb.WriteString("(")
		for i, e := range n.params {
			if i > 0 {
				sb.WriteString(", ")
			}
			e.write(sb)
		}
		sb.WriteString(")")
	default:
		sb.WriteString(strings.Join(n.path, "::"))
		if len(n.params) > 0 {
			sb.WriteString("<")
			for i, e := range n.params {
				if i > 0 {
					sb.WriteString(", ")
				}
				e.write(sb)
			}
			sb.WriteString(">")
		}
	}
}

// candidates returns the paths to try when resolving a named type: the full
// path first, then its last segment, so "T::AccountId" finds "AccountId".
func (n LookupName) candidates() []string {
	full := n.Path()
	if len(n.path) <= 1 {
		return []string{full}
	}
	return []string{full, n.path[len(n.path)-1]}
}

func (n LookupName) last() string {
	if len(n.path) == 0 {
		return ""
	}
	return n.path[len(n.path)-1]
}

// scoped pushes the pallet scope down into a child name that has none.
func (n LookupName) scoped(pallet string) LookupName {
	if n.pallet == "" {
		n.pallet = pallet
	}
	return n
}

// substitute replaces single-segment, parameterless names bound by a generic
// definition with their concrete arguments.
func (n LookupName) substitute(bindings map[string]LookupName) LookupName {
	if len(bindings) == 0 {
		return n
	}
	if n.kind == kindNamed && len(n.path) == 1 && len(n.params) == 0 {
		if b, ok := bindings[n.path[0]]; ok {
			return b
		}
	}
	if len(n.params) == 0 {
		return n
	}
	params := make([]LookupName, len(n.params))
	for i, p := range n.params {
		params[i] = p.substitute(bindings)
	}
	n.params = params
	return n
}

func named(path string, params ...LookupName) LookupName {
	return LookupName{kind: kindNamed, path: strings.Split(path, "::"), params: params}
}

func unitName() LookupName { return LookupName{kind: kindTuple} }

type nameParser struct {
	src string
	pos int
}

func (p *nameParser) eof() bool { return p.pos >= len(p.src) }

func (p *nameParser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *nameParser) skipSpace() {
	for !p.eof() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *nameParser) expect(b byte) error {
	p.skipSpace()
	if p.peek() != b {
		return fmt.Errorf("expected %q at offset %d", b, p.pos)
	}
	p.pos++
	return nil
}

func (p *nameParser) consumePrefix(s string) bool {
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *nameParser) parseType() (LookupName, error) {
	p.skipSpace()
	// References and lifetimes carry no encoding information.
	if p.consumePrefix("&") {
		p.skipSpace()
		if p.consumePrefix("'") {
			if _, err := p.ident(); err != nil {
				return LookupName{}, err
			}
		}
		p.skipSpace()
	}
	switch p.peek() {
	case '(':
		return p.parseTuple()
	case '[':
		return p.parseArray()
	case '<':
		return p.parseQualified()
	default:
		return p.parsePath()
	}
}

func (p *nameParser) parseTuple() (LookupName, error) {
	p.pos++ // (
	elems, err := p.parseList(')')
	if err != nil {
		return LookupName{}, err
	}
	if len(elems) == 1 {
		return elems[0], nil
	}
	return LookupName{kind: kindTuple, params: elems}, nil
}

func (p *nameParser) parseArray() (LookupName, error) {
	p.pos++ // [
	elem, err := p.parseType()
	if err != nil {
		return LookupName{}, err
	}
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return named("Vec", elem), nil
	}
	if err := p.expect(';'); err != nil {
		return LookupName{}, err
	}
	p.skipSpace()
	start := p.pos
	for !p.eof() && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	n, err := strconv.ParseUint(p.src[start:p.pos], 10, 64)
	if err != nil {
		return LookupName{}, fmt.Errorf("array length at offset %d: %w", start, err)
	}
	if err := p.expect(']'); err != nil {
		return LookupName{}, err
	}
	return LookupName{kind: kindArray, params: []LookupName{elem}, length: n}, nil
}

// parseQualified handles "<T as Trait<I>>::Name", keeping only the path
// after the cast.
func (p *nameParser) parseQualified() (LookupName, error) {
	p.pos++ // <
	if _, err := p.parseType(); err != nil {
		return LookupName{}, err
	}
	p.skipSpace()
	if p.consumePrefix("as ") {
		if _, err := p.parseType(); err != nil {
			return LookupName{}, err
		}
	}
	if err := p.expect('>'); err != nil {
		return LookupName{}, err
	}
	if !p.consumePrefix("::") {
		return LookupName{}, fmt.Errorf("expected \"::\" after qualified type at offset %d", p.pos)
	}
	return p.parsePath()
}

func (p *nameParser) parsePath() (LookupName, error) {
	var path []string
	for {
		id, err := p.ident()
		if err != nil {
			return LookupName{}, err
		}
		path = append(path, id)
		if !p.consumePrefix("::") {
			break
		}
	}
	n := LookupName{kind: kindNamed, path: path}
	p.skipSpace()
	if p.peek() == '<' {
		p.pos++
		params, err := p.parseList('>')
		if err != nil {
			return LookupName{}, err
		}
		n.params = params
	}
	return n, nil
}

// parseList parses comma separated types up to the closing byte. Lifetime
// arguments are skipped.
func (p *nameParser) parseList(closing byte) ([]LookupName, error) {
	var out []LookupName
	for {
		p.skipSpace()
		if p.peek() == closing {
			p.pos++
			return out, nil
		}
		if p.peek() == '\'' {
			p.pos++
			if _, err := p.ident(); err != nil {
				return nil, err
			}
		} else {
			t, err := p.parseType()
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case closing:
		default:
			return nil, fmt.Errorf("expected ',' or %q at offset %d", closing, p.pos)
		}
	}
}

func (p *nameParser) ident() (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() {
		c := p.src[p.pos]
		if c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return "", fmt.Errorf("expected identifier at offset %d", start)
	}
	return p.src[start:p.pos], nil
}
