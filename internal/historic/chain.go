package historic

import (
	"fmt"
	"os"
	"slices"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ChainRegistry holds the hand-authored type definitions for one chain:
// a global registry plus registries scoped to spec version ranges.
//
// The document format is:
//
//	global:
//	  types:
//	    Balance: u128
//	    Transfer: { from: AccountId, to: AccountId, amount: Balance }
//	    Status: { _enum: [Active, Frozen] }
//	  palletTypes:
//	    Staking:
//	      Exposure: ...
//	forSpec:
//	  - range: [null, 1019]
//	    types: ...
type ChainRegistry struct {
	global *Registry
	specs  []specRegistry
}

type specRegistry struct {
	from, to *uint32 // inclusive; nil is unbounded
	registry *Registry
}

func (s specRegistry) covers(v uint32) bool {
	return (s.from == nil || *s.from <= v) && (s.to == nil || v <= *s.to)
}

type chainDoc struct {
	Global  registryDoc `yaml:"global"`
	ForSpec []struct {
		Range       []*uint32 `yaml:"range"`
		registryDoc `yaml:",inline"`
	} `yaml:"forSpec"`
}

type registryDoc struct {
	Types       yaml.Node            `yaml:"types"`
	PalletTypes map[string]yaml.Node `yaml:"palletTypes"`
}

// LoadChainRegistry reads a chain type document from path.
func LoadChainRegistry(path string) (*ChainRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("historic: read types: %w", err)
	}
	return ParseChainRegistry(data)
}

// ParseChainRegistry parses a chain type document.
func ParseChainRegistry(data []byte) (*ChainRegistry, error) {
	var doc chainDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("historic: parse types: %w", err)
	}
	global, err := doc.Global.build()
	if err != nil {
		return nil, fmt.Errorf("historic: global: %w", err)
	}
	c := &ChainRegistry{global: global}
	for i, s := range doc.ForSpec {
		if len(s.Range) != 2 {
			return nil, fmt.Errorf("historic: forSpec[%d]: range must have two bounds", i)
		}
		r, err := s.build()
		if err != nil {
			return nil, fmt.Errorf("historic: forSpec[%d]: %w", i, err)
		}
		c.specs = append(c.specs, specRegistry{from: s.Range[0], to: s.Range[1], registry: r})
	}
	return c, nil
}

// ForSpecVersion returns the registries applicable to spec version v, most
// specific first: matching spec ranges in reverse declaration order, then
// the global registry. The returned set is new and may be prepended to.
func (c *ChainRegistry) ForSpecVersion(v uint32) *RegistrySet {
	var regs []*Registry
	for _, s := range slices.Backward(c.specs) {
		if s.covers(v) {
			regs = append(regs, s.registry)
		}
	}
	regs = append(regs, c.global)
	return NewRegistrySet(regs...)
}

func (d registryDoc) build() (*Registry, error) {
	r := NewRegistry()
	if err := insertAll(r, "", &d.Types); err != nil {
		return nil, err
	}
	for pallet, node := range d.PalletTypes {
		if err := insertAll(r, pallet, &node); err != nil {
			return nil, fmt.Errorf("pallet %s: %w", pallet, err)
		}
	}
	return r, nil
}

func insertAll(r *Registry, pallet string, node *yaml.Node) error {
	if node.Kind == 0 {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("types must be a mapping (line %d)", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		shape, err := parseShape(node.Content[i+1])
		if err != nil {
			return fmt.Errorf("type %s: %w", name, err)
		}
		if err := r.InsertPallet(pallet, name, shape); err != nil {
			return err
		}
	}
	return nil
}

func parseShape(n *yaml.Node) (Shape, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if isNull(n) || n.Value == "" {
			return Tuple{}, nil
		}
		t, err := ParseLookupName(n.Value)
		if err != nil {
			return nil, err
		}
		return Alias{Target: t}, nil
	case yaml.SequenceNode:
		elems, err := parseNames(n.Content)
		if err != nil {
			return nil, err
		}
		return Tuple{Elems: elems}, nil
	case yaml.MappingNode:
		if v := mappingValue(n, "_enum"); v != nil {
			return parseEnum(v)
		}
		if v := mappingValue(n, "_set"); v != nil {
			return parseSet(v)
		}
		fields, err := parseFields(n)
		if err != nil {
			return nil, err
		}
		return Struct{Fields: fields}, nil
	default:
		return nil, fmt.Errorf("unsupported definition at line %d", n.Line)
	}
}

func parseEnum(n *yaml.Node) (Shape, error) {
	var e Enum
	switch n.Kind {
	case yaml.SequenceNode:
		for i, v := range n.Content {
			e.Variants = append(e.Variants, Variant{Index: uint8(i), Name: v.Value})
		}
	case yaml.MappingNode:
		// Explicit discriminants: { A: 0, B: 5 }.
		if allInts(n) {
			for i := 0; i+1 < len(n.Content); i += 2 {
				idx, _ := strconv.ParseUint(n.Content[i+1].Value, 10, 8)
				e.Variants = append(e.Variants, Variant{Index: uint8(idx), Name: n.Content[i].Value})
			}
			return e, nil
		}
		for i := 0; i+1 < len(n.Content); i += 2 {
			v := Variant{Index: uint8(i / 2), Name: n.Content[i].Value}
			body := n.Content[i+1]
			switch {
			case body.Kind == yaml.ScalarNode && (isNull(body) || body.Value == ""):
			case body.Kind == yaml.ScalarNode:
				t, err := ParseLookupName(body.Value)
				if err != nil {
					return nil, fmt.Errorf("variant %s: %w", v.Name, err)
				}
				v.Fields = []Field{{Type: t}}
			case body.Kind == yaml.SequenceNode:
				elems, err := parseNames(body.Content)
				if err != nil {
					return nil, fmt.Errorf("variant %s: %w", v.Name, err)
				}
				for _, t := range elems {
					v.Fields = append(v.Fields, Field{Type: t})
				}
			case body.Kind == yaml.MappingNode:
				fields, err := parseFields(body)
				if err != nil {
					return nil, fmt.Errorf("variant %s: %w", v.Name, err)
				}
				v.Fields = fields
			}
			e.Variants = append(e.Variants, v)
		}
	default:
		return nil, fmt.Errorf("_enum must be a list or mapping (line %d)", n.Line)
	}
	if len(e.Variants) > 256 {
		return nil, fmt.Errorf("_enum has %d variants, max 256", len(e.Variants))
	}
	return e, nil
}

func parseSet(n *yaml.Node) (Shape, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("_set must be a mapping (line %d)", n.Line)
	}
	s := BitFlags{Bits: 8}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i].Value, n.Content[i+1].Value
		mask, err := strconv.ParseUint(v, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("_set %s: %w", k, err)
		}
		if k == "_bitLength" {
			s.Bits = int(mask)
			continue
		}
		s.Flags = append(s.Flags, Flag{Name: k, Mask: mask})
	}
	switch s.Bits {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("_set _bitLength %d unsupported", s.Bits)
	}
	return s, nil
}

func parseFields(n *yaml.Node) ([]Field, error) {
	var fields []Field
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		t, err := ParseLookupName(n.Content[i+1].Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields = append(fields, Field{Name: name, Type: t})
	}
	return fields, nil
}

func parseNames(nodes []*yaml.Node) ([]LookupName, error) {
	out := make([]LookupName, 0, len(nodes))
	for _, v := range nodes {
		t, err := ParseLookupName(v.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func mappingValue(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

func allInts(n *yaml.Node) bool {
	if len(n.Content) == 0 {
		return false
	}
	for i := 1; i < len(n.Content); i += 2 {
		if n.Content[i].Kind != yaml.ScalarNode || n.Content[i].Tag != "!!int" {
			return false
		}
	}
	return true
}

func isNull(n *yaml.Node) bool {
	return n.Tag == "!!null"
}
