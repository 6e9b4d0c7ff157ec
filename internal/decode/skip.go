package decode

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/ashita-ai/kiroku/internal/value"
)

// SkipRule marks one storage key as known to be undecodable from a spec
// version onward.
type SkipRule struct {
	Key      []byte
	FromSpec uint32
	Reason   string
}

// SkipPolicy is an immutable table of keys to replace with a placeholder
// instead of decoding. The zero value and nil skip nothing.
type SkipPolicy struct {
	rules []SkipRule
}

// NewSkipPolicy copies rules into a policy.
func NewSkipPolicy(rules ...SkipRule) *SkipPolicy {
	p := &SkipPolicy{rules: make([]SkipRule, len(rules))}
	for i, r := range rules {
		r.Key = bytes.Clone(r.Key)
		p.rules[i] = r
	}
	return p
}

// ParseSkipRules parses a comma separated list of "0xKEY@SPEC" items, as
// used by the KIROKU_SKIP_KEYS setting. SPEC defaults to 0.
func ParseSkipRules(s string) ([]SkipRule, error) {
	var rules []SkipRule
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		keyHex, specStr, hasSpec := strings.Cut(item, "@")
		key, err := hex.DecodeString(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("decode: skip rule %q: %w", item, err)
		}
		r := SkipRule{Key: key, Reason: "known corrupt entry"}
		if hasSpec {
			spec, err := strconv.ParseUint(specStr, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("decode: skip rule %q: %w", item, err)
			}
			r.FromSpec = uint32(spec)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Len returns the number of rules.
func (p *SkipPolicy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// Match returns the rule covering key at the given spec version.
func (p *SkipPolicy) Match(key []byte, specVersion uint32) (SkipRule, bool) {
	if p == nil {
		return SkipRule{}, false
	}
	for _, r := range p.rules {
		if r.FromSpec <= specVersion && bytes.Equal(r.Key, key) {
			return r, true
		}
	}
	return SkipRule{}, false
}

// Placeholder is the value reported in place of a skipped item.
func Placeholder(reason string) value.Value {
	return value.NewStr("<skipped: " + reason + ">")
}
