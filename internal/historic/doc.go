// Package historic resolves the symbolic type names used by runtime metadata
// V8 to V13, which predate the self-describing portable type table.
//
// Type shapes come from a hand-authored chain document (see ChainRegistry),
// selected per spec version, optionally with metadata-derived call and event
// enums prepended. A Resolver walks those definitions to decode bytes.
package historic
