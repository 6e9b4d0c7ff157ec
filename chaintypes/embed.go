// Package chaintypes embeds the default legacy type definitions used to
// decode pre-V14 Polkadot runtimes when no types file is configured.
package chaintypes

import _ "embed"

// Polkadot is the historic types document for the Polkadot relay chain.
//
//go:embed polkadot.yaml
var Polkadot []byte
