// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultRPCURLs are public Polkadot archive nodes able to serve historic
// runtime versions.
var DefaultRPCURLs = []string{
	"wss://polkadot-public-rpc.blockops.network/ws",
	"wss://polkadot-rpc.dwellir.com",
	"wss://polkadot.api.onfinality.io/public-ws",
	"wss://polkadot.public.curie.radiumblock.co/ws",
	"wss://rockx-dot.w3node.com/polka-public-dot/ws",
	"wss://rpc.ibp.network/polkadot",
	"wss://rpc.dotters.network/polkadot",
}

// Config holds all application configuration.
type Config struct {
	// Node settings.
	RPCURLs         []string
	Connections     int // Concurrent workers, each with its own connection.
	RPCRate         float64
	RPCBurst        int
	RPCTimeout      time.Duration
	MaxMessageBytes int64
	MaxTaskRetries  int

	// Decoding settings.
	TypesFile       string // Historic type definitions YAML; empty uses the embedded Polkadot file.
	SS58Prefix      uint16
	SkipKeys        string // "0xKEY@SPEC,..." entries known to be undecodable.
	StoragePageSize uint32
	StorageMaxKeys  int // Per entry; 0 means unlimited.

	// Persistence.
	CachePath        string // SQLite spec-change and metadata cache.
	DatabaseURL      string // Optional Postgres sink.
	SinkBatchSize    int
	SinkFlushTimeout time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string
}

// Load reads configuration from environment variables with sensible defaults.
// Every malformed variable is reported, not just the first.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	var err error
	cfg := Config{
		RPCURLs:      envList("KIROKU_RPC_URLS", DefaultRPCURLs),
		TypesFile:    envStr("KIROKU_TYPES_FILE", ""),
		SkipKeys:     envStr("KIROKU_SKIP_KEYS", ""),
		CachePath:    envStr("KIROKU_CACHE_PATH", "kiroku.db"),
		DatabaseURL:  envStr("DATABASE_URL", ""),
		OTELEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  envStr("OTEL_SERVICE_NAME", "kiroku"),
	}
	cfg.Connections, err = envInt("KIROKU_CONNECTIONS", 4)
	collect(err)
	cfg.RPCRate, err = envFloat("KIROKU_RPC_RATE", 0)
	collect(err)
	cfg.RPCBurst, err = envInt("KIROKU_RPC_BURST", 10)
	collect(err)
	cfg.RPCTimeout, err = envDuration("KIROKU_RPC_TIMEOUT", 60*time.Second)
	collect(err)
	maxMsg, err := envInt("KIROKU_RPC_MAX_MESSAGE_BYTES", 64<<20)
	collect(err)
	cfg.MaxMessageBytes = int64(maxMsg)
	cfg.MaxTaskRetries, err = envInt("KIROKU_MAX_TASK_RETRIES", 5)
	collect(err)
	prefix, err := envInt("KIROKU_SS58_PREFIX", 0)
	collect(err)
	cfg.SS58Prefix = uint16(prefix) //nolint:gosec // range checked in Validate
	pageSize, err := envInt("KIROKU_STORAGE_PAGE_SIZE", 1000)
	collect(err)
	cfg.StoragePageSize = uint32(max(pageSize, 0)) //nolint:gosec // range checked in Validate
	cfg.StorageMaxKeys, err = envInt("KIROKU_STORAGE_MAX_KEYS", 0)
	collect(err)
	cfg.SinkBatchSize, err = envInt("KIROKU_SINK_BATCH_SIZE", 500)
	collect(err)
	cfg.SinkFlushTimeout, err = envDuration("KIROKU_SINK_FLUSH_TIMEOUT", time.Second)
	collect(err)
	cfg.OTELInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if prefix < 0 || prefix > 16383 {
		return Config{}, fmt.Errorf("config: KIROKU_SS58_PREFIX must be in [0, 16383], got %d", prefix)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that values are usable.
func (c Config) Validate() error {
	if len(c.RPCURLs) == 0 {
		return fmt.Errorf("config: KIROKU_RPC_URLS must name at least one node")
	}
	for _, u := range c.RPCURLs {
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return fmt.Errorf("config: KIROKU_RPC_URLS entry %q must be a ws:// or wss:// URL", u)
		}
	}
	if c.Connections <= 0 {
		return fmt.Errorf("config: KIROKU_CONNECTIONS must be positive")
	}
	if c.MaxTaskRetries < 0 {
		return fmt.Errorf("config: KIROKU_MAX_TASK_RETRIES must not be negative")
	}
	if c.StoragePageSize == 0 {
		return fmt.Errorf("config: KIROKU_STORAGE_PAGE_SIZE must be positive")
	}
	if c.SinkBatchSize <= 0 {
		return fmt.Errorf("config: KIROKU_SINK_BATCH_SIZE must be positive")
	}
	if c.SS58Prefix > 16383 {
		return fmt.Errorf("config: KIROKU_SS58_PREFIX must be in [0, 16383]")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func envInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
