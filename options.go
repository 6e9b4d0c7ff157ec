package kiroku

import (
	"log/slog"

	"github.com/ashita-ai/kiroku/internal/historic"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds overrides applied on top of the environment config.
// Unexported; callers use the With* functions.
type resolvedOptions struct {
	logger         *slog.Logger
	version        string
	rpcURLs        []string
	connections    int
	maxTaskRetries *int
	typesFile      string
	chainTypes     *historic.ChainRegistry
	ss58Prefix     *uint16
	skipKeys       string
	cachePath      string
	databaseURL    string
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in logs and telemetry.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithRPCURLs overrides the node endpoints (KIROKU_RPC_URLS env var).
// Workers are assigned endpoints round robin.
func WithRPCURLs(urls ...string) Option {
	return func(o *resolvedOptions) { o.rpcURLs = urls }
}

// WithConnections overrides the number of concurrent workers (KIROKU_CONNECTIONS env var).
func WithConnections(n int) Option {
	return func(o *resolvedOptions) { o.connections = n }
}

// WithMaxTaskRetries overrides how often a task is retried on one connection
// before the connection is rebuilt (KIROKU_MAX_TASK_RETRIES env var).
func WithMaxTaskRetries(n int) Option {
	return func(o *resolvedOptions) { o.maxTaskRetries = &n }
}

// WithTypesFile loads legacy type definitions from a YAML file instead of
// the embedded Polkadot definitions (KIROKU_TYPES_FILE env var).
func WithTypesFile(path string) Option {
	return func(o *resolvedOptions) { o.typesFile = path }
}

// WithChainTypes uses already parsed legacy type definitions. It takes
// precedence over WithTypesFile.
func WithChainTypes(types *historic.ChainRegistry) Option {
	return func(o *resolvedOptions) { o.chainTypes = types }
}

// WithSS58Prefix sets the network prefix used to render account addresses
// (KIROKU_SS58_PREFIX env var).
func WithSS58Prefix(prefix uint16) Option {
	return func(o *resolvedOptions) { o.ss58Prefix = &prefix }
}

// WithSkipKeys sets storage keys to replace with a placeholder, as
// "0xKEY@SPEC" items separated by commas (KIROKU_SKIP_KEYS env var).
func WithSkipKeys(keys string) Option {
	return func(o *resolvedOptions) { o.skipKeys = keys }
}

// WithCachePath overrides the SQLite spec cache location (KIROKU_CACHE_PATH env var).
func WithCachePath(path string) Option {
	return func(o *resolvedOptions) { o.cachePath = path }
}

// WithDatabaseURL enables the Postgres sink (DATABASE_URL env var).
func WithDatabaseURL(url string) Option {
	return func(o *resolvedOptions) { o.databaseURL = url }
}
