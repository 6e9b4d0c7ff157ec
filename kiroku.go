// Package kiroku decodes historic Substrate extrinsics and storage from
// archive nodes, across every runtime upgrade a chain has been through.
//
// The CLI in cmd/kiroku is a thin wrapper around this package:
//
//	app, err := kiroku.New(ctx,
//	    kiroku.WithVersion(version),
//	    kiroku.WithLogger(logger),
//	    kiroku.WithConnections(8),
//	)
//	if err != nil { ... }
//	defer app.Close(ctx)
//	err = app.DecodeBlocks(ctx, kiroku.BlockOptions{From: 1}, print)
//
// Work is spread over a fixed pool of workers, each holding its own node
// connection and the metadata and legacy types of the runtime it last saw.
// Results are delivered in block (or spec change) order.
package kiroku

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kiroku/chaintypes"
	"github.com/ashita-ai/kiroku/internal/config"
	"github.com/ashita-ai/kiroku/internal/decode"
	"github.com/ashita-ai/kiroku/internal/historic"
	"github.com/ashita-ai/kiroku/internal/ratelimit"
	"github.com/ashita-ai/kiroku/internal/sink"
	"github.com/ashita-ai/kiroku/internal/speccache"
	"github.com/ashita-ai/kiroku/internal/storage"
	"github.com/ashita-ai/kiroku/internal/telemetry"
	"github.com/ashita-ai/kiroku/migrations"
)

// App holds the configuration and shared resources of kiroku commands.
// Construct with New and release with Close.
type App struct {
	cfg          config.Config
	logger       *slog.Logger
	version      string
	types        *historic.ChainRegistry
	skip         *decode.SkipPolicy
	limiter      ratelimit.Limiter
	cache        *speccache.Cache
	db           *storage.DB  // nil when DATABASE_URL is unset
	buf          *sink.Buffer // nil when DATABASE_URL is unset
	otelShutdown telemetry.Shutdown
	tracer       trace.Tracer
}

// New loads configuration from the environment, applies opts on top, and
// opens the spec cache and, if configured, the Postgres sink.
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; most runs won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOverrides(&cfg, o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	types, err := loadTypes(cfg, o)
	if err != nil {
		return nil, err
	}
	rules, err := decode.ParseSkipRules(cfg.SkipKeys)
	if err != nil {
		return nil, err
	}

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:          cfg,
		logger:       logger,
		version:      version,
		types:        types,
		skip:         decode.NewSkipPolicy(rules...),
		limiter:      ratelimit.New(cfg.RPCRate, cfg.RPCBurst),
		otelShutdown: otelShutdown,
		tracer:       telemetry.Tracer("kiroku"),
	}

	a.cache, err = speccache.Open(ctx, cfg.CachePath)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	if cfg.DatabaseURL != "" {
		if err := a.openSink(ctx); err != nil {
			_ = a.Close(ctx)
			return nil, err
		}
	}

	logger.Info("kiroku ready",
		"version", version,
		"nodes", len(cfg.RPCURLs),
		"connections", cfg.Connections,
		"sink", a.db != nil,
	)
	return a, nil
}

func applyOverrides(cfg *config.Config, o resolvedOptions) {
	if len(o.rpcURLs) > 0 {
		cfg.RPCURLs = o.rpcURLs
	}
	if o.connections != 0 {
		cfg.Connections = o.connections
	}
	if o.maxTaskRetries != nil {
		cfg.MaxTaskRetries = *o.maxTaskRetries
	}
	if o.typesFile != "" {
		cfg.TypesFile = o.typesFile
	}
	if o.ss58Prefix != nil {
		cfg.SS58Prefix = *o.ss58Prefix
	}
	if o.skipKeys != "" {
		cfg.SkipKeys = o.skipKeys
	}
	if o.cachePath != "" {
		cfg.CachePath = o.cachePath
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
}

func loadTypes(cfg config.Config, o resolvedOptions) (*historic.ChainRegistry, error) {
	switch {
	case o.chainTypes != nil:
		return o.chainTypes, nil
	case cfg.TypesFile != "":
		return historic.LoadChainRegistry(cfg.TypesFile)
	default:
		return historic.ParseChainRegistry(chaintypes.Polkadot)
	}
}

func (a *App) openSink(ctx context.Context) error {
	db, err := storage.New(ctx, a.cfg.DatabaseURL, a.logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	db.RegisterPoolMetrics()
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return fmt.Errorf("migrations: %w", err)
	}
	a.db = db
	// The flush loop outlives any single command; Close drains it.
	a.buf = sink.NewBuffer(db, a.logger, a.cfg.SinkBatchSize, a.cfg.SinkFlushTimeout)
	a.buf.Start(context.WithoutCancel(ctx))
	return nil
}

// Config returns the effective configuration.
func (a *App) Config() config.Config { return a.cfg }

// Close flushes buffered records and releases every resource. It is safe
// to call on a partially constructed App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.buf != nil {
		a.buf.Drain(ctx)
		if n := a.buf.Dropped(); n > 0 {
			a.logger.Warn("kiroku: sink dropped records", "count", n)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
