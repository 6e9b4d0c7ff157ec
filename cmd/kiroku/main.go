// Command kiroku decodes the historic extrinsics and storage of a Substrate
// chain through a node's JSON-RPC interface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/kiroku"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

// globalFlags are shared by every command. Unset flags leave the
// environment configuration alone.
type globalFlags struct {
	urls        []string
	typesFile   string
	cachePath   string
	output      string
	logFormat   string
	ss58Prefix  uint16
	connections int
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "kiroku",
		Short:         "Decode historic Substrate extrinsics and storage",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if g.output != "text" && g.output != "json" {
				return fmt.Errorf("--output must be text or json, got %q", g.output)
			}
			// .env may set KIROKU_LOG_LEVEL; kiroku.New loads it again for the
			// rest of the configuration, which is harmless.
			_ = godotenv.Load()
			slog.SetDefault(newLogger(g.logFormat))
			return nil
		},
	}
	f := root.PersistentFlags()
	f.StringSliceVar(&g.urls, "url", nil, "node websocket URL; repeat for several (KIROKU_RPC_URLS)")
	f.StringVar(&g.typesFile, "types-file", "", "historic types YAML (KIROKU_TYPES_FILE)")
	f.StringVar(&g.cachePath, "cache", "", "spec cache database path (KIROKU_CACHE_PATH)")
	f.StringVarP(&g.output, "output", "o", "text", "output format: text or json")
	f.StringVar(&g.logFormat, "log-format", "json", "log format: json or text")
	f.Uint16Var(&g.ss58Prefix, "ss58-prefix", 0, "SS58 address prefix (KIROKU_SS58_PREFIX)")
	f.IntVar(&g.connections, "connections", 0, "concurrent node connections (KIROKU_CONNECTIONS)")

	root.AddCommand(
		newDecodeBlocksCmd(g),
		newDecodeStorageItemsCmd(g),
		newFetchMetadataCmd(g),
		newFindSpecChangesCmd(g),
		newRunsCmd(g),
		newRunCmd(g),
	)
	return root
}

func newLogger(format string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("KIROKU_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	// Results go to stdout; logs stay on stderr so output can be piped.
	if format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// openApp builds the App from the environment plus any flags the user set.
func openApp(cmd *cobra.Command, g *globalFlags) (*kiroku.App, error) {
	opts := []kiroku.Option{
		kiroku.WithLogger(slog.Default()),
		kiroku.WithVersion(version),
	}
	flags := cmd.Flags()
	if flags.Changed("url") {
		opts = append(opts, kiroku.WithRPCURLs(g.urls...))
	}
	if flags.Changed("types-file") {
		opts = append(opts, kiroku.WithTypesFile(g.typesFile))
	}
	if flags.Changed("cache") {
		opts = append(opts, kiroku.WithCachePath(g.cachePath))
	}
	if flags.Changed("ss58-prefix") {
		opts = append(opts, kiroku.WithSS58Prefix(g.ss58Prefix))
	}
	if flags.Changed("connections") {
		opts = append(opts, kiroku.WithConnections(g.connections))
	}
	return kiroku.New(cmd.Context(), opts...)
}

// withApp runs fn against a fresh App and closes it afterwards.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(*kiroku.App, *printer) error) (err error) {
	app, err := openApp(cmd, g)
	if err != nil {
		return err
	}
	defer func() {
		// Close flushes the sink; do it even after an interrupt.
		if cerr := app.Close(context.WithoutCancel(cmd.Context())); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(app, newPrinter(cmd.OutOrStdout(), g.output))
}
