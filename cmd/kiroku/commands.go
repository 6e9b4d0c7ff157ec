package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ashita-ai/kiroku"
	"github.com/ashita-ai/kiroku/internal/speccache"
)

func newDecodeBlocksCmd(g *globalFlags) *cobra.Command {
	var (
		opts       kiroku.BlockOptions
		printBytes bool
	)
	cmd := &cobra.Command{
		Use:   "decode-blocks",
		Short: "Decode every extrinsic in a range of blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(app *kiroku.App, p *printer) error {
				p.printBytes = printBytes
				sum, err := app.DecodeBlocks(cmd.Context(), opts, p.block)
				p.summary("blocks", sum)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.Uint64Var(&opts.From, "starting-block", 0, "first block to decode")
	f.Uint64Var(&opts.To, "ending-block", 0, "last block to decode; 0 runs to the chain head")
	f.BoolVar(&opts.ErrorsOnly, "errors-only", false, "print only extrinsics that failed to decode")
	f.BoolVar(&opts.ContinueOnError, "continue-on-error", false, "keep going after a block with failures")
	f.BoolVar(&printBytes, "print-bytes", false, "print the raw bytes of every extrinsic")
	return cmd
}

func newDecodeStorageItemsCmd(g *globalFlags) *cobra.Command {
	var (
		opts      kiroku.StorageOptions
		specsFile string
	)
	cmd := &cobra.Command{
		Use:   "decode-storage-items",
		Short: "Decode all storage at the first block of every spec version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if specsFile != "" {
				changes, err := readSpecChanges(specsFile)
				if err != nil {
					return err
				}
				opts.Changes = changes
			}
			return withApp(cmd, g, func(app *kiroku.App, p *printer) error {
				sum, err := app.DecodeStorageItems(cmd.Context(), opts, p.storage)
				p.summary("storage", sum)
				return err
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&specsFile, "spec-versions", "", "JSON file of spec changes; default is the spec cache")
	f.StringSliceVar(&opts.Pallets, "pallet", nil, "decode only these pallets")
	f.BoolVar(&opts.ContinueOnError, "continue-on-error", false, "keep going after a runtime with failures")
	return cmd
}

// readSpecChanges loads a JSON array as printed by find-spec-changes.
func readSpecChanges(path string) ([]speccache.Change, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("read spec versions: %w", err)
	}
	var changes []speccache.Change
	if err := json.Unmarshal(data, &changes); err != nil {
		return nil, fmt.Errorf("parse spec versions %s: %w", path, err)
	}
	return changes, nil
}

func newFetchMetadataCmd(g *globalFlags) *cobra.Command {
	var block uint64
	cmd := &cobra.Command{
		Use:   "fetch-metadata",
		Short: "Print the decoded runtime metadata at a block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(app *kiroku.App, p *printer) error {
				md, err := app.FetchMetadata(cmd.Context(), block)
				if err != nil {
					return err
				}
				// Metadata is too large for a useful text rendering.
				return p.json(md)
			})
		},
	}
	cmd.Flags().Uint64Var(&block, "block", 0, "block number")
	return cmd
}

func newFindSpecChangesCmd(g *globalFlags) *cobra.Command {
	var opts kiroku.SpecChangeOptions
	cmd := &cobra.Command{
		Use:   "find-spec-changes",
		Short: "Find the first block of every spec version and save it to the spec cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(app *kiroku.App, p *printer) error {
				changes, err := app.FindSpecChanges(cmd.Context(), opts, p.specChange)
				if err != nil {
					return err
				}
				if p.format == "text" {
					p.linef("%d spec versions", len(changes))
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.Uint64Var(&opts.From, "from", 0, "first block to search")
	f.Uint64Var(&opts.To, "to", 0, "last block to search; 0 is the best block")
	f.BoolVar(&opts.Resume, "resume", false, "continue from the last cached change")
	return cmd
}

func newRunsCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(app *kiroku.App, p *printer) error {
				runs, err := app.ListRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				for _, r := range runs {
					if err := p.run(r); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newRunCmd(g *globalFlags) *cobra.Command {
	var errorLimit int
	cmd := &cobra.Command{
		Use:   "run <id>",
		Short: "Show a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}
			return withApp(cmd, g, func(app *kiroku.App, p *printer) error {
				report, err := app.Run(cmd.Context(), id, errorLimit)
				if err != nil {
					return err
				}
				return p.report(report)
			})
		},
	}
	cmd.Flags().IntVar(&errorLimit, "errors", 20, "maximum failed extrinsics to show")
	return cmd
}
