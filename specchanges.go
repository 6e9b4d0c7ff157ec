package kiroku

import (
	"context"
	"fmt"

	"github.com/ashita-ai/kiroku/internal/chopper"
	"github.com/ashita-ai/kiroku/internal/metadata"
	"github.com/ashita-ai/kiroku/internal/rpc"
	"github.com/ashita-ai/kiroku/internal/speccache"
)

// SpecChangeOptions bounds the FindSpecChanges search.
type SpecChangeOptions struct {
	From uint64
	// To is inclusive. Zero searches up to the node's best block.
	To uint64
	// Resume starts from the last change already in the spec cache when it
	// lies beyond From.
	Resume bool
}

// FindSpecChanges bisects the block range for runtime upgrades and returns
// the first block of every spec version seen, starting with From itself.
// Each change is saved to the spec cache and passed to found, if non-nil,
// as soon as it is known.
func (a *App) FindSpecChanges(ctx context.Context, opts SpecChangeOptions, found func(speccache.Change) error) ([]speccache.Change, error) {
	s, err := a.dialAny(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	from, to := opts.From, opts.To
	if opts.Resume {
		last, ok, err := a.cache.LastChange(ctx)
		if err != nil {
			return nil, err
		}
		if ok && last.Block > from {
			from = last.Block
			a.logger.Info("kiroku: resuming spec change search", "block", from, "spec_version", last.SpecVersion)
		}
	}
	if to == 0 {
		head, err := s.client.ChainGetHeader(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("kiroku: best block: %w", err)
		}
		to = uint64(head.Number)
	}

	state := func(ctx context.Context, n uint64) (uint32, error) {
		ctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
		defer cancel()
		hash, err := s.client.ChainGetBlockHash(ctx, n)
		if err != nil {
			return 0, err
		}
		rv, err := s.client.StateGetRuntimeVersion(ctx, hash)
		if err != nil {
			return 0, err
		}
		return rv.SpecVersion, nil
	}
	record := func(ch speccache.Change) error {
		if err := a.cache.PutChanges(ctx, ch); err != nil {
			return err
		}
		a.logger.Info("kiroku: spec version", "block", ch.Block, "spec_version", ch.SpecVersion)
		if found != nil {
			return found(ch)
		}
		return nil
	}

	first, err := state(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("kiroku: spec version at %d: %w", from, err)
	}
	changes := []speccache.Change{{Block: from, SpecVersion: first}}
	if err := record(changes[0]); err != nil {
		return changes, err
	}

	_, err = chopper.FindAll(ctx, from, to, state, func(t chopper.Transition[uint64, uint32]) error {
		ch := speccache.Change{Block: t.After.Pos, SpecVersion: t.After.State}
		changes = append(changes, ch)
		return record(ch)
	})
	return changes, err
}

// MetadataResult is the runtime metadata in force at a block.
type MetadataResult struct {
	Block       uint64            `json:"block"`
	Hash        rpc.Bytes         `json:"hash"`
	SpecVersion uint32            `json:"spec_version"`
	Version     int               `json:"metadata_version"`
	Metadata    metadata.Metadata `json:"metadata"`
}

// FetchMetadata returns the decoded metadata at block n.
func (a *App) FetchMetadata(ctx context.Context, n uint64) (*MetadataResult, error) {
	s, err := a.dialAny(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	defer cancel()
	hash, err := s.client.ChainGetBlockHash(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("kiroku: block %d: %w", n, err)
	}
	if err := s.useSpecAt(ctx, hash); err != nil {
		return nil, err
	}
	return &MetadataResult{
		Block:       n,
		Hash:        hash,
		SpecVersion: s.specVersion,
		Version:     s.md.Version(),
		Metadata:    s.md,
	}, nil
}
