package kiroku

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kiroku/internal/decode"
	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/rpc"
	"github.com/ashita-ai/kiroku/internal/runner"
)

// ErrDecodeFailed stops a run at the first block with an undecodable
// extrinsic unless ContinueOnError is set.
var ErrDecodeFailed = errors.New("kiroku: decode failed")

// BlockOptions selects the blocks DecodeBlocks visits.
type BlockOptions struct {
	From uint64
	// To is inclusive. Zero decodes until the node has no more blocks.
	To uint64
	// ErrorsOnly drops successfully decoded extrinsics from the output.
	ErrorsOnly bool
	// ContinueOnError keeps going past blocks with failures.
	ContinueOnError bool
}

// ExtrinsicResult is one extrinsic of a block. Exactly one of Extrinsic and
// Err is set.
type ExtrinsicResult struct {
	Index     int
	Bytes     []byte
	Extrinsic *decode.Extrinsic
	Err       error
}

// BlockResult is the decoded content of one block. Err is set when the
// block's runtime metadata could not be used, in which case Extrinsics is
// empty.
type BlockResult struct {
	Number      uint64
	Hash        []byte
	SpecVersion uint32
	Extrinsics  []ExtrinsicResult
	Err         error
}

// Failures counts the block's failed extrinsics, or 1 for a block level error.
func (b BlockResult) Failures() int {
	if b.Err != nil {
		return 1
	}
	n := 0
	for _, x := range b.Extrinsics {
		if x.Err != nil {
			n++
		}
	}
	return n
}

// BlockSummary totals a DecodeBlocks run.
type BlockSummary struct {
	RunID      uuid.UUID `json:"run_id,omitzero"`
	Blocks     int64     `json:"blocks"`
	Extrinsics int64     `json:"extrinsics"`
	Failures   int64     `json:"failures"`
}

// DecodeBlocks decodes every extrinsic of the selected blocks and passes
// each block to out in increasing block order. The runtime of block n is
// the one in force at its parent. An error from out ends the run.
func (a *App) DecodeBlocks(ctx context.Context, opts BlockOptions, out func(BlockResult) error) (BlockSummary, error) {
	if opts.To > 0 && opts.To < opts.From {
		return BlockSummary{}, fmt.Errorf("kiroku: ending block %d before starting block %d", opts.To, opts.From)
	}
	var sum BlockSummary
	sum.RunID = a.startRun(ctx, model.CommandDecodeBlocks, map[string]any{
		"from": opts.From, "to": opts.To, "continue_on_error": opts.ContinueOnError,
	})

	task := func(ctx context.Context, n uint64, s *session) (BlockResult, error) {
		if opts.To > 0 && n > opts.To {
			return BlockResult{}, runner.ErrNoMoreWork
		}
		return a.decodeBlock(ctx, s, n)
	}
	emit := func(_ context.Context, _ uint64, res BlockResult) error {
		failures := res.Failures()
		sum.Blocks++
		sum.Extrinsics += int64(len(res.Extrinsics))
		sum.Failures += int64(failures)
		a.sinkBlock(sum.RunID, res)

		if opts.ErrorsOnly {
			res = onlyFailures(res)
		}
		if !opts.ErrorsOnly || failures > 0 {
			if err := out(res); err != nil {
				return err
			}
		}
		if failures > 0 && !opts.ContinueOnError {
			return fmt.Errorf("block %d: %d failures: %w", res.Number, failures, ErrDecodeFailed)
		}
		return nil
	}

	r := runner.New(runner.NewRoundRobin(a.cfg.RPCURLs), a.initSession, task, emit,
		runner.WithLogger(a.logger),
		runner.WithMaxTaskRetries(a.cfg.MaxTaskRetries),
	)
	err := r.Run(ctx, a.cfg.Connections, opts.From)
	a.finishRun(ctx, sum.RunID, err, map[string]any{
		"blocks": sum.Blocks, "extrinsics": sum.Extrinsics, "failures": sum.Failures,
	})
	return sum, err
}

func (a *App) decodeBlock(ctx context.Context, s *session, n uint64) (BlockResult, error) {
	ctx, span := a.tracer.Start(ctx, "kiroku.decode_block",
		trace.WithAttributes(attribute.Int64("block", int64(n)))) //nolint:gosec // block heights fit in int64
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	defer cancel()

	hash, err := s.client.ChainGetBlockHash(ctx, n)
	if errors.Is(err, rpc.ErrNotFound) {
		return BlockResult{}, runner.ErrNoMoreWork
	}
	if err != nil {
		return BlockResult{}, err
	}
	block, err := s.client.ChainGetBlock(ctx, hash)
	if err != nil {
		return BlockResult{}, err
	}

	// A block executes under the runtime of its parent; an upgrade enacted
	// in block n applies from n+1.
	at := block.Header.ParentHash
	if n == 0 {
		at = hash
	}
	res := BlockResult{Number: n, Hash: hash}
	if err := s.useSpecAt(ctx, at); err != nil {
		var me *MetadataError
		if errors.As(err, &me) {
			res.SpecVersion, res.Err = me.SpecVersion, err
			return res, nil
		}
		return BlockResult{}, err
	}
	res.SpecVersion = s.specVersion
	span.SetAttributes(attribute.Int64("spec_version", int64(s.specVersion)))

	res.Extrinsics = make([]ExtrinsicResult, len(block.Extrinsics))
	for i, raw := range block.Extrinsics {
		x, err := decode.DecodeExtrinsic(raw, s.md, s.types, decode.WithSS58Prefix(a.cfg.SS58Prefix))
		res.Extrinsics[i] = ExtrinsicResult{Index: i, Bytes: raw, Extrinsic: x, Err: err}
	}
	return res, nil
}

func onlyFailures(b BlockResult) BlockResult {
	var kept []ExtrinsicResult
	for _, x := range b.Extrinsics {
		if x.Err != nil {
			kept = append(kept, x)
		}
	}
	b.Extrinsics = kept
	return b
}

// sinkBlock queues a block's records. Called from emit only.
func (a *App) sinkBlock(runID uuid.UUID, b BlockResult) {
	if a.buf == nil || runID == uuid.Nil {
		return
	}
	recs := extrinsicRecords(runID, b)
	if err := a.buf.AppendExtrinsics(recs...); err != nil {
		a.logger.Warn("kiroku: sink rejected block", "block", b.Number, "error", err)
	}
}

func extrinsicRecords(runID uuid.UUID, b BlockResult) []model.ExtrinsicRecord {
	if b.Err != nil {
		return []model.ExtrinsicRecord{{
			RunID: runID, BlockNumber: b.Number, BlockHash: b.Hash,
			SpecVersion: b.SpecVersion, Index: -1, Error: b.Err.Error(),
		}}
	}
	recs := make([]model.ExtrinsicRecord, 0, len(b.Extrinsics))
	for _, x := range b.Extrinsics {
		rec := model.ExtrinsicRecord{
			RunID:       runID,
			BlockNumber: b.Number,
			BlockHash:   b.Hash,
			SpecVersion: b.SpecVersion,
			Index:       x.Index,
		}
		if x.Err != nil {
			rec.Error = x.Err.Error()
			rec.Bytes = x.Bytes
			var de *decode.Error
			if errors.As(x.Err, &de) {
				rec.Pallet, rec.Call = de.Pallet, de.Item
			}
		} else {
			rec.Pallet, rec.Call = x.Extrinsic.Call.Pallet, x.Extrinsic.Call.Name
			decoded, err := json.Marshal(x.Extrinsic)
			if err != nil {
				rec.Error = fmt.Sprintf("encode result: %v", err)
				rec.Bytes = x.Bytes
			} else {
				rec.Decoded = decoded
			}
		}
		recs = append(recs, rec)
	}
	return recs
}
