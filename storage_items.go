package kiroku

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/kiroku/internal/decode"
	"github.com/ashita-ai/kiroku/internal/model"
	"github.com/ashita-ai/kiroku/internal/rpc"
	"github.com/ashita-ai/kiroku/internal/runner"
	"github.com/ashita-ai/kiroku/internal/schema"
	"github.com/ashita-ai/kiroku/internal/speccache"
)

// oversizedReason marks values the node refused to send in one message.
const oversizedReason = "value exceeds the node's message size limit"

// ErrNoSpecChanges is returned when DecodeStorageItems has nothing to visit.
var ErrNoSpecChanges = errors.New("kiroku: no spec changes known; run find-spec-changes first")

// StorageOptions selects the runtimes and pallets DecodeStorageItems visits.
type StorageOptions struct {
	// Changes lists the blocks to read state at. Empty uses every change
	// recorded in the spec cache.
	Changes []speccache.Change
	// Pallets restricts decoding to the named pallets. Empty decodes all.
	Pallets         []string
	ContinueOnError bool
}

// StorageResult is the decoded state of one runtime at the block it was
// introduced. Err is set when its metadata could not be used.
type StorageResult struct {
	Block       uint64
	SpecVersion uint32
	Items       []decode.StorageItem
	Err         error
}

// Failures counts failed items, or 1 for a runtime level error.
func (r StorageResult) Failures() int {
	if r.Err != nil {
		return 1
	}
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// StorageSummary totals a DecodeStorageItems run.
type StorageSummary struct {
	RunID        uuid.UUID `json:"run_id,omitzero"`
	SpecVersions int64     `json:"spec_versions"`
	Items        int64     `json:"items"`
	Skipped      int64     `json:"skipped"`
	Failures     int64     `json:"failures"`
}

// DecodeStorageItems decodes every storage entry at each spec change block
// and passes each runtime's items to out in change order. Map entries are
// walked with paged key queries; values the node cannot send, and keys the
// skip policy names, become placeholder items.
func (a *App) DecodeStorageItems(ctx context.Context, opts StorageOptions, out func(StorageResult) error) (StorageSummary, error) {
	changes := opts.Changes
	if len(changes) == 0 {
		var err error
		changes, err = a.cache.Changes(ctx)
		if err != nil {
			return StorageSummary{}, err
		}
	}
	if len(changes) == 0 {
		return StorageSummary{}, ErrNoSpecChanges
	}

	var sum StorageSummary
	sum.RunID = a.startRun(ctx, model.CommandDecodeStorageItems, map[string]any{
		"spec_changes": len(changes), "pallets": opts.Pallets, "continue_on_error": opts.ContinueOnError,
	})

	task := func(ctx context.Context, n uint64, s *session) (StorageResult, error) {
		if n >= uint64(len(changes)) {
			return StorageResult{}, runner.ErrNoMoreWork
		}
		return a.decodeStorageAt(ctx, s, changes[n], opts.Pallets)
	}
	emit := func(_ context.Context, _ uint64, res StorageResult) error {
		failures := res.Failures()
		sum.SpecVersions++
		sum.Items += int64(len(res.Items))
		sum.Failures += int64(failures)
		for _, it := range res.Items {
			if it.Skipped != "" {
				sum.Skipped++
			}
		}
		a.sinkStorage(sum.RunID, res)

		if err := out(res); err != nil {
			return err
		}
		if failures > 0 && !opts.ContinueOnError {
			return fmt.Errorf("spec version %d: %d failures: %w", res.SpecVersion, failures, ErrDecodeFailed)
		}
		return nil
	}

	r := runner.New(runner.NewRoundRobin(a.cfg.RPCURLs), a.initSession, task, emit,
		runner.WithLogger(a.logger),
		runner.WithMaxTaskRetries(a.cfg.MaxTaskRetries),
	)
	err := r.Run(ctx, a.cfg.Connections, 0)
	a.finishRun(ctx, sum.RunID, err, map[string]any{
		"spec_versions": sum.SpecVersions, "items": sum.Items, "skipped": sum.Skipped, "failures": sum.Failures,
	})
	return sum, err
}

func (a *App) decodeStorageAt(ctx context.Context, s *session, ch speccache.Change, pallets []string) (StorageResult, error) {
	ctx, span := a.tracer.Start(ctx, "kiroku.decode_storage",
		trace.WithAttributes(
			attribute.Int64("block", int64(ch.Block)), //nolint:gosec // block heights fit in int64
			attribute.Int64("spec_version", int64(ch.SpecVersion)),
		))
	defer span.End()

	res := StorageResult{Block: ch.Block, SpecVersion: ch.SpecVersion}
	hash, err := a.blockHash(ctx, s, ch.Block)
	if err != nil {
		return res, err
	}
	if err := s.useSpecAt(ctx, hash); err != nil {
		return metadataFailure(res, err)
	}
	res.SpecVersion = s.specVersion
	dec, err := s.storageDecoder()
	if err != nil {
		return metadataFailure(res, err)
	}

	for _, e := range dec.Entries() {
		if len(pallets) > 0 && !slices.Contains(pallets, e.Pallet) {
			continue
		}
		items, err := a.entryItems(ctx, s, dec, e, hash)
		if err != nil {
			return res, fmt.Errorf("%s.%s: %w", e.Pallet, e.Entry, err)
		}
		res.Items = append(res.Items, items...)
	}
	span.SetAttributes(attribute.Int("items", len(res.Items)))
	return res, nil
}

func metadataFailure(res StorageResult, err error) (StorageResult, error) {
	var me *MetadataError
	if errors.As(err, &me) {
		res.SpecVersion, res.Err = me.SpecVersion, err
		return res, nil
	}
	return res, err
}

func (a *App) blockHash(ctx context.Context, s *session, n uint64) (rpc.Bytes, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	defer cancel()
	return s.client.ChainGetBlockHash(ctx, n)
}

// entryItems decodes every stored key of one entry. Errors returned are
// transport failures; decode failures are recorded on the items.
func (a *App) entryItems(ctx context.Context, s *session, dec *decode.StorageDecoder, e schema.StorageEntry, hash rpc.Bytes) ([]decode.StorageItem, error) {
	prefix, err := dec.Prefix(e.Pallet, e.Entry)
	if err != nil {
		return []decode.StorageItem{{Pallet: e.Pallet, Entry: e.Entry, Err: err}}, nil
	}
	iterable, err := dec.IsIterable(e.Pallet, e.Entry)
	if err != nil {
		return []decode.StorageItem{{Pallet: e.Pallet, Entry: e.Entry, Key: prefix, Err: err}}, nil
	}
	if !iterable {
		item, ok, err := a.fetchItem(ctx, s, dec, e, prefix, hash)
		if err != nil || !ok {
			return nil, err
		}
		return []decode.StorageItem{item}, nil
	}

	var items []decode.StorageItem
	var start []byte
	for {
		keys, err := a.keysPage(ctx, s, prefix, start, hash)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if a.cfg.StorageMaxKeys > 0 && len(items) >= a.cfg.StorageMaxKeys {
				a.logger.Debug("kiroku: entry truncated", "pallet", e.Pallet, "entry", e.Entry, "keys", len(items))
				return items, nil
			}
			item, ok, err := a.fetchItem(ctx, s, dec, e, key, hash)
			if err != nil {
				return nil, err
			}
			if ok {
				items = append(items, item)
			}
		}
		if len(keys) < int(a.cfg.StoragePageSize) {
			return items, nil
		}
		start = keys[len(keys)-1]
	}
}

func (a *App) keysPage(ctx context.Context, s *session, prefix, start []byte, hash rpc.Bytes) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	defer cancel()
	return s.client.StateGetKeysPaged(ctx, prefix, a.cfg.StoragePageSize, start, hash)
}

// fetchItem reads and decodes one key. ok is false when nothing is stored.
func (a *App) fetchItem(ctx context.Context, s *session, dec *decode.StorageDecoder, e schema.StorageEntry, key []byte, hash rpc.Bytes) (decode.StorageItem, bool, error) {
	if rule, ok := a.skip.Match(key, s.specVersion); ok {
		return decode.SkippedItem(e.Pallet, e.Entry, key, rule.Reason), true, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.RPCTimeout)
	data, ok, err := s.client.StateGetStorage(callCtx, key, hash)
	cancel()
	if errors.Is(err, rpc.ErrOversized) {
		a.logger.Warn("kiroku: oversized storage value", "pallet", e.Pallet, "entry", e.Entry, "key", rpc.Bytes(key))
		// A read limit violation kills the connection; the node's own
		// refusal does not.
		if s.client.Err() != nil {
			if err := s.redial(ctx); err != nil {
				return decode.StorageItem{}, false, err
			}
		}
		return decode.SkippedItem(e.Pallet, e.Entry, key, oversizedReason), true, nil
	}
	if err != nil || !ok {
		return decode.StorageItem{}, false, err
	}
	return dec.DecodeItem(e.Pallet, e.Entry, key, data, s.specVersion, a.skip), true, nil
}

// sinkStorage queues a runtime's records. Called from emit only.
func (a *App) sinkStorage(runID uuid.UUID, r StorageResult) {
	if a.buf == nil || runID == uuid.Nil {
		return
	}
	if err := a.buf.AppendStorageItems(storageRecords(runID, r)...); err != nil {
		a.logger.Warn("kiroku: sink rejected storage items", "spec_version", r.SpecVersion, "error", err)
	}
}

func storageRecords(runID uuid.UUID, r StorageResult) []model.StorageItemRecord {
	if r.Err != nil {
		return []model.StorageItemRecord{{
			RunID: runID, BlockNumber: r.Block, SpecVersion: r.SpecVersion, Key: []byte{}, Error: r.Err.Error(),
		}}
	}
	recs := make([]model.StorageItemRecord, 0, len(r.Items))
	for _, it := range r.Items {
		rec := model.StorageItemRecord{
			RunID:       runID,
			BlockNumber: r.Block,
			SpecVersion: r.SpecVersion,
			Pallet:      it.Pallet,
			Entry:       it.Entry,
			Key:         it.Key,
			Skipped:     it.Skipped != "",
		}
		if rec.Key == nil {
			rec.Key = []byte{}
		}
		if len(it.Keys) > 0 {
			if b, err := json.Marshal(it.Keys); err == nil {
				rec.Keys = b
			}
		}
		if it.Value != nil {
			if b, err := json.Marshal(it.Value); err == nil {
				rec.Value = b
			}
		}
		if it.Err != nil {
			rec.Error = it.Err.Error()
		}
		recs = append(recs, rec)
	}
	return recs
}
