package kiroku_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku"
	"github.com/ashita-ai/kiroku/internal/decode"
	"github.com/ashita-ai/kiroku/internal/hashing"
	"github.com/ashita-ai/kiroku/internal/historic"
	"github.com/ashita-ai/kiroku/internal/metadata"
	"github.com/ashita-ai/kiroku/internal/metadata/metadatatest"
	"github.com/ashita-ai/kiroku/internal/rpc"
	"github.com/ashita-ai/kiroku/internal/scale"
	"github.com/ashita-ai/kiroku/internal/speccache"
)

// The fake chain has blocks 0 to 5. Spec version 1 is in force up to block
// 2 and spec version 2 from block 3. Block 4 carries an extrinsic with an
// unknown envelope.
const (
	headBlock   = 5
	upgradedAt  = 3
	badBlock    = 4
	transferAmt = 12345
)

var alice, _ = hex.DecodeString("d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d")

func blockHash(n uint64) string { return fmt.Sprintf("0x%064x", n+1) }

// hashNumber inverts blockHash. It runs on server goroutines, so it only
// asserts.
func hashNumber(t *testing.T, raw json.RawMessage) uint64 {
	var s string
	assert.NoError(t, json.Unmarshal(raw, &s))
	if !assert.Len(t, s, 66) {
		return 0
	}
	n, err := strconv.ParseUint(s[len(s)-16:], 16, 64)
	assert.NoError(t, err)
	return n - 1
}

func specAt(n uint64) uint32 {
	if n >= upgradedAt {
		return 2
	}
	return 1
}

func hexOf(b []byte) string { return "0x" + hex.EncodeToString(b) }

func transfer() []byte {
	bob := make([]byte, 32)
	bob[0] = 0xb0
	var e scale.Encoder
	e.U8(0x04).U8(5).U8(0).Raw(bob).Compact(transferAmt)
	return append(scale.EncodeCompact(uint64(len(e.Bytes()))), e.Bytes()...)
}

func badEnvelope() []byte {
	return append(scale.EncodeCompact(3), 0x05, 0x00, 0x00)
}

type call struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// fakeNode serves the fake chain over JSON-RPC on a WebSocket.
func fakeNode(t *testing.T) string {
	t.Helper()
	md := hexOf(metadatatest.Encode(metadatatest.LegacyV12()))

	accountKey := append(hashing.StoragePrefix("System", "Account"), hashing.Blake2_128(alice)...)
	accountKey = append(accountKey, alice...)
	var info scale.Encoder
	info.U32(7).Raw(make([]byte, 16))
	var number scale.Encoder
	number.U32(42)
	values := map[string]string{
		hexOf(accountKey): hexOf(info.Bytes()),
		hexOf(hashing.StoragePrefix("System", "Number")): hexOf(number.Bytes()),
	}
	oversized := hexOf(hashing.StoragePrefix("Timestamp", "Now"))

	handle := func(c call) (any, *rpc.Error) {
		switch c.Method {
		case "chain_getBlockHash":
			n, err := strconv.ParseUint(string(c.Params[0]), 10, 64)
			if err != nil || n > headBlock {
				return nil, nil
			}
			return blockHash(n), nil
		case "chain_getHeader":
			return map[string]any{"parentHash": blockHash(headBlock - 1), "number": fmt.Sprintf("0x%x", headBlock)}, nil
		case "chain_getBlock":
			n := hashNumber(t, c.Params[0])
			parent := blockHash(0)
			if n > 0 {
				parent = blockHash(n - 1)
			}
			exts := []string{hexOf(transfer())}
			if n == badBlock {
				exts = append(exts, hexOf(badEnvelope()))
			}
			return map[string]any{"block": map[string]any{
				"header":     map[string]any{"parentHash": parent, "number": fmt.Sprintf("0x%x", n)},
				"extrinsics": exts,
			}}, nil
		case "state_getRuntimeVersion":
			n := hashNumber(t, c.Params[0])
			return map[string]any{"specName": "polkadot", "specVersion": specAt(n)}, nil
		case "state_getMetadata":
			return md, nil
		case "state_getKeysPaged":
			var prefix string
			assert.NoError(t, json.Unmarshal(c.Params[0], &prefix))
			var keys []string
			for k := range values {
				if strings.HasPrefix(k, prefix) && k != prefix {
					keys = append(keys, k)
				}
			}
			return keys, nil
		case "state_getStorage":
			var key string
			assert.NoError(t, json.Unmarshal(c.Params[0], &key))
			if key == oversized {
				return nil, &rpc.Error{Code: rpc.CodeOversized, Message: "Response is too big"}
			}
			if v, ok := values[key]; ok {
				return v, nil
			}
			return nil, nil
		}
		return nil, &rpc.Error{Code: -32601, Message: "Method not found"}
	}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var writeMu sync.Mutex
		for {
			var c call
			if err := conn.ReadJSON(&c); err != nil {
				return
			}
			go func() {
				result, rpcErr := handle(c)
				msg := map[string]any{"jsonrpc": "2.0", "id": c.ID}
				if rpcErr != nil {
					msg["error"] = rpcErr
				} else {
					msg["result"] = result
				}
				writeMu.Lock()
				defer writeMu.Unlock()
				_ = conn.WriteJSON(msg)
			}()
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newApp(t *testing.T, opts ...kiroku.Option) *kiroku.App {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	types, err := historic.ParseChainRegistry([]byte(metadatatest.ChainTypes))
	require.NoError(t, err)
	url := fakeNode(t)
	base := []kiroku.Option{
		kiroku.WithLogger(slog.New(slog.DiscardHandler)),
		kiroku.WithRPCURLs(url, url),
		kiroku.WithConnections(3),
		kiroku.WithChainTypes(types),
		kiroku.WithCachePath(filepath.Join(t.TempDir(), "cache.db")),
	}
	app, err := kiroku.New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestDecodeBlocksInOrder(t *testing.T) {
	app := newApp(t)

	var got []kiroku.BlockResult
	sum, err := app.DecodeBlocks(context.Background(), kiroku.BlockOptions{From: 1, To: 3}, func(b kiroku.BlockResult) error {
		got = append(got, b)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), sum.Blocks)
	assert.Equal(t, int64(3), sum.Extrinsics)
	assert.Zero(t, sum.Failures)

	require.Len(t, got, 3)
	for i, b := range got {
		assert.Equal(t, uint64(i+1), b.Number)
		require.Len(t, b.Extrinsics, 1)
		x := b.Extrinsics[0]
		require.NoError(t, x.Err)
		assert.Equal(t, decode.Unsigned, x.Extrinsic.Kind)
		assert.Equal(t, "Balances", x.Extrinsic.Call.Pallet)
		assert.Equal(t, "transfer", x.Extrinsic.Call.Name)
		assert.Equal(t, strconv.Itoa(transferAmt), x.Extrinsic.Call.Args[1].Value.String())
	}
	// Block 3 enacts the upgrade but still executes under its parent's runtime.
	assert.Equal(t, uint32(1), got[2].SpecVersion)
}

func TestDecodeBlocksErrorsOnlyToChainEnd(t *testing.T) {
	app := newApp(t)

	var got []kiroku.BlockResult
	sum, err := app.DecodeBlocks(context.Background(),
		kiroku.BlockOptions{From: upgradedAt, ErrorsOnly: true, ContinueOnError: true},
		func(b kiroku.BlockResult) error {
			got = append(got, b)
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, int64(headBlock-upgradedAt+1), sum.Blocks)
	assert.Equal(t, int64(1), sum.Failures)

	require.Len(t, got, 1)
	assert.Equal(t, uint64(badBlock), got[0].Number)
	assert.Equal(t, uint32(2), got[0].SpecVersion)
	require.Len(t, got[0].Extrinsics, 1)
	assert.Equal(t, 1, got[0].Extrinsics[0].Index)
	assert.ErrorIs(t, got[0].Extrinsics[0].Err, decode.ErrUnsupportedVersion)
}

func TestDecodeBlocksStopsAtFirstFailure(t *testing.T) {
	app := newApp(t)

	var seen []uint64
	_, err := app.DecodeBlocks(context.Background(), kiroku.BlockOptions{From: 1}, func(b kiroku.BlockResult) error {
		seen = append(seen, b.Number)
		return nil
	})
	require.ErrorIs(t, err, kiroku.ErrDecodeFailed)
	assert.Equal(t, []uint64{1, 2, 3, 4}, seen)
}

func TestDecodeBlocksRejectsInvertedRange(t *testing.T) {
	app := newApp(t)
	_, err := app.DecodeBlocks(context.Background(), kiroku.BlockOptions{From: 4, To: 2}, func(kiroku.BlockResult) error { return nil })
	assert.Error(t, err)
}

func TestFindSpecChanges(t *testing.T) {
	app := newApp(t)
	ctx := context.Background()

	var streamed []speccache.Change
	changes, err := app.FindSpecChanges(ctx, kiroku.SpecChangeOptions{}, func(c speccache.Change) error {
		streamed = append(streamed, c)
		return nil
	})
	require.NoError(t, err)
	want := []speccache.Change{{Block: 0, SpecVersion: 1}, {Block: upgradedAt, SpecVersion: 2}}
	assert.Equal(t, want, changes)
	assert.Equal(t, want, streamed)

	// Resuming from the cached upgrade finds nothing new.
	changes, err = app.FindSpecChanges(ctx, kiroku.SpecChangeOptions{Resume: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, []speccache.Change{{Block: upgradedAt, SpecVersion: 2}}, changes)
}

func TestDecodeStorageItemsFromCache(t *testing.T) {
	app := newApp(t, kiroku.WithSkipKeys(hexOf(hashing.StoragePrefix("System", "Number"))+"@2"))
	ctx := context.Background()

	_, err := app.DecodeStorageItems(ctx, kiroku.StorageOptions{}, func(kiroku.StorageResult) error { return nil })
	require.ErrorIs(t, err, kiroku.ErrNoSpecChanges)

	_, err = app.FindSpecChanges(ctx, kiroku.SpecChangeOptions{}, nil)
	require.NoError(t, err)

	var got []kiroku.StorageResult
	sum, err := app.DecodeStorageItems(ctx, kiroku.StorageOptions{}, func(r kiroku.StorageResult) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.SpecVersions)
	assert.Zero(t, sum.Failures)
	require.Len(t, got, 2)

	items := func(r kiroku.StorageResult) map[string]decode.StorageItem {
		m := make(map[string]decode.StorageItem)
		for _, it := range r.Items {
			m[it.Pallet+"."+it.Entry] = it
		}
		return m
	}

	v1 := items(got[0])
	assert.Equal(t, uint32(1), got[0].SpecVersion)
	require.Len(t, v1, 3, "Timestamp.Now is a placeholder, Balances.Pairs is empty")

	account := v1["System.Account"]
	require.NoError(t, account.Err)
	require.Len(t, account.Keys, 1)
	require.NotNil(t, account.Keys[0].Value)
	assert.Equal(t, hexOf(alice), account.Keys[0].Value.String())
	require.NotNil(t, account.Value)
	assert.Contains(t, account.Value.String(), "nonce")

	assert.Equal(t, "42", v1["System.Number"].Value.String())
	assert.Empty(t, v1["System.Number"].Skipped)
	assert.NotEmpty(t, v1["Timestamp.Now"].Skipped)

	// The skip rule applies from spec version 2.
	v2 := items(got[1])
	assert.Equal(t, uint32(2), got[1].SpecVersion)
	assert.NotEmpty(t, v2["System.Number"].Skipped)
	assert.Equal(t, int64(3), sum.Skipped)
}

func TestDecodeStorageItemsPalletFilter(t *testing.T) {
	app := newApp(t)

	var got []kiroku.StorageResult
	_, err := app.DecodeStorageItems(context.Background(), kiroku.StorageOptions{
		Changes: []speccache.Change{{Block: 1, SpecVersion: 1}},
		Pallets: []string{"Timestamp"},
	}, func(r kiroku.StorageResult) error {
		got = append(got, r)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Items, 1)
	assert.Equal(t, "Now", got[0].Items[0].Entry)
	assert.NotEmpty(t, got[0].Items[0].Skipped)
}

func TestFetchMetadata(t *testing.T) {
	app := newApp(t)

	res, err := app.FetchMetadata(context.Background(), upgradedAt)
	require.NoError(t, err)
	assert.Equal(t, uint64(upgradedAt), res.Block)
	assert.Equal(t, uint32(2), res.SpecVersion)
	assert.Equal(t, 12, res.Version)
	legacy, ok := res.Metadata.(*metadata.Legacy)
	require.True(t, ok)
	assert.Len(t, legacy.Modules, 4)

	_, err = json.Marshal(res)
	assert.NoError(t, err)
}

func TestRunQueriesNeedSink(t *testing.T) {
	app := newApp(t)
	_, err := app.ListRuns(context.Background(), 10)
	assert.ErrorIs(t, err, kiroku.ErrNoSink)
}
