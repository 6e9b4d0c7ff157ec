package rpc_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/rpc"
)

type call struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// handler answers one call. Returning nil for both sends a null result.
type handler func(c call) (result any, rpcErr *rpc.Error)

// fakeNode serves JSON-RPC over WebSocket, answering each call on its own
// goroutine so responses can arrive out of order.
func fakeNode(t *testing.T, h handler) string {
	t.Helper()
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
				result, rpcErr := h(c)
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

func dial(t *testing.T, url string, opts ...rpc.Option) *rpc.Client {
	t.Helper()
	c, err := rpc.Dial(context.Background(), url, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLegacyMethods(t *testing.T) {
	url := fakeNode(t, func(c call) (any, *rpc.Error) {
		switch c.Method {
		case "chain_getBlockHash":
			if string(c.Params[0]) == "99" {
				return nil, nil
			}
			return "0x0102", nil
		case "chain_getBlock":
			return map[string]any{"block": map[string]any{
				"header":     map[string]any{"parentHash": "0xaa", "number": "0x1f", "stateRoot": "0xbb", "extrinsicsRoot": "0xcc"},
				"extrinsics": []string{"0x0400", "0x0801"},
			}}, nil
		case "chain_getHeader":
			assert.Empty(t, c.Params)
			return map[string]any{"parentHash": "0xaa", "number": "0x10", "stateRoot": "0xbb", "extrinsicsRoot": "0xcc"}, nil
		case "state_getRuntimeVersion":
			return map[string]any{"specName": "polkadot", "specVersion": 9430, "transactionVersion": 24}, nil
		case "state_getMetadata":
			return "0x6d657461", nil
		case "state_getStorage":
			if string(c.Params[0]) == `"0xdead"` {
				return nil, nil
			}
			return "0x2a", nil
		case "state_getKeysPaged":
			assert.Equal(t, `"0x26aa"`, string(c.Params[0]))
			assert.Equal(t, "2", string(c.Params[1]))
			if string(c.Params[2]) == "null" {
				return []string{"0x26aa01", "0x26aa02"}, nil
			}
			return []string{}, nil
		}
		return nil, &rpc.Error{Code: -32601, Message: "Method not found"}
	})
	client := dial(t, url)
	ctx := context.Background()

	hash, err := client.ChainGetBlockHash(ctx, 31)
	require.NoError(t, err)
	assert.Equal(t, rpc.Bytes{1, 2}, hash)

	_, err = client.ChainGetBlockHash(ctx, 99)
	assert.ErrorIs(t, err, rpc.ErrNotFound)

	block, err := client.ChainGetBlock(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, rpc.BlockNumber(31), block.Header.Number)
	assert.Equal(t, []rpc.Bytes{{0x04, 0x00}, {0x08, 0x01}}, block.Extrinsics)

	head, err := client.ChainGetHeader(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, rpc.BlockNumber(16), head.Number)

	rv, err := client.StateGetRuntimeVersion(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, uint32(9430), rv.SpecVersion)
	assert.Equal(t, "polkadot", rv.SpecName)

	md, err := client.StateGetMetadata(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, []byte("meta"), md)

	v, ok, err := client.StateGetStorage(ctx, []byte{0xbe, 0xef}, hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{42}, v)

	_, ok, err = client.StateGetStorage(ctx, []byte{0xde, 0xad}, hash)
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := client.StateGetKeysPaged(ctx, []byte{0x26, 0xaa}, 2, nil, hash)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x26, 0xaa, 0x01}, {0x26, 0xaa, 0x02}}, keys)

	keys, err = client.StateGetKeysPaged(ctx, []byte{0x26, 0xaa}, 2, keys[1], hash)
	require.NoError(t, err)
	assert.Empty(t, keys)

	err = client.Call(ctx, "author_rotateKeys", nil)
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.NotErrorIs(t, err, rpc.ErrOversized)
}

func TestConcurrentCallsMatchedByID(t *testing.T) {
	url := fakeNode(t, func(c call) (any, *rpc.Error) {
		var n int
		_ = json.Unmarshal(c.Params[0], &n)
		// Later requests answer first.
		time.Sleep(time.Duration(20-n) * time.Millisecond)
		return n * n, nil
	})
	client := dial(t, url)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Go(func() {
			var got int
			assert.NoError(t, client.Call(context.Background(), "square", &got, i))
			assert.Equal(t, i*i, got)
		})
	}
	wg.Wait()
}

func TestOversizedResponses(t *testing.T) {
	url := fakeNode(t, func(c call) (any, *rpc.Error) {
		if c.Method == "refuse" {
			return nil, &rpc.Error{Code: rpc.CodeOversized, Message: "Response is too big"}
		}
		return strings.Repeat("a", 4096), nil
	})

	client := dial(t, url, rpc.WithMaxMessageBytes(1024))
	err := client.Call(context.Background(), "refuse", nil)
	assert.ErrorIs(t, err, rpc.ErrOversized)
	assert.NoError(t, client.Err())

	err = client.Call(context.Background(), "huge", nil)
	assert.ErrorIs(t, err, rpc.ErrOversized)
	assert.ErrorIs(t, client.Err(), rpc.ErrOversized)
}

func TestCallCancelled(t *testing.T) {
	url := fakeNode(t, func(call) (any, *rpc.Error) {
		time.Sleep(time.Second)
		return 1, nil
	})
	client := dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.Call(ctx, "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCallAfterClose(t *testing.T) {
	url := fakeNode(t, func(call) (any, *rpc.Error) { return 1, nil })
	client, err := rpc.Dial(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	err = client.Call(context.Background(), "anything", nil)
	assert.ErrorIs(t, err, rpc.ErrClosed)
}

type countingLimiter struct {
	waits atomic.Int32
	keys  sync.Map
}

func (l *countingLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (l *countingLimiter) Close() error                                { return nil }
func (l *countingLimiter) Wait(_ context.Context, key string) error {
	l.waits.Add(1)
	l.keys.Store(key, true)
	return nil
}

func TestCallsAreThrottledPerURL(t *testing.T) {
	url := fakeNode(t, func(call) (any, *rpc.Error) { return 1, nil })
	lim := &countingLimiter{}
	client := dial(t, url, rpc.WithLimiter(lim))

	for range 3 {
		require.NoError(t, client.Call(context.Background(), "x", nil))
	}
	assert.Equal(t, int32(3), lim.waits.Load())
	_, ok := lim.keys.Load(url)
	assert.True(t, ok)
	assert.Equal(t, url, client.URL())
}

func TestDialFailure(t *testing.T) {
	_, err := rpc.Dial(context.Background(), "ws://127.0.0.1:1")
	assert.Error(t, err)
}

func TestBytesJSON(t *testing.T) {
	data, err := json.Marshal(rpc.Bytes{0xde, 0xad})
	require.NoError(t, err)
	assert.JSONEq(t, `"0xdead"`, string(data))

	var b rpc.Bytes
	assert.Error(t, json.Unmarshal([]byte(`"0xzz"`), &b))

	var n rpc.BlockNumber
	require.NoError(t, json.Unmarshal([]byte(`42`), &n))
	assert.Equal(t, rpc.BlockNumber(42), n)
}
