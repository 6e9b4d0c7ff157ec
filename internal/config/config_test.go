package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvHelpersRejectMalformedValues(t *testing.T) {
	cases := []struct {
		value string
		parse func(key string) error
		want  string
	}{
		{"abc", func(k string) error { _, err := envInt(k, 0); return err }, `="abc" is not a valid integer`},
		{"fast", func(k string) error { _, err := envFloat(k, 0); return err }, `="fast" is not a valid number`},
		{"maybe", func(k string) error { _, err := envBool(k, false); return err }, `="maybe" is not a valid boolean`},
		{"soon", func(k string) error { _, err := envDuration(k, 0); return err }, `="soon" is not a valid duration`},
	}
	for _, tc := range cases {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("KIROKU_TEST_VALUE", tc.value)
			err := tc.parse("KIROKU_TEST_VALUE")
			require.Error(t, err)
			assert.Equal(t, "KIROKU_TEST_VALUE"+tc.want, err.Error())
		})
	}
}

func TestEnvHelpersFallBackWhenUnset(t *testing.T) {
	n, err := envInt("KIROKU_TEST_UNSET", 99)
	require.NoError(t, err)
	assert.Equal(t, 99, n)

	d, err := envDuration("KIROKU_TEST_UNSET", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	urls := envList("KIROKU_TEST_UNSET", DefaultRPCURLs)
	assert.Equal(t, DefaultRPCURLs, urls)
	urls[0] = "changed"
	assert.NotEqual(t, "changed", DefaultRPCURLs[0])
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultRPCURLs, cfg.RPCURLs)
	assert.Equal(t, 4, cfg.Connections)
	assert.Equal(t, 5, cfg.MaxTaskRetries)
	assert.Equal(t, 60*time.Second, cfg.RPCTimeout)
	assert.Equal(t, uint32(1000), cfg.StoragePageSize)
	assert.Equal(t, "kiroku.db", cfg.CachePath)
	assert.Zero(t, cfg.RPCRate)
}

func TestLoadParsesURLList(t *testing.T) {
	t.Setenv("KIROKU_RPC_URLS", " wss://a.example , ,ws://b.example:9944")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"wss://a.example", "ws://b.example:9944"}, cfg.RPCURLs)
}

func TestLoadReportsEveryMalformedVariable(t *testing.T) {
	t.Setenv("KIROKU_CONNECTIONS", "abc")
	t.Setenv("KIROKU_RPC_TIMEOUT", "soon")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `KIROKU_CONNECTIONS="abc"`)
	assert.Contains(t, err.Error(), `KIROKU_RPC_TIMEOUT="soon"`)
}

func TestLoadValidates(t *testing.T) {
	cases := map[string]struct {
		key, value, want string
	}{
		"http url":        {"KIROKU_RPC_URLS", "https://rpc.polkadot.io", "ws://"},
		"no connections":  {"KIROKU_CONNECTIONS", "0", "KIROKU_CONNECTIONS"},
		"negative retry":  {"KIROKU_MAX_TASK_RETRIES", "-1", "KIROKU_MAX_TASK_RETRIES"},
		"zero page size":  {"KIROKU_STORAGE_PAGE_SIZE", "0", "KIROKU_STORAGE_PAGE_SIZE"},
		"prefix too big":  {"KIROKU_SS58_PREFIX", "20000", "KIROKU_SS58_PREFIX"},
		"negative prefix": {"KIROKU_SS58_PREFIX", "-2", "KIROKU_SS58_PREFIX"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
