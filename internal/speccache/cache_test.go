package speccache_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kiroku/internal/speccache"
)

func open(t *testing.T) *speccache.Cache {
	t.Helper()
	c, err := speccache.Open(context.Background(), filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestChangesRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := open(t)

	_, ok, err := c.LastChange(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.PutChanges(ctx,
		speccache.Change{Block: 29231, SpecVersion: 1},
		speccache.Change{Block: 0, SpecVersion: 0},
		speccache.Change{Block: 188836, SpecVersion: 5},
	))
	// Re-recording a block replaces its version.
	require.NoError(t, c.PutChanges(ctx, speccache.Change{Block: 188836, SpecVersion: 6}))

	got, err := c.Changes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []speccache.Change{{0, 0}, {29231, 1}, {188836, 6}}, got)

	last, ok, err := c.LastChange(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, speccache.Change{Block: 188836, SpecVersion: 6}, last)
}

func TestMetadata(t *testing.T) {
	ctx := context.Background()
	c := open(t)

	_, err := c.Metadata(ctx, 9430)
	assert.ErrorIs(t, err, speccache.ErrNotFound)

	require.NoError(t, c.PutMetadata(ctx, 9430, []byte("meta\x0e")))
	data, err := c.Metadata(ctx, 9430)
	require.NoError(t, err)
	assert.Equal(t, []byte("meta\x0e"), data)
}

func TestPersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	c, err := speccache.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, c.PutChanges(ctx, speccache.Change{Block: 10, SpecVersion: 2}))
	require.NoError(t, c.Close())

	c, err = speccache.Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	got, err := c.Changes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []speccache.Change{{Block: 10, SpecVersion: 2}}, got)
}
