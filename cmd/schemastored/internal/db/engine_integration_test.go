package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/schemastore"
)

// The engine's behavior is covered against the in-memory backend in the
// schemastore package; this exercises the same golden path against SQLite.
func TestEngineOnSQLite(t *testing.T) {
	db := NewTestDB(t)
	locators, err := NewLocatorStore(db, 16)
	require.NoError(t, err)

	engine, err := schemastore.New(schemastore.Config{
		LedgerStore:  NewLedgerStore(db),
		LocatorStore: locators,
		EnsembleSize: 1,
		WriteQuorum:  1,
		AckQuorum:    1,
		DigestType:   "crc32c",
	})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, engine.Init(ctx))
	require.NoError(t, engine.Start())
	defer func() {
		assert.NoError(t, engine.Close())
	}()

	version, err := engine.Put(ctx, "t", []byte{0x01, 0x02}, []byte{0xAA})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)

	// Idempotent re-put.
	version, err = engine.Put(ctx, "t", []byte{0x01, 0x02}, []byte{0xAA})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), version)

	version, err = engine.Put(ctx, "t", []byte{0x03}, []byte{0xBB})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), version)

	latest, ok, err := engine.GetLatest(ctx, "t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x03}, latest.Data)
	assert.Equal(t, uint64(1), latest.Version)

	schema, ok, err := engine.GetByVersion(ctx, "t", 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x01, 0x02}, schema.Data)

	futures, err := engine.GetAll(ctx, "t")
	require.NoError(t, err)
	require.Len(t, futures, 2)
	for _, f := range futures {
		_, err := f.Await(ctx)
		require.NoError(t, err)
	}

	version, ok, err = engine.Delete(ctx, "t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(2), version)

	latest, ok, err = engine.GetLatest(ctx, "t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, latest.Data)
	assert.Equal(t, uint64(2), latest.Version)
}
