package memorystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/schemastore"
)

func TestLedgerGoldenPath(t *testing.T) {
	store := NewLedgerStore()
	ctx := context.Background()

	handle, err := store.CreateLedger(ctx, schemastore.CreateLedgerOptions{SchemaID: "t"})
	require.NoError(t, err)

	entryID, err := handle.Append(ctx, []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, int64(0), entryID)
	require.NoError(t, handle.Close(ctx))
	require.NoError(t, handle.Close(ctx))

	reader, err := store.OpenLedger(ctx, handle.ID())
	require.NoError(t, err)
	payload, err := reader.ReadEntry(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, payload)
	require.NoError(t, reader.Close(ctx))

	_, err = reader.ReadEntry(ctx, 1)
	assert.ErrorIs(t, err, schemastore.ErrEntryNotFound)
	_, err = store.OpenLedger(ctx, 999)
	assert.ErrorIs(t, err, schemastore.ErrLedgerNotFound)

	counters := store.Counters()
	assert.Equal(t, int64(1), counters.LedgerCreates)
	assert.Equal(t, int64(2), counters.LedgerOpens)
	assert.Equal(t, int64(1), counters.EntryAppends)
	assert.Equal(t, int64(2), counters.EntryReads)
}

func TestLocatorCompareAndSwap(t *testing.T) {
	store := NewLocatorStore()
	ctx := context.Background()

	_, ok, err := store.Read(ctx, "/schemas/t")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Create(ctx, "/schemas/t", []byte("v0")))
	assert.ErrorIs(t, store.Create(ctx, "/schemas/t", []byte("again")), schemastore.ErrNodeExists)

	node, ok, err := store.Read(ctx, "/schemas/t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v0"), node.Content)
	assert.Equal(t, int64(0), node.Version)

	require.NoError(t, store.Update(ctx, "/schemas/t", []byte("v1"), 0))
	assert.ErrorIs(t, store.Update(ctx, "/schemas/t", []byte("stale"), 0), schemastore.ErrNodeVersionMismatch)
	assert.ErrorIs(t, store.Update(ctx, "/schemas/missing", []byte("x"), 0), schemastore.ErrNodeVersionMismatch)

	node, ok, err = store.Read(ctx, "/schemas/t")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), node.Content)
	assert.Equal(t, int64(1), node.Version)
}

func TestLocatorEnsureRoot(t *testing.T) {
	store := NewLocatorStore()
	ctx := context.Background()
	require.NoError(t, store.EnsureRoot(ctx, "/schemas"))
	require.NoError(t, store.EnsureRoot(ctx, "/schemas"))
}
