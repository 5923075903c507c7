package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/schemastore"
)

func TestLedgerGoldenPath(t *testing.T) {
	store := NewLedgerStore(NewTestDB(t))
	ctx := context.Background()

	handle, err := store.CreateLedger(ctx, schemastore.CreateLedgerOptions{
		SchemaID:     "t",
		EnsembleSize: 3,
		WriteQuorum:  2,
		AckQuorum:    2,
		DigestType:   "crc32c",
	})
	require.NoError(t, err)

	entryID, err := handle.Append(ctx, []byte{0xDE, 0xAD})
	require.NoError(t, err)
	assert.Equal(t, int64(0), entryID)
	require.NoError(t, handle.Close(ctx))

	reader, err := store.OpenLedger(ctx, handle.ID())
	require.NoError(t, err)
	payload, err := reader.ReadEntry(ctx, entryID)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, payload)
	require.NoError(t, reader.Close(ctx))
}

func TestLedgerCloseIsIdempotent(t *testing.T) {
	store := NewLedgerStore(NewTestDB(t))
	ctx := context.Background()

	handle, err := store.CreateLedger(ctx, schemastore.CreateLedgerOptions{SchemaID: "t"})
	require.NoError(t, err)
	_, err = handle.Append(ctx, []byte{0x01})
	require.NoError(t, err)
	require.NoError(t, handle.Close(ctx))
	require.NoError(t, handle.Close(ctx))
}

func TestAppendToClosedLedgerFails(t *testing.T) {
	store := NewLedgerStore(NewTestDB(t))
	ctx := context.Background()

	handle, err := store.CreateLedger(ctx, schemastore.CreateLedgerOptions{SchemaID: "t"})
	require.NoError(t, err)
	require.NoError(t, handle.Close(ctx))
	_, err = handle.Append(ctx, []byte{0x01})
	assert.Error(t, err)
}

func TestLedgerNotFound(t *testing.T) {
	store := NewLedgerStore(NewTestDB(t))
	ctx := context.Background()

	_, err := store.OpenLedger(ctx, 12345)
	assert.ErrorIs(t, err, schemastore.ErrLedgerNotFound)
}

func TestEntryNotFound(t *testing.T) {
	store := NewLedgerStore(NewTestDB(t))
	ctx := context.Background()

	handle, err := store.CreateLedger(ctx, schemastore.CreateLedgerOptions{SchemaID: "t"})
	require.NoError(t, err)
	_, err = handle.ReadEntry(ctx, 0)
	assert.ErrorIs(t, err, schemastore.ErrEntryNotFound)
}

func TestEntryIDsAreDensePerLedger(t *testing.T) {
	store := NewLedgerStore(NewTestDB(t))
	ctx := context.Background()

	first, err := store.CreateLedger(ctx, schemastore.CreateLedgerOptions{SchemaID: "t"})
	require.NoError(t, err)
	second, err := store.CreateLedger(ctx, schemastore.CreateLedgerOptions{SchemaID: "t"})
	require.NoError(t, err)

	for i := int64(0); i < 3; i++ {
		entryID, err := first.Append(ctx, []byte{byte(i)})
		require.NoError(t, err)
		assert.Equal(t, i, entryID)
	}
	entryID, err := second.Append(ctx, []byte{0xFF})
	require.NoError(t, err)
	assert.Equal(t, int64(0), entryID)
}
