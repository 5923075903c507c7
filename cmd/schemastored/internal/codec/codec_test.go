package codec

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionRoundTrip(t *testing.T) {
	for _, p := range []Position{
		{LedgerID: 0, EntryID: 0},
		{LedgerID: 42, EntryID: 7},
		NoPosition,
	} {
		decoded, err := UnmarshalPosition(MarshalPosition(p))
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	}
	assert.True(t, NoPosition.IsSentinel())
	assert.False(t, Position{LedgerID: -1, EntryID: 0}.IsSentinel())
}

func TestIndexEntryRoundTrip(t *testing.T) {
	entry := IndexEntry{
		Version:  3,
		Hash:     []byte{0xAA, 0xBB, 0xCC},
		Position: Position{LedgerID: 17, EntryID: 0},
	}
	decoded, err := UnmarshalIndexEntry(MarshalIndexEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)
}

func TestIndexEntryEmptyHash(t *testing.T) {
	// Tombstones register with an empty hash; the field is omitted on the
	// wire and decodes back to nil.
	entry := IndexEntry{Version: 5, Position: Position{LedgerID: 9, EntryID: 0}}
	decoded, err := UnmarshalIndexEntry(MarshalIndexEntry(entry))
	require.NoError(t, err)
	assert.Nil(t, decoded.Hash)
	assert.Equal(t, entry.Version, decoded.Version)
}

func TestSchemaEntryRoundTrip(t *testing.T) {
	entry := SchemaEntry{
		SchemaData: []byte{0x01, 0x02, 0x03},
		Index: []IndexEntry{
			{Version: 0, Hash: []byte{0xAA}, Position: Position{LedgerID: 1, EntryID: 0}},
			{Version: 1, Hash: []byte{0xBB}, Position: Position{LedgerID: 2, EntryID: 0}},
		},
	}
	decoded, err := UnmarshalSchemaEntry(MarshalSchemaEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)
}

func TestSchemaLocatorRoundTrip(t *testing.T) {
	info := IndexEntry{Version: 1, Hash: []byte{0xBB}, Position: Position{LedgerID: 2, EntryID: 0}}
	locator := SchemaLocator{
		Info: info,
		Index: []IndexEntry{
			{Version: 0, Hash: []byte{0xAA}, Position: Position{LedgerID: 1, EntryID: 0}},
			info,
		},
	}
	decoded, err := UnmarshalSchemaLocator(MarshalSchemaLocator(locator))
	require.NoError(t, err)
	assert.Equal(t, locator, decoded)
}

func TestDecodeEmptyInputYieldsZeroRecord(t *testing.T) {
	locator, err := UnmarshalSchemaLocator(nil)
	require.NoError(t, err)
	assert.Equal(t, SchemaLocator{}, locator)

	entry, err := UnmarshalSchemaEntry([]byte{})
	require.NoError(t, err)
	assert.Equal(t, SchemaEntry{}, entry)
}

func TestDecodeLegacy64ByteVersion(t *testing.T) {
	// A legacy writer emitted version fields padded to 64 bytes with the
	// big-endian value in the leading 8.
	var w fieldWriter
	padded := make([]byte, 64)
	binary.BigEndian.PutUint64(padded[:8], 913)
	w.field(indexEntryTagVersion, padded)
	w.field(indexEntryTagPosition, MarshalPosition(Position{LedgerID: 4, EntryID: 0}))

	entry, err := UnmarshalIndexEntry(w.buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(913), entry.Version)
}

func TestDecodeShortVersionField(t *testing.T) {
	var w fieldWriter
	w.field(indexEntryTagVersion, []byte{0x01, 0x02})
	_, err := UnmarshalIndexEntry(w.buf)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestUnknownFieldsSurviveRoundTrip(t *testing.T) {
	entry := IndexEntry{Version: 2, Hash: []byte{0xCC}, Position: Position{LedgerID: 3, EntryID: 0}}
	encoded := MarshalIndexEntry(entry)

	// A future writer appends a field with an unassigned tag.
	var w fieldWriter
	w.raw(encoded)
	w.field(200, []byte("future"))
	withUnknown := w.buf

	decoded, err := UnmarshalIndexEntry(withUnknown)
	require.NoError(t, err)
	assert.Equal(t, entry.Version, decoded.Version)
	assert.Equal(t, entry.Hash, decoded.Hash)

	// Re-encoding preserves the unknown field byte for byte.
	reencoded := MarshalIndexEntry(decoded)
	redecoded, err := UnmarshalIndexEntry(reencoded)
	require.NoError(t, err)
	assert.Equal(t, decoded, redecoded)
	assert.Contains(t, string(reencoded), "future")
}

func TestDecodeTruncatedField(t *testing.T) {
	var w fieldWriter
	w.field(indexEntryTagHash, []byte{0xAA, 0xBB, 0xCC})
	for cut := 1; cut < len(w.buf); cut++ {
		_, err := UnmarshalIndexEntry(w.buf[:cut])
		assert.True(t, errors.Is(err, ErrDecode), "cut=%d", cut)
	}
}

func TestNestedDecodeErrorPropagates(t *testing.T) {
	var inner fieldWriter
	inner.field(positionTagLedgerID, []byte{0x01}) // too short for an int64
	var w fieldWriter
	w.field(indexEntryTagPosition, inner.buf)
	_, err := UnmarshalIndexEntry(w.buf)
	assert.True(t, errors.Is(err, ErrDecode))
}
