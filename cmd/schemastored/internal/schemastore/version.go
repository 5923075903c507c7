package schemastore

import (
	"encoding/binary"
	"fmt"

	"github.com/fluxmq/schemastore/cmd/schemastored/internal/codec"
)

// StoredSchema is what readers get back: the schema bytes and the version
// they were registered under.
type StoredSchema struct {
	Data    []byte
	Version uint64
}

// ReadVersion selects which version of a schema to fetch: either the latest
// or a specific one.
type ReadVersion struct {
	latest  bool
	version uint64
}

// Latest selects the most recently registered version.
func Latest() ReadVersion {
	return ReadVersion{latest: true}
}

// Exact selects a specific historical version.
func Exact(version uint64) ReadVersion {
	return ReadVersion{version: version}
}

func (rv ReadVersion) IsLatest() bool {
	return rv.latest
}

func (rv ReadVersion) Version() uint64 {
	return rv.version
}

func (rv ReadVersion) String() string {
	if rv.latest {
		return "latest"
	}
	return fmt.Sprintf("%d", rv.version)
}

// VersionToBytes encodes a version for the wire: exactly 8 bytes, big-endian.
func VersionToBytes(version uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], version)
	return b[:]
}

// VersionFromBytes decodes a wire version. The current form is 8 bytes
// big-endian; a legacy form is 64 bytes with the value in the leading 8.
// Anything past the first 8 bytes is discarded.
func VersionFromBytes(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, fmt.Errorf("%w: version needs at least 8 bytes, got %d", codec.ErrDecode, len(b))
	}
	return binary.BigEndian.Uint64(b[:8]), nil
}
