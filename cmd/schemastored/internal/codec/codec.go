// Package codec implements the stable binary encoding of the schema storage
// records. The format is tag-length-value: every field is a single tag byte,
// a uvarint byte length and the raw value. Records nest by length-delimiting
// the inner record. Unknown tags survive a decode/encode round-trip so that
// newer writers can add fields without breaking older readers.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrDecode is wrapped by every decoding failure. Callers are expected to
// check with errors.Is rather than match on the message.
var ErrDecode = errors.New("codec: malformed record")

func decodeErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrDecode, fmt.Sprintf(format, args...))
}

// fieldWriter accumulates TLV fields for a single record.
type fieldWriter struct {
	buf []byte
}

func (w *fieldWriter) field(tag byte, value []byte) {
	w.buf = append(w.buf, tag)
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], uint64(len(value)))
	w.buf = append(w.buf, tmp[:n]...)
	w.buf = append(w.buf, value...)
}

func (w *fieldWriter) uint64Field(tag byte, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.field(tag, b[:])
}

func (w *fieldWriter) int64Field(tag byte, v int64) {
	w.uint64Field(tag, uint64(v))
}

// raw re-emits a TLV chunk captured verbatim from a decode (unknown fields).
func (w *fieldWriter) raw(tlv []byte) {
	w.buf = append(w.buf, tlv...)
}

// fieldReader iterates the TLV fields of a single record.
type fieldReader struct {
	data []byte
	off  int
}

func newFieldReader(data []byte) *fieldReader {
	return &fieldReader{data: data}
}

func (r *fieldReader) done() bool {
	return r.off >= len(r.data)
}

// next returns the tag and value of the next field, plus the complete TLV
// slice so unknown fields can be preserved byte for byte.
func (r *fieldReader) next() (tag byte, value []byte, tlv []byte, err error) {
	start := r.off
	if r.off >= len(r.data) {
		return 0, nil, nil, decodeErrorf("truncated record")
	}
	tag = r.data[r.off]
	r.off++
	length, n := binary.Uvarint(r.data[r.off:])
	if n <= 0 {
		return 0, nil, nil, decodeErrorf("bad field length for tag %d", tag)
	}
	r.off += n
	if length > uint64(len(r.data)-r.off) {
		return 0, nil, nil, decodeErrorf("field length %d for tag %d exceeds input", length, tag)
	}
	value = r.data[r.off : r.off+int(length)]
	r.off += int(length)
	return tag, value, r.data[start:r.off], nil
}

// decodeUint64 reads a big-endian 64-bit value. Values are encoded as exactly
// 8 bytes, but a legacy writer padded them to 64 bytes with the value in the
// leading 8; anything past the first 8 bytes is discarded.
func decodeUint64(value []byte) (uint64, error) {
	if len(value) < 8 {
		return 0, decodeErrorf("uint64 field is %d bytes, need at least 8", len(value))
	}
	return binary.BigEndian.Uint64(value[:8]), nil
}

func decodeInt64(value []byte) (int64, error) {
	v, err := decodeUint64(value)
	return int64(v), err
}
