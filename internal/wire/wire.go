// Package wire implements the binary codec used for persisted state and
// oracle transport frames. Scalars are little-endian; variable-length
// fields carry a u32 length prefix.
package wire

import (
	"encoding/binary"
	"fmt"
)

// AppendUint64 appends a little-endian u64.
func AppendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)

	return append(buf, b[:]...)
}

// AppendUint32 appends a little-endian u32.
func AppendUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)

	return append(buf, b[:]...)
}

// AppendInt64 appends a little-endian i64.
func AppendInt64(buf []byte, v int64) []byte {
	return AppendUint64(buf, uint64(v))
}

// AppendByte appends a single byte.
func AppendByte(buf []byte, v byte) []byte {
	return append(buf, v)
}

// AppendBool appends a bool as one byte (0 or 1).
func AppendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}

	return append(buf, 0)
}

// AppendBytes appends a u32 length prefix followed by the bytes.
func AppendBytes(buf, data []byte) []byte {
	buf = AppendUint32(buf, uint32(len(data)))

	return append(buf, data...)
}

// AppendString appends a u32 length prefix followed by the string bytes.
func AppendString(buf []byte, s string) []byte {
	return AppendBytes(buf, []byte(s))
}

// Reader decodes values sequentially from a byte slice.
// The first decode failure is sticky: all subsequent reads return zero
// values and Err reports the failure.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader creates a reader over the given bytes.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first decode error, if any.
func (r *Reader) Err() error {
	return r.err
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// take consumes n bytes, recording an error on underflow.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}

	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("truncated input: need %d bytes at offset %d, have %d", n, r.off, len(r.data)-r.off)
		return nil
	}

	out := r.data[r.off : r.off+n]
	r.off += n

	return out
}

// Uint64 reads a little-endian u64.
func (r *Reader) Uint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(b)
}

// Uint32 reads a little-endian u32.
func (r *Reader) Uint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(b)
}

// Int64 reads a little-endian i64.
func (r *Reader) Int64() int64 {
	return int64(r.Uint64())
}

// Byte reads a single byte.
func (r *Reader) Byte() byte {
	b := r.take(1)
	if b == nil {
		return 0
	}

	return b[0]
}

// Bool reads a one-byte bool.
func (r *Reader) Bool() bool {
	return r.Byte() != 0
}

// Bytes reads a u32 length prefix followed by that many bytes.
// The returned slice is a copy.
func (r *Reader) Bytes() []byte {
	n := r.Uint32()
	if r.err != nil {
		return nil
	}

	b := r.take(int(n))
	if b == nil {
		return nil
	}

	out := make([]byte, n)
	copy(out, b)

	return out
}

// String reads a u32 length prefix followed by that many string bytes.
func (r *Reader) String() string {
	return string(r.Bytes())
}

// Array32 reads exactly 32 raw bytes into a fixed array.
func (r *Reader) Array32() [32]byte {
	var out [32]byte

	b := r.take(32)
	if b != nil {
		copy(out[:], b)
	}

	return out
}
