package wire

import (
	"bytes"
	"testing"
)

// TestRoundTrip tests encoding and decoding a mixed sequence.
func TestRoundTrip(t *testing.T) {
	buf := AppendUint64(nil, 12345)
	buf = AppendUint32(buf, 678)
	buf = AppendInt64(buf, -42)
	buf = AppendByte(buf, 0xAB)
	buf = AppendBool(buf, true)
	buf = AppendBytes(buf, []byte("payload"))
	buf = AppendString(buf, "hello")

	r := NewReader(buf)

	if v := r.Uint64(); v != 12345 {
		t.Errorf("uint64: got %d, want 12345", v)
	}

	if v := r.Uint32(); v != 678 {
		t.Errorf("uint32: got %d, want 678", v)
	}

	if v := r.Int64(); v != -42 {
		t.Errorf("int64: got %d, want -42", v)
	}

	if v := r.Byte(); v != 0xAB {
		t.Errorf("byte: got %#x, want 0xAB", v)
	}

	if !r.Bool() {
		t.Error("bool: got false, want true")
	}

	if v := r.Bytes(); !bytes.Equal(v, []byte("payload")) {
		t.Errorf("bytes: got %q", v)
	}

	if v := r.String(); v != "hello" {
		t.Errorf("string: got %q, want hello", v)
	}

	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if r.Remaining() != 0 {
		t.Errorf("remaining: got %d, want 0", r.Remaining())
	}
}

// TestReaderTruncated tests that underflow is reported.
func TestReaderTruncated(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})

	if v := r.Uint64(); v != 0 {
		t.Errorf("truncated read should return zero, got %d", v)
	}

	if r.Err() == nil {
		t.Error("truncated read should set error")
	}
}

// TestReaderStickyError tests that the first error poisons all
// subsequent reads.
func TestReaderStickyError(t *testing.T) {
	buf := AppendUint64(nil, 99)

	r := NewReader(buf[:4]) // cut mid-value
	r.Uint64()

	if r.Err() == nil {
		t.Fatal("expected error after truncated read")
	}

	firstErr := r.Err()

	if v := r.Uint32(); v != 0 {
		t.Errorf("read after error should return zero, got %d", v)
	}

	if r.Err() != firstErr {
		t.Error("error should stay the first failure")
	}
}

// TestReaderBytesTruncatedLength tests a length prefix pointing past
// the end of input.
func TestReaderBytesTruncatedLength(t *testing.T) {
	buf := AppendUint32(nil, 100) // claims 100 bytes, has none

	r := NewReader(buf)

	if v := r.Bytes(); v != nil {
		t.Errorf("truncated bytes should return nil, got %v", v)
	}

	if r.Err() == nil {
		t.Error("truncated bytes should set error")
	}
}

// TestReaderBytesCopy tests that returned slices do not alias input.
func TestReaderBytesCopy(t *testing.T) {
	buf := AppendBytes(nil, []byte{1, 2, 3})

	r := NewReader(buf)
	out := r.Bytes()

	buf[4] = 0xFF // mutate the underlying payload

	if out[0] != 1 {
		t.Error("reader output should be a copy")
	}
}

// TestArray32 tests fixed-array reads.
func TestArray32(t *testing.T) {
	var in [32]byte
	for i := range in {
		in[i] = byte(i)
	}

	r := NewReader(in[:])
	out := r.Array32()

	if out != in {
		t.Error("array round-trip mismatch")
	}

	short := NewReader(make([]byte, 16))
	short.Array32()

	if short.Err() == nil {
		t.Error("short array read should set error")
	}
}

// TestFrameRoundTrip tests length-prefixed frame IO.
func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	payload := []byte("frame payload")

	if err := WriteFrame(&buf, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}

	if !bytes.Equal(got, payload) {
		t.Errorf("frame: got %q, want %q", got, payload)
	}
}

// TestFrameTooLarge tests the size guard on both sides.
func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteFrame(&buf, make([]byte, maxFrameSize+1)); err == nil {
		t.Error("oversized write should error")
	}

	// Forge an oversized length prefix.
	forged := []byte{0xFF, 0xFF, 0xFF, 0xFF}

	if _, err := ReadFrame(bytes.NewReader(forged)); err == nil {
		t.Error("oversized read should error")
	}
}

// TestFrameEmpty tests a zero-length frame.
func TestFrameEmpty(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("write empty frame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("read empty frame: %v", err)
	}

	if len(got) != 0 {
		t.Errorf("empty frame: got %d bytes", len(got))
	}
}
