// Package oracle implements the decryption oracle boundary: the client
// used by the payroll core to issue asynchronous decryption requests,
// the BLS correctness-proof scheme attached to every result, and the
// standalone oracle server.
//
// A callback is never a continuation of the request call: it arrives
// later, from an external caller, and the core re-validates it
// independently before accepting any cleartext.
package oracle

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/wire"
)

// RequestID identifies one in-flight decryption request.
type RequestID [32]byte

// String returns the hex form of the request id.
func (id RequestID) String() string {
	return hex.EncodeToString(id[:])
}

// RequestIDFromHex parses a hex-encoded request id.
func RequestIDFromHex(s string) (RequestID, error) {
	var id RequestID

	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, fmt.Errorf("invalid request id: %q", s)
	}

	copy(id[:], b)

	return id, nil
}

// CallbackFunc receives a decryption result. The cleartexts are the
// wire-encoded plaintext values; the proof is the oracle's BLS
// signature over them.
type CallbackFunc func(requestID RequestID, batchID uint64, cleartexts, proof []byte)

// Client issues decryption requests to an oracle. The matching callback
// arrives out-of-band through the handler registered at construction.
type Client interface {
	// RequestDecryption submits ciphertexts for decryption and returns
	// the oracle-issued request id. Fire-and-forget: the result arrives
	// later via the callback handler.
	RequestDecryption(ctx context.Context, batchID uint64, cts []fhe.Ciphertext) (RequestID, error)

	// Close releases the client's resources.
	Close() error
}

// newRequestID draws a fresh random request id.
func newRequestID() (RequestID, error) {
	var id RequestID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generate request id:\n%w", err)
	}

	return id, nil
}

// EncodeCleartexts encodes decrypted values: u32 count + u64 each.
func EncodeCleartexts(values []uint64) []byte {
	buf := wire.AppendUint32(nil, uint32(len(values)))

	for _, v := range values {
		buf = wire.AppendUint64(buf, v)
	}

	return buf
}

// DecodeCleartexts decodes a cleartext payload.
func DecodeCleartexts(data []byte) ([]uint64, error) {
	r := wire.NewReader(data)

	count := r.Uint32()
	if err := r.Err(); err != nil {
		return nil, err
	}

	// Each value is 8 bytes; a larger count cannot be honest.
	if uint64(count) > uint64(r.Remaining())/8 {
		return nil, fmt.Errorf("cleartext count %d exceeds payload size %d", count, r.Remaining())
	}

	values := make([]uint64, count)
	for i := range values {
		values[i] = r.Uint64()
	}

	if err := r.Err(); err != nil {
		return nil, err
	}

	if r.Remaining() != 0 {
		return nil, fmt.Errorf("trailing bytes in cleartext payload")
	}

	return values, nil
}
