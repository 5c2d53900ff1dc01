package oracle

import (
	"fmt"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/wire"
)

// DecryptionRequest is the request frame sent to the oracle server.
type DecryptionRequest struct {
	BatchID     uint64
	Ciphertexts []fhe.Ciphertext
}

// DecryptionCallback is the callback frame sent back by the oracle.
type DecryptionCallback struct {
	RequestID  RequestID
	BatchID    uint64
	Cleartexts []byte
	Proof      []byte
}

// EncodeRequest serializes a decryption request frame.
func EncodeRequest(req *DecryptionRequest) []byte {
	buf := wire.AppendUint64(nil, req.BatchID)
	buf = wire.AppendUint32(buf, uint32(len(req.Ciphertexts)))

	for _, ct := range req.Ciphertexts {
		buf = wire.AppendBytes(buf, ct.Bytes())
	}

	return buf
}

// DecodeRequest deserializes a decryption request frame.
func DecodeRequest(data []byte) (*DecryptionRequest, error) {
	r := wire.NewReader(data)

	req := &DecryptionRequest{
		BatchID: r.Uint64(),
	}

	count := r.Uint32()
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode request header:\n%w", err)
	}

	// Every entry carries at least its u32 length prefix, so a count
	// larger than the remaining payload allows is forged. Reject it
	// before allocating; the frame comes from an unauthenticated peer.
	if uint64(count) > uint64(r.Remaining())/4 {
		return nil, fmt.Errorf("ciphertext count %d exceeds payload size %d", count, r.Remaining())
	}

	req.Ciphertexts = make([]fhe.Ciphertext, count)

	for i := range req.Ciphertexts {
		ct, err := fhe.FromBytes(r.Bytes())
		if err != nil {
			return nil, fmt.Errorf("decode ciphertext %d:\n%w", i, err)
		}

		req.Ciphertexts[i] = ct
	}

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode request:\n%w", err)
	}

	return req, nil
}

// EncodeCallback serializes a decryption callback frame.
func EncodeCallback(cb *DecryptionCallback) []byte {
	buf := append([]byte(nil), cb.RequestID[:]...)
	buf = wire.AppendUint64(buf, cb.BatchID)
	buf = wire.AppendBytes(buf, cb.Cleartexts)
	buf = wire.AppendBytes(buf, cb.Proof)

	return buf
}

// DecodeCallback deserializes a decryption callback frame.
func DecodeCallback(data []byte) (*DecryptionCallback, error) {
	r := wire.NewReader(data)

	cb := &DecryptionCallback{
		RequestID:  r.Array32(),
		BatchID:    r.Uint64(),
		Cleartexts: r.Bytes(),
		Proof:      r.Bytes(),
	}

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode callback:\n%w", err)
	}

	return cb, nil
}
