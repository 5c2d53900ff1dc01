package payroll

import (
	"fmt"
	"time"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/oracle"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/wire"
)

// encodeRecord serializes an encrypted record.
func encodeRecord(r EncryptedRecord) []byte {
	buf := wire.AppendBytes(nil, r.Salary.Bytes())
	buf = wire.AppendBytes(buf, r.Score.Bytes())

	return buf
}

// decodeRecord deserializes an encrypted record.
func decodeRecord(data []byte) (EncryptedRecord, error) {
	r := wire.NewReader(data)

	salary := r.Bytes()
	score := r.Bytes()

	if err := r.Err(); err != nil {
		return EncryptedRecord{}, fmt.Errorf("decode record:\n%w", err)
	}

	salaryCt, err := fhe.FromBytes(salary)
	if err != nil {
		return EncryptedRecord{}, fmt.Errorf("decode salary:\n%w", err)
	}

	scoreCt, err := fhe.FromBytes(score)
	if err != nil {
		return EncryptedRecord{}, fmt.Errorf("decode score:\n%w", err)
	}

	return EncryptedRecord{Salary: salaryCt, Score: scoreCt}, nil
}

// encodeBatchHeader serializes a batch header (the open flag).
func encodeBatchHeader(open bool) []byte {
	return wire.AppendBool(nil, open)
}

// decodeBatchHeader deserializes a batch header.
func decodeBatchHeader(data []byte) (open bool, err error) {
	r := wire.NewReader(data)
	open = r.Bool()

	if err := r.Err(); err != nil {
		return false, fmt.Errorf("decode batch header:\n%w", err)
	}

	return open, nil
}

// encodeContributors serializes a contributor list, preserving order.
func encodeContributors(ids []Identity) []byte {
	buf := make([]byte, 0, len(ids)*32)

	for _, id := range ids {
		buf = append(buf, id[:]...)
	}

	return buf
}

// decodeContributors deserializes a contributor list.
func decodeContributors(data []byte) ([]Identity, error) {
	if len(data)%32 != 0 {
		return nil, fmt.Errorf("contributor list length %d not a multiple of 32", len(data))
	}

	ids := make([]Identity, len(data)/32)

	for i := range ids {
		copy(ids[i][:], data[i*32:(i+1)*32])
	}

	return ids, nil
}

// encodeContext serializes a decryption context.
func encodeContext(dc *DecryptionContext) []byte {
	buf := append([]byte(nil), dc.RequestID[:]...)
	buf = wire.AppendUint64(buf, dc.BatchID)
	buf = append(buf, dc.Commitment[:]...)
	buf = wire.AppendBool(buf, dc.Processed)
	buf = wire.AppendInt64(buf, dc.RequestedAt.UnixNano())
	buf = wire.AppendString(buf, dc.LastError)

	return buf
}

// decodeContext deserializes a decryption context.
func decodeContext(data []byte) (*DecryptionContext, error) {
	r := wire.NewReader(data)

	dc := &DecryptionContext{
		RequestID:   oracle.RequestID(r.Array32()),
		BatchID:     r.Uint64(),
		Commitment:  r.Array32(),
		Processed:   r.Bool(),
		RequestedAt: time.Unix(0, r.Int64()),
		LastError:   r.String(),
	}

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode decryption context:\n%w", err)
	}

	return dc, nil
}
