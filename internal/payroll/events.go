package payroll

import (
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/oracle"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/wire"
)

// EventType identifies an audit event.
type EventType uint8

const (
	// EventBatchOpened records a new open batch.
	EventBatchOpened EventType = iota + 1

	// EventBatchClosed records a batch close.
	EventBatchClosed

	// EventContributionSubmitted records an accepted contribution.
	// It carries ciphertext handles (hashes), never plaintext.
	EventContributionSubmitted

	// EventDecryptionRequested records an issued decryption request.
	EventDecryptionRequested

	// EventDecryptionCompleted records a finalized decryption with the
	// verified cleartext totals. The only event carrying plaintext.
	EventDecryptionCompleted
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventBatchOpened:
		return "batch_opened"
	case EventBatchClosed:
		return "batch_closed"
	case EventContributionSubmitted:
		return "contribution_submitted"
	case EventDecryptionRequested:
		return "decryption_requested"
	case EventDecryptionCompleted:
		return "decryption_completed"
	default:
		return "unknown"
	}
}

// Event is one entry of the append-only audit log.
type Event struct {
	Seq          uint64           // Seq is the event sequence number
	Type         EventType        // Type identifies the event
	Time         time.Time        // Time is when the event was recorded
	BatchID      uint64           // BatchID is the affected batch
	Identity     Identity         // Identity is the contributor (contributions only)
	SalaryHandle [32]byte         // SalaryHandle hashes the salary ciphertext (contributions only)
	ScoreHandle  [32]byte         // ScoreHandle hashes the score ciphertext (contributions only)
	RequestID    oracle.RequestID // RequestID names the decryption request (decryption events only)
	TotalSalary  uint64           // TotalSalary is the verified cleartext sum (completions only)
	TotalBonus   uint64           // TotalBonus is the verified cleartext weighted sum (completions only)
}

// encodeEvent serializes an event.
func encodeEvent(ev *Event) []byte {
	buf := wire.AppendByte(nil, byte(ev.Type))
	buf = wire.AppendInt64(buf, ev.Time.UnixNano())
	buf = wire.AppendUint64(buf, ev.BatchID)
	buf = append(buf, ev.Identity[:]...)
	buf = append(buf, ev.SalaryHandle[:]...)
	buf = append(buf, ev.ScoreHandle[:]...)
	buf = append(buf, ev.RequestID[:]...)
	buf = wire.AppendUint64(buf, ev.TotalSalary)
	buf = wire.AppendUint64(buf, ev.TotalBonus)

	return buf
}

// decodeEvent deserializes an event.
func decodeEvent(seq uint64, data []byte) (*Event, error) {
	r := wire.NewReader(data)

	ev := &Event{
		Seq:  seq,
		Type: EventType(r.Byte()),
	}

	ev.Time = time.Unix(0, r.Int64())
	ev.BatchID = r.Uint64()
	ev.Identity = Identity(r.Array32())
	ev.SalaryHandle = r.Array32()
	ev.ScoreHandle = r.Array32()
	ev.RequestID = oracle.RequestID(r.Array32())
	ev.TotalSalary = r.Uint64()
	ev.TotalBonus = r.Uint64()

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode event:\n%w", err)
	}

	return ev, nil
}

// ciphertextHandle hashes a ciphertext for auditable event references.
func ciphertextHandle(ct []byte) [32]byte {
	return blake3.Sum256(ct)
}
