// Package payroll implements the confidential aggregation core: the
// encrypted record ledger, batch lifecycle, homomorphic aggregation
// engine, and the decryption commitment/verification protocol.
package payroll

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/oracle"
)

// Identity is an opaque 32-byte principal key. Identities are supplied
// by callers; the core only compares them.
type Identity [32]byte

// String returns the hex form of the identity.
func (id Identity) String() string {
	return hex.EncodeToString(id[:])
}

// IdentityFromHex parses a hex-encoded identity.
func IdentityFromHex(s string) (Identity, error) {
	var id Identity

	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(id) {
		return id, fmt.Errorf("invalid identity: %q", s)
	}

	copy(id[:], b)

	return id, nil
}

// EncryptedRecord holds one contributor's ciphertext pair.
// A record is either fully absent or fully initialized; partially
// initialized records never enter the ledger.
type EncryptedRecord struct {
	Salary fhe.Ciphertext // Salary is the encrypted salary figure
	Score  fhe.Ciphertext // Score is the encrypted performance score
}

// Initialized reports whether both ciphertexts hold values.
func (r EncryptedRecord) Initialized() bool {
	return r.Salary.IsInitialized() && r.Score.IsInitialized()
}

// Batch is a time-boxed collection of contributions.
// Once closed, a batch never reopens.
type Batch struct {
	ID           uint64     // ID is the batch identifier (>= 1)
	Open         bool       // Open indicates the batch accepts contributions
	Contributors []Identity // Contributors in insertion order
}

// Contains reports whether the identity already contributed to the batch.
func (b *Batch) Contains(id Identity) bool {
	for _, c := range b.Contributors {
		if c == id {
			return true
		}
	}

	return false
}

// DecryptionContext binds one decryption request to the batch state it
// was computed against. Processed is terminal: a processed context
// never transitions again.
type DecryptionContext struct {
	RequestID   oracle.RequestID // RequestID is the oracle-issued request id
	BatchID     uint64           // BatchID is the batch the request covers
	Commitment  [32]byte         // Commitment hashes the requested ciphertexts
	Processed   bool             // Processed marks the context terminal
	RequestedAt time.Time        // RequestedAt is when the request was issued
	LastError   string           // LastError records the last failed callback, if any
}
