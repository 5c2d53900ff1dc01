package oracle

import (
	"context"
	"fmt"
	"sync"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/logger"
)

// Local is an in-process oracle for development and tests.
// It decrypts with the shared scheme, signs the result, and delivers
// the callback on a separate goroutine so the round-trip stays
// genuinely asynchronous.
type Local struct {
	scheme   *fhe.Scheme  // scheme is the shared decryption scheme
	key      *KeyPair     // key signs correctness proofs
	callback CallbackFunc // callback receives results

	manual  bool // manual queues callbacks until Flush
	pending []func()
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewLocal creates a local oracle delivering results to the given callback.
func NewLocal(scheme *fhe.Scheme, key *KeyPair, callback CallbackFunc) *Local {
	return &Local{
		scheme:   scheme,
		key:      key,
		callback: callback,
	}
}

// SetManual toggles manual delivery. When manual, callbacks are queued
// until Flush is called; tests use this to interleave state changes
// between request and callback.
func (l *Local) SetManual(manual bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.manual = manual
}

// PublicKeyBytes returns the oracle's BLS public key.
func (l *Local) PublicKeyBytes() []byte {
	return l.key.PublicKeyBytes()
}

// RequestDecryption decrypts the ciphertexts and schedules the callback.
func (l *Local) RequestDecryption(_ context.Context, batchID uint64, cts []fhe.Ciphertext) (RequestID, error) {
	id, err := newRequestID()
	if err != nil {
		return RequestID{}, err
	}

	values := make([]uint64, len(cts))

	for i, ct := range cts {
		v, err := l.scheme.Decrypt(ct)
		if err != nil {
			return RequestID{}, fmt.Errorf("decrypt ciphertext %d:\n%w", i, err)
		}

		values[i] = v
	}

	cleartexts := EncodeCleartexts(values)
	proof := l.key.Sign(id, batchID, cleartexts)

	deliver := func() {
		l.callback(id, batchID, cleartexts, proof)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.manual {
		l.pending = append(l.pending, deliver)
		return id, nil
	}

	l.wg.Add(1)

	go func() {
		defer l.wg.Done()
		deliver()
	}()

	return id, nil
}

// Flush delivers all queued callbacks synchronously (manual mode).
func (l *Local) Flush() {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, deliver := range pending {
		deliver()
	}
}

// Close waits for in-flight callback deliveries to finish.
func (l *Local) Close() error {
	l.wg.Wait()

	l.mu.Lock()
	dropped := len(l.pending)
	l.pending = nil
	l.mu.Unlock()

	if dropped > 0 {
		logger.Warn("local oracle closed with undelivered callbacks", "count", dropped)
	}

	return nil
}
