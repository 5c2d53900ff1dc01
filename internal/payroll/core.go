package payroll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/access"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/logger"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/oracle"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/storage"
)

// Config holds the core's tunables.
type Config struct {
	// SubmitCooldown is the minimum interval between one provider's
	// contribution submissions.
	SubmitCooldown time.Duration

	// RequestCooldown is the minimum interval between one provider's
	// decryption requests.
	RequestCooldown time.Duration

	// Now supplies the current time. Defaults to time.Now.
	Now func() time.Time
}

// Core is the confidential aggregation state machine. Every entry point
// executes under a single mutation lock; RequestBatchDecryption drops
// it across the oracle send so a stalled network cannot block the core.
// The oracle's callback enters through HandleDecryptionCallback and is
// re-validated from scratch.
type Core struct {
	mu sync.Mutex

	store  *store          // store persists all core state
	access *access.Control // access answers capability checks
	scheme *fhe.Scheme     // scheme performs homomorphic operations

	client    oracle.Client // client reaches the decryption oracle
	oraclePub []byte        // oraclePub verifies correctness proofs

	// inflight counts oracle requests sent but not yet recorded; reqDone
	// wakes callbacks waiting for one of them to settle.
	inflight int
	reqDone  *sync.Cond

	cfg Config
}

// New creates a core over the given storage.
func New(db *storage.Storage, ac *access.Control, scheme *fhe.Scheme, cfg Config) (*Core, error) {
	st, err := newStore(db)
	if err != nil {
		return nil, fmt.Errorf("init payroll store:\n%w", err)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Core{
		store:  st,
		access: ac,
		scheme: scheme,
		cfg:    cfg,
	}
	c.reqDone = sync.NewCond(&c.mu)

	return c, nil
}

// SetOracle wires the oracle client and the BLS public key used to
// verify its proofs. Must be called before RequestBatchDecryption.
func (c *Core) SetOracle(client oracle.Client, publicKey []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client = client
	c.oraclePub = publicKey
}

// InstanceID returns the deployment instance id mixed into commitments.
func (c *Core) InstanceID() [32]byte {
	return c.store.instanceID
}

// OpenBatch opens a new batch and returns its id. Batch ids increase
// strictly by one. If the previous batch is still open it is closed
// first, preserving the single-open-batch invariant.
func (c *Core) OpenBatch(caller Identity) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.access.Has(access.Identity(caller), access.RoleAdmin) {
		return 0, ErrNotAdmin
	}

	if c.access.Paused() {
		return 0, ErrPaused
	}

	if prev, ok := c.store.batch(c.store.currentBatch); ok && prev.Open {
		c.store.setBatchHeader(prev.ID, false)
		c.emit(&Event{Type: EventBatchClosed, BatchID: prev.ID})
		logger.Warn("implicitly closed previous batch", "batch", prev.ID)
	}

	id := c.store.currentBatch + 1
	c.store.setBatchHeader(id, true)
	c.store.setContributors(id, nil)
	c.store.setCurrentBatch(id)

	c.emit(&Event{Type: EventBatchOpened, BatchID: id})

	return id, nil
}

// CloseBatch closes the current batch. Closing is terminal: a closed
// batch never reopens.
func (c *Core) CloseBatch(caller Identity) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.access.Has(access.Identity(caller), access.RoleAdmin) {
		return 0, ErrNotAdmin
	}

	if c.access.Paused() {
		return 0, ErrPaused
	}

	b, ok := c.store.batch(c.store.currentBatch)
	if !ok || !b.Open {
		return 0, ErrInvalidBatchState
	}

	c.store.setBatchHeader(b.ID, false)
	c.emit(&Event{Type: EventBatchClosed, BatchID: b.ID})

	return b.ID, nil
}

// SubmitContribution records a contributor's encrypted (salary, score)
// pair in the current open batch. Uninitialized ciphertext inputs are
// coerced to encrypted zero, the aggregation's additive identity; this
// is deliberate policy, not a silent failure, so a partially supplied
// record can never crash the aggregation.
//
// All checks run before any write: a failed submission mutates nothing.
func (c *Core) SubmitContribution(caller, contributor Identity, salary, score fhe.Ciphertext) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.access.Has(access.Identity(caller), access.RoleProvider) {
		return ErrNotProvider
	}

	if c.access.Paused() {
		return ErrPaused
	}

	now := c.cfg.Now()

	if err := c.checkCooldown(prefixSubmitTime, caller, c.cfg.SubmitCooldown, now); err != nil {
		return err
	}

	b, ok := c.store.batch(c.store.currentBatch)
	if !ok || !b.Open {
		return ErrInvalidBatch
	}

	if b.Contains(contributor) {
		return ErrDuplicate
	}

	if !salary.IsInitialized() {
		salary = c.scheme.EncryptZero()
	}

	if !score.IsInitialized() {
		score = c.scheme.EncryptZero()
	}

	c.store.setRecord(contributor, EncryptedRecord{Salary: salary, Score: score})
	c.store.setContributors(b.ID, append(b.Contributors, contributor))
	c.store.setLastTime(prefixSubmitTime, caller, now)

	c.emit(&Event{
		Type:         EventContributionSubmitted,
		BatchID:      b.ID,
		Identity:     contributor,
		SalaryHandle: ciphertextHandle(salary.Bytes()),
		ScoreHandle:  ciphertextHandle(score.Bytes()),
	})

	return nil
}

// Aggregate folds a closed batch's contributions into the encrypted
// totals. Aggregating an open batch is disallowed: its totals could
// still change, which would break the commitment check.
func (c *Core) Aggregate(batchID uint64) (totalSalary, totalBonus fhe.Ciphertext, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, ok := c.store.batch(batchID)
	if !ok || b.Open {
		return fhe.Ciphertext{}, fhe.Ciphertext{}, ErrInvalidBatch
	}

	totalSalary, totalBonus = c.aggregateLocked(b)

	return totalSalary, totalBonus, nil
}

// RequestBatchDecryption aggregates a closed batch, records a
// commitment over exactly what was requested, and submits the
// ciphertext pair to the decryption oracle. The cleartext arrives later
// through HandleDecryptionCallback.
//
// The oracle round-trip runs outside the mutation lock so a slow oracle
// cannot stall the other entry points. The aggregate, the commitment,
// and the cooldown stamp are all taken under the lock first; a failed
// send still consumes the cooldown.
func (c *Core) RequestBatchDecryption(ctx context.Context, caller Identity, batchID uint64) (oracle.RequestID, error) {
	c.mu.Lock()

	if !c.access.Has(access.Identity(caller), access.RoleProvider) {
		c.mu.Unlock()
		return oracle.RequestID{}, ErrNotProvider
	}

	if c.access.Paused() {
		c.mu.Unlock()
		return oracle.RequestID{}, ErrPaused
	}

	now := c.cfg.Now()

	if err := c.checkCooldown(prefixRequestTime, caller, c.cfg.RequestCooldown, now); err != nil {
		c.mu.Unlock()
		return oracle.RequestID{}, err
	}

	b, ok := c.store.batch(batchID)
	if !ok || b.Open {
		c.mu.Unlock()
		return oracle.RequestID{}, ErrInvalidBatch
	}

	client := c.client
	if client == nil {
		c.mu.Unlock()
		return oracle.RequestID{}, fmt.Errorf("no oracle client configured")
	}

	totalSalary, totalBonus := c.aggregateLocked(b)
	commitment := c.commitment(totalSalary, totalBonus)

	c.store.setLastTime(prefixRequestTime, caller, now)
	c.inflight++
	c.mu.Unlock()

	requestID, err := client.RequestDecryption(ctx, batchID, []fhe.Ciphertext{totalSalary, totalBonus})

	c.mu.Lock()
	defer c.mu.Unlock()

	c.inflight--
	defer c.reqDone.Broadcast()

	if err != nil {
		return oracle.RequestID{}, fmt.Errorf("request decryption:\n%w", err)
	}

	c.store.setContext(&DecryptionContext{
		RequestID:   requestID,
		BatchID:     batchID,
		Commitment:  commitment,
		RequestedAt: now,
	})

	c.emit(&Event{
		Type:      EventDecryptionRequested,
		BatchID:   batchID,
		RequestID: requestID,
	})

	return requestID, nil
}

// HandleDecryptionCallback processes an oracle decryption result. The
// callback is an independent entry point from an external caller and is
// never trusted as a continuation of the request:
//
//  1. replay guard: a processed context rejects the callback before any
//     recomputation, so replays are cheap;
//  2. consistency: the batch aggregate is recomputed against the
//     current record store and its commitment must equal the one
//     recorded at request time;
//  3. proof: the oracle's BLS proof over the cleartexts must verify;
//  4. finalize: the context becomes terminal and the verified cleartext
//     totals are emitted — the protocol's only plaintext output.
func (c *Core) HandleDecryptionCallback(requestID oracle.RequestID, cleartexts, proof []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A callback can outrun its own request: the context is stored only
	// after the oracle send returns, so an unknown id is rejected only
	// once no request is still in flight.
	dc, ok := c.store.context(requestID)
	for !ok && c.inflight > 0 {
		c.reqDone.Wait()
		dc, ok = c.store.context(requestID)
	}

	if !ok {
		return ErrUnknownRequest
	}

	if dc.Processed {
		return ErrReplay
	}

	b, ok := c.store.batch(dc.BatchID)
	if !ok || b.Open {
		return c.failCallback(dc, ErrStateMismatch)
	}

	totalSalary, totalBonus := c.aggregateLocked(b)

	if c.commitment(totalSalary, totalBonus) != dc.Commitment {
		return c.failCallback(dc, ErrStateMismatch)
	}

	if !oracle.VerifyProof(proof, requestID, dc.BatchID, cleartexts, c.oraclePub) {
		return c.failCallback(dc, ErrProofVerification)
	}

	values, err := oracle.DecodeCleartexts(cleartexts)
	if err != nil || len(values) != 2 {
		return c.failCallback(dc, ErrProofVerification)
	}

	dc.Processed = true
	dc.LastError = ""
	c.store.setContext(dc)

	c.emit(&Event{
		Type:        EventDecryptionCompleted,
		BatchID:     dc.BatchID,
		RequestID:   requestID,
		TotalSalary: values[0],
		TotalBonus:  values[1],
	})

	return nil
}

// failCallback records a callback failure on the context and returns
// the error. The context stays unprocessed: a mismatched or forged
// result is discarded, never accepted.
func (c *Core) failCallback(dc *DecryptionContext, cause error) error {
	dc.LastError = cause.Error()
	c.store.setContext(dc)

	logger.Warn("decryption callback rejected",
		"request", dc.RequestID.String()[:16],
		"batch", dc.BatchID,
		"cause", cause,
	)

	return cause
}

// OracleCallback adapts HandleDecryptionCallback to the oracle client's
// callback signature. Rejections are logged; the oracle does not retry.
func (c *Core) OracleCallback() oracle.CallbackFunc {
	return func(requestID oracle.RequestID, _ uint64, cleartexts, proof []byte) {
		if err := c.HandleDecryptionCallback(requestID, cleartexts, proof); err != nil {
			logger.Warn("decryption callback failed", "request", requestID.String()[:16], "error", err)
		}
	}
}

// checkCooldown verifies that an identity's cooldown has elapsed.
func (c *Core) checkCooldown(prefix []byte, id Identity, cooldown time.Duration, now time.Time) error {
	if cooldown == 0 {
		return nil
	}

	last := c.store.lastTime(prefix, id)
	if !last.IsZero() && now.Sub(last) < cooldown {
		return ErrCooldown
	}

	return nil
}

// emit timestamps, persists, and logs an audit event.
func (c *Core) emit(ev *Event) {
	ev.Time = c.cfg.Now()
	ev.Seq = c.store.appendEvent(encodeEvent(ev))

	logger.Info("event",
		"seq", ev.Seq,
		"type", ev.Type.String(),
		"batch", ev.BatchID,
	)
}

// CurrentBatchID returns the current batch id (0 if none opened yet).
func (c *Core) CurrentBatchID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store.currentBatch
}

// BatchInfo returns a batch with its contributor list.
func (c *Core) BatchInfo(id uint64) (*Batch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store.batch(id)
}

// Record returns a contributor's encrypted record.
func (c *Core) Record(id Identity) (EncryptedRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store.record(id)
}

// Context returns a decryption context by request id.
func (c *Core) Context(requestID oracle.RequestID) (*DecryptionContext, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store.context(requestID)
}

// PendingRequests returns all unprocessed decryption contexts. A
// request whose callback never arrives stays pending forever; operators
// re-issue a fresh request instead of expiring the old one.
func (c *Core) PendingRequests() []*DecryptionContext {
	c.mu.Lock()
	defer c.mu.Unlock()

	var pending []*DecryptionContext

	for _, dc := range c.store.contexts() {
		if !dc.Processed {
			pending = append(pending, dc)
		}
	}

	return pending
}

// Events returns up to limit audit events starting at fromSeq.
func (c *Core) Events(fromSeq uint64, limit int) []*Event {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []*Event

	_ = c.store.iterateEvents(func(seq uint64, data []byte) error {
		if seq < fromSeq || (limit > 0 && len(out) >= limit) {
			return nil
		}

		ev, err := decodeEvent(seq, data)
		if err == nil {
			out = append(out, ev)
		}

		return nil
	})

	return out
}
