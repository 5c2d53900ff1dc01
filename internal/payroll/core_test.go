package payroll

import (
	"context"
	"testing"
	"time"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/access"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/oracle"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/storage"
)

// Test identities.
var (
	admin    = Identity{0x0A}
	provider = Identity{0x0B}
	alice    = Identity{0xA1}
	bob      = Identity{0xB1}
	nobody   = Identity{0xFF}
)

// testEnv wires a core with in-memory storage, a fixed scheme, and a
// manual-mode local oracle so tests control callback timing.
type testEnv struct {
	core   *Core
	access *access.Control
	scheme *fhe.Scheme
	oracle *oracle.Local
	key    *oracle.KeyPair
	db     *storage.Storage

	now time.Time
}

// newTestEnv creates a test environment with the given cooldowns.
func newTestEnv(t *testing.T, submitCooldown, requestCooldown time.Duration) *testEnv {
	t.Helper()

	db, err := storage.NewMemory()
	if err != nil {
		t.Fatalf("create storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemeKey := make([]byte, fhe.KeySize)
	for i := range schemeKey {
		schemeKey[i] = byte(i)
	}

	scheme, err := fhe.NewScheme(schemeKey)
	if err != nil {
		t.Fatalf("create scheme: %v", err)
	}

	ac := access.NewControl()
	ac.Grant(access.Identity(admin), access.RoleAdmin)
	ac.Grant(access.Identity(provider), access.RoleProvider)

	env := &testEnv{
		access: ac,
		scheme: scheme,
		db:     db,
		now:    time.Unix(1_700_000_000, 0),
	}

	core, err := New(db, ac, scheme, Config{
		SubmitCooldown:  submitCooldown,
		RequestCooldown: requestCooldown,
		Now:             func() time.Time { return env.now },
	})
	if err != nil {
		t.Fatalf("create core: %v", err)
	}

	key, err := oracle.GenerateKey()
	if err != nil {
		t.Fatalf("generate oracle key: %v", err)
	}

	local := oracle.NewLocal(scheme, key, core.OracleCallback())
	local.SetManual(true)
	t.Cleanup(func() { local.Close() })

	core.SetOracle(local, key.PublicKeyBytes())

	env.core = core
	env.oracle = local
	env.key = key

	return env
}

// advance moves the injected clock forward.
func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// openBatch opens a batch as admin, failing the test on error.
func (e *testEnv) openBatch(t *testing.T) uint64 {
	t.Helper()

	id, err := e.core.OpenBatch(admin)
	if err != nil {
		t.Fatalf("open batch: %v", err)
	}

	return id
}

// closeBatch closes the current batch as admin.
func (e *testEnv) closeBatch(t *testing.T) uint64 {
	t.Helper()

	id, err := e.core.CloseBatch(admin)
	if err != nil {
		t.Fatalf("close batch: %v", err)
	}

	return id
}

// submit submits a plaintext (salary, score) pair for a contributor.
func (e *testEnv) submit(t *testing.T, contributor Identity, salary, score uint64) {
	t.Helper()

	err := e.core.SubmitContribution(provider, contributor, e.scheme.Encrypt(salary), e.scheme.Encrypt(score))
	if err != nil {
		t.Fatalf("submit contribution for %s: %v", contributor.String()[:8], err)
	}
}

// request issues a decryption request for a batch.
func (e *testEnv) request(t *testing.T, batchID uint64) oracle.RequestID {
	t.Helper()

	id, err := e.core.RequestBatchDecryption(context.Background(), provider, batchID)
	if err != nil {
		t.Fatalf("request decryption: %v", err)
	}

	return id
}

// TestOpenBatchRequiresAdmin tests the admin capability check.
func TestOpenBatchRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	if _, err := env.core.OpenBatch(nobody); err != ErrNotAdmin {
		t.Errorf("expected ErrNotAdmin, got %v", err)
	}

	if _, err := env.core.OpenBatch(provider); err != ErrNotAdmin {
		t.Errorf("provider should not open batches, got %v", err)
	}
}

// TestBatchIDsMonotonic tests that batch ids increase strictly by one.
func TestBatchIDsMonotonic(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	for want := uint64(1); want <= 5; want++ {
		id := env.openBatch(t)
		if id != want {
			t.Fatalf("batch id: got %d, want %d", id, want)
		}

		env.closeBatch(t)
	}

	if got := env.core.CurrentBatchID(); got != 5 {
		t.Errorf("current batch: got %d, want 5", got)
	}
}

// TestOpenBatchClosesPrevious tests that opening while a batch is open
// closes the previous one first.
func TestOpenBatchClosesPrevious(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	first := env.openBatch(t)
	second := env.openBatch(t)

	if second != first+1 {
		t.Fatalf("second batch id: got %d, want %d", second, first+1)
	}

	b, ok := env.core.BatchInfo(first)
	if !ok {
		t.Fatal("first batch should exist")
	}

	if b.Open {
		t.Error("first batch should have been implicitly closed")
	}
}

// TestCloseBatchTerminal tests that closing is terminal and repeat
// closes fail.
func TestCloseBatchTerminal(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	env.openBatch(t)
	env.closeBatch(t)

	if _, err := env.core.CloseBatch(admin); err != ErrInvalidBatchState {
		t.Errorf("second close: expected ErrInvalidBatchState, got %v", err)
	}

	b, _ := env.core.BatchInfo(1)
	if b.Open {
		t.Error("closed batch should stay closed")
	}
}

// TestCloseBatchNoOpen tests closing before any batch was opened.
func TestCloseBatchNoOpen(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	if _, err := env.core.CloseBatch(admin); err != ErrInvalidBatchState {
		t.Errorf("expected ErrInvalidBatchState, got %v", err)
	}
}

// TestSubmitContribution tests the happy path.
func TestSubmitContribution(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)

	b, _ := env.core.BatchInfo(id)
	if len(b.Contributors) != 1 || b.Contributors[0] != alice {
		t.Errorf("contributors: got %v", b.Contributors)
	}

	rec, ok := env.core.Record(alice)
	if !ok {
		t.Fatal("record should exist")
	}

	salary, err := env.scheme.Decrypt(rec.Salary)
	if err != nil || salary != 1000 {
		t.Errorf("salary: got %d, %v", salary, err)
	}

	score, err := env.scheme.Decrypt(rec.Score)
	if err != nil || score != 80 {
		t.Errorf("score: got %d, %v", score, err)
	}
}

// TestSubmitRequiresProvider tests the provider capability check.
func TestSubmitRequiresProvider(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.openBatch(t)

	err := env.core.SubmitContribution(nobody, alice, env.scheme.Encrypt(1), env.scheme.Encrypt(1))
	if err != ErrNotProvider {
		t.Errorf("expected ErrNotProvider, got %v", err)
	}

	// Admin capability does not imply provider.
	err = env.core.SubmitContribution(admin, alice, env.scheme.Encrypt(1), env.scheme.Encrypt(1))
	if err != ErrNotProvider {
		t.Errorf("admin submit: expected ErrNotProvider, got %v", err)
	}
}

// TestSubmitNoOpenBatch tests submission outside an open batch.
func TestSubmitNoOpenBatch(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	err := env.core.SubmitContribution(provider, alice, env.scheme.Encrypt(1), env.scheme.Encrypt(1))
	if err != ErrInvalidBatch {
		t.Errorf("no batch: expected ErrInvalidBatch, got %v", err)
	}

	env.openBatch(t)
	env.closeBatch(t)

	err = env.core.SubmitContribution(provider, alice, env.scheme.Encrypt(1), env.scheme.Encrypt(1))
	if err != ErrInvalidBatch {
		t.Errorf("closed batch: expected ErrInvalidBatch, got %v", err)
	}
}

// TestSubmitDuplicate tests duplicate rejection within a batch.
func TestSubmitDuplicate(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)

	err := env.core.SubmitContribution(provider, alice, env.scheme.Encrypt(9), env.scheme.Encrypt(9))
	if err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// The failed submission must not have mutated anything.
	b, _ := env.core.BatchInfo(id)
	if len(b.Contributors) != 1 {
		t.Errorf("contributors after duplicate: got %d, want 1", len(b.Contributors))
	}

	rec, _ := env.core.Record(alice)
	if v, _ := env.scheme.Decrypt(rec.Salary); v != 1000 {
		t.Errorf("record overwritten by rejected duplicate: salary %d", v)
	}
}

// TestSubmitAcrossBatches tests that the same identity may contribute
// to different batches, overwriting its record.
func TestSubmitAcrossBatches(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.closeBatch(t)

	env.openBatch(t)
	env.submit(t, alice, 2000, 50)

	rec, _ := env.core.Record(alice)
	if v, _ := env.scheme.Decrypt(rec.Salary); v != 2000 {
		t.Errorf("record should hold latest submission: salary %d", v)
	}
}

// TestSubmitUninitializedCoercedToZero tests the encrypted-zero
// coercion policy for missing ciphertexts.
func TestSubmitUninitializedCoercedToZero(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)

	if err := env.core.SubmitContribution(provider, alice, fhe.Ciphertext{}, fhe.Ciphertext{}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	rec, ok := env.core.Record(alice)
	if !ok || !rec.Initialized() {
		t.Fatal("record should exist fully initialized")
	}

	if v, err := env.scheme.Decrypt(rec.Salary); err != nil || v != 0 {
		t.Errorf("salary: got %d, %v, want encrypted zero", v, err)
	}

	// A zero record must not break aggregation.
	env.submit(t, bob, 500, 10)
	env.closeBatch(t)

	totalSalary, _, err := env.core.Aggregate(id)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if v, _ := env.scheme.Decrypt(totalSalary); v != 500 {
		t.Errorf("total salary: got %d, want 500", v)
	}
}

// TestAggregateCorrectness tests the weighted aggregate against a
// plaintext shadow computation.
func TestAggregateCorrectness(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.submit(t, bob, 2000, 50)
	env.closeBatch(t)

	totalSalary, totalBonus, err := env.core.Aggregate(id)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if v, _ := env.scheme.Decrypt(totalSalary); v != 3000 {
		t.Errorf("total salary: got %d, want 3000", v)
	}

	// 1000*80 + 2000*50 = 180000
	if v, _ := env.scheme.Decrypt(totalBonus); v != 180000 {
		t.Errorf("total bonus: got %d, want 180000", v)
	}
}

// TestAggregateOpenBatch tests that open batches cannot be aggregated.
func TestAggregateOpenBatch(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1, 1)

	if _, _, err := env.core.Aggregate(id); err != ErrInvalidBatch {
		t.Errorf("expected ErrInvalidBatch, got %v", err)
	}

	if _, _, err := env.core.Aggregate(99); err != ErrInvalidBatch {
		t.Errorf("unknown batch: expected ErrInvalidBatch, got %v", err)
	}
}

// TestAggregateDeterministic tests that re-aggregating a closed batch
// yields bit-identical ciphertexts.
func TestAggregateDeterministic(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.submit(t, bob, 2000, 50)
	env.closeBatch(t)

	s1, b1, err := env.core.Aggregate(id)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	s2, b2, _ := env.core.Aggregate(id)

	if string(s1.Bytes()) != string(s2.Bytes()) || string(b1.Bytes()) != string(b2.Bytes()) {
		t.Error("re-aggregation should be bit-identical")
	}
}

// TestNoCrossBatchLeakage tests that a batch aggregates only its own
// contributors.
func TestNoCrossBatchLeakage(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	first := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.closeBatch(t)

	second := env.openBatch(t)
	env.submit(t, bob, 2000, 50)
	env.closeBatch(t)

	s1, _, _ := env.core.Aggregate(first)
	s2, _, _ := env.core.Aggregate(second)

	if v, _ := env.scheme.Decrypt(s1); v != 1000 {
		t.Errorf("first batch salary: got %d, want 1000", v)
	}

	if v, _ := env.scheme.Decrypt(s2); v != 2000 {
		t.Errorf("second batch salary: got %d, want 2000", v)
	}
}

// TestDecryptionRoundTrip tests the full request/callback protocol.
func TestDecryptionRoundTrip(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.submit(t, bob, 2000, 50)
	env.closeBatch(t)

	requestID := env.request(t, id)

	dc, ok := env.core.Context(requestID)
	if !ok {
		t.Fatal("context should exist after request")
	}

	if dc.Processed {
		t.Error("context should not be processed before callback")
	}

	if pending := env.core.PendingRequests(); len(pending) != 1 {
		t.Errorf("pending: got %d, want 1", len(pending))
	}

	env.oracle.Flush()

	dc, _ = env.core.Context(requestID)
	if !dc.Processed {
		t.Fatal("context should be processed after callback")
	}

	if dc.LastError != "" {
		t.Errorf("unexpected last error: %s", dc.LastError)
	}

	if pending := env.core.PendingRequests(); len(pending) != 0 {
		t.Errorf("pending after callback: got %d, want 0", len(pending))
	}

	// The completion event carries the verified cleartext totals.
	events := env.core.Events(0, 0)
	last := events[len(events)-1]

	if last.Type != EventDecryptionCompleted {
		t.Fatalf("last event: got %s", last.Type)
	}

	if last.TotalSalary != 3000 || last.TotalBonus != 180000 {
		t.Errorf("totals: got (%d, %d), want (3000, 180000)", last.TotalSalary, last.TotalBonus)
	}
}

// TestRequestDecryptionRequiresProvider tests the capability check.
func TestRequestDecryptionRequiresProvider(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	env.openBatch(t)
	env.closeBatch(t)

	if _, err := env.core.RequestBatchDecryption(context.Background(), nobody, 1); err != ErrNotProvider {
		t.Errorf("expected ErrNotProvider, got %v", err)
	}
}

// TestRequestDecryptionOpenBatch tests that open batches cannot be
// requested.
func TestRequestDecryptionOpenBatch(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)

	if _, err := env.core.RequestBatchDecryption(context.Background(), provider, id); err != ErrInvalidBatch {
		t.Errorf("expected ErrInvalidBatch, got %v", err)
	}
}

// TestCallbackReplay tests that a processed request rejects repeats and
// emits no second completion event.
func TestCallbackReplay(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.closeBatch(t)

	requestID := env.request(t, id)
	env.oracle.Flush()

	cleartexts := oracle.EncodeCleartexts([]uint64{3000, 80000})
	proof := env.key.Sign(requestID, id, cleartexts)

	eventsBefore := len(env.core.Events(0, 0))

	if err := env.core.HandleDecryptionCallback(requestID, cleartexts, proof); err != ErrReplay {
		t.Fatalf("expected ErrReplay, got %v", err)
	}

	if got := len(env.core.Events(0, 0)); got != eventsBefore {
		t.Errorf("replay emitted events: %d -> %d", eventsBefore, got)
	}

	dc, _ := env.core.Context(requestID)
	if !dc.Processed {
		t.Error("context should stay processed")
	}
}

// TestCallbackUnknownRequest tests rejection of unknown request ids.
func TestCallbackUnknownRequest(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	err := env.core.HandleDecryptionCallback(oracle.RequestID{0xEE}, nil, nil)
	if err != ErrUnknownRequest {
		t.Errorf("expected ErrUnknownRequest, got %v", err)
	}
}

// racingOracle decrypts in-process and delivers its callback from a
// goroutine started before the request call returns, so the callback
// races the core's own bookkeeping. It also reads core state while the
// request is in flight.
type racingOracle struct {
	scheme *fhe.Scheme
	key    *oracle.KeyPair
	core   *Core

	reads chan uint64
	done  chan error
}

func (o *racingOracle) RequestDecryption(_ context.Context, batchID uint64, cts []fhe.Ciphertext) (oracle.RequestID, error) {
	id := oracle.RequestID{0xD1}

	values := make([]uint64, len(cts))

	for i, ct := range cts {
		v, err := o.scheme.Decrypt(ct)
		if err != nil {
			return oracle.RequestID{}, err
		}

		values[i] = v
	}

	cleartexts := oracle.EncodeCleartexts(values)
	proof := o.key.Sign(id, batchID, cleartexts)

	go func() {
		o.done <- o.core.HandleDecryptionCallback(id, cleartexts, proof)
	}()

	// Blocks forever if the core still holds its lock across the send.
	o.reads <- o.core.CurrentBatchID()

	// Give the callback goroutine a head start on the return path.
	time.Sleep(20 * time.Millisecond)

	return id, nil
}

func (o *racingOracle) Close() error { return nil }

// TestCallbackRacesRequest tests that a callback arriving before the
// request has recorded its context is held until it can be matched, and
// that other entry points stay responsive during the oracle send.
func TestCallbackRacesRequest(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.closeBatch(t)

	stub := &racingOracle{
		scheme: env.scheme,
		key:    env.key,
		core:   env.core,
		reads:  make(chan uint64, 1),
		done:   make(chan error, 1),
	}
	env.core.SetOracle(stub, env.key.PublicKeyBytes())

	requestID, err := env.core.RequestBatchDecryption(context.Background(), provider, id)
	if err != nil {
		t.Fatalf("request decryption: %v", err)
	}

	if got := <-stub.reads; got != id {
		t.Errorf("read during oracle send: got batch %d, want %d", got, id)
	}

	select {
	case err := <-stub.done:
		if err != nil {
			t.Errorf("racing callback rejected: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("racing callback never settled")
	}

	dc, ok := env.core.Context(requestID)
	if !ok || !dc.Processed {
		t.Error("context should be processed after the racing callback")
	}
}

// TestCallbackStateMismatch tests consistency rejection: the record
// store changed between request and callback, so the recomputed
// commitment no longer matches.
func TestCallbackStateMismatch(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	first := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.closeBatch(t)

	requestID := env.request(t, first)

	// Alice resubmits in a later batch, overwriting her record. The
	// pending request for the first batch now aggregates differently.
	env.openBatch(t)
	env.submit(t, alice, 9999, 1)

	env.oracle.Flush()

	dc, _ := env.core.Context(requestID)

	if dc.Processed {
		t.Fatal("mismatched callback must not finalize")
	}

	if dc.LastError != ErrStateMismatch.Error() {
		t.Errorf("last error: got %q, want %q", dc.LastError, ErrStateMismatch.Error())
	}

	// No completion event was emitted.
	for _, ev := range env.core.Events(0, 0) {
		if ev.Type == EventDecryptionCompleted {
			t.Error("rejected callback emitted a completion event")
		}
	}
}

// TestCallbackBadProof tests proof rejection.
func TestCallbackBadProof(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.closeBatch(t)

	requestID := env.request(t, id)

	cleartexts := oracle.EncodeCleartexts([]uint64{3000, 80000})
	forged := make([]byte, oracle.SignatureSize)

	if err := env.core.HandleDecryptionCallback(requestID, cleartexts, forged); err != ErrProofVerification {
		t.Fatalf("expected ErrProofVerification, got %v", err)
	}

	dc, _ := env.core.Context(requestID)
	if dc.Processed {
		t.Error("forged callback must not finalize")
	}

	if dc.LastError != ErrProofVerification.Error() {
		t.Errorf("last error: got %q", dc.LastError)
	}

	// A later valid callback still succeeds: failure is not terminal.
	env.oracle.Flush()

	dc, _ = env.core.Context(requestID)
	if !dc.Processed {
		t.Error("valid callback after a failed one should finalize")
	}
}

// TestCallbackWrongValueCount tests rejection of a validly signed
// result carrying the wrong number of cleartext values.
func TestCallbackWrongValueCount(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.closeBatch(t)

	requestID := env.request(t, id)

	// Properly signed, but only one value.
	cleartexts := oracle.EncodeCleartexts([]uint64{3000})
	proof := env.key.Sign(requestID, id, cleartexts)

	if err := env.core.HandleDecryptionCallback(requestID, cleartexts, proof); err != ErrProofVerification {
		t.Fatalf("expected ErrProofVerification, got %v", err)
	}

	dc, _ := env.core.Context(requestID)
	if dc.Processed {
		t.Error("malformed result must not finalize")
	}
}

// TestSubmitCooldown tests the per-caller submission cooldown.
func TestSubmitCooldown(t *testing.T) {
	env := newTestEnv(t, time.Minute, 0)

	env.openBatch(t)
	env.submit(t, alice, 1, 1)

	err := env.core.SubmitContribution(provider, bob, env.scheme.Encrypt(1), env.scheme.Encrypt(1))
	if err != ErrCooldown {
		t.Fatalf("expected ErrCooldown, got %v", err)
	}

	env.advance(30 * time.Second)

	err = env.core.SubmitContribution(provider, bob, env.scheme.Encrypt(1), env.scheme.Encrypt(1))
	if err != ErrCooldown {
		t.Fatalf("cooldown should still hold, got %v", err)
	}

	env.advance(31 * time.Second)
	env.submit(t, bob, 1, 1)
}

// TestRequestCooldown tests the per-caller decryption request cooldown.
func TestRequestCooldown(t *testing.T) {
	env := newTestEnv(t, 0, time.Minute)

	id := env.openBatch(t)
	env.submit(t, alice, 1, 1)
	env.closeBatch(t)

	env.request(t, id)

	_, err := env.core.RequestBatchDecryption(context.Background(), provider, id)
	if err != ErrCooldown {
		t.Fatalf("expected ErrCooldown, got %v", err)
	}

	env.advance(61 * time.Second)
	env.request(t, id)
}

// TestPauseBlocksMutations tests that pause halts all mutating entry
// points.
func TestPauseBlocksMutations(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.closeBatch(t)
	env.access.Pause()

	if _, err := env.core.OpenBatch(admin); err != ErrPaused {
		t.Errorf("open: expected ErrPaused, got %v", err)
	}

	if _, err := env.core.CloseBatch(admin); err != ErrPaused {
		t.Errorf("close: expected ErrPaused, got %v", err)
	}

	err := env.core.SubmitContribution(provider, alice, env.scheme.Encrypt(1), env.scheme.Encrypt(1))
	if err != ErrPaused {
		t.Errorf("submit: expected ErrPaused, got %v", err)
	}

	if _, err := env.core.RequestBatchDecryption(context.Background(), provider, id); err != ErrPaused {
		t.Errorf("request: expected ErrPaused, got %v", err)
	}

	env.access.Unpause()
	env.openBatch(t)
}

// TestEvents tests audit log sequencing and range reads.
func TestEvents(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	env.openBatch(t)
	env.submit(t, alice, 1, 1)
	env.closeBatch(t)

	events := env.core.Events(0, 0)
	if len(events) != 3 {
		t.Fatalf("events: got %d, want 3", len(events))
	}

	wantTypes := []EventType{EventBatchOpened, EventContributionSubmitted, EventBatchClosed}

	for i, ev := range events {
		if ev.Seq != uint64(i) {
			t.Errorf("event %d seq: got %d", i, ev.Seq)
		}

		if ev.Type != wantTypes[i] {
			t.Errorf("event %d type: got %s, want %s", i, ev.Type, wantTypes[i])
		}
	}

	// The contribution event carries handles, never plaintext.
	if events[1].Identity != alice {
		t.Error("contribution event identity mismatch")
	}

	if events[1].SalaryHandle == ([32]byte{}) {
		t.Error("contribution event should carry a salary handle")
	}

	// Range reads.
	tail := env.core.Events(1, 0)
	if len(tail) != 2 || tail[0].Seq != 1 {
		t.Errorf("from=1: got %d events", len(tail))
	}

	limited := env.core.Events(0, 2)
	if len(limited) != 2 {
		t.Errorf("limit=2: got %d events", len(limited))
	}
}

// TestRestartRecovery tests that a new core over the same storage
// resumes counters, batches, records, and contexts.
func TestRestartRecovery(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.submit(t, alice, 1000, 80)
	env.closeBatch(t)

	requestID := env.request(t, id)
	instanceID := env.core.InstanceID()

	core2, err := New(env.db, env.access, env.scheme, Config{Now: func() time.Time { return env.now }})
	if err != nil {
		t.Fatalf("recreate core: %v", err)
	}

	if core2.InstanceID() != instanceID {
		t.Error("instance id should survive restart")
	}

	if core2.CurrentBatchID() != id {
		t.Errorf("current batch: got %d, want %d", core2.CurrentBatchID(), id)
	}

	b, ok := core2.BatchInfo(id)
	if !ok || b.Open || len(b.Contributors) != 1 {
		t.Error("batch state should survive restart")
	}

	rec, ok := core2.Record(alice)
	if !ok {
		t.Fatal("record should survive restart")
	}

	if v, _ := env.scheme.Decrypt(rec.Salary); v != 1000 {
		t.Errorf("recovered salary: got %d", v)
	}

	dc, ok := core2.Context(requestID)
	if !ok || dc.Processed {
		t.Error("pending context should survive restart unprocessed")
	}

	// The recovered core accepts the pending callback: same scheme,
	// same records, same instance id, so the commitment still matches.
	core2.SetOracle(env.oracle, env.key.PublicKeyBytes())

	cleartexts := oracle.EncodeCleartexts([]uint64{3000, 80000})
	proof := env.key.Sign(requestID, id, cleartexts)

	if err := core2.HandleDecryptionCallback(requestID, cleartexts, proof); err != nil {
		t.Fatalf("callback after restart: %v", err)
	}

	// Event sequence continues without collision.
	events := core2.Events(0, 0)
	for i, ev := range events {
		if ev.Seq != uint64(i) {
			t.Fatalf("event %d seq: got %d", i, ev.Seq)
		}
	}
}

// TestEmptyBatchDecryption tests that a closed batch with no
// contributions decrypts to zero totals.
func TestEmptyBatchDecryption(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	id := env.openBatch(t)
	env.closeBatch(t)

	env.request(t, id)
	env.oracle.Flush()

	events := env.core.Events(0, 0)
	last := events[len(events)-1]

	if last.Type != EventDecryptionCompleted {
		t.Fatalf("last event: got %s", last.Type)
	}

	if last.TotalSalary != 0 || last.TotalBonus != 0 {
		t.Errorf("empty batch totals: got (%d, %d), want (0, 0)", last.TotalSalary, last.TotalBonus)
	}
}
