package payroll

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/storage"
)

// Key prefixes for storage.
var (
	prefixRecord       = []byte("rec:") // rec:<identity> -> encrypted record
	prefixBatch        = []byte("b:")   // b:<id BE u64> -> batch header
	prefixContributors = []byte("bc:")  // bc:<id BE u64> -> contributor list
	prefixContext      = []byte("dc:")  // dc:<requestID> -> decryption context
	prefixSubmitTime   = []byte("cs:")  // cs:<identity> -> last submission time
	prefixRequestTime  = []byte("cr:")  // cr:<identity> -> last request time
	prefixEvent        = []byte("ev:")  // ev:<seq BE u64> -> event record
	prefixMeta         = []byte("m:")   // m:<name> -> metadata
)

// Metadata key names.
var (
	metaCurrentBatch = []byte("currentBatch")
	metaEventSeq     = []byte("eventSeq")
	metaInstanceID   = []byte("instanceID")
)

// store persists all core state in Pebble. It has no internal locking:
// the core serializes every entry point under a single mutation lock.
// Cached counters are rebuilt from storage on startup.
type store struct {
	db *storage.Storage

	currentBatch uint64   // highest batch id opened so far (0 = none)
	eventSeq     uint64   // next event sequence number
	instanceID   [32]byte // binds commitments to this deployment
}

// newStore creates a store and loads (or creates) its metadata.
func newStore(db *storage.Storage) (*store, error) {
	s := &store{db: db}

	s.currentBatch = s.loadCounter(metaCurrentBatch)
	s.eventSeq = s.loadCounter(metaEventSeq)

	if err := s.loadOrCreateInstanceID(); err != nil {
		return nil, err
	}

	return s, nil
}

// loadCounter loads a u64 metadata counter, defaulting to zero.
func (s *store) loadCounter(name []byte) uint64 {
	data, err := s.db.Get(append(append([]byte{}, prefixMeta...), name...))
	if err != nil || len(data) != 8 {
		return 0
	}

	return binary.BigEndian.Uint64(data)
}

// saveCounter persists a u64 metadata counter.
func (s *store) saveCounter(name []byte, v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)

	_ = s.db.Set(append(append([]byte{}, prefixMeta...), name...), buf[:])
}

// loadOrCreateInstanceID loads the deployment instance id, creating a
// random one on first boot. The instance id is mixed into every
// commitment, preventing cross-instance replay.
func (s *store) loadOrCreateInstanceID() error {
	key := append(append([]byte{}, prefixMeta...), metaInstanceID...)

	data, err := s.db.Get(key)
	if err != nil {
		return fmt.Errorf("load instance id:\n%w", err)
	}

	if len(data) == 32 {
		copy(s.instanceID[:], data)
		return nil
	}

	if _, err := rand.Read(s.instanceID[:]); err != nil {
		return fmt.Errorf("generate instance id:\n%w", err)
	}

	if err := s.db.Set(key, s.instanceID[:]); err != nil {
		return fmt.Errorf("save instance id:\n%w", err)
	}

	return nil
}

// record retrieves a contributor's encrypted record.
func (s *store) record(id Identity) (EncryptedRecord, bool) {
	data, err := s.db.Get(makeIdentityKey(prefixRecord, id))
	if err != nil || data == nil {
		return EncryptedRecord{}, false
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return EncryptedRecord{}, false
	}

	return rec, true
}

// setRecord stores (or overwrites) a contributor's encrypted record.
func (s *store) setRecord(id Identity, rec EncryptedRecord) {
	_ = s.db.Set(makeIdentityKey(prefixRecord, id), encodeRecord(rec))
}

// batch retrieves a batch with its contributor list.
func (s *store) batch(id uint64) (*Batch, bool) {
	data, err := s.db.Get(makeBatchKey(prefixBatch, id))
	if err != nil || data == nil {
		return nil, false
	}

	open, err := decodeBatchHeader(data)
	if err != nil {
		return nil, false
	}

	b := &Batch{ID: id, Open: open}

	contribData, err := s.db.Get(makeBatchKey(prefixContributors, id))
	if err == nil && contribData != nil {
		contributors, err := decodeContributors(contribData)
		if err == nil {
			b.Contributors = contributors
		}
	}

	return b, true
}

// setBatchHeader stores a batch header.
func (s *store) setBatchHeader(id uint64, open bool) {
	_ = s.db.Set(makeBatchKey(prefixBatch, id), encodeBatchHeader(open))
}

// setContributors stores a batch's contributor list (insertion order).
func (s *store) setContributors(id uint64, contributors []Identity) {
	_ = s.db.Set(makeBatchKey(prefixContributors, id), encodeContributors(contributors))
}

// setCurrentBatch updates the current batch counter.
func (s *store) setCurrentBatch(id uint64) {
	s.currentBatch = id
	s.saveCounter(metaCurrentBatch, id)
}

// context retrieves a decryption context by request id.
func (s *store) context(requestID [32]byte) (*DecryptionContext, bool) {
	data, err := s.db.Get(makeRawKey(prefixContext, requestID))
	if err != nil || data == nil {
		return nil, false
	}

	dc, err := decodeContext(data)
	if err != nil {
		return nil, false
	}

	return dc, true
}

// setContext stores a decryption context.
func (s *store) setContext(dc *DecryptionContext) {
	_ = s.db.Set(makeRawKey(prefixContext, dc.RequestID), encodeContext(dc))
}

// contexts returns all decryption contexts.
func (s *store) contexts() []*DecryptionContext {
	var out []*DecryptionContext

	_ = s.db.IteratePrefix(prefixContext, func(_, value []byte) error {
		dc, err := decodeContext(value)
		if err == nil {
			out = append(out, dc)
		}

		return nil
	})

	return out
}

// lastTime loads a cooldown timestamp, zero if absent.
func (s *store) lastTime(prefix []byte, id Identity) time.Time {
	data, err := s.db.Get(makeIdentityKey(prefix, id))
	if err != nil || len(data) != 8 {
		return time.Time{}
	}

	return time.Unix(0, int64(binary.BigEndian.Uint64(data)))
}

// setLastTime stores a cooldown timestamp.
func (s *store) setLastTime(prefix []byte, id Identity, t time.Time) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.UnixNano()))

	_ = s.db.Set(makeIdentityKey(prefix, id), buf[:])
}

// appendEvent persists an event and returns its sequence number.
func (s *store) appendEvent(data []byte) uint64 {
	seq := s.eventSeq
	s.eventSeq++

	var key [8]byte
	binary.BigEndian.PutUint64(key[:], seq)

	_ = s.db.Set(append(append([]byte{}, prefixEvent...), key[:]...), data)
	s.saveCounter(metaEventSeq, s.eventSeq)

	return seq
}

// iterateEvents calls fn for every persisted event in sequence order.
func (s *store) iterateEvents(fn func(seq uint64, data []byte) error) error {
	return s.db.IteratePrefix(prefixEvent, func(key, value []byte) error {
		if len(key) != len(prefixEvent)+8 {
			return nil
		}

		seq := binary.BigEndian.Uint64(key[len(prefixEvent):])

		return fn(seq, value)
	})
}

// iterateRecords calls fn for every stored encrypted record.
func (s *store) iterateRecords(fn func(id Identity, data []byte) error) error {
	return s.db.IteratePrefix(prefixRecord, func(key, value []byte) error {
		if len(key) != len(prefixRecord)+32 {
			return nil
		}

		var id Identity
		copy(id[:], key[len(prefixRecord):])

		return fn(id, value)
	})
}

// makeIdentityKey builds a storage key: prefix + identity bytes.
func makeIdentityKey(prefix []byte, id Identity) []byte {
	key := make([]byte, len(prefix)+32)
	copy(key, prefix)
	copy(key[len(prefix):], id[:])

	return key
}

// makeRawKey builds a storage key: prefix + 32 raw bytes.
func makeRawKey(prefix []byte, id [32]byte) []byte {
	key := make([]byte, len(prefix)+32)
	copy(key, prefix)
	copy(key[len(prefix):], id[:])

	return key
}

// makeBatchKey builds a storage key: prefix + big-endian batch id.
// Big-endian keeps batches in numeric order under prefix iteration.
func makeBatchKey(prefix []byte, id uint64) []byte {
	key := make([]byte, len(prefix)+8)
	copy(key, prefix)
	binary.BigEndian.PutUint64(key[len(prefix):], id)

	return key
}
