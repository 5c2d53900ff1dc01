package payroll

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/wire"
)

const (
	// snapshotVersion is the current snapshot format version.
	snapshotVersion = 1
)

// Snapshot is a decoded audit snapshot of the core's persisted state.
type Snapshot struct {
	InstanceID   [32]byte
	CurrentBatch uint64
	Records      map[Identity]EncryptedRecord
	Batches      []*Batch
	Contexts     []*DecryptionContext
	Events       []*Event
}

// ExportSnapshot serializes the full persisted state surface (records,
// batches, decryption contexts, audit events) with a checksum,
// compressed with zstd. Iteration orders are deterministic (lexicographic
// keys, big-endian batch ids, event sequence), so exporting twice over
// unchanged state yields identical bytes.
func (c *Core) ExportSnapshot() ([]byte, error) {
	c.mu.Lock()
	payload, err := c.snapshotPayloadLocked()
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	checksum := blake3.Sum256(payload)
	payload = append(payload, checksum[:]...)

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd writer:\n%w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(payload, nil), nil
}

// snapshotPayloadLocked builds the uncompressed snapshot payload.
func (c *Core) snapshotPayloadLocked() ([]byte, error) {
	buf := wire.AppendByte(nil, snapshotVersion)
	buf = append(buf, c.store.instanceID[:]...)
	buf = wire.AppendUint64(buf, c.store.currentBatch)

	// Records, lexicographic by identity.
	var records [][]byte

	err := c.store.iterateRecords(func(id Identity, data []byte) error {
		entry := append([]byte(nil), id[:]...)
		entry = wire.AppendBytes(entry, data)
		records = append(records, entry)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export records:\n%w", err)
	}

	buf = wire.AppendUint32(buf, uint32(len(records)))
	for _, entry := range records {
		buf = append(buf, entry...)
	}

	// Batches, in id order.
	var batches []*Batch

	for id := uint64(1); id <= c.store.currentBatch; id++ {
		if b, ok := c.store.batch(id); ok {
			batches = append(batches, b)
		}
	}

	buf = wire.AppendUint32(buf, uint32(len(batches)))

	for _, b := range batches {
		buf = wire.AppendUint64(buf, b.ID)
		buf = wire.AppendBool(buf, b.Open)
		buf = wire.AppendBytes(buf, encodeContributors(b.Contributors))
	}

	// Decryption contexts, lexicographic by request id.
	contexts := c.store.contexts()
	buf = wire.AppendUint32(buf, uint32(len(contexts)))

	for _, dc := range contexts {
		buf = wire.AppendBytes(buf, encodeContext(dc))
	}

	// Events, in sequence order.
	var events [][]byte

	err = c.store.iterateEvents(func(seq uint64, data []byte) error {
		entry := wire.AppendUint64(nil, seq)
		entry = wire.AppendBytes(entry, data)
		events = append(events, entry)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("export events:\n%w", err)
	}

	buf = wire.AppendUint32(buf, uint32(len(events)))
	for _, entry := range events {
		buf = append(buf, entry...)
	}

	return buf, nil
}

// DecodeSnapshot decompresses and verifies a snapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("init zstd reader:\n%w", err)
	}
	defer dec.Close()

	payload, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress snapshot:\n%w", err)
	}

	if len(payload) < 32 {
		return nil, fmt.Errorf("snapshot too short")
	}

	body := payload[:len(payload)-32]
	checksum := blake3.Sum256(body)

	for i := 0; i < 32; i++ {
		if payload[len(body)+i] != checksum[i] {
			return nil, fmt.Errorf("snapshot checksum mismatch")
		}
	}

	return decodeSnapshotBody(body)
}

// decodeSnapshotBody parses the verified snapshot payload.
func decodeSnapshotBody(body []byte) (*Snapshot, error) {
	r := wire.NewReader(body)

	if v := r.Byte(); v != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version: %d", v)
	}

	snap := &Snapshot{
		InstanceID:   r.Array32(),
		CurrentBatch: r.Uint64(),
		Records:      make(map[Identity]EncryptedRecord),
	}

	recordCount := r.Uint32()
	for i := uint32(0); i < recordCount; i++ {
		id := Identity(r.Array32())

		rec, err := decodeRecord(r.Bytes())
		if err != nil {
			return nil, fmt.Errorf("decode record %d:\n%w", i, err)
		}

		snap.Records[id] = rec
	}

	batchCount := r.Uint32()
	for i := uint32(0); i < batchCount; i++ {
		b := &Batch{
			ID:   r.Uint64(),
			Open: r.Bool(),
		}

		contributors, err := decodeContributors(r.Bytes())
		if err != nil {
			return nil, fmt.Errorf("decode batch %d contributors:\n%w", i, err)
		}

		b.Contributors = contributors
		snap.Batches = append(snap.Batches, b)
	}

	contextCount := r.Uint32()
	for i := uint32(0); i < contextCount; i++ {
		dc, err := decodeContext(r.Bytes())
		if err != nil {
			return nil, fmt.Errorf("decode context %d:\n%w", i, err)
		}

		snap.Contexts = append(snap.Contexts, dc)
	}

	eventCount := r.Uint32()
	for i := uint32(0); i < eventCount; i++ {
		seq := r.Uint64()

		ev, err := decodeEvent(seq, r.Bytes())
		if err != nil {
			return nil, fmt.Errorf("decode event %d:\n%w", i, err)
		}

		snap.Events = append(snap.Events, ev)
	}

	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode snapshot:\n%w", err)
	}

	return snap, nil
}
