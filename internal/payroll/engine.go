package payroll

import (
	"github.com/zeebo/blake3"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/fhe"
	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/wire"
)

// aggregateLocked folds the contributors of a closed batch into the two
// running totals:
//
//	totalSalary = Σ salary_i
//	totalBonus  = Σ salary_i * score_i
//
// Iteration follows contributor insertion order, and every homomorphic
// operation is deterministic, so re-running over the same closed batch
// state yields bit-identical ciphertexts. The commitment check at
// callback time depends on that.
//
// Records that are not fully initialized are skipped. Submission
// coerces uninitialized inputs to encrypted zero, so such records
// should not exist, but the engine does not trust store invariants
// blindly.
//
// Caller must hold c.mu.
func (c *Core) aggregateLocked(b *Batch) (totalSalary, totalBonus fhe.Ciphertext) {
	totalSalary = c.scheme.EncryptZero()
	totalBonus = c.scheme.EncryptZero()

	for _, id := range b.Contributors {
		rec, ok := c.store.record(id)
		if !ok || !rec.Initialized() {
			continue
		}

		totalSalary = c.scheme.Add(totalSalary, rec.Salary)
		totalBonus = c.scheme.Add(totalBonus, c.scheme.Multiply(rec.Salary, rec.Score))
	}

	return totalSalary, totalBonus
}

// commitment hashes the aggregate ciphertext pair together with the
// deployment instance id. The instance id prevents a result obtained
// against one deployment from being replayed against another.
func (c *Core) commitment(totalSalary, totalBonus fhe.Ciphertext) [32]byte {
	buf := wire.AppendBytes(nil, totalSalary.Bytes())
	buf = wire.AppendBytes(buf, totalBonus.Bytes())
	buf = append(buf, c.store.instanceID[:]...)

	return blake3.Sum256(buf)
}
