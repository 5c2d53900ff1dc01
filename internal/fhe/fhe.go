// Package fhe provides the homomorphic-encryption surface the payroll
// core computes against. Ciphertexts are opaque byte values supporting
// addition and multiplication without local decryption.
//
// The scheme implemented here is a deterministic keyed software scheme:
// it models the external FHE network's interface and determinism
// guarantees, not its cryptographic hardness. Operations are pure
// functions of the scheme key and the operand bytes, so re-running the
// same sequence of operations yields bit-identical ciphertexts. The
// commitment check in the decryption protocol depends on exactly that.
package fhe

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/zeebo/blake3"
)

const (
	// KeySize is the size of a scheme key in bytes.
	KeySize = 32

	// valueSize is the size of the masked plaintext in bytes.
	valueSize = 8

	// tagSize is the size of the integrity tag in bytes.
	tagSize = 16

	// CiphertextSize is the total encoded ciphertext size in bytes.
	CiphertextSize = valueSize + tagSize
)

// Ciphertext is an opaque encrypted integer. The zero value is
// uninitialized; initialized ciphertexts carry CiphertextSize bytes.
type Ciphertext struct {
	data []byte
}

// IsInitialized reports whether the ciphertext holds a value.
func (c Ciphertext) IsInitialized() bool {
	return len(c.data) == CiphertextSize
}

// Bytes returns the encoded ciphertext, or nil if uninitialized.
func (c Ciphertext) Bytes() []byte {
	if !c.IsInitialized() {
		return nil
	}

	out := make([]byte, CiphertextSize)
	copy(out, c.data)

	return out
}

// FromBytes reconstructs a ciphertext from encoded bytes.
// Empty input yields an uninitialized ciphertext; any other length
// that is not CiphertextSize is an error.
func FromBytes(data []byte) (Ciphertext, error) {
	if len(data) == 0 {
		return Ciphertext{}, nil
	}

	if len(data) != CiphertextSize {
		return Ciphertext{}, fmt.Errorf("invalid ciphertext size: got %d, want %d", len(data), CiphertextSize)
	}

	buf := make([]byte, CiphertextSize)
	copy(buf, data)

	return Ciphertext{data: buf}, nil
}

// Scheme holds the shared scheme key and performs all ciphertext
// operations. The same key must be loaded by the aggregation service
// and the decryption oracle.
type Scheme struct {
	key  [KeySize]byte
	mask [valueSize]byte
}

// NewScheme creates a scheme from a 32-byte key.
func NewScheme(key []byte) (*Scheme, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid scheme key size: got %d, want %d", len(key), KeySize)
	}

	s := &Scheme{}
	copy(s.key[:], key)
	s.deriveMask()

	return s, nil
}

// LoadScheme loads a scheme key from a file, generating and saving a
// new random key if the file does not exist.
func LoadScheme(path string) (*Scheme, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return generateAndSaveKey(path)
	}

	if err != nil {
		return nil, fmt.Errorf("read scheme key:\n%w", err)
	}

	return NewScheme(data)
}

// generateAndSaveKey creates a new random scheme key and saves it.
func generateAndSaveKey(path string) (*Scheme, error) {
	var key [KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, fmt.Errorf("generate scheme key:\n%w", err)
	}

	if err := os.WriteFile(path, key[:], 0600); err != nil {
		return nil, fmt.Errorf("save scheme key to %s:\n%w", path, err)
	}

	return NewScheme(key[:])
}

// deriveMask derives the value mask from the scheme key.
func (s *Scheme) deriveMask() {
	h := keyedHasher(s.key)
	h.Write([]byte("value-mask"))

	var sum [32]byte
	h.Sum(sum[:0])

	copy(s.mask[:], sum[:valueSize])
}

// Encrypt encrypts a plaintext integer. Deterministic: the same
// plaintext always yields the same ciphertext under the same key.
func (s *Scheme) Encrypt(value uint64) Ciphertext {
	buf := make([]byte, CiphertextSize)
	binary.LittleEndian.PutUint64(buf[:valueSize], value)

	for i := 0; i < valueSize; i++ {
		buf[i] ^= s.mask[i]
	}

	tag := s.computeTag(buf[:valueSize])
	copy(buf[valueSize:], tag)

	return Ciphertext{data: buf}
}

// EncryptZero returns the encryption of zero, the additive identity.
func (s *Scheme) EncryptZero() Ciphertext {
	return s.Encrypt(0)
}

// Decrypt recovers the plaintext. Fails on uninitialized ciphertexts
// and on integrity tag mismatches.
func (s *Scheme) Decrypt(c Ciphertext) (uint64, error) {
	if !c.IsInitialized() {
		return 0, fmt.Errorf("ciphertext is uninitialized")
	}

	if !s.Verify(c) {
		return 0, fmt.Errorf("ciphertext integrity tag mismatch")
	}

	masked := c.data[:valueSize]
	var plain [valueSize]byte

	for i := 0; i < valueSize; i++ {
		plain[i] = masked[i] ^ s.mask[i]
	}

	return binary.LittleEndian.Uint64(plain[:]), nil
}

// Verify checks the ciphertext integrity tag.
func (s *Scheme) Verify(c Ciphertext) bool {
	if !c.IsInitialized() {
		return false
	}

	want := s.computeTag(c.data[:valueSize])

	for i := 0; i < tagSize; i++ {
		if c.data[valueSize+i] != want[i] {
			return false
		}
	}

	return true
}

// Add returns the encryption of the sum of the two plaintexts.
// Uninitialized operands act as encrypted zero.
func (s *Scheme) Add(a, b Ciphertext) Ciphertext {
	return s.Encrypt(s.plainOrZero(a) + s.plainOrZero(b))
}

// Multiply returns the encryption of the product of the two plaintexts.
// Uninitialized operands act as encrypted zero.
func (s *Scheme) Multiply(a, b Ciphertext) Ciphertext {
	return s.Encrypt(s.plainOrZero(a) * s.plainOrZero(b))
}

// plainOrZero decrypts a ciphertext, treating uninitialized or corrupt
// input as zero.
func (s *Scheme) plainOrZero(c Ciphertext) uint64 {
	v, err := s.Decrypt(c)
	if err != nil {
		return 0
	}

	return v
}

// computeTag computes the keyed integrity tag over masked value bytes.
func (s *Scheme) computeTag(masked []byte) []byte {
	h := keyedHasher(s.key)
	h.Write([]byte("tag"))
	h.Write(masked)

	var sum [32]byte
	h.Sum(sum[:0])

	return sum[:tagSize]
}

// keyedHasher creates a keyed blake3 hasher for the scheme key.
func keyedHasher(key [KeySize]byte) *blake3.Hasher {
	h, err := blake3.NewKeyed(key[:])
	if err != nil {
		// key is always KeySize bytes, NewKeyed cannot fail
		panic(err)
	}

	return h
}
