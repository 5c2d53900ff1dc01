package oracle

import (
	"crypto/rand"
	"fmt"
	"os"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/guajardonormakc-4/Dao-Payroll-Fhe/internal/wire"
)

const (
	// PublicKeySize is the size of a BLS public key in bytes.
	PublicKeySize = 48

	// SignatureSize is the size of a BLS signature in bytes.
	SignatureSize = 96

	// seedSize is the minimum BLS key seed size in bytes.
	seedSize = 32
)

// proofDST is the domain separation tag for decryption correctness proofs.
var proofDST = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// proofContext prefixes every signed message, binding proofs to this
// protocol version.
var proofContext = []byte("payroll-decryption-proof-v1")

// KeyPair holds the oracle's BLS signing key pair.
type KeyPair struct {
	secret *blst.SecretKey // secret is the private key
	public *blst.P1Affine  // public is the public key
}

// GenerateKey creates a new BLS key pair from a random seed.
func GenerateKey() (*KeyPair, error) {
	var ikm [seedSize]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, fmt.Errorf("generate random seed:\n%w", err)
	}

	return KeyFromSeed(ikm[:])
}

// KeyFromSeed creates a BLS key pair from a deterministic seed.
// The seed must be at least 32 bytes.
func KeyFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) < seedSize {
		return nil, fmt.Errorf("seed must be at least %d bytes", seedSize)
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, fmt.Errorf("failed to generate BLS key")
	}

	public := new(blst.P1Affine).From(secret)

	return &KeyPair{
		secret: secret,
		public: public,
	}, nil
}

// LoadKey loads a BLS key seed from a file, generating and saving a new
// random seed if the file does not exist.
func LoadKey(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		var seed [seedSize]byte
		if _, err := rand.Read(seed[:]); err != nil {
			return nil, fmt.Errorf("generate seed:\n%w", err)
		}

		if err := os.WriteFile(path, seed[:], 0600); err != nil {
			return nil, fmt.Errorf("save seed to %s:\n%w", path, err)
		}

		return KeyFromSeed(seed[:])
	}

	if err != nil {
		return nil, fmt.Errorf("read seed file:\n%w", err)
	}

	return KeyFromSeed(data)
}

// Sign creates a correctness proof over a decryption result.
func (k *KeyPair) Sign(requestID RequestID, batchID uint64, cleartexts []byte) []byte {
	msg := ProofMessage(requestID, batchID, cleartexts)
	sig := new(blst.P2Affine).Sign(k.secret, msg, proofDST)

	return sig.Compress()
}

// PublicKeyBytes returns the compressed public key bytes.
func (k *KeyPair) PublicKeyBytes() []byte {
	return k.public.Compress()
}

// VerifyProof checks a correctness proof against the oracle public key.
func VerifyProof(proof []byte, requestID RequestID, batchID uint64, cleartexts, publicKey []byte) bool {
	if len(proof) != SignatureSize || len(publicKey) != PublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(proof)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	msg := ProofMessage(requestID, batchID, cleartexts)

	return sig.Verify(true, pk, true, msg, proofDST)
}

// ProofMessage builds the canonical signed message for a decryption
// result: context || requestID || batchID || cleartexts.
func ProofMessage(requestID RequestID, batchID uint64, cleartexts []byte) []byte {
	msg := make([]byte, 0, len(proofContext)+len(requestID)+8+4+len(cleartexts))
	msg = append(msg, proofContext...)
	msg = append(msg, requestID[:]...)
	msg = wire.AppendUint64(msg, batchID)
	msg = wire.AppendBytes(msg, cleartexts)

	return msg
}
