package ephemeral

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"

	"github.com/pkg/errors"
)

// ed25519SchemeFlag prefixes serialized Ed25519 public keys on the wire, per
// the ledger's key scheme encoding.
const ed25519SchemeFlag byte = 0x00

// Keypair is the ephemeral Ed25519 signing pair generated fresh for each
// login attempt. It binds the short-lived proof; it is never persisted
// long-term in cleartext.
type Keypair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewKeypair generates a fresh ephemeral key pair.
func NewKeypair() (*Keypair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "[NewKeypair] generate key")
	}
	return &Keypair{public: public, private: private}, nil
}

// KeypairFromSeed rebuilds a key pair from its 32-byte seed, used to restore
// an attempt's key from transient storage.
func KeypairFromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("[KeypairFromSeed] seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	private := ed25519.NewKeyFromSeed(seed)
	return &Keypair{
		public:  private.Public().(ed25519.PublicKey),
		private: private,
	}, nil
}

// Seed returns the private seed for transient caching.
func (k *Keypair) Seed() []byte {
	return k.private.Seed()
}

// PublicKey returns the raw public key bytes.
func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.public
}

// ExtendedPublicKey returns the scheme-flagged, base64-encoded public key the
// prover and nonce derivation consume.
func (k *Keypair) ExtendedPublicKey() string {
	extended := make([]byte, 0, len(k.public)+1)
	extended = append(extended, ed25519SchemeFlag)
	extended = append(extended, k.public...)
	return base64.StdEncoding.EncodeToString(extended)
}

// Sign signs message with the ephemeral private key.
func (k *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(k.private, message)
}
