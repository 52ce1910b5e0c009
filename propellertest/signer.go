package propellertest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/windlass-engine/propeller/pschedule"
)

// rootSignDomain separates message-root signatures
// from anything else a test key might sign.
const rootSignDomain = "propeller:message-root:"

// Ed25519Signer implements [propeller.Signer] with an ed25519 key.
// This is a simplified implementation intended only for use in tests.
// Do not use this in production code.
type Ed25519Signer struct {
	priv ed25519.PrivateKey
}

// NewEd25519Signer returns a signer with a deterministic key
// derived from seed.
func NewEd25519Signer(seed string) Ed25519Signer {
	sum := sha256.Sum256([]byte(seed))
	return Ed25519Signer{priv: ed25519.NewKeyFromSeed(sum[:])}
}

func (s Ed25519Signer) Sign(root []byte) ([]byte, error) {
	msg := append([]byte(rootSignDomain), root...)
	return ed25519.Sign(s.priv, msg), nil
}

// Public returns the signer's public key.
func (s Ed25519Signer) Public() ed25519.PublicKey {
	return s.priv.Public().(ed25519.PublicKey)
}

// KeyRing maps peer identities to their ed25519 public keys,
// implementing [propeller.SignatureVerifier].
type KeyRing map[pschedule.PeerID]ed25519.PublicKey

func (kr KeyRing) Verify(publisher pschedule.PeerID, root, sig []byte) error {
	pub, ok := kr[publisher]
	if !ok {
		return fmt.Errorf("no key known for publisher %x", string(publisher))
	}

	msg := append([]byte(rootSignDomain), root...)
	if !ed25519.Verify(pub, msg, sig) {
		return errors.New("invalid ed25519 signature over message root")
	}

	return nil
}
