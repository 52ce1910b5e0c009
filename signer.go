package propeller

import "github.com/windlass-engine/propeller/pschedule"

// Signer produces the publisher's signature over a message root.
//
// Implementations are expected to domain-separate their input,
// so a root signature cannot be confused
// with any other signature the key produces.
type Signer interface {
	Sign(root []byte) ([]byte, error)
}

// SignatureVerifier checks a publisher's signature over a message root.
//
// A nil error means the signature is valid for that publisher.
type SignatureVerifier interface {
	Verify(publisher pschedule.PeerID, root, sig []byte) error
}

// ValidationMode controls how strictly
// inbound units are checked for publisher authenticity.
type ValidationMode uint8

const (
	// ValidationStrict requires every message
	// to carry a valid publisher signature over its root.
	ValidationStrict ValidationMode = iota

	// ValidationNone ignores the signature and author fields entirely.
	// Invalidly-signed messages are accepted as valid;
	// this mode is only appropriate when some outer layer
	// already guarantees authenticity.
	ValidationNone
)
