package pwire

// RootSize is the byte length of a message root
// and of every Merkle proof entry.
const RootSize = 32

// Unit is one erasure-coded shard of a broadcast message,
// together with everything a receiver needs
// to verify the shard before trusting or relaying it.
//
// A Unit is immutable once constructed;
// whichever component currently processes it owns it exclusively.
type Unit struct {
	// The logical broadcast stream this unit belongs to.
	Topic uint64

	// Identity of the peer that published the message.
	Publisher []byte

	// Merkle root over the message's full shard set.
	// Acts as the message identity within a (topic, publisher) pair.
	Root [RootSize]byte

	// The publisher's signature over the root.
	Signature []byte

	// Which shard of the message this unit carries.
	Index uint16

	// The shard content.
	Shard []byte

	// Sibling hashes proving the shard's inclusion under Root.
	Proof [][]byte
}
