package pmsha256

import (
	"crypto/sha256"
)

const HashSize = sha256.Size

// Hasher is a [pmerkle.Hasher] backed by SHA256 hashes.
//
// The leaf and node inputs are wrapped in distinct domain tags,
// so that a leaf hash can never collide with an interior node hash.
type Hasher struct{}

func (Hasher) Leaf(in, dst []byte) []byte {
	h := sha256.New()
	_, _ = h.Write([]byte("<leaf>"))
	_, _ = h.Write(in)
	_, _ = h.Write([]byte("</leaf>"))
	return h.Sum(dst)
}

func (Hasher) Node(left, right, dst []byte) []byte {
	h := sha256.New()
	_, _ = h.Write([]byte("<node><left>"))
	_, _ = h.Write(left)
	_, _ = h.Write([]byte("</left><right>"))
	_, _ = h.Write(right)
	_, _ = h.Write([]byte("</right></node>"))
	return h.Sum(dst)
}
