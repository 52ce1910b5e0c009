package ptest

import (
	"crypto/sha256"
	"math/rand/v2"
	"testing"
)

// RandomDataForTest returns sz bytes of deterministic pseudorandom data.
// The generator is seeded from the test's name,
// so a test sees stable content across runs
// while distinct tests see distinct content.
func RandomDataForTest(t *testing.T, sz int) []byte {
	// Hashing the name gives a fixed-width seed
	// no matter how long the test name is.
	src := rand.NewChaCha8(sha256.Sum256([]byte(t.Name())))

	out := make([]byte, sz)
	if _, err := src.Read(out); err != nil {
		panic(err)
	}

	return out
}
