package pmerkle

import (
	"bytes"
	"fmt"
)

// Tree is a binary Merkle tree over an ordered set of shards.
//
// Level 0 holds one leaf hash per shard, in shard order.
// Each following level pairs adjacent hashes;
// a level with an odd count duplicates its last element before pairing.
// The final level holds exactly one element, the root.
//
// Build the tree once with [NewTree]; it is read-only thereafter.
type Tree struct {
	levels [][][]byte

	hashSize int
}

// Config is the configuration for [NewTree] and [Verify].
type Config struct {
	// How to hash leaves and interior nodes.
	Hasher Hasher

	// The size, in bytes, of hashes produced by Hasher.
	HashSize int
}

func (c Config) validate() {
	if c.Hasher == nil {
		panic(fmt.Errorf("BUG: Hasher must not be nil"))
	}
	if c.HashSize <= 0 {
		panic(fmt.Errorf(
			"BUG: HashSize must be positive (got %d)", c.HashSize,
		))
	}
}

// NewTree builds the full tree over the given shard contents.
//
// The shards slice may be empty,
// in which case the root is the all-zero sentinel value;
// callers must never use that sentinel as a real message root.
func NewTree(shards [][]byte, cfg Config) *Tree {
	cfg.validate()

	t := &Tree{hashSize: cfg.HashSize}

	if len(shards) == 0 {
		return t
	}

	leaves := make([][]byte, len(shards))
	for i, s := range shards {
		leaves[i] = cfg.Hasher.Leaf(s, makeDst(cfg.HashSize))
	}
	t.levels = append(t.levels, leaves)

	cur := leaves
	for len(cur) > 1 {
		if len(cur)&1 == 1 {
			// Odd width: duplicate the last element before pairing.
			cur = append(cur, cur[len(cur)-1])
		}

		next := make([][]byte, len(cur)/2)
		for i := range next {
			next[i] = cfg.Hasher.Node(
				cur[2*i], cur[2*i+1], makeDst(cfg.HashSize),
			)
		}

		t.levels = append(t.levels, next)
		cur = next
	}

	return t
}

// NLeaves returns the number of leaves the tree was built over.
func (t *Tree) NLeaves() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels[0])
}

// Root returns the tree's root hash.
// For a tree built over zero shards,
// the root is all zero bytes.
//
// The caller must not modify the returned slice.
func (t *Tree) Root() []byte {
	if len(t.levels) == 0 {
		return make([]byte, t.hashSize)
	}

	top := t.levels[len(t.levels)-1]
	return top[0]
}

// LeafHash returns the hash of the leaf at the given index,
// or nil if the index is out of range.
//
// The caller must not modify the returned slice.
func (t *Tree) LeafHash(idx int) []byte {
	if len(t.levels) == 0 || idx < 0 || idx >= len(t.levels[0]) {
		return nil
	}
	return t.levels[0][idx]
}

// Prove returns the ordered list of sibling hashes
// from the leaf at the given index up to, but excluding, the root.
//
// At each level the sibling index is the leaf's path index XOR 1;
// when that falls past the end of the level
// (the node was the odd, self-duplicated one),
// the sibling is the node itself.
//
// Prove returns nil for an out-of-range index.
func (t *Tree) Prove(idx int) [][]byte {
	if len(t.levels) == 0 || idx < 0 || idx >= len(t.levels[0]) {
		return nil
	}

	proof := make([][]byte, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		sibling := idx ^ 1
		if sibling >= len(level) {
			sibling = idx
		}

		proof = append(proof, level[sibling])
		idx >>= 1
	}

	return proof
}

// Verify recomputes the path from the given leaf hash to the root,
// using the sibling hashes in proof,
// and reports whether the final value equals root.
//
// A mismatched proof is an ordinary false return, never a panic:
// it signals a corrupted or malicious shard.
func Verify(cfg Config, root, leafHash []byte, idx int, proof [][]byte) bool {
	cfg.validate()

	if idx < 0 || len(leafHash) != cfg.HashSize || len(root) != cfg.HashSize {
		return false
	}

	cur := leafHash
	for _, sibling := range proof {
		if len(sibling) != cfg.HashSize {
			return false
		}

		if idx&1 == 0 {
			cur = cfg.Hasher.Node(cur, sibling, makeDst(cfg.HashSize))
		} else {
			cur = cfg.Hasher.Node(sibling, cur, makeDst(cfg.HashSize))
		}

		idx >>= 1
	}

	return bytes.Equal(cur, root)
}

// makeDst returns an empty slice with capacity for one hash,
// suitable as the append destination for [Hasher] methods.
func makeDst(hashSize int) []byte {
	return make([]byte, 0, hashSize)
}
