package pmerkle

// Hasher is the user-defined interface for hashing
// shard leaves and interior tree nodes.
//
// To be allocation-efficient, implementations
// must append their hash output to dst
// instead of creating a new byte slice,
// and they must not retain references to dst.
//
// Hasher methods must be safe to call concurrently,
// as proof verification happens across many goroutines.
type Hasher interface {
	// Leaf hashes the raw shard content into a leaf node,
	// appending the hash to dst and returning the result,
	// in the manner of [hash.Hash.Sum].
	Leaf(in, dst []byte) []byte

	// Node hashes a left-right pair of child hashes
	// into their parent node,
	// appending the hash to dst and returning the result.
	Node(left, right, dst []byte) []byte
}
