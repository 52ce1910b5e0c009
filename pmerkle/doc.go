// Package pmerkle contains the Merkle commitment
// used to identify and verify broadcast shards.
//
// The tree's root is the identity of a broadcast message,
// and every shard carries an inclusion proof against that root,
// so that a shard from a misbehaving peer
// is detected before it is trusted or relayed.
package pmerkle
