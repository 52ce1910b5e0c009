// Package propeller implements an erasure-coded broadcast protocol
// for disseminating large messages to a fixed peer set.
//
// A publisher splits a message into data and parity shards,
// commits to the full shard set with a Merkle tree,
// and sends exactly one provable shard to each other peer in the channel.
// Each receiving peer relays only its own assigned shard
// to the remaining peers, so every shard travels at most two hops.
// A peer reconstructs the message once it holds enough valid shards,
// verifying every shard against the Merkle commitment
// before trusting or relaying anything.
package propeller
