// Package pcoding contains the erasure coding and padding
// used to split a broadcast message into shards
// and to recover the message from a sufficient shard subset.
package pcoding
