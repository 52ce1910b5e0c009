// Package pschedule computes the deterministic shard schedule
// for a channel's fixed peer set:
// how many data and parity shards a broadcast is coded into,
// which peer is responsible for which shard index,
// and whether a received shard followed a legitimate relay path.
package pschedule
