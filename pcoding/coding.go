package pcoding

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// IndexedShard is one received shard paired with its index
// within the combined data-then-parity shard ordering.
type IndexedShard struct {
	Index int
	Shard []byte
}

// SplitData divides the padded message into k equal-length
// contiguous chunks, in order.
// These become data shard indices 0 through k-1.
//
// The padded length must be an exact multiple of k,
// which [Pad] guarantees for any positive shard count.
func SplitData(padded []byte, k int) ([][]byte, error) {
	if k <= 0 {
		panic(fmt.Errorf("BUG: k must be positive (got %d)", k))
	}

	if len(padded) == 0 || len(padded)%k != 0 {
		return nil, fmt.Errorf(
			"cannot split %d bytes into %d equal shards", len(padded), k,
		)
	}

	sz := len(padded) / k
	shards := make([][]byte, k)
	for i := range shards {
		shards[i] = padded[i*sz : (i+1)*sz : (i+1)*sz]
	}

	return shards, nil
}

// Combine concatenates the k data shards in index order.
// It is the exact inverse of [SplitData].
func Combine(dataShards [][]byte) []byte {
	var n int
	for _, s := range dataShards {
		n += len(s)
	}

	out := make([]byte, 0, n)
	for _, s := range dataShards {
		out = append(out, s...)
	}

	return out
}

// GenerateParity produces m parity shards
// over the given data shards,
// using a systematic Reed-Solomon code:
// any len(dataShards) of the combined data and parity shards
// suffice to reconstruct the data shards exactly.
//
// All data shards must have the same, even length.
func GenerateParity(dataShards [][]byte, m int) ([][]byte, error) {
	if m < 0 {
		panic(fmt.Errorf("BUG: m must be non-negative (got %d)", m))
	}
	if m == 0 {
		return nil, nil
	}

	k := len(dataShards)
	if k == 0 {
		return nil, fmt.Errorf("cannot generate parity without data shards")
	}

	sz := len(dataShards[0])
	for i, s := range dataShards[1:] {
		if len(s) != sz {
			return nil, UnequalShardLengthsError{
				Index: i + 1, Len: len(s), WantLen: sz,
			}
		}
	}

	enc, err := reedsolomon.New(
		k, m,
		reedsolomon.WithAutoGoroutines(sz),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to build Reed-Solomon encoder: %w", err,
		)
	}

	shards := make([][]byte, k+m)
	copy(shards, dataShards)
	for i := k; i < k+m; i++ {
		shards[i] = make([]byte, sz)
	}

	if err := enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("failed to erasure-code data: %w", err)
	}

	return shards[k:], nil
}

// Reconstruct recovers the k data shards
// from any k or more distinct received shards,
// whose indices must fall in [0, k+m).
//
// It returns a [NotEnoughShardsError] when fewer than k
// distinct shards are present,
// an [UnequalShardLengthsError] when the received shard lengths differ,
// and a wrapped decode error when the underlying code cannot recover.
func Reconstruct(received []IndexedShard, k, m int) ([][]byte, error) {
	if k <= 0 {
		panic(fmt.Errorf("BUG: k must be positive (got %d)", k))
	}
	if m < 0 {
		panic(fmt.Errorf("BUG: m must be non-negative (got %d)", m))
	}

	shards := make([][]byte, k+m)

	var have, sz int
	for _, rs := range received {
		if rs.Index < 0 || rs.Index >= k+m {
			return nil, ShardIndexRangeError{Index: rs.Index, Limit: k + m}
		}
		if shards[rs.Index] != nil {
			// Duplicate index; the first copy wins.
			continue
		}

		if have == 0 {
			sz = len(rs.Shard)
		} else if len(rs.Shard) != sz {
			return nil, UnequalShardLengthsError{
				Index: rs.Index, Len: len(rs.Shard), WantLen: sz,
			}
		}

		shards[rs.Index] = rs.Shard
		have++
	}

	if have < k {
		return nil, NotEnoughShardsError{Have: have, Need: k}
	}

	if m == 0 {
		// Nothing to decode; all data shards must already be present.
		return shards[:k], nil
	}

	enc, err := reedsolomon.New(
		k, m,
		reedsolomon.WithAutoGoroutines(sz),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to build Reed-Solomon encoder: %w", err,
		)
	}

	if err := enc.ReconstructData(shards); err != nil {
		return nil, fmt.Errorf("failed to reconstruct data shards: %w", err)
	}

	return shards[:k], nil
}
