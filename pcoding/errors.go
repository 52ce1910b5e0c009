package pcoding

import (
	"errors"
	"fmt"
)

// ErrInvalidPadding is returned by [Unpad]
// when the trailing length header is inconsistent
// with the padded message,
// indicating a corrupted reconstruction.
var ErrInvalidPadding = errors.New("invalid padding")

// NotEnoughShardsError is returned by [Reconstruct]
// when fewer than the required number
// of distinct shards were supplied.
type NotEnoughShardsError struct {
	Have, Need int
}

func (e NotEnoughShardsError) Error() string {
	return fmt.Sprintf(
		"not enough shards to reconstruct: have %d, need %d",
		e.Have, e.Need,
	)
}

// UnequalShardLengthsError is returned when a shard set
// contains entries of differing lengths.
type UnequalShardLengthsError struct {
	Index, Len, WantLen int
}

func (e UnequalShardLengthsError) Error() string {
	return fmt.Sprintf(
		"shard %d has length %d, want %d",
		e.Index, e.Len, e.WantLen,
	)
}

// ShardIndexRangeError is returned when a supplied shard index
// falls outside the valid range for the shard set.
type ShardIndexRangeError struct {
	Index, Limit int
}

func (e ShardIndexRangeError) Error() string {
	return fmt.Sprintf(
		"shard index %d out of range [0, %d)", e.Index, e.Limit,
	)
}
