package pcoding_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windlass-engine/propeller/pcoding"
)

func TestSplitData_combineRoundTrip(t *testing.T) {
	t.Parallel()

	padded := pcoding.Pad([]byte("some moderately sized message"), 3)

	shards, err := pcoding.SplitData(padded, 3)
	require.NoError(t, err)
	require.Len(t, shards, 3)

	for _, s := range shards {
		require.Len(t, s, len(padded)/3)
	}

	require.Equal(t, padded, pcoding.Combine(shards))
}

func TestSplitData_indivisible(t *testing.T) {
	t.Parallel()

	_, err := pcoding.SplitData(make([]byte, 10), 3)
	require.Error(t, err)
}

func TestReconstruct_fromAnySufficientSubset(t *testing.T) {
	t.Parallel()

	const k, m = 3, 5

	padded := pcoding.Pad([]byte("the full broadcast payload to recover"), k)

	data, err := pcoding.SplitData(padded, k)
	require.NoError(t, err)

	parity, err := pcoding.GenerateParity(data, m)
	require.NoError(t, err)
	require.Len(t, parity, m)

	all := append(append([][]byte{}, data...), parity...)

	// Every contiguous window of exactly k shards is a sufficient subset.
	for start := 0; start+k <= k+m; start++ {
		received := make([]pcoding.IndexedShard, 0, k)
		for i := start; i < start+k; i++ {
			received = append(received, pcoding.IndexedShard{
				Index: i, Shard: all[i],
			})
		}

		got, err := pcoding.Reconstruct(received, k, m)
		require.NoError(t, err)
		require.Equal(t, data, got)
	}
}

func TestReconstruct_notEnoughShards(t *testing.T) {
	t.Parallel()

	const k, m = 3, 2

	padded := pcoding.Pad([]byte("payload"), k)
	data, err := pcoding.SplitData(padded, k)
	require.NoError(t, err)

	received := []pcoding.IndexedShard{
		{Index: 0, Shard: data[0]},
		{Index: 1, Shard: data[1]},
		// Duplicates of an index do not count twice.
		{Index: 1, Shard: data[1]},
	}

	_, err = pcoding.Reconstruct(received, k, m)
	require.ErrorAs(t, err, &pcoding.NotEnoughShardsError{})
}

func TestReconstruct_unequalLengths(t *testing.T) {
	t.Parallel()

	received := []pcoding.IndexedShard{
		{Index: 0, Shard: make([]byte, 8)},
		{Index: 1, Shard: make([]byte, 6)},
	}

	_, err := pcoding.Reconstruct(received, 2, 1)
	require.ErrorAs(t, err, &pcoding.UnequalShardLengthsError{})
}

func TestReconstruct_indexOutOfRange(t *testing.T) {
	t.Parallel()

	received := []pcoding.IndexedShard{
		{Index: 5, Shard: make([]byte, 8)},
	}

	_, err := pcoding.Reconstruct(received, 2, 1)
	require.ErrorAs(t, err, &pcoding.ShardIndexRangeError{})
}

func TestReconstruct_zeroParity(t *testing.T) {
	t.Parallel()

	const k = 2

	padded := pcoding.Pad([]byte("no parity at all"), k)
	data, err := pcoding.SplitData(padded, k)
	require.NoError(t, err)

	received := []pcoding.IndexedShard{
		{Index: 1, Shard: data[1]},
		{Index: 0, Shard: data[0]},
	}

	got, err := pcoding.Reconstruct(received, k, 0)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestGenerateParity_zeroParityShards(t *testing.T) {
	t.Parallel()

	parity, err := pcoding.GenerateParity([][]byte{{1, 2}, {3, 4}}, 0)
	require.NoError(t, err)
	require.Empty(t, parity)
}
