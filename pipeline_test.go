package propeller_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windlass-engine/propeller"
	"github.com/windlass-engine/propeller/internal/ptest"
	"github.com/windlass-engine/propeller/pmerkle"
	"github.com/windlass-engine/propeller/pmerkle/pmsha256"
	"github.com/windlass-engine/propeller/propellertest"
	"github.com/windlass-engine/propeller/pwire"
)

func preparedUnits(t *testing.T, msg []byte, k, m int) []*pwire.Unit {
	t.Helper()

	units, err := propeller.PrepareUnits(msg, propeller.PrepareConfig{
		Topic:     1,
		Publisher: "publisher",
		Signer:    propellertest.NewEd25519Signer(t.Name()),

		NumData:   k,
		NumParity: m,
	})
	require.NoError(t, err)
	require.Len(t, units, k+m)

	return units
}

func TestPrepareUnits_fieldsAndProofs(t *testing.T) {
	t.Parallel()

	const k, m = 3, 5

	msg := ptest.RandomDataForTest(t, 1000)
	units := preparedUnits(t, msg, k, m)

	mcfg := pmerkle.Config{
		Hasher:   pmsha256.Hasher{},
		HashSize: pwire.RootSize,
	}

	root := units[0].Root
	for i, u := range units {
		require.EqualValues(t, i, u.Index)
		require.Equal(t, root, u.Root)
		require.Equal(t, units[0].Signature, u.Signature)
		require.Equal(t, []byte("publisher"), u.Publisher)

		// Every unit's proof must verify against the shared root.
		leafHash := mcfg.Hasher.Leaf(u.Shard, nil)
		require.True(t, pmerkle.Verify(
			mcfg, root[:], leafHash, int(u.Index), u.Proof,
		))
	}
}

func TestPrepareUnits_invalidShardCounts(t *testing.T) {
	t.Parallel()

	_, err := propeller.PrepareUnits([]byte("msg"), propeller.PrepareConfig{
		Topic:     1,
		Publisher: "publisher",
		Signer:    propellertest.NewEd25519Signer(t.Name()),

		NumData: 0, NumParity: 0,
	})
	require.ErrorIs(t, err, propeller.ErrInvalidDataSize)
}

func TestRebuildMessage_roundTripFromAnySufficientSubset(t *testing.T) {
	t.Parallel()

	const k, m = 3, 5

	msg := ptest.RandomDataForTest(t, 977) // Deliberately not shard-aligned.
	units := preparedUnits(t, msg, k, m)
	root := units[0].Root

	subsets := [][]int{
		{2, 4, 7},       // Scattered, parity-heavy.
		{1, 2, 3, 5, 6}, // More than the minimum.
		{5, 6, 7},       // Parity only.
	}
	for start := 0; start+k <= k+m; start++ {
		window := make([]int, 0, k)
		for i := start; i < start+k; i++ {
			window = append(window, i)
		}
		subsets = append(subsets, window)
	}

	for _, subset := range subsets {
		sub := make([]*pwire.Unit, len(subset))
		for i, idx := range subset {
			sub[i] = units[idx]
		}

		res, err := propeller.RebuildMessage(
			sub,
			propeller.RebuildConfig{
				NumData: k, NumParity: m,
				Root:            root,
				LocalShardIndex: 2,
			},
		)
		require.NoError(t, err)
		require.Equal(t, msg, res.Message)

		// The regenerated local shard matches the published one,
		// and its fresh proof verifies.
		require.Equal(t, units[2].Shard, res.LocalShard)

		mcfg := pmerkle.Config{
			Hasher:   pmsha256.Hasher{},
			HashSize: pwire.RootSize,
		}
		require.True(t, pmerkle.Verify(
			mcfg, root[:], mcfg.Hasher.Leaf(res.LocalShard, nil), 2, res.LocalProof,
		))
	}
}

func TestRebuildMessage_noLocalAssignment(t *testing.T) {
	t.Parallel()

	const k, m = 2, 3

	msg := ptest.RandomDataForTest(t, 256)
	units := preparedUnits(t, msg, k, m)

	res, err := propeller.RebuildMessage(units[:k], propeller.RebuildConfig{
		NumData: k, NumParity: m,
		Root:            units[0].Root,
		LocalShardIndex: -1,
	})
	require.NoError(t, err)
	require.Equal(t, msg, res.Message)
	require.Nil(t, res.LocalShard)
	require.Nil(t, res.LocalProof)
}

func TestRebuildMessage_tooFewUnits(t *testing.T) {
	t.Parallel()

	const k, m = 3, 5

	units := preparedUnits(t, ptest.RandomDataForTest(t, 512), k, m)

	_, err := propeller.RebuildMessage(units[:k-1], propeller.RebuildConfig{
		NumData: k, NumParity: m,
		Root:            units[0].Root,
		LocalShardIndex: -1,
	})
	require.Error(t, err)
}

func TestRebuildMessage_tamperedShardMismatchesRoot(t *testing.T) {
	t.Parallel()

	const k, m = 3, 5

	units := preparedUnits(t, ptest.RandomDataForTest(t, 512), k, m)

	tampered := *units[0]
	tampered.Shard = append([]byte(nil), tampered.Shard...)
	tampered.Shard[0] ^= 0x01

	_, err := propeller.RebuildMessage(
		[]*pwire.Unit{&tampered, units[1], units[2]},
		propeller.RebuildConfig{
			NumData: k, NumParity: m,
			Root:            units[0].Root,
			LocalShardIndex: -1,
		},
	)
	require.ErrorIs(t, err, propeller.ErrMismatchedRoot)
}

func TestRebuildMessage_wrongExpectedRoot(t *testing.T) {
	t.Parallel()

	const k, m = 2, 2

	units := preparedUnits(t, ptest.RandomDataForTest(t, 128), k, m)

	wrongRoot := units[0].Root
	wrongRoot[0] ^= 0xff

	_, err := propeller.RebuildMessage(units[:k], propeller.RebuildConfig{
		NumData: k, NumParity: m,
		Root:            wrongRoot,
		LocalShardIndex: -1,
	})
	require.ErrorIs(t, err, propeller.ErrMismatchedRoot)
}

func TestRebuildMessage_unequalShardLengths(t *testing.T) {
	t.Parallel()

	const k, m = 2, 2

	units := preparedUnits(t, ptest.RandomDataForTest(t, 128), k, m)

	short := *units[1]
	short.Shard = short.Shard[:len(short.Shard)-2]

	_, err := propeller.RebuildMessage(
		[]*pwire.Unit{units[0], &short},
		propeller.RebuildConfig{
			NumData: k, NumParity: m,
			Root:            units[0].Root,
			LocalShardIndex: -1,
		},
	)
	require.ErrorIs(t, err, propeller.ErrUnequalShardLengths)
}
