package pschedule_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/windlass-engine/propeller/pschedule"
)

// testPeers returns n peers named p0 through p(n-1), all with weight 1.
func testPeers(n int) []pschedule.PeerWeight {
	peers := make([]pschedule.PeerWeight, n)
	for i := range peers {
		peers[i] = pschedule.PeerWeight{
			ID:     pschedule.PeerID(fmt.Sprintf("p%d", i)),
			Weight: 1,
		}
	}
	return peers
}

func TestNew_emptyChannel(t *testing.T) {
	t.Parallel()

	_, err := pschedule.New("p0", nil)
	require.ErrorIs(t, err, pschedule.ErrEmptyChannel)
}

func TestNew_localPeerNotInChannel(t *testing.T) {
	t.Parallel()

	_, err := pschedule.New("outsider", testPeers(4))
	require.ErrorIs(t, err, pschedule.ErrLocalPeerNotInChannel)
}

func TestShardCounts(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		n, k, m int
	}{
		{n: 1, k: 0, m: 0},
		{n: 2, k: 0, m: 1},
		{n: 3, k: 0, m: 2},
		{n: 4, k: 1, m: 2},
		{n: 7, k: 2, m: 4},
		{n: 10, k: 3, m: 6},
		{n: 13, k: 4, m: 8},
	} {
		t.Run(fmt.Sprintf("n=%d", tc.n), func(t *testing.T) {
			t.Parallel()

			s, err := pschedule.New("p0", testPeers(tc.n))
			require.NoError(t, err)

			require.Equal(t, tc.k, s.NumDataShards())
			require.Equal(t, tc.m, s.NumParityShards())
		})
	}
}

func TestThresholds(t *testing.T) {
	t.Parallel()

	// N=4 gives k=1.
	s, err := pschedule.New("p0", testPeers(4))
	require.NoError(t, err)

	require.False(t, s.ShouldBuild(0))
	require.True(t, s.ShouldBuild(1))

	require.False(t, s.ShouldReceive(1))
	require.True(t, s.ShouldReceive(2))
}

func TestPeerForShard_bijection(t *testing.T) {
	t.Parallel()

	const n = 5
	peers := testPeers(n)

	s, err := pschedule.New("p2", peers)
	require.NoError(t, err)

	for _, pub := range peers {
		seen := make(map[pschedule.PeerID]bool, n-1)

		for idx := range n - 1 {
			assignee, err := s.PeerForShard(pub.ID, idx)
			require.NoError(t, err)

			require.NotEqual(t, pub.ID, assignee)
			require.False(t, seen[assignee])
			seen[assignee] = true

			// The inverse mapping agrees.
			gotIdx, ok := s.ShardForPeer(pub.ID, assignee)
			require.True(t, ok)
			require.Equal(t, idx, gotIdx)
		}

		// Assignment preserves original relative order.
		wantOrder := make([]pschedule.PeerID, 0, n-1)
		for _, pw := range peers {
			if pw.ID != pub.ID {
				wantOrder = append(wantOrder, pw.ID)
			}
		}
		for idx, want := range wantOrder {
			got, err := s.PeerForShard(pub.ID, idx)
			require.NoError(t, err)
			require.Equal(t, want, got)
		}

		// One past the end fails with the documented error.
		_, err := s.PeerForShard(pub.ID, n-1)
		require.ErrorAs(t, err, &pschedule.ShardIndexOutOfBoundsError{})
	}
}

func TestShardForPeer_publisherHasNoAssignment(t *testing.T) {
	t.Parallel()

	s, err := pschedule.New("p0", testPeers(4))
	require.NoError(t, err)

	_, ok := s.ShardForPeer("p1", "p1")
	require.False(t, ok)

	_, ok = s.ShardForPeer("p1", "outsider")
	require.False(t, ok)
}

func TestValidateOrigin_membership(t *testing.T) {
	t.Parallel()

	s, err := pschedule.New("p0", testPeers(4))
	require.NoError(t, err)

	err = s.ValidateOrigin("outsider", "p1", 0)
	require.ErrorAs(t, err, &pschedule.NotInChannelError{})

	err = s.ValidateOrigin("p1", "outsider", 0)
	require.ErrorAs(t, err, &pschedule.NotInChannelError{})
}

// TestValidateOrigin_exhaustive checks every
// (sender, publisher, shard index) combination for a small channel
// against a direct statement of the two legitimate hops.
func TestValidateOrigin_exhaustive(t *testing.T) {
	t.Parallel()

	const n = 4
	peers := testPeers(n)
	local := peers[1].ID

	s, err := pschedule.New(local, peers)
	require.NoError(t, err)

	for _, sender := range peers {
		for _, pub := range peers {
			for idx := range n - 1 {
				hop1 := false
				if sender.ID == pub.ID {
					if own, ok := s.ShardForPeer(pub.ID, local); ok && own == idx {
						hop1 = true
					}
				}

				hop2 := false
				if sender.ID != local && pub.ID != local {
					if own, ok := s.ShardForPeer(pub.ID, sender.ID); ok && own == idx {
						hop2 = true
					}
				}

				err := s.ValidateOrigin(sender.ID, pub.ID, idx)
				if hop1 || hop2 {
					require.NoError(t, err,
						"sender=%s publisher=%s idx=%d", sender.ID, pub.ID, idx)
				} else {
					require.ErrorAs(t, err, &pschedule.RelayViolationError{},
						"sender=%s publisher=%s idx=%d", sender.ID, pub.ID, idx)
				}
			}
		}
	}
}
