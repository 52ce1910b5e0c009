package pschedule

// PeerID is the opaque identity of one peer in a channel,
// as established by the transport layer's connection authentication.
//
// The string type makes it directly usable as a map key;
// the content is raw bytes, not printable text.
type PeerID string

// PeerWeight is one entry in a channel's ordered peer list.
type PeerWeight struct {
	ID PeerID

	// Voting or stake weight of the peer.
	// The broadcast schedule only depends on list order,
	// but the weight travels with the peer set
	// so callers don't need a side table.
	Weight uint64
}

// Schedule is the deterministic shard schedule
// for one channel's fixed, ordered peer set.
//
// A Schedule is immutable after construction
// and safe for concurrent use without locking.
// Build a new Schedule when the channel membership changes.
type Schedule struct {
	local PeerID

	peers []PeerWeight

	// Position of each peer within peers.
	positions map[PeerID]int

	numData, numParity int
}

// New returns the schedule for the given ordered peer set.
//
// It returns [ErrEmptyChannel] when peers is empty,
// and [ErrLocalPeerNotInChannel] when local is absent from peers.
//
// With N peers in the channel
// (the publisher of any broadcast is always a member),
// each message is coded into N-1 shards:
// floor((N-1)/3) data shards and the remainder parity shards.
func New(local PeerID, peers []PeerWeight) (*Schedule, error) {
	if len(peers) == 0 {
		return nil, ErrEmptyChannel
	}

	positions := make(map[PeerID]int, len(peers))
	for i, pw := range peers {
		positions[pw.ID] = i
	}

	if _, ok := positions[local]; !ok {
		return nil, ErrLocalPeerNotInChannel
	}

	numData := (len(peers) - 1) / 3

	return &Schedule{
		local: local,

		peers:     peers,
		positions: positions,

		numData:   numData,
		numParity: (len(peers) - 1) - numData,
	}, nil
}

// Local returns the local peer's ID.
func (s *Schedule) Local() PeerID {
	return s.local
}

// Peers returns the channel's ordered peer list.
// The caller must not modify the returned slice.
func (s *Schedule) Peers() []PeerWeight {
	return s.peers
}

// Contains reports whether the given peer is a member of the channel.
func (s *Schedule) Contains(peer PeerID) bool {
	_, ok := s.positions[peer]
	return ok
}

// NumDataShards returns k, the reconstruction threshold.
func (s *Schedule) NumDataShards() int {
	return s.numData
}

// NumParityShards returns m, the parity shard count.
func (s *Schedule) NumParityShards() int {
	return s.numParity
}

// PeerForShard returns the peer assigned to the given shard index
// for a broadcast by the given publisher:
// position i in the publisher-excluded peer list
// (preserving original relative order) owns shard i.
func (s *Schedule) PeerForShard(publisher PeerID, shardIndex int) (PeerID, error) {
	limit := len(s.peers)
	if s.Contains(publisher) {
		limit--
	}

	if shardIndex < 0 || shardIndex >= limit {
		return "", ShardIndexOutOfBoundsError{Index: shardIndex, Limit: limit}
	}

	for _, pw := range s.peers {
		if pw.ID == publisher {
			continue
		}
		if shardIndex == 0 {
			return pw.ID, nil
		}
		shardIndex--
	}

	// Unreachable: the bounds check above covers every exit.
	panic("BUG: shard index not consumed by peer list")
}

// ShardForPeer is the inverse of [*Schedule.PeerForShard]:
// it returns the shard index assigned to the given peer
// for a broadcast by the given publisher.
//
// The second return is false when the peer has no assignment,
// which is the case for the publisher itself
// and for peers outside the channel.
func (s *Schedule) ShardForPeer(publisher, peer PeerID) (int, bool) {
	if peer == publisher || !s.Contains(peer) || !s.Contains(publisher) {
		return 0, false
	}

	idx := 0
	for _, pw := range s.peers {
		if pw.ID == publisher {
			continue
		}
		if pw.ID == peer {
			return idx, true
		}
		idx++
	}

	return 0, false
}

// ShouldBuild reports whether the given count of valid shards
// reaches the erasure reconstruction threshold.
func (s *Schedule) ShouldBuild(receivedValidCount int) bool {
	return receivedValidCount >= s.numData
}

// ShouldReceive reports whether the given count of valid shards
// is past the point where the local peer
// can stop actively accumulating the message.
// The doubled threshold is a safety margin
// over the bare reconstruction minimum.
func (s *Schedule) ShouldReceive(receivedValidCount int) bool {
	return receivedValidCount >= 2*s.numData
}

// ValidateOrigin checks that a shard received from sender,
// for a broadcast by publisher, followed a legitimate relay path.
//
// Exactly two paths are legitimate:
//
//   - First hop: the publisher itself sent the shard,
//     and the shard index is the local peer's own assignment.
//   - Second hop: a non-local assignee is relaying
//     exactly the shard it was itself assigned,
//     for a broadcast the local peer did not publish.
//
// A relay forwarding any shard index other than its own assignment
// is rejected; that is the relay-integrity check
// that keeps the fan-out at two hops.
func (s *Schedule) ValidateOrigin(sender, publisher PeerID, shardIndex int) error {
	if !s.Contains(sender) {
		return NotInChannelError{Role: "sender", Peer: sender}
	}
	if !s.Contains(publisher) {
		return NotInChannelError{Role: "publisher", Peer: publisher}
	}

	if sender == publisher {
		// First hop: only the local peer's own shard
		// arrives directly from the publisher.
		if own, ok := s.ShardForPeer(publisher, s.local); ok && own == shardIndex {
			return nil
		}

		return RelayViolationError{
			Sender: sender, Publisher: publisher, ShardIndex: shardIndex,
		}
	}

	// Second hop: an assignee relays its own shard to everyone else.
	if sender != s.local && publisher != s.local {
		if own, ok := s.ShardForPeer(publisher, sender); ok && own == shardIndex {
			return nil
		}
	}

	return RelayViolationError{
		Sender: sender, Publisher: publisher, ShardIndex: shardIndex,
	}
}
