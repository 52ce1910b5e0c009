package pschedule

import (
	"errors"
	"fmt"
)

// ErrEmptyChannel is returned by [New]
// when the channel's peer list is empty.
var ErrEmptyChannel = errors.New("channel peer list is empty")

// ErrLocalPeerNotInChannel is returned by [New]
// when the local peer is absent from the channel's peer list.
var ErrLocalPeerNotInChannel = errors.New("local peer is not in the channel peer list")

// ShardIndexOutOfBoundsError is returned by [*Schedule.PeerForShard]
// when the shard index falls past the publisher-excluded peer list.
type ShardIndexOutOfBoundsError struct {
	Index, Limit int
}

func (e ShardIndexOutOfBoundsError) Error() string {
	return fmt.Sprintf(
		"shard index %d out of bounds: channel only has %d shard slots",
		e.Index, e.Limit,
	)
}

// NotInChannelError is returned by [*Schedule.ValidateOrigin]
// when the sender or publisher of a shard
// is not a member of the channel.
type NotInChannelError struct {
	// Role is "sender" or "publisher".
	Role string

	Peer PeerID
}

func (e NotInChannelError) Error() string {
	return fmt.Sprintf("%s %x is not in the channel", e.Role, string(e.Peer))
}

// RelayViolationError is returned by [*Schedule.ValidateOrigin]
// when a shard arrived over neither a legitimate first hop
// (publisher to assignee) nor a legitimate second hop
// (assignee relaying exactly its own shard).
type RelayViolationError struct {
	Sender, Publisher PeerID
	ShardIndex        int
}

func (e RelayViolationError) Error() string {
	return fmt.Sprintf(
		"sender %x is not a legitimate relay of shard %d from publisher %x",
		string(e.Sender), e.ShardIndex, string(e.Publisher),
	)
}
