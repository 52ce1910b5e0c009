package propeller

import (
	"github.com/windlass-engine/propeller/pschedule"
	"github.com/windlass-engine/propeller/pwire"
)

// Event is a protocol lifecycle event,
// observed through [*Protocol.Events].
//
// The concrete types are [Delivered], [Timeout], and [ShardReceived].
type Event interface {
	event()
}

// Delivered reports a fully reconstructed and verified message.
type Delivered struct {
	Topic     uint64
	Publisher pschedule.PeerID
	Message   []byte
}

func (Delivered) event() {}

// Timeout reports a message whose deadline elapsed
// before enough valid shards accumulated.
// An undelivered message is an expected outcome, not an error.
type Timeout struct {
	Topic     uint64
	Publisher pschedule.PeerID
	Root      [pwire.RootSize]byte
}

func (Timeout) event() {}

// ShardReceived reports one shard passing validation.
// It is only emitted when
// [ProtocolConfig.EmitShardReceivedEvents] is set.
type ShardReceived struct {
	Topic     uint64
	Publisher pschedule.PeerID
	Root      [pwire.RootSize]byte
	Index     uint16
}

func (ShardReceived) event() {}
