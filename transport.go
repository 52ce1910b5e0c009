package propeller

import (
	"context"

	"github.com/windlass-engine/propeller/pschedule"
	"github.com/windlass-engine/propeller/pwire"
)

// Transport is the downstream interface to the connection layer.
//
// The protocol core only moves frames;
// address resolution, connection lifecycle,
// and peer authentication all live behind this interface.
type Transport interface {
	// Send delivers one encoded frame to the given peer.
	Send(ctx context.Context, peer pschedule.PeerID, frame []byte) error
}

// InboundUnit pairs a decoded unit with the peer that sent it.
//
// The sender identity must already be established
// by the transport layer's connection-level authentication;
// the protocol core treats it as trustworthy.
type InboundUnit struct {
	Sender pschedule.PeerID
	Unit   *pwire.Unit
}
