package propellertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/windlass-engine/propeller"
	"github.com/windlass-engine/propeller/pschedule"
	"github.com/windlass-engine/propeller/pwire"
)

// Network is an in-memory frame fabric connecting test peers.
//
// Every peer that joins gets an inbound unit channel;
// a send from any peer decodes the frame
// and delivers the unit to the destination's channel,
// tagged with the authenticated sender identity,
// just as a real transport would after connection auth.
type Network struct {
	codec pwire.Codec

	mu      sync.Mutex
	inboxes map[pschedule.PeerID]chan propeller.InboundUnit
}

// NewNetwork returns an empty Network.
func NewNetwork() *Network {
	return &Network{
		codec:   pwire.Codec{},
		inboxes: make(map[pschedule.PeerID]chan propeller.InboundUnit),
	}
}

// Join registers peer on the network,
// returning the transport for its outbound sends
// and the channel its protocol should consume inbound units from.
func (n *Network) Join(peer pschedule.PeerID) (propeller.Transport, <-chan propeller.InboundUnit) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.inboxes[peer]; ok {
		panic(fmt.Errorf("BUG: peer %x joined the network twice", string(peer)))
	}

	// Buffered generously; tests should never apply
	// real backpressure through the fabric.
	inbox := make(chan propeller.InboundUnit, 64)
	n.inboxes[peer] = inbox

	return &networkTransport{net: n, local: peer}, inbox
}

// Partition removes peer from the network;
// subsequent sends to it fail.
func (n *Network) Partition(peer pschedule.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.inboxes, peer)
}

type networkTransport struct {
	net   *Network
	local pschedule.PeerID
}

func (tr *networkTransport) Send(
	ctx context.Context, peer pschedule.PeerID, frame []byte,
) error {
	tr.net.mu.Lock()
	inbox, ok := tr.net.inboxes[peer]
	tr.net.mu.Unlock()

	if !ok {
		return fmt.Errorf("peer %x is not on the network", string(peer))
	}

	// Round-trip through the codec so tests exercise
	// the same framing path as a real transport.
	d := pwire.NewDecoder(tr.net.codec)
	d.Feed(frame)

	u, err := d.Next()
	if err != nil {
		return fmt.Errorf("failed to decode frame: %w", err)
	}
	if u == nil {
		return fmt.Errorf("frame did not contain a complete unit")
	}

	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case inbox <- propeller.InboundUnit{Sender: tr.local, Unit: u}:
		return nil
	}
}
