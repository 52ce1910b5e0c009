package propellertest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/windlass-engine/propeller"
	"github.com/windlass-engine/propeller/internal/ptest"
	"github.com/windlass-engine/propeller/pschedule"
)

// Fixture wires a full test network:
// one peer set, one schedule snapshot per peer,
// deterministic signing keys, and an in-memory frame fabric.
//
// Create an instance with [NewFixture],
// then start protocols with [*Fixture.NewProtocol].
type Fixture struct {
	Topic uint64

	Peers []pschedule.PeerWeight

	// One schedule per peer, aligned with Peers.
	Schedules []*pschedule.Schedule

	// One signer per peer, aligned with Peers.
	Signers []Ed25519Signer

	// Public keys for every peer.
	Keys KeyRing

	Network *Network
}

// FixtureConfig is the configuration for [NewFixture].
type FixtureConfig struct {
	// Number of peers in the channel.
	Nodes int

	Topic uint64
}

// NewFixture returns an initialized Fixture with cfg.Nodes peers.
func NewFixture(t *testing.T, cfg FixtureConfig) *Fixture {
	t.Helper()

	if cfg.Nodes <= 0 {
		panic(fmt.Errorf("BUG: Nodes must be positive (got %d)", cfg.Nodes))
	}

	f := &Fixture{
		Topic: cfg.Topic,

		Peers:     make([]pschedule.PeerWeight, cfg.Nodes),
		Schedules: make([]*pschedule.Schedule, cfg.Nodes),
		Signers:   make([]Ed25519Signer, cfg.Nodes),

		Keys: make(KeyRing, cfg.Nodes),

		Network: NewNetwork(),
	}

	for i := range cfg.Nodes {
		id := pschedule.PeerID(fmt.Sprintf("peer-%d", i))

		f.Peers[i] = pschedule.PeerWeight{ID: id, Weight: 1}
		f.Signers[i] = NewEd25519Signer(t.Name() + "/" + string(id))
		f.Keys[id] = f.Signers[i].Public()
	}

	for i := range cfg.Nodes {
		sched, err := pschedule.New(f.Peers[i].ID, f.Peers)
		if err != nil {
			panic(fmt.Errorf("BUG: fixture schedule construction failed: %w", err))
		}
		f.Schedules[i] = sched
	}

	return f
}

// ProtocolOpts adjusts a single [*Fixture.NewProtocol] call.
type ProtocolOpts struct {
	ValidationMode propeller.ValidationMode

	MessageTimeout time.Duration

	EmitShardReceivedEvents bool
}

// NewProtocol joins peer i to the fixture's network
// and starts a protocol instance for it.
func (f *Fixture) NewProtocol(
	ctx context.Context, t *testing.T, i int, opts ProtocolOpts,
) *propeller.Protocol {
	t.Helper()

	transport, inbound := f.Network.Join(f.Peers[i].ID)

	p := propeller.NewProtocol(
		ctx,
		ptest.NewLogger(t).With("peer", i),
		propeller.ProtocolConfig{
			Channels: map[uint64]*pschedule.Schedule{
				f.Topic: f.Schedules[i],
			},

			Transport: transport,
			Inbound:   inbound,

			Signer:            f.Signers[i],
			SignatureVerifier: f.Keys,
			ValidationMode:    opts.ValidationMode,

			MessageTimeout: opts.MessageTimeout,

			EmitShardReceivedEvents: opts.EmitShardReceivedEvents,
		},
	)
	t.Cleanup(p.Wait)

	return p
}
