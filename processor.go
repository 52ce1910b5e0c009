package propeller

import (
	"context"
	"log/slog"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/windlass-engine/propeller/internal/pverify"
	"github.com/windlass-engine/propeller/pmerkle"
	"github.com/windlass-engine/propeller/pschedule"
	"github.com/windlass-engine/propeller/pwire"
)

// messageKey identifies one in-flight message:
// there is at most one processor per key at a time.
type messageKey struct {
	Topic     uint64
	Publisher pschedule.PeerID
	Root      [pwire.RootSize]byte
}

// processorOutcome is the terminal report
// a messageProcessor sends back to the protocol main loop.
type processorOutcome struct {
	Key messageKey

	// The reconstructed message; nil when the message
	// timed out or failed reconstruction.
	Message []byte

	// When non-nil, the local peer's own assigned unit,
	// to be broadcast to the channel's other peers.
	Relay *pwire.Unit

	TimedOut bool
}

// relayRequest asks the protocol main loop to broadcast
// the local peer's own assigned unit to the other channel peers.
// It is sent as soon as that unit validates,
// without waiting for reconstruction,
// because downstream peers depend on the relay
// to reach their own reconstruction thresholds.
type relayRequest struct {
	Key  messageKey
	Unit *pwire.Unit
}

// messageProcessor is the per-message concurrent state machine.
//
// It owns a private inbound unit queue and a deadline,
// keeps at most one proof verification in flight,
// and reports lifecycle notices back to the protocol main loop.
type messageProcessor struct {
	log *slog.Logger

	key   messageKey
	sched *pschedule.Schedule

	pool *pverify.Pool

	merkleCfg pmerkle.Config

	validationMode ValidationMode
	sigVerifier    SignatureVerifier

	disablePadding    bool
	emitShardReceived bool

	timeout time.Duration

	// Inbound units routed by the protocol main loop.
	// Buffered to the shard slot count,
	// so a burst cannot block the main loop.
	units chan *pwire.Unit

	relays   chan<- relayRequest
	shardObs chan<- ShardReceived
	outcomes chan<- processorOutcome
}

// validationResult is the report from an offloaded proof check.
type validationResult struct {
	Unit *pwire.Unit
	OK   bool
}

// rebuildOutcome is the report from an offloaded reconstruction.
type rebuildOutcome struct {
	Res RebuildResult
	Err error
}

func (p *messageProcessor) run(ctx context.Context) {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	totalSlots := p.sched.NumDataShards() + p.sched.NumParityShards()

	have := bitset.New(uint(totalSlots))
	validUnits := make([]*pwire.Unit, 0, p.sched.NumDataShards())

	// In strict mode, the publisher signature over the root
	// is checked until one unit's copy verifies;
	// after that, shards bind to the root through their proofs,
	// so later copies of the signature are irrelevant.
	sigVerified := p.validationMode == ValidationNone

	localIdx := -1
	if idx, ok := p.sched.ShardForPeer(p.key.Publisher, p.sched.Local()); ok {
		localIdx = idx
	}
	relayed := false

	// Only one of these is ever non-nil at a time;
	// unit intake pauses while either is in flight.
	var inFlight chan validationResult
	var rebuilding chan rebuildOutcome

	for {
		intake := p.units
		if inFlight != nil || rebuilding != nil {
			intake = nil
		}

		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			p.report(ctx, processorOutcome{Key: p.key, TimedOut: true})
			return

		case u := <-intake:
			if int(u.Index) >= totalSlots || have.Test(uint(u.Index)) {
				// Out of range was already rejected upstream;
				// a duplicate needs no second verification.
				continue
			}

			inFlight = p.startValidation(ctx, u, sigVerified)
			if inFlight == nil {
				return
			}

		case res := <-inFlight:
			inFlight = nil

			if !res.OK {
				p.log.Info(
					"Dropping shard that failed validation",
					"index", res.Unit.Index,
				)
				continue
			}

			sigVerified = true
			have.Set(uint(res.Unit.Index))
			validUnits = append(validUnits, res.Unit)

			if p.emitShardReceived {
				p.observeShard(ctx, res.Unit.Index)
			}

			if int(res.Unit.Index) == localIdx && !relayed {
				// Our own assigned shard, fresh off the first hop.
				// Relay it now: peers depend on this relay
				// to reach their own thresholds.
				if !p.requestRelay(ctx, res.Unit) {
					return
				}
				relayed = true
			}

			if p.sched.ShouldBuild(len(validUnits)) {
				rebuilding = p.startRebuild(ctx, validUnits, localIdx)
				if rebuilding == nil {
					return
				}
			}

		case ro := <-rebuilding:
			rebuilding = nil

			if ro.Err != nil {
				// A failed reconstruction is a fatal integrity violation
				// for this message key; there is no retry.
				p.log.Warn(
					"Reconstruction failed; finalizing without delivery",
					"err", ro.Err,
				)
				p.report(ctx, processorOutcome{Key: p.key})
				return
			}

			out := processorOutcome{
				Key:     p.key,
				Message: ro.Res.Message,
			}

			if localIdx >= 0 && !relayed && ro.Res.LocalShard != nil {
				// We reconstructed without ever seeing our own shard
				// directly from the publisher, so relay the
				// regenerated copy on the way out.
				relay := &pwire.Unit{
					Topic:     p.key.Topic,
					Publisher: []byte(p.key.Publisher),
					Root:      p.key.Root,
					Signature: validUnits[0].Signature,
					Index:     uint16(localIdx),
					Shard:     ro.Res.LocalShard,
					Proof:     ro.Res.LocalProof,
				}
				out.Relay = relay
			}

			p.report(ctx, out)
			return
		}
	}
}

// startValidation offloads the Merkle proof check
// (and, when still needed, the signature check)
// to the shared worker pool.
// It returns nil if the context ended before a worker was available.
func (p *messageProcessor) startValidation(
	ctx context.Context,
	u *pwire.Unit,
	sigVerified bool,
) chan validationResult {
	resCh := make(chan validationResult, 1)

	checkSig := !sigVerified && p.validationMode == ValidationStrict

	err := p.pool.Submit(ctx, func() {
		if checkSig {
			if err := p.sigVerifier.Verify(
				p.key.Publisher, p.key.Root[:], u.Signature,
			); err != nil {
				resCh <- validationResult{Unit: u}
				return
			}
		}

		leafHash := p.merkleCfg.Hasher.Leaf(u.Shard, nil)
		ok := pmerkle.Verify(
			p.merkleCfg, p.key.Root[:], leafHash, int(u.Index), u.Proof,
		)

		resCh <- validationResult{Unit: u, OK: ok}
	})
	if err != nil {
		return nil
	}

	return resCh
}

// startRebuild offloads reconstruction to the shared worker pool.
// It returns nil if the context ended before a worker was available.
func (p *messageProcessor) startRebuild(
	ctx context.Context,
	validUnits []*pwire.Unit,
	localIdx int,
) chan rebuildOutcome {
	resCh := make(chan rebuildOutcome, 1)

	// The worker reads the slice concurrently with the main loop
	// potentially appending, so give it a stable copy.
	units := make([]*pwire.Unit, len(validUnits))
	copy(units, validUnits)

	cfg := RebuildConfig{
		NumData:         p.sched.NumDataShards(),
		NumParity:       p.sched.NumParityShards(),
		Root:            p.key.Root,
		LocalShardIndex: localIdx,
		Hasher:          p.merkleCfg.Hasher,
		DisablePadding:  p.disablePadding,
	}

	err := p.pool.Submit(ctx, func() {
		res, err := RebuildMessage(units, cfg)
		resCh <- rebuildOutcome{Res: res, Err: err}
	})
	if err != nil {
		return nil
	}

	return resCh
}

func (p *messageProcessor) observeShard(ctx context.Context, idx uint16) {
	select {
	case <-ctx.Done():
	case p.shardObs <- ShardReceived{
		Topic:     p.key.Topic,
		Publisher: p.key.Publisher,
		Root:      p.key.Root,
		Index:     idx,
	}:
	}
}

func (p *messageProcessor) requestRelay(ctx context.Context, u *pwire.Unit) bool {
	select {
	case <-ctx.Done():
		return false
	case p.relays <- relayRequest{Key: p.key, Unit: u}:
		return true
	}
}

func (p *messageProcessor) report(ctx context.Context, out processorOutcome) {
	select {
	case <-ctx.Done():
	case p.outcomes <- out:
	}
}
