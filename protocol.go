package propeller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/windlass-engine/propeller/internal/pverify"
	"github.com/windlass-engine/propeller/pmerkle"
	"github.com/windlass-engine/propeller/pmerkle/pmsha256"
	"github.com/windlass-engine/propeller/ppubsub"
	"github.com/windlass-engine/propeller/pschedule"
	"github.com/windlass-engine/propeller/pwire"
)

// ProtocolConfig is the configuration passed to [NewProtocol].
type ProtocolConfig struct {
	// Initial channels, keyed by topic.
	// Each schedule is an immutable snapshot of the topic's peer set;
	// replace it through [*Protocol.SetChannel] on membership change.
	Channels map[uint64]*pschedule.Schedule

	// How to send frames to peers.
	Transport Transport

	// Authenticated inbound units from the transport layer.
	Inbound <-chan InboundUnit

	// How to sign roots of locally published messages.
	Signer Signer

	// How to check publisher signatures on inbound messages.
	// Required in [ValidationStrict] mode.
	SignatureVerifier SignatureVerifier

	ValidationMode ValidationMode

	// How long a message may remain in flight
	// before it finalizes with a [Timeout] event.
	// Zero means [DefaultMessageTimeout].
	MessageTimeout time.Duration

	// How long a completed message's identity is remembered,
	// so that late or duplicate units are rejected
	// without creating a new processor.
	// Zero means [DefaultMessageCacheTTL].
	MessageCacheTTL time.Duration

	// Upper bound on a single shard's size;
	// oversized inbound shards are dropped before validation.
	// Zero means [DefaultMaxShardSize].
	MaxShardSize int

	// Per-send deadline for outbound frames.
	// Zero means [DefaultSubstreamTimeout].
	SubstreamTimeout time.Duration

	// Number of workers verifying proofs and reconstructing messages.
	// Zero means one worker per available CPU.
	VerifyPoolSize int

	// Emit a [ShardReceived] event for every shard passing validation.
	EmitShardReceivedEvents bool

	// Upper bound for encoded frames; zero means
	// [pwire.DefaultMaxFrameSize].
	MaxFrameSize int

	// How to hash Merkle tree entries.
	// Nil means the SHA-256 hasher.
	Hasher pmerkle.Hasher

	// Skip message padding. Testing only:
	// most message sizes cannot be coded without padding.
	DisablePadding bool
}

// Defaults for the zero values of [ProtocolConfig] fields.
const (
	DefaultMessageTimeout   = 10 * time.Second
	DefaultMessageCacheTTL  = time.Minute
	DefaultMaxShardSize     = 8 << 20
	DefaultSubstreamTimeout = time.Second
)

// Protocol runs the broadcast protocol for any number of channels.
//
// Create one with [NewProtocol];
// the context given there controls its lifecycle.
type Protocol struct {
	log *slog.Logger

	transport Transport
	inbound   <-chan InboundUnit

	signer      Signer
	sigVerifier SignatureVerifier

	vmode ValidationMode

	codec  pwire.Codec
	hasher pmerkle.Hasher

	msgTimeout       time.Duration
	cacheTTL         time.Duration
	maxShardSize     int
	substreamTimeout time.Duration

	emitShardReceived bool
	disablePadding    bool

	pool *pverify.Pool

	// Read-mostly channel snapshots, shared between
	// the main loop and publishing callers.
	channelsMu sync.RWMutex
	channels   map[uint64]*pschedule.Schedule

	eventsMu   sync.Mutex
	eventsHead *ppubsub.Stream[Event]

	outcomes chan processorOutcome
	relays   chan relayRequest
	shardObs chan ShardReceived

	mainLoopDone chan struct{}
	wg           sync.WaitGroup
}

// procHandle is the main loop's view of one running processor.
type procHandle struct {
	units  chan *pwire.Unit
	cancel context.CancelFunc
}

// NewProtocol returns a running Protocol with the given configuration.
// The given context controls the lifecycle of the Protocol.
func NewProtocol(ctx context.Context, log *slog.Logger, cfg ProtocolConfig) *Protocol {
	if cfg.Transport == nil {
		panic(fmt.Errorf("BUG: Transport must not be nil"))
	}
	if cfg.Inbound == nil {
		panic(fmt.Errorf("BUG: Inbound must not be nil"))
	}
	if cfg.ValidationMode == ValidationStrict && cfg.SignatureVerifier == nil {
		panic(fmt.Errorf(
			"BUG: SignatureVerifier must not be nil in ValidationStrict mode",
		))
	}

	poolSize := cfg.VerifyPoolSize
	if poolSize <= 0 {
		poolSize = runtime.GOMAXPROCS(0)
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = pmsha256.Hasher{}
	}

	channels := make(map[uint64]*pschedule.Schedule, len(cfg.Channels))
	for topic, sched := range cfg.Channels {
		channels[topic] = sched
	}

	p := &Protocol{
		log: log,

		transport: cfg.Transport,
		inbound:   cfg.Inbound,

		signer:      cfg.Signer,
		sigVerifier: cfg.SignatureVerifier,

		vmode: cfg.ValidationMode,

		codec:  pwire.Codec{MaxFrameSize: cfg.MaxFrameSize},
		hasher: hasher,

		msgTimeout:       defaultDuration(cfg.MessageTimeout, DefaultMessageTimeout),
		cacheTTL:         defaultDuration(cfg.MessageCacheTTL, DefaultMessageCacheTTL),
		maxShardSize:     defaultInt(cfg.MaxShardSize, DefaultMaxShardSize),
		substreamTimeout: defaultDuration(cfg.SubstreamTimeout, DefaultSubstreamTimeout),

		emitShardReceived: cfg.EmitShardReceivedEvents,
		disablePadding:    cfg.DisablePadding,

		pool: pverify.NewPool(ctx, poolSize),

		channels: channels,

		eventsHead: ppubsub.NewStream[Event](),

		// Buffered so processors finishing in a burst
		// don't serialize on the main loop.
		outcomes: make(chan processorOutcome, 8),
		relays:   make(chan relayRequest, 8),
		shardObs: make(chan ShardReceived, 32),

		mainLoopDone: make(chan struct{}),
	}

	go p.mainLoop(ctx)

	return p
}

func defaultDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func defaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

// Events returns the current head of the protocol's event stream.
// Events published before the call are not observable
// through the returned node.
func (p *Protocol) Events() *ppubsub.Stream[Event] {
	p.eventsMu.Lock()
	defer p.eventsMu.Unlock()

	return p.eventsHead
}

func (p *Protocol) publishEvent(e Event) {
	p.eventsMu.Lock()
	defer p.eventsMu.Unlock()

	p.eventsHead.Publish(e)
	p.eventsHead = p.eventsHead.Next
}

// SetChannel installs or replaces the schedule snapshot for a topic.
//
// In-flight messages on the topic keep the snapshot
// they were created with.
func (p *Protocol) SetChannel(topic uint64, sched *pschedule.Schedule) {
	if sched == nil {
		panic(fmt.Errorf("BUG: schedule must not be nil"))
	}

	p.channelsMu.Lock()
	defer p.channelsMu.Unlock()

	p.channels[topic] = sched
}

func (p *Protocol) channel(topic uint64) *pschedule.Schedule {
	p.channelsMu.RLock()
	defer p.channelsMu.RUnlock()

	return p.channels[topic]
}

// Wait blocks until all of p's background work has finished.
// The background work begins stopping once the context
// passed to [NewProtocol] is canceled.
func (p *Protocol) Wait() {
	<-p.mainLoopDone
	p.wg.Wait()
	p.pool.Wait()
}

// Publish codes the message into one shard unit per channel peer
// and sends each unit directly to its assigned peer.
//
// The local peer must be a member of the topic's channel;
// the channel peer set determines the shard counts.
func (p *Protocol) Publish(ctx context.Context, topic uint64, message []byte) error {
	sched := p.channel(topic)
	if sched == nil {
		return fmt.Errorf("%w: topic %d", ErrUnknownTopic, topic)
	}
	if p.signer == nil {
		panic(fmt.Errorf("BUG: publishing requires a Signer"))
	}

	units, err := PrepareUnits(message, PrepareConfig{
		Topic:     topic,
		Publisher: sched.Local(),
		Signer:    p.signer,

		NumData:   sched.NumDataShards(),
		NumParity: sched.NumParityShards(),

		Hasher: p.hasher,

		DisablePadding: p.disablePadding,
	})
	if err != nil {
		return fmt.Errorf("failed to prepare broadcast units: %w", err)
	}

	sendErrs := make([]error, len(units))

	var wg sync.WaitGroup
	for i, u := range units {
		peer, err := sched.PeerForShard(sched.Local(), i)
		if err != nil {
			// The schedule produced these exact shard counts.
			panic(fmt.Errorf("BUG: prepared unit %d has no assigned peer: %w", i, err))
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := p.sendUnit(ctx, peer, u); err != nil {
				// One unreachable peer must not abort the broadcast;
				// parity covers a bounded number of missing shards.
				sendErrs[i] = fmt.Errorf("send to %x: %w", string(peer), err)
			}
		}()
	}
	wg.Wait()

	return errors.Join(sendErrs...)
}

func (p *Protocol) sendUnit(ctx context.Context, peer pschedule.PeerID, u *pwire.Unit) error {
	frame, err := p.codec.EncodeFrame(u)
	if err != nil {
		return fmt.Errorf("failed to encode unit: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.substreamTimeout)
	defer cancel()

	return p.transport.Send(sendCtx, peer, frame)
}

func (p *Protocol) mainLoop(ctx context.Context) {
	defer close(p.mainLoopDone)

	procs := make(map[messageKey]procHandle)

	// Completed message identities, with their cache deadlines.
	finalized := make(map[messageKey]time.Time)

	sweep := time.NewTicker(p.cacheTTL)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info(
				"Stopping due to context cancellation",
				"cause", context.Cause(ctx),
			)
			return

		case in := <-p.inbound:
			p.handleInbound(ctx, in, procs, finalized)

		case out := <-p.outcomes:
			p.handleOutcome(ctx, out, procs, finalized)

		case req := <-p.relays:
			p.relayToChannel(ctx, req)

		case obs := <-p.shardObs:
			p.publishEvent(obs)

		case now := <-sweep.C:
			for key, deadline := range finalized {
				if now.After(deadline) {
					delete(finalized, key)
				}
			}
		}
	}
}

func (p *Protocol) handleInbound(
	ctx context.Context,
	in InboundUnit,
	procs map[messageKey]procHandle,
	finalized map[messageKey]time.Time,
) {
	u := in.Unit

	sched := p.channel(u.Topic)
	if sched == nil {
		p.log.Warn("Dropping unit for unknown topic", "topic", u.Topic)
		return
	}
	if sched.NumDataShards() == 0 {
		// A channel this small cannot carry a broadcast;
		// any unit claiming otherwise is bogus.
		p.log.Warn("Dropping unit for undersized channel", "topic", u.Topic)
		return
	}

	if len(u.Shard) > p.maxShardSize {
		p.log.Warn(
			"Dropping oversized shard",
			"topic", u.Topic,
			"size", len(u.Shard),
			"limit", p.maxShardSize,
		)
		return
	}

	publisher := pschedule.PeerID(u.Publisher)
	if err := sched.ValidateOrigin(in.Sender, publisher, int(u.Index)); err != nil {
		// Repeated violations from a peer are a signal
		// for the caller's reputation layer; here the unit
		// simply never reaches a processor.
		p.log.Warn(
			"Dropping unit with illegitimate relay path",
			"topic", u.Topic,
			"err", err,
		)
		return
	}

	key := messageKey{Topic: u.Topic, Publisher: publisher, Root: u.Root}

	if _, done := finalized[key]; done {
		return
	}

	h, ok := procs[key]
	if !ok {
		h = p.startProcessor(ctx, key, sched)
		procs[key] = h
	}

	select {
	case h.units <- u:
	default:
		// The processor's queue already holds a full shard set;
		// anything beyond that is duplicate pressure.
		p.log.Debug(
			"Dropping unit for saturated processor",
			"topic", u.Topic,
			"index", u.Index,
		)
	}
}

func (p *Protocol) startProcessor(
	ctx context.Context,
	key messageKey,
	sched *pschedule.Schedule,
) procHandle {
	totalSlots := sched.NumDataShards() + sched.NumParityShards()

	proc := &messageProcessor{
		log: p.log.With(
			"topic", key.Topic,
			"root", fmt.Sprintf("%x", key.Root[:4]),
		),

		key:   key,
		sched: sched,

		pool: p.pool,

		merkleCfg: pmerkle.Config{
			Hasher:   p.hasher,
			HashSize: pwire.RootSize,
		},

		validationMode: p.vmode,
		sigVerifier:    p.sigVerifier,

		disablePadding:    p.disablePadding,
		emitShardReceived: p.emitShardReceived,

		timeout: p.msgTimeout,

		units: make(chan *pwire.Unit, totalSlots),

		relays:   p.relays,
		shardObs: p.shardObs,
		outcomes: p.outcomes,
	}

	procCtx, cancel := context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		proc.run(procCtx)
	}()

	return procHandle{units: proc.units, cancel: cancel}
}

func (p *Protocol) handleOutcome(
	ctx context.Context,
	out processorOutcome,
	procs map[messageKey]procHandle,
	finalized map[messageKey]time.Time,
) {
	if h, ok := procs[out.Key]; ok {
		h.cancel()
		delete(procs, out.Key)
	}
	finalized[out.Key] = time.Now().Add(p.cacheTTL)

	if out.Relay != nil {
		p.relayToChannel(ctx, relayRequest{Key: out.Key, Unit: out.Relay})
	}

	if out.TimedOut {
		p.publishEvent(Timeout{
			Topic:     out.Key.Topic,
			Publisher: out.Key.Publisher,
			Root:      out.Key.Root,
		})
		return
	}

	if out.Message != nil {
		p.publishEvent(Delivered{
			Topic:     out.Key.Topic,
			Publisher: out.Key.Publisher,
			Message:   out.Message,
		})
	}
	// A nil message without a timeout was a failed reconstruction;
	// the processor already reported it and there is nothing to emit.
}

// relayToChannel sends the local peer's own assigned unit
// to every channel peer other than the publisher and itself.
func (p *Protocol) relayToChannel(ctx context.Context, req relayRequest) {
	sched := p.channel(req.Key.Topic)
	if sched == nil {
		return
	}

	for _, pw := range sched.Peers() {
		if pw.ID == sched.Local() || pw.ID == req.Key.Publisher {
			continue
		}

		peer := pw.ID
		u := req.Unit

		p.wg.Add(1)
		go func() {
			defer p.wg.Done()

			if err := p.sendUnit(ctx, peer, u); err != nil {
				p.log.Info(
					"Failed to relay shard",
					"topic", req.Key.Topic,
					"peer", fmt.Sprintf("%x", string(peer)),
					"err", err,
				)
			}
		}()
	}
}
