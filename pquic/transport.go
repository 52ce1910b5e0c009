package pquic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/windlass-engine/propeller"
	"github.com/windlass-engine/propeller/pschedule"
	"github.com/windlass-engine/propeller/pwire"
)

// Stream error codes reported to the peer
// when an inbound stream is canceled.
const (
	// The stream began with an unrecognized protocol header.
	streamErrUnknownHeader StreamErrorCode = 1

	// The stream carried a frame exceeding the frame size limit.
	streamErrOversizedFrame StreamErrorCode = 2
)

// UnknownPeerError indicates a send to a peer
// with no registered connection.
type UnknownPeerError struct {
	Peer pschedule.PeerID
}

func (e UnknownPeerError) Error() string {
	return fmt.Sprintf("no connection for peer %x", string(e.Peer))
}

// TransportConfig is the configuration for [NewTransport].
type TransportConfig struct {
	// Written at the start of every outbound stream
	// and expected at the start of every inbound one,
	// so that a multiplexed connection can route streams
	// belonging to other protocols elsewhere.
	// Must not be empty.
	Header []byte

	// Upper bound for inbound frames;
	// zero means [pwire.DefaultMaxFrameSize].
	MaxFrameSize int

	// Read deadline applied to every inbound stream.
	// Zero means [DefaultReceiveTimeout].
	ReceiveTimeout time.Duration

	// Capacity of the inbound unit channel.
	// Zero means [DefaultInboundBuffer].
	InboundBuffer int
}

// Defaults for the zero values of [TransportConfig] fields.
const (
	DefaultReceiveTimeout = 5 * time.Second
	DefaultInboundBuffer  = 32
)

// Transport delivers encoded shard frames over QUIC connections,
// one unidirectional stream per frame.
//
// Connections are established, authenticated,
// and mapped to peer identities elsewhere;
// the transport only learns the outcome
// through [*Transport.AddConn] and [*Transport.RemoveConn].
type Transport struct {
	log *slog.Logger

	header []byte

	codec       pwire.Codec
	recvTimeout time.Duration

	inbound chan propeller.InboundUnit

	mu    sync.Mutex
	conns map[pschedule.PeerID]connEntry

	wg sync.WaitGroup
}

type connEntry struct {
	conn   Conn
	cancel context.CancelFunc
}

var _ propeller.Transport = (*Transport)(nil)

// NewTransport returns a Transport ready to accept connections.
func NewTransport(log *slog.Logger, cfg TransportConfig) *Transport {
	if len(cfg.Header) == 0 {
		panic(fmt.Errorf("BUG: Header must not be empty"))
	}

	recvTimeout := cfg.ReceiveTimeout
	if recvTimeout <= 0 {
		recvTimeout = DefaultReceiveTimeout
	}

	inboundBuf := cfg.InboundBuffer
	if inboundBuf <= 0 {
		inboundBuf = DefaultInboundBuffer
	}

	return &Transport{
		log: log,

		header: cfg.Header,

		codec:       pwire.Codec{MaxFrameSize: cfg.MaxFrameSize},
		recvTimeout: recvTimeout,

		inbound: make(chan propeller.InboundUnit, inboundBuf),

		conns: make(map[pschedule.PeerID]connEntry),
	}
}

// Inbound returns the channel of decoded units
// arriving from registered connections,
// suitable for [propeller.ProtocolConfig].
func (t *Transport) Inbound() <-chan propeller.InboundUnit {
	return t.inbound
}

// AddConn registers an authenticated connection under the peer's identity
// and starts receiving this transport's streams from it.
// A prior connection registered for the same peer is replaced.
//
// The context bounds the connection's receive work;
// it is normally the context governing the connection itself.
func (t *Transport) AddConn(ctx context.Context, peer pschedule.PeerID, conn Conn) {
	ctx, cancel := context.WithCancel(ctx)

	t.mu.Lock()
	if prev, ok := t.conns[peer]; ok {
		prev.cancel()
	}
	t.conns[peer] = connEntry{conn: conn, cancel: cancel}
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.acceptStreams(ctx, peer, conn)
	}()
}

// RemoveConn deregisters the peer's connection, if any,
// and stops its receive work.
// Closing the underlying connection is the caller's concern.
func (t *Transport) RemoveConn(peer pschedule.PeerID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.conns[peer]; ok {
		e.cancel()
		delete(t.conns, peer)
	}
}

// Wait blocks until all receive work has finished.
// Receive work stops when the contexts passed to [*Transport.AddConn]
// are canceled or the connections fail.
func (t *Transport) Wait() {
	t.wg.Wait()
}

// Send opens a unidirectional stream to the peer
// and writes the protocol header followed by the frame.
//
// The frame was already length-prefixed by [pwire.Codec];
// closing the stream marks its end.
func (t *Transport) Send(ctx context.Context, peer pschedule.PeerID, frame []byte) error {
	t.mu.Lock()
	e, ok := t.conns[peer]
	t.mu.Unlock()

	if !ok {
		return UnknownPeerError{Peer: peer}
	}

	s, err := e.conn.OpenUniStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("failed to open outgoing stream: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := s.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}

	if _, err := s.Write(t.header); err != nil {
		return fmt.Errorf("failed to write protocol header: %w", err)
	}

	if _, err := s.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if err := s.Close(); err != nil {
		return fmt.Errorf("failed to close outgoing stream: %w", err)
	}

	return nil
}

func (t *Transport) acceptStreams(ctx context.Context, peer pschedule.PeerID, conn Conn) {
	for {
		s, err := conn.AcceptUniStream(ctx)
		if err != nil {
			if ctx.Err() == nil {
				t.log.Info(
					"Stopped accepting streams",
					"peer", fmt.Sprintf("%x", string(peer)),
					"err", err,
				)
			}
			return
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()

			if err := t.receiveStream(ctx, peer, s); err != nil {
				t.log.Info(
					"Failed to receive stream",
					"peer", fmt.Sprintf("%x", string(peer)),
					"err", err,
				)
			}
		}()
	}
}

// receiveStream consumes one inbound unidirectional stream:
// the protocol header, then length-prefixed unit frames until EOF.
func (t *Transport) receiveStream(
	ctx context.Context, peer pschedule.PeerID, s ReceiveStream,
) error {
	if err := s.SetReadDeadline(time.Now().Add(t.recvTimeout)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}

	header := make([]byte, len(t.header))
	if _, err := io.ReadFull(s, header); err != nil {
		s.CancelRead(streamErrUnknownHeader)
		return fmt.Errorf("failed to read protocol header: %w", err)
	}
	if !bytes.Equal(header, t.header) {
		s.CancelRead(streamErrUnknownHeader)
		return fmt.Errorf("unrecognized protocol header %x", header)
	}

	d := pwire.NewDecoder(t.codec)
	buf := make([]byte, 4096)

	for {
		n, err := s.Read(buf)
		if n > 0 {
			d.Feed(buf[:n])

			if err := t.drainDecoder(ctx, peer, d); err != nil {
				var oversize pwire.OversizedFrameError
				if errors.As(err, &oversize) {
					s.CancelRead(streamErrOversizedFrame)
				}
				return err
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read stream: %w", err)
		}
	}
}

func (t *Transport) drainDecoder(
	ctx context.Context, peer pschedule.PeerID, d *pwire.Decoder,
) error {
	for {
		u, err := d.Next()
		if err != nil {
			return fmt.Errorf("failed to decode frame: %w", err)
		}
		if u == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return context.Cause(ctx)
		case t.inbound <- propeller.InboundUnit{Sender: peer, Unit: u}:
		}
	}
}
