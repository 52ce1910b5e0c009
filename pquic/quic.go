// Package pquic connects the broadcast protocol to QUIC:
// it defines narrow connection and stream interfaces
// satisfied by [github.com/quic-go/quic-go] adapters,
// and a [Transport] sending every shard unit
// over its own unidirectional stream.
package pquic

import (
	"context"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
)

// StreamErrorCode is used for [ReceiveStream.CancelRead]
// and [SendStream.CancelWrite],
// to inform the peer of why the stream is canceled.
type StreamErrorCode uint64

// Conn is the subset of a QUIC connection the transport uses.
// Shard units only ever flow over unidirectional streams;
// connection lifecycle, TLS state, and addressing
// stay with whichever layer owns the connection.
type Conn interface {
	AcceptUniStream(context.Context) (ReceiveStream, error)
	OpenUniStreamSync(context.Context) (SendStream, error)
}

// ReceiveStream is the read side of a unidirectional stream.
type ReceiveStream interface {
	Read([]byte) (int, error)
	CancelRead(StreamErrorCode)

	SetReadDeadline(time.Time) error
}

// SendStream is the write side of a unidirectional stream.
type SendStream interface {
	Write([]byte) (int, error)
	CancelWrite(StreamErrorCode)

	Close() error

	SetWriteDeadline(t time.Time) error
}

var _ Conn = ConnAdapter{}

// ConnAdapter wraps a [*quic.Conn], implementing the [Conn] interface.
//
// Create an instance with [WrapConn].
type ConnAdapter struct {
	qc *quic.Conn
}

// WrapConn wraps the given connection,
// returning a value implementing [Conn].
func WrapConn(qc *quic.Conn) ConnAdapter {
	return ConnAdapter{qc: qc}
}

func (c ConnAdapter) AcceptUniStream(ctx context.Context) (ReceiveStream, error) {
	s, err := c.qc.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	return WrapReceiveStream(s), nil
}

func (c ConnAdapter) OpenUniStreamSync(ctx context.Context) (SendStream, error) {
	s, err := c.qc.OpenUniStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return WrapSendStream(s), nil
}

var _ ReceiveStream = ReceiveStreamAdapter{}

// ReceiveStreamAdapter wraps a [quic.ReceiveStream]
// to satisfy the [ReceiveStream] interface.
// Use [WrapReceiveStream] to create an instance.
type ReceiveStreamAdapter struct {
	s *quic.ReceiveStream
}

// WrapReceiveStream wraps s into a ReceiveStreamAdapter,
// satisfying the [ReceiveStream] interface.
func WrapReceiveStream(s *quic.ReceiveStream) ReceiveStreamAdapter {
	return ReceiveStreamAdapter{s: s}
}

func (a ReceiveStreamAdapter) Read(p []byte) (int, error) {
	return a.s.Read(p)
}

func (a ReceiveStreamAdapter) CancelRead(code StreamErrorCode) {
	if (code >> 62) > 0 {
		panic(fmt.Errorf(
			"BUG: stream error code must fit in 62 bits (got 0x%x)", code,
		))
	}
	a.s.CancelRead(quic.StreamErrorCode(code))
}

func (a ReceiveStreamAdapter) SetReadDeadline(t time.Time) error {
	return a.s.SetReadDeadline(t)
}

var _ SendStream = SendStreamAdapter{}

// SendStreamAdapter wraps a [quic.SendStream]
// to satisfy the [SendStream] interface.
// Use [WrapSendStream] to create an instance.
type SendStreamAdapter struct {
	s *quic.SendStream
}

// WrapSendStream wraps s into a SendStreamAdapter,
// satisfying the [SendStream] interface.
func WrapSendStream(s *quic.SendStream) SendStreamAdapter {
	return SendStreamAdapter{s: s}
}

func (a SendStreamAdapter) Write(p []byte) (int, error) {
	return a.s.Write(p)
}

func (a SendStreamAdapter) CancelWrite(code StreamErrorCode) {
	if (code >> 62) > 0 {
		panic(fmt.Errorf(
			"BUG: stream error code must fit in 62 bits (got 0x%x)", code,
		))
	}
	a.s.CancelWrite(quic.StreamErrorCode(code))
}

func (a SendStreamAdapter) Close() error {
	return a.s.Close()
}

func (a SendStreamAdapter) SetWriteDeadline(t time.Time) error {
	return a.s.SetWriteDeadline(t)
}
