// Package pquictest provides in-memory stand-ins
// for the pquic connection and stream interfaces,
// so transport behavior is testable without QUIC sockets.
package pquictest

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/windlass-engine/propeller/pquic"
)

// StubConn is an in-memory [pquic.Conn].
// Use [ConnPair] to create two connected ends.
type StubConn struct {
	remote *StubConn

	accepts chan pquic.ReceiveStream
}

var _ pquic.Conn = (*StubConn)(nil)

// ConnPair returns two connected StubConns:
// a stream opened on one end is accepted on the other.
func ConnPair() (*StubConn, *StubConn) {
	a := &StubConn{accepts: make(chan pquic.ReceiveStream, 8)}
	b := &StubConn{accepts: make(chan pquic.ReceiveStream, 8)}
	a.remote = b
	b.remote = a
	return a, b
}

// AcceptUniStream implements [pquic.Conn].
func (c *StubConn) AcceptUniStream(ctx context.Context) (pquic.ReceiveStream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case s := <-c.accepts:
		return s, nil
	}
}

// OpenUniStreamSync implements [pquic.Conn].
func (c *StubConn) OpenUniStreamSync(ctx context.Context) (pquic.SendStream, error) {
	send, recv := streamPair()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case c.remote.accepts <- recv:
		return send, nil
	}
}

// memoryStream is one unidirectional in-memory byte stream.
// Its two ends satisfy [pquic.SendStream] and [pquic.ReceiveStream].
type memoryStream struct {
	mu     sync.Mutex
	buf    []byte
	closed bool

	// Signaled on every write and on close.
	activity chan struct{}
}

func streamPair() (*memorySendStream, *memoryReceiveStream) {
	ms := &memoryStream{activity: make(chan struct{}, 1)}
	return &memorySendStream{ms: ms}, &memoryReceiveStream{ms: ms}
}

func (ms *memoryStream) signal() {
	select {
	case ms.activity <- struct{}{}:
	default:
	}
}

type memorySendStream struct {
	ms *memoryStream
}

var _ pquic.SendStream = (*memorySendStream)(nil)

func (s *memorySendStream) Write(p []byte) (int, error) {
	s.ms.mu.Lock()
	if s.ms.closed {
		s.ms.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	s.ms.buf = append(s.ms.buf, p...)
	s.ms.mu.Unlock()

	s.ms.signal()
	return len(p), nil
}

func (s *memorySendStream) Close() error {
	s.ms.mu.Lock()
	s.ms.closed = true
	s.ms.mu.Unlock()

	s.ms.signal()
	return nil
}

func (s *memorySendStream) CancelWrite(pquic.StreamErrorCode) {
	_ = s.Close()
}

func (s *memorySendStream) SetWriteDeadline(time.Time) error { return nil }

type memoryReceiveStream struct {
	ms *memoryStream
}

var _ pquic.ReceiveStream = (*memoryReceiveStream)(nil)

func (s *memoryReceiveStream) Read(p []byte) (int, error) {
	for {
		s.ms.mu.Lock()
		if len(s.ms.buf) > 0 {
			n := copy(p, s.ms.buf)
			s.ms.buf = s.ms.buf[n:]
			s.ms.mu.Unlock()
			return n, nil
		}
		closed := s.ms.closed
		s.ms.mu.Unlock()

		if closed {
			return 0, io.EOF
		}

		<-s.ms.activity
	}
}

func (s *memoryReceiveStream) CancelRead(pquic.StreamErrorCode) {
	s.ms.mu.Lock()
	s.ms.closed = true
	s.ms.buf = nil
	s.ms.mu.Unlock()

	s.ms.signal()
}

func (s *memoryReceiveStream) SetReadDeadline(time.Time) error { return nil }
