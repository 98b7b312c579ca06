package wire

import (
	"bufio"
	"net"
	"sync"
)

// Stream wraps one TCP connection with the framing contract from §4.1: Send
// is safe for concurrent callers (serialized behind writeMu so one frame's
// bytes never interleave with another's); Receive is intended to be driven by
// a single reader loop per the spec, but is itself safe to call concurrently
// since it too is serialized — callers that need a true single-reader
// discipline (the server's connection handler, the client demultiplexer) get
// that from their own design, not from a lock here.
type Stream struct {
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex
	readMu  sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewStream constructs a Stream over an already-dialed/accepted connection.
func NewStream(conn net.Conn) *Stream {
	return &Stream{
		conn: conn,
		r:    bufio.NewReader(conn),
	}
}

// Send atomically writes one complete frame. A write failure here only fails
// this one call; the caller decides whether to tear down the connection.
func (s *Stream) Send(tag, typ int32, payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return WriteFrame(s.conn, Frame{Tag: tag, Type: typ, Payload: payload})
}

// Receive blocks until one full frame has arrived or the connection fails.
// Any non-nil error here is terminal for the stream: an incomplete frame or a
// closed connection must be treated by the caller as the end of this stream's
// useful life (§4.1 "Failure semantics").
func (s *Stream) Receive() (Frame, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	return ReadFrame(s.r)
}

// Close releases the underlying connection. Safe to call more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// Conn exposes the underlying net.Conn for deadline/option management
// (SetReadDeadline, SetNoDelay, RemoteAddr, ...).
func (s *Stream) Conn() net.Conn { return s.conn }
