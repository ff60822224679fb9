// Package transport provides a reference Connection implementation so the
// runtime is runnable end-to-end without a caller supplying its own
// transport: a net.Conn-backed Connection for TCP and in-memory pipes, plus
// a default SequenceCollector/SequencedConnection pair for the fragmented
// channel variant. None of this is load-bearing for the core runtime —
// callers can always plug in their own Connection.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// frameHeaderSize is the width of the outer length prefix Conn wraps every
// logical frame in, so a byte-stream transport (TCP, net.Pipe) preserves
// message boundaries the way the sequenced channel variant expects.
const frameHeaderSize = 4

// Conn adapts a net.Conn to the runtime's Connection contract: Prepare
// announces the coming write's size via a length prefix, and a single
// background goroutine turns the length-prefixed byte stream back into one
// callback invocation per logical frame.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader

	recvOnce sync.Once
	g        errgroup.Group
	closeErr error
	closed   chan struct{}
}

func newConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, r: bufio.NewReaderSize(conn, 64*1024), closed: make(chan struct{})}
}

// NewTCP wraps conn, applying any supplied Options (disabling Nagle's
// algorithm, tuning socket buffers) before returning.
func NewTCP(conn *net.TCPConn, opts ...Option) (*Conn, error) {
	for _, opt := range opts {
		if err := opt(conn); err != nil {
			return nil, fmt.Errorf("chanrpc/transport: applying option: %w", err)
		}
	}
	return newConn(conn), nil
}

// NewPipe returns a connected in-memory pair, for tests that want a real
// Connection without a socket.
func NewPipe() (*Conn, *Conn) {
	a, b := net.Pipe()
	return newConn(a), newConn(b)
}

// Prepare writes size as a 4-byte length prefix and returns the connection
// itself; wire.WriteFrame may issue one or more Write calls against it
// totaling exactly size bytes, forming one logical frame.
func (c *Conn) Prepare(size int) io.Writer {
	var header [frameHeaderSize]byte
	binary.LittleEndian.PutUint32(header[:], uint32(size))
	if _, err := c.conn.Write(header[:]); err != nil {
		return errWriter{err}
	}
	return c.conn
}

// Receive starts (once) a read loop that decodes the length-prefixed
// stream back into whole frames, invoking cb once per frame and once more,
// terminally, with a non-nil error when the connection is gone.
func (c *Conn) Receive(cb func(stream []byte, err error)) {
	c.recvOnce.Do(func() {
		c.g.Go(func() error {
			c.readLoop(cb)
			return nil
		})
	})
}

func (c *Conn) readLoop(cb func(stream []byte, err error)) {
	var header [frameHeaderSize]byte
	for {
		if _, err := io.ReadFull(c.r, header[:]); err != nil {
			cb(nil, err)
			return
		}
		size := binary.LittleEndian.Uint32(header[:])
		frame := make([]byte, size)
		if _, err := io.ReadFull(c.r, frame); err != nil {
			cb(nil, err)
			return
		}
		cb(frame, nil)
	}
}

// Close closes the underlying net.Conn and waits for the read loop, if one
// was started, to observe the close and return. Idempotent.
func (c *Conn) Close() error {
	select {
	case <-c.closed:
		return c.closeErr
	default:
	}
	close(c.closed)
	c.closeErr = c.conn.Close()
	c.g.Wait()
	return c.closeErr
}

// Flush is a no-op: writes go straight to the socket, there is no
// intermediate buffering to push out.
func (c *Conn) Flush() error { return nil }

// Info describes the underlying connection's addresses, for logging.
func (c *Conn) Info() string {
	return fmt.Sprintf("%s->%s", c.conn.LocalAddr(), c.conn.RemoteAddr())
}

type errWriter struct{ err error }

func (w errWriter) Write([]byte) (int, error) { return 0, w.err }
