package transport

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/chanrpc/chanrpc/rpcerr"
)

// chunkHeaderSize is the per-chunk header SequencedConnection prefixes
// every piece with: a 4-byte total-frame-size and a 2-byte continuation
// flag (nonzero means "more chunks follow").
const chunkHeaderSize = 4 + 2

// DefaultChunkSize bounds how much payload SequencedConnection packs into
// a single underlying delivery.
const DefaultChunkSize = 4096

// rawConnection is the subset of Connection a SequencedConnection needs
// from whatever it wraps. It's declared locally (rather than imported from
// the root package) so this package stays free of a dependency on it —
// satisfied structurally by chanrpc.Connection and by *Conn alike.
type rawConnection interface {
	Prepare(size int) io.Writer
	Receive(cb func(stream []byte, err error))
	Close() error
	Flush() error
	Info() string
}

// SequencedConnection wraps a message-boundary-preserving Connection and
// rewrites every outbound logical frame into one or more bounded chunks,
// pairing with Collector on the far end to reassemble them. It's the
// write-side half of the fragmented channel variant.
type SequencedConnection struct {
	inner     rawConnection
	chunkSize int
}

// NewSequencedConnection wraps inner, chunking outbound writes to at most
// chunkSize bytes of payload each. A chunkSize <= 0 uses DefaultChunkSize.
func NewSequencedConnection(inner rawConnection, chunkSize int) *SequencedConnection {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &SequencedConnection{inner: inner, chunkSize: chunkSize}
}

func (s *SequencedConnection) Prepare(size int) io.Writer {
	return &chunkWriter{inner: s.inner, chunkSize: s.chunkSize, total: size}
}

func (s *SequencedConnection) Receive(cb func(stream []byte, err error)) { s.inner.Receive(cb) }
func (s *SequencedConnection) Close() error                              { return s.inner.Close() }
func (s *SequencedConnection) Flush() error                              { return s.inner.Flush() }
func (s *SequencedConnection) Info() string                              { return s.inner.Info() }

// chunkWriter buffers exactly one logical frame's bytes (wire.WriteFrame
// may issue one or more Write calls against the handle Prepare returns) and
// chops it into chunks once the declared total has arrived.
type chunkWriter struct {
	inner     rawConnection
	chunkSize int
	total     int
	buf       []byte
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if len(w.buf) < w.total {
		return len(p), nil
	}
	return len(p), w.flush()
}

func (w *chunkWriter) flush() error {
	data := w.buf
	for offset := 0; offset < len(data); {
		end := offset + w.chunkSize
		more := end < len(data)
		if !more {
			end = len(data)
		}
		if err := w.writeChunk(data[offset:end], more); err != nil {
			return err
		}
		offset = end
	}
	return nil
}

func (w *chunkWriter) writeChunk(chunk []byte, more bool) error {
	header := make([]byte, chunkHeaderSize, chunkHeaderSize+len(chunk))
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(w.buf)))
	if more {
		binary.LittleEndian.PutUint16(header[4:6], 1)
	}
	out := append(header, chunk...)
	dst := w.inner.Prepare(len(out))
	_, err := dst.Write(out)
	return err
}

// Collector is the default SequenceCollector: it reassembles frames
// chunked by SequencedConnection, tolerant of a fragment boundary that
// doesn't line up with a chunk boundary. It needs the same chunkSize the
// writer was given, since a chunk's header carries the frame's total size
// and a continuation flag but not this chunk's own span — without
// chunkSize the two are indistinguishable once a frame spans more than
// one chunk.
type Collector struct {
	onComplete func(frame []byte)
	chunkSize  int

	mu sync.Mutex

	buf       []byte // bytes reassembled for the frame in progress
	total     int    // declared total size of that frame
	headerBuf []byte // partial header bytes, across calls
	chunkLeft int    // payload bytes still owed before the next header is due
}

// NewCollector returns a Collector that invokes onComplete once per
// reassembled frame. chunkSize must match the chunkSize the paired
// SequencedConnection chunks its writes to; a chunkSize <= 0 uses
// DefaultChunkSize, matching NewSequencedConnection's default.
func NewCollector(chunkSize int, onComplete func(frame []byte)) *Collector {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Collector{chunkSize: chunkSize, onComplete: onComplete}
}

// OnNewStream ingests one inbound fragment, possibly completing (and
// dispatching) one or more frames, and possibly leaving a partial frame, or
// a partial chunk header, buffered for the next call.
func (c *Collector) OnNewStream(fragment []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(fragment) > 0 {
		if c.chunkLeft == 0 {
			n := chunkHeaderSize - len(c.headerBuf)
			if n > len(fragment) {
				n = len(fragment)
			}
			c.headerBuf = append(c.headerBuf, fragment[:n]...)
			fragment = fragment[n:]
			if len(c.headerBuf) < chunkHeaderSize {
				return nil
			}

			total := int(binary.LittleEndian.Uint32(c.headerBuf[0:4]))
			c.headerBuf = c.headerBuf[:0]
			if c.total == 0 {
				c.total = total
			}
			if c.total == 0 {
				c.onComplete(nil)
				continue
			}

			remaining := c.total - len(c.buf)
			if remaining > c.chunkSize {
				remaining = c.chunkSize
			}
			c.chunkLeft = remaining
			if c.chunkLeft == 0 {
				return rpcerr.NewProtocolError(errEmptyChunk)
			}
		}

		n := c.chunkLeft
		if n > len(fragment) {
			n = len(fragment)
		}
		c.buf = append(c.buf, fragment[:n]...)
		fragment = fragment[n:]
		c.chunkLeft -= n

		if c.chunkLeft == 0 && len(c.buf) >= c.total {
			frame := c.buf
			c.buf = nil
			c.total = 0
			c.onComplete(frame)
		}
	}
	return nil
}

var errEmptyChunk = emptyChunkError{}

type emptyChunkError struct{}

func (emptyChunkError) Error() string { return "chunk header declares no remaining payload" }
