package chanrpc

import "io"

// WriteHandle is the reserved write buffer Connection.Prepare hands back;
// satisfies wire.Preparer's expectations via plain io.Writer.
type WriteHandle = io.Writer

// Connection is the transport contract: everything the channel
// needs from the underlying byte connection, and nothing more. Reliable
// delivery, ordering and backpressure are the transport's problem, not
// this package's concern.
type Connection interface {
	// Prepare reserves size bytes of write buffer and returns a handle to
	// write them into.
	Prepare(size int) WriteHandle
	// Receive arranges for cb to fire once per inbound delivery. For the
	// sequenced channel variant each delivery is exactly one logical frame;
	// for the fragmented variant it is one sub-stream fragment. A nil
	// stream with a non-nil error signals the connection is gone.
	Receive(cb func(stream []byte, err error))
	// Close releases the connection. Idempotent.
	Close() error
	// Flush pushes any buffered writes out immediately.
	Flush() error
	// Info returns a short, human-readable description for logging.
	Info() string
}

// connPreparer adapts Connection to wire.Preparer.
type connPreparer struct{ c Connection }

func (p connPreparer) Prepare(size int) io.Writer { return p.c.Prepare(size) }

// SequenceCollector is the fragmentation/reassembly contract: it
// ingests successive sub-stream fragments and, once a full logical frame
// has been assembled, invokes its callback with the reassembled bytes. Its
// internals are out of scope; transport.Collector provides a minimal
// reference implementation.
type SequenceCollector interface {
	// OnNewStream ingests one inbound fragment.
	OnNewStream(fragment []byte) error
}

// SequenceCollectorCallback is invoked once a logical frame is fully
// reassembled.
type SequenceCollectorCallback func(frame []byte)
