package chanrpc

import (
	"bytes"
	"context"
	"io"
	"sync"
	"weak"

	"github.com/chanrpc/chanrpc/future"
	"github.com/chanrpc/chanrpc/golog"
	"github.com/chanrpc/chanrpc/rpcerr"
	"github.com/chanrpc/chanrpc/wire"
)

// RequestHandler is the interceptor contract request handlers install on a
// Channel: the first handler whose HandleRequest returns true wins;
// HandleResponse is a fan-out hook every handler sees on every inbound
// response, whether or not it owns the matching outgoing request.
type RequestHandler interface {
	HandleRequest(ctx context.Context, base wire.BasePacket, body, stream []byte, channel *Channel) (bool, error)
	HandleResponse(base wire.BasePacket, remoteID string)
}

// sink is the ChannelSink: outgoing-request table, write
// serialization, and connection swap/close semantics. It holds only a weak
// back-reference to its owning Channel (sink/handlers are weak,
// channel→sink is the strong direction) so a dropped Channel doesn't keep
// the sink, and whatever goroutines it may still be running, alive.
type sink struct {
	channel weak.Pointer[Channel]
	log     *golog.Logger

	// mapMu guards outgoing, conn and wrapConn: quick, in-memory-only
	// operations. It is never held across a transport write.
	mapMu    sync.Mutex
	outgoing map[uint32]*future.Future
	conn     Connection
	wrapConn func(Connection) Connection
	closeErr error
	closed   bool

	// writeMu is held for the duration of one write, giving writes a total
	// order across all callers of push, independent
	// of how long any individual write takes.
	writeMu sync.Mutex

	handlersMu sync.Mutex
	handlers   []RequestHandler
}

func newSink(channel *Channel, log *golog.Logger) *sink {
	return &sink{
		channel:  weak.Make(channel),
		log:      log,
		outgoing: make(map[uint32]*future.Future),
	}
}

func (s *sink) remoteID() string {
	if c := s.channel.Value(); c != nil {
		return c.RemoteID()
	}
	return "destroyed channel"
}

// addHandler registers h to receive the response fan-out hook in Pop.
func (s *sink) addHandler(h RequestHandler) {
	s.handlersMu.Lock()
	s.handlers = append(s.handlers, h)
	s.handlersMu.Unlock()
}

func (s *sink) handlerSnapshot() []RequestHandler {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	out := make([]RequestHandler, len(s.handlers))
	copy(out, s.handlers)
	return out
}

// push serializes base/body/stream and, for an outbound request expecting a
// reply, registers and returns the Future that will carry its result.
func (s *sink) push(base wire.BasePacket, body, stream []byte) (*future.Future, error) {
	var fut *future.Future
	if base.Direction == wire.Request && base.PacketID != 0 {
		s.mapMu.Lock()
		if s.closed {
			s.mapMu.Unlock()
			return nil, rpcerr.ErrChannelClosed
		}
		if _, exists := s.outgoing[base.PacketID]; exists {
			s.mapMu.Unlock()
			return nil, &rpcerr.DuplicatePacketID{PacketID: base.PacketID}
		}
		fut = future.New()
		s.outgoing[base.PacketID] = fut
		s.mapMu.Unlock()
	}

	s.write(base, body, stream)
	return fut, nil
}

// pop looks up the pending request matching base's packet id and completes
// its Future, converting a wire error into a Go error first.
func (s *sink) pop(base wire.BasePacket, body, stream []byte) {
	remoteID := s.remoteID()
	for _, h := range s.handlerSnapshot() {
		h.HandleResponse(base, remoteID)
	}

	s.mapMu.Lock()
	fut, ok := s.outgoing[base.PacketID]
	if ok {
		delete(s.outgoing, base.PacketID)
	}
	s.mapMu.Unlock()

	if !ok {
		s.log.Error(context.Background(), "<-[%s] unknown packet id: %+v", remoteID, base)
		return
	}

	fut.SetBase(base)
	if base.HasError() {
		fut.CompleteWithError(rpcerr.MakeException(base))
	} else {
		fut.CompleteWithStream(body, stream)
	}
}

func (s *sink) write(base wire.BasePacket, body, stream []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mapMu.Lock()
	if s.closed {
		s.mapMu.Unlock()
		s.log.Warning(context.Background(), "->[%s] channel has been closed, dropping write", s.remoteID())
		return
	}
	conn := s.conn
	wrap := s.wrapConn
	s.mapMu.Unlock()

	if conn == nil {
		s.log.Warning(context.Background(), "->[%s] no connection set, dropping write", s.remoteID())
		return
	}

	target := conn
	if wrap != nil {
		target = wrap(conn)
	}

	var reader io.Reader
	if len(stream) > 0 {
		reader = bytes.NewReader(stream)
	}
	if err := wire.WriteFrame(connPreparer{target}, base, body, reader, int64(len(stream))); err != nil {
		s.log.Error(context.Background(), "->[%s] failed to write frame: %v", s.remoteID(), err)
	}
}

// setConnection atomically swaps the transport, draining and closing
// whatever connection was previously installed.
func (s *sink) setConnection(conn Connection) {
	s.mapMu.Lock()
	previous := s.conn
	s.conn = conn
	if conn != nil {
		s.closeErr = nil
		s.closed = false
	}
	s.mapMu.Unlock()

	if previous != nil && previous != conn {
		s.log.Warning(context.Background(), "--[%s] closing previous connection", s.remoteID())
		previous.Receive(func(stream []byte, err error) {}) // ignore everything from the old connection
		previous.Close()
	}
}

func (s *sink) setConnectionWrapper(fn func(Connection) Connection) {
	s.mapMu.Lock()
	s.wrapConn = fn
	s.mapMu.Unlock()
}

// close is idempotent: the transport is closed at most once meaningfully,
// and every Future still in outgoing is failed exactly once, with err if
// given or a synthesized local-close error otherwise.
func (s *sink) close(err error) {
	s.mapMu.Lock()
	conn := s.conn
	s.conn = nil
	if s.closeErr == nil {
		s.closeErr = err
	}
	s.closed = true
	pending := s.outgoing
	s.outgoing = make(map[uint32]*future.Future)
	s.mapMu.Unlock()

	// Closing the transport can fire its receive callback, which re-enters
	// close, so mapMu must already be released here.
	if conn != nil {
		conn.Close()
	}

	if len(pending) == 0 {
		return
	}
	failWith := err
	if failWith == nil {
		failWith = rpcerr.ErrChannelClosed
	}
	for _, fut := range pending {
		fut.CompleteWithError(failWith)
	}
}
