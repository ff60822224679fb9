// Package chanrpc implements the transport-agnostic core of a bidirectional,
// multiplexed RPC runtime: it frames outbound calls, correlates responses
// back to pending futures, dispatches inbound calls into registered
// services, and optionally fragments/reassembles logical packets across
// several wire frames.
package chanrpc

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/chanrpc/chanrpc/future"
	"github.com/chanrpc/chanrpc/golog"
	"github.com/chanrpc/chanrpc/rpcerr"
	"github.com/chanrpc/chanrpc/wire"
)

var channelLog = golog.New("chanrpc")

// fragmentConfig holds what only the fragmented channel variant needs: how
// to build a fresh reassembler, and how to wrap outbound writes so they are
// chunked to match.
type fragmentConfig struct {
	newCollector func(SequenceCollectorCallback) SequenceCollector
	wrapWriter   func(Connection) Connection

	mu        sync.Mutex
	collector SequenceCollector
}

// Channel is the per-connection RPC endpoint: it owns a
// ChannelSink, allocates outbound packet ids, parses inbound frames and
// walks the request-handler chain. The zero value is not usable; construct
// with New or NewFragmented.
type Channel struct {
	ctx context.Context
	log *golog.Logger

	sink *sink

	remoteMu sync.RWMutex
	remoteID string

	nextID atomic.Uint32

	handlersMu sync.Mutex
	handlers   []RequestHandler

	frag *fragmentConfig
}

// New returns a sequenced Channel: every Connection delivery is treated as
// exactly one logical frame.
func New(ctx context.Context) *Channel {
	return newChannel(ctx, nil)
}

// NewFragmented returns a Channel that reassembles logical frames from a
// sequence of smaller deliveries via a SequenceCollector. newCollector
// builds a fresh collector bound to this channel's completion callback;
// wrapWriter, if non-nil, wraps the sink's outbound connection so writes
// are chunked to match (the SequencedConnection adapter).
func NewFragmented(ctx context.Context, newCollector func(SequenceCollectorCallback) SequenceCollector, wrapWriter func(Connection) Connection) *Channel {
	return newChannel(ctx, &fragmentConfig{newCollector: newCollector, wrapWriter: wrapWriter})
}

func newChannel(ctx context.Context, frag *fragmentConfig) *Channel {
	if ctx == nil {
		ctx = context.Background()
	}
	c := &Channel{ctx: ctx, log: channelLog, frag: frag}
	c.sink = newSink(c, c.log)
	if frag != nil && frag.wrapWriter != nil {
		c.sink.setConnectionWrapper(frag.wrapWriter)
	}
	return c
}

// SetConnection installs (or swaps) the underlying transport.
func (c *Channel) SetConnection(conn Connection) {
	c.sink.setConnection(conn)
	if conn != nil {
		conn.Receive(c.onIncomingData)
	}
}

// SetRemoteId records the instance id of whoever is on the other end,
// stamped onto inbound requests that don't already carry a caller id.
func (c *Channel) SetRemoteId(id string) {
	c.remoteMu.Lock()
	c.remoteID = id
	c.remoteMu.Unlock()
}

// RemoteID returns the instance id set via SetRemoteId, or "" if none.
func (c *Channel) RemoteID() string {
	c.remoteMu.RLock()
	defer c.remoteMu.RUnlock()
	return c.remoteID
}

// AddHandler installs a request handler. Handlers are tried newest-first:
// the most recently added handler gets first refusal of every inbound
// request.
func (c *Channel) AddHandler(h RequestHandler) {
	c.sink.addHandler(h)
	c.handlersMu.Lock()
	c.handlers = append([]RequestHandler{h}, c.handlers...)
	c.handlersMu.Unlock()
}

func (c *Channel) handlerSnapshot() []RequestHandler {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	out := make([]RequestHandler, len(c.handlers))
	copy(out, c.handlers)
	return out
}

// nextPacketID returns a monotonically increasing, never-zero packet id.
func (c *Channel) nextPacketID() uint32 {
	id := c.nextID.Add(1)
	if id == 0 {
		id = c.nextID.Add(1)
	}
	return id
}

// CallMethod issues an outbound request and returns the Future that
// will carry its response. req may be nil for methods with no input
// fields; stream carries an optional trailing opaque input.
func (c *Channel) CallMethod(serviceID uint32, method Method, req Message, stream []byte) (*future.Future, error) {
	var body []byte
	if req != nil {
		data, err := req.Marshal()
		if err != nil {
			return nil, rpcerr.NewRequestValidationError("marshaling request for method %q: %w", method.Name, err)
		}
		body = data
	}
	base := wire.BasePacket{
		ServiceID:   serviceID,
		MethodIndex: method.Index,
		PacketID:    c.nextPacketID(),
		Direction:   wire.Request,
	}
	return c.sink.push(base, body, stream)
}

// sendResponse pushes a response envelope through this channel's sink,
// ignoring the returned Future (responses never register one) and logging
// any push error instead of propagating it, since by this point there is
// no caller left to hand an error back to.
func (c *Channel) sendResponse(base wire.BasePacket, body, stream []byte) {
	if base.Error != "" {
		c.log.Error(c.ctx, "sending error response to [%s]: %+v", c.RemoteID(), base)
	}
	if _, err := c.sink.push(base, body, stream); err != nil {
		c.log.Error(c.ctx, "failed to write response: %v", err)
	}
}

// Close closes the underlying sink and fails every pending Future.
func (c *Channel) Close(err error) {
	c.sink.close(err)
}

// onIncomingData is wired to Connection.Receive. For a sequenced channel, a
// delivery with no error is exactly one logical frame; for a fragmented
// channel it is one fragment to feed the reassembler.
func (c *Channel) onIncomingData(stream []byte, err error) {
	if err != nil || stream == nil {
		c.Close(err)
		return
	}
	if c.frag == nil {
		c.handleBasePacket(stream)
		return
	}

	c.frag.mu.Lock()
	collector := c.frag.collector
	if collector == nil {
		collector = c.frag.newCollector(func(frame []byte) {
			c.handleBasePacket(frame)
		})
		c.frag.collector = collector
	}
	c.frag.mu.Unlock()

	if err := collector.OnNewStream(stream); err != nil {
		c.log.Error(c.ctx, "failed to process incoming data: %v", err)
	}
}

// handleBasePacket decodes one fully-assembled frame and routes it.
// A decode failure is logged and the frame dropped; the channel stays open.
func (c *Channel) handleBasePacket(data []byte) {
	frame, err := wire.ReadFrame(data)
	if err != nil {
		c.log.Error(c.ctx, "failed to parse base packet: %v", err)
		return
	}
	if frame.IsEmpty() {
		return
	}

	if frame.Base.Direction == wire.Request {
		c.handleRequest(frame.Base, frame.Body, frame.Stream)
	} else {
		c.handleResponse(frame.Base, frame.Body, frame.Stream)
	}
}

func (c *Channel) handleRequest(base wire.BasePacket, body, stream []byte) {
	if base.CallerID == "" {
		if remote := c.RemoteID(); remote != "" {
			base.CallerID = remote
		}
	}

	if err := c.dispatch(base, body, stream); err != nil {
		c.log.Error(c.ctx, "failed to process request: %v", err)
		base.Direction = wire.Response
		rpcerr.BindFreeform(&base, err.Error())
		c.sendResponse(base, nil, nil)
	}
}

// dispatch walks the handler chain in order; the first handler that claims
// the request wins. An unmatched request returns a structured DispatchError
// instead of going unanswered.
func (c *Channel) dispatch(base wire.BasePacket, body, stream []byte) error {
	for _, h := range c.handlerSnapshot() {
		handled, err := h.HandleRequest(c.ctx, base, body, stream, c)
		if err != nil {
			return err
		}
		if handled {
			return nil
		}
	}
	return rpcerr.NewDispatchError("unable to handle request, service %d: %w", base.ServiceID, rpcerr.ErrNoService)
}

func (c *Channel) handleResponse(base wire.BasePacket, body, stream []byte) {
	if base.PacketID == 0 {
		return
	}
	c.sink.pop(base, body, stream)
}
