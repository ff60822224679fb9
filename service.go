package chanrpc

import (
	"fmt"

	"github.com/chanrpc/chanrpc/wire"
)

// Message is the payload contract every request, response and structured
// error body satisfies — anything a schema compiler would have generated
// marshal/unmarshal code for (no such compiler exists in this module, so
// hand-written types play that role in tests).
type Message = wire.Message

// StreamCarrier is implemented by a payload that carries a trailing opaque
// stream alongside its normal fields. A dispatcher checks for this
// interface rather than requiring every payload type to carry stream fields
// it never uses.
type StreamCarrier interface {
	SetStream(data []byte)
	Stream() []byte
}

// StreamAnnotation describes the per-method stream option: whether a method
// additionally carries a trailing opaque byte stream on its request, its
// response, or both.
type StreamAnnotation uint8

const (
	StreamNone StreamAnnotation = iota
	StreamIn
	StreamOut
	StreamInOut
)

// Method describes one RPC within a service, by the index CallMethod
// dispatches on.
type Method struct {
	Index  uint32
	Name   string
	Stream StreamAnnotation
}

// HasInputStream reports whether this method's request carries a trailing
// stream (In or InOut).
func (m Method) HasInputStream() bool {
	return m.Stream == StreamIn || m.Stream == StreamInOut
}

// HasOutputStream reports whether this method's response carries a
// trailing stream (Out or InOut).
func (m Method) HasOutputStream() bool {
	return m.Stream == StreamOut || m.Stream == StreamInOut
}

// ServiceDescriptor binds a service to its schema-file entry: its fully
// qualified name, the numeric id the wire protocol routes on, and its
// methods in index order.
type ServiceDescriptor struct {
	FullName string
	ID       uint32
	Methods  []Method
}

// Method looks up a method by its wire index.
func (d *ServiceDescriptor) Method(index uint32) (Method, bool) {
	for _, m := range d.Methods {
		if m.Index == index {
			return m, true
		}
	}
	return Method{}, false
}

// Service is the shape a generated (here, hand-written) service
// implementation provides: the server-side half of an RPC group.
type Service interface {
	// ID returns the wire service id this instance answers to.
	ID() uint32
	// Name returns this instance's InstanceId, for multi-instance registries.
	Name() string
	Descriptor() *ServiceDescriptor
	CreateRequest(m Method) Message
	CreateResponse(m Method) Message
	CallMethod(m Method, req, resp Message) error
}

// requestBacking is the framework-private state a generated Request/
// StreamRequest wrapper carries, exposed to the rest of the package through
// explicit setters rather than exported fields a method implementation
// could mutate.
type requestBacking struct {
	channel            *Channel // strong: a request holds its channel alive for the call's duration
	callerID           string
	isResponseRequired bool
	method             Method
}

func (b *requestBacking) setChannel(c *Channel)      { b.channel = c }
func (b *requestBacking) setCallerID(id string)      { b.callerID = id }
func (b *requestBacking) setResponseRequired(v bool) { b.isResponseRequired = v }
func (b *requestBacking) setMethod(m Method)         { b.method = m }

// CallerID returns the InstanceId of whoever issued this request.
func (b *requestBacking) CallerID() string { return b.callerID }

// IsResponseRequired reports whether the caller expects a reply (i.e. the
// inbound packet id was nonzero).
func (b *requestBacking) IsResponseRequired() bool { return b.isResponseRequired }

// MethodDescriptor returns the method this request was dispatched to.
func (b *requestBacking) MethodDescriptor() Method { return b.method }

// Request is the non-streaming request wrapper a generated method receives.
type Request[T Message] struct {
	requestBacking
	Payload T
}

// StreamRequest additionally carries a trailing opaque input stream.
type StreamRequest[T Message] struct {
	requestBacking
	Payload T
	Stream  []byte
}

// responseBacking is the framework-private state behind Response/
// StreamResponse: the envelope to send, the descriptors needed to marshal
// an exception, and the exactly-once Send() guard ("scoped-release response
// send" resolved as an explicit call instead of a destructor).
type responseBacking struct {
	channel *Channel // strong, like requestBacking
	base    wire.BasePacket
	haveBase bool
	method   *Method
	service  *ServiceDescriptor
	sent     bool
	exception error
}

func (b *responseBacking) setChannel(c *Channel) { b.channel = c }

func (b *responseBacking) setBase(base wire.BasePacket) {
	base.Direction = wire.Response
	b.base = base
	b.haveBase = true
}

func (b *responseBacking) setMethod(m Method)            { b.method = &m }
func (b *responseBacking) setService(d *ServiceDescriptor) { b.service = d }

// SetException records an error to be marshalled instead of the response
// payload when Send runs.
func (b *responseBacking) SetException(err error) { b.exception = err }

// Exception returns whatever error was recorded via SetException.
func (b *responseBacking) Exception() error { return b.exception }

func fullName(method *Method, service *ServiceDescriptor) (string, string) {
	var m, s string
	if method != nil {
		m = method.Name
	}
	if service != nil {
		s = service.FullName
	}
	return m, s
}

// Response is the non-streaming response wrapper a generated method
// populates and that the framework sends on scope exit.
type Response[T wire.Message] struct {
	responseBacking
	Payload T
}

// Send transmits the response exactly once: a bound exception or a
// payload that fails validation is marshalled into the envelope's error
// fields instead of the payload itself; an unbound response (no base set)
// or one with packet id 0 is silently dropped, since no reply was ever
// expected.
func (r *Response[T]) Send() {
	send(&r.responseBacking, r.Payload, nil)
}

// StreamResponse additionally carries a trailing opaque output stream.
type StreamResponse[T wire.Message] struct {
	responseBacking
	Payload T
	Stream  []byte
}

// Send transmits the response and its trailing stream exactly once.
func (r *StreamResponse[T]) Send() {
	send(&r.responseBacking, r.Payload, r.Stream)
}

// send implements the shared scoped-send logic for both response flavors.
func send(b *responseBacking, payload wire.Message, stream []byte) {
	if !b.haveBase {
		return // response never initialized: fire-and-forget path
	}
	if b.base.PacketID == 0 || b.channel == nil {
		return // no response required, or channel already gone
	}
	if b.sent {
		return
	}
	b.sent = true

	base := b.base
	var body []byte
	if base.Error == "" && base.ErrorID == 0 {
		if b.exception != nil {
			bindException(&base, b.exception, b.method, b.service)
			stream = nil
		} else if data, err := payload.Marshal(); err != nil {
			bindException(&base, fmt.Errorf("failed to send response, marshal failed: %w", err), b.method, b.service)
			stream = nil
		} else {
			body = data
		}
	}

	b.channel.sendResponse(base, body, stream)
}
