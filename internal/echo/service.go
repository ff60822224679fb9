package echo

import (
	"fmt"

	"github.com/chanrpc/chanrpc"
	"github.com/chanrpc/chanrpc/rpcerr"
)

func init() {
	rpcerr.RegisterException(func() *NotFound { return &NotFound{} })
}

// ServiceID is the wire id every Service instance below answers to.
const ServiceID = 1

const (
	MethodEcho uint32 = iota
	MethodEchoStream
)

// Descriptor describes the Echo service's two methods.
var Descriptor = &chanrpc.ServiceDescriptor{
	FullName: "echo.Echo",
	ID:       ServiceID,
	Methods: []chanrpc.Method{
		{Index: MethodEcho, Name: "Echo", Stream: chanrpc.StreamNone},
		{Index: MethodEchoStream, Name: "EchoStream", Stream: chanrpc.StreamInOut},
	},
}

// Service implements chanrpc.Service. Instance distinguishes multiple
// registrations sharing ServiceID, for the multi-match broadcast scenario.
type Service struct {
	Instance string

	// Reject, if set, makes Echo fail with a structured NotFound error for
	// any request whose Text matches it.
	Reject string

	// Calls counts every CallMethod invocation, so tests can observe that a
	// broadcast to multiple instances really ran each of them.
	Calls int
}

func (s *Service) ID() uint32                           { return ServiceID }
func (s *Service) Name() string                         { return s.Instance }
func (s *Service) Descriptor() *chanrpc.ServiceDescriptor { return Descriptor }

func (s *Service) CreateRequest(m chanrpc.Method) chanrpc.Message {
	if m.Index == MethodEchoStream {
		return &StreamRequest{}
	}
	return &Request{}
}

func (s *Service) CreateResponse(m chanrpc.Method) chanrpc.Message {
	if m.Index == MethodEchoStream {
		return &StreamResponse{}
	}
	return &Response{}
}

func (s *Service) CallMethod(m chanrpc.Method, req, resp chanrpc.Message) error {
	s.Calls++

	switch m.Index {
	case MethodEcho:
		in := req.(*Request)
		out := resp.(*Response)
		if s.Reject != "" && in.Text == s.Reject {
			return &NotFound{Name: in.Text}
		}
		out.Text = in.Text
		out.Length = len(in.Text)
		return nil

	case MethodEchoStream:
		in := req.(*StreamRequest)
		out := resp.(*StreamResponse)
		if s.Reject != "" && in.Text == s.Reject {
			return &NotFound{Name: in.Text}
		}
		out.Text = in.Text
		out.Length = len(in.Text)
		out.SetStream(in.Stream())
		return nil

	default:
		return fmt.Errorf("echo: unknown method index %d", m.Index)
	}
}
