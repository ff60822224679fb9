package chanrpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"weak"

	"golang.org/x/sync/semaphore"

	"github.com/chanrpc/chanrpc/golog"
	"github.com/chanrpc/chanrpc/rpcerr"
	"github.com/chanrpc/chanrpc/wire"
)

// serviceRef resolves back to a live Service or reports it is gone. Go's
// weak package only offers weak.Pointer[T] for a concrete T, so resolve
// closes over a weak.Pointer[T] fixed at registration time — ProvideService
// is the generic bridge that captures T before it disappears behind the
// Service interface.
type serviceRef struct {
	serviceID    uint32
	instanceName string
	resolve      func() (Service, bool)
}

// LocalHandler is the in-process RequestHandler: a registry of
// locally implemented services, dispatching each inbound request to every
// entry whose service id matches current base. When more than one service
// shares an id, every match's CallMethod runs against the same response
// object for its side effects; whichever runs last determines the final
// response fields, since nothing here gives any one match exclusive
// ownership of the shared response.
type LocalHandler struct {
	log *golog.Logger
	sem *semaphore.Weighted

	mu       sync.Mutex
	services []serviceRef
}

// HandlerOption configures a LocalHandler at construction time.
type HandlerOption func(*LocalHandler)

// WithConcurrencyLimit bounds the number of CallMethod dispatches this
// handler runs at once, across every channel sharing it, to n. A handler
// serving several connections otherwise runs one dispatch per inbound
// request with no ceiling; this is the bounded alternative.
func WithConcurrencyLimit(n int64) HandlerOption {
	return func(h *LocalHandler) { h.sem = semaphore.NewWeighted(n) }
}

// NewLocalHandler returns an empty service registry.
func NewLocalHandler(opts ...HandlerOption) *LocalHandler {
	h := &LocalHandler{log: handlerLog}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var handlerLog = golog.New("chanrpc")

// ProvideService registers svc, keeping only a weak reference to it: once
// nothing else keeps svc reachable, the handler stops routing to it instead
// of keeping it alive on the registry's account.
func ProvideService[T any](h *LocalHandler, svc *T) error {
	s, ok := any(svc).(Service)
	if !ok {
		return fmt.Errorf("chanrpc: %T does not implement Service", svc)
	}
	wp := weak.Make(svc)
	ref := serviceRef{
		serviceID:    s.ID(),
		instanceName: s.Name(),
		resolve: func() (Service, bool) {
			p := wp.Value()
			if p == nil {
				return nil, false
			}
			resolved, ok := any(p).(Service)
			return resolved, ok
		},
	}
	h.mu.Lock()
	h.services = append(h.services, ref)
	h.mu.Unlock()
	return nil
}

// RemoveService unregisters the entry matching serviceID and instanceName.
func (h *LocalHandler) RemoveService(serviceID uint32, instanceName string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kept := h.services[:0:0]
	for _, ref := range h.services {
		if ref.serviceID == serviceID && ref.instanceName == instanceName {
			continue
		}
		kept = append(kept, ref)
	}
	h.services = kept
}

// HasService reports whether a live entry matches serviceID and
// instanceName.
func (h *LocalHandler) HasService(serviceID uint32, instanceName string) bool {
	for _, svc := range h.matches(serviceID) {
		if svc.Name() == instanceName {
			return true
		}
	}
	return false
}

// matches snapshots the registry and resolves every live entry whose
// service id is serviceID. Entries whose weak reference has already gone
// stale are simply skipped; they are left in place rather than pruned here
// to avoid racing a concurrent ProvideService, and RemoveService remains
// the deliberate way to drop an entry for good.
func (h *LocalHandler) matches(serviceID uint32) []Service {
	h.mu.Lock()
	refs := make([]serviceRef, len(h.services))
	copy(refs, h.services)
	h.mu.Unlock()

	var out []Service
	for _, ref := range refs {
		if ref.serviceID != serviceID {
			continue
		}
		if svc, ok := ref.resolve(); ok {
			out = append(out, svc)
		}
	}
	return out
}

// HandleRequest implements RequestHandler: it locates every service
// matching base.ServiceID, builds one shared request/response pair from the
// first match's descriptor, runs CallMethod against every match, and sends
// exactly one response.
func (h *LocalHandler) HandleRequest(ctx context.Context, base wire.BasePacket, body, stream []byte, channel *Channel) (bool, error) {
	matches := h.matches(base.ServiceID)
	if len(matches) == 0 {
		return false, nil
	}

	descriptor := matches[0].Descriptor()
	method, ok := descriptor.Method(base.MethodIndex)
	if !ok {
		return false, rpcerr.NewDispatchError("method index %d not found on service %q", base.MethodIndex, descriptor.FullName)
	}

	req := matches[0].CreateRequest(method)
	if req != nil {
		if err := req.Unmarshal(body); err != nil {
			return false, rpcerr.NewDispatchError("unmarshaling request for %q: %w", descriptor.FullName, err)
		}
		if sc, ok := req.(StreamCarrier); ok && len(stream) > 0 {
			sc.SetStream(stream)
		}
	}

	resp := &StreamResponse[Message]{Payload: matches[0].CreateResponse(method)}
	resp.setChannel(channel)
	resp.setBase(base)
	resp.setMethod(method)
	resp.setService(descriptor)

	h.log.Trace(ctx, "handling request [%s.%s] from [%s]", descriptor.FullName, method.Name, base.CallerID)

	if h.sem != nil {
		if err := h.sem.Acquire(ctx, 1); err != nil {
			return false, rpcerr.NewDispatchError("acquiring dispatch slot for %q: %w", descriptor.FullName, err)
		}
		defer h.sem.Release(1)
	}

	var errs []error
	for _, svc := range matches {
		if err := svc.CallMethod(method, req, resp.Payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", svc.Descriptor().FullName, err))
		}
	}
	if len(errs) > 0 {
		resp.SetException(errors.Join(errs...))
	}
	if sc, ok := any(resp.Payload).(StreamCarrier); ok {
		resp.Stream = sc.Stream()
	}

	resp.Send()
	return true, nil
}

// HandleResponse is a no-op: LocalHandler only serves inbound requests, and
// has nothing to correlate an inbound response against.
func (h *LocalHandler) HandleResponse(base wire.BasePacket, remoteID string) {}
