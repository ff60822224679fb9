// Package future implements the single-shot completion cell returned by
// every outbound call: it holds either a payload stream or an error, never
// both, and completes at most once.
//
// Completion runs on whatever goroutine calls CompleteWithStream or
// CompleteWithError, independently of anyone calling Wait, so Wait is a
// plain channel receive guarded by a context rather than anything that
// needs to pump an event loop — the same "done channel, single winner"
// shape as golang.org/x/tools' gopls/internal/cache/future.go.
package future

import (
	"context"
	"sync"

	"github.com/chanrpc/chanrpc/wire"
)

// Callback is invoked exactly once, when a Future transitions out of
// Pending. If the Future was already complete when OnComplete was called,
// the callback fires synchronously, on the calling goroutine.
type Callback func(*Future)

// Future is the untyped completion cell: it carries the raw response
// stream (or error) and the response envelope, and parses nothing itself —
// parsing is the typed wrapper's job (see Typed).
type Future struct {
	done chan struct{}

	mu       sync.Mutex
	body     []byte // response message bytes, parsed on demand by Typed
	stream   []byte // trailing opaque bytes, if any
	base     wire.BasePacket
	haveBase bool
	err      error
	settled  bool
	callback Callback
}

// New returns a Future ready to be completed exactly once.
func New() *Future {
	return &Future{done: make(chan struct{})}
}

// CompleteWithStream resolves the Future successfully with the decoded
// response body and whatever trailing opaque bytes came with it.
func (f *Future) CompleteWithStream(body, stream []byte) {
	f.complete(func() {
		f.body = body
		f.stream = stream
	})
}

// CompleteWithError fails the Future. A second completion is a silent no-op.
func (f *Future) CompleteWithError(err error) {
	f.complete(func() {
		f.err = err
	})
}

func (f *Future) complete(apply func()) {
	var cb Callback
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return
	}
	apply()
	f.settled = true
	cb = f.callback
	f.callback = nil
	f.mu.Unlock()

	close(f.done)
	if cb != nil {
		cb(f)
	}
}

// SetBase attaches the response envelope. The ordering guarantee
// requires this to happen before CompleteWithStream is observable by a
// waiter, which is why the sink's pop always calls SetBase first (see
// sink.go).
func (f *Future) SetBase(base wire.BasePacket) {
	f.mu.Lock()
	f.base = base
	f.haveBase = true
	f.mu.Unlock()
}

// GetBase returns the response envelope, if one has been set.
func (f *Future) GetBase() (wire.BasePacket, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.base, f.haveBase
}

// IsReady reports whether the Future has left the Pending state.
func (f *Future) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the Future completes or ctx is done, whichever comes
// first. It never drives an external event loop — see the package doc.
// It returns the response body and trailing stream bytes.
func (f *Future) Wait(ctx context.Context) (body, stream []byte, err error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.body, f.stream, f.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// OnComplete registers cb to run on the transition out of Pending. If the
// Future is already complete, cb runs synchronously before OnComplete
// returns. Only one callback may be registered; registering a second one
// replaces the first only if the Future has not yet completed.
func (f *Future) OnComplete(cb Callback) {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		cb(f)
		return
	}
	f.callback = cb
	f.mu.Unlock()
}

// Err returns the completion error, if any. It returns nil while Pending.
func (f *Future) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Typed wraps a Future and parses its payload stream into a concrete
// Message type on demand, once the caller actually asks for Response or
// Stream.
type Typed[T wire.Message] struct {
	f *Future
}

// Wrap adapts an untyped Future returned by Push/CallMethod into a Typed
// one for a specific response message type.
func Wrap[T wire.Message](f *Future) *Typed[T] {
	return &Typed[T]{f: f}
}

// Future exposes the underlying untyped cell, e.g. for IsReady/OnComplete.
func (t *Typed[T]) Future() *Future { return t.f }

// Response blocks for completion and unmarshals the payload into into.
func (t *Typed[T]) Response(ctx context.Context, into T) (T, error) {
	body, _, err := t.f.Wait(ctx)
	if err != nil {
		return into, err
	}
	if len(body) > 0 {
		if err := into.Unmarshal(body); err != nil {
			return into, err
		}
	}
	return into, nil
}

// Stream returns whatever trailing opaque bytes came with the response,
// blocking for completion first.
func (t *Typed[T]) Stream(ctx context.Context) ([]byte, error) {
	_, stream, err := t.f.Wait(ctx)
	return stream, err
}
