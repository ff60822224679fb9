package chanrpc

import (
	"context"
	"errors"
	"testing"

	"github.com/chanrpc/chanrpc/rpcerr"
	"github.com/chanrpc/chanrpc/wire"
)

// recordingHandler captures every response sink.pop fans out, regardless of
// whether it matches a pending request on this channel.
type recordingHandler struct {
	responses []wire.BasePacket
}

func (h *recordingHandler) HandleRequest(ctx context.Context, base wire.BasePacket, body, stream []byte, channel *Channel) (bool, error) {
	return false, nil
}

func (h *recordingHandler) HandleResponse(base wire.BasePacket, remoteID string) {
	h.responses = append(h.responses, base)
}

func TestSinkPushRejectsDuplicatePacketID(t *testing.T) {
	c := newChannel(context.Background(), nil)
	base := wire.BasePacket{ServiceID: 1, PacketID: 7, Direction: wire.Request}

	if _, err := c.sink.push(base, nil, nil); err != nil {
		t.Fatalf("first push: %v", err)
	}

	_, err := c.sink.push(base, nil, nil)
	var dup *rpcerr.DuplicatePacketID
	if !errors.As(err, &dup) {
		t.Fatalf("expected *rpcerr.DuplicatePacketID, got %T: %v", err, err)
	}
	if dup.PacketID != 7 {
		t.Fatalf("got PacketID %d, want 7", dup.PacketID)
	}
}

func TestSinkPopDiscardsUnknownPacketID(t *testing.T) {
	c := newChannel(context.Background(), nil)
	h := &recordingHandler{}
	c.sink.addHandler(h)

	// Nothing was ever pushed under packet id 42: pop must fan the response
	// out to every handler, log the miss, and otherwise do nothing.
	c.sink.pop(wire.BasePacket{PacketID: 42, Direction: wire.Response}, nil, nil)

	if len(h.responses) != 1 {
		t.Fatalf("expected HandleResponse to fire once, got %d", len(h.responses))
	}
	if h.responses[0].PacketID != 42 {
		t.Fatalf("got %+v", h.responses[0])
	}

	// A later, unrelated push under the same id must still succeed: the
	// earlier unmatched pop left nothing behind in outgoing.
	if _, err := c.sink.push(wire.BasePacket{PacketID: 42, Direction: wire.Request}, nil, nil); err != nil {
		t.Fatalf("push after unmatched pop: %v", err)
	}
}
