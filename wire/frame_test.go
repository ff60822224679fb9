package wire

import (
	"bytes"
	"io"
	"testing"
)

// bufWriter is the minimal Preparer these tests need: ignore the size hint
// and write straight into an in-memory buffer.
type bufWriter struct{ buf *bytes.Buffer }

func (w *bufWriter) Prepare(size int) io.Writer { return w.buf }

func TestFrameRoundTripRequestWithStream(t *testing.T) {
	base := BasePacket{ServiceID: 3, MethodIndex: 1, PacketID: 7, Direction: Request, CallerID: "caller-1"}
	body := []byte(`{"text":"hi"}`)
	stream := []byte("trailing-bytes")

	var buf bytes.Buffer
	if err := WriteFrame(&bufWriter{&buf}, base, body, bytes.NewReader(stream), int64(len(stream))); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Base != base {
		t.Fatalf("base mismatch: got %+v want %+v", frame.Base, base)
	}
	if !bytes.Equal(frame.Body, body) {
		t.Fatalf("body mismatch: got %q want %q", frame.Body, body)
	}
	if !bytes.Equal(frame.Stream, stream) {
		t.Fatalf("stream mismatch: got %q want %q", frame.Stream, stream)
	}
}

func TestFrameErrorResponseHasNoBody(t *testing.T) {
	base := BasePacket{ServiceID: 1, MethodIndex: 0, PacketID: 9, Direction: Response, Error: "boom"}

	var buf bytes.Buffer
	if err := WriteFrame(&bufWriter{&buf}, base, []byte("should not appear"), nil, 0); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	frame, err := ReadFrame(buf.Bytes())
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Body != nil {
		t.Fatalf("expected no body on error response, got %q", frame.Body)
	}
	if frame.Base.Error != "boom" {
		t.Fatalf("error text lost: %+v", frame.Base)
	}
}

func TestReadFrameEmptyIsSentinel(t *testing.T) {
	frame, err := ReadFrame(nil)
	if err != nil {
		t.Fatalf("ReadFrame(nil): %v", err)
	}
	if !frame.IsEmpty() {
		t.Fatalf("expected empty sentinel frame, got %+v", frame)
	}
}

func TestBasePacketDecodeEmptyIsZeroValue(t *testing.T) {
	b, err := Decode(nil)
	if err != nil {
		t.Fatalf("Decode(nil): %v", err)
	}
	if b != (BasePacket{}) {
		t.Fatalf("expected zero value, got %+v", b)
	}
}
