package transport

import (
	"bytes"
	"io"
	"testing"
)

// recordingConn is a minimal rawConnection that appends every Prepare'd
// write directly to itself, skipping any outer framing, so tests can drive
// SequencedConnection/Collector without a real socket.
type recordingConn struct {
	writes [][]byte
}

func (c *recordingConn) Prepare(size int) io.Writer {
	return &recordingWriter{conn: c}
}
func (c *recordingConn) Receive(cb func(stream []byte, err error)) {}
func (c *recordingConn) Close() error                              { return nil }
func (c *recordingConn) Flush() error                               { return nil }
func (c *recordingConn) Info() string                                { return "recording" }

type recordingWriter struct {
	conn *recordingConn
	buf  bytes.Buffer
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	w.conn.writes = append(w.conn.writes, w.buf.Bytes())
	return len(p), nil
}

func TestSequencedConnectionChunksAndCollectorReassembles(t *testing.T) {
	rec := &recordingConn{}
	seq := NewSequencedConnection(rec, 8) // small chunk size to force several chunks

	payload := []byte("this is a payload long enough to span several small chunks")
	w := seq.Prepare(len(payload))
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if len(rec.writes) == 0 {
		t.Fatal("expected at least one chunk written")
	}

	var got []byte
	collector := NewCollector(8, func(frame []byte) {
		got = append([]byte(nil), frame...)
	})
	for _, chunk := range rec.writes {
		if err := collector.OnNewStream(chunk); err != nil {
			t.Fatalf("OnNewStream: %v", err)
		}
	}

	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q want %q", got, payload)
	}
}

func TestCollectorHandlesFragmentSpanningTwoCalls(t *testing.T) {
	rec := &recordingConn{}
	seq := NewSequencedConnection(rec, DefaultChunkSize)
	payload := []byte("small payload")
	if _, err := seq.Prepare(len(payload)).Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(rec.writes) != 1 {
		t.Fatalf("expected exactly one chunk for a small payload, got %d", len(rec.writes))
	}
	whole := rec.writes[0]

	var got []byte
	collector := NewCollector(DefaultChunkSize, func(frame []byte) {
		got = append([]byte(nil), frame...)
	})

	mid := len(whole) / 2
	if err := collector.OnNewStream(whole[:mid]); err != nil {
		t.Fatalf("OnNewStream (first half): %v", err)
	}
	if got != nil {
		t.Fatal("frame completed before all bytes arrived")
	}
	if err := collector.OnNewStream(whole[mid:]); err != nil {
		t.Fatalf("OnNewStream (second half): %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q want %q", got, payload)
	}
}
