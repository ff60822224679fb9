package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxInMemoryFrameSize is the threshold above which WriteFrame streams
// directly into the transport's write buffer instead of assembling one
// contiguous in-memory buffer first (above roughly 100 KiB).
const MaxInMemoryFrameSize = 100 * 1024

// Message is anything a BasePacket's request/response/stream body can be:
// able to marshal itself to bytes and parse itself back out of them, the
// generic stand-in a hand-written or generated type implements.
type Message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Preparer reserves size bytes of write buffer and returns a writer for
// them, matching the Connection.Prepare contract. It is declared here,
// independent of the Connection type, so the codec has no dependency on the
// channel/sink package that defines Connection.
type Preparer interface {
	Prepare(size int) io.Writer
}

// Frame is one fully decoded logical frame: the envelope, its optional body
// (present for every Request, and for error-free Responses), and whatever
// opaque bytes trailed it.
type Frame struct {
	Base   BasePacket
	Body   []byte // nil if absent
	Stream []byte // nil if absent
}

// IsEmpty reports whether this was a size-0 sentinel frame (used by the
// fragmentation layer as an end-of-stream marker).
func (f Frame) IsEmpty() bool {
	return f.Base == BasePacket{} && f.Body == nil && f.Stream == nil
}

func readBlock(r *bytes.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("chanrpc/wire: reading block length: %w", err)
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("chanrpc/wire: reading block of %d bytes: %w", size, err)
	}
	return buf, nil
}

// ReadFrame decodes one logical frame from a buffer already known to hold
// exactly one frame's worth of bytes (the sequenced channel gets this
// straight from the transport; the fragmented channel gets it from its
// SequenceCollector). A zero-length buffer decodes to the empty sentinel
// Frame, mirroring the BasePacket codec's size-0 rule.
func ReadFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, nil
	}
	r := bytes.NewReader(data)

	baseBytes, err := readBlock(r)
	if err != nil {
		return Frame{}, err
	}
	if baseBytes == nil {
		return Frame{}, nil
	}
	base, err := Decode(baseBytes)
	if err != nil {
		return Frame{}, fmt.Errorf("chanrpc/wire: decoding base packet: %w", err)
	}

	var body []byte
	// A body block follows the envelope for every Request, and for any
	// Response that isn't carrying an error (an error response has no
	// payload, per the response lifecycle).
	if base.Direction == Request || !base.HasError() {
		body, err = readBlock(r)
		if err != nil {
			return Frame{}, fmt.Errorf("chanrpc/wire: decoding body: %w", err)
		}
	}

	var stream []byte
	if remaining := r.Len(); remaining > 0 {
		stream = make([]byte, remaining)
		if _, err := io.ReadFull(r, stream); err != nil {
			return Frame{}, fmt.Errorf("chanrpc/wire: reading trailing stream: %w", err)
		}
	}

	return Frame{Base: base, Body: body, Stream: stream}, nil
}

func writeBlock(buf *bytes.Buffer, data []byte) {
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(len(data)))
	buf.Write(size[:])
	buf.Write(data)
}

// WriteFrame serializes base, an optional body and an optional trailing
// stream through p, following the read order exactly (base, then body, then
// stream bytes run to frame end). Frames under MaxInMemoryFrameSize are
// assembled into one contiguous buffer before a single write call; larger
// ones are written straight through p to avoid holding the whole frame in
// memory at once.
func WriteFrame(p Preparer, base BasePacket, body []byte, stream io.Reader, streamSize int64) error {
	baseBytes, err := Encode(&base)
	if err != nil {
		return fmt.Errorf("chanrpc/wire: encoding base packet: %w", err)
	}

	hasBody := base.Direction == Request || !base.HasError()
	total := int64(4+len(baseBytes)) + streamSize
	if hasBody {
		total += int64(4 + len(body))
	}

	if total < MaxInMemoryFrameSize {
		var buf bytes.Buffer
		buf.Grow(int(total))
		writeBlock(&buf, baseBytes)
		if hasBody {
			writeBlock(&buf, body)
		}
		if stream != nil && streamSize > 0 {
			if _, err := io.CopyN(&buf, stream, streamSize); err != nil {
				return fmt.Errorf("chanrpc/wire: buffering trailing stream: %w", err)
			}
		}
		_, err := p.Prepare(buf.Len()).Write(buf.Bytes())
		return err
	}

	w := p.Prepare(int(total))
	head := new(bytes.Buffer)
	writeBlock(head, baseBytes)
	if hasBody {
		writeBlock(head, body)
	}
	if _, err := w.Write(head.Bytes()); err != nil {
		return fmt.Errorf("chanrpc/wire: writing frame head: %w", err)
	}
	if stream != nil && streamSize > 0 {
		if _, err := io.CopyN(w, stream, streamSize); err != nil {
			return fmt.Errorf("chanrpc/wire: streaming trailing bytes: %w", err)
		}
	}
	return nil
}
