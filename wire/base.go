// Package wire implements the on-the-wire envelope and framing described by
// the runtime's transport contract: a fixed-format BasePacket header,
// followed by an optional request body and an optional trailing opaque
// stream, all length-prefixed.
//
// BasePacket itself is encoded as a small JSON document rather than a
// generated binary message, the same RawMessage/JSON approach
// golang.org/x/tools/internal/jsonrpc2_v2 uses for its own envelope
// (messages.go EncodeMessage/DecodeMessage) instead of inventing a bespoke
// binary layout for seven fields.
package wire

import "encoding/json"

// Direction distinguishes an outbound call from its reply.
type Direction uint8

const (
	// Request marks a packet as an outbound call awaiting a response.
	Request Direction = iota
	// Response marks a packet as the reply to a previously issued Request.
	Response
)

func (d Direction) String() string {
	if d == Response {
		return "response"
	}
	return "request"
}

// BasePacket is the fixed envelope carried by every frame. PacketID of zero
// means fire-and-forget: no response is expected and none will be sent.
type BasePacket struct {
	ServiceID   uint32    `json:"service_id"`
	MethodIndex uint32    `json:"method_index"`
	PacketID    uint32    `json:"packet_id"`
	Direction   Direction `json:"direction"`
	CallerID    string    `json:"caller_id,omitempty"`

	// Error is a human-readable diagnostic when ErrorID is zero, or the
	// serialized bytes of a registered schema message when it is not.
	Error   string `json:"error,omitempty"`
	ErrorID uint32 `json:"error_id,omitempty"`
}

// HasError reports whether the packet carries any error information.
func (b *BasePacket) HasError() bool {
	return b.Error != "" || b.ErrorID != 0
}

// Clone returns a copy of b, for building a response envelope from the
// request it answers without mutating the request's own copy.
func (b BasePacket) Clone() BasePacket {
	return b
}

// Encode marshals the envelope into its wire form.
func Encode(b *BasePacket) ([]byte, error) {
	return json.Marshal(b)
}

// Decode unmarshals the wire form produced by Encode. An empty data slice
// (size-0 frame) decodes to the zero BasePacket, matching the sentinel used
// by the fragmentation layer to signal "no more data this round".
func Decode(data []byte) (BasePacket, error) {
	var b BasePacket
	if len(data) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(data, &b); err != nil {
		return BasePacket{}, err
	}
	return b, nil
}
