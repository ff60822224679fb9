// Package echo is a hand-written stand-in for what the schema-compiler
// plugin would otherwise generate from a service definition:
// one small bidirectional service used to exercise the runtime end to end.
package echo

import (
	"encoding/json"
	"fmt"
)

// Request carries the text a caller wants echoed back.
type Request struct {
	Text string `json:"text"`
}

func (r *Request) Marshal() ([]byte, error)    { return json.Marshal(r) }
func (r *Request) Unmarshal(b []byte) error {
	if len(b) == 0 {
		*r = Request{}
		return nil
	}
	return json.Unmarshal(b, r)
}

// Response carries the echoed text and its length.
type Response struct {
	Text   string `json:"text"`
	Length int    `json:"length"`
}

func (r *Response) Marshal() ([]byte, error) { return json.Marshal(r) }
func (r *Response) Unmarshal(b []byte) error {
	if len(b) == 0 {
		*r = Response{}
		return nil
	}
	return json.Unmarshal(b, r)
}

// StreamRequest is Request plus a trailing opaque stream, for the
// EchoStream method.
type StreamRequest struct {
	Request
	stream []byte
}

func (r *StreamRequest) SetStream(data []byte) { r.stream = data }
func (r *StreamRequest) Stream() []byte        { return r.stream }

// StreamResponse is Response plus a trailing opaque stream.
type StreamResponse struct {
	Response
	stream []byte
}

func (r *StreamResponse) SetStream(data []byte) { r.stream = data }
func (r *StreamResponse) Stream() []byte        { return r.stream }

// NotFound is a structured exception a method can return instead of a
// freeform error, to exercise the CRC32-keyed exception registry.
type NotFound struct {
	Name string `json:"name"`
}

func (e *NotFound) Error() string             { return fmt.Sprintf("echo: %q not found", e.Name) }
func (e *NotFound) TypeName() string          { return "echo.NotFound" }
func (e *NotFound) Marshal() ([]byte, error)   { return json.Marshal(e) }
func (e *NotFound) Unmarshal(b []byte) error   { return json.Unmarshal(b, e) }
