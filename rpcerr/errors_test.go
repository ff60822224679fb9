package rpcerr

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/chanrpc/chanrpc/wire"
)

type fakeNotFound struct {
	Name string `json:"name"`
}

func (e *fakeNotFound) Error() string           { return "not found: " + e.Name }
func (e *fakeNotFound) TypeName() string        { return "rpcerr_test.fakeNotFound" }
func (e *fakeNotFound) Marshal() ([]byte, error) { return json.Marshal(e) }
func (e *fakeNotFound) Unmarshal(b []byte) error { return json.Unmarshal(b, e) }

func init() {
	RegisterException(func() *fakeNotFound { return &fakeNotFound{} })
}

func TestStructuredExceptionRoundTrip(t *testing.T) {
	var base wire.BasePacket
	if err := BindStructured(&base, &fakeNotFound{Name: "widget"}); err != nil {
		t.Fatalf("BindStructured: %v", err)
	}
	if !base.HasError() {
		t.Fatal("expected HasError after BindStructured")
	}

	got := MakeException(base)
	var structured *StructuredRemoteError
	if !errors.As(got, &structured) {
		t.Fatalf("expected *StructuredRemoteError, got %T: %v", got, got)
	}
	decoded, ok := structured.Message.(*fakeNotFound)
	if !ok {
		t.Fatalf("expected *fakeNotFound, got %T", structured.Message)
	}
	if decoded.Name != "widget" {
		t.Fatalf("got name %q", decoded.Name)
	}
}

func TestFreeformExceptionRoundTrip(t *testing.T) {
	var base wire.BasePacket
	BindFreeform(&base, "first failure")
	BindFreeform(&base, "second failure")

	got := MakeException(base)
	var freeform *FreeformRemoteError
	if !errors.As(got, &freeform) {
		t.Fatalf("expected *FreeformRemoteError, got %T", got)
	}
	if freeform.Text != "first failure\nsecond failure" {
		t.Fatalf("got text %q", freeform.Text)
	}
}

func TestAsSchemaError(t *testing.T) {
	err := error(&fakeNotFound{Name: "gadget"})
	se, ok := AsSchemaError(err)
	if !ok {
		t.Fatal("expected fakeNotFound to be recognized as a SchemaError")
	}
	if se.TypeName() != "rpcerr_test.fakeNotFound" {
		t.Fatalf("got type name %q", se.TypeName())
	}
}

func TestDuplicatePacketIDMessage(t *testing.T) {
	err := &DuplicatePacketID{PacketID: 42}
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}
