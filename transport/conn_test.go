package transport

import (
	"io"
	"testing"
	"time"
)

func TestConnRoundTripOverPipe(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()
	defer b.Close()

	received := make(chan []byte, 1)
	errs := make(chan error, 1) // holds the terminal error sent when b closes
	b.Receive(func(stream []byte, err error) {
		if err != nil {
			errs <- err
			return
		}
		received <- stream
	})

	payload := []byte("hello over the wire")
	w := a.Prepare(len(payload))
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != string(payload) {
			t.Fatalf("got %q want %q", got, payload)
		}
	case err := <-errs:
		t.Fatalf("unexpected receive error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestConnReceiveReportsErrorOnClose(t *testing.T) {
	a, b := NewPipe()
	defer a.Close()

	errCh := make(chan error, 1)
	b.Receive(func(stream []byte, err error) {
		if err != nil {
			errCh <- err
		}
	})

	b.Close()

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected a non-nil error")
		}
		if err != io.EOF && err.Error() == "" {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close notification")
	}
}
