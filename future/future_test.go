package future

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitBlocksUntilComplete(t *testing.T) {
	f := New()
	go func() {
		time.Sleep(10 * time.Millisecond)
		f.CompleteWithStream([]byte("body"), []byte("stream"))
	}()

	body, stream, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(body) != "body" || string(stream) != "stream" {
		t.Fatalf("got body=%q stream=%q", body, stream)
	}
}

func TestWaitRespectsContext(t *testing.T) {
	f := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, _, err := f.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestSecondCompletionIsNoOp(t *testing.T) {
	f := New()
	f.CompleteWithStream([]byte("first"), nil)
	f.CompleteWithError(errors.New("too late"))

	body, _, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "first" {
		t.Fatalf("second completion overwrote the first: %q", body)
	}
}

func TestOnCompleteFiresSynchronouslyWhenAlreadySettled(t *testing.T) {
	f := New()
	f.CompleteWithStream([]byte("x"), nil)

	called := false
	f.OnComplete(func(*Future) { called = true })
	if !called {
		t.Fatal("OnComplete did not fire synchronously for an already-settled future")
	}
}

func TestOnCompleteFiresOnLaterCompletion(t *testing.T) {
	f := New()
	done := make(chan struct{})
	f.OnComplete(func(*Future) { close(done) })

	f.CompleteWithStream(nil, nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}
