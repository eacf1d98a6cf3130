package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/wippyai/wasm-executor/errors"
)

func TestHandoffPoll(t *testing.T) {
	h := NewHandoff[int]()
	if _, st := h.Poll(); st != Empty {
		t.Fatalf("state = %s, want empty", st)
	}
	h.Send(7)
	v, st := h.Poll()
	if st != Ready || v != 7 {
		t.Fatalf("Poll = %d, %s", v, st)
	}
	if _, st := h.Poll(); st != Disconnected {
		t.Errorf("value should be delivered once, got %s", st)
	}
}

func TestHandoffSendOnce(t *testing.T) {
	h := NewHandoff[string]()
	h.Send("first")
	h.Send("second")
	h.Close()
	if v, st := h.Poll(); st != Ready || v != "first" {
		t.Errorf("Poll = %q, %s", v, st)
	}
}

func TestHandoffDisconnected(t *testing.T) {
	h := NewHandoff[int]()
	go func() {
		defer h.Close()
	}()
	_, err := h.Wait(context.Background())
	if !errors.Is(err, errors.ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestHandoffWaitContext(t *testing.T) {
	h := NewHandoff[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := h.Wait(ctx); !errors.Is(err, errors.ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestHandoffWaitAcrossGoroutines(t *testing.T) {
	h := NewHandoff[int]()
	go func() {
		defer h.Close()
		time.Sleep(5 * time.Millisecond)
		h.Send(42)
	}()
	v, err := h.Wait(context.Background())
	if err != nil || v != 42 {
		t.Errorf("Wait = %d, %v", v, err)
	}
}

func TestHandoffWaitTakesValueOnce(t *testing.T) {
	h := NewHandoff[int]()
	h.Send(3)
	if v, err := h.Wait(context.Background()); err != nil || v != 3 {
		t.Fatalf("Wait = %d, %v", v, err)
	}
	if _, st := h.Poll(); st != Disconnected {
		t.Errorf("state after Wait = %s, want disconnected", st)
	}
	if _, err := h.Wait(context.Background()); !errors.Is(err, errors.ErrTransport) {
		t.Errorf("second Wait should report a spent handoff, got %v", err)
	}
}
