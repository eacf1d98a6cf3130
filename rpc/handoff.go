package rpc

import (
	"context"
	"sync"

	"github.com/wippyai/wasm-executor/errors"
)

// PollState is the observable state of a Handoff.
type PollState int

const (
	// Empty means no value has been produced yet.
	Empty PollState = iota
	// Ready means the value was taken by this poll.
	Ready
	// Disconnected means the producer is gone and no value is pending.
	Disconnected
)

func (s PollState) String() string {
	switch s {
	case Empty:
		return "empty"
	case Ready:
		return "ready"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Handoff passes a single value from a producer goroutine to a consumer.
// A producer that exits without sending leaves the handoff disconnected.
type Handoff[T any] struct {
	ch   chan T
	done chan struct{} // closed once the producer has sent or gone
	once sync.Once
}

// NewHandoff returns an empty handoff.
func NewHandoff[T any]() *Handoff[T] {
	return &Handoff[T]{ch: make(chan T, 1), done: make(chan struct{})}
}

// Send delivers v. Only the first Send or Close has any effect.
func (h *Handoff[T]) Send(v T) {
	h.once.Do(func() {
		h.ch <- v
		close(h.ch)
		close(h.done)
	})
}

// Close marks the producer as gone. Producers defer it.
func (h *Handoff[T]) Close() {
	h.once.Do(func() {
		close(h.ch)
		close(h.done)
	})
}

// Poll takes the value if one is ready without blocking. The value is
// delivered once; later polls report Disconnected.
func (h *Handoff[T]) Poll() (T, PollState) {
	select {
	case v, ok := <-h.ch:
		if !ok {
			var zero T
			return zero, Disconnected
		}
		return v, Ready
	default:
		var zero T
		return zero, Empty
	}
}

// Wait blocks until the producer has finished or ctx is done, then takes the
// outcome through Poll.
func (h *Handoff[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	select {
	case <-h.done:
	case <-ctx.Done():
		return zero, errors.Transport("handoff", ctx.Err())
	}

	v, st := h.Poll()
	switch st {
	case Ready:
		return v, nil
	case Disconnected:
		return zero, errors.Transport("handoff", errors.New(errors.PhaseTransport, errors.KindTransport).
			Detail("producer disconnected without a result").Build())
	default:
		return zero, errors.Transport("handoff", errors.New(errors.PhaseTransport, errors.KindTransport).
			Detail("handoff %s after producer finished", st).Build())
	}
}
