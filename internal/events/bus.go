package events

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrBusClosed is returned by Publish once the consumer has stopped.
var ErrBusClosed = errors.New("events: bus closed")

// EventHandler consumes events from a Bus.
type EventHandler interface {
	Handle(Event)
}

// Sink is how transports hand events over. It may block while the bus
// is full.
type Sink func(Event)

// Bus moves events from transport goroutines to a single consumer.
//
// Transports call from whatever goroutine their library uses; the
// handler only ever runs on the goroutine executing Run, so it is never
// invoked concurrently and sees events in the order they were published.
type Bus struct {
	ch      chan Event
	handler EventHandler
	done    chan struct{}
	running atomic.Bool
}

// NewBus creates a bus with the given buffer size.
func NewBus(size int, handler EventHandler) *Bus {
	if size < 1 {
		size = 1
	}
	return &Bus{
		ch:      make(chan Event, size),
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Publish queues ev for the consumer. It blocks while the buffer is full
// and gives up when ctx is done or the consumer has stopped.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	select {
	case b.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.done:
		return ErrBusClosed
	}
}

// Sink returns a Sink bound to ctx. Events published after ctx is done
// are discarded.
func (b *Bus) Sink(ctx context.Context) Sink {
	return func(ev Event) {
		_ = b.Publish(ctx, ev)
	}
}

// Run consumes events until ctx is done. Events still buffered at that
// point are handled before Run returns. Run must be called at most once.
func (b *Bus) Run(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return errors.New("events: bus already running")
	}
	defer close(b.done)

	for {
		select {
		case ev := <-b.ch:
			b.handler.Handle(ev)
		case <-ctx.Done():
			b.drain()
			return nil
		}
	}
}

// Pending returns the number of queued events.
func (b *Bus) Pending() int {
	return len(b.ch)
}

func (b *Bus) drain() {
	for {
		select {
		case ev := <-b.ch:
			b.handler.Handle(ev)
		default:
			return
		}
	}
}
