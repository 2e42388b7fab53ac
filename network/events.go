package network

import (
	"context"
	"sync"

	"github.com/cmwaters/parley/pkg/queue"
)

// EventBuffer turns an unbounded queue of events into the channel returned by
// Substrate.Events. Emit never blocks, so substrates can emit from callbacks
// and while holding locks.
type EventBuffer struct {
	queue   *queue.Queue[Event]
	ch      chan Event
	closing chan struct{}
	once    sync.Once
}

func NewEventBuffer() *EventBuffer {
	b := &EventBuffer{
		queue:   queue.New[Event](0),
		ch:      make(chan Event),
		closing: make(chan struct{}),
	}
	go b.pump()
	return b
}

// Emit queues an event. Events emitted after Close are dropped.
func (b *EventBuffer) Emit(ev Event) {
	_ = b.queue.Push(ev)
}

func (b *EventBuffer) Events() <-chan Event {
	return b.ch
}

// Close stops delivery and closes the events channel. Undelivered events are
// discarded.
func (b *EventBuffer) Close() {
	b.once.Do(func() {
		close(b.closing)
		b.queue.Close()
	})
}

func (b *EventBuffer) pump() {
	defer close(b.ch)
	for {
		ev, err := b.queue.Pop(context.Background())
		if err != nil {
			return
		}
		select {
		case b.ch <- ev:
		case <-b.closing:
			return
		}
	}
}
