package core

import (
	"sync"

	"github.com/dkeye/Campus/internal/domain"
)

// Event is an outbound notification produced by a component.
// The gateway dispatcher resolves the recipients and writes the frames.
type Event struct {
	Name string
	Data any
	// To lists explicit recipients. Ignored when All is set.
	To []domain.ConnID
	// All targets every identified connection.
	All bool
	// Except is never delivered to, whatever the target set.
	Except domain.ConnID
	// Ack correlates a reply with the request id it answers.
	Ack uint64
}

// Publisher accepts events from components.
type Publisher interface {
	Publish(Event)
}

// Bus is a single FIFO channel between components and the dispatcher,
// so per-recipient ordering follows publish order.
type Bus struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

func NewBus(size int) *Bus {
	return &Bus{
		ch:   make(chan Event, size),
		done: make(chan struct{}),
	}
}

// Publish blocks while the buffer is full, and drops once the bus is closed.
func (b *Bus) Publish(ev Event) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.ch <- ev:
	case <-b.done:
	}
}

func (b *Bus) Events() <-chan Event { return b.ch }

func (b *Bus) Done() <-chan struct{} { return b.done }

func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}
