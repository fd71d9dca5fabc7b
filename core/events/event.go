package events

import (
	"sync"

	"trustescrow/core/types"
)

// Event represents a structured state change emitted by the settlement
// engines.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render the generic representation
// consumed by activity sinks.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. activity log,
// notification collaborators).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Buffer collects events in emission order until they are drained. The
// settlement façade hands a Buffer to engines while a transaction is staged
// and only publishes its contents once the transaction commits.
type Buffer struct {
	mu     sync.Mutex
	events []*types.Event
}

// Emit implements the Emitter interface. Events without a generic
// representation are dropped.
func (b *Buffer) Emit(evt Event) {
	typed, ok := evt.(Typed)
	if !ok {
		return
	}
	payload := typed.Event()
	if payload == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, payload.Clone())
	b.mu.Unlock()
}

// Drain returns the buffered events and resets the buffer.
func (b *Buffer) Drain() []*types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
