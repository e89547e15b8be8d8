package events

import "credo/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Typed is implemented by events that render to the flat wire representation.
type Typed interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. journal, stream, webhooks).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(e Event) { f(e) }

// Fanout forwards every event to each emitter in order. Nil entries are skipped.
type Fanout []Emitter

func (f Fanout) Emit(e Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(e)
		}
	}
}

// Flatten renders an event into its wire form. Events that do not implement
// Typed produce an attribute-less record of their type.
func Flatten(e Event) *types.Event {
	if e == nil {
		return nil
	}
	if typed, ok := e.(Typed); ok {
		return typed.Event()
	}
	return &types.Event{Type: e.EventType(), Attributes: map[string]string{}}
}
