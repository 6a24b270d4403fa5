// Package emitter provides the listener registry shared by all signaling
// adapters: register, remove, emit.
package emitter

import "sync"

// Listener receives an event payload. The payload is nil for events that
// carry none (connect, disconnect).
type Listener func(data any)

// Emitter is a named-event listener registry. An event can be marked
// sticky: once emitted, listeners registered afterwards are invoked
// immediately with the retained payload. Adapters use this for the
// deferred "connect" emission, so a listener attached right after
// Connect() returns never misses the event regardless of goroutine
// scheduling.
type Emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[string]map[int]Listener
	sticky    map[string]any
}

func New() *Emitter {
	return &Emitter{
		listeners: make(map[string]map[int]Listener),
		sticky:    make(map[string]any),
	}
}

// On registers fn for event and returns a registration ID for Off.
// If the event is sticky and was already emitted, fn is invoked
// synchronously before On returns.
func (e *Emitter) On(event string, fn Listener) int {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[int]Listener)
	}
	e.listeners[event][id] = fn
	data, replay := e.sticky[event]
	e.mu.Unlock()

	if replay {
		fn(data)
	}
	return id
}

// Off removes a registration. Unknown IDs are ignored.
func (e *Emitter) Off(event string, id int) {
	e.mu.Lock()
	if m := e.listeners[event]; m != nil {
		delete(m, id)
		if len(m) == 0 {
			delete(e.listeners, event)
		}
	}
	e.mu.Unlock()
}

// Emit invokes every listener registered for event with data. Listeners
// run synchronously in the calling goroutine, in unspecified order.
func (e *Emitter) Emit(event string, data any) {
	for _, fn := range e.snapshot(event) {
		fn(data)
	}
}

// EmitSticky emits the event and retains its payload so late listeners
// still observe it. The retained state is dropped by Clear. Setting the
// sticky state and snapshotting the listeners happen under one lock
// acquisition, so a concurrently registering listener is either replayed
// by On or part of the snapshot, never both.
func (e *Emitter) EmitSticky(event string, data any) {
	e.mu.Lock()
	e.sticky[event] = data
	fns := e.snapshotLocked(event)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(data)
	}
}

// Clear forgets the retained payload of a sticky event.
func (e *Emitter) Clear(event string) {
	e.mu.Lock()
	delete(e.sticky, event)
	e.mu.Unlock()
}

// RemoveAll drops every listener and all sticky state.
func (e *Emitter) RemoveAll() {
	e.mu.Lock()
	e.listeners = make(map[string]map[int]Listener)
	e.sticky = make(map[string]any)
	e.mu.Unlock()
}

func (e *Emitter) snapshot(event string) []Listener {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(event)
}

// snapshotLocked requires e.mu held.
func (e *Emitter) snapshotLocked(event string) []Listener {
	m := e.listeners[event]
	if len(m) == 0 {
		return nil
	}
	out := make([]Listener, 0, len(m))
	for _, fn := range m {
		out = append(out, fn)
	}
	return out
}
