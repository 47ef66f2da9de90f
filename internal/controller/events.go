package controller

import "sync"

// Event is a named driver event that callback functions can be
// connected to. Handlers run synchronously on the driver loop, so they
// should hand off to a channel or goroutine if they do real work.
type Event struct {
	mu       sync.Mutex
	nextID   int
	handlers map[int]func()
}

// Connect registers a callback and returns a handle for Disconnect.
func (e *Event) Connect(fn func()) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handlers == nil {
		e.handlers = make(map[int]func())
	}
	id := e.nextID
	e.nextID++
	e.handlers[id] = fn
	return id
}

// Disconnect removes a previously connected callback.
func (e *Event) Disconnect(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, id)
}

func (e *Event) emit() {
	e.mu.Lock()
	fns := make([]func(), 0, len(e.handlers))
	for _, fn := range e.handlers {
		fns = append(fns, fn)
	}
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Events groups the driver's observable events.
type Events struct {
	// Per-frame data events.
	HandReceived      Event
	LeftHandReceived  Event
	RightHandReceived Event

	// Data-timeout events. A hand is lost when no frame for it arrives
	// within the loss window.
	LeftHandLost  Event
	RightHandLost Event
	DataLost      Event

	// Link events derived from dongle print messages.
	LeftConnected      Event
	RightConnected     Event
	LeftDisconnected   Event
	RightDisconnected  Event
	DongleDisconnected Event
}
