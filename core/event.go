package core

import (
	"sync"
	"time"
)

// EventType labels a point in the batch execution lifecycle.
type EventType string

const (
	// EventBatchStart opens batch determination for a turn.
	EventBatchStart EventType = "batch_start"
	// EventStepIncluded reports a step added to the batch.
	EventStepIncluded EventType = "step_included"
	// EventStepSkipped reports a step elided by its skip predicate.
	EventStepSkipped EventType = "step_skipped"
	// EventBatchStop reports why the batch walk stopped.
	EventBatchStop EventType = "batch_stop"
	// EventBatchComplete closes the batch after the model call and merge.
	EventBatchComplete EventType = "batch_complete"
)

// Event is an executor lifecycle notification. Events are emitted in strict
// order: batch_start, then step_included/step_skipped per step, batch_stop,
// and batch_complete after the model call.
type Event struct {
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id,omitempty"`
	RouteID    string    `json:"route_id,omitempty"`
	StepID     string    `json:"step_id,omitempty"`
	StepIDs    []string  `json:"step_ids,omitempty"`
	StopReason string    `json:"stop_reason,omitempty"`
}

// NewEvent stamps an event of the given type with the current time.
func NewEvent(t EventType) Event {
	return Event{Type: t, Timestamp: time.Now().UTC()}
}

// Listener receives executor events. Listeners must not assume they run
// alone: a panicking listener is isolated and the rest still run.
type Listener func(Event)

// Subscription is the handle returned by Subscribe; Cancel removes the
// listener.
type Subscription struct {
	id       int
	registry *EventRegistry
}

// Cancel removes the subscribed listener. Safe to call more than once.
func (s *Subscription) Cancel() {
	if s == nil || s.registry == nil {
		return
	}
	s.registry.remove(s.id)
	s.registry = nil
}

// EventRegistry is an explicit subscriber registry keyed by handle. Emission
// is synchronous and ordered by subscription; listener panics are recovered
// so one failing listener cannot crash the executor or starve the rest.
type EventRegistry struct {
	mu        sync.RWMutex
	seq       int
	listeners map[int]Listener
	order     []int
}

// NewEventRegistry constructs an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{listeners: map[int]Listener{}}
}

// Subscribe registers a listener and returns its cancellation handle.
func (r *EventRegistry) Subscribe(fn Listener) *Subscription {
	if fn == nil {
		return &Subscription{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := r.seq
	r.listeners[id] = fn
	r.order = append(r.order, id)
	return &Subscription{id: id, registry: r}
}

// Emit dispatches the event to every listener in subscription order.
func (r *EventRegistry) Emit(ev Event) {
	if r == nil {
		return
	}
	r.mu.RLock()
	ids := append([]int(nil), r.order...)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		if fn, ok := r.listeners[id]; ok {
			listeners = append(listeners, fn)
		}
	}
	r.mu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() { _ = recover() }()
			fn(ev)
		}()
	}
}

func (r *EventRegistry) remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
