package lifecycle

import (
	"sync"
	"time"

	"github.com/arcmesh/coregate/eventlog"
)

// Event is the payload type carried on a ComponentTree's event chain:
// lifecycle transitions (endpoint up/down, reload) that a consumer may
// want to observe independently of the structured log stream.
type Event struct {
	Time    time.Time
	Source  string
	Message string
}

// EventLog wraps an eventlog chain of Events with the mutex an emitter
// needs to be shared safely across the goroutines that call Emit.
type EventLog struct {
	mu      sync.Mutex
	head    *eventlog.Node[Event]
	tail    *eventlog.Node[Event]
	emitter eventlog.Emitter[Event]
}

// NewEventLog starts a fresh chain, optionally carrying forward the last
// event of a predecessor tree (reload) as the new chain's head so a
// consumer following the chain sees continuity across a reload.
func NewEventLog(carryFrom *eventlog.Node[Event]) *EventLog {
	seed := Event{Time: time.Now(), Source: "eventlog", Message: "chain started"}
	if carryFrom != nil {
		seed = carryFrom.Payload()
	}
	head, emitter := eventlog.NewChain(seed)
	return &EventLog{head: head, tail: head, emitter: emitter}
}

// Emit appends a new event to the chain.
func (l *EventLog) Emit(source, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	next, emitter := l.emitter.Emit(Event{Time: time.Now(), Source: source, Message: message})
	l.tail = next
	l.emitter = emitter
}

// Head returns the chain's first node, the starting point for a consumer
// that wants to walk every event ever emitted.
func (l *EventLog) Head() *eventlog.Node[Event] {
	return l.head
}

// LastNode returns the chain's current tail, used to seed a replacement
// tree's EventLog across a reload.
func (l *EventLog) LastNode() *eventlog.Node[Event] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tail
}
