package events

import (
	"fmt"
	"sync"

	"grove/pkg/logging"
)

// Type names one of the six lifecycle events the scheduler reports.
type Type string

const (
	TaskPending         Type = "taskPending"
	TaskProcessing      Type = "taskProcessing"
	TaskComplete        Type = "taskComplete"
	TaskError           Type = "taskError"
	TaskGraphProcessing Type = "taskGraphProcessing"
	TaskGraphComplete   Type = "taskGraphComplete"
)

// Event is one occurrence on the bus. Key is the task key for per-task
// events and empty for the two graph-wide events. Payload carries the
// event-specific detail (a TaskResult, a started/completed timestamp, etc)
// and is typed by convention rather than by the bus itself.
type Event struct {
	Type    Type
	Key     string
	Payload interface{}
}

// Handler observes events. It must not block for long: the bus calls it
// from a dedicated per-subscriber goroutine, not the emitting thread, so a
// slow handler only delays its own queue, but a handler that panics would
// otherwise take that goroutine down with it — the bus recovers from that
// on the subscriber's goroutine (invoke) and logs it.
type Handler func(Event)

const subscriberBuffer = 64

type subscription struct {
	ch   chan Event
	done chan struct{}
}

// Bus is the EventBus: a fan-out publisher with per-subscriber buffering.
// Emit never blocks on a subscriber; a subscriber whose buffer is full has
// the event dropped and logged rather than stalling the publisher (the
// scheduler's command loop, in practice).
type Bus struct {
	mu     sync.Mutex
	subs   map[int]*subscription
	nextID int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Subscribe registers handler and returns a function that unregisters it.
// The returned function is idempotent.
func (b *Bus) Subscribe(handler Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	sub := &subscription{ch: make(chan Event, subscriberBuffer), done: make(chan struct{})}
	b.subs[id] = sub
	b.mu.Unlock()

	go b.consume(sub, handler)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.done)
		})
	}
}

func (b *Bus) consume(sub *subscription, handler Handler) {
	for {
		select {
		case ev := <-sub.ch:
			b.invoke(handler, ev)
		case <-sub.done:
			return
		}
	}
}

func (b *Bus) invoke(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("EventBus", fmt.Errorf("%v", r), "subscriber panicked handling %s", ev.Type)
		}
	}()
	handler(ev)
}

// Emit publishes ev to every current subscriber. It returns immediately:
// delivery happens on each subscriber's own goroutine.
func (b *Bus) Emit(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			logging.Warn("EventBus", "dropping %s event (key=%s) for subscriber %d: buffer full", ev.Type, ev.Key, id)
		}
	}
}
