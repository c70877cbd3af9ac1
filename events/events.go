package events

import (
	"context"
	"sync"
)

// Event is a domain event raised by an aggregate.
type Event interface {
	EventName() string
}

// Publisher delivers domain events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, e Event) error {
	return nil
}

var (
	globalMu sync.RWMutex
	global   Publisher = nopPublisher{}
)

func P() Publisher {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return global
}

func ReplaceGlobals(p Publisher) {
	globalMu.Lock()
	defer globalMu.Unlock()
	global = p
}

// EventStore collects events raised by an aggregate until Notify
// hands them to the global publisher.
type EventStore interface {
	AddEvent(e Event)
	Events() []Event
	Notify()
}

func NewEventStore() EventStore {
	return &eventStore{}
}

type eventStore struct {
	mu     sync.Mutex
	events []Event
}

func (s *eventStore) AddEvent(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]Event, len(s.events))
	copy(events, s.events)
	return events
}

func (s *eventStore) Notify() {
	s.mu.Lock()
	events := s.events
	s.events = nil
	s.mu.Unlock()

	p := P()
	for _, e := range events {
		// publishers log their own failures
		p.Publish(context.Background(), e)
	}
}

// SimplePublisher keeps published events in memory.
type SimplePublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewSimplePublisher() *SimplePublisher {
	return &SimplePublisher{}
}

func (p *SimplePublisher) Publish(ctx context.Context, e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *SimplePublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	events := make([]Event, len(p.events))
	copy(events, p.events)
	return events
}
