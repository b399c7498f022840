package runtime

import (
	"collab-realtime/domain/event"
	"context"
	"sync"

	"github.com/samber/lo"
)

// recordingSink keeps every event it receives, unwrapped from its frame.
type recordingSink struct {
	mu     sync.Mutex
	name   string
	events []event.DomainEvent
	closed bool
}

func newRecordingSink(name string) *recordingSink {
	return &recordingSink{name: name}
}

func (s *recordingSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event.Unwrap(e))
	return nil
}

func (s *recordingSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *recordingSink) received() []event.DomainEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.DomainEvent(nil), s.events...)
}

func (s *recordingSink) named(name event.Name) []event.DomainEvent {
	return lo.Filter(s.received(), func(e event.DomainEvent, _ int) bool {
		return e.Name() == name
	})
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
