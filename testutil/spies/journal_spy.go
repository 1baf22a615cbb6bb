package spies

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// JournalSpy captures appended events.
type JournalSpy struct {
	mu       sync.Mutex
	events   circulation.Events
	appends  int
	failWith error
}

// NewJournalSpy creates an empty JournalSpy.
func NewJournalSpy() *JournalSpy {
	return &JournalSpy{}
}

// FailWith makes every following Append record nothing and return err.
func (s *JournalSpy) FailWith(err error) *JournalSpy {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failWith = err

	return s
}

// Append implements circulation.Journal.
func (s *JournalSpy) Append(_ context.Context, events ...circulation.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appends++
	if s.failWith != nil {
		return s.failWith
	}

	s.events = append(s.events, events...)

	return nil
}

// Events returns the captured events ordered by position.
func (s *JournalSpy) Events() circulation.Events {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := slices.Clone(s.events)
	slices.SortFunc(events, func(a, b circulation.Event) int {
		return cmp.Compare(a.SequencePosition(), b.SequencePosition())
	})

	return events
}

// EventTypes returns the types of the captured events ordered by position.
func (s *JournalSpy) EventTypes() []string {
	events := s.Events()
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType())
	}

	return types
}

// AppendCount returns how often Append was called.
func (s *JournalSpy) AppendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appends
}
