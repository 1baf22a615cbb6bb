package spies

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// NotifierSpy captures notices. Configured errors or panics are raised after the notice is recorded.
type NotifierSpy struct {
	mu         sync.Mutex
	issued     []circulation.IssueNotice
	overdue    []circulation.OverdueNotice
	ctxErrs    []error
	failWith   error
	panicWith  any
	onDelivery func()
}

// NewNotifierSpy creates a NotifierSpy that accepts every notice.
func NewNotifierSpy() *NotifierSpy {
	return &NotifierSpy{}
}

// FailWith makes every following delivery return err.
func (s *NotifierSpy) FailWith(err error) *NotifierSpy {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failWith = err

	return s
}

// PanicWith makes every following delivery panic with value.
func (s *NotifierSpy) PanicWith(value any) *NotifierSpy {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.panicWith = value

	return s
}

// OnDelivery registers a hook that runs on every delivery, before any configured failure.
func (s *NotifierSpy) OnDelivery(hook func()) *NotifierSpy {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onDelivery = hook

	return s
}

// NotifyIssued implements circulation.Notifier.
func (s *NotifierSpy) NotifyIssued(ctx context.Context, notice circulation.IssueNotice) error {
	s.mu.Lock()
	s.issued = append(s.issued, notice)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()

	return s.outcome()
}

// NotifyOverdue implements circulation.Notifier.
func (s *NotifierSpy) NotifyOverdue(ctx context.Context, notice circulation.OverdueNotice) error {
	s.mu.Lock()
	s.overdue = append(s.overdue, notice)
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()

	return s.outcome()
}

func (s *NotifierSpy) outcome() error {
	s.mu.Lock()
	hook, panicWith, failWith := s.onDelivery, s.panicWith, s.failWith
	s.mu.Unlock()

	if hook != nil {
		hook()
	}

	if panicWith != nil {
		panic(panicWith)
	}

	return failWith
}

// Issued returns a copy of the captured issue notices.
func (s *NotifierSpy) Issued() []circulation.IssueNotice {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]circulation.IssueNotice(nil), s.issued...)
}

// Overdue returns a copy of the captured overdue notices.
func (s *NotifierSpy) Overdue() []circulation.OverdueNotice {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]circulation.OverdueNotice(nil), s.overdue...)
}

// ContextErrors returns ctx.Err() as seen by each delivery, in delivery order.
func (s *NotifierSpy) ContextErrors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]error(nil), s.ctxErrs...)
}
