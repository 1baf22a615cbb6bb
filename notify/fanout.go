package notify

import (
	"context"
	"errors"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Fanout delivers every notice to all its notifiers and joins their errors.
type Fanout struct {
	notifiers []circulation.Notifier
}

// NewFanout creates a Fanout. Nil notifiers are skipped.
func NewFanout(notifiers ...circulation.Notifier) *Fanout {
	f := &Fanout{}
	for _, n := range notifiers {
		if n != nil {
			f.notifiers = append(f.notifiers, n)
		}
	}

	return f
}

// NotifyIssued implements circulation.Notifier.
func (f *Fanout) NotifyIssued(ctx context.Context, notice circulation.IssueNotice) error {
	var errs []error
	for _, n := range f.notifiers {
		errs = append(errs, n.NotifyIssued(ctx, notice))
	}

	return errors.Join(errs...)
}

// NotifyOverdue implements circulation.Notifier.
func (f *Fanout) NotifyOverdue(ctx context.Context, notice circulation.OverdueNotice) error {
	var errs []error
	for _, n := range f.notifiers {
		errs = append(errs, n.NotifyOverdue(ctx, notice))
	}

	return errors.Join(errs...)
}
