package notify

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

var ErrThrottled = errors.New("notice throttled")

// Throttled limits the rate of deliveries to next. Callers wait for their turn.
type Throttled struct {
	next    circulation.Notifier
	limiter *rate.Limiter
}

// NewThrottled wraps next with a token bucket of the given rate and burst.
func NewThrottled(next circulation.Notifier, limit rate.Limit, burst int) *Throttled {
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(limit, burst),
	}
}

// NotifyIssued implements circulation.Notifier.
func (t *Throttled) NotifyIssued(ctx context.Context, notice circulation.IssueNotice) error {
	if err := t.wait(ctx); err != nil {
		return err
	}

	return t.next.NotifyIssued(ctx, notice)
}

// NotifyOverdue implements circulation.Notifier.
func (t *Throttled) NotifyOverdue(ctx context.Context, notice circulation.OverdueNotice) error {
	if err := t.wait(ctx); err != nil {
		return err
	}

	return t.next.NotifyOverdue(ctx, notice)
}

// wait returns the context error when ctx ends first, ErrThrottled when the deadline cannot be met.
func (t *Throttled) wait(ctx context.Context) error {
	err := t.limiter.Wait(ctx)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return fmt.Errorf("%w: %w", ErrThrottled, err)
}
