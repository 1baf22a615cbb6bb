package circulation

import (
	"context"
	"time"
)

// IssueNotice tells a holder that an item was lent to them.
type IssueNotice struct {
	Recipient  Contact
	ItemTitle  string
	IssuerName string
}

// OverdueNotice tells a holder that an item is past its due date.
type OverdueNotice struct {
	Recipient Contact
	ItemTitle string
	DueDate   time.Time
}

// Notifier delivers notices to holders.
// Issue notices are delivered from the engine's dispatch goroutine and never delay the operation that
// caused them. Overdue notices are delivered by ScanOverdue on its caller's goroutine, so implementations
// must be safe for concurrent use. Returned errors and panics are logged, never propagated.
type Notifier interface {
	NotifyIssued(ctx context.Context, notice IssueNotice) error
	NotifyOverdue(ctx context.Context, notice OverdueNotice) error
}

// Journal receives committed transitions from the engine's dispatch goroutine, one Append at a time
// and in position order. Append errors are logged by the engine and the transition stays committed.
type Journal interface {
	Append(ctx context.Context, events ...Event) error
}
