package notify

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Deduplicating suppresses repeated overdue notices for the same loan within a TTL.
// Issue notices always pass through.
type Deduplicating struct {
	next circulation.Notifier
	sent *gocache.Cache
}

// NewDeduplicating wraps next. A loan is identified by recipient email, item title and due date.
func NewDeduplicating(next circulation.Notifier, ttl time.Duration) *Deduplicating {
	return &Deduplicating{
		next: next,
		sent: gocache.New(ttl, 2*ttl),
	}
}

// NotifyIssued implements circulation.Notifier.
func (d *Deduplicating) NotifyIssued(ctx context.Context, notice circulation.IssueNotice) error {
	return d.next.NotifyIssued(ctx, notice)
}

// NotifyOverdue implements circulation.Notifier. A failed delivery is not remembered.
func (d *Deduplicating) NotifyOverdue(ctx context.Context, notice circulation.OverdueNotice) error {
	key := overdueKey(notice)
	if err := d.sent.Add(key, struct{}{}, gocache.DefaultExpiration); err != nil {
		return nil // already sent within the TTL
	}

	if err := d.next.NotifyOverdue(ctx, notice); err != nil {
		d.sent.Delete(key)
		return err
	}

	return nil
}

func overdueKey(notice circulation.OverdueNotice) string {
	return strings.Join([]string{
		strings.ToLower(notice.Recipient.Email),
		notice.ItemTitle,
		notice.DueDate.UTC().Format(time.RFC3339),
	}, "|")
}
