package circulation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Statistics is a consistent snapshot of catalog-wide counts.
type Statistics struct {
	TakenAt             time.Time
	TotalItems          int
	Available           int
	OnLoan              int
	Overdue             int
	Holders             int
	PendingReservations int
}

// OverdueItems returns the items on loan whose due date is before now, ordered by title.
func (e *Engine) OverdueItems(now time.Time) []ItemView {
	e.catalog.mu.RLock()
	defer e.catalog.mu.RUnlock()

	return e.overdueItems(now)
}

func (e *Engine) overdueItems(now time.Time) []ItemView {
	result := make([]ItemView, 0)
	for _, i := range e.catalog.sortedItems() {
		if i.isOverdue(now) {
			result = append(result, i.view(now))
		}
	}

	return result
}

// Statistics counts items by state, holders and waiting reservations as of now.
func (e *Engine) Statistics(now time.Time) Statistics {
	e.catalog.mu.RLock()
	defer e.catalog.mu.RUnlock()

	stats := Statistics{
		TakenAt:    now,
		TotalItems: len(e.catalog.items),
		Holders:    len(e.catalog.holders),
	}

	for _, i := range e.catalog.items {
		if i.isOnLoan() {
			stats.OnLoan++
		} else {
			stats.Available++
		}

		if i.isOverdue(now) {
			stats.Overdue++
		}

		stats.PendingReservations += len(i.waitList)
	}

	return stats
}

// OverdueReport lists the overdue items for a privileged requester.
func (e *Engine) OverdueReport(ctx context.Context, requesterID uuid.UUID) ([]ItemView, error) {
	ctx, obs := e.startOperation(ctx, OperationOverdueReport, map[string]string{logAttrHolderID: requesterID.String()})

	items, err := e.overdueReport(requesterID)
	e.finishOperation(ctx, obs, err, logAttrHolderID, requesterID.String())

	return items, err
}

func (e *Engine) overdueReport(requesterID uuid.UUID) ([]ItemView, error) {
	e.catalog.mu.RLock()
	defer e.catalog.mu.RUnlock()

	if err := e.authorize(requesterID); err != nil {
		return nil, err
	}

	return e.overdueItems(e.now()), nil
}

// ListHolders lists every holder ordered by name for a privileged requester.
func (e *Engine) ListHolders(ctx context.Context, requesterID uuid.UUID) ([]HolderView, error) {
	ctx, obs := e.startOperation(ctx, OperationListHolders, map[string]string{logAttrHolderID: requesterID.String()})

	holders, err := e.listHolders(requesterID)
	e.finishOperation(ctx, obs, err, logAttrHolderID, requesterID.String())

	return holders, err
}

func (e *Engine) listHolders(requesterID uuid.UUID) ([]HolderView, error) {
	e.catalog.mu.RLock()
	defer e.catalog.mu.RUnlock()

	if err := e.authorize(requesterID); err != nil {
		return nil, err
	}

	sorted := e.catalog.sortedHolders()
	views := make([]HolderView, 0, len(sorted))
	for _, h := range sorted {
		views = append(views, h.view())
	}

	return views, nil
}

// authorize requires a registered privileged requester. The caller holds c.mu.
func (e *Engine) authorize(requesterID uuid.UUID) error {
	requester, err := e.catalog.holder(requesterID)
	if err != nil {
		return err
	}

	if !requester.isPrivileged() {
		return fmt.Errorf("%w: holder %s is %s", ErrUnauthorized, requesterID, requester.CategoryLabel())
	}

	return nil
}

// ScanOverdue sends an overdue notice to the holder of every overdue item and returns how many were delivered.
// Notices are collected under the read lock and sent after it is released. A done context stops the
// remaining deliveries and is returned as the error.
func (e *Engine) ScanOverdue(ctx context.Context) (int, error) {
	ctx, obs := e.startOperation(ctx, OperationScanOverdue, nil)

	notices := e.collectOverdueNotices()

	delivered := 0
	var err error
	for _, notice := range notices {
		if err = ctx.Err(); err != nil {
			break
		}

		if e.notify(ctx, noticeKindOverdue, func(n Notifier) error { return n.NotifyOverdue(ctx, notice) }) {
			delivered++
		}
	}

	e.finishOperation(ctx, obs, err, logAttrOverdue, len(notices), logAttrNotified, delivered)
	e.logInfo(ctx, logMsgOverdueScan, logAttrOverdue, len(notices), logAttrNotified, delivered)

	return delivered, err
}

func (e *Engine) collectOverdueNotices() []OverdueNotice {
	e.catalog.mu.RLock()
	defer e.catalog.mu.RUnlock()

	now := e.now()
	notices := make([]OverdueNotice, 0)
	for _, i := range e.catalog.sortedItems() {
		if !i.isOverdue(now) {
			continue
		}

		notices = append(notices, OverdueNotice{
			Recipient: i.holder.contact,
			ItemTitle: i.details.Title,
			DueDate:   i.dueDate,
		})
	}

	return notices
}
