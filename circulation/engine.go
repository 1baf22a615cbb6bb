package circulation

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Engine executes the issue, return and reservation transitions over its Catalog.
//
// Every mutating operation runs under the Catalog's exclusive lock and either commits completely or
// leaves the state untouched. Journal appends, notifications and the on-loan gauge are handed to a
// single dispatch goroutine in commit order, so a slow collaborator never delays the caller. Use Flush
// to wait for them, for example before shutting down.
type Engine struct {
	catalog       *Catalog
	policies      PolicyTable
	handOffPolicy HandOffPolicy
	issuerName    string
	now           func() time.Time

	notifier         Notifier
	journal          Journal
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector

	effects *dispatcher

	// guarded by catalog.mu
	position uint64
	onLoan   int
}

// NewEngine creates an Engine with an empty Catalog.
func NewEngine(options ...Option) (*Engine, error) {
	e := &Engine{
		policies:      DefaultPolicies(),
		handOffPolicy: HandOffDropIneligible,
		issuerName:    DefaultIssuerName,
		now:           time.Now,
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, err
		}
	}

	e.catalog = newCatalog(e.now)
	e.effects = newDispatcher(e.deliver)

	return e, nil
}

// Catalog returns the read-only registry view of the engine.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Policies returns a copy of the policy table in use.
func (e *Engine) Policies() PolicyTable {
	return maps.Clone(e.policies)
}

// HandOffPolicy returns the configured hand-off policy.
func (e *Engine) HandOffPolicy() HandOffPolicy {
	return e.handOffPolicy
}

// ReturnResult describes a completed Return.
type ReturnResult struct {
	// Item is the state after the return and any hand-off.
	Item ItemView

	// WasOverdue reports whether the item was past its due date when it came back.
	WasOverdue bool

	// HandedOffTo is the waiter the item was re-issued to, or uuid.Nil.
	HandedOffTo uuid.UUID

	// Dropped lists waiters removed from the wait-list because they were at their limit.
	Dropped []uuid.UUID
}

// effects are the side effects of one committed operation, queued under the lock and delivered by the dispatcher.
type effects struct {
	events        Events
	issued        []IssueNotice
	handOffs      int
	onLoan        int
	onLoanChanged bool
}

func (fx effects) empty() bool {
	return len(fx.events) == 0 && len(fx.issued) == 0 && fx.handOffs == 0 && !fx.onLoanChanged
}

// RegisterItem adds an item. A zero id is replaced by a random one.
func (e *Engine) RegisterItem(ctx context.Context, id uuid.UUID, details ItemDetails) (ItemView, error) {
	ctx, obs := e.startOperation(ctx, OperationRegisterItem, nil)

	view, err := e.registerItem(ctx, id, details)
	e.finishOperation(ctx, obs, err, logAttrItemID, view.ID.String())
	if err != nil {
		return ItemView{}, err
	}

	return view, nil
}

func (e *Engine) registerItem(ctx context.Context, id uuid.UUID, details ItemDetails) (ItemView, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}

	i, err := newItem(id, details)
	if err != nil {
		return ItemView{ID: id}, err
	}

	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()

	if err = e.catalog.registerItem(i); err != nil {
		return ItemView{ID: id}, err
	}

	now := e.now()
	fx := effects{}
	fx.events = append(fx.events, ItemRegistered{
		EventHeader: e.header(now),
		ItemID:      id.String(),
		Title:       i.details.Title,
		Creator:     i.details.Creator,
		Category:    i.details.Category,
	})

	e.dispatch(ctx, fx)

	return i.view(now), nil
}

// RegisterHolder adds a holder of the given category. A zero id is replaced by a random one.
func (e *Engine) RegisterHolder(ctx context.Context, id uuid.UUID, contact Contact, category Category) (HolderView, error) {
	ctx, obs := e.startOperation(ctx, OperationRegisterHolder, nil)

	view, err := e.registerHolder(ctx, id, contact, category)
	e.finishOperation(ctx, obs, err, logAttrHolderID, view.ID.String())
	if err != nil {
		return HolderView{}, err
	}

	return view, nil
}

func (e *Engine) registerHolder(ctx context.Context, id uuid.UUID, contact Contact, category Category) (HolderView, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}

	h, err := newHolder(id, contact, category, e.policies)
	if err != nil {
		return HolderView{ID: id}, err
	}

	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()

	if err = e.catalog.registerHolder(h); err != nil {
		return HolderView{ID: id}, err
	}

	fx := effects{}
	fx.events = append(fx.events, HolderRegistered{
		EventHeader: e.header(e.now()),
		HolderID:    id.String(),
		Name:        h.contact.Name,
		Category:    h.CategoryLabel(),
	})

	e.dispatch(ctx, fx)

	return h.view(), nil
}

// DeregisterItem removes an item that is not on loan. Remaining waiters are dropped.
func (e *Engine) DeregisterItem(ctx context.Context, id uuid.UUID) error {
	ctx, obs := e.startOperation(ctx, OperationDeregisterItem, map[string]string{logAttrItemID: id.String()})

	err := e.deregisterItem(ctx, id)
	e.finishOperation(ctx, obs, err, logAttrItemID, id.String())
	if err != nil {
		return err
	}

	return nil
}

func (e *Engine) deregisterItem(ctx context.Context, id uuid.UUID) error {
	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()

	_, waiters, err := e.catalog.deregisterItem(id)
	if err != nil {
		return err
	}

	now := e.now()
	fx := effects{}
	for _, w := range waiters {
		fx.events = append(fx.events, ReservationDropped{
			EventHeader: e.header(now),
			ItemID:      id.String(),
			HolderID:    w.id.String(),
			Reason:      DropReasonItemDeregistered,
		})
	}

	fx.events = append(fx.events, ItemDeregistered{EventHeader: e.header(now), ItemID: id.String()})

	e.dispatch(ctx, fx)

	return nil
}

// DeregisterHolder removes a holder without loans and withdraws it from every wait-list.
func (e *Engine) DeregisterHolder(ctx context.Context, id uuid.UUID) error {
	ctx, obs := e.startOperation(ctx, OperationDeregisterHolder, map[string]string{logAttrHolderID: id.String()})

	err := e.deregisterHolder(ctx, id)
	e.finishOperation(ctx, obs, err, logAttrHolderID, id.String())
	if err != nil {
		return err
	}

	return nil
}

func (e *Engine) deregisterHolder(ctx context.Context, id uuid.UUID) error {
	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()

	_, leftWaitLists, err := e.catalog.deregisterHolder(id)
	if err != nil {
		return err
	}

	now := e.now()
	fx := effects{}
	for _, itemID := range leftWaitLists {
		fx.events = append(fx.events, ReservationDropped{
			EventHeader: e.header(now),
			ItemID:      itemID.String(),
			HolderID:    id.String(),
			Reason:      DropReasonHolderDeregistered,
		})
	}

	fx.events = append(fx.events, HolderDeregistered{EventHeader: e.header(now), HolderID: id.String()})

	e.dispatch(ctx, fx)

	return nil
}

// UpdateItemDetails replaces the descriptive attributes of an item.
func (e *Engine) UpdateItemDetails(ctx context.Context, id uuid.UUID, details ItemDetails) (ItemView, error) {
	ctx, obs := e.startOperation(ctx, OperationUpdateItem, map[string]string{logAttrItemID: id.String()})

	view, err := e.updateItemDetails(ctx, id, details)
	e.finishOperation(ctx, obs, err, logAttrItemID, id.String())
	if err != nil {
		return ItemView{}, err
	}

	return view, nil
}

func (e *Engine) updateItemDetails(ctx context.Context, id uuid.UUID, details ItemDetails) (ItemView, error) {
	details = details.Normalized()
	if err := details.Validate(); err != nil {
		return ItemView{}, err
	}

	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()

	i, err := e.catalog.item(id)
	if err != nil {
		return ItemView{}, err
	}

	// validated above, the setters cannot fail
	_ = i.setTitle(details.Title)
	_ = i.setCreator(details.Creator)
	_ = i.setCategory(details.Category)

	now := e.now()
	fx := effects{}
	fx.events = append(fx.events, ItemDetailsUpdated{
		EventHeader: e.header(now),
		ItemID:      id.String(),
		Title:       i.details.Title,
		Creator:     i.details.Creator,
		Category:    i.details.Category,
	})

	e.dispatch(ctx, fx)

	return i.view(now), nil
}

// UpdateHolderContact replaces the contact of a holder and re-indexes its email and phone.
func (e *Engine) UpdateHolderContact(ctx context.Context, id uuid.UUID, contact Contact) (HolderView, error) {
	ctx, obs := e.startOperation(ctx, OperationUpdateHolder, map[string]string{logAttrHolderID: id.String()})

	view, err := e.updateHolderContact(ctx, id, contact)
	e.finishOperation(ctx, obs, err, logAttrHolderID, id.String())
	if err != nil {
		return HolderView{}, err
	}

	return view, nil
}

func (e *Engine) updateHolderContact(ctx context.Context, id uuid.UUID, contact Contact) (HolderView, error) {
	contact = contact.Normalized()
	if err := contact.Validate(); err != nil {
		return HolderView{}, err
	}

	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()

	h, err := e.catalog.holder(id)
	if err != nil {
		return HolderView{}, err
	}

	if err = e.catalog.checkContactKeys(contact, h); err != nil {
		return HolderView{}, err
	}

	previous := h.contact

	// validated above, the setters cannot fail
	_ = h.setName(contact.Name)
	_ = h.setEmail(contact.Email)
	_ = h.setPhone(contact.Phone)

	e.catalog.reindexHolder(h, previous)

	fx := effects{}
	fx.events = append(fx.events, HolderContactUpdated{
		EventHeader: e.header(e.now()),
		HolderID:    id.String(),
		Name:        h.contact.Name,
	})

	e.dispatch(ctx, fx)

	return h.view(), nil
}

// Issue lends an available item to a holder below its limit.
// The due date is the current time plus the holder's loan days.
func (e *Engine) Issue(ctx context.Context, itemID, holderID uuid.UUID) (ItemView, error) {
	ctx, obs := e.startOperation(ctx, OperationIssue, map[string]string{
		logAttrItemID:   itemID.String(),
		logAttrHolderID: holderID.String(),
	})

	view, err := e.issue(ctx, itemID, holderID)
	e.finishOperation(ctx, obs, err, logAttrItemID, itemID.String(), logAttrHolderID, holderID.String())
	if err != nil {
		return ItemView{}, err
	}

	return view, nil
}

func (e *Engine) issue(ctx context.Context, itemID, holderID uuid.UUID) (ItemView, error) {
	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()

	i, err := e.catalog.item(itemID)
	if err != nil {
		return ItemView{}, err
	}

	h, err := e.catalog.holder(holderID)
	if err != nil {
		return ItemView{}, err
	}

	if i.isOnLoan() {
		return ItemView{}, fmt.Errorf("%w: item %s", ErrAlreadyIssued, itemID)
	}

	if !h.canBorrowMore() {
		return ItemView{}, fmt.Errorf("%w: holder %s has %d of %d items", ErrBorrowLimitExceeded, holderID, len(h.issued), h.MaxItems())
	}

	now := e.now()
	fx := effects{}
	if err = e.lend(i, h, now, false, &fx); err != nil {
		return ItemView{}, err
	}

	e.dispatch(ctx, fx)

	return i.view(now), nil
}

// Return takes an item back from its holder and hands it to the next eligible waiter.
func (e *Engine) Return(ctx context.Context, itemID, holderID uuid.UUID) (ReturnResult, error) {
	ctx, obs := e.startOperation(ctx, OperationReturn, map[string]string{
		logAttrItemID:   itemID.String(),
		logAttrHolderID: holderID.String(),
	})

	result, err := e.returnItem(ctx, itemID, holderID)
	e.finishOperation(ctx, obs, err, logAttrItemID, itemID.String(), logAttrHolderID, holderID.String())
	if err != nil {
		return ReturnResult{}, err
	}

	return result, nil
}

func (e *Engine) returnItem(ctx context.Context, itemID, holderID uuid.UUID) (ReturnResult, error) {
	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()

	i, err := e.catalog.item(itemID)
	if err != nil {
		return ReturnResult{}, err
	}

	h, err := e.catalog.holder(holderID)
	if err != nil {
		return ReturnResult{}, err
	}

	if !i.isOnLoan() || i.holder != h {
		return ReturnResult{}, fmt.Errorf("%w: item %s, holder %s", ErrNotIssuedToHolder, itemID, holderID)
	}

	if err = i.checkInvariant(); err != nil {
		return ReturnResult{}, err
	}

	now := e.now()
	result := ReturnResult{WasOverdue: i.isOverdue(now)}

	i.release()
	h.recordReturn(i)
	e.onLoan--

	fx := effects{onLoan: e.onLoan, onLoanChanged: true}
	fx.events = append(fx.events, ItemReturned{
		EventHeader: e.header(now),
		ItemID:      itemID.String(),
		HolderID:    holderID.String(),
		Overdue:     result.WasOverdue,
	})

	next, dropped, err := e.handOff(i, now, &fx)
	if err != nil {
		return ReturnResult{}, err
	}

	if next != nil {
		result.HandedOffTo = next.id
	}

	for _, d := range dropped {
		result.Dropped = append(result.Dropped, d.id)
	}

	result.Item = i.view(now)

	e.dispatch(ctx, fx)

	return result, nil
}

// handOff pops waiters of a just-released item. Eligibility is checked now, not at reservation time.
func (e *Engine) handOff(i *item, now time.Time, fx *effects) (*holder, []*holder, error) {
	var dropped []*holder

	for {
		next, ok := i.dequeueNextWaiter()
		if !ok {
			return nil, dropped, nil
		}

		if next.canBorrowMore() {
			if err := e.lend(i, next, now, true, fx); err != nil {
				return nil, dropped, err
			}

			fx.handOffs++

			return next, dropped, nil
		}

		dropped = append(dropped, next)
		fx.events = append(fx.events, ReservationDropped{
			EventHeader: e.header(now),
			ItemID:      i.id.String(),
			HolderID:    next.id.String(),
			Reason:      DropReasonBorrowLimit,
		})

		if e.handOffPolicy == HandOffDropIneligible {
			return nil, dropped, nil
		}
	}
}

// lend commits a loan on both sides and records its effects. The caller has checked the preconditions.
func (e *Engine) lend(i *item, h *holder, now time.Time, handOff bool, fx *effects) error {
	dueDate := now.AddDate(0, 0, h.MaxAllowedDays())

	if err := i.issueTo(h, dueDate); err != nil {
		return err
	}

	h.recordLoan(i)
	e.onLoan++

	fx.onLoan = e.onLoan
	fx.onLoanChanged = true
	fx.events = append(fx.events, ItemIssued{
		EventHeader: e.header(now),
		ItemID:      i.id.String(),
		HolderID:    h.id.String(),
		DueDate:     dueDate,
		HandOff:     handOff,
	})
	fx.issued = append(fx.issued, IssueNotice{
		Recipient:  h.contact,
		ItemTitle:  i.details.Title,
		IssuerName: e.issuerName,
	})

	return nil
}

// Reserve puts a holder on the wait-list of an item on loan. Reserving twice is a no-op.
func (e *Engine) Reserve(ctx context.Context, itemID, holderID uuid.UUID) (ItemView, error) {
	ctx, obs := e.startOperation(ctx, OperationReserve, map[string]string{
		logAttrItemID:   itemID.String(),
		logAttrHolderID: holderID.String(),
	})

	view, err := e.reserve(ctx, itemID, holderID)
	e.finishOperation(ctx, obs, err, logAttrItemID, itemID.String(), logAttrHolderID, holderID.String())
	if err != nil {
		return ItemView{}, err
	}

	return view, nil
}

func (e *Engine) reserve(ctx context.Context, itemID, holderID uuid.UUID) (ItemView, error) {
	e.catalog.mu.Lock()
	defer e.catalog.mu.Unlock()

	i, err := e.catalog.item(itemID)
	if err != nil {
		return ItemView{}, err
	}

	h, err := e.catalog.holder(holderID)
	if err != nil {
		return ItemView{}, err
	}

	if !i.isOnLoan() {
		return ItemView{}, fmt.Errorf("%w: item %s", ErrReservationNotNeeded, itemID)
	}

	now := e.now()
	fx := effects{}
	if i.enqueueWaiter(h) {
		fx.events = append(fx.events, ItemReserved{
			EventHeader:   e.header(now),
			ItemID:        itemID.String(),
			HolderID:      holderID.String(),
			QueuePosition: slices.Index(i.waitList, h) + 1,
		})
	}

	e.dispatch(ctx, fx)

	return i.view(now), nil
}

// IssuedItems returns snapshots of the items a holder has on loan.
func (e *Engine) IssuedItems(holderID uuid.UUID) ([]ItemView, error) {
	e.catalog.mu.RLock()
	defer e.catalog.mu.RUnlock()

	h, err := e.catalog.holder(holderID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	views := make([]ItemView, 0, len(h.issued))
	for _, i := range h.issued {
		views = append(views, i.view(now))
	}

	return views, nil
}

// header stamps the next position. The caller holds the exclusive lock.
func (e *Engine) header(now time.Time) EventHeader {
	e.position++

	return EventHeader{Position: e.position, OccurredAt: now}
}

// dispatch queues the effects of a committed operation for delivery. The caller holds the exclusive
// lock, so effects are delivered in commit order. The queue keeps the values of ctx but not its cancellation.
func (e *Engine) dispatch(ctx context.Context, fx effects) {
	if fx.empty() {
		return
	}

	e.effects.enqueue(delivery{ctx: context.WithoutCancel(ctx), fx: fx})
}

// Flush waits until the effects of every operation that returned before the call have been delivered.
func (e *Engine) Flush(ctx context.Context) error {
	return e.effects.flush(ctx)
}

// deliver runs on the dispatch goroutine. Failures are logged and never returned.
func (e *Engine) deliver(ctx context.Context, fx effects) {
	for _, event := range fx.events {
		switch ev := event.(type) {
		case ReservationDropped:
			e.logInfo(ctx, logMsgReservationDropped, logAttrItemID, ev.ItemID, logAttrHolderID, ev.HolderID, logAttrReason, ev.Reason)
		case ItemIssued:
			if ev.HandOff {
				e.logInfo(ctx, logMsgHandOff, logAttrItemID, ev.ItemID, logAttrHolderID, ev.HolderID)
			}
		}
	}

	for range fx.handOffs {
		e.incrementCounter(ctx, HandOffsMetric, map[string]string{LabelOperation: OperationReturn})
	}

	if fx.onLoanChanged {
		e.recordValue(ctx, ItemsOnLoanMetric, float64(fx.onLoan), nil)
	}

	if len(fx.events) > 0 && e.journal != nil {
		e.appendToJournal(ctx, fx.events)
	}

	for _, notice := range fx.issued {
		e.notify(ctx, noticeKindIssued, func(n Notifier) error { return n.NotifyIssued(ctx, notice) })
	}
}

func (e *Engine) appendToJournal(ctx context.Context, events Events) {
	defer func() {
		if r := recover(); r != nil {
			e.logError(ctx, logMsgJournalPanicked, fmt.Errorf("%v", r), logAttrEventCount, len(events))
		}
	}()

	if err := e.journal.Append(ctx, events...); err != nil {
		e.logError(ctx, logMsgJournalFailed, err, logAttrEventCount, len(events))
	}
}

// notify calls the notifier and reports whether delivery succeeded.
func (e *Engine) notify(ctx context.Context, kind string, deliver func(Notifier) error) (delivered bool) {
	if e.notifier == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			delivered = false
			e.logError(ctx, logMsgNotifyPanicked, fmt.Errorf("%v", r), logAttrNotice, kind)
			e.incrementCounter(ctx, NotificationsFailedMetric, map[string]string{LabelNoticeKind: kind})
		}
	}()

	if err := deliver(e.notifier); err != nil {
		e.logWarn(ctx, logMsgNotifyFailed, logAttrNotice, kind, logAttrError, err.Error())
		e.incrementCounter(ctx, NotificationsFailedMetric, map[string]string{LabelNoticeKind: kind})

		return false
	}

	return true
}
