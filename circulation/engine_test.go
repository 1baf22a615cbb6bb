package circulation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/testutil/spies"
)

func Test_Issue_Success_DueDateFollowsHolderPolicy(t *testing.T) {
	// arrange
	f := givenEngine(t)
	item := givenItem(t, f, "The Dispossessed")
	reader := givenHolder(t, f, circulation.CategoryStudent)

	// act
	issued, err := f.engine.Issue(context.Background(), item.ID, reader.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, circulation.StateOnLoan, issued.State)
	assert.Equal(t, reader.ID, issued.HolderID)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 14), issued.DueDate)
	assert.Equal(t, []uuid.UUID{item.ID}, findHolder(t, f, reader.ID).IssuedItemIDs)

	whenEffectsDelivered(t, f)
	require.Len(t, f.notifier.Issued(), 1)
	assert.Equal(t, circulation.IssueNotice{
		Recipient:  reader.Contact,
		ItemTitle:  "The Dispossessed",
		IssuerName: "City Library",
	}, f.notifier.Issued()[0])
}

func Test_Issue_FailsWithNotFound_ForUnknownItemOrHolder(t *testing.T) {
	f := givenEngine(t)
	item := givenItem(t, f, "The Lathe of Heaven")
	reader := givenHolder(t, f, circulation.CategoryStudent)

	_, err := f.engine.Issue(context.Background(), uuid.New(), reader.ID)
	assert.ErrorIs(t, err, circulation.ErrItemNotFound)
	assert.ErrorIs(t, err, circulation.ErrNotFound)

	_, err = f.engine.Issue(context.Background(), item.ID, uuid.New())
	assert.ErrorIs(t, err, circulation.ErrHolderNotFound)
	assert.ErrorIs(t, err, circulation.ErrNotFound)

	assert.Equal(t, circulation.StateAvailable, findItem(t, f, item.ID).State)
}

func Test_Issue_FailsWithAlreadyIssued_WhenItemOnLoan(t *testing.T) {
	// arrange
	f := givenEngine(t)
	item := givenItem(t, f, "Always Coming Home")
	first := givenHolder(t, f, circulation.CategoryStudent)
	second := givenHolder(t, f, circulation.CategoryStudent)
	givenIssued(t, f, item.ID, first.ID)

	// act
	_, err := f.engine.Issue(context.Background(), item.ID, second.ID)

	// assert
	assert.ErrorIs(t, err, circulation.ErrAlreadyIssued)
	assert.Equal(t, first.ID, findItem(t, f, item.ID).HolderID)
	assert.Empty(t, findHolder(t, f, second.ID).IssuedItemIDs)
}

func Test_Issue_BorrowLimit_ReturnThenRetrySucceeds(t *testing.T) {
	// arrange
	f := givenEngine(t)
	reader := givenHolder(t, f, circulation.CategoryStudent)
	items := []circulation.ItemView{
		givenItem(t, f, "A Wizard of Earthsea"),
		givenItem(t, f, "The Tombs of Atuan"),
		givenItem(t, f, "The Farthest Shore"),
	}
	fourth := givenItem(t, f, "Tehanu")

	for _, item := range items {
		givenIssued(t, f, item.ID, reader.ID)
	}

	// act
	_, errAtLimit := f.engine.Issue(context.Background(), fourth.ID, reader.ID)
	_, errReturn := f.engine.Return(context.Background(), items[0].ID, reader.ID)
	_, errRetry := f.engine.Issue(context.Background(), fourth.ID, reader.ID)

	// assert
	assert.ErrorIs(t, errAtLimit, circulation.ErrBorrowLimitExceeded)
	assert.NoError(t, errReturn)
	assert.NoError(t, errRetry)
	assert.ElementsMatch(t, []uuid.UUID{items[1].ID, items[2].ID, fourth.ID}, findHolder(t, f, reader.ID).IssuedItemIDs)
}

func Test_Issue_ConcurrentRequestsForOneItem_ExactlyOneSucceeds(t *testing.T) {
	// arrange
	const contenders = 64

	f := givenEngine(t)
	item := givenItem(t, f, "The Word for World Is Forest")
	readers := make([]circulation.HolderView, contenders)
	for idx := range readers {
		readers[idx] = givenHolder(t, f, circulation.CategoryTeacher)
	}

	start := make(chan struct{})
	errs := make([]error, contenders)
	var wg sync.WaitGroup

	// act
	for idx := range readers {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			_, errs[idx] = f.engine.Issue(context.Background(), item.ID, readers[idx].ID)
		}(idx)
	}

	close(start)
	wg.Wait()

	// assert
	successes := 0
	winner := uuid.Nil
	for idx, err := range errs {
		if err == nil {
			successes++
			winner = readers[idx].ID

			continue
		}

		assert.ErrorIs(t, err, circulation.ErrAlreadyIssued)
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, winner, findItem(t, f, item.ID).HolderID)
	whenEffectsDelivered(t, f)
	assert.Len(t, f.notifier.Issued(), 1)
}

func Test_Return_FailsWithNotIssuedToHolder(t *testing.T) {
	f := givenEngine(t)
	item := givenItem(t, f, "Lavinia")
	owner := givenHolder(t, f, circulation.CategoryStudent)
	stranger := givenHolder(t, f, circulation.CategoryStudent)

	_, err := f.engine.Return(context.Background(), item.ID, owner.ID)
	assert.ErrorIs(t, err, circulation.ErrNotIssuedToHolder, "item is available")

	givenIssued(t, f, item.ID, owner.ID)

	_, err = f.engine.Return(context.Background(), item.ID, stranger.ID)
	assert.ErrorIs(t, err, circulation.ErrNotIssuedToHolder, "item is held by someone else")
	assert.Equal(t, owner.ID, findItem(t, f, item.ID).HolderID)
}

func Test_Return_ReportsOverdue(t *testing.T) {
	f := givenEngine(t)
	item := givenItem(t, f, "Four Ways to Forgiveness")
	reader := givenHolder(t, f, circulation.CategoryGuest)
	givenIssued(t, f, item.ID, reader.ID)

	f.clock.Advance(8 * 24 * time.Hour)

	result, err := f.engine.Return(context.Background(), item.ID, reader.ID)

	require.NoError(t, err)
	assert.True(t, result.WasOverdue)
	assert.Equal(t, circulation.StateAvailable, result.Item.State)
	assert.Equal(t, uuid.Nil, result.HandedOffTo)
}

func Test_Return_HandsOffToWaiter_WithWaitersPolicyDays(t *testing.T) {
	// arrange
	f := givenEngine(t)
	item := givenItem(t, f, "The Left Hand of Darkness")
	h1 := givenHolder(t, f, circulation.CategoryStudent)
	h2 := givenHolder(t, f, circulation.CategoryTeacher)
	givenIssued(t, f, item.ID, h1.ID)
	givenReserved(t, f, item.ID, h2.ID)
	f.clock.Advance(3 * 24 * time.Hour)

	// act
	result, err := f.engine.Return(context.Background(), item.ID, h1.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, h2.ID, result.HandedOffTo)
	assert.Empty(t, result.Dropped)
	assert.Equal(t, circulation.StateOnLoan, result.Item.State)
	assert.Equal(t, h2.ID, result.Item.HolderID)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 30), result.Item.DueDate)
	assert.Empty(t, result.Item.WaitList)
	assert.Empty(t, findHolder(t, f, h1.ID).IssuedItemIDs)
	assert.Equal(t, []uuid.UUID{item.ID}, findHolder(t, f, h2.ID).IssuedItemIDs)

	whenEffectsDelivered(t, f)
	require.Len(t, f.notifier.Issued(), 2)
	assert.Equal(t, h2.Contact, f.notifier.Issued()[1].Recipient)
	assert.Equal(t, 1, f.metrics.Count(spies.KindCounter, circulation.HandOffsMetric, nil))
	assert.True(t, f.logger.HasLog(spies.LevelInfo, "item handed off to next waiter"))
}

func Test_Return_DropIneligible_DropsHeadAndLeavesItemAvailable(t *testing.T) {
	// arrange
	f := givenEngine(t)
	item := givenItem(t, f, "The Telling")
	other := givenItem(t, f, "Voices")
	owner := givenHolder(t, f, circulation.CategoryStudent)
	busyGuest := givenHolder(t, f, circulation.CategoryGuest)
	patient := givenHolder(t, f, circulation.CategoryStudent)

	givenIssued(t, f, item.ID, owner.ID)
	givenReserved(t, f, item.ID, busyGuest.ID)
	givenReserved(t, f, item.ID, patient.ID)
	givenIssued(t, f, other.ID, busyGuest.ID)

	// act
	result, err := f.engine.Return(context.Background(), item.ID, owner.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, result.HandedOffTo)
	assert.Equal(t, []uuid.UUID{busyGuest.ID}, result.Dropped)
	assert.Equal(t, circulation.StateAvailable, result.Item.State)
	assert.Equal(t, []uuid.UUID{patient.ID}, result.Item.WaitList)
	assert.NotContains(t, findItem(t, f, item.ID).WaitList, busyGuest.ID)
	whenEffectsDelivered(t, f)
	assert.Contains(t, f.journal.EventTypes(), circulation.ReservationDroppedEventType)
}

func Test_Return_TryNext_SkipsIneligibleWaiters(t *testing.T) {
	// arrange
	f := givenEngine(t, circulation.WithHandOffPolicy(circulation.HandOffTryNext))
	item := givenItem(t, f, "The Telling")
	other := givenItem(t, f, "Voices")
	owner := givenHolder(t, f, circulation.CategoryStudent)
	busyGuest := givenHolder(t, f, circulation.CategoryGuest)
	patient := givenHolder(t, f, circulation.CategoryStudent)

	givenIssued(t, f, item.ID, owner.ID)
	givenReserved(t, f, item.ID, busyGuest.ID)
	givenReserved(t, f, item.ID, patient.ID)
	givenIssued(t, f, other.ID, busyGuest.ID)

	// act
	result, err := f.engine.Return(context.Background(), item.ID, owner.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, patient.ID, result.HandedOffTo)
	assert.Equal(t, []uuid.UUID{busyGuest.ID}, result.Dropped)
	assert.Equal(t, patient.ID, result.Item.HolderID)
	assert.Empty(t, result.Item.WaitList)
}

func Test_Return_TryNext_LeavesItemAvailable_WhenNoWaiterEligible(t *testing.T) {
	f := givenEngine(t, circulation.WithHandOffPolicy(circulation.HandOffTryNext))
	item := givenItem(t, f, "Searoad")
	owner := givenHolder(t, f, circulation.CategoryStudent)
	guests := []circulation.HolderView{givenHolder(t, f, circulation.CategoryGuest), givenHolder(t, f, circulation.CategoryGuest)}

	givenIssued(t, f, item.ID, owner.ID)
	for _, g := range guests {
		givenReserved(t, f, item.ID, g.ID)
		givenIssued(t, f, givenItem(t, f, "Filler").ID, g.ID)
	}

	result, err := f.engine.Return(context.Background(), item.ID, owner.ID)

	require.NoError(t, err)
	assert.Equal(t, circulation.StateAvailable, result.Item.State)
	assert.Equal(t, []uuid.UUID{guests[0].ID, guests[1].ID}, result.Dropped)
	assert.Empty(t, result.Item.WaitList)
}

func Test_Reserve_FailsWithReservationNotNeeded_ForAvailableItem(t *testing.T) {
	f := givenEngine(t)
	item := givenItem(t, f, "Malafrena")
	reader := givenHolder(t, f, circulation.CategoryStudent)

	_, err := f.engine.Reserve(context.Background(), item.ID, reader.ID)

	assert.ErrorIs(t, err, circulation.ErrReservationNotNeeded)
	assert.Empty(t, findItem(t, f, item.ID).WaitList)
}

func Test_Reserve_IsIdempotentAndFIFO(t *testing.T) {
	// arrange
	f := givenEngine(t)
	item := givenItem(t, f, "Orsinian Tales")
	owner := givenHolder(t, f, circulation.CategoryStudent)
	first := givenHolder(t, f, circulation.CategoryStudent)
	second := givenHolder(t, f, circulation.CategoryStudent)
	givenIssued(t, f, item.ID, owner.ID)

	// act
	givenReserved(t, f, item.ID, first.ID)
	givenReserved(t, f, item.ID, second.ID)
	view, err := f.engine.Reserve(context.Background(), item.ID, first.ID)

	// assert
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, view.WaitList)
	whenEffectsDelivered(t, f)
	reserved := 0
	for _, e := range f.journal.Events() {
		if r, ok := e.(circulation.ItemReserved); ok {
			reserved++
			assert.Equal(t, reserved, r.QueuePosition)
		}
	}
	assert.Equal(t, 2, reserved)
}

func Test_RegisterHolder_ValidatesPhone(t *testing.T) {
	f := givenEngine(t)

	_, err := f.engine.RegisterHolder(context.Background(), uuid.Nil, circulation.Contact{
		Name: "Phone Tester", Email: "phone@example.org", Phone: "123",
	}, circulation.CategoryStudent)

	var vErr circulation.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "phone", vErr.Field)
	assert.Equal(t, 0, f.engine.Catalog().HolderCount())

	holder, err := f.engine.RegisterHolder(context.Background(), uuid.Nil, circulation.Contact{
		Name: "Phone Tester", Email: "phone@example.org", Phone: "+14155551234",
	}, circulation.CategoryStudent)

	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, holder.ID)
	assert.Equal(t, 1, f.engine.Catalog().HolderCount())
}

func Test_RegisterHolder_FailsWithDuplicateKey(t *testing.T) {
	f := givenEngine(t)
	id := uuid.New()
	contact := circulation.Contact{Name: "Dup", Email: "dup@example.org", Phone: "+14155559999"}

	_, err := f.engine.RegisterHolder(context.Background(), id, contact, circulation.CategoryStudent)
	require.NoError(t, err)

	tests := []struct {
		name    string
		id      uuid.UUID
		contact circulation.Contact
	}{
		{"same id", id, circulation.Contact{Name: "Other", Email: "other@example.org", Phone: "+14155558888"}},
		{"same email in other case", uuid.New(), circulation.Contact{Name: "Other", Email: "DUP@example.org", Phone: "+14155558888"}},
		{"same phone", uuid.New(), circulation.Contact{Name: "Other", Email: "other@example.org", Phone: "+14155559999"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.RegisterHolder(context.Background(), tt.id, tt.contact, circulation.CategoryStudent)
			assert.ErrorIs(t, err, circulation.ErrDuplicateKey)
		})
	}

	assert.Equal(t, 1, f.engine.Catalog().HolderCount())
}

func Test_RegisterItem_FailsWithDuplicateKey_OrBlankTitle(t *testing.T) {
	f := givenEngine(t)
	item := givenItem(t, f, "The Beginning Place")

	_, err := f.engine.RegisterItem(context.Background(), item.ID, circulation.ItemDetails{Title: "X", Creator: "Y", Category: "Z"})
	assert.ErrorIs(t, err, circulation.ErrDuplicateKey)

	_, err = f.engine.RegisterItem(context.Background(), uuid.Nil, circulation.ItemDetails{Title: " ", Creator: "Y", Category: "Z"})
	assert.ErrorIs(t, err, circulation.ErrValidation)

	assert.Equal(t, 1, f.engine.Catalog().ItemCount())
}

func Test_RegisterHolder_FailsForUnknownCategory(t *testing.T) {
	f := givenEngine(t)

	_, err := f.engine.RegisterHolder(context.Background(), uuid.Nil, circulation.Contact{
		Name: "Alum", Email: "alum@example.org", Phone: "+14155550000",
	}, circulation.Category("Alumni"))

	assert.ErrorIs(t, err, circulation.ErrUnknownCategory)
}

func Test_DeregisterItem_FailsWithResourceBusy_WhenOnLoan(t *testing.T) {
	f := givenEngine(t)
	item := givenItem(t, f, "Gifts")
	reader := givenHolder(t, f, circulation.CategoryStudent)
	givenIssued(t, f, item.ID, reader.ID)

	err := f.engine.DeregisterItem(context.Background(), item.ID)
	assert.ErrorIs(t, err, circulation.ErrResourceBusy)

	_, err = f.engine.Return(context.Background(), item.ID, reader.ID)
	require.NoError(t, err)

	require.NoError(t, f.engine.DeregisterItem(context.Background(), item.ID))
	_, found := f.engine.Catalog().FindItem(item.ID)
	assert.False(t, found)
	assert.ErrorIs(t, f.engine.DeregisterItem(context.Background(), item.ID), circulation.ErrItemNotFound)
}

func Test_DeregisterHolder_FailsWithResourceBusy_AndLeavesWaitLists(t *testing.T) {
	// arrange
	f := givenEngine(t)
	item := givenItem(t, f, "Powers")
	owner := givenHolder(t, f, circulation.CategoryStudent)
	waiter := givenHolder(t, f, circulation.CategoryStudent)
	givenIssued(t, f, item.ID, owner.ID)
	givenReserved(t, f, item.ID, waiter.ID)

	// act
	errBusy := f.engine.DeregisterHolder(context.Background(), owner.ID)
	errWaiter := f.engine.DeregisterHolder(context.Background(), waiter.ID)

	// assert
	assert.ErrorIs(t, errBusy, circulation.ErrResourceBusy)
	require.NoError(t, errWaiter)
	assert.Empty(t, findItem(t, f, item.ID).WaitList)
	_, found := f.engine.Catalog().FindHolderByEmail(waiter.Contact.Email)
	assert.False(t, found)

	result, err := f.engine.Return(context.Background(), item.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, result.HandedOffTo)
}

func Test_UpdateHolderContact_ReindexesAndRejectsCollisions(t *testing.T) {
	f := givenEngine(t)
	reader := givenHolder(t, f, circulation.CategoryStudent)
	other := givenHolder(t, f, circulation.CategoryStudent)

	_, err := f.engine.UpdateHolderContact(context.Background(), reader.ID, circulation.Contact{
		Name: "Renamed", Email: other.Contact.Email, Phone: "+14155557777",
	})
	assert.ErrorIs(t, err, circulation.ErrDuplicateKey)

	updated, err := f.engine.UpdateHolderContact(context.Background(), reader.ID, circulation.Contact{
		Name: "Renamed", Email: "Renamed@Example.org", Phone: "+14155557777",
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed@example.org", updated.Contact.Email)

	_, found := f.engine.Catalog().FindHolderByEmail(reader.Contact.Email)
	assert.False(t, found)
	byPhone, found := f.engine.Catalog().FindHolderByPhone("+14155557777")
	assert.True(t, found)
	assert.Equal(t, reader.ID, byPhone.ID)

	_, err = f.engine.UpdateHolderContact(context.Background(), reader.ID, updated.Contact)
	assert.NoError(t, err, "keeping the own email and phone is no collision")
}

func Test_UpdateItemDetails_ValidatesBeforeCommitting(t *testing.T) {
	f := givenEngine(t)
	item := givenItem(t, f, "Rocannon's World")

	_, err := f.engine.UpdateItemDetails(context.Background(), item.ID, circulation.ItemDetails{Title: "New", Creator: "", Category: "SF"})
	assert.ErrorIs(t, err, circulation.ErrValidation)
	assert.Equal(t, "Rocannon's World", findItem(t, f, item.ID).Title)

	updated, err := f.engine.UpdateItemDetails(context.Background(), item.ID, circulation.ItemDetails{Title: " Planet of Exile ", Creator: "Le Guin", Category: "SF"})
	require.NoError(t, err)
	assert.Equal(t, "Planet of Exile", updated.Title)
}

func Test_IssuedItems_ReturnsSnapshotsWithDaysUntilDue(t *testing.T) {
	f := givenEngine(t)
	reader := givenHolder(t, f, circulation.CategoryTeacher)
	item := givenItem(t, f, "City of Illusions")
	givenIssued(t, f, item.ID, reader.ID)
	f.clock.Advance(10 * 24 * time.Hour)

	items, err := f.engine.IssuedItems(reader.ID)

	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 20, items[0].DaysUntilDue)

	_, err = f.engine.IssuedItems(uuid.New())
	assert.ErrorIs(t, err, circulation.ErrHolderNotFound)
}

func Test_Notifier_FailureOrPanic_NeverRollsBackIssue(t *testing.T) {
	tests := []struct {
		name     string
		notifier *spies.NotifierSpy
	}{
		{"error", spies.NewNotifierSpy().FailWith(errors.New("smtp down"))},
		{"panic", spies.NewNotifierSpy().PanicWith("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// arrange
			f := givenEngine(t, circulation.WithNotifier(tt.notifier))
			item := givenItem(t, f, "The Eye of the Heron")
			reader := givenHolder(t, f, circulation.CategoryStudent)

			// act
			_, err := f.engine.Issue(context.Background(), item.ID, reader.ID)

			// assert
			require.NoError(t, err)
			assert.Equal(t, reader.ID, findItem(t, f, item.ID).HolderID)
			whenEffectsDelivered(t, f)
			assert.Len(t, tt.notifier.Issued(), 1)
			assert.Equal(t, 1, f.metrics.Count(spies.KindCounter, circulation.NotificationsFailedMetric, map[string]string{
				circulation.LabelNoticeKind: "issued",
			}))
		})
	}
}

func Test_Notifier_IsCalledAfterLockIsReleased(t *testing.T) {
	// arrange
	notifier := spies.NewNotifierSpy()
	f := givenEngine(t, circulation.WithNotifier(notifier))
	item := givenItem(t, f, "Very Far Away from Anywhere Else")
	reader := givenHolder(t, f, circulation.CategoryStudent)

	var statsDuringDelivery circulation.Statistics
	notifier.OnDelivery(func() {
		statsDuringDelivery = f.engine.Statistics(f.clock.Now())
	})

	// act
	_, err := f.engine.Issue(context.Background(), item.ID, reader.ID)

	// assert
	require.NoError(t, err)
	whenEffectsDelivered(t, f)
	assert.Equal(t, 1, statsDuringDelivery.OnLoan)
}

func Test_Journal_ReceivesEventsWithIncreasingPositions(t *testing.T) {
	// arrange
	f := givenEngine(t)
	item := givenItem(t, f, "The Compass Rose")
	h1 := givenHolder(t, f, circulation.CategoryStudent)
	h2 := givenHolder(t, f, circulation.CategoryStudent)

	// act
	givenIssued(t, f, item.ID, h1.ID)
	givenReserved(t, f, item.ID, h2.ID)
	_, err := f.engine.Return(context.Background(), item.ID, h1.ID)
	require.NoError(t, err)

	// assert
	whenEffectsDelivered(t, f)
	assert.Equal(t, []string{
		circulation.ItemRegisteredEventType,
		circulation.HolderRegisteredEventType,
		circulation.HolderRegisteredEventType,
		circulation.ItemIssuedEventType,
		circulation.ItemReservedEventType,
		circulation.ItemReturnedEventType,
		circulation.ItemIssuedEventType,
	}, f.journal.EventTypes())

	for idx, e := range f.journal.Events() {
		assert.Equal(t, uint64(idx+1), e.SequencePosition())
	}

	handOff, ok := f.journal.Events()[6].(circulation.ItemIssued)
	require.True(t, ok)
	assert.True(t, handOff.HandOff)
}

func Test_Journal_FailureIsLoggedOnly(t *testing.T) {
	journal := spies.NewJournalSpy().FailWith(errors.New("db gone"))
	f := givenEngine(t, circulation.WithJournal(journal))

	item := givenItem(t, f, "The Wind's Twelve Quarters")

	assert.Equal(t, circulation.StateAvailable, item.State)
	whenEffectsDelivered(t, f)
	assert.Equal(t, 1, journal.AppendCount())
	assert.True(t, f.logger.HasLog(spies.LevelError, "journal append failed"))
}

func Test_Engine_RecordsMetricsAndSpans(t *testing.T) {
	// arrange
	f := givenEngine(t)
	item := givenItem(t, f, "The Birthday of the World")
	reader := givenHolder(t, f, circulation.CategoryGuest)
	givenIssued(t, f, item.ID, reader.ID)

	// act
	_, err := f.engine.Issue(context.Background(), item.ID, reader.ID)

	// assert
	require.Error(t, err)
	assert.Equal(t, 1, f.metrics.Count(spies.KindCounter, circulation.OperationsMetric, map[string]string{
		circulation.LabelOperation: circulation.OperationIssue,
		circulation.LabelStatus:    circulation.StatusSuccess,
	}))
	assert.Equal(t, 1, f.metrics.Count(spies.KindCounter, circulation.OperationsMetric, map[string]string{
		circulation.LabelOperation: circulation.OperationIssue,
		circulation.LabelStatus:    circulation.StatusError,
		circulation.LabelErrorType: "already_issued",
	}))
	assert.Equal(t, 2, f.metrics.Count(spies.KindDuration, circulation.OperationDurationMetric, map[string]string{
		circulation.LabelOperation: circulation.OperationIssue,
	}))

	whenEffectsDelivered(t, f)
	onLoan, ok := f.metrics.LastValue(circulation.ItemsOnLoanMetric)
	require.True(t, ok)
	assert.Equal(t, 1.0, onLoan)

	span, ok := f.tracing.FindSpan("circulation.issue")
	require.True(t, ok)
	assert.True(t, span.Finished)
	assert.Equal(t, circulation.StatusSuccess, span.Status)
	assert.Equal(t, item.ID.String(), span.StartAttributes["item_id"])
}

func Test_NewEngine_RejectsInvalidOptions(t *testing.T) {
	_, err := circulation.NewEngine(circulation.WithNotifier(nil))
	assert.ErrorIs(t, err, circulation.ErrNilCollaborator)

	_, err = circulation.NewEngine(circulation.WithIssuerName("  "))
	assert.ErrorIs(t, err, circulation.ErrValidation)

	_, err = circulation.NewEngine(circulation.WithPolicies(circulation.PolicyTable{}))
	assert.ErrorIs(t, err, circulation.ErrValidation)

	_, err = circulation.NewEngine(circulation.WithHandOffPolicy(circulation.HandOffPolicy(7)))
	assert.ErrorIs(t, err, circulation.ErrValidation)
}

func Test_WithPolicies_OverridesEntitlements(t *testing.T) {
	f := givenEngine(t, circulation.WithPolicies(circulation.PolicyTable{
		circulation.CategoryStudent: {LoanDays: 21, MaxItems: 1},
	}))
	reader := givenHolder(t, f, circulation.CategoryStudent)
	item := givenItem(t, f, "Changing Planes")

	issued := givenIssued(t, f, item.ID, reader.ID)

	assert.Equal(t, f.clock.Now().AddDate(0, 0, 21), issued.DueDate)
	assert.False(t, findHolder(t, f, reader.ID).CanBorrowMore())
}

func Test_ParseHandOffPolicy(t *testing.T) {
	p, err := circulation.ParseHandOffPolicy("TRY_NEXT")
	require.NoError(t, err)
	assert.Equal(t, circulation.HandOffTryNext, p)

	p, err = circulation.ParseHandOffPolicy("")
	require.NoError(t, err)
	assert.Equal(t, circulation.HandOffDropIneligible, p)
	assert.Equal(t, "drop_ineligible", p.String())

	_, err = circulation.ParseHandOffPolicy("requeue")
	assert.ErrorIs(t, err, circulation.ErrValidation)
}
