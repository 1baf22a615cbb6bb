package circulation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Item_IssueTo_MovesAvailableItemOnLoan(t *testing.T) {
	// arrange
	i := givenItem(t)
	h := givenHolder(t, CategoryStudent, "+14155550001")
	due := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	// act
	err := i.issueTo(h, due)

	// assert
	require.NoError(t, err)
	assert.Equal(t, StateOnLoan, i.state)
	assert.Same(t, h, i.holder)
	assert.Equal(t, due, i.dueDate)
	assert.NoError(t, i.checkInvariant())
}

func Test_Item_IssueTo_FailsWithInvariantViolation_WhenAlreadyOnLoan(t *testing.T) {
	// arrange
	i := givenItem(t)
	first := givenHolder(t, CategoryStudent, "+14155550001")
	second := givenHolder(t, CategoryStudent, "+14155550002")
	due := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	require.NoError(t, i.issueTo(first, due))

	// act
	err := i.issueTo(second, due.AddDate(0, 0, 1))

	// assert
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Same(t, first, i.holder)
	assert.Equal(t, due, i.dueDate)
}

func Test_Item_IssueTo_FailsWithInvariantViolation_WithoutHolderOrDueDate(t *testing.T) {
	i := givenItem(t)
	h := givenHolder(t, CategoryStudent, "+14155550001")

	assert.ErrorIs(t, i.issueTo(nil, time.Now()), ErrInvariantViolation)
	assert.ErrorIs(t, i.issueTo(h, time.Time{}), ErrInvariantViolation)
	assert.Equal(t, StateAvailable, i.state)
}

func Test_Item_Release_ClearsHolderAndDueDate(t *testing.T) {
	// arrange
	i := givenItem(t)
	h := givenHolder(t, CategoryStudent, "+14155550001")
	require.NoError(t, i.issueTo(h, time.Now().Add(time.Hour)))

	// act
	i.release()

	// assert
	assert.Equal(t, StateAvailable, i.state)
	assert.Nil(t, i.holder)
	assert.True(t, i.dueDate.IsZero())
	assert.NoError(t, i.checkInvariant())
}

func Test_Item_EnqueueWaiter_IsIdempotent(t *testing.T) {
	// arrange
	i := givenItem(t)
	h := givenHolder(t, CategoryStudent, "+14155550001")

	// act
	first := i.enqueueWaiter(h)
	second := i.enqueueWaiter(h)

	// assert
	assert.True(t, first)
	assert.False(t, second)
	assert.Len(t, i.waitList, 1)
}

func Test_Item_DequeueNextWaiter_IsFIFO(t *testing.T) {
	// arrange
	i := givenItem(t)
	first := givenHolder(t, CategoryStudent, "+14155550001")
	second := givenHolder(t, CategoryStudent, "+14155550002")
	i.enqueueWaiter(first)
	i.enqueueWaiter(second)

	// act
	gotFirst, okFirst := i.dequeueNextWaiter()
	gotSecond, okSecond := i.dequeueNextWaiter()
	_, okEmpty := i.dequeueNextWaiter()

	// assert
	assert.True(t, okFirst)
	assert.Same(t, first, gotFirst)
	assert.True(t, okSecond)
	assert.Same(t, second, gotSecond)
	assert.False(t, okEmpty)
}

func Test_Item_IsOverdue_OnlyWhenDueDateStrictlyBeforeNow(t *testing.T) {
	i := givenItem(t)
	h := givenHolder(t, CategoryStudent, "+14155550001")
	due := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	assert.False(t, i.isOverdue(due.Add(time.Hour)), "available items are never overdue")

	require.NoError(t, i.issueTo(h, due))

	assert.False(t, i.isOverdue(due.Add(-time.Second)))
	assert.False(t, i.isOverdue(due))
	assert.True(t, i.isOverdue(due.Add(time.Nanosecond)))
}

func Test_Item_CheckInvariant_DetectsHalfUpdatedItem(t *testing.T) {
	i := givenItem(t)
	i.state = StateOnLoan

	assert.ErrorIs(t, i.checkInvariant(), ErrInvariantViolation)
}

func Test_Item_View_IsASnapshot(t *testing.T) {
	// arrange
	i := givenItem(t)
	h := givenHolder(t, CategoryStudent, "+14155550001")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, i.issueTo(h, now.AddDate(0, 0, 14)))
	waiter := givenHolder(t, CategoryGuest, "+14155550002")
	i.enqueueWaiter(waiter)

	// act
	v := i.view(now)
	v.WaitList[0] = uuid.Nil
	i.release()

	// assert
	assert.Equal(t, StateOnLoan, v.State)
	assert.Equal(t, h.id, v.HolderID)
	assert.Equal(t, 14, v.DaysUntilDue)
	assert.Same(t, waiter, i.waitList[0])
}

func Test_Item_Setters_RejectBlankValues(t *testing.T) {
	i := givenItem(t)

	var vErr ValidationError
	err := i.setTitle("   ")
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, fieldTitle, vErr.Field)
	assert.ErrorIs(t, i.setCreator(""), ErrValidation)
	assert.ErrorIs(t, i.setCategory("\t"), ErrValidation)
	assert.Equal(t, "The Hobbit", i.details.Title)

	require.NoError(t, i.setTitle("  The Silmarillion "))
	assert.Equal(t, "The Silmarillion", i.details.Title)
}

func givenItem(t *testing.T) *item {
	t.Helper()

	i, err := newItem(uuid.New(), ItemDetails{Title: "The Hobbit", Creator: "J.R.R. Tolkien", Category: "Fantasy"})
	require.NoError(t, err)

	return i
}

func givenHolder(t *testing.T, category Category, phone string) *holder {
	t.Helper()

	h, err := newHolder(
		uuid.New(),
		Contact{Name: "Ada Lovelace", Email: phone[1:] + "@example.org", Phone: phone},
		category,
		DefaultPolicies(),
	)
	require.NoError(t, err)

	return h
}
