package journal_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
	"github.com/AntonStoeckl/library-circulation-go/journal"
)

func givenEntry(t *testing.T, position uint64, eventType string, at time.Time, itemID, holderID uuid.UUID) journal.Entry {
	t.Helper()

	payload := fmt.Sprintf(`{"ItemID": %q, "HolderID": %q}`, itemID, holderID)
	entry, err := journal.BuildEntry(position, eventType, at, []byte(payload), []byte(`{}`))
	require.NoError(t, err)

	return entry
}

func Test_FilterBuilder_SanitizesInput(t *testing.T) {
	// act
	filter := journal.BuildFilter().
		AnyEventTypeOf(circulation.ItemReturnedEventType, "", circulation.ItemIssuedEventType, circulation.ItemReturnedEventType).
		AnyPredicateOf(journal.P("b", "2"), journal.P("", "x"), journal.P("a", "1"), journal.P("b", "2"), journal.P("c", "")).
		Finalize()

	// assert
	assert.Equal(t, []string{circulation.ItemIssuedEventType, circulation.ItemReturnedEventType}, filter.EventTypes())
	assert.Equal(t, []journal.FilterPredicate{journal.P("a", "1"), journal.P("b", "2")}, filter.Predicates())
	assert.False(t, filter.AllPredicatesMustMatch())
}

func Test_Filter_ZeroValueMatchesEverything(t *testing.T) {
	// arrange
	entry := givenEntry(t, 1, circulation.ItemIssuedEventType, occurredAt, uuid.New(), uuid.New())

	// act + assert
	assert.True(t, journal.Filter{}.Matches(entry))
	assert.True(t, journal.BuildFilter().Finalize().Matches(entry))
}

//nolint:funlen
func Test_Filter_Matches(t *testing.T) {
	itemID := uuid.New()
	holderID := uuid.New()
	entry := givenEntry(t, 5, circulation.ItemIssuedEventType, occurredAt, itemID, holderID)

	tests := []struct {
		name     string
		filter   journal.Filter
		expected bool
	}{
		{
			name:     "event type matches",
			filter:   journal.BuildFilter().AnyEventTypeOf(circulation.ItemReturnedEventType, circulation.ItemIssuedEventType).Finalize(),
			expected: true,
		},
		{
			name:     "event type does not match",
			filter:   journal.BuildFilter().AnyEventTypeOf(circulation.ItemReturnedEventType).Finalize(),
			expected: false,
		},
		{
			name:     "any predicate matches",
			filter:   journal.BuildFilter().AnyPredicateOf(journal.ForItem(uuid.New()), journal.ForHolder(holderID)).Finalize(),
			expected: true,
		},
		{
			name:     "not all predicates match",
			filter:   journal.BuildFilter().AllPredicatesOf(journal.ForItem(uuid.New()), journal.ForHolder(holderID)).Finalize(),
			expected: false,
		},
		{
			name:     "all predicates match",
			filter:   journal.BuildFilter().AllPredicatesOf(journal.ForItem(itemID), journal.ForHolder(holderID)).Finalize(),
			expected: true,
		},
		{
			name:     "predicate on a missing key",
			filter:   journal.BuildFilter().AnyPredicateOf(journal.P("Reason", "x")).Finalize(),
			expected: false,
		},
		{
			name:     "occurred from is inclusive",
			filter:   journal.BuildFilter().OccurredFrom(occurredAt).Finalize(),
			expected: true,
		},
		{
			name:     "occurred from excludes earlier entries",
			filter:   journal.BuildFilter().OccurredFrom(occurredAt.Add(time.Second)).Finalize(),
			expected: false,
		},
		{
			name:     "occurred until is inclusive",
			filter:   journal.BuildFilter().OccurredUntil(occurredAt).Finalize(),
			expected: true,
		},
		{
			name:     "occurred until excludes later entries",
			filter:   journal.BuildFilter().OccurredUntil(occurredAt.Add(-time.Second)).Finalize(),
			expected: false,
		},
		{
			name:     "after position is exclusive",
			filter:   journal.BuildFilter().AfterPosition(5).Finalize(),
			expected: false,
		},
		{
			name: "every dimension matches",
			filter: journal.BuildFilter().
				AnyEventTypeOf(circulation.ItemIssuedEventType).
				AnyPredicateOf(journal.ForItem(itemID)).
				OccurredFrom(occurredAt.Add(-time.Hour)).
				OccurredUntil(occurredAt.Add(time.Hour)).
				AfterPosition(4).
				Finalize(),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// act + assert
			assert.Equal(t, tt.expected, tt.filter.Matches(entry))
		})
	}
}
