package journal

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

// Payload keys holder and item ids are journaled under.
const (
	KeyItemID   = "ItemID"
	KeyHolderID = "HolderID"
)

/***** Filter *****/

// Filter selects journal entries. The zero value matches every entry.
//
// Event types are OR-ed, predicates are OR-ed unless built with AllPredicatesOf, and every
// configured dimension must match.
type Filter struct {
	eventTypes             []string
	predicates             []FilterPredicate
	allPredicatesMustMatch bool
	occurredFrom           time.Time
	occurredUntil          time.Time
	afterPosition          uint64
}

func (f Filter) EventTypes() []string {
	return f.eventTypes
}

func (f Filter) Predicates() []FilterPredicate {
	return f.predicates
}

func (f Filter) AllPredicatesMustMatch() bool {
	return f.allPredicatesMustMatch
}

// OccurredFrom is the inclusive lower time bound, zero if unset.
func (f Filter) OccurredFrom() time.Time {
	return f.occurredFrom
}

// OccurredUntil is the inclusive upper time bound, zero if unset.
func (f Filter) OccurredUntil() time.Time {
	return f.occurredUntil
}

// AfterPosition is the exclusive lower position bound, zero if unset.
func (f Filter) AfterPosition() uint64 {
	return f.afterPosition
}

// Matches reports whether the entry satisfies every dimension of the filter.
func (f Filter) Matches(entry Entry) bool {
	if entry.Position <= f.afterPosition {
		return false
	}

	if !f.occurredFrom.IsZero() && entry.OccurredAt.Before(f.occurredFrom) {
		return false
	}

	if !f.occurredUntil.IsZero() && entry.OccurredAt.After(f.occurredUntil) {
		return false
	}

	if len(f.eventTypes) > 0 && !slices.Contains(f.eventTypes, entry.EventType) {
		return false
	}

	if len(f.predicates) == 0 {
		return true
	}

	for _, p := range f.predicates {
		matched := p.matches(entry.PayloadJSON)
		if matched && !f.allPredicatesMustMatch {
			return true
		}

		if !matched && f.allPredicatesMustMatch {
			return false
		}
	}

	return f.allPredicatesMustMatch
}

/***** FilterPredicate *****/

// FilterPredicate matches a top-level payload key with a string value.
type FilterPredicate struct {
	key string
	val string
}

// P builds a FilterPredicate.
func P(key string, val string) FilterPredicate {
	return FilterPredicate{key: key, val: val}
}

// ForItem matches entries about the item.
func ForItem(itemID uuid.UUID) FilterPredicate {
	return P(KeyItemID, itemID.String())
}

// ForHolder matches entries about the holder.
func ForHolder(holderID uuid.UUID) FilterPredicate {
	return P(KeyHolderID, holderID.String())
}

func (fp FilterPredicate) Key() string {
	return fp.key
}

func (fp FilterPredicate) Val() string {
	return fp.val
}

func (fp FilterPredicate) matches(payloadJSON []byte) bool {
	value := jsoniter.Get(payloadJSON, fp.key)
	if value.ValueType() != jsoniter.StringValue {
		return false
	}

	return value.ToString() == fp.val
}

/***** FilterBuilder *****/

// FilterBuilder builds a Filter fluently. Each method returns a modified copy.
type FilterBuilder struct {
	filter Filter
}

// BuildFilter creates a FilterBuilder which must eventually be finalized with Finalize().
func BuildFilter() FilterBuilder {
	return FilterBuilder{}
}

// AnyEventTypeOf adds event types expecting ANY of them to match.
//
// It sanitizes the input:
//   - removing empty event types ("")
//   - sorting the event types
//   - removing duplicate event types
func (fb FilterBuilder) AnyEventTypeOf(eventType string, eventTypes ...string) FilterBuilder {
	all := append(slices.Clone(fb.filter.eventTypes), eventType)
	all = append(all, eventTypes...)
	all = slices.DeleteFunc(all, func(e string) bool { return e == "" })
	slices.Sort(all)
	fb.filter.eventTypes = slices.Clip(slices.Compact(all))

	return fb
}

// AnyPredicateOf adds predicates expecting ANY of them to match.
func (fb FilterBuilder) AnyPredicateOf(predicate FilterPredicate, predicates ...FilterPredicate) FilterBuilder {
	fb.filter.allPredicatesMustMatch = false
	fb.filter.predicates = sanitizePredicates(fb.filter.predicates, predicate, predicates...)

	return fb
}

// AllPredicatesOf adds predicates expecting ALL of them to match.
func (fb FilterBuilder) AllPredicatesOf(predicate FilterPredicate, predicates ...FilterPredicate) FilterBuilder {
	fb.filter.allPredicatesMustMatch = true
	fb.filter.predicates = sanitizePredicates(fb.filter.predicates, predicate, predicates...)

	return fb
}

// OccurredFrom restricts the filter to entries that occurred at or after from.
func (fb FilterBuilder) OccurredFrom(from time.Time) FilterBuilder {
	fb.filter.occurredFrom = from

	return fb
}

// OccurredUntil restricts the filter to entries that occurred at or before until.
func (fb FilterBuilder) OccurredUntil(until time.Time) FilterBuilder {
	fb.filter.occurredUntil = until

	return fb
}

// AfterPosition restricts the filter to entries with a position greater than position.
func (fb FilterBuilder) AfterPosition(position uint64) FilterBuilder {
	fb.filter.afterPosition = position

	return fb
}

// Finalize returns the Filter.
func (fb FilterBuilder) Finalize() Filter {
	return fb.filter
}

// sanitizePredicates removes partial and duplicate predicates and sorts the rest by key and value.
func sanitizePredicates(existing []FilterPredicate, predicate FilterPredicate, predicates ...FilterPredicate) []FilterPredicate {
	all := append(slices.Clone(existing), predicate)
	all = append(all, predicates...)
	all = slices.DeleteFunc(all, func(p FilterPredicate) bool { return p.key == "" || p.val == "" })
	slices.SortFunc(all, func(a, b FilterPredicate) int {
		if byKey := strings.Compare(a.key, b.key); byKey != 0 {
			return byKey
		}

		return strings.Compare(a.val, b.val)
	})

	return slices.Clip(slices.Compact(all))
}
