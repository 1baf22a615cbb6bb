package circulation

import (
	"time"
)

// Event type identifiers of committed circulation transitions.
const (
	ItemRegisteredEventType       = "ItemRegistered"
	ItemDeregisteredEventType     = "ItemDeregistered"
	ItemDetailsUpdatedEventType   = "ItemDetailsUpdated"
	HolderRegisteredEventType     = "HolderRegistered"
	HolderDeregisteredEventType   = "HolderDeregistered"
	HolderContactUpdatedEventType = "HolderContactUpdated"
	ItemIssuedEventType           = "ItemIssued"
	ItemReturnedEventType         = "ItemReturned"
	ItemReservedEventType         = "ItemReserved"
	ReservationDroppedEventType   = "ReservationDropped"
)

// Reasons a waiter leaves a wait-list without being served.
const (
	DropReasonBorrowLimit        = "borrow limit reached at hand-off"
	DropReasonHolderDeregistered = "holder deregistered"
	DropReasonItemDeregistered   = "item deregistered"
)

// Events is a slice of Event instances.
type Events = []Event

// Event is a committed circulation transition.
type Event interface {
	// EventType returns the string identifier for this event type.
	EventType() string

	// HasOccurredAt returns when this event occurred.
	HasOccurredAt() time.Time

	// SequencePosition is the engine-wide commit order of this event, starting at 1.
	SequencePosition() uint64
}

// EventHeader carries the fields every event has.
// Its fields are not part of the serialized payload.
type EventHeader struct {
	Position   uint64    `json:"-"`
	OccurredAt time.Time `json:"-"`
}

// HasOccurredAt returns when this event occurred.
func (h EventHeader) HasOccurredAt() time.Time {
	return h.OccurredAt
}

// SequencePosition returns the commit order of this event.
func (h EventHeader) SequencePosition() uint64 {
	return h.Position
}

// ItemRegistered records a new item in the catalog.
type ItemRegistered struct {
	EventHeader
	ItemID   string
	Title    string
	Creator  string
	Category string
}

// EventType returns the event type identifier.
func (e ItemRegistered) EventType() string { return ItemRegisteredEventType }

// ItemDeregistered records the removal of an item.
type ItemDeregistered struct {
	EventHeader
	ItemID string
}

// EventType returns the event type identifier.
func (e ItemDeregistered) EventType() string { return ItemDeregisteredEventType }

// ItemDetailsUpdated records new descriptive attributes of an item.
type ItemDetailsUpdated struct {
	EventHeader
	ItemID   string
	Title    string
	Creator  string
	Category string
}

// EventType returns the event type identifier.
func (e ItemDetailsUpdated) EventType() string { return ItemDetailsUpdatedEventType }

// HolderRegistered records a new holder.
type HolderRegistered struct {
	EventHeader
	HolderID string
	Name     string
	Category string
}

// EventType returns the event type identifier.
func (e HolderRegistered) EventType() string { return HolderRegisteredEventType }

// HolderDeregistered records the removal of a holder.
type HolderDeregistered struct {
	EventHeader
	HolderID string
}

// EventType returns the event type identifier.
func (e HolderDeregistered) EventType() string { return HolderDeregisteredEventType }

// HolderContactUpdated records changed contact attributes. Email and phone are not journaled.
type HolderContactUpdated struct {
	EventHeader
	HolderID string
	Name     string
}

// EventType returns the event type identifier.
func (e HolderContactUpdated) EventType() string { return HolderContactUpdatedEventType }

// ItemIssued records an item lent to a holder. HandOff marks an automatic re-issue from the wait-list.
type ItemIssued struct {
	EventHeader
	ItemID   string
	HolderID string
	DueDate  time.Time
	HandOff  bool
}

// EventType returns the event type identifier.
func (e ItemIssued) EventType() string { return ItemIssuedEventType }

// ItemReturned records an item given back by its holder.
type ItemReturned struct {
	EventHeader
	ItemID   string
	HolderID string
	Overdue  bool
}

// EventType returns the event type identifier.
func (e ItemReturned) EventType() string { return ItemReturnedEventType }

// ItemReserved records a holder joining an item's wait-list.
type ItemReserved struct {
	EventHeader
	ItemID        string
	HolderID      string
	QueuePosition int
}

// EventType returns the event type identifier.
func (e ItemReserved) EventType() string { return ItemReservedEventType }

// ReservationDropped records a waiter removed from a wait-list without being served.
type ReservationDropped struct {
	EventHeader
	ItemID   string
	HolderID string
	Reason   string
}

// EventType returns the event type identifier.
func (e ReservationDropped) EventType() string { return ReservationDroppedEventType }
