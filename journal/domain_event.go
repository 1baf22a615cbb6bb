package journal

import (
	"errors"
	"fmt"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// DomainEventFrom decodes an entry back into the circulation event it was built from.
func DomainEventFrom(entry Entry) (circulation.Event, error) {
	header := circulation.EventHeader{Position: entry.Position, OccurredAt: entry.OccurredAt}

	switch entry.EventType {
	case circulation.ItemRegisteredEventType:
		return decode(entry, func(e *circulation.ItemRegistered) { e.EventHeader = header })
	case circulation.ItemDeregisteredEventType:
		return decode(entry, func(e *circulation.ItemDeregistered) { e.EventHeader = header })
	case circulation.ItemDetailsUpdatedEventType:
		return decode(entry, func(e *circulation.ItemDetailsUpdated) { e.EventHeader = header })
	case circulation.HolderRegisteredEventType:
		return decode(entry, func(e *circulation.HolderRegistered) { e.EventHeader = header })
	case circulation.HolderDeregisteredEventType:
		return decode(entry, func(e *circulation.HolderDeregistered) { e.EventHeader = header })
	case circulation.HolderContactUpdatedEventType:
		return decode(entry, func(e *circulation.HolderContactUpdated) { e.EventHeader = header })
	case circulation.ItemIssuedEventType:
		return decode(entry, func(e *circulation.ItemIssued) { e.EventHeader = header })
	case circulation.ItemReturnedEventType:
		return decode(entry, func(e *circulation.ItemReturned) { e.EventHeader = header })
	case circulation.ItemReservedEventType:
		return decode(entry, func(e *circulation.ItemReserved) { e.EventHeader = header })
	case circulation.ReservationDroppedEventType:
		return decode(entry, func(e *circulation.ReservationDropped) { e.EventHeader = header })
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, entry.EventType)
	}
}

// DomainEventsFrom decodes a slice of entries, keeping their order.
func DomainEventsFrom(entries Entries) (circulation.Events, error) {
	events := make(circulation.Events, 0, len(entries))
	for _, entry := range entries {
		event, err := DomainEventFrom(entry)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, nil
}

func decode[E circulation.Event](entry Entry, withHeader func(*E)) (circulation.Event, error) {
	var event E
	if err := json.Unmarshal(entry.PayloadJSON, &event); err != nil {
		return nil, errors.Join(ErrUnmarshalingFailed, fmt.Errorf("%s at position %d: %w", entry.EventType, entry.Position, err))
	}

	withHeader(&event)

	return event, nil
}
