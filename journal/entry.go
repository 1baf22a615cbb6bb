package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrInvalidPayloadJSON  = errors.New("payload json is not valid")
	ErrInvalidMetadataJSON = errors.New("metadata json is not valid")
	ErrEmptyEventType      = errors.New("event type must not be empty")
	ErrZeroPosition        = errors.New("position must be positive")
	ErrMarshalingFailed    = errors.New("marshaling event failed")
	ErrUnmarshalingFailed  = errors.New("unmarshaling event failed")
	ErrUnknownEventType    = errors.New("unknown event type")
)

// Entries is an alias type for a slice of Entry.
type Entries = []Entry

// Entry is one journaled event.
//
// While its properties are exported, it should only be constructed with BuildEntry or EntryFrom.
type Entry struct {
	Position     uint64
	EventType    string
	OccurredAt   time.Time
	PayloadJSON  []byte
	MetadataJSON []byte
}

// Metadata travels with every entry. Empty fields are omitted.
type Metadata struct {
	CorrelationID string `json:"CorrelationID,omitempty"`
	Source        string `json:"Source,omitempty"`
}

type correlationKey struct{}

// ContextWithCorrelationID attaches a correlation id that journals copy into the metadata of appended entries.
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// MetadataFromContext builds the metadata of entries appended within ctx.
func MetadataFromContext(ctx context.Context, source string) Metadata {
	correlationID, _ := ctx.Value(correlationKey{}).(string)

	return Metadata{CorrelationID: correlationID, Source: source}
}

// BuildEntry populates an Entry from scalars.
// It returns an error if the position is zero, the event type is empty or the JSON is invalid.
func BuildEntry(position uint64, eventType string, occurredAt time.Time, payloadJSON []byte, metadataJSON []byte) (Entry, error) {
	if position == 0 {
		return Entry{}, ErrZeroPosition
	}

	if eventType == "" {
		return Entry{}, ErrEmptyEventType
	}

	if !json.Valid(payloadJSON) {
		return Entry{}, ErrInvalidPayloadJSON
	}

	if !json.Valid(metadataJSON) {
		return Entry{}, ErrInvalidMetadataJSON
	}

	return Entry{
		Position:     position,
		EventType:    eventType,
		OccurredAt:   occurredAt,
		PayloadJSON:  payloadJSON,
		MetadataJSON: metadataJSON,
	}, nil
}

// EntryFrom converts a circulation event. Position and occurrence time move out of the payload into the Entry.
func EntryFrom(event circulation.Event, metadata Metadata) (Entry, error) {
	payloadJSON, err := json.Marshal(event)
	if err != nil {
		return Entry{}, errors.Join(ErrMarshalingFailed, err)
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return Entry{}, errors.Join(ErrMarshalingFailed, err)
	}

	return BuildEntry(event.SequencePosition(), event.EventType(), event.HasOccurredAt(), payloadJSON, metadataJSON)
}

// EntriesFrom converts a batch of events sharing the same metadata.
func EntriesFrom(events circulation.Events, metadata Metadata) (Entries, error) {
	entries := make(Entries, 0, len(events))
	for _, event := range events {
		entry, err := EntryFrom(event, metadata)
		if err != nil {
			return nil, fmt.Errorf("event %s at position %d: %w", event.EventType(), event.SequencePosition(), err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// Metadata decodes the metadata of the entry.
func (e Entry) Metadata() (Metadata, error) {
	var metadata Metadata
	if err := json.Unmarshal(e.MetadataJSON, &metadata); err != nil {
		return Metadata{}, errors.Join(ErrUnmarshalingFailed, err)
	}

	return metadata, nil
}
