package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

var ErrDuplicatePosition = errors.New("an entry with this position is already journaled")
var ErrNilStore = errors.New("store must not be nil")

// Store persists journal entries. Entries may arrive out of position order; Query returns them ordered by position.
type Store interface {
	Append(ctx context.Context, entries ...Entry) error
	Query(ctx context.Context, filter Filter) (Entries, error)
}

// Recorder converts committed circulation events into entries and appends them to a Store.
// It implements circulation.Journal.
type Recorder struct {
	store  Store
	source string
}

// NewRecorder creates a Recorder. The source is copied into the metadata of every entry.
func NewRecorder(store Store, source string) (*Recorder, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	return &Recorder{store: store, source: source}, nil
}

// Append converts the events and appends them as one batch.
func (r *Recorder) Append(ctx context.Context, events ...circulation.Event) error {
	if len(events) == 0 {
		return nil
	}

	entries, err := EntriesFrom(events, MetadataFromContext(ctx, r.source))
	if err != nil {
		return err
	}

	if err = r.store.Append(ctx, entries...); err != nil {
		return fmt.Errorf("appending %d entries: %w", len(entries), err)
	}

	return nil
}
