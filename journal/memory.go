package journal

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryJournal is a Store keeping entries in process. It is safe for concurrent use.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries Entries
}

// NewMemoryJournal creates an empty MemoryJournal.
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

// Append inserts the entries at their positions. The batch is rejected as a whole if any
// position is already journaled or repeated within the batch.
func (m *MemoryJournal) Append(ctx context.Context, entries ...Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[uint64]struct{}, len(entries))
	for _, entry := range entries {
		_, repeated := seen[entry.Position]
		if _, found := m.search(entry.Position); found || repeated {
			return fmt.Errorf("%w: %d", ErrDuplicatePosition, entry.Position)
		}

		seen[entry.Position] = struct{}{}
	}

	for _, entry := range entries {
		idx, _ := m.search(entry.Position)
		m.entries = slices.Insert(m.entries, idx, entry)
	}

	return nil
}

// Query returns copies of the matching entries ordered by position.
func (m *MemoryJournal) Query(ctx context.Context, filter Filter) (Entries, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	start, _ := slices.BinarySearchFunc(m.entries, filter.AfterPosition()+1, comparePosition)

	result := make(Entries, 0)
	for _, entry := range m.entries[start:] {
		if filter.Matches(entry) {
			entry.PayloadJSON = slices.Clone(entry.PayloadJSON)
			entry.MetadataJSON = slices.Clone(entry.MetadataJSON)
			result = append(result, entry)
		}
	}

	return result, nil
}

// Len returns the number of journaled entries.
func (m *MemoryJournal) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

func (m *MemoryJournal) search(position uint64) (int, bool) {
	return slices.BinarySearchFunc(m.entries, position, comparePosition)
}

func comparePosition(entry Entry, position uint64) int {
	return cmp.Compare(entry.Position, position)
}
