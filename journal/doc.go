// Package journal records committed circulation events as an append-only audit trail.
//
// Events are stored as Entry values built on scalars: the engine-wide position, the event type,
// the time it occurred and JSON payload and metadata. A Filter selects entries by event type,
// payload predicates, occurrence time and position:
//
//	filter := journal.BuildFilter().
//		AnyEventTypeOf(circulation.ItemIssuedEventType, circulation.ItemReturnedEventType).
//		AnyPredicateOf(journal.ForItem(itemID)).
//		Finalize()
//
//	entries, err := store.Query(ctx, filter)
//
// MemoryJournal keeps entries in process; the postgresjournal subpackage stores them in PostgreSQL.
// The engine never reads the journal back.
package journal
