// Package circulation tracks which items of a library are available, who holds them,
// and who is waiting for them.
//
// The Engine serializes every issue, return, reservation and registration through one
// engine-wide lock owned by its Catalog. Reads (Search, Statistics, lookups) share that lock
// and always return snapshots, never live references.
//
// Loan entitlements are a table lookup on the holder's Category:
//   - Student: 14 days, 3 items
//   - Teacher: 30 days, 5 items
//   - Guest: 7 days, 1 item
//   - Librarian: 60 days, 10 items, may list holders and overdue items
//
// Returning an item with a non-empty wait-list hands it to the head of the list when that
// holder can still borrow. What happens to an ineligible head is selected with WithHandOffPolicy.
//
// Common usage pattern:
//
//	engine, err := circulation.NewEngine(
//		circulation.WithIssuerName("City Library"),
//		circulation.WithNotifier(notifier),
//		circulation.WithContextualLogger(slog.Default()),
//	)
//
//	item, _ := engine.RegisterItem(ctx, uuid.Nil, circulation.ItemDetails{Title: "Dune", Creator: "Frank Herbert", Category: "Fiction"})
//	reader, _ := engine.RegisterHolder(ctx, uuid.Nil, contact, circulation.CategoryStudent)
//
//	if _, err = engine.Issue(ctx, item.ID, reader.ID); errors.Is(err, circulation.ErrAlreadyIssued) {
//		_, err = engine.Reserve(ctx, item.ID, reader.ID)
//	}
//
// Committed transitions are published as Events to an optional Journal. Journal appends and
// notices are delivered in commit order on a background goroutine; their failures are logged and
// never undo a transition. Call Flush before shutting down to wait for them.
package circulation
