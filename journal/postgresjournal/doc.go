// Package postgresjournal stores journal entries in a PostgreSQL table.
//
// It runs on a pgxpool.Pool, a sql.DB or a sqlx.DB. SQL is built with goqu and
// the table is created by the embedded migrations applied with Migrate:
//
//	if err := postgresjournal.Migrate(ctx, db); err != nil {
//		return err
//	}
//
//	store, err := postgresjournal.NewJournalFromSQLDB(db, postgresjournal.WithLogger(slog.Default()))
//	recorder, err := journal.NewRecorder(store, "circulationd")
//	engine, err := circulation.NewEngine(circulation.WithJournal(recorder))
package postgresjournal
