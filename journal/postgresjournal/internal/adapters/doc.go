// Package adapters lets the postgres journal run on pgxpool.Pool, sql.DB and sqlx.DB through one DBAdapter interface.
package adapters
