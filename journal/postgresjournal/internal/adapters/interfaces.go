package adapters

import (
	"context"
	"errors"
)

// ErrRowsAffectedUnknown is returned by Insert when the driver wrote the rows but could not count them.
var ErrRowsAffectedUnknown = errors.New("rows affected count unavailable")

// DBAdapter runs the journal's statements. goqu renders every value into the statement text,
// so neither method takes arguments.
type DBAdapter interface {
	// Insert runs an INSERT and returns how many rows were written.
	Insert(ctx context.Context, statement string) (int64, error)

	// Select runs a SELECT. The caller closes the rows.
	Select(ctx context.Context, statement string) (DBRows, error)
}

// DBRows is the row iterator shared by the drivers. *sql.Rows satisfies it as is.
type DBRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}
