package adapters

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// sqlExecutor is the part of sql.DB and sqlx.DB the journal uses.
type sqlExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLAdapter runs journal statements on sql.DB or sqlx.DB.
type SQLAdapter struct {
	db sqlExecutor
}

func NewSQLAdapter(db *sql.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

func NewSQLXAdapter(db *sqlx.DB) *SQLAdapter {
	return &SQLAdapter{db: db}
}

func (a *SQLAdapter) Insert(ctx context.Context, statement string) (int64, error) {
	result, err := a.db.ExecContext(ctx, statement)
	if err != nil {
		return 0, err
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Join(ErrRowsAffectedUnknown, err)
	}

	return inserted, nil
}

func (a *SQLAdapter) Select(ctx context.Context, statement string) (DBRows, error) {
	rows, err := a.db.QueryContext(ctx, statement)
	if err != nil {
		return nil, err
	}

	return rows, nil
}
