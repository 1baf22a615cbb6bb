package adapters

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGXAdapter runs journal statements on a pgxpool.Pool.
// Statements use the simple protocol: each one carries its own literals and would otherwise
// take a slot in the pool's prepared statement cache.
type PGXAdapter struct {
	pool *pgxpool.Pool
}

func NewPGXAdapter(pool *pgxpool.Pool) *PGXAdapter {
	return &PGXAdapter{pool: pool}
}

func (a *PGXAdapter) Insert(ctx context.Context, statement string) (int64, error) {
	tag, err := a.pool.Exec(ctx, statement, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (a *PGXAdapter) Select(ctx context.Context, statement string) (DBRows, error) {
	rows, err := a.pool.Query(ctx, statement, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return nil, err
	}

	return pgxRows{Rows: rows}, nil
}

// pgxRows reports close failures through Err, as pgx does.
type pgxRows struct {
	pgx.Rows
}

func (r pgxRows) Close() error {
	r.Rows.Close()
	return nil
}
