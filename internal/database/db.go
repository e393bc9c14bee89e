package database

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sql.DB / *sql.Tx the query layer depends on.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries bundles the hand-written SQL used by the core components. It runs
// against either a connection pool or an open transaction.
type Queries struct {
	db DBTX
}

// New constructs a Queries instance from a connection or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// NewQueries creates a Queries instance from a database connection.
func NewQueries(db *sql.DB) *Queries {
	return New(db)
}

// WithTx returns a Queries bound to the given transaction.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}
