// Package gen is the query layer over queries/*.sql. It keeps sqlc's shape (Queries, DBTX, one
// *Params struct per query) and is maintained by hand: when a query changes, update the SQL constant
// here and the matching file under queries/. Parameter names follow the sqlc.arg/sqlc.narg annotations.
package gen

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}
