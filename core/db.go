package core

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type (
	// DBExecutor runs queries; satisfied by *sqlx.DB and *sqlx.Tx.
	// Repositories take an optional trailing DBExecutor so a service-owned
	// transaction flows through every call it covers.
	DBExecutor interface {
		sqlx.ExtContext
	}

	DB interface {
		DBExecutor

		BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
	}

	DBTransactor interface {
		Commit() error
		Rollback() error
	}
)

// BeginTx opens a transaction on db and returns it both as a transactor and
// as the executor slice to forward to repository calls. A nil db (in-memory
// repositories in tests) yields a no-op transactor.
func BeginTx(ctx context.Context, db DB) (DBTransactor, []DBExecutor, error) {
	if db == nil {
		return noopTx{}, nil, nil
	}
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	return tx, []DBExecutor{tx}, nil
}

type noopTx struct{}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}
