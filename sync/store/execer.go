// Package store provides the SQLite repositories for synchronized entities,
// the append-only change event log, and the reconciliation bookkeeping tables.
//
// Every method takes the caller's execution scope (an Execer) as its first
// argument, so the same repository code runs against a bare connection or
// inside a transaction owned by the orchestrator. Repositories never open
// transactions themselves.
package store

import (
	"database/sql"

	"github.com/driftpad/driftpad/errors"
)

// Execer is the execution scope a repository operates in. Both *sql.DB and
// *sql.Tx satisfy it.
type Execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// WithTx runs fn inside a transaction. A nil error from fn commits; any
// error (or panic) rolls the whole unit of work back.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}
