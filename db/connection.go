// Package db owns the SQLite connection and schema: pragma setup, embedded
// migrations, and driver-error classification.
package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
)

// Connection pragmas. WAL lets pulls read while a push batch commits;
// foreign keys guard the tenant-scoped references; the busy timeout keeps
// a second writer from failing immediately.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// Open opens the SQLite database at path and applies the connection
// pragmas. A nil logger runs silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}

	if logger != nil {
		logger.Infow("database opened", "path", path)
	}
	return db, nil
}
