package commands

import (
	"database/sql"

	"github.com/driftpad/driftpad/conf"
	"github.com/driftpad/driftpad/db"
	"github.com/driftpad/driftpad/errors"
	"github.com/driftpad/driftpad/logger"
)

// openDatabase opens and migrates the database from configuration. dbPath,
// when non-empty, overrides the configured path.
func openDatabase(cfg *conf.Config, dbPath string) (*sql.DB, error) {
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}

	database, err := db.Open(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}

	if err := db.Migrate(database, logger.Logger); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to run migrations on %s", dbPath)
	}

	return database, nil
}
