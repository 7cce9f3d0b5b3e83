package db

import (
	"database/sql"
	"embed"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/driftpad/driftpad/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migrate applies every pending migration in lexical filename order, each in
// its own transaction. A nil logger runs silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	files, err := migrationFiles()
	if err != nil {
		return err
	}

	applied := 0
	for _, filename := range files {
		version := strings.SplitN(filename, "_", 2)[0]

		done, err := alreadyApplied(db, version, filename)
		if err != nil {
			return err
		}
		if done {
			if logger != nil {
				logger.Debugw("migration already applied", "migration", filename)
			}
			continue
		}

		if logger != nil {
			logger.Infow("applying migration", "migration", filename)
		}
		if err := applyMigration(db, version, filename); err != nil {
			return err
		}
		applied++
	}

	if logger != nil {
		logger.Infow("migrations complete", "applied", applied, "total", len(files))
	}
	return nil
}

func migrationFiles() ([]string, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// alreadyApplied consults schema_migrations. The table itself is created by
// migration 000, so a missing table is only legal while applying 000.
func alreadyApplied(db *sql.DB, version, filename string) (bool, error) {
	var exists bool
	err := db.QueryRow(
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)",
		version).Scan(&exists)
	if err != nil {
		if version != "000" {
			return false, errors.Newf("schema_migrations missing before %s", filename)
		}
		return false, nil
	}
	return exists, nil
}

func applyMigration(db *sql.DB, version, filename string) error {
	script, err := migrations.ReadFile(filepath.Join(migrationsDir, filename))
	if err != nil {
		return errors.Wrapf(err, "read %s", filename)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", filename)
	}
	if _, err := tx.Exec(string(script)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", filename)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", filename)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", filename)
}
