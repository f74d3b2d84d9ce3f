package database

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/pkg/errors"

	"github.com/mbolis/prom-tracker/log"
)

//go:embed migrations
var dbMigrations embed.FS

// migrateDB applies every pending migration and reports the schema version
// the database ends up at.
func migrateDB(db *sql.DB) (uint, error) {
	src, err := iofs.New(dbMigrations, "migrations")
	if err != nil {
		return 0, errors.Wrap(err, "migrate.source")
	}

	dst, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return 0, errors.Wrap(err, "migrate.driver")
	}

	migrator, err := migrate.NewWithInstance("iofs", src, "sqlite3", dst)
	if err != nil {
		return 0, errors.Wrap(err, "migrate.init")
	}

	err = migrator.Up()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Debug("db schema already up to date")
	case err != nil:
		return 0, errors.Wrap(err, "migrate.up")
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return 0, errors.Wrap(err, "migrate.version")
	}
	if dirty {
		return version, errors.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}
