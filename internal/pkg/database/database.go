package database

import (
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/barotovamirbek/elowy-chat/internal/config"
	"github.com/barotovamirbek/elowy-chat/internal/pkg/database/migrations"
)

// Connect opens the pool and checks the database is reachable.
func Connect(cfg config.DatabaseConfig, log logrus.FieldLogger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to database")
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Info("connected to database")
	return db, nil
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sqlx.DB, log logrus.FieldLogger) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return errors.Wrap(err, "open migration source")
	}
	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return errors.Wrap(err, "open migration driver")
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return errors.Wrap(err, "create migrator")
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "apply migrations")
	}
	version, dirty, _ := m.Version()
	log.WithFields(logrus.Fields{"version": version, "dirty": dirty}).Info("database schema up to date")
	return nil
}
