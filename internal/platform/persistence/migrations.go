package persistence

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the payees, bookings and payment_outbox tables up to
// date. A schema left dirty by an interrupted run is reported, never forced.
func RunMigrations(logger *slog.Logger, databaseURL, migrationsPath string) (err error) {
	if migrationsPath == "" {
		return errors.New("migrations path cannot be empty")
	}
	if databaseURL == "" {
		return errors.New("database URL cannot be empty")
	}

	m, err := migrate.New("file://"+migrationsPath, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		err = errors.Join(err, wrapIf("migration source error", sourceErr), wrapIf("migration database error", dbErr))
	}()

	if version, dirty, verr := m.Version(); verr == nil && dirty {
		return fmt.Errorf("payment schema is dirty at version %d, resolve it before starting", version)
	}

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", upErr)
	}

	version, _, verr := m.Version()
	if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read schema version: %w", verr)
	}
	logger.Info("Payment schema ready",
		"version", version,
		"applied", upErr == nil,
		"path", migrationsPath,
	)
	return nil
}

func wrapIf(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
