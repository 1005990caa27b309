// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package migration applies the users.account schema with golang-migrate
// before the API starts serving.
//
// Startup refuses to continue when the database is dirty (a previous
// migration failed halfway) or when, after migrating, the schema is still
// older than [SchemaVersion].
package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	// file source reads .sql files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// SchemaVersion is the lowest migration version the account store queries against.
const SchemaVersion uint = 1

var (
	// ErrDirty reports a database left mid-migration. It needs manual repair
	// (migrate force) before the service can start.
	ErrDirty = errors.New("migration: database is dirty")

	// ErrSchemaBehind reports a database still below [SchemaVersion] after
	// all available migrations ran, usually a wrong MIGRATION_PATH.
	ErrSchemaBehind = errors.New("migration: schema is behind")
)

/*
RunUp applies all pending UP migrations found under migrationsPath.

Parameters:
  - dsn: A postgres:// or postgresql:// URL (pgx5:// is accepted as-is)
  - migrationsPath: Filesystem path to the migrations directory
  - logger: Structured logger; debug level also enables golang-migrate's verbose output

Returns:
  - error: ErrDirty, ErrSchemaBehind, or driver/source failures
*/
func RunUp(dsn string, migrationsPath string, logger *slog.Logger) error {
	migrator, err := migrate.New("file://"+migrationsPath, pgx5DSN(dsn))
	if err != nil {
		return fmt.Errorf("migration_init_failed: %w", err)
	}
	defer func() {
		sourceErr, dbErr := migrator.Close()
		if sourceErr != nil {
			logger.Error("migration_source_close_failed", slog.Any("error", sourceErr))
		}
		if dbErr != nil {
			logger.Error("migration_db_close_failed", slog.Any("error", dbErr))
		}
	}()

	migrator.Log = &migrateLogger{
		logger:  logger,
		verbose: logger.Enabled(context.Background(), slog.LevelDebug),
	}

	from, err := version(migrator)
	if err != nil {
		return err
	}

	logger.Info("migration_started", slog.Uint64("current_version", uint64(from)))

	err = migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration_up_failed: %w", err)
	}

	to, err := version(migrator)
	if err != nil {
		return err
	}
	if to < SchemaVersion {
		return fmt.Errorf("%w: at version %d, need %d (path %q)", ErrSchemaBehind, to, SchemaVersion, migrationsPath)
	}

	if to == from {
		logger.Info("migration_already_up_to_date", slog.Uint64("version", uint64(to)))
		return nil
	}

	logger.Info("migration_successful",
		slog.Uint64("from_version", uint64(from)),
		slog.Uint64("to_version", uint64(to)),
	)

	return nil
}

// version returns the applied version, 0 for an empty database.
func version(migrator *migrate.Migrate) (uint, error) {
	current, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("migration_version_failed: %w", err)
	}
	if dirty {
		return current, fmt.Errorf("%w at version %d", ErrDirty, current)
	}
	return current, nil
}

// pgx5DSN rewrites the scheme to pgx5://, which the golang-migrate pgx/v5 driver registers.
func pgx5DSN(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(dsn, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return dsn
}

// migrateLogger adapts golang-migrate's logger interface to slog.
type migrateLogger struct {
	logger  *slog.Logger
	verbose bool
}

// Printf implements migrate.Logger.
func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug("migration_event", slog.String("detail", strings.TrimSpace(fmt.Sprintf(format, args...))))
}

// Verbose implements migrate.Logger.
func (l *migrateLogger) Verbose() bool {
	return l.verbose
}
