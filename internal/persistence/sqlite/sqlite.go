// Package sqlite is the default persistence backend, storing every
// collection in a single SQLite database file.
package sqlite

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Storage bundles the SQLite repositories behind one connection pool. It
// satisfies every repository interface in the persistence package.
type Storage struct {
	pool *ConnectionPool

	*EmployeeRepository
	*LocationRepository
	*ShiftRepository
	*BingoRepository
	*InviteRepository
	*SessionRepository
	*OAuthRepository
}

// Open connects to the database at dsn. Call Migrate before first use.
func Open(dsn string) (*Storage, error) {
	pool, err := NewConnectionPool(dsn)
	if err != nil {
		return nil, err
	}
	return &Storage{
		pool:               pool,
		EmployeeRepository: NewEmployeeRepository(pool),
		LocationRepository: NewLocationRepository(pool),
		ShiftRepository:    NewShiftRepository(pool),
		BingoRepository:    NewBingoRepository(pool),
		InviteRepository:   NewInviteRepository(pool),
		SessionRepository:  NewSessionRepository(pool),
		OAuthRepository:    NewOAuthRepository(pool),
	}, nil
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies the embedded schema migrations. Running it on an up to
// date database is a no-op.
func (s *Storage) Migrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := s.migrator()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version and whether the last
// migration left the schema dirty.
func (s *Storage) SchemaVersion() (uint, bool, error) {
	m, err := s.migrator()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// migrator builds a migrate instance over the shared handle. It is never
// closed: closing it would close the pool's *sql.DB.
func (s *Storage) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.pool.DB(), &migratesqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to prepare migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare migrations: %w", err)
	}
	return m, nil
}
