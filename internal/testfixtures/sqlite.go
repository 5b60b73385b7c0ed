package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence/sqlite"
)

// SQLiteHarness provides repository access backed by a temporary SQLite storage
// instance for integration-style persistence tests.
type SQLiteHarness struct {
	Employees   persistence.EmployeeRepository
	Credentials persistence.CredentialRepository
	Locations   persistence.LocationRepository
	Shifts      persistence.ShiftRepository
	Playlists   persistence.PlaylistRepository
	Games       persistence.GameRepository
	Players     persistence.PlayerRepository
	Invites     persistence.InviteRepository
	Sessions    persistence.SessionRepository
	OAuth       persistence.OAuthRepository

	cleanup func()
}

// Close releases resources associated with the harness.
func (h *SQLiteHarness) Close() {
	if h != nil && h.cleanup != nil {
		h.cleanup()
		h.cleanup = nil
	}
}

// NewSQLiteHarness constructs a SQLiteHarness using a temporary file that is
// migrated automatically. The harness closes itself through tb.Cleanup.
func NewSQLiteHarness(tb testing.TB) *SQLiteHarness {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "beachtrivia.db")

	storage, err := sqlite.Open("file:" + path)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}

	if err := storage.Migrate(context.Background()); err != nil {
		_ = storage.Close()
		tb.Fatalf("failed to migrate storage: %v", err)
	}

	harness := &SQLiteHarness{
		Employees:   storage,
		Credentials: storage,
		Locations:   storage,
		Shifts:      storage,
		Playlists:   storage,
		Games:       storage,
		Players:     storage,
		Invites:     storage,
		Sessions:    storage,
		OAuth:       storage,
		cleanup: func() {
			_ = storage.Close()
		},
	}

	tb.Cleanup(harness.Close)
	return harness
}
