package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/testfixtures"
)

func TestStaffLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	base := testfixtures.ReferenceTime()

	host := testfixtures.NewEmployeeFixture(
		testfixtures.WithEmployeeEmail("Sandy@MyBeachTrivia.com"),
		testfixtures.WithEmployeeName("Sandy", "Shore"),
		testfixtures.WithEmployeeAdmin(),
	)
	if err := harness.Employees.CreateEmployee(ctx, host.Persistence()); err != nil {
		t.Fatalf("CreateEmployee failed: %v", err)
	}
	if err := harness.Credentials.SetCredential(ctx, host.Credential()); err != nil {
		t.Fatalf("SetCredential failed: %v", err)
	}

	fetched, err := harness.Employees.GetEmployeeByEmail(ctx, "sandy@mybeachtrivia.com")
	if err != nil {
		t.Fatalf("GetEmployeeByEmail failed: %v", err)
	}
	if fetched.ID != host.ID || len(fetched.Roles) != 2 {
		t.Fatalf("unexpected employee %#v", fetched)
	}

	session := testfixtures.NewSessionFixture(
		testfixtures.WithSessionEmployee(host.ID),
		testfixtures.WithSessionToken("sandy-token"),
	)
	if _, err := harness.Sessions.CreateSession(ctx, session.Persistence()); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	revoked, err := harness.Sessions.RevokeSession(ctx, "sandy-token", base.Add(time.Hour))
	if err != nil {
		t.Fatalf("RevokeSession failed: %v", err)
	}
	if revoked.RevokedAt == nil {
		t.Fatalf("expected revoked session")
	}

	if err := harness.Employees.DeleteEmployee(ctx, host.ID); err != nil {
		t.Fatalf("DeleteEmployee failed: %v", err)
	}
	if _, err := harness.Credentials.GetCredential(ctx, host.ID); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected credential to be removed with the employee, got %v", err)
	}
	if _, err := harness.Sessions.GetSession(ctx, "sandy-token"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected session to be removed with the employee, got %v", err)
	}
}

func TestCalendarQueries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)

	venue := testfixtures.NewLocationFixture(
		testfixtures.WithLocationName("Tiki Bar"),
		testfixtures.WithLocationNights(time.Tuesday, time.Friday),
	)
	if err := harness.Locations.CreateLocation(ctx, venue.Persistence()); err != nil {
		t.Fatalf("CreateLocation failed: %v", err)
	}
	clash := testfixtures.NewLocationFixture(testfixtures.WithLocationName("tiki bar"))
	if err := harness.Locations.CreateLocation(ctx, clash.Persistence()); !errors.Is(err, persistence.ErrDuplicate) {
		t.Fatalf("expected venue names to be unique regardless of case, got %v", err)
	}

	byName, err := harness.Locations.GetLocationByName(ctx, "TIKI BAR")
	if err != nil {
		t.Fatalf("GetLocationByName failed: %v", err)
	}
	if len(byName.WeeklyNights) != 2 || byName.WeeklyNights[1] != "friday" {
		t.Fatalf("expected nights to round trip, got %v", byName.WeeklyNights)
	}

	for _, date := range []string{"2024-03-09", "2024-03-10", "2024-03-16", "2024-03-17"} {
		shift := testfixtures.NewShiftFixture(
			testfixtures.WithShiftDate(date),
			testfixtures.WithShiftLocation("Tiki Bar"),
		)
		if err := harness.Shifts.CreateShift(ctx, shift.Persistence()); err != nil {
			t.Fatalf("CreateShift(%s) failed: %v", date, err)
		}
	}

	week, err := harness.Shifts.ListShifts(ctx, persistence.ShiftFilter{From: "2024-03-10", To: "2024-03-17"})
	if err != nil {
		t.Fatalf("ListShifts failed: %v", err)
	}
	if len(week) != 2 || week[0].Date != "2024-03-10" || week[1].Date != "2024-03-16" {
		t.Fatalf("expected the Sunday through Saturday shifts, got %#v", week)
	}
}

func TestBingoRecords(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	harness := testfixtures.NewSQLiteHarness(t)
	base := testfixtures.ReferenceTime()

	playlist := testfixtures.NewPlaylistFixture()
	if err := harness.Playlists.CreatePlaylist(ctx, playlist.Persistence()); err != nil {
		t.Fatalf("CreatePlaylist failed: %v", err)
	}
	stored, err := harness.Playlists.GetPlaylist(ctx, playlist.ID)
	if err != nil {
		t.Fatalf("GetPlaylist failed: %v", err)
	}
	if len(stored.Songs) != len(playlist.Songs) || stored.Songs[0].Title != "Track 01" {
		t.Fatalf("expected songs in order, got %d songs", len(stored.Songs))
	}

	game := persistence.Game{
		ID:               "game-1",
		HostID:           playlist.CreatedBy,
		PlaylistID:       playlist.ID,
		Status:           "pending",
		CurrentSongIndex: -1,
		JoinCode:         "BEACH7",
		CreatedAt:        base,
		UpdatedAt:        base,
	}
	if err := harness.Games.CreateGame(ctx, game); err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	byCode, err := harness.Games.GetGameByJoinCode(ctx, "BEACH7")
	if err != nil {
		t.Fatalf("GetGameByJoinCode failed: %v", err)
	}
	if byCode.ID != game.ID {
		t.Fatalf("expected game-1, got %q", byCode.ID)
	}

	players := []persistence.Player{
		{GameID: game.ID, PlayerID: "p-1", DisplayName: "Table 4", JoinedAt: base, LastSeenAt: base},
		{GameID: game.ID, PlayerID: "p-2", DisplayName: "Table 9", JoinedAt: base, LastSeenAt: base.Add(10 * time.Minute)},
	}
	for _, player := range players {
		if err := harness.Players.UpsertPlayer(ctx, player); err != nil {
			t.Fatalf("UpsertPlayer failed: %v", err)
		}
	}

	removed, err := harness.Players.DeleteStalePlayers(ctx, base.Add(5*time.Minute))
	if err != nil {
		t.Fatalf("DeleteStalePlayers failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected one stale player, got %d", removed)
	}
	remaining, err := harness.Players.ListPlayers(ctx, game.ID)
	if err != nil {
		t.Fatalf("ListPlayers failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].PlayerID != "p-2" {
		t.Fatalf("expected p-2 to remain, got %#v", remaining)
	}
}
