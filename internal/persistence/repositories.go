package persistence

import (
	"context"
	"time"
)

// EmployeeFilter narrows employee listings.
type EmployeeFilter struct {
	Active *bool
}

// EmployeeRepository exposes CRUD operations for employees. DeleteEmployee
// also removes the employee's credential and sessions.
type EmployeeRepository interface {
	CreateEmployee(ctx context.Context, employee Employee) error
	UpdateEmployee(ctx context.Context, employee Employee) error
	GetEmployee(ctx context.Context, id string) (Employee, error)
	GetEmployeeByEmail(ctx context.Context, email string) (Employee, error)
	ListEmployees(ctx context.Context, filter EmployeeFilter) ([]Employee, error)
	DeleteEmployee(ctx context.Context, id string) error
}

// CredentialRepository stores password hashes.
type CredentialRepository interface {
	SetCredential(ctx context.Context, credential Credential) error
	GetCredential(ctx context.Context, employeeID string) (Credential, error)
}

// LocationFilter narrows location listings.
type LocationFilter struct {
	Active *bool
}

// LocationRepository exposes CRUD operations for venues.
type LocationRepository interface {
	CreateLocation(ctx context.Context, location Location) error
	UpdateLocation(ctx context.Context, location Location) error
	GetLocation(ctx context.Context, id string) (Location, error)
	GetLocationByName(ctx context.Context, name string) (Location, error)
	ListLocations(ctx context.Context, filter LocationFilter) ([]Location, error)
	DeleteLocation(ctx context.Context, id string) error
}

// ShiftFilter narrows shift queries. From is inclusive and To exclusive, both
// YYYY-MM-DD; empty bounds are open.
type ShiftFilter struct {
	From       string
	To         string
	EmployeeID string
	Location   string
}

// ShiftRepository stores shifts.
type ShiftRepository interface {
	CreateShift(ctx context.Context, shift Shift) error
	UpdateShift(ctx context.Context, shift Shift) error
	GetShift(ctx context.Context, id string) (Shift, error)
	ListShifts(ctx context.Context, filter ShiftFilter) ([]Shift, error)
	DeleteShift(ctx context.Context, id string) error
}

// PlaylistRepository stores bingo playlists with their songs.
type PlaylistRepository interface {
	CreatePlaylist(ctx context.Context, playlist Playlist) error
	UpdatePlaylist(ctx context.Context, playlist Playlist) error
	GetPlaylist(ctx context.Context, id string) (Playlist, error)
	ListPlaylists(ctx context.Context) ([]Playlist, error)
	DeletePlaylist(ctx context.Context, id string) error
}

// GameFilter narrows game listings.
type GameFilter struct {
	HostID     string
	PlaylistID string
	Status     string
}

// GameRepository stores bingo games.
type GameRepository interface {
	CreateGame(ctx context.Context, game Game) error
	UpdateGame(ctx context.Context, game Game) error
	GetGame(ctx context.Context, id string) (Game, error)
	GetGameByJoinCode(ctx context.Context, code string) (Game, error)
	ListGames(ctx context.Context, filter GameFilter) ([]Game, error)
}

// PlayerRepository stores game participants.
type PlayerRepository interface {
	UpsertPlayer(ctx context.Context, player Player) error
	GetPlayer(ctx context.Context, gameID, playerID string) (Player, error)
	ListPlayers(ctx context.Context, gameID string) ([]Player, error)
	DeleteStalePlayers(ctx context.Context, seenBefore time.Time) (int64, error)
}

// InviteRepository stores staff invitations.
type InviteRepository interface {
	CreateInvite(ctx context.Context, invite Invite) error
	GetInvite(ctx context.Context, id string) (Invite, error)
	UpdateInvite(ctx context.Context, invite Invite) error
}

// SessionRepository stores authentication session state.
type SessionRepository interface {
	CreateSession(ctx context.Context, session Session) (Session, error)
	GetSession(ctx context.Context, token string) (Session, error)
	UpdateSession(ctx context.Context, session Session) (Session, error)
	RevokeSession(ctx context.Context, token string, revokedAt time.Time) (Session, error)
	DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error)
}

// OAuthRepository stores streaming authorization state and grants.
type OAuthRepository interface {
	CreateOAuthState(ctx context.Context, state OAuthState) error
	// ConsumeOAuthState returns and deletes the state in one step so a state
	// value can be redeemed once.
	ConsumeOAuthState(ctx context.Context, state string) (OAuthState, error)
	DeleteExpiredOAuthStates(ctx context.Context, reference time.Time) (int64, error)
	SaveStreamingToken(ctx context.Context, token StreamingToken) error
	GetStreamingToken(ctx context.Context, employeeID string) (StreamingToken, error)
	DeleteRevokedStreamingTokens(ctx context.Context) (int64, error)
}
