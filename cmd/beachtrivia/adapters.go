package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/recurrence"
)

// backend is satisfied by both the SQLite and the Firestore stores.
type backend interface {
	persistence.EmployeeRepository
	persistence.CredentialRepository
	persistence.LocationRepository
	persistence.ShiftRepository
	persistence.PlaylistRepository
	persistence.GameRepository
	persistence.PlayerRepository
	persistence.InviteRepository
	persistence.SessionRepository
	persistence.OAuthRepository
	Ping(ctx context.Context) error
	Close() error
}

// repositories translates between the application model and the storage
// records. One value serves every repository interface the services need.
type repositories struct {
	store backend
	now   func() time.Time
}

func newRepositories(store backend, now func() time.Time) *repositories {
	if now == nil {
		now = time.Now
	}
	return &repositories{store: store, now: now}
}

// Employees

func (r *repositories) CreateEmployee(ctx context.Context, employee application.Employee) (application.Employee, error) {
	if err := r.store.CreateEmployee(ctx, toPersistenceEmployee(employee)); err != nil {
		return application.Employee{}, err
	}
	return r.GetEmployee(ctx, employee.ID)
}

func (r *repositories) GetEmployee(ctx context.Context, id string) (application.Employee, error) {
	stored, err := r.store.GetEmployee(ctx, id)
	if err != nil {
		return application.Employee{}, err
	}
	return toApplicationEmployee(stored), nil
}

func (r *repositories) GetEmployeeByEmail(ctx context.Context, email string) (application.Employee, error) {
	stored, err := r.store.GetEmployeeByEmail(ctx, email)
	if err != nil {
		return application.Employee{}, err
	}
	return toApplicationEmployee(stored), nil
}

func (r *repositories) UpdateEmployee(ctx context.Context, employee application.Employee) (application.Employee, error) {
	if err := r.store.UpdateEmployee(ctx, toPersistenceEmployee(employee)); err != nil {
		return application.Employee{}, err
	}
	return r.GetEmployee(ctx, employee.ID)
}

func (r *repositories) DeleteEmployee(ctx context.Context, id string) error {
	return r.store.DeleteEmployee(ctx, id)
}

func (r *repositories) ListEmployees(ctx context.Context, filter application.EmployeeFilter) ([]application.Employee, error) {
	stored, err := r.store.ListEmployees(ctx, persistence.EmployeeFilter{Active: filter.Active})
	if err != nil {
		return nil, err
	}
	out := make([]application.Employee, 0, len(stored))
	for _, employee := range stored {
		out = append(out, toApplicationEmployee(employee))
	}
	return out, nil
}

// GetEmployeeCredentialsByEmail returns an empty hash for employees who have
// not finished onboarding.
func (r *repositories) GetEmployeeCredentialsByEmail(ctx context.Context, email string) (application.EmployeeCredentials, error) {
	employee, err := r.GetEmployeeByEmail(ctx, email)
	if err != nil {
		return application.EmployeeCredentials{}, err
	}
	credential, err := r.store.GetCredential(ctx, employee.ID)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return application.EmployeeCredentials{}, err
	}
	return application.EmployeeCredentials{Employee: employee, PasswordHash: credential.PasswordHash}, nil
}

func (r *repositories) SetPassword(ctx context.Context, employeeID, passwordHash string) error {
	return r.store.SetCredential(ctx, persistence.Credential{
		EmployeeID:   employeeID,
		PasswordHash: passwordHash,
		UpdatedAt:    r.now().UTC(),
	})
}

func (r *repositories) EmployeeExists(ctx context.Context, id string) (bool, error) {
	_, err := r.store.GetEmployee(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, persistence.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (r *repositories) EmployeeNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if _, seen := names[id]; seen || id == "" {
			continue
		}
		employee, err := r.GetEmployee(ctx, id)
		if errors.Is(err, persistence.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		names[id] = employee.DisplayName()
	}
	return names, nil
}

// Locations

func (r *repositories) CreateLocation(ctx context.Context, location application.Location) (application.Location, error) {
	if err := r.store.CreateLocation(ctx, toPersistenceLocation(location)); err != nil {
		return application.Location{}, err
	}
	return r.GetLocation(ctx, location.ID)
}

func (r *repositories) GetLocation(ctx context.Context, id string) (application.Location, error) {
	stored, err := r.store.GetLocation(ctx, id)
	if err != nil {
		return application.Location{}, err
	}
	return toApplicationLocation(stored), nil
}

func (r *repositories) UpdateLocation(ctx context.Context, location application.Location) (application.Location, error) {
	if err := r.store.UpdateLocation(ctx, toPersistenceLocation(location)); err != nil {
		return application.Location{}, err
	}
	return r.GetLocation(ctx, location.ID)
}

func (r *repositories) DeleteLocation(ctx context.Context, id string) error {
	return r.store.DeleteLocation(ctx, id)
}

func (r *repositories) ListLocations(ctx context.Context, filter application.LocationFilter) ([]application.Location, error) {
	stored, err := r.store.ListLocations(ctx, persistence.LocationFilter{Active: filter.Active})
	if err != nil {
		return nil, err
	}
	out := make([]application.Location, 0, len(stored))
	for _, location := range stored {
		out = append(out, toApplicationLocation(location))
	}
	return out, nil
}

func (r *repositories) ResolveLocation(ctx context.Context, name string) (string, bool, error) {
	stored, err := r.store.GetLocationByName(ctx, name)
	switch {
	case err == nil:
		return stored.Name, true, nil
	case errors.Is(err, persistence.ErrNotFound):
		return "", false, nil
	default:
		return "", false, err
	}
}

// Shifts

func (r *repositories) CreateShift(ctx context.Context, shift application.Shift) (application.Shift, error) {
	if err := r.store.CreateShift(ctx, toPersistenceShift(shift)); err != nil {
		return application.Shift{}, err
	}
	return r.GetShift(ctx, shift.ID)
}

func (r *repositories) GetShift(ctx context.Context, id string) (application.Shift, error) {
	stored, err := r.store.GetShift(ctx, id)
	if err != nil {
		return application.Shift{}, err
	}
	return toApplicationShift(stored)
}

func (r *repositories) UpdateShift(ctx context.Context, shift application.Shift) (application.Shift, error) {
	if err := r.store.UpdateShift(ctx, toPersistenceShift(shift)); err != nil {
		return application.Shift{}, err
	}
	return r.GetShift(ctx, shift.ID)
}

func (r *repositories) DeleteShift(ctx context.Context, id string) error {
	return r.store.DeleteShift(ctx, id)
}

func (r *repositories) ListShifts(ctx context.Context, filter application.ShiftRepositoryFilter) ([]application.Shift, error) {
	stored, err := r.store.ListShifts(ctx, persistence.ShiftFilter{
		From:       filter.Range.Start.String(),
		To:         filter.Range.End.String(),
		EmployeeID: filter.EmployeeID,
		Location:   filter.Location,
	})
	if err != nil {
		return nil, err
	}
	out := make([]application.Shift, 0, len(stored))
	for _, model := range stored {
		shift, err := toApplicationShift(model)
		if err != nil {
			return nil, err
		}
		out = append(out, shift)
	}
	return out, nil
}

// Playlists, games and players

func (r *repositories) CreatePlaylist(ctx context.Context, playlist application.Playlist) (application.Playlist, error) {
	if err := r.store.CreatePlaylist(ctx, toPersistencePlaylist(playlist)); err != nil {
		return application.Playlist{}, err
	}
	return r.GetPlaylist(ctx, playlist.ID)
}

func (r *repositories) UpdatePlaylist(ctx context.Context, playlist application.Playlist) (application.Playlist, error) {
	if err := r.store.UpdatePlaylist(ctx, toPersistencePlaylist(playlist)); err != nil {
		return application.Playlist{}, err
	}
	return r.GetPlaylist(ctx, playlist.ID)
}

func (r *repositories) GetPlaylist(ctx context.Context, id string) (application.Playlist, error) {
	stored, err := r.store.GetPlaylist(ctx, id)
	if err != nil {
		return application.Playlist{}, err
	}
	return toApplicationPlaylist(stored), nil
}

func (r *repositories) ListPlaylists(ctx context.Context) ([]application.Playlist, error) {
	stored, err := r.store.ListPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]application.Playlist, 0, len(stored))
	for _, playlist := range stored {
		out = append(out, toApplicationPlaylist(playlist))
	}
	return out, nil
}

func (r *repositories) DeletePlaylist(ctx context.Context, id string) error {
	return r.store.DeletePlaylist(ctx, id)
}

func (r *repositories) CreateGame(ctx context.Context, game application.Game) (application.Game, error) {
	if err := r.store.CreateGame(ctx, toPersistenceGame(game)); err != nil {
		return application.Game{}, err
	}
	return r.GetGame(ctx, game.ID)
}

func (r *repositories) UpdateGame(ctx context.Context, game application.Game) (application.Game, error) {
	if err := r.store.UpdateGame(ctx, toPersistenceGame(game)); err != nil {
		return application.Game{}, err
	}
	return r.GetGame(ctx, game.ID)
}

func (r *repositories) GetGame(ctx context.Context, id string) (application.Game, error) {
	stored, err := r.store.GetGame(ctx, id)
	if err != nil {
		return application.Game{}, err
	}
	return toApplicationGame(stored), nil
}

func (r *repositories) GetGameByJoinCode(ctx context.Context, code string) (application.Game, error) {
	stored, err := r.store.GetGameByJoinCode(ctx, code)
	if err != nil {
		return application.Game{}, err
	}
	return toApplicationGame(stored), nil
}

func (r *repositories) ListGames(ctx context.Context, filter application.GameFilter) ([]application.Game, error) {
	stored, err := r.store.ListGames(ctx, persistence.GameFilter{
		HostID:     filter.HostID,
		PlaylistID: filter.PlaylistID,
		Status:     string(filter.Status),
	})
	if err != nil {
		return nil, err
	}
	out := make([]application.Game, 0, len(stored))
	for _, game := range stored {
		out = append(out, toApplicationGame(game))
	}
	return out, nil
}

func (r *repositories) UpsertPlayer(ctx context.Context, player application.Player) (application.Player, error) {
	if err := r.store.UpsertPlayer(ctx, persistence.Player(player)); err != nil {
		return application.Player{}, err
	}
	return r.GetPlayer(ctx, player.GameID, player.PlayerID)
}

func (r *repositories) GetPlayer(ctx context.Context, gameID, playerID string) (application.Player, error) {
	stored, err := r.store.GetPlayer(ctx, gameID, playerID)
	if err != nil {
		return application.Player{}, err
	}
	return application.Player(stored), nil
}

func (r *repositories) ListPlayers(ctx context.Context, gameID string) ([]application.Player, error) {
	stored, err := r.store.ListPlayers(ctx, gameID)
	if err != nil {
		return nil, err
	}
	out := make([]application.Player, 0, len(stored))
	for _, player := range stored {
		out = append(out, application.Player(player))
	}
	return out, nil
}

func (r *repositories) DeleteStalePlayers(ctx context.Context, seenBefore time.Time) (int64, error) {
	return r.store.DeleteStalePlayers(ctx, seenBefore)
}

// Invites

func (r *repositories) CreateInvite(ctx context.Context, invite application.Invite) (application.Invite, error) {
	if err := r.store.CreateInvite(ctx, toPersistenceInvite(invite)); err != nil {
		return application.Invite{}, err
	}
	return r.GetInvite(ctx, invite.ID)
}

func (r *repositories) GetInvite(ctx context.Context, id string) (application.Invite, error) {
	stored, err := r.store.GetInvite(ctx, id)
	if err != nil {
		return application.Invite{}, err
	}
	return toApplicationInvite(stored), nil
}

func (r *repositories) UpdateInvite(ctx context.Context, invite application.Invite) (application.Invite, error) {
	if err := r.store.UpdateInvite(ctx, toPersistenceInvite(invite)); err != nil {
		return application.Invite{}, err
	}
	return r.GetInvite(ctx, invite.ID)
}

// Sessions

func (r *repositories) CreateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := r.store.CreateSession(ctx, persistence.Session(session))
	if err != nil {
		return application.Session{}, err
	}
	return application.Session(stored), nil
}

func (r *repositories) GetSession(ctx context.Context, token string) (application.Session, error) {
	stored, err := r.store.GetSession(ctx, token)
	if err != nil {
		return application.Session{}, err
	}
	return application.Session(stored), nil
}

func (r *repositories) UpdateSession(ctx context.Context, session application.Session) (application.Session, error) {
	stored, err := r.store.UpdateSession(ctx, persistence.Session(session))
	if err != nil {
		return application.Session{}, err
	}
	return application.Session(stored), nil
}

func (r *repositories) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (application.Session, error) {
	stored, err := r.store.RevokeSession(ctx, token, revokedAt)
	if err != nil {
		return application.Session{}, err
	}
	return application.Session(stored), nil
}

func (r *repositories) DeleteExpiredSessions(ctx context.Context, reference time.Time) (int64, error) {
	return r.store.DeleteExpiredSessions(ctx, reference)
}

// Streaming authorization

func (r *repositories) CreateOAuthState(ctx context.Context, state application.OAuthState) error {
	return r.store.CreateOAuthState(ctx, persistence.OAuthState(state))
}

func (r *repositories) ConsumeOAuthState(ctx context.Context, state string) (application.OAuthState, error) {
	stored, err := r.store.ConsumeOAuthState(ctx, state)
	if err != nil {
		return application.OAuthState{}, err
	}
	return application.OAuthState(stored), nil
}

func (r *repositories) DeleteExpiredOAuthStates(ctx context.Context, reference time.Time) (int64, error) {
	return r.store.DeleteExpiredOAuthStates(ctx, reference)
}

func (r *repositories) SaveStreamingToken(ctx context.Context, token application.StreamingToken) error {
	return r.store.SaveStreamingToken(ctx, persistence.StreamingToken(token))
}

func (r *repositories) GetStreamingToken(ctx context.Context, employeeID string) (application.StreamingToken, error) {
	stored, err := r.store.GetStreamingToken(ctx, employeeID)
	if err != nil {
		return application.StreamingToken{}, err
	}
	return application.StreamingToken(stored), nil
}

func (r *repositories) DeleteRevokedStreamingTokens(ctx context.Context) (int64, error) {
	return r.store.DeleteRevokedStreamingTokens(ctx)
}

func toApplicationEmployee(model persistence.Employee) application.Employee {
	roles := make([]application.Role, 0, len(model.Roles))
	for _, role := range model.Roles {
		roles = append(roles, application.Role(role))
	}
	return application.Employee{
		ID:               model.ID,
		Email:            model.Email,
		FirstName:        model.FirstName,
		LastName:         model.LastName,
		Nickname:         model.Nickname,
		Phone:            model.Phone,
		EmergencyContact: model.EmergencyContact,
		Active:           model.Active,
		Roles:            roles,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toPersistenceEmployee(employee application.Employee) persistence.Employee {
	return persistence.Employee{
		ID:               employee.ID,
		Email:            employee.Email,
		FirstName:        employee.FirstName,
		LastName:         employee.LastName,
		Nickname:         employee.Nickname,
		Phone:            employee.Phone,
		EmergencyContact: employee.EmergencyContact,
		Active:           employee.Active,
		Roles:            roleStrings(employee.Roles),
		CreatedAt:        employee.CreatedAt,
		UpdatedAt:        employee.UpdatedAt,
	}
}

func roleStrings(roles []application.Role) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}

func toApplicationLocation(model persistence.Location) application.Location {
	nights := make([]time.Weekday, 0, len(model.WeeklyNights))
	for _, name := range model.WeeklyNights {
		if day, ok := recurrence.ParseWeekday(name); ok {
			nights = append(nights, day)
		}
	}
	return application.Location{
		ID:               model.ID,
		Name:             model.Name,
		Address:          model.Address,
		ContactName:      model.ContactName,
		ContactEmail:     model.ContactEmail,
		ContactPhone:     model.ContactPhone,
		WeeklyNights:     nights,
		DefaultStartTime: model.DefaultStartTime,
		DefaultEndTime:   model.DefaultEndTime,
		Notes:            model.Notes,
		Active:           model.Active,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toPersistenceLocation(location application.Location) persistence.Location {
	nights := make([]string, 0, len(location.WeeklyNights))
	for _, day := range location.WeeklyNights {
		nights = append(nights, strings.ToLower(day.String()))
	}
	return persistence.Location{
		ID:               location.ID,
		Name:             location.Name,
		Address:          location.Address,
		ContactName:      location.ContactName,
		ContactEmail:     location.ContactEmail,
		ContactPhone:     location.ContactPhone,
		WeeklyNights:     nights,
		DefaultStartTime: location.DefaultStartTime,
		DefaultEndTime:   location.DefaultEndTime,
		Notes:            location.Notes,
		Active:           location.Active,
		CreatedAt:        location.CreatedAt,
		UpdatedAt:        location.UpdatedAt,
	}
}

func toApplicationShift(model persistence.Shift) (application.Shift, error) {
	date, err := calendar.ParseDate(model.Date)
	if err != nil {
		return application.Shift{}, fmt.Errorf("shift %s: %w", model.ID, err)
	}
	start, err := calendar.ParseClock(model.StartTime)
	if err != nil {
		return application.Shift{}, fmt.Errorf("shift %s start: %w", model.ID, err)
	}
	end, err := calendar.ParseClock(model.EndTime)
	if err != nil {
		return application.Shift{}, fmt.Errorf("shift %s end: %w", model.ID, err)
	}
	return application.Shift{
		ID:         model.ID,
		Date:       date,
		EmployeeID: model.EmployeeID,
		StartTime:  start,
		EndTime:    end,
		EventType:  application.EventType(model.EventType),
		Theme:      model.Theme,
		Location:   model.Location,
		Notes:      model.Notes,
		CreatedAt:  model.CreatedAt,
		UpdatedAt:  model.UpdatedAt,
	}, nil
}

func toPersistenceShift(shift application.Shift) persistence.Shift {
	return persistence.Shift{
		ID:         shift.ID,
		Date:       shift.Date.String(),
		EmployeeID: shift.EmployeeID,
		StartTime:  shift.StartTime.String(),
		EndTime:    shift.EndTime.String(),
		EventType:  string(shift.EventType),
		Theme:      shift.Theme,
		Location:   shift.Location,
		Notes:      shift.Notes,
		CreatedAt:  shift.CreatedAt,
		UpdatedAt:  shift.UpdatedAt,
	}
}

func toApplicationPlaylist(model persistence.Playlist) application.Playlist {
	songs := make([]application.Song, 0, len(model.Songs))
	for _, song := range model.Songs {
		songs = append(songs, application.Song(song))
	}
	return application.Playlist{
		ID:        model.ID,
		Name:      model.Name,
		Songs:     songs,
		CreatedBy: model.CreatedBy,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

func toPersistencePlaylist(playlist application.Playlist) persistence.Playlist {
	songs := make([]persistence.Song, 0, len(playlist.Songs))
	for _, song := range playlist.Songs {
		songs = append(songs, persistence.Song(song))
	}
	return persistence.Playlist{
		ID:        playlist.ID,
		Name:      playlist.Name,
		Songs:     songs,
		CreatedBy: playlist.CreatedBy,
		CreatedAt: playlist.CreatedAt,
		UpdatedAt: playlist.UpdatedAt,
	}
}

func toApplicationGame(model persistence.Game) application.Game {
	return application.Game{
		ID:               model.ID,
		HostID:           model.HostID,
		PlaylistID:       model.PlaylistID,
		Location:         model.Location,
		Status:           application.GameStatus(model.Status),
		CurrentSongIndex: model.CurrentSongIndex,
		JoinCode:         model.JoinCode,
		StartedAt:        model.StartedAt,
		EndedAt:          model.EndedAt,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func toPersistenceGame(game application.Game) persistence.Game {
	return persistence.Game{
		ID:               game.ID,
		HostID:           game.HostID,
		PlaylistID:       game.PlaylistID,
		Location:         game.Location,
		Status:           string(game.Status),
		CurrentSongIndex: game.CurrentSongIndex,
		JoinCode:         game.JoinCode,
		StartedAt:        game.StartedAt,
		EndedAt:          game.EndedAt,
		CreatedAt:        game.CreatedAt,
		UpdatedAt:        game.UpdatedAt,
	}
}

func toApplicationInvite(model persistence.Invite) application.Invite {
	roles := make([]application.Role, 0, len(model.Roles))
	for _, role := range model.Roles {
		roles = append(roles, application.Role(role))
	}
	return application.Invite{
		ID:         model.ID,
		EmployeeID: model.EmployeeID,
		Email:      model.Email,
		Roles:      roles,
		InvitedBy:  model.InvitedBy,
		ExpiresAt:  model.ExpiresAt,
		AcceptedAt: model.AcceptedAt,
		CreatedAt:  model.CreatedAt,
	}
}

func toPersistenceInvite(invite application.Invite) persistence.Invite {
	return persistence.Invite{
		ID:         invite.ID,
		EmployeeID: invite.EmployeeID,
		Email:      invite.Email,
		Roles:      roleStrings(invite.Roles),
		InvitedBy:  invite.InvitedBy,
		ExpiresAt:  invite.ExpiresAt,
		AcceptedAt: invite.AcceptedAt,
		CreatedAt:  invite.CreatedAt,
	}
}
