package application

import (
	"slices"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
)

// Role is a staff permission tag.
type Role string

const (
	// RoleHost runs shows and music bingo games.
	RoleHost Role = "host"
	// RoleAdmin manages staff, venues and the shift calendar.
	RoleAdmin Role = "admin"
	// RoleRegional oversees a group of venues.
	RoleRegional Role = "regional"
	// RoleSocial manages social media content.
	RoleSocial Role = "social"
)

// KnownRoles lists every assignable role.
var KnownRoles = []Role{RoleHost, RoleAdmin, RoleRegional, RoleSocial}

// Principal represents the authenticated employee invoking a service method.
type Principal struct {
	EmployeeID string
	IsAdmin    bool
	Roles      []Role
}

// HasRole reports whether the principal carries role.
func (p Principal) HasRole(role Role) bool {
	return slices.Contains(p.Roles, role)
}

// CanHost reports whether the principal may run music bingo games.
func (p Principal) CanHost() bool {
	return p.IsAdmin || p.HasRole(RoleHost)
}

// Employee is a staff member.
type Employee struct {
	ID               string
	Email            string
	FirstName        string
	LastName         string
	Nickname         string
	Phone            string
	EmergencyContact string
	Active           bool
	Roles            []Role
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsAdmin reports whether the employee carries the admin role.
func (e Employee) IsAdmin() bool {
	return slices.Contains(e.Roles, RoleAdmin)
}

// DisplayName returns the nickname when set, otherwise "First Last".
func (e Employee) DisplayName() string {
	if e.Nickname != "" {
		return e.Nickname
	}
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// EmployeeInput captures admin provided employee fields.
type EmployeeInput struct {
	Email            string
	FirstName        string
	LastName         string
	Nickname         string
	Phone            string
	EmergencyContact string
	Active           bool
	Roles            []Role
}

// ProfileInput captures the fields an employee may edit on their own profile.
type ProfileInput struct {
	FirstName        string
	LastName         string
	Nickname         string
	Phone            string
	EmergencyContact string
}

// EmployeeFilter narrows employee listings.
type EmployeeFilter struct {
	Active *bool
}

// Location is a venue.
type Location struct {
	ID               string
	Name             string
	Address          string
	ContactName      string
	ContactEmail     string
	ContactPhone     string
	WeeklyNights     []time.Weekday
	DefaultStartTime string
	DefaultEndTime   string
	Notes            string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LocationInput captures caller provided venue fields.
type LocationInput struct {
	Name             string
	Address          string
	ContactName      string
	ContactEmail     string
	ContactPhone     string
	WeeklyNights     []string
	DefaultStartTime string
	DefaultEndTime   string
	Notes            string
	Active           bool
}

// LocationFilter narrows venue listings.
type LocationFilter struct {
	Active *bool
}

// EventType classifies a shift.
type EventType string

const (
	EventTrivia       EventType = "trivia"
	EventMusicBingo   EventType = "music-bingo"
	EventBeachFeud    EventType = "beach-feud"
	EventPrivateEvent EventType = "private-event"
	EventOther        EventType = "other"
)

// KnownEventTypes lists every accepted event type.
var KnownEventTypes = []EventType{EventTrivia, EventMusicBingo, EventBeachFeud, EventPrivateEvent, EventOther}

// Shift is one host booking on the calendar.
type Shift struct {
	ID         string
	Date       calendar.Date
	EmployeeID string
	StartTime  calendar.Clock
	EndTime    calendar.Clock
	EventType  EventType
	Theme      string
	Location   string
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ShiftInput captures caller provided shift fields. Date and times arrive as
// YYYY-MM-DD and HH:MM strings.
type ShiftInput struct {
	Date       string
	EmployeeID string
	StartTime  string
	EndTime    string
	EventType  string
	Theme      string
	Location   string
	Notes      string
}

// ConflictWarning flags shifts that put one employee on the same date more
// than once. Warnings never block writes.
type ConflictWarning struct {
	EmployeeID string
	Date       calendar.Date
	ShiftIDs   []string
}

// ShiftResult is a written shift plus any double-booking warnings it caused.
type ShiftResult struct {
	Shift    Shift
	Warnings []ConflictWarning
}

// ShiftRepositoryFilter is the storage query behind a shift listing.
type ShiftRepositoryFilter struct {
	Range      calendar.Range
	EmployeeID string
	Location   string
}

// ListPeriod identifies the range preset requested for shift listings.
type ListPeriod string

const (
	// ListPeriodNone indicates no preset; caller supplied explicit bounds.
	ListPeriodNone ListPeriod = ""
	// ListPeriodDay constrains results to a single day.
	ListPeriodDay ListPeriod = "day"
	// ListPeriodWeek constrains results to the Sunday-start week containing the reference date.
	ListPeriodWeek ListPeriod = "week"
	// ListPeriodMonth constrains results to the month containing the reference date.
	ListPeriodMonth ListPeriod = "month"
)

// ListShiftsParams describes a shift listing request.
type ListShiftsParams struct {
	Principal  Principal
	Period     ListPeriod
	Reference  calendar.Date
	From       calendar.Date
	To         calendar.Date
	EmployeeID string
	Location   string
}

// ListShiftsResult carries listed shifts and the double-bookings among them.
type ListShiftsResult struct {
	Range    calendar.Range
	Shifts   []Shift
	Warnings []ConflictWarning
}

// CopyRangeResult reports a bulk copy.
type CopyRangeResult struct {
	Created  []Shift
	Skipped  int
	Failed   int
	Warnings []ConflictWarning
}

// DeleteRangeResult reports a bulk delete.
type DeleteRangeResult struct {
	Deleted int
	Failed  int
}

// RecurringShiftInput describes a run of shifts generated from a weekly template.
type RecurringShiftInput struct {
	Template  ShiftInput
	Frequency string
	Weekdays  []string
	StartsOn  string
	EndsOn    string
	Except    []string
}

// RecurringShiftResult reports a recurring creation.
type RecurringShiftResult struct {
	Created  []Shift
	Warnings []ConflictWarning
}

// Song is a playlist entry.
type Song struct {
	Title  string
	Artist string
}

// Playlist is an ordered song list for music bingo.
type Playlist struct {
	ID        string
	Name      string
	Songs     []Song
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlaylistInput captures caller provided playlist fields.
type PlaylistInput struct {
	Name  string
	Songs []Song
}

// GameStatus is the lifecycle state of a bingo game.
type GameStatus string

const (
	GameStatusPending GameStatus = "pending"
	GameStatusActive  GameStatus = "active"
	GameStatusPaused  GameStatus = "paused"
	GameStatusEnded   GameStatus = "ended"
)

// Game is a music bingo session.
type Game struct {
	ID               string
	HostID           string
	PlaylistID       string
	Location         string
	Status           GameStatus
	CurrentSongIndex int
	JoinCode         string
	StartedAt        *time.Time
	EndedAt          *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// GameInput captures the fields a host provides when creating a game.
type GameInput struct {
	PlaylistID string
	Location   string
}

// GameFilter narrows game listings.
type GameFilter struct {
	HostID     string
	PlaylistID string
	Status     GameStatus
}

// GameState is the live view of a game pushed to subscribers.
type GameState struct {
	GameID           string
	Status           GameStatus
	CurrentSongIndex int
	CurrentSong      *Song
	SongsPlayed      int
	TotalSongs       int
	PlayerCount      int
	UpdatedAt        time.Time
}

// Player is an anonymous participant.
type Player struct {
	GameID      string
	PlayerID    string
	DisplayName string
	JoinedAt    time.Time
	LastSeenAt  time.Time
}

// JoinResult is returned to a player joining a game.
type JoinResult struct {
	Game   Game
	Player Player
	Board  [][]BoardCell
}

// BoardCell is one square of a player's bingo card. The centre cell is Free.
type BoardCell struct {
	Free bool
	Song Song
}

// Invite is a pending staff invitation.
type Invite struct {
	ID         string
	EmployeeID string
	Email      string
	Roles      []Role
	InvitedBy  string
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// InviteClaims is the signed content of a password setup token.
type InviteClaims struct {
	InviteID   string
	EmployeeID string
	ExpiresAt  time.Time
}

// InviteResult is returned to the admin who sent an invite.
type InviteResult struct {
	Employee Employee
	Invite   Invite
	SetupURL string
}

// Session represents an issued authentication session.
type Session struct {
	ID         string
	EmployeeID string
	Token      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	RevokedAt  *time.Time
}

// EmployeeCredentials pairs an employee with their stored password hash.
type EmployeeCredentials struct {
	Employee     Employee
	PasswordHash string
}

// AuthenticateParams carries login input.
type AuthenticateParams struct {
	Email    string
	Password string
}

// AuthenticateResult is a successful login.
type AuthenticateResult struct {
	Employee Employee
	Session  Session
}

// RefreshSessionParams carries the token to rotate.
type RefreshSessionParams struct {
	Token string
}

// RefreshSessionResult is a rotated session.
type RefreshSessionResult struct {
	Session Session
}

// OAuthState is a pending streaming authorization.
type OAuthState struct {
	State      string
	EmployeeID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// StreamingToken is the streaming provider grant held for an employee.
type StreamingToken struct {
	EmployeeID   string
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	UpdatedAt    time.Time
	RevokedAt    *time.Time
}

// OutboundEmail is a queued email job. Template names a body in the mail package.
type OutboundEmail struct {
	To       string
	Subject  string
	Template string
	Data     map[string]string
}
