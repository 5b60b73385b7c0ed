package persistence

import "time"

// Employee is a staff member's profile. ID is also the auth identity.
type Employee struct {
	ID               string
	Email            string
	FirstName        string
	LastName         string
	Nickname         string
	Phone            string
	EmergencyContact string
	Active           bool
	Roles            []string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Credential holds the password hash of an employee.
type Credential struct {
	EmployeeID   string
	PasswordHash string
	UpdatedAt    time.Time
}

// Location is a venue that hosts shows.
type Location struct {
	ID               string
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
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Shift is one host booking on the admin calendar. Date is YYYY-MM-DD and the
// times are HH:MM. Location holds the venue name.
type Shift struct {
	ID         string
	Date       string
	EmployeeID string
	StartTime  string
	EndTime    string
	EventType  string
	Theme      string
	Location   string
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Song is a playlist entry.
type Song struct {
	Title  string
	Artist string
}

// Playlist is an ordered song list used by music bingo games.
type Playlist struct {
	ID        string
	Name      string
	Songs     []Song
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Game is a music bingo session run by a host.
type Game struct {
	ID               string
	HostID           string
	PlaylistID       string
	Location         string
	Status           string
	CurrentSongIndex int
	JoinCode         string
	StartedAt        *time.Time
	EndedAt          *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Player is an anonymous participant in a game.
type Player struct {
	GameID      string
	PlayerID    string
	DisplayName string
	JoinedAt    time.Time
	LastSeenAt  time.Time
}

// Invite is a pending staff invitation.
type Invite struct {
	ID         string
	EmployeeID string
	Email      string
	Roles      []string
	InvitedBy  string
	ExpiresAt  time.Time
	AcceptedAt *time.Time
	CreatedAt  time.Time
}

// Session represents an authentication session persisted for an employee.
type Session struct {
	ID         string
	EmployeeID string
	Token      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	RevokedAt  *time.Time
}

// OAuthState is a pending authorization request to the streaming provider.
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
