package testfixtures

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/calendar"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

var (
	employeeCounter uint64
	locationCounter uint64
	shiftCounter    uint64
	playlistCounter uint64
	sessionCounter  uint64
)

var referenceTime = time.Date(2024, time.March, 12, 18, 30, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- Employee fixtures -----------------------------

// EmployeeFixture represents a deterministic staff record that can be
// materialised for application or persistence tests.
type EmployeeFixture struct {
	ID           string
	Email        string
	FirstName    string
	LastName     string
	Nickname     string
	Phone        string
	Active       bool
	Roles        []application.Role
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// EmployeeOption configures the generated employee fixture.
type EmployeeOption func(*EmployeeFixture)

// NewEmployeeFixture returns a deterministic host with optional overrides.
func NewEmployeeFixture(opts ...EmployeeOption) EmployeeFixture {
	idx := atomic.AddUint64(&employeeCounter, 1)
	id := fmt.Sprintf("employee-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := EmployeeFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@mybeachtrivia.com", id),
		FirstName:    "Host",
		LastName:     fmt.Sprintf("%03d", idx),
		Active:       true,
		Roles:        []application.Role{application.RoleHost},
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEmployeeID overrides the generated employee ID.
func WithEmployeeID(id string) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.ID = id
	}
}

// WithEmployeeEmail overrides the generated email address.
func WithEmployeeEmail(email string) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.Email = email
	}
}

// WithEmployeeName overrides the first and last name.
func WithEmployeeName(first, last string) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.FirstName = first
		f.LastName = last
	}
}

// WithEmployeeNickname sets the display nickname.
func WithEmployeeNickname(nickname string) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.Nickname = nickname
	}
}

// WithEmployeeRoles replaces the role set.
func WithEmployeeRoles(roles ...application.Role) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.Roles = append([]application.Role(nil), roles...)
	}
}

// WithEmployeeAdmin adds the admin role.
func WithEmployeeAdmin() EmployeeOption {
	return func(f *EmployeeFixture) {
		f.Roles = append(f.Roles, application.RoleAdmin)
	}
}

// WithEmployeeInactive marks the employee as disabled.
func WithEmployeeInactive() EmployeeOption {
	return func(f *EmployeeFixture) {
		f.Active = false
	}
}

// WithEmployeePasswordHash overrides the generated password hash.
func WithEmployeePasswordHash(hash string) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.PasswordHash = hash
	}
}

// WithEmployeeTimestamps sets both created and updated timestamps.
func WithEmployeeTimestamps(created, updated time.Time) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.CreatedAt = created
		f.UpdatedAt = updated
	}
}

// Application returns the fixture as an application.Employee value.
func (f EmployeeFixture) Application() application.Employee {
	return application.Employee{
		ID:        f.ID,
		Email:     f.Email,
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Nickname:  f.Nickname,
		Phone:     f.Phone,
		Active:    f.Active,
		Roles:     append([]application.Role(nil), f.Roles...),
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Credentials returns the fixture as application.EmployeeCredentials.
func (f EmployeeFixture) Credentials() application.EmployeeCredentials {
	return application.EmployeeCredentials{
		Employee:     f.Application(),
		PasswordHash: f.PasswordHash,
	}
}

// Principal returns an application.Principal derived from the fixture.
func (f EmployeeFixture) Principal() application.Principal {
	employee := f.Application()
	return application.Principal{
		EmployeeID: f.ID,
		IsAdmin:    employee.IsAdmin(),
		Roles:      employee.Roles,
	}
}

// Input returns the fixture as an application.EmployeeInput.
func (f EmployeeFixture) Input() application.EmployeeInput {
	return application.EmployeeInput{
		Email:     f.Email,
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Nickname:  f.Nickname,
		Phone:     f.Phone,
		Active:    f.Active,
		Roles:     append([]application.Role(nil), f.Roles...),
	}
}

// Persistence returns the fixture as a persistence.Employee value.
func (f EmployeeFixture) Persistence() persistence.Employee {
	roles := make([]string, len(f.Roles))
	for i, role := range f.Roles {
		roles[i] = string(role)
	}
	return persistence.Employee{
		ID:        f.ID,
		Email:     f.Email,
		FirstName: f.FirstName,
		LastName:  f.LastName,
		Nickname:  f.Nickname,
		Phone:     f.Phone,
		Active:    f.Active,
		Roles:     roles,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Credential returns the fixture's password hash as a persistence.Credential.
func (f EmployeeFixture) Credential() persistence.Credential {
	return persistence.Credential{
		EmployeeID:   f.ID,
		PasswordHash: f.PasswordHash,
		UpdatedAt:    f.UpdatedAt,
	}
}

// ----------------------------- Location fixtures -----------------------------

// LocationFixture represents a deterministic venue.
type LocationFixture struct {
	ID           string
	Name         string
	Address      string
	WeeklyNights []time.Weekday
	StartTime    string
	EndTime      string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LocationOption configures the generated location fixture.
type LocationOption func(*LocationFixture)

// NewLocationFixture returns a deterministic venue with optional overrides.
func NewLocationFixture(opts ...LocationOption) LocationFixture {
	idx := atomic.AddUint64(&locationCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Hour)
	fixture := LocationFixture{
		ID:           fmt.Sprintf("location-%03d", idx),
		Name:         fmt.Sprintf("Beach Bar %03d", idx),
		Address:      fmt.Sprintf("%d Ocean Ave", idx),
		WeeklyNights: []time.Weekday{time.Tuesday},
		StartTime:    "19:00",
		EndTime:      "21:00",
		Active:       true,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithLocationID overrides the generated location ID.
func WithLocationID(id string) LocationOption {
	return func(f *LocationFixture) {
		f.ID = id
	}
}

// WithLocationName overrides the venue name.
func WithLocationName(name string) LocationOption {
	return func(f *LocationFixture) {
		f.Name = name
	}
}

// WithLocationNights replaces the regular show nights.
func WithLocationNights(days ...time.Weekday) LocationOption {
	return func(f *LocationFixture) {
		f.WeeklyNights = append([]time.Weekday(nil), days...)
	}
}

// WithLocationInactive marks the venue as no longer booked.
func WithLocationInactive() LocationOption {
	return func(f *LocationFixture) {
		f.Active = false
	}
}

// Application returns the fixture as an application.Location value.
func (f LocationFixture) Application() application.Location {
	return application.Location{
		ID:               f.ID,
		Name:             f.Name,
		Address:          f.Address,
		WeeklyNights:     append([]time.Weekday(nil), f.WeeklyNights...),
		DefaultStartTime: f.StartTime,
		DefaultEndTime:   f.EndTime,
		Active:           f.Active,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// Input returns the fixture as an application.LocationInput.
func (f LocationFixture) Input() application.LocationInput {
	return application.LocationInput{
		Name:             f.Name,
		Address:          f.Address,
		WeeklyNights:     weekdayNames(f.WeeklyNights),
		DefaultStartTime: f.StartTime,
		DefaultEndTime:   f.EndTime,
		Active:           f.Active,
	}
}

// Persistence returns the fixture as a persistence.Location value.
func (f LocationFixture) Persistence() persistence.Location {
	return persistence.Location{
		ID:               f.ID,
		Name:             f.Name,
		Address:          f.Address,
		WeeklyNights:     weekdayNames(f.WeeklyNights),
		DefaultStartTime: f.StartTime,
		DefaultEndTime:   f.EndTime,
		Active:           f.Active,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.UpdatedAt,
	}
}

// ----------------------------- Shift fixtures -----------------------------

// ShiftFixture represents a deterministic calendar booking.
type ShiftFixture struct {
	ID         string
	Date       string
	EmployeeID string
	StartTime  string
	EndTime    string
	EventType  application.EventType
	Theme      string
	Location   string
	Notes      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ShiftOption configures the generated shift fixture.
type ShiftOption func(*ShiftFixture)

// NewShiftFixture returns a deterministic trivia shift on the reference date.
func NewShiftFixture(opts ...ShiftOption) ShiftFixture {
	idx := atomic.AddUint64(&shiftCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Second)
	fixture := ShiftFixture{
		ID:         fmt.Sprintf("shift-%03d", idx),
		Date:       calendar.DateOf(referenceTime).String(),
		EmployeeID: "employee-001",
		StartTime:  "19:00",
		EndTime:    "21:00",
		EventType:  application.EventTrivia,
		Location:   "Beach Bar 001",
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithShiftID overrides the generated shift ID.
func WithShiftID(id string) ShiftOption {
	return func(f *ShiftFixture) {
		f.ID = id
	}
}

// WithShiftDate sets the YYYY-MM-DD date.
func WithShiftDate(date string) ShiftOption {
	return func(f *ShiftFixture) {
		f.Date = date
	}
}

// WithShiftEmployee assigns the shift.
func WithShiftEmployee(id string) ShiftOption {
	return func(f *ShiftFixture) {
		f.EmployeeID = id
	}
}

// WithShiftTimes sets the HH:MM start and end.
func WithShiftTimes(start, end string) ShiftOption {
	return func(f *ShiftFixture) {
		f.StartTime = start
		f.EndTime = end
	}
}

// WithShiftEventType overrides the event type.
func WithShiftEventType(eventType application.EventType) ShiftOption {
	return func(f *ShiftFixture) {
		f.EventType = eventType
	}
}

// WithShiftLocation sets the venue name.
func WithShiftLocation(name string) ShiftOption {
	return func(f *ShiftFixture) {
		f.Location = name
	}
}

// WithShiftTheme sets the show theme.
func WithShiftTheme(theme string) ShiftOption {
	return func(f *ShiftFixture) {
		f.Theme = theme
	}
}

// Application returns the fixture as an application.Shift value. It panics on
// malformed dates or times since fixtures are authored by tests.
func (f ShiftFixture) Application() application.Shift {
	return application.Shift{
		ID:         f.ID,
		Date:       calendar.MustParseDate(f.Date),
		EmployeeID: f.EmployeeID,
		StartTime:  mustClock(f.StartTime),
		EndTime:    mustClock(f.EndTime),
		EventType:  f.EventType,
		Theme:      f.Theme,
		Location:   f.Location,
		Notes:      f.Notes,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// Input returns the fixture as an application.ShiftInput.
func (f ShiftFixture) Input() application.ShiftInput {
	return application.ShiftInput{
		Date:       f.Date,
		EmployeeID: f.EmployeeID,
		StartTime:  f.StartTime,
		EndTime:    f.EndTime,
		EventType:  string(f.EventType),
		Theme:      f.Theme,
		Location:   f.Location,
		Notes:      f.Notes,
	}
}

// Persistence returns the fixture as a persistence.Shift value.
func (f ShiftFixture) Persistence() persistence.Shift {
	return persistence.Shift{
		ID:         f.ID,
		Date:       f.Date,
		EmployeeID: f.EmployeeID,
		StartTime:  f.StartTime,
		EndTime:    f.EndTime,
		EventType:  string(f.EventType),
		Theme:      f.Theme,
		Location:   f.Location,
		Notes:      f.Notes,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

// ----------------------------- Playlist fixtures -----------------------------

// PlaylistFixture represents a deterministic music bingo playlist.
type PlaylistFixture struct {
	ID        string
	Name      string
	Songs     []application.Song
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlaylistOption configures the generated playlist fixture.
type PlaylistOption func(*PlaylistFixture)

// NewPlaylistFixture returns a playlist with enough songs to fill a board.
func NewPlaylistFixture(opts ...PlaylistOption) PlaylistFixture {
	idx := atomic.AddUint64(&playlistCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := PlaylistFixture{
		ID:        fmt.Sprintf("playlist-%03d", idx),
		Name:      fmt.Sprintf("Summer Hits %03d", idx),
		Songs:     Songs(30),
		CreatedBy: "employee-001",
		CreatedAt: created,
		UpdatedAt: created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithPlaylistID overrides the generated playlist ID.
func WithPlaylistID(id string) PlaylistOption {
	return func(f *PlaylistFixture) {
		f.ID = id
	}
}

// WithPlaylistSongs replaces the song list.
func WithPlaylistSongs(songs []application.Song) PlaylistOption {
	return func(f *PlaylistFixture) {
		f.Songs = append([]application.Song(nil), songs...)
	}
}

// WithPlaylistCreator sets the owning employee.
func WithPlaylistCreator(id string) PlaylistOption {
	return func(f *PlaylistFixture) {
		f.CreatedBy = id
	}
}

// Songs returns n distinct songs.
func Songs(n int) []application.Song {
	songs := make([]application.Song, n)
	for i := range songs {
		songs[i] = application.Song{
			Title:  fmt.Sprintf("Track %02d", i+1),
			Artist: fmt.Sprintf("Artist %02d", i%7+1),
		}
	}
	return songs
}

// Application returns the fixture as an application.Playlist value.
func (f PlaylistFixture) Application() application.Playlist {
	return application.Playlist{
		ID:        f.ID,
		Name:      f.Name,
		Songs:     append([]application.Song(nil), f.Songs...),
		CreatedBy: f.CreatedBy,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// Input returns the fixture as an application.PlaylistInput.
func (f PlaylistFixture) Input() application.PlaylistInput {
	return application.PlaylistInput{
		Name:  f.Name,
		Songs: append([]application.Song(nil), f.Songs...),
	}
}

// Persistence returns the fixture as a persistence.Playlist value.
func (f PlaylistFixture) Persistence() persistence.Playlist {
	songs := make([]persistence.Song, len(f.Songs))
	for i, song := range f.Songs {
		songs[i] = persistence.Song(song)
	}
	return persistence.Playlist{
		ID:        f.ID,
		Name:      f.Name,
		Songs:     songs,
		CreatedBy: f.CreatedBy,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	}
}

// ----------------------------- Session fixtures -----------------------------

// SessionFixture represents a deterministic login session.
type SessionFixture struct {
	ID         string
	EmployeeID string
	Token      string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	RevokedAt  *time.Time
}

// SessionOption configures the generated session fixture.
type SessionOption func(*SessionFixture)

// NewSessionFixture returns a session valid for a day after the reference time.
func NewSessionFixture(opts ...SessionOption) SessionFixture {
	idx := atomic.AddUint64(&sessionCounter, 1)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := SessionFixture{
		ID:         fmt.Sprintf("session-%03d", idx),
		EmployeeID: "employee-001",
		Token:      fmt.Sprintf("token-%03d", idx),
		ExpiresAt:  created.Add(24 * time.Hour),
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSessionEmployee sets the session owner.
func WithSessionEmployee(id string) SessionOption {
	return func(f *SessionFixture) {
		f.EmployeeID = id
	}
}

// WithSessionToken overrides the bearer token.
func WithSessionToken(token string) SessionOption {
	return func(f *SessionFixture) {
		f.Token = token
	}
}

// WithSessionExpiresAt overrides the expiry.
func WithSessionExpiresAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		f.ExpiresAt = t
	}
}

// WithSessionRevokedAt marks the session revoked.
func WithSessionRevokedAt(t time.Time) SessionOption {
	return func(f *SessionFixture) {
		revoked := t
		f.RevokedAt = &revoked
	}
}

// Application returns the fixture as an application.Session value.
func (f SessionFixture) Application() application.Session {
	return application.Session{
		ID:         f.ID,
		EmployeeID: f.EmployeeID,
		Token:      f.Token,
		ExpiresAt:  f.ExpiresAt,
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
		RevokedAt:  copyTimePtr(f.RevokedAt),
	}
}

// Persistence returns the fixture as a persistence.Session value.
func (f SessionFixture) Persistence() persistence.Session {
	return persistence.Session(f.Application())
}

func weekdayNames(days []time.Weekday) []string {
	names := make([]string, len(days))
	for i, day := range days {
		names[i] = strings.ToLower(day.String())
	}
	return names
}

func mustClock(value string) calendar.Clock {
	clock, err := calendar.ParseClock(value)
	if err != nil {
		panic(fmt.Sprintf("testfixtures: invalid clock %q: %v", value, err))
	}
	return clock
}

func copyTimePtr(src *time.Time) *time.Time {
	if src == nil {
		return nil
	}
	value := *src
	return &value
}
