package testfixtures

import (
	"log/slog"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

func (f *ServiceFactory) ids(override func() string) func() string {
	if override != nil {
		return override
	}
	return f.IDGenerator.NextFunc()
}

func (f *ServiceFactory) clock(override func() time.Time) func() time.Time {
	if override != nil {
		return override
	}
	return f.Clock.NowFunc()
}

// EmployeeServiceDeps captures dependencies for constructing an employee service.
type EmployeeServiceDeps struct {
	Employees   application.EmployeeRepository
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewEmployeeService builds an employee service using the supplied
// dependencies combined with the factory defaults.
func (f *ServiceFactory) NewEmployeeService(deps EmployeeServiceDeps) *application.EmployeeService {
	return application.NewEmployeeServiceWithLogger(deps.Employees, f.ids(deps.IDGenerator), f.clock(deps.Now), deps.Logger)
}

// LocationServiceDeps captures dependencies for constructing a location service.
type LocationServiceDeps struct {
	Locations   application.LocationRepository
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewLocationService builds a location service.
func (f *ServiceFactory) NewLocationService(deps LocationServiceDeps) *application.LocationService {
	return application.NewLocationServiceWithLogger(deps.Locations, f.ids(deps.IDGenerator), f.clock(deps.Now), deps.Logger)
}

// ShiftServiceDeps captures dependencies for constructing a shift service.
type ShiftServiceDeps struct {
	Shifts      application.ShiftRepository
	Employees   application.EmployeeDirectory
	Locations   application.LocationCatalog
	Exporter    application.ShiftExporter
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewShiftService builds a shift service.
func (f *ServiceFactory) NewShiftService(deps ShiftServiceDeps) *application.ShiftService {
	return application.NewShiftServiceWithLogger(
		deps.Shifts,
		deps.Employees,
		deps.Locations,
		deps.Exporter,
		f.ids(deps.IDGenerator),
		f.clock(deps.Now),
		deps.Logger,
	)
}

// PlaylistServiceDeps captures dependencies for constructing a playlist service.
type PlaylistServiceDeps struct {
	Playlists   application.PlaylistRepository
	Games       application.GameLister
	IDGenerator func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewPlaylistService builds a playlist service.
func (f *ServiceFactory) NewPlaylistService(deps PlaylistServiceDeps) *application.PlaylistService {
	return application.NewPlaylistServiceWithLogger(deps.Playlists, deps.Games, f.ids(deps.IDGenerator), f.clock(deps.Now), deps.Logger)
}

// AuthServiceDeps captures dependencies for constructing an auth service.
type AuthServiceDeps struct {
	Credentials    application.CredentialStore
	Sessions       application.SessionRepository
	PasswordVerify application.PasswordVerifier
	TokenGenerator func() string
	Now            func() time.Time
	SessionTTL     time.Duration
	Logger         *slog.Logger
}

// NewAuthService builds an auth service. Tokens come from the factory ID
// generator unless TokenGenerator is set.
func (f *ServiceFactory) NewAuthService(deps AuthServiceDeps) *application.AuthService {
	return application.NewAuthServiceWithLogger(
		deps.Credentials,
		deps.Sessions,
		deps.PasswordVerify,
		f.ids(deps.TokenGenerator),
		f.clock(deps.Now),
		deps.SessionTTL,
		deps.Logger,
	)
}
