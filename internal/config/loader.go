package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "BEACHTRIVIA_"

// Storage backends.
const (
	StoreSQLite    = "sqlite"
	StoreFirestore = "firestore"
)

// Config captures environment driven configuration for the beach trivia service.
type Config struct {
	HTTPPort int

	Store            string
	SQLiteDSN        string
	FirestoreProject string

	SessionTTL    time.Duration
	SecureCookies bool

	InviteSecret string
	InviteTTL    time.Duration
	SetupURL     string
	JoinURL      string

	RedisAddr string
	AMQPURL   string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	OAuthClientID      string
	OAuthClientSecret  string
	OAuthRedirectURL   string
	StreamingReturnURL string

	AllowedOrigins []string

	LogLevel  string
	LogFormat string

	JanitorInterval time.Duration
	PresenceWindow  time.Duration

	// BootstrapAdminEmail and BootstrapAdminPassword create the first
	// administrator when no employee with that email exists.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// StreamingEnabled reports whether the OAuth client is configured.
func (c Config) StreamingEnabled() bool {
	return c.OAuthClientID != "" && c.OAuthClientSecret != "" && c.OAuthRedirectURL != ""
}

// Load reads an optional .env file and then parses the process environment.
// Variables already present in the environment win over the file.
func Load() (Config, error) {
	return LoadFiles(".env")
}

// LoadFiles is Load with explicit dotenv paths. Missing files are skipped.
func LoadFiles(paths ...string) (Config, error) {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
	}
	return parse(os.Getenv)
}

func parse(getenv func(string) string) (Config, error) {
	cfg := Config{
		HTTPPort:        8080,
		Store:           StoreSQLite,
		SQLiteDSN:       "file:beachtrivia.db",
		SessionTTL:      24 * time.Hour,
		InviteTTL:       72 * time.Hour,
		SetupURL:        "http://localhost:8080/setup",
		JoinURL:         "http://localhost:8080/play",
		SMTPPort:        587,
		MailFrom:        "Beach Trivia <no-reply@mybeachtrivia.com>",
		LogLevel:        "info",
		LogFormat:       "json",
		JanitorInterval: time.Minute,
		PresenceWindow:  2 * time.Minute,
	}

	p := parser{getenv: getenv}

	cfg.HTTPPort = p.positiveInt("HTTP_PORT", cfg.HTTPPort)

	cfg.Store = strings.ToLower(p.str("STORE", cfg.Store))
	switch cfg.Store {
	case StoreSQLite, StoreFirestore:
	default:
		p.invalid = append(p.invalid, envPrefix+"STORE")
	}
	cfg.SQLiteDSN = p.str("SQLITE_DSN", cfg.SQLiteDSN)
	cfg.FirestoreProject = p.str("FIRESTORE_PROJECT", "")
	if cfg.Store == StoreFirestore && cfg.FirestoreProject == "" {
		p.missing = append(p.missing, envPrefix+"FIRESTORE_PROJECT")
	}

	cfg.SessionTTL = p.duration("SESSION_TTL", cfg.SessionTTL)
	cfg.SecureCookies = p.boolean("SECURE_COOKIES", false)

	cfg.InviteSecret = p.required("INVITE_SECRET")
	if cfg.InviteSecret != "" && len(cfg.InviteSecret) < 16 {
		p.invalid = append(p.invalid, envPrefix+"INVITE_SECRET")
	}
	cfg.InviteTTL = p.duration("INVITE_TTL", cfg.InviteTTL)
	cfg.SetupURL = p.str("SETUP_URL", cfg.SetupURL)
	cfg.JoinURL = p.str("JOIN_URL", cfg.JoinURL)

	cfg.RedisAddr = p.str("REDIS_ADDR", "")
	cfg.AMQPURL = p.str("AMQP_URL", "")

	cfg.SMTPHost = p.str("SMTP_HOST", "")
	cfg.SMTPPort = p.positiveInt("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = p.str("SMTP_USERNAME", "")
	cfg.SMTPPassword = p.str("SMTP_PASSWORD", "")
	cfg.MailFrom = p.str("MAIL_FROM", cfg.MailFrom)
	if cfg.AMQPURL != "" && cfg.SMTPHost == "" {
		p.missing = append(p.missing, envPrefix+"SMTP_HOST")
	}

	cfg.OAuthClientID = p.str("OAUTH_CLIENT_ID", "")
	cfg.OAuthClientSecret = p.str("OAUTH_CLIENT_SECRET", "")
	cfg.OAuthRedirectURL = p.str("OAUTH_REDIRECT_URL", "")
	cfg.StreamingReturnURL = p.str("STREAMING_RETURN_URL", "/")

	cfg.AllowedOrigins = p.list("ALLOWED_ORIGINS")

	cfg.LogLevel = p.str("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(p.str("LOG_FORMAT", cfg.LogFormat))
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		p.invalid = append(p.invalid, envPrefix+"LOG_FORMAT")
	}

	cfg.JanitorInterval = p.duration("JANITOR_INTERVAL", cfg.JanitorInterval)
	cfg.PresenceWindow = p.duration("PRESENCE_WINDOW", cfg.PresenceWindow)

	cfg.BootstrapAdminEmail = strings.ToLower(p.str("BOOTSTRAP_ADMIN_EMAIL", ""))
	cfg.BootstrapAdminPassword = p.str("BOOTSTRAP_ADMIN_PASSWORD", "")
	if cfg.BootstrapAdminEmail != "" && cfg.BootstrapAdminPassword == "" {
		p.missing = append(p.missing, envPrefix+"BOOTSTRAP_ADMIN_PASSWORD")
	}

	var errs []error
	if len(p.missing) > 0 {
		errs = append(errs, fmt.Errorf("required environment variables are not set: %s", strings.Join(p.missing, ", ")))
	}
	if len(p.invalid) > 0 {
		errs = append(errs, fmt.Errorf("environment variables have invalid values: %s", strings.Join(p.invalid, ", ")))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type parser struct {
	getenv  func(string) string
	missing []string
	invalid []string
}

func (p *parser) lookup(key string) string {
	return strings.TrimSpace(p.getenv(envPrefix + key))
}

func (p *parser) str(key, fallback string) string {
	if value := p.lookup(key); value != "" {
		return value
	}
	return fallback
}

func (p *parser) required(key string) string {
	value := p.lookup(key)
	if value == "" {
		p.missing = append(p.missing, envPrefix+key)
	}
	return value
}

func (p *parser) positiveInt(key string, fallback int) int {
	raw := p.lookup(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		p.invalid = append(p.invalid, envPrefix+key)
		return fallback
	}
	return value
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := p.lookup(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		p.invalid = append(p.invalid, envPrefix+key)
		return fallback
	}
	return value
}

func (p *parser) boolean(key string, fallback bool) bool {
	raw := p.lookup(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		p.invalid = append(p.invalid, envPrefix+key)
		return fallback
	}
	return value
}

func (p *parser) list(key string) []string {
	raw := p.lookup(key)
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimRight(strings.TrimSpace(item), "/"); item != "" {
			out = append(out, item)
		}
	}
	return out
}
