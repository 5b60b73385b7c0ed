package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/config"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/export"
	httptransport "github.com/veator13/mybeachtrivia.com-sub001/internal/http"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/logging"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/mail"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/oauth"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence/firestore"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence/sqlite"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/presence"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/token"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, logging.Options{Format: cfg.LogFormat, Level: cfg.LogLevel})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("beach trivia server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	app, err := newApp(ctx, cfg, store, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if err := app.bootstrapAdmin(ctx, cfg); err != nil {
		return err
	}

	go app.janitor.Run(ctx, cfg.JanitorInterval)
	if app.consumer != nil {
		go func() {
			if err := app.consumer.Run(ctx); err != nil {
				logger.Error("mail consumer stopped", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("beach trivia API listening", "addr", server.Addr, "store", cfg.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server encountered error: %w", err)
	}
	return nil
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	switch cfg.Store {
	case config.StoreSQLite, "":
		storage, err := sqlite.Open(cfg.SQLiteDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		if err := storage.Migrate(ctx); err != nil {
			_ = storage.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		return storage, nil
	case config.StoreFirestore:
		store, err := firestore.Open(ctx, cfg.FirestoreProject)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

// app holds the wired services behind the HTTP handler.
type app struct {
	handler  http.Handler
	repos    *repositories
	janitor  *application.Janitor
	hub      *httptransport.LiveHub
	consumer *mail.Consumer
	closers  []func() error
	logger   *slog.Logger
	now      func() time.Time
}

func newApp(ctx context.Context, cfg config.Config, store backend, logger *slog.Logger) (*app, error) {
	now := time.Now
	idGenerator := uuid.NewString
	tokenGenerator := func() string { return randomHex(32) }
	repos := newRepositories(store, now)
	a := &app{repos: repos, logger: logger, now: now}

	codec, err := token.NewInviteCodec(cfg.InviteSecret, now)
	if err != nil {
		return nil, err
	}

	mailer, err := a.newMailer(cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	tracker, err := a.newPresence(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}

	metrics := httptransport.NewMetrics()
	a.hub = httptransport.NewLiveHub(cfg.AllowedOrigins, metrics, logger)

	authService := application.NewAuthServiceWithLogger(repos, repos, nil, tokenGenerator, now, cfg.SessionTTL, logger)
	employeeService := application.NewEmployeeServiceWithLogger(repos, idGenerator, now, logger)
	inviteService := application.NewInviteServiceWithLogger(repos, repos, repos, codec, mailer, application.InviteServiceConfig{
		SetupURL: cfg.SetupURL,
		TTL:      cfg.InviteTTL,
	}, idGenerator, now, logger)
	locationService := application.NewLocationServiceWithLogger(repos, idGenerator, now, logger)
	shiftService := application.NewShiftServiceWithLogger(repos, repos, repos, export.NewMonthWorkbook(), idGenerator, now, logger)
	if cfg.Store == config.StoreFirestore {
		// Firestore is shared across instances; a local cache would miss their writes.
		shiftService.DisableWarningCache()
	}
	playlistService := application.NewPlaylistServiceWithLogger(repos, repos, idGenerator, now, logger)
	gameService := application.NewGameServiceWithLogger(repos, repos, repos, tracker, a.hub, application.GameServiceConfig{
		JoinURL:      cfg.JoinURL,
		ActiveWindow: cfg.PresenceWindow,
	}, idGenerator, now, logger)

	var streamingHandler *httptransport.StreamingHandler
	if cfg.StreamingEnabled() {
		provider, err := oauth.NewProvider(oauth.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
		}, &http.Client{Timeout: 15 * time.Second})
		if err != nil {
			a.close()
			return nil, err
		}
		streamingService := application.NewStreamingServiceWithLogger(repos, provider, nil, now, logger)
		streamingHandler = httptransport.NewStreamingHandler(streamingService, cfg.StreamingReturnURL, logger)
	} else {
		logger.Info("streaming login disabled: oauth client not configured")
	}

	a.janitor = application.NewJanitor(repos, repos, gameService, now, logger)

	a.handler = httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:   authService,
		Auth:       httptransport.NewAuthHandler(authService, cfg.SecureCookies, logger),
		Employees:  httptransport.NewEmployeeHandler(employeeService, inviteService, logger),
		Locations:  httptransport.NewLocationHandler(locationService, logger),
		Shifts:     httptransport.NewShiftHandler(shiftService, logger),
		Bingo:      httptransport.NewBingoHandler(playlistService, gameService, logger),
		Live:       a.hub,
		LiveStates: gameService,
		Streaming:  streamingHandler,
		Metrics:    metrics,
		Health:     store,
		Static:     httptransport.StaticPages(),
		Logger:     logger,
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
	return a, nil
}

func (a *app) newMailer(cfg config.Config) (application.Mailer, error) {
	if cfg.AMQPURL == "" {
		a.logger.Info("mail broker not configured, emails are logged only")
		return mail.NewLogMailer(a.logger), nil
	}
	publisher, err := mail.NewPublisher(cfg.AMQPURL, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mail broker: %w", err)
	}
	a.closers = append(a.closers, publisher.Close)
	a.consumer = mail.NewConsumer(cfg.AMQPURL, mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}), a.logger)
	return publisher, nil
}

func (a *app) newPresence(ctx context.Context, cfg config.Config) (application.PresenceTracker, error) {
	if cfg.RedisAddr == "" {
		return presence.NewMemory(), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return presence.NewRedis(client), nil
}

// bootstrapAdmin creates the configured administrator on first start.
func (a *app) bootstrapAdmin(ctx context.Context, cfg config.Config) error {
	email := strings.TrimSpace(cfg.BootstrapAdminEmail)
	if email == "" {
		return nil
	}
	if _, err := a.repos.GetEmployeeByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("failed to look up bootstrap admin: %w", err)
	}

	if vErr := application.ValidatePassword("password", cfg.BootstrapAdminPassword); vErr.HasErrors() {
		return fmt.Errorf("bootstrap admin password: %w", vErr)
	}
	hash, err := application.HashPassword(cfg.BootstrapAdminPassword)
	if err != nil {
		return err
	}

	stamp := a.now().UTC()
	employee, err := a.repos.CreateEmployee(ctx, application.Employee{
		ID:        uuid.NewString(),
		Email:     email,
		FirstName: "Admin",
		Active:    true,
		Roles:     []application.Role{application.RoleAdmin, application.RoleHost},
		CreatedAt: stamp,
		UpdatedAt: stamp,
	})
	if err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	if err := a.repos.SetPassword(ctx, employee.ID, hash); err != nil {
		return fmt.Errorf("failed to set bootstrap admin password: %w", err)
	}
	a.logger.InfoContext(ctx, "bootstrap admin created", "employee_id", employee.ID, "email", email)
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("failed to release resource", "error", err)
		}
	}
	a.closers = nil
}

func randomHex(bytes int) string {
	if bytes <= 0 {
		bytes = 16
	}
	buf := make([]byte, bytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return fmt.Sprintf("fallback-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
