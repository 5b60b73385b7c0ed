package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/bingo"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

const (
	// DefaultActiveWindow is how long a player counts as present after a heartbeat.
	DefaultActiveWindow = 2 * time.Minute
	// maxDisplayName bounds player display names in runes.
	maxDisplayName = 40
	// joinCodeAttempts bounds retries when a generated join code is taken.
	joinCodeAttempts = 5
)

// GameRepository captures the persistence operations for bingo games.
type GameRepository interface {
	CreateGame(ctx context.Context, game Game) (Game, error)
	UpdateGame(ctx context.Context, game Game) (Game, error)
	GetGame(ctx context.Context, id string) (Game, error)
	GetGameByJoinCode(ctx context.Context, code string) (Game, error)
	ListGames(ctx context.Context, filter GameFilter) ([]Game, error)
}

// PlayerRepository captures the persistence operations for game players.
type PlayerRepository interface {
	UpsertPlayer(ctx context.Context, player Player) (Player, error)
	GetPlayer(ctx context.Context, gameID, playerID string) (Player, error)
	ListPlayers(ctx context.Context, gameID string) ([]Player, error)
	DeleteStalePlayers(ctx context.Context, seenBefore time.Time) (int64, error)
}

// PresenceTracker records player heartbeats for fast active counts.
type PresenceTracker interface {
	Touch(ctx context.Context, gameID, playerID string, at time.Time) error
	CountActive(ctx context.Context, gameID string, since time.Time) (int, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// GameEventPublisher pushes game state to live subscribers.
type GameEventPublisher interface {
	PublishGameState(ctx context.Context, state GameState)
}

// GameServiceConfig tunes game behaviour.
type GameServiceConfig struct {
	// JoinURL is the public play page; the join code is appended as ?code=.
	JoinURL      string
	ActiveWindow time.Duration
}

// GameService runs music bingo games and their players.
type GameService struct {
	games       GameRepository
	playlists   PlaylistRepository
	players     PlayerRepository
	presence    PresenceTracker
	publisher   GameEventPublisher
	config      GameServiceConfig
	idGenerator func() string
	joinCode    func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewGameService wires dependencies for the game service.
func NewGameService(games GameRepository, playlists PlaylistRepository, players PlayerRepository, presence PresenceTracker, publisher GameEventPublisher, config GameServiceConfig, idGenerator func() string, now func() time.Time) *GameService {
	return NewGameServiceWithLogger(games, playlists, players, presence, publisher, config, idGenerator, now, nil)
}

// NewGameServiceWithLogger wires dependencies for the game service with a specified logger.
func NewGameServiceWithLogger(games GameRepository, playlists PlaylistRepository, players PlayerRepository, presence PresenceTracker, publisher GameEventPublisher, config GameServiceConfig, idGenerator func() string, now func() time.Time, logger *slog.Logger) *GameService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	if config.ActiveWindow <= 0 {
		config.ActiveWindow = DefaultActiveWindow
	}
	return &GameService{
		games:       games,
		playlists:   playlists,
		players:     players,
		presence:    presence,
		publisher:   publisher,
		config:      config,
		idGenerator: idGenerator,
		joinCode:    bingo.NewJoinCode,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *GameService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "GameService", operation, attrs...)
}

// CreateGame opens a pending game on a playlist with enough songs for a board.
func (s *GameService) CreateGame(ctx context.Context, principal Principal, input GameInput) (game Game, err error) {
	if s == nil {
		err = fmt.Errorf("GameService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateGame", "principal_id", principal.EmployeeID, "playlist_id", input.PlaylistID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create game", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("game_id", game.ID, "join_code", game.JoinCode).InfoContext(ctx, "game created")
	}()

	if !principal.CanHost() {
		err = ErrUnauthorized
		return
	}
	if s.games == nil || s.playlists == nil {
		err = fmt.Errorf("game repositories not configured")
		return
	}

	playlistID := strings.TrimSpace(input.PlaylistID)
	if playlistID == "" {
		err = fieldError("playlist_id", "playlist is required")
		return
	}
	var playlist Playlist
	playlist, err = s.playlists.GetPlaylist(ctx, playlistID)
	if err != nil {
		if isNotFound(err) {
			err = fieldError("playlist_id", "playlist does not exist")
		}
		return
	}
	if len(playlist.Songs) < bingo.SongsPerBoard {
		err = fieldError("playlist_id", fmt.Sprintf("playlist needs at least %d songs", bingo.SongsPerBoard))
		return
	}

	now := s.now()
	candidate := Game{
		ID:               s.idGenerator(),
		HostID:           principal.EmployeeID,
		PlaylistID:       playlist.ID,
		Location:         strings.TrimSpace(input.Location),
		Status:           GameStatusPending,
		CurrentSongIndex: -1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		candidate.JoinCode = s.joinCode()
		game, err = s.games.CreateGame(ctx, candidate)
		if !errors.Is(err, persistence.ErrDuplicate) {
			break
		}
	}
	err = mapGameRepoError(err)
	return
}

// StartGame moves a pending game to active, or resumes a paused one.
func (s *GameService) StartGame(ctx context.Context, principal Principal, gameID string) (GameState, error) {
	return s.transition(ctx, principal, gameID, "StartGame", func(game *Game, _ []Song, now time.Time) error {
		switch game.Status {
		case GameStatusPending:
			game.StartedAt = &now
		case GameStatusPaused:
		default:
			return ErrInvalidTransition
		}
		game.Status = GameStatusActive
		return nil
	})
}

// PauseGame pauses an active game.
func (s *GameService) PauseGame(ctx context.Context, principal Principal, gameID string) (GameState, error) {
	return s.transition(ctx, principal, gameID, "PauseGame", func(game *Game, _ []Song, _ time.Time) error {
		if game.Status != GameStatusActive {
			return ErrInvalidTransition
		}
		game.Status = GameStatusPaused
		return nil
	})
}

// EndGame ends a game from any state but ended.
func (s *GameService) EndGame(ctx context.Context, principal Principal, gameID string) (GameState, error) {
	return s.transition(ctx, principal, gameID, "EndGame", func(game *Game, _ []Song, now time.Time) error {
		if game.Status == GameStatusEnded {
			return ErrInvalidTransition
		}
		game.Status = GameStatusEnded
		game.EndedAt = &now
		return nil
	})
}

// NextSong advances to the next song of an active game.
func (s *GameService) NextSong(ctx context.Context, principal Principal, gameID string) (GameState, error) {
	return s.transition(ctx, principal, gameID, "NextSong", func(game *Game, songs []Song, _ time.Time) error {
		if game.Status != GameStatusActive || game.CurrentSongIndex >= len(songs)-1 {
			return ErrInvalidTransition
		}
		game.CurrentSongIndex++
		return nil
	})
}

// PreviousSong steps back one song in an active game, down to before the first.
func (s *GameService) PreviousSong(ctx context.Context, principal Principal, gameID string) (GameState, error) {
	return s.transition(ctx, principal, gameID, "PreviousSong", func(game *Game, _ []Song, _ time.Time) error {
		if game.Status != GameStatusActive || game.CurrentSongIndex <= -1 {
			return ErrInvalidTransition
		}
		game.CurrentSongIndex--
		return nil
	})
}

func (s *GameService) transition(ctx context.Context, principal Principal, gameID, operation string, apply func(*Game, []Song, time.Time) error) (state GameState, err error) {
	if s == nil {
		err = fmt.Errorf("GameService is nil")
		return
	}

	logger := s.loggerWith(ctx, operation, "principal_id", principal.EmployeeID, "game_id", gameID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "game transition failed", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"status", string(state.Status),
			"current_song_index", state.CurrentSongIndex,
		).InfoContext(ctx, "game updated")
	}()

	if s.games == nil || s.playlists == nil {
		err = fmt.Errorf("game repositories not configured")
		return
	}

	var game Game
	game, err = s.games.GetGame(ctx, gameID)
	if err != nil {
		err = mapGameRepoError(err)
		return
	}
	if !principal.IsAdmin && game.HostID != principal.EmployeeID {
		err = ErrUnauthorized
		return
	}

	var songs []Song
	songs, err = s.songsFor(ctx, game)
	if err != nil {
		return
	}

	now := s.now()
	if err = apply(&game, songs, now); err != nil {
		return
	}
	game.UpdatedAt = now

	game, err = s.games.UpdateGame(ctx, game)
	if err != nil {
		err = mapGameRepoError(err)
		return
	}

	state, err = s.buildState(ctx, game, songs)
	if err != nil {
		return
	}
	s.publish(ctx, state)
	return
}

// GetGame returns a game to its host or an admin.
func (s *GameService) GetGame(ctx context.Context, principal Principal, gameID string) (Game, error) {
	if s == nil {
		return Game{}, fmt.Errorf("GameService is nil")
	}
	if s.games == nil {
		return Game{}, ErrNotFound
	}
	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return Game{}, mapGameRepoError(err)
	}
	if !principal.IsAdmin && game.HostID != principal.EmployeeID {
		return Game{}, ErrNotFound
	}
	return game, nil
}

// GetGameByJoinCode resolves a join code, case-insensitively.
func (s *GameService) GetGameByJoinCode(ctx context.Context, code string) (Game, error) {
	if s == nil {
		return Game{}, fmt.Errorf("GameService is nil")
	}
	if s.games == nil {
		return Game{}, ErrNotFound
	}
	code = bingo.NormalizeJoinCode(code)
	if !bingo.ValidJoinCode(code) {
		return Game{}, ErrNotFound
	}
	game, err := s.games.GetGameByJoinCode(ctx, code)
	if err != nil {
		return Game{}, mapGameRepoError(err)
	}
	return game, nil
}

// ListGames returns games newest first. Hosts only see their own games.
func (s *GameService) ListGames(ctx context.Context, principal Principal, filter GameFilter) (games []Game, err error) {
	if s == nil {
		err = fmt.Errorf("GameService is nil")
		return
	}
	if !principal.CanHost() {
		err = ErrUnauthorized
		return
	}
	if s.games == nil {
		return nil, nil
	}
	if !principal.IsAdmin {
		filter.HostID = principal.EmployeeID
	}
	games, err = s.games.ListGames(ctx, filter)
	if err != nil {
		err = mapGameRepoError(err)
		s.loggerWith(ctx, "ListGames", "principal_id", principal.EmployeeID).
			ErrorContext(ctx, "failed to list games", "error", err, "error_kind", ErrorKind(err))
	}
	return
}

// GameState returns the live view of a game.
func (s *GameService) GameState(ctx context.Context, gameID string) (GameState, error) {
	if s == nil {
		return GameState{}, fmt.Errorf("GameService is nil")
	}
	if s.games == nil || s.playlists == nil {
		return GameState{}, fmt.Errorf("game repositories not configured")
	}
	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return GameState{}, mapGameRepoError(err)
	}
	songs, err := s.songsFor(ctx, game)
	if err != nil {
		return GameState{}, err
	}
	return s.buildState(ctx, game, songs)
}

// JoinGame registers an anonymous player on the game behind code and returns
// their board. Ended games cannot be joined.
func (s *GameService) JoinGame(ctx context.Context, code, displayName string) (result JoinResult, err error) {
	if s == nil {
		err = fmt.Errorf("GameService is nil")
		return
	}

	logger := s.loggerWith(ctx, "JoinGame", "join_code", code)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "failed to join game", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With(
			"game_id", result.Game.ID,
			"player_id", result.Player.PlayerID,
		).InfoContext(ctx, "player joined")
	}()

	if s.players == nil || s.playlists == nil {
		err = fmt.Errorf("game repositories not configured")
		return
	}

	name := strings.TrimSpace(displayName)
	if len([]rune(name)) > maxDisplayName {
		err = fieldError("display_name", fmt.Sprintf("display name must be at most %d characters", maxDisplayName))
		return
	}

	var game Game
	game, err = s.GetGameByJoinCode(ctx, code)
	if err != nil {
		return
	}
	if game.Status == GameStatusEnded {
		err = ErrInvalidTransition
		return
	}

	var songs []Song
	songs, err = s.songsFor(ctx, game)
	if err != nil {
		return
	}

	now := s.now()
	var player Player
	player, err = s.players.UpsertPlayer(ctx, Player{
		GameID:      game.ID,
		PlayerID:    s.idGenerator(),
		DisplayName: name,
		JoinedAt:    now,
		LastSeenAt:  now,
	})
	if err != nil {
		err = mapGameRepoError(err)
		return
	}
	s.touch(ctx, player, now)

	var board [][]BoardCell
	board, err = buildBoard(songs, game.ID, player.PlayerID)
	if err != nil {
		return
	}

	result = JoinResult{Game: game, Player: player, Board: board}
	if state, serr := s.buildState(ctx, game, songs); serr == nil {
		s.publish(ctx, state)
	}
	return
}

// PlayerBoard rebuilds the board of a joined player.
func (s *GameService) PlayerBoard(ctx context.Context, gameID, playerID string) ([][]BoardCell, error) {
	if s == nil {
		return nil, fmt.Errorf("GameService is nil")
	}
	if s.players == nil || s.games == nil {
		return nil, fmt.Errorf("game repositories not configured")
	}
	if _, err := s.players.GetPlayer(ctx, gameID, playerID); err != nil {
		return nil, mapGameRepoError(err)
	}
	game, err := s.games.GetGame(ctx, gameID)
	if err != nil {
		return nil, mapGameRepoError(err)
	}
	songs, err := s.songsFor(ctx, game)
	if err != nil {
		return nil, err
	}
	return buildBoard(songs, game.ID, playerID)
}

// Heartbeat marks a player as present and returns the current game state.
func (s *GameService) Heartbeat(ctx context.Context, gameID, playerID string) (GameState, error) {
	if s == nil {
		return GameState{}, fmt.Errorf("GameService is nil")
	}
	if s.players == nil {
		return GameState{}, fmt.Errorf("player repository not configured")
	}

	player, err := s.players.GetPlayer(ctx, gameID, playerID)
	if err != nil {
		return GameState{}, mapGameRepoError(err)
	}
	now := s.now()
	returning := player.LastSeenAt.Before(now.Add(-s.config.ActiveWindow))
	player.LastSeenAt = now
	if _, err := s.players.UpsertPlayer(ctx, player); err != nil {
		return GameState{}, mapGameRepoError(err)
	}
	s.touch(ctx, player, now)

	state, err := s.GameState(ctx, gameID)
	if err != nil {
		return GameState{}, err
	}
	// A returning player changes the active count.
	if returning {
		s.publish(ctx, state)
	}
	return state, nil
}

// PlayerCount counts players seen within the active window.
func (s *GameService) PlayerCount(ctx context.Context, gameID string) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("GameService is nil")
	}
	since := s.now().Add(-s.config.ActiveWindow)

	if s.presence != nil {
		count, err := s.presence.CountActive(ctx, gameID, since)
		if err == nil {
			return count, nil
		}
		s.loggerWith(ctx, "PlayerCount", "game_id", gameID).
			WarnContext(ctx, "presence lookup failed, counting from storage", "error", err)
	}
	if s.players == nil {
		return 0, nil
	}

	players, err := s.players.ListPlayers(ctx, gameID)
	if err != nil {
		return 0, mapGameRepoError(err)
	}
	count := 0
	for _, p := range players {
		if !p.LastSeenAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// PruneStalePlayers removes players not seen within the active window.
func (s *GameService) PruneStalePlayers(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("GameService is nil")
	}
	cutoff := s.now().Add(-s.config.ActiveWindow)

	var removed int64
	if s.players != nil {
		n, err := s.players.DeleteStalePlayers(ctx, cutoff)
		if err != nil {
			return 0, err
		}
		removed = n
	}
	if s.presence != nil {
		if _, err := s.presence.Prune(ctx, cutoff); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// JoinQRCode renders a PNG QR code of the game's player join URL.
func (s *GameService) JoinQRCode(ctx context.Context, principal Principal, gameID string, size int) ([]byte, error) {
	game, err := s.GetGame(ctx, principal, gameID)
	if err != nil {
		return nil, err
	}
	return bingo.JoinQR(s.JoinURL(game), size)
}

// JoinURL returns the public URL players open to join game.
func (s *GameService) JoinURL(game Game) string {
	base := s.config.JoinURL
	if base == "" {
		base = "/play"
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "code=" + game.JoinCode
}

func (s *GameService) touch(ctx context.Context, player Player, at time.Time) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Touch(ctx, player.GameID, player.PlayerID, at); err != nil {
		s.loggerWith(ctx, "touch", "game_id", player.GameID, "player_id", player.PlayerID).
			WarnContext(ctx, "failed to record presence", "error", err)
	}
}

func (s *GameService) songsFor(ctx context.Context, game Game) ([]Song, error) {
	playlist, err := s.playlists.GetPlaylist(ctx, game.PlaylistID)
	if err != nil {
		return nil, mapPlaylistRepoError(err)
	}
	return playlist.Songs, nil
}

func (s *GameService) buildState(ctx context.Context, game Game, songs []Song) (GameState, error) {
	count, err := s.PlayerCount(ctx, game.ID)
	if err != nil {
		return GameState{}, err
	}
	state := GameState{
		GameID:           game.ID,
		Status:           game.Status,
		CurrentSongIndex: game.CurrentSongIndex,
		SongsPlayed:      game.CurrentSongIndex + 1,
		TotalSongs:       len(songs),
		PlayerCount:      count,
		UpdatedAt:        game.UpdatedAt,
	}
	if i := game.CurrentSongIndex; i >= 0 && i < len(songs) {
		song := songs[i]
		state.CurrentSong = &song
	}
	return state, nil
}

func (s *GameService) publish(ctx context.Context, state GameState) {
	if s.publisher != nil {
		s.publisher.PublishGameState(ctx, state)
	}
}

func buildBoard(songs []Song, gameID, playerID string) ([][]BoardCell, error) {
	layout, err := bingo.BuildBoard(len(songs), bingo.Seed(gameID, playerID))
	if err != nil {
		return nil, fieldError("playlist_id", err.Error())
	}
	board := make([][]BoardCell, len(layout))
	for r, row := range layout {
		board[r] = make([]BoardCell, len(row))
		for c, idx := range row {
			if idx == bingo.FreeCell {
				board[r][c] = BoardCell{Free: true}
				continue
			}
			board[r][c] = BoardCell{Song: songs[idx]}
		}
	}
	return board, nil
}

func mapGameRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return fieldError("playlist_id", "playlist does not exist")
	case errors.Is(err, persistence.ErrConstraintViolation):
		return ErrInvalidTransition
	}
	return err
}
