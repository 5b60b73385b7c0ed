package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/bingo"
	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

// MaxPlaylistSongs bounds a single playlist.
const MaxPlaylistSongs = 500

// PlaylistRepository captures the persistence operations for playlists.
type PlaylistRepository interface {
	CreatePlaylist(ctx context.Context, playlist Playlist) (Playlist, error)
	UpdatePlaylist(ctx context.Context, playlist Playlist) (Playlist, error)
	GetPlaylist(ctx context.Context, id string) (Playlist, error)
	ListPlaylists(ctx context.Context) ([]Playlist, error)
	DeletePlaylist(ctx context.Context, id string) error
}

// GameLister finds the games that draw from a playlist.
type GameLister interface {
	ListGames(ctx context.Context, filter GameFilter) ([]Game, error)
}

// PlaylistService manages music bingo playlists for hosts and admins.
type PlaylistService struct {
	playlists   PlaylistRepository
	games       GameLister
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewPlaylistService wires dependencies for the playlist service.
func NewPlaylistService(playlists PlaylistRepository, games GameLister, idGenerator func() string, now func() time.Time) *PlaylistService {
	return NewPlaylistServiceWithLogger(playlists, games, idGenerator, now, nil)
}

// NewPlaylistServiceWithLogger wires dependencies for the playlist service with a specified logger.
func NewPlaylistServiceWithLogger(playlists PlaylistRepository, games GameLister, idGenerator func() string, now func() time.Time, logger *slog.Logger) *PlaylistService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &PlaylistService{
		playlists:   playlists,
		games:       games,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *PlaylistService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "PlaylistService", operation, attrs...)
}

// CreatePlaylist stores a new playlist.
func (s *PlaylistService) CreatePlaylist(ctx context.Context, principal Principal, input PlaylistInput) (playlist Playlist, err error) {
	if s == nil {
		err = fmt.Errorf("PlaylistService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreatePlaylist", "principal_id", principal.EmployeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create playlist", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("playlist_id", playlist.ID, "song_count", len(playlist.Songs)).InfoContext(ctx, "playlist created")
	}()

	if !principal.CanHost() {
		err = ErrUnauthorized
		return
	}
	if s.playlists == nil {
		err = fmt.Errorf("playlist repository not configured")
		return
	}

	normalized, vErr := normalizePlaylistInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	now := s.now()
	playlist, err = s.playlists.CreatePlaylist(ctx, Playlist{
		ID:        s.idGenerator(),
		Name:      normalized.Name,
		Songs:     normalized.Songs,
		CreatedBy: principal.EmployeeID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	err = mapPlaylistRepoError(err)
	return
}

// UpdatePlaylist replaces a playlist's name and songs. While a game that has
// not ended draws from the playlist, the song list cannot shrink below a full
// board or below the songs already called.
func (s *PlaylistService) UpdatePlaylist(ctx context.Context, principal Principal, playlistID string, input PlaylistInput) (playlist Playlist, err error) {
	if s == nil {
		err = fmt.Errorf("PlaylistService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdatePlaylist", "principal_id", principal.EmployeeID, "playlist_id", playlistID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update playlist", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("song_count", len(playlist.Songs)).InfoContext(ctx, "playlist updated")
	}()

	if !principal.CanHost() {
		err = ErrUnauthorized
		return
	}
	if s.playlists == nil {
		err = fmt.Errorf("playlist repository not configured")
		return
	}

	normalized, vErr := normalizePlaylistInput(input)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var existing Playlist
	existing, err = s.playlists.GetPlaylist(ctx, playlistID)
	if err != nil {
		err = mapPlaylistRepoError(err)
		return
	}
	if err = s.ensureSongsCoverGames(ctx, playlistID, len(normalized.Songs)); err != nil {
		return
	}
	existing.Name = normalized.Name
	existing.Songs = normalized.Songs
	existing.UpdatedAt = s.now()

	playlist, err = s.playlists.UpdatePlaylist(ctx, existing)
	err = mapPlaylistRepoError(err)
	return
}

// GetPlaylist returns one playlist.
func (s *PlaylistService) GetPlaylist(ctx context.Context, principal Principal, playlistID string) (Playlist, error) {
	if s == nil {
		return Playlist{}, fmt.Errorf("PlaylistService is nil")
	}
	if !principal.CanHost() {
		return Playlist{}, ErrUnauthorized
	}
	if s.playlists == nil {
		return Playlist{}, ErrNotFound
	}
	playlist, err := s.playlists.GetPlaylist(ctx, playlistID)
	if err != nil {
		return Playlist{}, mapPlaylistRepoError(err)
	}
	return playlist, nil
}

// ListPlaylists returns playlists sorted by name.
func (s *PlaylistService) ListPlaylists(ctx context.Context, principal Principal) (playlists []Playlist, err error) {
	if s == nil {
		err = fmt.Errorf("PlaylistService is nil")
		return
	}
	if !principal.CanHost() {
		err = ErrUnauthorized
		return
	}
	if s.playlists == nil {
		return nil, nil
	}

	playlists, err = s.playlists.ListPlaylists(ctx)
	if err != nil {
		err = mapPlaylistRepoError(err)
		s.loggerWith(ctx, "ListPlaylists", "principal_id", principal.EmployeeID).
			ErrorContext(ctx, "failed to list playlists", "error", err, "error_kind", ErrorKind(err))
		return nil, err
	}
	slices.SortStableFunc(playlists, func(a, b Playlist) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return
}

// DeletePlaylist removes a playlist. Playlists used by a game return ErrInUse.
func (s *PlaylistService) DeletePlaylist(ctx context.Context, principal Principal, playlistID string) error {
	if s == nil {
		return fmt.Errorf("PlaylistService is nil")
	}
	if !principal.CanHost() {
		return ErrUnauthorized
	}
	if s.playlists == nil {
		return fmt.Errorf("playlist repository not configured")
	}

	logger := s.loggerWith(ctx, "DeletePlaylist", "principal_id", principal.EmployeeID, "playlist_id", playlistID)
	if s.games != nil {
		games, err := s.games.ListGames(ctx, GameFilter{PlaylistID: playlistID})
		if err != nil {
			logger.ErrorContext(ctx, "failed to check playlist usage", "error", err)
			return err
		}
		if len(games) > 0 {
			logger.WarnContext(ctx, "playlist still used by games", "game_count", len(games), "error_kind", ErrorKind(ErrInUse))
			return ErrInUse
		}
	}
	if err := s.playlists.DeletePlaylist(ctx, playlistID); err != nil {
		err = mapPlaylistRepoError(err)
		logger.ErrorContext(ctx, "failed to delete playlist", "error", err, "error_kind", ErrorKind(err))
		return err
	}
	logger.InfoContext(ctx, "playlist deleted")
	return nil
}

// ensureSongsCoverGames returns ErrInUse when songCount would leave a game
// that has not ended without a full board or past its current song.
func (s *PlaylistService) ensureSongsCoverGames(ctx context.Context, playlistID string, songCount int) error {
	if s.games == nil {
		return nil
	}
	games, err := s.games.ListGames(ctx, GameFilter{PlaylistID: playlistID})
	if err != nil {
		return err
	}
	for _, game := range games {
		if game.Status == GameStatusEnded {
			continue
		}
		if songCount < bingo.SongsPerBoard || songCount <= game.CurrentSongIndex {
			return fmt.Errorf("playlist %s backs game %s: %w", playlistID, game.ID, ErrInUse)
		}
	}
	return nil
}

func normalizePlaylistInput(input PlaylistInput) (PlaylistInput, *ValidationError) {
	vErr := &ValidationError{}
	out := PlaylistInput{Name: strings.TrimSpace(input.Name)}
	if out.Name == "" {
		vErr.add("name", "name is required")
	}
	if len(input.Songs) > MaxPlaylistSongs {
		vErr.add("songs", fmt.Sprintf("a playlist holds at most %d songs", MaxPlaylistSongs))
		return out, vErr
	}

	out.Songs = make([]Song, 0, len(input.Songs))
	for i, song := range input.Songs {
		song.Title = strings.TrimSpace(song.Title)
		song.Artist = strings.TrimSpace(song.Artist)
		if song.Title == "" {
			vErr.add("songs", fmt.Sprintf("song %d needs a title", i+1))
			break
		}
		out.Songs = append(out.Songs, song)
	}
	return out, vErr
}

func mapPlaylistRepoError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, persistence.ErrForeignKeyViolation):
		return ErrInUse
	case errors.Is(err, persistence.ErrDuplicate):
		return ErrAlreadyExists
	}
	return err
}
