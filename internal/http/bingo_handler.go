package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

const defaultQRSize = 256

type playlistService interface {
	CreatePlaylist(ctx context.Context, principal application.Principal, input application.PlaylistInput) (application.Playlist, error)
	UpdatePlaylist(ctx context.Context, principal application.Principal, playlistID string, input application.PlaylistInput) (application.Playlist, error)
	GetPlaylist(ctx context.Context, principal application.Principal, playlistID string) (application.Playlist, error)
	ListPlaylists(ctx context.Context, principal application.Principal) ([]application.Playlist, error)
	DeletePlaylist(ctx context.Context, principal application.Principal, playlistID string) error
}

type gameService interface {
	CreateGame(ctx context.Context, principal application.Principal, input application.GameInput) (application.Game, error)
	StartGame(ctx context.Context, principal application.Principal, gameID string) (application.GameState, error)
	PauseGame(ctx context.Context, principal application.Principal, gameID string) (application.GameState, error)
	EndGame(ctx context.Context, principal application.Principal, gameID string) (application.GameState, error)
	NextSong(ctx context.Context, principal application.Principal, gameID string) (application.GameState, error)
	PreviousSong(ctx context.Context, principal application.Principal, gameID string) (application.GameState, error)
	GetGame(ctx context.Context, principal application.Principal, gameID string) (application.Game, error)
	ListGames(ctx context.Context, principal application.Principal, filter application.GameFilter) ([]application.Game, error)
	GameState(ctx context.Context, gameID string) (application.GameState, error)
	JoinGame(ctx context.Context, code, displayName string) (application.JoinResult, error)
	PlayerBoard(ctx context.Context, gameID, playerID string) ([][]application.BoardCell, error)
	Heartbeat(ctx context.Context, gameID, playerID string) (application.GameState, error)
	JoinQRCode(ctx context.Context, principal application.Principal, gameID string, size int) ([]byte, error)
	JoinURL(game application.Game) string
}

// BingoHandler serves playlists, host game controls and the public player
// endpoints.
type BingoHandler struct {
	playlists playlistService
	games     gameService
	responder responder
	logger    *slog.Logger
}

func NewBingoHandler(playlists playlistService, games gameService, logger *slog.Logger) *BingoHandler {
	base := defaultLogger(logger)
	return &BingoHandler{playlists: playlists, games: games, responder: newResponder(base), logger: base}
}

func (h *BingoHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "BingoHandler", operation, attrs...)
}

func (h *BingoHandler) ListPlaylists(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	playlists, err := h.playlists.ListPlaylists(r.Context(), principal)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]playlistDTO, 0, len(playlists))
	for _, playlist := range playlists {
		out = append(out, toPlaylistDTO(playlist, false))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listPlaylistsResponse{Playlists: out})
}

func (h *BingoHandler) CreatePlaylist(w http.ResponseWriter, r *http.Request) {
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	playlist, err := h.playlists.CreatePlaylist(r.Context(), principal, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.log(r.Context(), "CreatePlaylist", "playlist_id", playlist.ID).InfoContext(r.Context(), "playlist created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, playlistResponse{Playlist: toPlaylistDTO(playlist, true)})
}

func (h *BingoHandler) GetPlaylist(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	playlist, err := h.playlists.GetPlaylist(r.Context(), principal, strings.TrimSpace(r.PathValue("id")))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, playlistResponse{Playlist: toPlaylistDTO(playlist, true)})
}

func (h *BingoHandler) UpdatePlaylist(w http.ResponseWriter, r *http.Request) {
	playlistID := strings.TrimSpace(r.PathValue("id"))
	var req playlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	playlist, err := h.playlists.UpdatePlaylist(r.Context(), principal, playlistID, req.toInput())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, playlistResponse{Playlist: toPlaylistDTO(playlist, true)})
}

func (h *BingoHandler) DeletePlaylist(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	if err := h.playlists.DeletePlaylist(r.Context(), principal, strings.TrimSpace(r.PathValue("id"))); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// ListGames handles GET /games[?status=].
func (h *BingoHandler) ListGames(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	filter := application.GameFilter{
		HostID: strings.TrimSpace(r.URL.Query().Get("host")),
		Status: application.GameStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
	}
	games, err := h.games.ListGames(r.Context(), principal, filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]gameDTO, 0, len(games))
	for _, game := range games {
		out = append(out, h.toGameDTO(game))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listGamesResponse{Games: out})
}

func (h *BingoHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := h.log(r.Context(), "CreateGame", "principal_id", principal.EmployeeID, "playlist_id", req.PlaylistID)
	game, err := h.games.CreateGame(r.Context(), principal, application.GameInput{
		PlaylistID: strings.TrimSpace(req.PlaylistID),
		Location:   strings.TrimSpace(req.Location),
	})
	if err != nil {
		logger.ErrorContext(r.Context(), "game creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.With("game_id", game.ID, "join_code", game.JoinCode).InfoContext(r.Context(), "game created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, gameResponse{Game: h.toGameDTO(game)})
}

func (h *BingoHandler) GetGame(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	gameID := strings.TrimSpace(r.PathValue("id"))
	game, err := h.games.GetGame(r.Context(), principal, gameID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	state, err := h.games.GameState(r.Context(), gameID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	dto := h.toGameDTO(game)
	stateDTO := toGameStateDTO(state)
	dto.State = &stateDTO
	h.responder.writeJSON(r.Context(), w, http.StatusOK, gameResponse{Game: dto})
}

// Transition returns the handler for one host control: start, pause, end,
// next or previous.
func (h *BingoHandler) Transition(action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, _ := PrincipalFromContext(r.Context())
		gameID := strings.TrimSpace(r.PathValue("id"))
		logger := h.log(r.Context(), "Transition", "principal_id", principal.EmployeeID, "game_id", gameID, "action", action)

		var apply func(context.Context, application.Principal, string) (application.GameState, error)
		switch action {
		case "start":
			apply = h.games.StartGame
		case "pause":
			apply = h.games.PauseGame
		case "end":
			apply = h.games.EndGame
		case "next":
			apply = h.games.NextSong
		case "previous":
			apply = h.games.PreviousSong
		default:
			http.NotFound(w, r)
			return
		}

		state, err := apply(r.Context(), principal, gameID)
		if err != nil {
			logger.WarnContext(r.Context(), "game transition rejected", "error", err, "error_kind", application.ErrorKind(err))
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		h.responder.writeJSON(r.Context(), w, http.StatusOK, gameStateResponse{State: toGameStateDTO(state)})
	}
}

// QRCode handles GET /games/{id}/qr[?size=].
func (h *BingoHandler) QRCode(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize
	if raw := strings.TrimSpace(r.URL.Query().Get("size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 64 || parsed > 2048 {
			h.responder.handleServiceError(r.Context(), w, &application.ValidationError{
				FieldErrors: map[string]string{"size": "size must be between 64 and 2048"},
			})
			return
		}
		size = parsed
	}

	principal, _ := PrincipalFromContext(r.Context())
	png, err := h.games.JoinQRCode(r.Context(), principal, strings.TrimSpace(r.PathValue("id")), size)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// Join handles POST /play/join. Players do not sign in.
func (h *BingoHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Join", "join_code", strings.ToUpper(strings.TrimSpace(req.Code)))
	result, err := h.games.JoinGame(r.Context(), req.Code, req.DisplayName)
	if err != nil {
		logger.WarnContext(r.Context(), "join rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	logger.With("game_id", result.Game.ID, "player_id", result.Player.PlayerID).InfoContext(r.Context(), "player joined")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, joinResponse{
		GameID:      result.Game.ID,
		PlayerID:    result.Player.PlayerID,
		DisplayName: result.Player.DisplayName,
		Status:      string(result.Game.Status),
		Board:       toBoardDTO(result.Board),
	})
}

// Board handles GET /play/{game}/{player}/board.
func (h *BingoHandler) Board(w http.ResponseWriter, r *http.Request) {
	board, err := h.games.PlayerBoard(r.Context(), r.PathValue("game"), r.PathValue("player"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, boardResponse{Board: toBoardDTO(board)})
}

// Heartbeat handles POST /play/{game}/{player}/heartbeat.
func (h *BingoHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	state, err := h.games.Heartbeat(r.Context(), r.PathValue("game"), r.PathValue("player"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, gameStateResponse{State: toGameStateDTO(state)})
}

type playlistRequest struct {
	Name  string    `json:"name"`
	Songs []songDTO `json:"songs"`
}

func (r playlistRequest) toInput() application.PlaylistInput {
	songs := make([]application.Song, 0, len(r.Songs))
	for _, song := range r.Songs {
		songs = append(songs, application.Song{Title: song.Title, Artist: song.Artist})
	}
	return application.PlaylistInput{Name: strings.TrimSpace(r.Name), Songs: songs}
}

type gameRequest struct {
	PlaylistID string `json:"playlist_id"`
	Location   string `json:"location"`
}

type joinRequest struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
}

type songDTO struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type playlistDTO struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	SongCount int       `json:"song_count"`
	Songs     []songDTO `json:"songs,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

func toPlaylistDTO(playlist application.Playlist, withSongs bool) playlistDTO {
	dto := playlistDTO{
		ID:        playlist.ID,
		Name:      playlist.Name,
		SongCount: len(playlist.Songs),
		CreatedBy: playlist.CreatedBy,
		CreatedAt: playlist.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: playlist.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if withSongs {
		dto.Songs = make([]songDTO, 0, len(playlist.Songs))
		for _, song := range playlist.Songs {
			dto.Songs = append(dto.Songs, songDTO{Title: song.Title, Artist: song.Artist})
		}
	}
	return dto
}

type playlistResponse struct {
	Playlist playlistDTO `json:"playlist"`
}

type listPlaylistsResponse struct {
	Playlists []playlistDTO `json:"playlists"`
}

type gameDTO struct {
	ID               string        `json:"id"`
	HostID           string        `json:"host_id"`
	PlaylistID       string        `json:"playlist_id"`
	Location         string        `json:"location,omitempty"`
	Status           string        `json:"status"`
	CurrentSongIndex int           `json:"current_song_index"`
	JoinCode         string        `json:"join_code"`
	JoinURL          string        `json:"join_url"`
	StartedAt        string        `json:"started_at,omitempty"`
	EndedAt          string        `json:"ended_at,omitempty"`
	CreatedAt        string        `json:"created_at"`
	State            *gameStateDTO `json:"state,omitempty"`
}

func (h *BingoHandler) toGameDTO(game application.Game) gameDTO {
	dto := gameDTO{
		ID:               game.ID,
		HostID:           game.HostID,
		PlaylistID:       game.PlaylistID,
		Location:         game.Location,
		Status:           string(game.Status),
		CurrentSongIndex: game.CurrentSongIndex,
		JoinCode:         game.JoinCode,
		JoinURL:          h.games.JoinURL(game),
		CreatedAt:        game.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if game.StartedAt != nil {
		dto.StartedAt = game.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	if game.EndedAt != nil {
		dto.EndedAt = game.EndedAt.UTC().Format(time.RFC3339Nano)
	}
	return dto
}

type gameResponse struct {
	Game gameDTO `json:"game"`
}

type listGamesResponse struct {
	Games []gameDTO `json:"games"`
}

type gameStateDTO struct {
	GameID           string   `json:"game_id"`
	Status           string   `json:"status"`
	CurrentSongIndex int      `json:"current_song_index"`
	CurrentSong      *songDTO `json:"current_song,omitempty"`
	SongsPlayed      int      `json:"songs_played"`
	TotalSongs       int      `json:"total_songs"`
	PlayerCount      int      `json:"player_count"`
	UpdatedAt        string   `json:"updated_at"`
}

func toGameStateDTO(state application.GameState) gameStateDTO {
	dto := gameStateDTO{
		GameID:           state.GameID,
		Status:           string(state.Status),
		CurrentSongIndex: state.CurrentSongIndex,
		SongsPlayed:      state.SongsPlayed,
		TotalSongs:       state.TotalSongs,
		PlayerCount:      state.PlayerCount,
		UpdatedAt:        state.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if state.CurrentSong != nil {
		dto.CurrentSong = &songDTO{Title: state.CurrentSong.Title, Artist: state.CurrentSong.Artist}
	}
	return dto
}

type gameStateResponse struct {
	State gameStateDTO `json:"state"`
}

type boardCellDTO struct {
	Free   bool   `json:"free,omitempty"`
	Title  string `json:"title,omitempty"`
	Artist string `json:"artist,omitempty"`
}

func toBoardDTO(board [][]application.BoardCell) [][]boardCellDTO {
	out := make([][]boardCellDTO, 0, len(board))
	for _, row := range board {
		cells := make([]boardCellDTO, 0, len(row))
		for _, cell := range row {
			if cell.Free {
				cells = append(cells, boardCellDTO{Free: true})
				continue
			}
			cells = append(cells, boardCellDTO{Title: cell.Song.Title, Artist: cell.Song.Artist})
		}
		out = append(out, cells)
	}
	return out
}

type joinResponse struct {
	GameID      string           `json:"game_id"`
	PlayerID    string           `json:"player_id"`
	DisplayName string           `json:"display_name"`
	Status      string           `json:"status"`
	Board       [][]boardCellDTO `json:"board"`
}

type boardResponse struct {
	Board [][]boardCellDTO `json:"board"`
}
