package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

// BingoRepository implements the playlist, game and player repositories
// using SQLite.
type BingoRepository struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
}

// NewBingoRepository creates a new SQLite music bingo repository.
func NewBingoRepository(pool *ConnectionPool) *BingoRepository {
	return &BingoRepository{pool: pool, mapper: NewErrorMapper()}
}

// CreatePlaylist inserts a playlist together with its songs.
func (r *BingoRepository) CreatePlaylist(ctx context.Context, playlist persistence.Playlist) error {
	if playlist.ID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO playlists (id, name, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			playlist.ID, playlist.Name, playlist.CreatedBy,
			formatTime(playlist.CreatedAt), formatTime(playlist.UpdatedAt),
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		return r.insertSongs(ctx, tx, playlist.ID, playlist.Songs)
	})
}

// UpdatePlaylist replaces the name and the full song list of a playlist.
func (r *BingoRepository) UpdatePlaylist(ctx context.Context, playlist persistence.Playlist) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE playlists SET name = ?, updated_at = ? WHERE id = ?`,
			playlist.Name, formatTime(playlist.UpdatedAt), playlist.ID,
		)
		if err != nil {
			return r.mapper.MapError(err)
		}
		if err := requireAffected(result); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM playlist_songs WHERE playlist_id = ?`, playlist.ID); err != nil {
			return r.mapper.MapError(err)
		}
		return r.insertSongs(ctx, tx, playlist.ID, playlist.Songs)
	})
}

func (r *BingoRepository) insertSongs(ctx context.Context, tx *sql.Tx, playlistID string, songs []persistence.Song) error {
	for i, song := range songs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO playlist_songs (playlist_id, position, title, artist) VALUES (?, ?, ?, ?)`,
			playlistID, i, song.Title, song.Artist,
		); err != nil {
			return r.mapper.MapError(err)
		}
	}
	return nil
}

// GetPlaylist retrieves a playlist and its songs in order.
func (r *BingoRepository) GetPlaylist(ctx context.Context, id string) (persistence.Playlist, error) {
	var (
		playlist             persistence.Playlist
		createdAt, updatedAt string
	)
	err := r.pool.DB().QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at, updated_at FROM playlists WHERE id = ?`, id,
	).Scan(&playlist.ID, &playlist.Name, &playlist.CreatedBy, &createdAt, &updatedAt)
	if err != nil {
		return persistence.Playlist{}, r.mapper.MapError(err)
	}
	if playlist.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Playlist{}, err
	}
	if playlist.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Playlist{}, err
	}

	songs, err := r.songsFor(ctx, []string{id})
	if err != nil {
		return persistence.Playlist{}, err
	}
	playlist.Songs = songs[id]
	return playlist, nil
}

// ListPlaylists returns every playlist ordered by name.
func (r *BingoRepository) ListPlaylists(ctx context.Context) ([]persistence.Playlist, error) {
	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT id, name, created_by, created_at, updated_at FROM playlists ORDER BY name COLLATE NOCASE, id`)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}

	var (
		playlists []persistence.Playlist
		ids       []string
	)
	for rows.Next() {
		var (
			playlist             persistence.Playlist
			createdAt, updatedAt string
		)
		if err := rows.Scan(&playlist.ID, &playlist.Name, &playlist.CreatedBy, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		if playlist.CreatedAt, err = parseTime(createdAt); err != nil {
			rows.Close()
			return nil, err
		}
		if playlist.UpdatedAt, err = parseTime(updatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		playlists = append(playlists, playlist)
		ids = append(ids, playlist.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate playlists: %w", err)
	}
	rows.Close()

	songs, err := r.songsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range playlists {
		playlists[i].Songs = songs[playlists[i].ID]
	}
	return playlists, nil
}

func (r *BingoRepository) songsFor(ctx context.Context, playlistIDs []string) (map[string][]persistence.Song, error) {
	out := make(map[string][]persistence.Song, len(playlistIDs))
	if len(playlistIDs) == 0 {
		return out, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(playlistIDs)), ",")
	args := make([]any, len(playlistIDs))
	for i, id := range playlistIDs {
		args[i] = id
	}

	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT playlist_id, title, artist FROM playlist_songs WHERE playlist_id IN (`+placeholders+`) ORDER BY playlist_id, position`,
		args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var song persistence.Song
		if err := rows.Scan(&id, &song.Title, &song.Artist); err != nil {
			return nil, err
		}
		out[id] = append(out[id], song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate songs: %w", err)
	}
	return out, nil
}

// DeletePlaylist removes a playlist. Playlists referenced by a game are kept
// and ErrForeignKeyViolation is returned.
func (r *BingoRepository) DeletePlaylist(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

const gameColumns = `id, host_id, playlist_id, location, status, current_song_index, join_code, started_at, ended_at, created_at, updated_at`

// CreateGame inserts a new game.
func (r *BingoRepository) CreateGame(ctx context.Context, game persistence.Game) error {
	if game.ID == "" || game.JoinCode == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO games (`+gameColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		game.ID, game.HostID, game.PlaylistID, game.Location, game.Status,
		game.CurrentSongIndex, game.JoinCode,
		formatTimePtr(game.StartedAt), formatTimePtr(game.EndedAt),
		formatTime(game.CreatedAt), formatTime(game.UpdatedAt),
	)
	return r.mapper.MapError(err)
}

// UpdateGame overwrites the mutable state of a game.
func (r *BingoRepository) UpdateGame(ctx context.Context, game persistence.Game) error {
	result, err := r.pool.DB().ExecContext(ctx, `
		UPDATE games
		SET location = ?, status = ?, current_song_index = ?, started_at = ?, ended_at = ?, updated_at = ?
		WHERE id = ?`,
		game.Location, game.Status, game.CurrentSongIndex,
		formatTimePtr(game.StartedAt), formatTimePtr(game.EndedAt),
		formatTime(game.UpdatedAt), game.ID,
	)
	if err != nil {
		return r.mapper.MapError(err)
	}
	return requireAffected(result)
}

// GetGame retrieves a game by ID.
func (r *BingoRepository) GetGame(ctx context.Context, id string) (persistence.Game, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id = ?`, id)
	game, err := scanGame(row)
	if err != nil {
		return persistence.Game{}, r.mapper.MapError(err)
	}
	return game, nil
}

// GetGameByJoinCode retrieves a game by its player join code.
func (r *BingoRepository) GetGameByJoinCode(ctx context.Context, code string) (persistence.Game, error) {
	row := r.pool.DB().QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE join_code = ?`, strings.ToUpper(strings.TrimSpace(code)))
	game, err := scanGame(row)
	if err != nil {
		return persistence.Game{}, r.mapper.MapError(err)
	}
	return game, nil
}

// ListGames returns games newest first.
func (r *BingoRepository) ListGames(ctx context.Context, filter persistence.GameFilter) ([]persistence.Game, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.HostID != "" {
		clauses = append(clauses, "host_id = ?")
		args = append(args, filter.HostID)
	}
	if filter.PlaylistID != "" {
		clauses = append(clauses, "playlist_id = ?")
		args = append(args, filter.PlaylistID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, filter.Status)
	}
	query := `SELECT ` + gameColumns + ` FROM games`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`

	rows, err := r.pool.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var games []persistence.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, game)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate games: %w", err)
	}
	return games, nil
}

func scanGame(row scanner) (persistence.Game, error) {
	var (
		game                 persistence.Game
		startedAt, endedAt   sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&game.ID, &game.HostID, &game.PlaylistID, &game.Location, &game.Status,
		&game.CurrentSongIndex, &game.JoinCode, &startedAt, &endedAt, &createdAt, &updatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return persistence.Game{}, persistence.ErrNotFound
		}
		return persistence.Game{}, err
	}

	var err error
	if game.StartedAt, err = parseTimePtr(startedAt); err != nil {
		return persistence.Game{}, err
	}
	if game.EndedAt, err = parseTimePtr(endedAt); err != nil {
		return persistence.Game{}, err
	}
	if game.CreatedAt, err = parseTime(createdAt); err != nil {
		return persistence.Game{}, err
	}
	if game.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return persistence.Game{}, err
	}
	return game, nil
}

// UpsertPlayer records a join or a heartbeat. The original join time and
// display name survive later upserts unless a new name is given.
func (r *BingoRepository) UpsertPlayer(ctx context.Context, player persistence.Player) error {
	if player.GameID == "" || player.PlayerID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := r.pool.DB().ExecContext(ctx, `
		INSERT INTO players (game_id, player_id, display_name, joined_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (game_id, player_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name = '' THEN players.display_name ELSE excluded.display_name END,
			last_seen_at = excluded.last_seen_at`,
		player.GameID, player.PlayerID, player.DisplayName,
		formatTime(player.JoinedAt), formatTime(player.LastSeenAt),
	)
	return r.mapper.MapError(err)
}

// GetPlayer retrieves one player of a game.
func (r *BingoRepository) GetPlayer(ctx context.Context, gameID, playerID string) (persistence.Player, error) {
	row := r.pool.DB().QueryRowContext(ctx,
		`SELECT game_id, player_id, display_name, joined_at, last_seen_at FROM players WHERE game_id = ? AND player_id = ?`,
		gameID, playerID)
	player, err := scanPlayer(row)
	if err != nil {
		return persistence.Player{}, r.mapper.MapError(err)
	}
	return player, nil
}

// ListPlayers returns the players of a game in join order.
func (r *BingoRepository) ListPlayers(ctx context.Context, gameID string) ([]persistence.Player, error) {
	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT game_id, player_id, display_name, joined_at, last_seen_at FROM players WHERE game_id = ? ORDER BY joined_at, player_id`,
		gameID)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	var players []persistence.Player
	for rows.Next() {
		player, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, player)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate players: %w", err)
	}
	return players, nil
}

// DeleteStalePlayers removes players not seen since seenBefore.
func (r *BingoRepository) DeleteStalePlayers(ctx context.Context, seenBefore time.Time) (int64, error) {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM players WHERE last_seen_at < ?`, formatTime(seenBefore))
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return result.RowsAffected()
}

func scanPlayer(row scanner) (persistence.Player, error) {
	var (
		player           persistence.Player
		joinedAt, seenAt string
	)
	if err := row.Scan(&player.GameID, &player.PlayerID, &player.DisplayName, &joinedAt, &seenAt); err != nil {
		if err == sql.ErrNoRows {
			return persistence.Player{}, persistence.ErrNotFound
		}
		return persistence.Player{}, err
	}
	var err error
	if player.JoinedAt, err = parseTime(joinedAt); err != nil {
		return persistence.Player{}, err
	}
	if player.LastSeenAt, err = parseTime(seenAt); err != nil {
		return persistence.Player{}, err
	}
	return player, nil
}
