package firestore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

type songDoc struct {
	Title  string `firestore:"title"`
	Artist string `firestore:"artist"`
}

type playlistDoc struct {
	Name      string    `firestore:"name"`
	Songs     []songDoc `firestore:"songs"`
	CreatedBy string    `firestore:"created_by"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func toPlaylistDoc(p persistence.Playlist) playlistDoc {
	songs := make([]songDoc, len(p.Songs))
	for i, song := range p.Songs {
		songs[i] = songDoc{Title: song.Title, Artist: song.Artist}
	}
	return playlistDoc{
		Name:      p.Name,
		Songs:     songs,
		CreatedBy: p.CreatedBy,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
}

func decodePlaylist(snap *firestore.DocumentSnapshot) (persistence.Playlist, error) {
	d, err := decodeAs[playlistDoc](snap)
	if err != nil {
		return persistence.Playlist{}, err
	}
	songs := make([]persistence.Song, len(d.Songs))
	for i, song := range d.Songs {
		songs[i] = persistence.Song{Title: song.Title, Artist: song.Artist}
	}
	return persistence.Playlist{
		ID:        snap.Ref.ID,
		Name:      d.Name,
		Songs:     songs,
		CreatedBy: d.CreatedBy,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// CreatePlaylist stores a playlist with its songs embedded in order.
func (s *Store) CreatePlaylist(ctx context.Context, playlist persistence.Playlist) error {
	if playlist.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.col(playlistsCollection).Doc(playlist.ID).Create(ctx, toPlaylistDoc(playlist))
	return mapError(err)
}

// UpdatePlaylist replaces the name and song list of a playlist.
func (s *Store) UpdatePlaylist(ctx context.Context, playlist persistence.Playlist) error {
	if playlist.ID == "" {
		return persistence.ErrConstraintViolation
	}
	doc := toPlaylistDoc(playlist)
	_, err := s.col(playlistsCollection).Doc(playlist.ID).Update(ctx, []firestore.Update{
		{Path: "name", Value: doc.Name},
		{Path: "songs", Value: doc.Songs},
		{Path: "updated_at", Value: doc.UpdatedAt},
	})
	return mapError(err)
}

// GetPlaylist retrieves a playlist by ID.
func (s *Store) GetPlaylist(ctx context.Context, id string) (persistence.Playlist, error) {
	if id == "" {
		return persistence.Playlist{}, persistence.ErrNotFound
	}
	snap, err := s.col(playlistsCollection).Doc(id).Get(ctx)
	if err != nil {
		return persistence.Playlist{}, mapError(err)
	}
	return decodePlaylist(snap)
}

// ListPlaylists returns every playlist ordered by name.
func (s *Store) ListPlaylists(ctx context.Context) ([]persistence.Playlist, error) {
	playlists, err := collect(s.col(playlistsCollection).Documents(ctx), decodePlaylist)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(playlists, func(a, b persistence.Playlist) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return playlists, nil
}

// DeletePlaylist removes a playlist. Playlists referenced by a game are kept
// and ErrForeignKeyViolation is returned.
func (s *Store) DeletePlaylist(ctx context.Context, id string) error {
	if id == "" {
		return persistence.ErrNotFound
	}
	ref := s.col(playlistsCollection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		used, err := tx.Documents(s.col(gamesCollection).Where("playlist_id", "==", id).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(used) > 0 {
			return persistence.ErrForeignKeyViolation
		}
		return tx.Delete(ref)
	})
	return mapError(err)
}

type gameDoc struct {
	HostID           string     `firestore:"host_id"`
	PlaylistID       string     `firestore:"playlist_id"`
	Location         string     `firestore:"location"`
	Status           string     `firestore:"status"`
	CurrentSongIndex int        `firestore:"current_song_index"`
	JoinCode         string     `firestore:"join_code"`
	StartedAt        *time.Time `firestore:"started_at"`
	EndedAt          *time.Time `firestore:"ended_at"`
	CreatedAt        time.Time  `firestore:"created_at"`
	UpdatedAt        time.Time  `firestore:"updated_at"`
}

func toGameDoc(g persistence.Game) gameDoc {
	return gameDoc{
		HostID:           g.HostID,
		PlaylistID:       g.PlaylistID,
		Location:         g.Location,
		Status:           g.Status,
		CurrentSongIndex: g.CurrentSongIndex,
		JoinCode:         g.JoinCode,
		StartedAt:        utcPtr(g.StartedAt),
		EndedAt:          utcPtr(g.EndedAt),
		CreatedAt:        g.CreatedAt.UTC(),
		UpdatedAt:        g.UpdatedAt.UTC(),
	}
}

func decodeGame(snap *firestore.DocumentSnapshot) (persistence.Game, error) {
	d, err := decodeAs[gameDoc](snap)
	if err != nil {
		return persistence.Game{}, err
	}
	return persistence.Game{
		ID:               snap.Ref.ID,
		HostID:           d.HostID,
		PlaylistID:       d.PlaylistID,
		Location:         d.Location,
		Status:           d.Status,
		CurrentSongIndex: d.CurrentSongIndex,
		JoinCode:         d.JoinCode,
		StartedAt:        d.StartedAt,
		EndedAt:          d.EndedAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}, nil
}

// CreateGame stores a game after checking its playlist and claiming its join
// code.
func (s *Store) CreateGame(ctx context.Context, game persistence.Game) error {
	if game.ID == "" || game.JoinCode == "" {
		return persistence.ErrConstraintViolation
	}
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(s.col(playlistsCollection).Doc(game.PlaylistID)); err != nil {
			if errors.Is(mapError(err), persistence.ErrNotFound) {
				return persistence.ErrForeignKeyViolation
			}
			return err
		}
		if err := tx.Create(s.col(joinCodesCollection).Doc(game.JoinCode), claimDoc{OwnerID: game.ID}); err != nil {
			return err
		}
		return tx.Create(s.col(gamesCollection).Doc(game.ID), toGameDoc(game))
	})
	return mapError(err)
}

// UpdateGame overwrites the mutable state of a game.
func (s *Store) UpdateGame(ctx context.Context, game persistence.Game) error {
	if game.ID == "" {
		return persistence.ErrConstraintViolation
	}
	doc := toGameDoc(game)
	_, err := s.col(gamesCollection).Doc(game.ID).Update(ctx, []firestore.Update{
		{Path: "location", Value: doc.Location},
		{Path: "status", Value: doc.Status},
		{Path: "current_song_index", Value: doc.CurrentSongIndex},
		{Path: "started_at", Value: doc.StartedAt},
		{Path: "ended_at", Value: doc.EndedAt},
		{Path: "updated_at", Value: doc.UpdatedAt},
	})
	return mapError(err)
}

// GetGame retrieves a game by ID.
func (s *Store) GetGame(ctx context.Context, id string) (persistence.Game, error) {
	if id == "" {
		return persistence.Game{}, persistence.ErrNotFound
	}
	snap, err := s.col(gamesCollection).Doc(id).Get(ctx)
	if err != nil {
		return persistence.Game{}, mapError(err)
	}
	return decodeGame(snap)
}

// GetGameByJoinCode retrieves a game by its player join code.
func (s *Store) GetGameByJoinCode(ctx context.Context, code string) (persistence.Game, error) {
	if code == "" {
		return persistence.Game{}, persistence.ErrNotFound
	}
	snap, err := s.col(joinCodesCollection).Doc(code).Get(ctx)
	if err != nil {
		return persistence.Game{}, mapError(err)
	}
	claim, err := decodeAs[claimDoc](snap)
	if err != nil {
		return persistence.Game{}, err
	}
	return s.GetGame(ctx, claim.OwnerID)
}

// ListGames returns games newest first.
func (s *Store) ListGames(ctx context.Context, filter persistence.GameFilter) ([]persistence.Game, error) {
	q := s.col(gamesCollection).Query
	if filter.HostID != "" {
		q = q.Where("host_id", "==", filter.HostID)
	}
	if filter.PlaylistID != "" {
		q = q.Where("playlist_id", "==", filter.PlaylistID)
	}
	if filter.Status != "" {
		q = q.Where("status", "==", filter.Status)
	}
	games, err := collect(q.Documents(ctx), decodeGame)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(games, func(a, b persistence.Game) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return games, nil
}

type playerDoc struct {
	GameID      string    `firestore:"game_id"`
	DisplayName string    `firestore:"display_name"`
	JoinedAt    time.Time `firestore:"joined_at"`
	LastSeenAt  time.Time `firestore:"last_seen_at"`
}

func (s *Store) playerRef(gameID, playerID string) *firestore.DocumentRef {
	return s.col(gamesCollection).Doc(gameID).Collection(playersCollection).Doc(playerID)
}

func decodePlayer(snap *firestore.DocumentSnapshot) (persistence.Player, error) {
	d, err := decodeAs[playerDoc](snap)
	if err != nil {
		return persistence.Player{}, err
	}
	return persistence.Player{
		GameID:      d.GameID,
		PlayerID:    snap.Ref.ID,
		DisplayName: d.DisplayName,
		JoinedAt:    d.JoinedAt,
		LastSeenAt:  d.LastSeenAt,
	}, nil
}

// UpsertPlayer records a join or a heartbeat. The original join time and
// display name survive later upserts unless a new name is given.
func (s *Store) UpsertPlayer(ctx context.Context, player persistence.Player) error {
	if player.GameID == "" || player.PlayerID == "" {
		return persistence.ErrConstraintViolation
	}
	ref := s.playerRef(player.GameID, player.PlayerID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := playerDoc{
			GameID:      player.GameID,
			DisplayName: player.DisplayName,
			JoinedAt:    player.JoinedAt.UTC(),
			LastSeenAt:  player.LastSeenAt.UTC(),
		}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			current, derr := decodeAs[playerDoc](snap)
			if derr != nil {
				return derr
			}
			doc.JoinedAt = current.JoinedAt
			if doc.DisplayName == "" {
				doc.DisplayName = current.DisplayName
			}
		case errors.Is(mapError(err), persistence.ErrNotFound):
			if _, gerr := tx.Get(s.col(gamesCollection).Doc(player.GameID)); gerr != nil {
				if errors.Is(mapError(gerr), persistence.ErrNotFound) {
					return persistence.ErrForeignKeyViolation
				}
				return gerr
			}
		default:
			return err
		}
		return tx.Set(ref, doc)
	})
	return mapError(err)
}

// GetPlayer retrieves one player of a game.
func (s *Store) GetPlayer(ctx context.Context, gameID, playerID string) (persistence.Player, error) {
	if gameID == "" || playerID == "" {
		return persistence.Player{}, persistence.ErrNotFound
	}
	snap, err := s.playerRef(gameID, playerID).Get(ctx)
	if err != nil {
		return persistence.Player{}, mapError(err)
	}
	return decodePlayer(snap)
}

// ListPlayers returns the players of a game in join order.
func (s *Store) ListPlayers(ctx context.Context, gameID string) ([]persistence.Player, error) {
	players, err := collect(s.col(gamesCollection).Doc(gameID).Collection(playersCollection).Documents(ctx), decodePlayer)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(players, func(a, b persistence.Player) int {
		if c := a.JoinedAt.Compare(b.JoinedAt); c != 0 {
			return c
		}
		return strings.Compare(a.PlayerID, b.PlayerID)
	})
	return players, nil
}

// DeleteStalePlayers removes players of every game not seen since seenBefore.
func (s *Store) DeleteStalePlayers(ctx context.Context, seenBefore time.Time) (int64, error) {
	return s.deleteMatching(ctx, s.client.CollectionGroup(playersCollection).Where("last_seen_at", "<", seenBefore.UTC()))
}
