package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/persistence"
)

type playlistRepoStub struct {
	playlists map[string]Playlist
	inUse     map[string]bool
}

func newPlaylistRepoStub(playlists ...Playlist) *playlistRepoStub {
	repo := &playlistRepoStub{playlists: map[string]Playlist{}, inUse: map[string]bool{}}
	for _, p := range playlists {
		repo.playlists[p.ID] = p
	}
	return repo
}

func (r *playlistRepoStub) CreatePlaylist(ctx context.Context, p Playlist) (Playlist, error) {
	r.playlists[p.ID] = p
	return p, nil
}

func (r *playlistRepoStub) UpdatePlaylist(ctx context.Context, p Playlist) (Playlist, error) {
	if _, ok := r.playlists[p.ID]; !ok {
		return Playlist{}, persistence.ErrNotFound
	}
	r.playlists[p.ID] = p
	return p, nil
}

func (r *playlistRepoStub) GetPlaylist(ctx context.Context, id string) (Playlist, error) {
	p, ok := r.playlists[id]
	if !ok {
		return Playlist{}, persistence.ErrNotFound
	}
	return p, nil
}

func (r *playlistRepoStub) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	var out []Playlist
	for _, p := range r.playlists {
		out = append(out, p)
	}
	return out, nil
}

func (r *playlistRepoStub) DeletePlaylist(ctx context.Context, id string) error {
	if r.inUse[id] {
		return persistence.ErrForeignKeyViolation
	}
	if _, ok := r.playlists[id]; !ok {
		return persistence.ErrNotFound
	}
	delete(r.playlists, id)
	return nil
}

type gameRepoStub struct {
	games map[string]Game
	codes map[string]bool
}

func (r *gameRepoStub) CreateGame(ctx context.Context, g Game) (Game, error) {
	if r.codes[g.JoinCode] {
		return Game{}, persistence.ErrDuplicate
	}
	r.codes[g.JoinCode] = true
	r.games[g.ID] = g
	return g, nil
}

func (r *gameRepoStub) UpdateGame(ctx context.Context, g Game) (Game, error) {
	r.games[g.ID] = g
	return g, nil
}

func (r *gameRepoStub) GetGame(ctx context.Context, id string) (Game, error) {
	g, ok := r.games[id]
	if !ok {
		return Game{}, persistence.ErrNotFound
	}
	return g, nil
}

func (r *gameRepoStub) GetGameByJoinCode(ctx context.Context, code string) (Game, error) {
	for _, g := range r.games {
		if g.JoinCode == code {
			return g, nil
		}
	}
	return Game{}, persistence.ErrNotFound
}

func (r *gameRepoStub) ListGames(ctx context.Context, filter GameFilter) ([]Game, error) {
	var out []Game
	for _, g := range r.games {
		if filter.HostID != "" && g.HostID != filter.HostID {
			continue
		}
		if filter.PlaylistID != "" && g.PlaylistID != filter.PlaylistID {
			continue
		}
		if filter.Status != "" && g.Status != filter.Status {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

type playerRepoStub struct {
	players map[string]Player
}

func (r *playerRepoStub) UpsertPlayer(ctx context.Context, p Player) (Player, error) {
	r.players[p.GameID+"/"+p.PlayerID] = p
	return p, nil
}

func (r *playerRepoStub) GetPlayer(ctx context.Context, gameID, playerID string) (Player, error) {
	p, ok := r.players[gameID+"/"+playerID]
	if !ok {
		return Player{}, persistence.ErrNotFound
	}
	return p, nil
}

func (r *playerRepoStub) ListPlayers(ctx context.Context, gameID string) ([]Player, error) {
	var out []Player
	for _, p := range r.players {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *playerRepoStub) DeleteStalePlayers(ctx context.Context, seenBefore time.Time) (int64, error) {
	var n int64
	for k, p := range r.players {
		if p.LastSeenAt.Before(seenBefore) {
			delete(r.players, k)
			n++
		}
	}
	return n, nil
}

type publisherStub struct {
	states []GameState
}

func (p *publisherStub) PublishGameState(ctx context.Context, state GameState) {
	p.states = append(p.states, state)
}

func songs(n int) []Song {
	out := make([]Song, n)
	for i := range out {
		out[i] = Song{Title: fmt.Sprintf("Song %d", i+1), Artist: "Band"}
	}
	return out
}

type gameHarness struct {
	svc       *GameService
	games     *gameRepoStub
	players   *playerRepoStub
	publisher *publisherStub
	now       *time.Time
}

var hostUser = Principal{EmployeeID: "host-1", Roles: []Role{RoleHost}}

func newGameHarness() *gameHarness {
	now := fixedNow()
	h := &gameHarness{
		games:     &gameRepoStub{games: map[string]Game{}, codes: map[string]bool{}},
		players:   &playerRepoStub{players: map[string]Player{}},
		publisher: &publisherStub{},
		now:       &now,
	}
	playlists := newPlaylistRepoStub(
		Playlist{ID: "pl-full", Name: "Yacht Rock", Songs: songs(30)},
		Playlist{ID: "pl-short", Name: "Short", Songs: songs(10)},
	)
	h.svc = NewGameService(h.games, playlists, h.players, nil, h.publisher,
		GameServiceConfig{JoinURL: "https://example.com/play"},
		sequentialIDs("g"), func() time.Time { return *h.now })
	codes := []string{"AAAAAA", "AAAAAA", "BBBBBB", "CCCCCC"}
	h.svc.joinCode = func() string {
		code := codes[0]
		codes = codes[1:]
		return code
	}
	return h
}

func TestGameService_CreateGame(t *testing.T) {
	t.Parallel()

	t.Run("pending game with join code", func(t *testing.T) {
		h := newGameHarness()
		game, err := h.svc.CreateGame(context.Background(), hostUser, GameInput{PlaylistID: "pl-full", Location: "Tiki Bar"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if game.Status != GameStatusPending || game.CurrentSongIndex != -1 || game.JoinCode != "AAAAAA" {
			t.Fatalf("unexpected game %+v", game)
		}
	})

	t.Run("retries taken join code", func(t *testing.T) {
		h := newGameHarness()
		if _, err := h.svc.CreateGame(context.Background(), hostUser, GameInput{PlaylistID: "pl-full"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		game, err := h.svc.CreateGame(context.Background(), hostUser, GameInput{PlaylistID: "pl-full"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if game.JoinCode != "BBBBBB" {
			t.Fatalf("expected retry to pick BBBBBB, got %s", game.JoinCode)
		}
	})

	t.Run("short playlist rejected", func(t *testing.T) {
		h := newGameHarness()
		_, err := h.svc.CreateGame(context.Background(), hostUser, GameInput{PlaylistID: "pl-short"})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("non host rejected", func(t *testing.T) {
		h := newGameHarness()
		_, err := h.svc.CreateGame(context.Background(), Principal{EmployeeID: "x", Roles: []Role{RoleSocial}}, GameInput{PlaylistID: "pl-full"})
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}

func TestGameService_StatusMachine(t *testing.T) {
	t.Parallel()

	h := newGameHarness()
	ctx := context.Background()
	game, err := h.svc.CreateGame(ctx, hostUser, GameInput{PlaylistID: "pl-full"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := h.svc.NextSong(ctx, hostUser, game.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected NextSong on pending game to fail, got %v", err)
	}
	if _, err := h.svc.PauseGame(ctx, hostUser, game.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected PauseGame on pending game to fail, got %v", err)
	}

	state, err := h.svc.StartGame(ctx, hostUser, game.ID)
	if err != nil || state.Status != GameStatusActive {
		t.Fatalf("expected active game, got %+v (%v)", state, err)
	}
	if _, err := h.svc.PreviousSong(ctx, hostUser, game.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected PreviousSong before the first song to fail, got %v", err)
	}

	state, err = h.svc.NextSong(ctx, hostUser, game.ID)
	if err != nil {
		t.Fatalf("NextSong failed: %v", err)
	}
	if state.CurrentSongIndex != 0 || state.CurrentSong == nil || state.CurrentSong.Title != "Song 1" || state.SongsPlayed != 1 {
		t.Fatalf("expected first song, got %+v", state)
	}

	if _, err := h.svc.PauseGame(ctx, hostUser, game.ID); err != nil {
		t.Fatalf("PauseGame failed: %v", err)
	}
	if _, err := h.svc.NextSong(ctx, hostUser, game.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected NextSong while paused to fail, got %v", err)
	}
	if _, err := h.svc.StartGame(ctx, hostUser, game.ID); err != nil {
		t.Fatalf("resume failed: %v", err)
	}

	if _, err := h.svc.NextSong(ctx, Principal{EmployeeID: "host-2", Roles: []Role{RoleHost}}, game.ID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected other host to be rejected, got %v", err)
	}

	state, err = h.svc.EndGame(ctx, admin, game.ID)
	if err != nil || state.Status != GameStatusEnded {
		t.Fatalf("expected ended game, got %+v (%v)", state, err)
	}
	for name, op := range map[string]func(context.Context, Principal, string) (GameState, error){
		"start": h.svc.StartGame,
		"pause": h.svc.PauseGame,
		"end":   h.svc.EndGame,
		"next":  h.svc.NextSong,
	} {
		if _, err := op(ctx, hostUser, game.ID); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("expected %s on ended game to fail, got %v", name, err)
		}
	}

	if len(h.publisher.states) != 5 {
		t.Fatalf("expected one publish per successful change, got %d", len(h.publisher.states))
	}
}

func TestGameService_SongIndexStaysInRange(t *testing.T) {
	t.Parallel()

	h := newGameHarness()
	ctx := context.Background()
	game, _ := h.svc.CreateGame(ctx, hostUser, GameInput{PlaylistID: "pl-full"})
	if _, err := h.svc.StartGame(ctx, hostUser, game.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	for i := 0; i < 30; i++ {
		if _, err := h.svc.NextSong(ctx, hostUser, game.ID); err != nil {
			t.Fatalf("NextSong %d failed: %v", i, err)
		}
	}
	if _, err := h.svc.NextSong(ctx, hostUser, game.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected NextSong past the last song to fail, got %v", err)
	}
	if got := h.games.games[game.ID].CurrentSongIndex; got != 29 {
		t.Fatalf("expected index 29, got %d", got)
	}
}

func TestGameService_Players(t *testing.T) {
	t.Parallel()

	h := newGameHarness()
	ctx := context.Background()
	game, _ := h.svc.CreateGame(ctx, hostUser, GameInput{PlaylistID: "pl-full"})

	joined, err := h.svc.JoinGame(ctx, " aaaaaa ", "Table 7")
	if err != nil {
		t.Fatalf("JoinGame failed: %v", err)
	}
	if joined.Game.ID != game.ID || joined.Player.DisplayName != "Table 7" {
		t.Fatalf("unexpected join result %+v", joined)
	}
	if len(joined.Board) != 5 || !joined.Board[2][2].Free || joined.Board[0][0].Song.Title == "" {
		t.Fatalf("expected 5x5 board with free centre")
	}

	again, err := h.svc.PlayerBoard(ctx, game.ID, joined.Player.PlayerID)
	if err != nil {
		t.Fatalf("PlayerBoard failed: %v", err)
	}
	if again[0][0] != joined.Board[0][0] || again[4][4] != joined.Board[4][4] {
		t.Fatalf("expected rebuilt board to match")
	}

	if _, err := h.svc.JoinGame(ctx, "ZZZZZZ", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown code, got %v", err)
	}

	count, err := h.svc.PlayerCount(ctx, game.ID)
	if err != nil || count != 1 {
		t.Fatalf("expected 1 active player, got %d (%v)", count, err)
	}

	*h.now = h.now.Add(3 * time.Minute)
	count, _ = h.svc.PlayerCount(ctx, game.ID)
	if count != 0 {
		t.Fatalf("expected stale player to be excluded, got %d", count)
	}

	published := len(h.publisher.states)
	if _, err := h.svc.Heartbeat(ctx, game.ID, joined.Player.PlayerID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	count, _ = h.svc.PlayerCount(ctx, game.ID)
	if count != 1 {
		t.Fatalf("expected heartbeat to restore presence, got %d", count)
	}
	if len(h.publisher.states) != published+1 || h.publisher.states[published].PlayerCount != 1 {
		t.Fatalf("expected returning player to push a state with 1 player, got %+v", h.publisher.states[published:])
	}

	if _, err := h.svc.Heartbeat(ctx, game.ID, joined.Player.PlayerID); err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if len(h.publisher.states) != published+1 {
		t.Fatalf("expected steady heartbeat not to publish, got %d states", len(h.publisher.states)-published)
	}

	*h.now = h.now.Add(5 * time.Minute)
	removed, err := h.svc.PruneStalePlayers(ctx)
	if err != nil || removed != 1 {
		t.Fatalf("expected 1 pruned player, got %d (%v)", removed, err)
	}

	if _, err := h.svc.EndGame(ctx, hostUser, game.ID); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if _, err := h.svc.JoinGame(ctx, "AAAAAA", "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected joining an ended game to fail, got %v", err)
	}
}

func TestGameService_ListGamesScopesHosts(t *testing.T) {
	t.Parallel()

	h := newGameHarness()
	ctx := context.Background()
	if _, err := h.svc.CreateGame(ctx, hostUser, GameInput{PlaylistID: "pl-full"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := h.svc.CreateGame(ctx, admin, GameInput{PlaylistID: "pl-full"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	mine, err := h.svc.ListGames(ctx, hostUser, GameFilter{})
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected host to see 1 game, got %d (%v)", len(mine), err)
	}
	all, err := h.svc.ListGames(ctx, admin, GameFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected admin to see 2 games, got %d (%v)", len(all), err)
	}
}

func TestPlaylistService_UpdateKeepsGamesPlayable(t *testing.T) {
	t.Parallel()

	repo := newPlaylistRepoStub(Playlist{ID: "pl-1", Name: "Yacht Rock", Songs: songs(30)})
	games := &gameRepoStub{games: map[string]Game{
		"g-1": {ID: "g-1", PlaylistID: "pl-1", Status: GameStatusActive, CurrentSongIndex: 27},
	}, codes: map[string]bool{}}
	svc := NewPlaylistService(repo, games, sequentialIDs("pl"), fixedNow)
	ctx := context.Background()

	cases := []struct {
		name  string
		songs int
	}{
		{name: "below a full board", songs: 5},
		{name: "behind the current song", songs: 27},
	}
	for _, tc := range cases {
		_, err := svc.UpdatePlaylist(ctx, hostUser, "pl-1", PlaylistInput{Name: "Yacht Rock", Songs: songs(tc.songs)})
		if !errors.Is(err, ErrInUse) {
			t.Fatalf("%s: expected ErrInUse, got %v", tc.name, err)
		}
	}
	if got := len(repo.playlists["pl-1"].Songs); got != 30 {
		t.Fatalf("expected playlist to keep 30 songs, got %d", got)
	}

	if _, err := svc.UpdatePlaylist(ctx, hostUser, "pl-1", PlaylistInput{Name: "Yacht Rock", Songs: songs(28)}); err != nil {
		t.Fatalf("expected update covering the current song to succeed, got %v", err)
	}

	ended := games.games["g-1"]
	ended.Status = GameStatusEnded
	games.games["g-1"] = ended
	if _, err := svc.UpdatePlaylist(ctx, hostUser, "pl-1", PlaylistInput{Name: "Yacht Rock", Songs: songs(5)}); err != nil {
		t.Fatalf("expected ended games not to block edits, got %v", err)
	}
}

func TestGameService_JoinQRCode(t *testing.T) {
	t.Parallel()

	h := newGameHarness()
	game, _ := h.svc.CreateGame(context.Background(), hostUser, GameInput{PlaylistID: "pl-full"})

	if got := h.svc.JoinURL(game); got != "https://example.com/play?code=AAAAAA" {
		t.Fatalf("unexpected join url %q", got)
	}
	png, err := h.svc.JoinQRCode(context.Background(), hostUser, game.ID, 256)
	if err != nil || len(png) == 0 {
		t.Fatalf("expected PNG bytes, got %d (%v)", len(png), err)
	}
}

func TestPlaylistService(t *testing.T) {
	t.Parallel()

	repo := newPlaylistRepoStub()
	games := &gameRepoStub{games: map[string]Game{}, codes: map[string]bool{}}
	svc := NewPlaylistService(repo, games, sequentialIDs("pl"), fixedNow)
	ctx := context.Background()

	created, err := svc.CreatePlaylist(ctx, hostUser, PlaylistInput{Name: " Beach Hits ", Songs: []Song{{Title: " Kokomo ", Artist: "The Beach Boys"}}})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if created.Name != "Beach Hits" || created.Songs[0].Title != "Kokomo" || created.CreatedBy != "host-1" {
		t.Fatalf("unexpected playlist %+v", created)
	}

	_, err = svc.CreatePlaylist(ctx, hostUser, PlaylistInput{Songs: []Song{{Artist: "nobody"}}})
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := vErr.FieldErrors["name"]; !ok {
		t.Fatalf("expected name error, got %v", vErr.FieldErrors)
	}
	if _, ok := vErr.FieldErrors["songs"]; !ok {
		t.Fatalf("expected songs error, got %v", vErr.FieldErrors)
	}

	if _, err := svc.ListPlaylists(ctx, Principal{EmployeeID: "x", Roles: []Role{RoleSocial}}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	updated, err := svc.UpdatePlaylist(ctx, admin, created.ID, PlaylistInput{Name: "Beach Hits 2", Songs: songs(24)})
	if err != nil || len(updated.Songs) != 24 {
		t.Fatalf("expected 24 songs after update, got %d (%v)", len(updated.Songs), err)
	}

	repo.inUse[created.ID] = true
	if err := svc.DeletePlaylist(ctx, hostUser, created.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse, got %v", err)
	}
	repo.inUse[created.ID] = false

	games.games["g-1"] = Game{ID: "g-1", PlaylistID: created.ID, Status: GameStatusActive, CurrentSongIndex: 20}
	if err := svc.DeletePlaylist(ctx, hostUser, created.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("expected ErrInUse while a game uses the playlist, got %v", err)
	}
	delete(games.games, "g-1")

	if err := svc.DeletePlaylist(ctx, hostUser, created.ID); err != nil {
		t.Fatalf("expected delete to succeed, got %v", err)
	}
	if _, err := svc.GetPlaylist(ctx, hostUser, created.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
