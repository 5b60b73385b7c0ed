package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

func TestLiveHub(t *testing.T) {
	t.Parallel()

	games := &stubGameService{state: application.GameState{Status: application.GameStatusPending, TotalSongs: 24}}
	metrics := NewMetrics()
	hub := NewLiveHub(nil, metrics, discardLogger())
	defer hub.Close()

	server := httptest.NewServer(NewRouter(RouterConfig{
		Live:       hub,
		LiveStates: games,
		Logger:     discardLogger(),
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/play/game-1/live"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Skipf("websocket dial unavailable: %v", err)
	}
	defer conn.Close()

	readState := func() gameStateDTO {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg struct {
			Type  string       `json:"type"`
			State gameStateDTO `json:"state"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != "state" {
			t.Fatalf("expected state message, got %q", msg.Type)
		}
		return msg.State
	}

	snapshot := readState()
	if snapshot.GameID != "game-1" || snapshot.Status != "pending" || snapshot.TotalSongs != 24 {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers("game-1") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.PublishGameState(context.Background(), application.GameState{
		GameID:           "game-1",
		Status:           application.GameStatusActive,
		CurrentSongIndex: 0,
		CurrentSong:      &application.Song{Title: "Surfin' USA", Artist: "The Beach Boys"},
		SongsPlayed:      1,
		TotalSongs:       24,
	})
	hub.PublishGameState(context.Background(), application.GameState{GameID: "other-game", Status: application.GameStatusEnded})

	update := readState()
	if update.Status != "active" || update.CurrentSong == nil || update.CurrentSong.Title != "Surfin' USA" {
		t.Fatalf("unexpected update %+v", update)
	}

	conn.Close()
	deadline = time.Now().Add(2 * time.Second)
	for hub.Subscribers("game-1") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber was not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveHubUnknownGame(t *testing.T) {
	t.Parallel()

	hub := NewLiveHub(nil, nil, discardLogger())
	handler := hub.Handler(&stubGameService{err: application.ErrNotFound})

	mux := http.NewServeMux()
	mux.Handle("GET /play/{game}/live", handler)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/play/missing/live", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before upgrade, got %d", rec.Code)
	}
}

func TestLiveHubOriginCheck(t *testing.T) {
	t.Parallel()

	hub := NewLiveHub([]string{"https://mybeachtrivia.com"}, nil, discardLogger())

	allowed := httptest.NewRequest(http.MethodGet, "/play/g/live", nil)
	allowed.Header.Set("Origin", "https://mybeachtrivia.com/")
	if !hub.upgrader.CheckOrigin(allowed) {
		t.Fatalf("expected configured origin to be accepted")
	}

	denied := httptest.NewRequest(http.MethodGet, "/play/g/live", nil)
	denied.Header.Set("Origin", "https://evil.example")
	if hub.upgrader.CheckOrigin(denied) {
		t.Fatalf("expected foreign origin to be rejected")
	}
}

func TestMetricsNilSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	handler := metrics.Instrument("GET /x", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected handler to run, got %d", rec.Code)
	}
	metrics.subscriberAdded()
	metrics.subscriberRemoved()
}

func TestLiveMessageShape(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(liveMessage{Type: "state", State: toGameStateDTO(application.GameState{GameID: "g", Status: application.GameStatusPaused})})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"status":"paused"`) {
		t.Fatalf("unexpected payload %s", data)
	}
}
