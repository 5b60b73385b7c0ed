package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

const (
	liveWriteTimeout = 5 * time.Second
	livePongWait     = 60 * time.Second
	livePingPeriod   = 45 * time.Second
)

type gameStateSource interface {
	GameState(ctx context.Context, gameID string) (application.GameState, error)
}

// liveConn serialises writes; a websocket connection allows one writer at a time.
type liveConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *liveConn) send(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// LiveHub fans game state out to websocket subscribers grouped by game. It
// implements application.GameEventPublisher.
type LiveHub struct {
	mu       sync.Mutex
	groups   map[string]map[*liveConn]struct{}
	upgrader websocket.Upgrader
	metrics  *Metrics
	logger   *slog.Logger
}

// NewLiveHub constructs a hub. With no allowedOrigins the upgrader only
// accepts same-origin connections.
func NewLiveHub(allowedOrigins []string, metrics *Metrics, logger *slog.Logger) *LiveHub {
	hub := &LiveHub{
		groups:  make(map[string]map[*liveConn]struct{}),
		metrics: metrics,
		logger:  defaultLogger(logger),
	}
	hub.upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(allowedOrigins) > 0 {
		origins := slices.Clone(allowedOrigins)
		hub.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(origins, strings.TrimRight(origin, "/"))
		}
	}
	return hub
}

// PublishGameState pushes state to every subscriber of its game. Subscribers
// that fail to receive are dropped.
func (h *LiveHub) PublishGameState(ctx context.Context, state application.GameState) {
	if h == nil {
		return
	}
	data, err := json.Marshal(liveMessage{Type: "state", State: toGameStateDTO(state)})
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to encode game state", "game_id", state.GameID, "error", err)
		return
	}

	h.mu.Lock()
	group := h.groups[state.GameID]
	conns := make([]*liveConn, 0, len(group))
	for conn := range group {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.send(websocket.TextMessage, data); err != nil {
			h.logger.DebugContext(ctx, "dropping live subscriber", "game_id", state.GameID, "error", err)
			h.remove(state.GameID, conn)
		}
	}
}

// Subscribers reports how many connections watch gameID.
func (h *LiveHub) Subscribers(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.groups[gameID])
}

// Close disconnects every subscriber.
func (h *LiveHub) Close() {
	h.mu.Lock()
	groups := h.groups
	h.groups = make(map[string]map[*liveConn]struct{})
	h.mu.Unlock()

	for _, group := range groups {
		for conn := range group {
			_ = conn.send(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			_ = conn.conn.Close()
			h.metrics.subscriberRemoved()
		}
	}
}

// Handler upgrades GET /play/{game}/live. The current state is sent first,
// then every change published for the game.
func (h *LiveHub) Handler(states gameStateSource) http.HandlerFunc {
	responder := newResponder(h.logger)
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := strings.TrimSpace(r.PathValue("game"))
		state, err := states.GameState(r.Context(), gameID)
		if err != nil {
			responder.handleServiceError(r.Context(), w, err)
			return
		}

		ws, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already wrote the HTTP error.
			h.logger.WarnContext(r.Context(), "websocket upgrade failed", "game_id", gameID, "error", err)
			return
		}
		conn := &liveConn{conn: ws}

		data, err := json.Marshal(liveMessage{Type: "state", State: toGameStateDTO(state)})
		if err == nil {
			err = conn.send(websocket.TextMessage, data)
		}
		if err != nil {
			_ = ws.Close()
			return
		}

		h.add(gameID, conn)
		h.logger.InfoContext(r.Context(), "live subscriber connected", "game_id", gameID, "remote", r.RemoteAddr)
		go h.keepAlive(gameID, conn)
		h.read(gameID, conn)
	}
}

func (h *LiveHub) add(gameID string, conn *liveConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group := h.groups[gameID]
	if group == nil {
		group = make(map[*liveConn]struct{})
		h.groups[gameID] = group
	}
	group[conn] = struct{}{}
	h.metrics.subscriberAdded()
}

func (h *LiveHub) remove(gameID string, conn *liveConn) {
	h.mu.Lock()
	group := h.groups[gameID]
	_, present := group[conn]
	if present {
		delete(group, conn)
		if len(group) == 0 {
			delete(h.groups, gameID)
		}
	}
	h.mu.Unlock()

	_ = conn.conn.Close()
	if present {
		h.metrics.subscriberRemoved()
	}
}

// read drains client frames so pongs and close frames are processed.
func (h *LiveHub) read(gameID string, conn *liveConn) {
	defer h.remove(gameID, conn)
	conn.conn.SetReadLimit(512)
	_ = conn.conn.SetReadDeadline(time.Now().Add(livePongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(livePongWait))
	})
	for {
		if _, _, err := conn.conn.ReadMessage(); err != nil {
			h.logger.Debug("live subscriber disconnected", "game_id", gameID, "error", err)
			return
		}
	}
}

func (h *LiveHub) keepAlive(gameID string, conn *liveConn) {
	ticker := time.NewTicker(livePingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		if err := conn.send(websocket.PingMessage, nil); err != nil {
			h.remove(gameID, conn)
			return
		}
	}
}

type liveMessage struct {
	Type  string       `json:"type"`
	State gameStateDTO `json:"state"`
}
