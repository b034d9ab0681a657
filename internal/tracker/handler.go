package tracker

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/iudanet/gophmesh/internal/binary"
	"github.com/iudanet/gophmesh/internal/crypto"
	"github.com/iudanet/gophmesh/pkg/api"
)

const (
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	announceWait  = 10 * time.Second
	maxFrameSize  = 1 << 20
	sendQueueSize = 256
)

// RelayHandler upgrades feed requests to websockets and attaches them to the hub
type RelayHandler struct {
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewRelayHandler создает handler websocket relay
func NewRelayHandler(hub *Hub, logger *slog.Logger) *RelayHandler {
	return &RelayHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// пиры - не браузеры, Origin не проверяем
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Relay обрабатывает GET /api/v1/feeds/{feed}/ws
func (h *RelayHandler) Relay(w http.ResponseWriter, r *http.Request) {
	feed := mux.Vars(r)["feed"]
	if len(feed) != crypto.FeedLen || !crypto.IsBase62(feed) {
		http.Error(w, "invalid feed", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.Warn("Failed to upgrade websocket", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxFrameSize)

	// первое сообщение - Announce
	_ = conn.SetReadDeadline(time.Now().Add(announceWait))
	var announce api.Announce
	if err := conn.ReadJSON(&announce); err != nil {
		h.logger.Warn("Failed to read announce", "error", err)
		return
	}
	if announce.Feed != feed {
		h.closeWithReason(conn, websocket.ClosePolicyViolation, "feed mismatch")
		return
	}
	if _, err := uuid.Parse(announce.PeerID); err != nil {
		h.closeWithReason(conn, websocket.ClosePolicyViolation, "invalid peer id")
		return
	}

	c := &client{
		send:   make(chan outbound, sendQueueSize),
		feed:   feed,
		peerID: announce.PeerID,
		done:   make(chan struct{}),
	}
	if !h.hub.join(c) {
		h.closeWithReason(conn, websocket.CloseGoingAway, "tracker shutting down")
		return
	}

	go h.writePump(conn, c)
	h.readPump(conn, c)
	h.hub.leave(c)
}

func (h *RelayHandler) closeWithReason(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
}

func (h *RelayHandler) readPump(conn *websocket.Conn, c *client) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Peer connection error", "peer_id", c.peerID, "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		if mt != websocket.BinaryMessage {
			continue
		}

		var frame api.RelayFrame
		if err := binary.Unmarshal(data, &frame); err != nil {
			h.logger.Warn("Malformed relay frame, disconnecting", "peer_id", c.peerID, "error", err)
			return
		}
		h.hub.forward(c, frame)
	}
}

func (h *RelayHandler) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			mt := websocket.BinaryMessage
			if msg.text {
				mt = websocket.TextMessage
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(mt, msg.data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	hub     *Hub
	logger  *slog.Logger
	version string
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(hub *Hub, version string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{hub: hub, version: version, logger: logger}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Feeds   int    `json:"feeds"`
	Peers   int    `json:"peers"`
}

// Health обрабатывает GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Version: h.version}
	code := http.StatusOK

	stats, err := h.hub.Stats(r.Context())
	if err != nil {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	} else {
		resp.Feeds, resp.Peers = stats.Feeds, stats.Peers
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
