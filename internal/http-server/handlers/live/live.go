// Package livehandler serves the /ws/live channel. Every open connection is
// one UI session of its operator and receives the station events as JSON.
package livehandler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/zanzhit/station_recorder/internal/http-server/handlers"
	authmiddleware "github.com/zanzhit/station_recorder/internal/http-server/middleware/auth"
	"github.com/zanzhit/station_recorder/internal/lib/api/response"
	"github.com/zanzhit/station_recorder/internal/lib/sl"
	stationservice "github.com/zanzhit/station_recorder/internal/services/stations"
)

const (
	sendBuffer   = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	releaseAfter = 30 * time.Second
)

type Presence interface {
	OnSessionOpened(operatorID int) int
	OnSessionClosed(ctx context.Context, operatorID int) error
}

type Metrics interface {
	LiveConnected()
	LiveDisconnected()
}

type client struct {
	id       string
	userID   int
	username string
	conn     *websocket.Conn
	send     chan []byte
}

type Hub struct {
	log      *slog.Logger
	presence Presence
	metrics  Metrics
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

func New(log *slog.Logger, presence Presence, metrics Metrics) *Hub {
	return &Hub{
		log:      log,
		presence: presence,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the station UI is served from other origins on the LAN
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
	}
}

// Publish broadcasts the event to every connection. A client whose buffer is
// full is dropped.
func (h *Hub) Publish(e stationservice.Event) {
	const op = "handlers.live.Publish"

	msg, err := json.Marshal(e)
	if err != nil {
		h.log.Error("failed to marshal event", slog.String("op", op), sl.Err(err))

		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("dropping slow live client",
				slog.String("op", op),
				slog.String("conn_id", id),
				slog.String("username", c.username),
			)

			delete(h.clients, id)
			close(c.send)
		}
	}
}

// Connections returns the number of open live connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) Live(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.live.Live"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	user, ok := authmiddleware.UserFrom(r.Context())
	if !ok {
		log.Error("user not found in context")

		handlers.Error(w, r, http.StatusUnauthorized, response.Error("user not found", ""))

		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		log.Warn("failed to upgrade connection", sl.Err(err))

		return
	}

	c := &client{
		id:       uuid.NewString(),
		userID:   user.Id,
		username: user.Username,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}

	log = log.With(
		slog.String("conn_id", c.id),
		slog.String("username", user.Username),
	)

	h.register(c)
	sessions := h.presence.OnSessionOpened(user.Id)

	log.Info("live session opened", slog.Int("sessions", sessions))

	go h.writePump(log, c)
	h.readPump(c)

	h.unregister(c)

	ctx, cancel := context.WithTimeout(context.Background(), releaseAfter)
	defer cancel()

	if err := h.presence.OnSessionClosed(ctx, user.Id); err != nil {
		log.Error("failed to release operator stations", sl.Err(err))
	}

	log.Info("live session closed")
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	h.metrics.LiveConnected()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()

	h.metrics.LiveDisconnected()
}

// readPump only drains control frames; clients have nothing to say.
func (h *Hub) readPump(c *client) {
	defer c.conn.Close()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(log *slog.Logger, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})

				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Warn("failed to write live event", sl.Err(err))

				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
