package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/smarttherm/fglair-smart/internal/smart"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

type client struct {
	hub  *hub
	conn *websocket.Conn
	send chan smart.Update
}

// hub fans engine updates out to connected websocket clients.
type hub struct {
	clients    map[*client]struct{}
	register   chan *client
	unregister chan *client
	updates    chan smart.Update
	logger     *slog.Logger
	lock       sync.RWMutex
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients:    make(map[*client]struct{}),
		register:   make(chan *client),
		unregister: make(chan *client),
		updates:    make(chan smart.Update, 16),
		logger:     logger,
	}
}

func (h *hub) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.lock.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.lock.Unlock()
			return nil

		case c := <-h.register:
			h.lock.Lock()
			h.clients[c] = struct{}{}
			h.lock.Unlock()
			h.logger.Debug("client connected", slog.Int("clients", h.clientCount()))

		case c := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.lock.Unlock()
			h.logger.Debug("client disconnected", slog.Int("clients", h.clientCount()))

		case update := <-h.updates:
			h.lock.Lock()
			for c := range h.clients {
				select {
				case c.send <- update:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.lock.Unlock()
		}
	}
}

func (h *hub) broadcast(update smart.Update) {
	select {
	case h.updates <- update:
	default:
		h.logger.Warn("update channel full, dropping update")
	}
}

func (h *hub) clientCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", slog.Any("err", err))
		return
	}

	c := &client{
		hub:  s.hub,
		conn: conn,
		send: make(chan smart.Update, 16),
	}
	// new clients get the current state right away. Queued before the hub
	// knows the client: once registered, the hub owns closing c.send.
	c.send <- smart.Update{Program: s.engine.GetProgram(), Devices: s.engine.GetDevices()}
	s.hub.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case update, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				continue
			}
			if err = c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
