// Package ws pushes analysis job updates to browser sessions over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dvloznov/quantoda/internal/api/middleware"
	"github.com/dvloznov/quantoda/internal/jobs"
)

const (
	writeWait  = 10 * time.Second
	sendBuffer = 16
)

// Message is the envelope written to clients.
type Message struct {
	Type      string            `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
	Job       *jobs.AnalysisJob `json:"job,omitempty"`
}

type client struct {
	sessionID string
	conn      *websocket.Conn
	send      chan []byte
}

type envelope struct {
	sessionID string
	payload   []byte
}

// Hub fans job updates out to the websocket clients of the owning session.
type Hub struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan envelope
	done       chan struct{}
	upgrader   websocket.Upgrader
	log        zerolog.Logger
}

// NewHub creates a hub. Call Run before serving connections.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan envelope),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: log,
	}
}

// Run owns the client set until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
			h.log.Debug().Str("session_id", c.sessionID).Int("clients", len(h.clients)).Msg("WebSocket client connected")
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.log.Debug().Str("session_id", c.sessionID).Int("clients", len(h.clients)).Msg("WebSocket client disconnected")
		case env := <-h.broadcast:
			for c := range h.clients {
				if c.sessionID != env.sessionID {
					continue
				}
				select {
				case c.send <- env.payload:
				default:
					// Slow consumer.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// BroadcastJobUpdate sends job to every client of the job's session.
// It has the signature of the queue's update hook.
func (h *Hub) BroadcastJobUpdate(job jobs.AnalysisJob) {
	payload, err := json.Marshal(Message{Type: "job_update", Job: &job})
	if err != nil {
		h.log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to marshal job update")
		return
	}
	select {
	case h.broadcast <- envelope{sessionID: job.SessionID, payload: payload}:
	case <-h.done:
	}
}

// ServeWS upgrades the request. The session comes from the Session
// middleware (header or ?session=).
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())
	if sessionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "session is required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}

	c := &client{sessionID: sessionID, conn: conn, send: make(chan []byte, sendBuffer)}
	hello, _ := json.Marshal(Message{Type: "connected", SessionID: sessionID})
	c.send <- hello

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug().Err(err).Str("session_id", c.sessionID).Msg("Error sending message to client")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readPump drains client frames until the connection drops.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
