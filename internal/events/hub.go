// Package events broadcasts run lifecycle messages to websocket
// subscribers. The bus is advisory: every payload mirrors stored state, and
// storage is always written before the matching event is published, so a
// consumer that misses messages can reconstruct everything from the HTTP
// read endpoints.
package events

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"mcpsentry/pkg/logger"
)

// Event types emitted on the bus.
const (
	TypeStageTransition = "stage_transition"
	TypeProgress        = "progress"
	TypeRunCompleted    = "run_completed"
	TypeAgentStory      = "agent_story"
)

// Event is one bus message.
type Event struct {
	RunID     string      `json:"run_id"`
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans events out to every connected client. A slow client is dropped
// rather than allowed to stall the broadcast loop.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	logger     *logger.Logger
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger.NewLogger(logrus.InfoLevel),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Info("Event subscriber connected", logger.Fields{"subscribers": len(h.clients)})

		case c := <-h.unregister:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
				h.logger.Info("Event subscriber disconnected", logger.Fields{"subscribers": len(h.clients)})
			}

		case message := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- message:
				default:
					delete(h.clients, c)
					close(c.send)
					h.logger.Warn("Dropping slow event subscriber", logger.Fields{"subscribers": len(h.clients)})
				}
			}
		}
	}
}

// Publish broadcasts one event. Never blocks the caller: if the hub's
// buffer is full the message is dropped, which the bus contract allows.
func (h *Hub) Publish(runID, eventType string, data interface{}) {
	event := Event{
		RunID:     runID,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("Failed to marshal event", logger.Fields{"error": err, "type": eventType})
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.logger.Warn("Event bus full, message dropped", logger.Fields{"type": eventType, "run_id": runID})
	}
}

// ServeWS upgrades an HTTP request to a websocket subscription.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", logger.Fields{"error": err})
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, 64)}
	h.register <- c

	go c.writeLoop()
	go c.readLoop()
}

func (c *client) writeLoop() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

// readLoop discards client messages; the bus is one-way. Its job is to
// detect disconnects.
func (c *client) readLoop() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Publisher is the slice of the hub the orchestrator needs, kept narrow so
// tests can record published events.
type Publisher interface {
	Publish(runID, eventType string, data interface{})
}

// NopPublisher drops every event. Used by the one-shot CLI where no
// subscriber can exist.
type NopPublisher struct{}

func (NopPublisher) Publish(runID, eventType string, data interface{}) {}

var _ Publisher = (*Hub)(nil)
var _ Publisher = NopPublisher{}
