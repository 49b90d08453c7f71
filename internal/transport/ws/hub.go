package ws

import (
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkoval/agora/internal/event"
)

// Hub tracks connected clients by user id and fans events out to the
// recipients named on each event. It never derives an audience itself.
type Hub struct {
	clients map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	deliver    chan *delivery

	logger *zap.Logger
}

type delivery struct {
	recipients []uuid.UUID
	data       []byte
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan *delivery, 256),
		logger:     logger,
	}
}

// Run starts the Hub's main event loop. Call this in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if old, ok := h.clients[client.userID]; ok {
				h.drop(old)
			}
			h.clients[client.userID] = client
			h.logger.Info("client connected",
				zap.Stringer("user_id", client.userID),
				zap.Int("total", len(h.clients)))

		case client := <-h.unregister:
			if current, ok := h.clients[client.userID]; ok && current == client {
				h.drop(client)
				h.logger.Info("client disconnected",
					zap.Stringer("user_id", client.userID),
					zap.Int("total", len(h.clients)))
			}

		case d := <-h.deliver:
			for _, userID := range d.recipients {
				client, ok := h.clients[userID]
				if !ok {
					continue
				}
				select {
				case client.send <- d.data:
				default:
					// Buffer full; the client is too slow to keep.
					h.drop(client)
				}
			}
		}
	}
}

func (h *Hub) drop(client *Client) {
	delete(h.clients, client.userID)
	close(client.send)
	close(client.done)
}

// Deliver sends an event to every recipient named on it. Events for users
// without an open connection are dropped; they catch up over HTTP.
func (h *Hub) Deliver(ev *event.Event) {
	if len(ev.Recipients) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", zap.Error(err))
		return
	}
	h.deliver <- &delivery{recipients: ev.Recipients, data: data}
}
