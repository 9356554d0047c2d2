package hub

import (
	"encoding/json"
	"sync"

	"github.com/lumenchat/chatd/internal/config"
	"github.com/lumenchat/chatd/internal/log"
)

// envelope is one queued delivery. only targets a single client; exclude
// skips the origin on a fan-out.
type envelope struct {
	data    []byte
	exclude string
	only    string
}

// Hub fans events out to live connections. Delivery is best-effort and
// at-most-once: a client whose send buffer is full is dropped rather than
// allowed to stall the fan-out.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *envelope
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *envelope, 256),
		config:     cfg,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")

		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env *envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if env.only != "" {
		if client, ok := h.clients[env.only]; ok {
			h.send(client, env.data)
		}
		return
	}
	for id, client := range h.clients {
		if id == env.exclude {
			continue
		}
		h.send(client, env.data)
	}
}

func (h *Hub) send(client *Client, data []byte) {
	select {
	case client.Send <- data:
	default:
		// Slow consumer; drop the connection rather than block the hub.
		go h.removeClient(client)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastAll queues an event for every live connection.
func (h *Hub) BroadcastAll(event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.broadcast <- &envelope{data: data}
	return nil
}

// BroadcastExcept queues an event for every connection but the origin.
func (h *Hub) BroadcastExcept(origin string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.broadcast <- &envelope{data: data, exclude: origin}
	return nil
}

// SendTo queues an event for a single connection.
func (h *Hub) SendTo(connID string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.broadcast <- &envelope{data: data, only: connID}
	return nil
}

// BroadcastRaw queues pre-encoded bytes for every live connection. Used by
// the cross-instance bridge to relay events verbatim.
func (h *Hub) BroadcastRaw(data []byte) {
	h.broadcast <- &envelope{data: data}
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
