package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/dukerupert/listio/internal/localstore"
	"github.com/dukerupert/listio/internal/notify"
)

// Message is a change notification broadcast to all clients.
type Message struct {
	Type   string          `json:"type"`
	Entity string          `json:"entity"`
	Action string          `json:"action"`
	ID     string          `json:"id,omitempty"`
	Key    string          `json:"key,omitempty"`
	Value  json.RawMessage `json:"value,omitempty"`
	Seq    int64           `json:"seq,omitempty"`
	Extra  map[string]any  `json:"extra,omitempty"`
}

// NewMessage creates a Message with the Type field derived from entity and action.
func NewMessage(entity, action, id string, extra map[string]any) Message {
	return Message{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// ChangeMessage describes a storage write. For "listio:list-items:12" the
// entity is "list-items" and the id "12". Values that are not JSON are sent
// as strings.
func ChangeMessage(c notify.Change) Message {
	rest := strings.TrimPrefix(c.Key, localstore.Prefix)
	entity, id, _ := strings.Cut(rest, ":")

	action := "updated"
	if c.Deleted {
		action = "deleted"
	}
	msg := NewMessage(entity, action, id, nil)
	msg.Key = c.Key
	msg.Seq = c.Seq
	if !c.Deleted && c.Value != "" {
		if json.Valid([]byte(c.Value)) {
			msg.Value = json.RawMessage(c.Value)
		} else if raw, err := json.Marshal(c.Value); err == nil {
			msg.Value = raw
		}
	}
	return msg
}

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to every client subscribed to its entity.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.Wants(msg.Entity) {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop message to avoid blocking
		}
	}
}

// Follow broadcasts every change published under the client namespace until
// ctx is done.
func (h *Hub) Follow(ctx context.Context, broker *notify.Broker) {
	sub := broker.Subscribe(notify.Prefix(localstore.Prefix))
	defer sub.Close()
	sub.Consume(ctx, func(c notify.Change) {
		h.Broadcast(ChangeMessage(c))
	})
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
