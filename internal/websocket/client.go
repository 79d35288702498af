package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
)

// control is a message sent by a client. Only "subscribe" is understood:
// it replaces the set of entities the client receives changes for. An empty
// set means every entity.
type control struct {
	Type     string   `json:"type"`
	Entities []string `json:"entities"`
}

// Client is one change-feed connection.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	send   chan []byte
	logger *slog.Logger

	mu       sync.RWMutex
	entities map[string]bool
}

// NewClient creates a Client receiving changes for entities, or for every
// entity when none are given.
func NewClient(hub *Hub, conn *ws.Conn, entities []string, logger *slog.Logger) *Client {
	c := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: logger,
	}
	c.subscribe(entities)
	return c
}

// Wants reports whether messages about entity should reach the client.
func (c *Client) Wants(entity string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities) == 0 || c.entities[entity]
}

func (c *Client) subscribe(entities []string) {
	set := make(map[string]bool, len(entities))
	for _, e := range entities {
		if e != "" {
			set[e] = true
		}
	}
	c.mu.Lock()
	c.entities = set
	c.mu.Unlock()
}

// Run registers the client and serves it until the connection closes.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx)
	c.readPump(ctx)
}

// readPump applies subscribe requests until the connection fails.
func (c *Client) readPump(ctx context.Context) {
	for {
		typ, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != ws.MessageText {
			continue
		}
		var msg control
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("ignore client message", "error", err)
			continue
		}
		if msg.Type == "subscribe" {
			c.subscribe(msg.Entities)
		}
	}
}

// writePump delivers queued messages and pings idle connections.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.write(ctx, msg); err != nil {
				c.logger.Debug("websocket write", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, msg)
}
