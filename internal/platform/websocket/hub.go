// Package websocket carries channel method calls over WebSocket connections.
// Each connection owns one writer goroutine; it is that connection's
// designated context and the only goroutine that writes replies.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/healthbridge/internal/platform/channel"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single WebSocket connection.
type Client struct {
	ID   string
	loop *channel.Loop
	conn Conn
}

// Hub tracks connected clients. All operations are thread-safe.
type Hub struct {
	mu  sync.RWMutex
	all map[*Client]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{all: make(map[*Client]struct{})}
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
}

// Unregister removes a client and stops its writer loop.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	delete(h.all, client)
	client.loop.Stop()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// CloseAll closes every connection, e.g. on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.all))
	for c := range h.all {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.Unregister(c)
		c.conn.Close()
	}
}

// Serve runs a client until its connection fails: replies are written from the
// client's loop while requests are read on the calling goroutine.
func (h *Hub) Serve(ctx context.Context, router *channel.Router, client *Client, logger zerolog.Logger) {
	h.Register(client)
	defer func() {
		h.Unregister(client)
		client.conn.Close()
	}()

	go client.loop.Run(ctx)

	for {
		_, message, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var req channel.Request
		if err := json.Unmarshal(message, &req); err != nil {
			logger.Debug().Err(err).Str("client_id", client.ID).Msg("ignoring malformed message")
			continue
		}
		call, err := req.Call()
		if err != nil {
			client.write(channel.NewResponse(req.ID, channel.NewError("InvalidRequest", err.Error(), nil)), logger)
			continue
		}

		id := req.ID
		router.Dispatch(ctx, client.loop, call, func(reply any) {
			client.writeNow(channel.NewResponse(id, reply), logger)
		})
	}
}

// write posts a response onto the client's loop.
func (c *Client) write(resp channel.Response, logger zerolog.Logger) {
	c.loop.Post(func() { c.writeNow(resp, logger) })
}

// writeNow writes a response; it must only run on the client's loop.
func (c *Client) writeNow(resp channel.Response, logger zerolog.Logger) {
	data, err := json.Marshal(resp)
	if err != nil {
		logger.Error().Err(err).Str("client_id", c.ID).Msg("failed to marshal response")
		return
	}
	if err := c.conn.WriteMessage(gorillawebsocket.TextMessage, data); err != nil {
		logger.Debug().Err(err).Str("client_id", c.ID).Msg("failed to write response")
	}
}

// NewClient wraps conn in a Client with its own writer loop.
func NewClient(conn Conn) *Client {
	return &Client{
		ID:   uuid.New().String(),
		loop: channel.NewLoop(256),
		conn: conn,
	}
}

// ---------------------------------------------------------------------------
// Echo handler for WebSocket connections
// ---------------------------------------------------------------------------

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Origin is enforced by the CORS and auth middleware.
	},
}

// Handler upgrades HTTP connections and serves channel calls on them.
type Handler struct {
	hub    *Hub
	router *channel.Router
	logger zerolog.Logger
}

// NewHandler creates a handler bound to hub and router.
func NewHandler(hub *Hub, router *channel.Router, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, router: router, logger: logger.With().Str("transport", "websocket").Logger()}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
// m applies to the upgrade request only.
func (wsh *Handler) RegisterRoutes(g *echo.Group, m ...echo.MiddlewareFunc) {
	g.GET("/ws", wsh.HandleConnect, m...)
}

// HandleConnect upgrades the connection and serves it until it closes.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := NewClient(ws)
	wsh.logger.Info().Str("client_id", client.ID).Msg("client connected")

	// The request context ends when the handler returns, so serve on a
	// context that outlives it.
	go func() {
		wsh.hub.Serve(context.WithoutCancel(c.Request().Context()), wsh.router, client, wsh.logger)
		wsh.logger.Info().Str("client_id", client.ID).Msg("client disconnected")
	}()
	return nil
}
