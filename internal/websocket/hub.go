package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"backoffice/internal/rbac"
	"backoffice/internal/service"
	"backoffice/internal/tenancy"
	"backoffice/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

// Client is one connected browser session
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	principal *tenancy.Principal
}

// receives reports whether the client may see the event
func (c *Client) receives(ev service.DocumentEvent) bool {
	p := c.principal
	if p.TenantID == nil {
		if !p.IsSuperAdmin() {
			return false
		}
	} else if *p.TenantID != ev.TenantID {
		return false
	}
	return p.CanInCompany(rbac.ResourceDocuments, rbac.ActionRead, ev.CompanyID)
}

// Hub fans document events out to the clients of the event's tenant
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan service.DocumentEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	upgrader   websocket.Upgrader
}

// NewHub creates a hub accepting upgrades from the given origins. An empty
// list accepts any origin.
func NewHub(allowedOrigins []string) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan service.DocumentEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origin == "" || origins[origin]
			},
		},
	}
}

// PublishDocument queues an event without blocking the caller
func (h *Hub) PublishDocument(ev service.DocumentEvent) {
	select {
	case h.broadcast <- ev:
	default:
		logger.Warn(context.Background(), "websocket broadcast queue full, dropping event", "document_id", ev.DocumentID)
	}
}

// Run is the dispatch loop. It closes every client when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		case client := <-h.register:
			h.clients[client] = true
			logger.Debug(ctx, "websocket client connected", "user_id", client.principal.UserID, "clients", len(h.clients))
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				logger.Debug(ctx, "websocket client disconnected", "user_id", client.principal.UserID)
			}
		case ev := <-h.broadcast:
			message, err := json.Marshal(ev)
			if err != nil {
				logger.Error(ctx, "failed to encode websocket event", "error", err)
				continue
			}
			for client := range h.clients {
				if !client.receives(ev) {
					continue
				}
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// ServeWs upgrades an authenticated request and registers the client
func (h *Hub) ServeWs(c *gin.Context) {
	p, ok := tenancy.FromContext(c.Request.Context())
	if !ok {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed", "error", err)
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, sendBuffer), principal: p}
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// writePump sends queued events and keeps the connection alive with pings
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
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

// readPump drains client frames so pongs and close frames are processed
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug(context.Background(), "websocket read error", "error", err)
			}
			return
		}
	}
}
