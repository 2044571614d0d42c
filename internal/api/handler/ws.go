package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kiranshivaraju/sitegen/internal/progress"
	"golang.org/x/time/rate"
)

const (
	maxMessageSize = 4096
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
)

// ControlHandler receives inbound frames from subscriber connections.
type ControlHandler interface {
	HandleMessage(conn progress.Conn, raw []byte)
	Disconnect(conn progress.Conn)
	Dropped(reason string)
}

// WebSocketConfig tunes the subscriber transport.
type WebSocketConfig struct {
	SendBuffer        int
	MessagesPerSecond float64
	WriteTimeout      time.Duration
}

// WebSocketHandler upgrades subscriber connections and feeds their frames to
// the control router.
type WebSocketHandler struct {
	ctrl     ControlHandler
	cfg      WebSocketConfig
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

// NewWebSocketHandler creates a WebSocketHandler.
func NewWebSocketHandler(ctrl ControlHandler, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 20
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &WebSocketHandler{
		ctrl: ctrl,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Subscribers only read progress; any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*wsClient]struct{}),
	}
}

// ServeHTTP handles GET /api/v1/ws. It blocks until the connection closes.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := &wsClient{
		conn:         conn,
		send:         make(chan []byte, h.cfg.SendBuffer),
		writeTimeout: h.cfg.WriteTimeout,
		limiter:      rate.NewLimiter(rate.Limit(h.cfg.MessagesPerSecond), max(1, int(h.cfg.MessagesPerSecond))),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	slog.Debug("websocket client connected", "remote", r.RemoteAddr, "clients", total)

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	c.readPump(h.ctrl)

	h.ctrl.Disconnect(c)
	c.close()
	<-done

	h.mu.Lock()
	delete(h.clients, c)
	total = len(h.clients)
	h.mu.Unlock()
	slog.Debug("websocket client disconnected", "remote", r.RemoteAddr, "clients", total)
}

// Clients returns the number of open subscriber connections.
func (h *WebSocketHandler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll closes every open connection with a going-away close frame.
func (h *WebSocketHandler) CloseAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// wsClient implements progress.Conn. Send never blocks: frames are queued and
// written by writePump, and a full queue closes the client.
type wsClient struct {
	conn         *websocket.Conn
	send         chan []byte
	writeTimeout time.Duration
	limiter      *rate.Limiter

	mu     sync.Mutex
	closed bool
}

func (c *wsClient) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return progress.ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		c.closeLocked()
		return progress.ErrSlowConsumer
	}
}

func (c *wsClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *wsClient) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// writePump drains the send queue until it is closed, then sends a close
// frame and closes the connection, which in turn ends readPump.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("websocket write failed", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// readPump forwards text frames to the control router until the connection
// fails or closes.
func (c *wsClient) readPump(ctrl ControlHandler) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			ctrl.Dropped("unsupported_frame")
			continue
		}
		if !c.limiter.Allow() {
			ctrl.Dropped("rate_limited")
			continue
		}
		ctrl.HandleMessage(c, data)
	}
}

var _ progress.Conn = (*wsClient)(nil)
