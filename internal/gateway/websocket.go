package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PlatformWebSocket names the realtime adapter.
const PlatformWebSocket = "websocket"

const (
	defaultHeartbeat  = 30 * time.Second
	defaultSendBuffer = 64
	writeTimeout      = 10 * time.Second
)

// WebSocketOptions configures the realtime adapter.
type WebSocketOptions struct {
	// Heartbeat is how often idle clients receive a heartbeat frame.
	Heartbeat time.Duration
	// SendBuffer is the per-client queue length. Clients that fall this far
	// behind are disconnected.
	SendBuffer int
	// Stats answers the "stats" command.
	Stats func() any
	// Cycle returns the current breath cycle number.
	Cycle func() int
}

// Frame is a control message sent to realtime clients.
type Frame struct {
	Type        string    `json:"type"`
	BreathCycle int       `json:"breath_cycle,omitempty"`
	ClientID    string    `json:"client_id,omitempty"`
	Message     string    `json:"message,omitempty"`
	Data        any       `json:"data,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WebSocketAdapter serves /ws/realtime and fans events out to every
// connected client.
type WebSocketAdapter struct {
	upgrader websocket.Upgrader
	opts     WebSocketOptions

	mu          sync.RWMutex
	clients     map[string]*wsClient
	closed      bool
	connectedAt time.Time
	logger      *zap.Logger
}

// NewWebSocketAdapter creates the realtime adapter.
func NewWebSocketAdapter(opts WebSocketOptions, logger *zap.Logger) *WebSocketAdapter {
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = defaultHeartbeat
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	return &WebSocketAdapter{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts:    opts,
		clients: make(map[string]*wsClient),
		logger:  logger,
	}
}

func (a *WebSocketAdapter) Platform() string { return PlatformWebSocket }

// Connect marks the adapter ready. Clients attach through ServeHTTP.
func (a *WebSocketAdapter) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = false
	a.connectedAt = time.Now()
	return nil
}

// Clients returns the number of connected clients.
func (a *WebSocketAdapter) Clients() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.clients)
}

func (a *WebSocketAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  PlatformWebSocket,
		Connected: !a.closed && !a.connectedAt.IsZero(),
		Details:   fmt.Sprintf("clients=%d", len(a.clients)),
	}
	if s.Connected {
		t := a.connectedAt
		s.ConnectedAt = &t
	}
	return s
}

// ServeHTTP upgrades the request and serves the client until it leaves.
func (a *WebSocketAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.RLock()
	closed := a.closed
	a.mu.RUnlock()
	if closed {
		http.Error(w, "realtime feed is shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, a.opts.SendBuffer),
		done: make(chan struct{}),
	}

	a.mu.Lock()
	a.clients[c.id] = c
	a.mu.Unlock()
	a.logger.Info("realtime client connected",
		zap.String("client", c.id), zap.String("remote", r.RemoteAddr))

	a.enqueue(c, Frame{
		Type:        "connection_established",
		ClientID:    c.id,
		BreathCycle: a.cycle(),
		Message:     "connected to vault nexus realtime feed",
	})

	go a.writeLoop(c)
	a.readLoop(c)
}

func (a *WebSocketAdapter) readLoop(c *wsClient) {
	defer a.remove(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.logger.Debug("realtime client read error", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
		switch string(data) {
		case "ping":
			a.enqueue(c, Frame{Type: "pong"})
		case "stats":
			var stats any
			if a.opts.Stats != nil {
				stats = a.opts.Stats()
			}
			a.enqueue(c, Frame{Type: "stats", BreathCycle: a.cycle(), Data: stats})
		}
	}
}

func (a *WebSocketAdapter) writeLoop(c *wsClient) {
	ticker := time.NewTicker(a.opts.Heartbeat)
	defer ticker.Stop()
	defer a.remove(c)

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := a.write(c, msg); err != nil {
				return
			}
		case <-ticker.C:
			b, err := json.Marshal(Frame{Type: "heartbeat", BreathCycle: a.cycle(), Timestamp: time.Now().UTC()})
			if err != nil {
				continue
			}
			if err := a.write(c, b); err != nil {
				return
			}
		}
	}
}

func (a *WebSocketAdapter) write(c *wsClient, msg []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		a.logger.Debug("realtime write failed", zap.String("client", c.id), zap.Error(err))
		return err
	}
	return nil
}

func (a *WebSocketAdapter) enqueue(c *wsClient, f Frame) {
	if f.Timestamp.IsZero() {
		f.Timestamp = time.Now().UTC()
	}
	b, err := json.Marshal(f)
	if err != nil {
		a.logger.Warn("marshal frame failed", zap.String("type", f.Type), zap.Error(err))
		return
	}
	a.deliver(c, b)
}

// deliver queues msg without blocking. A full queue drops the client.
func (a *WebSocketAdapter) deliver(c *wsClient, msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		a.logger.Warn("realtime client too slow, disconnecting", zap.String("client", c.id))
		a.remove(c)
		return false
	}
}

func (a *WebSocketAdapter) remove(c *wsClient) {
	a.mu.Lock()
	_, ok := a.clients[c.id]
	delete(a.clients, c.id)
	a.mu.Unlock()
	c.close()
	if ok {
		a.logger.Info("realtime client disconnected", zap.String("client", c.id))
	}
}

func (a *WebSocketAdapter) cycle() int {
	if a.opts.Cycle == nil {
		return 0
	}
	return a.opts.Cycle()
}

// Broadcast queues evt for every connected client.
func (a *WebSocketAdapter) Broadcast(_ context.Context, evt *Event) error {
	b, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	a.mu.RLock()
	clients := make([]*wsClient, 0, len(a.clients))
	for _, c := range a.clients {
		clients = append(clients, c)
	}
	a.mu.RUnlock()

	for _, c := range clients {
		a.deliver(c, b)
	}
	return nil
}

// Close disconnects every client and rejects new ones.
func (a *WebSocketAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	clients := make([]*wsClient, 0, len(a.clients))
	for _, c := range a.clients {
		clients = append(clients, c)
	}
	a.clients = make(map[string]*wsClient)
	a.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"),
			time.Now().Add(time.Second))
		c.close()
	}
	return nil
}
