package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-auth/internal/auth"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-auth/internal/infrastructure/logging"
)

// Stream message types.
const (
	WSTypeFilter = "filter"
	WSTypePing   = "ping"
	WSTypePong   = "pong"
	WSTypeEvent  = "event"
	WSTypeAck    = "ack"
	WSTypeError  = "error"

	// wsSendBufferSize is how many messages may queue for one client before
	// it is treated as a slow consumer and disconnected.
	wsSendBufferSize = 256
)

// WSMessage is a frame sent to a stream client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// wsRequest is a frame received from a stream client.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StreamFilter narrows the session events a client receives. Empty
// fields match everything, so the zero value streams every event.
type StreamFilter struct {
	Events    []auth.EventType `json:"events,omitempty"`
	Outcome   string           `json:"outcome,omitempty"`
	AccountID string           `json:"account_id,omitempty"`
}

func (f StreamFilter) validate() string {
	for _, et := range f.Events {
		if !auth.IsValidEventType(et) {
			return "unknown event type: " + string(et)
		}
	}
	if f.Outcome != "" && f.Outcome != auth.OutcomeSuccess && f.Outcome != auth.OutcomeFailure {
		return "outcome must be success or failure"
	}
	return ""
}

func (f StreamFilter) matches(ev auth.SessionEvent) bool {
	if f.Outcome != "" && ev.Outcome != f.Outcome {
		return false
	}
	if f.AccountID != "" && ev.AccountID != f.AccountID {
		return false
	}
	if len(f.Events) == 0 {
		return true
	}
	for _, et := range f.Events {
		if et == ev.Type {
			return true
		}
	}
	return false
}

// Hub fans session events out to connected admin stream clients.
// It satisfies events.Broadcaster.
type Hub struct {
	cfg           config.WebSocketConfig
	logger        *logging.Logger
	onCountChange func(int)

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connected stream client.
type WSClient struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	accountID string

	mu     sync.RWMutex
	filter StreamFilter
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are checked by the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a Hub. Call Run before registering clients.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger.With("component", "websocket"),
		clients: make(map[*WSClient]struct{}),
	}
}

// SetOnCountChange registers a callback invoked with the client count
// whenever a client connects or disconnects. Call before Run.
func (h *Hub) SetOnCountChange(fn func(int)) {
	h.onCountChange = fn
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "account_id", c.accountID, "clients", n)
	h.reportCount(n)
}

// Unregister removes a client. Only the call that actually removes it
// closes the send channel, so shutdown and a read error cannot both close it.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	close(c.send)
	h.logger.Debug("websocket client disconnected", "account_id", c.accountID, "clients", n)
	h.reportCount(n)
}

// Broadcast sends payload on channel to every client whose filter admits
// it. Payloads other than auth.SessionEvent reach every client.
func (h *Hub) Broadcast(channel string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding stream event", "error", err)
		return
	}
	ev, isEvent := payload.(auth.SessionEvent)

	h.mu.RLock()
	targets := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if isEvent && !c.wants(ev) {
			continue
		}
		if !c.enqueue(data) {
			h.logger.Warn("disconnecting slow websocket client", "account_id", c.accountID)
			c.disconnect()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) reportCount(n int) {
	if h.onCountChange != nil {
		h.onCountChange(n)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		c.disconnect()
		delete(h.clients, c)
	}
	h.mu.Unlock()
	h.reportCount(0)
}

func (h *Hub) newClient(conn *websocket.Conn, accountID string) *WSClient {
	return &WSClient{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, wsSendBufferSize),
		accountID: accountID,
	}
}

// handleWebSocket upgrades to the admin session event stream.
//
// Browsers cannot set headers on the upgrade request, so a single-use
// ticket from POST /events/ws-ticket is accepted in the query string.
// Other clients may send a bearer access token instead. Either way the
// caller must be an admin.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	accountID, ok := s.authenticateWebSocket(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := s.hub.newClient(conn, accountID)
	s.hub.Register(c)

	t := newStreamTimings(s.hub.cfg)
	go c.writePump(t)
	go c.readPump(t, int64(s.hub.cfg.MaxMessageSize))
}

// authenticateWebSocket writes the error response itself when it returns false.
func (s *Server) authenticateWebSocket(w http.ResponseWriter, r *http.Request) (string, bool) {
	if ticket := r.URL.Query().Get("ticket"); ticket != "" {
		entry, ok := s.tickets.consume(ticket)
		if !ok {
			writeUnauthorized(w, "invalid or expired ticket")
			return "", false
		}
		return entry.accountID, true
	}

	claim, err := s.gate.Authenticate(r.Header.Get("Authorization"))
	if err != nil {
		writeUnauthorized(w, "authentication required")
		return "", false
	}
	if err := s.gate.Authorize(claim, auth.AdminOnly); err != nil {
		writeForbidden(w, "insufficient permissions")
		return "", false
	}
	return claim.AccountID, true
}

// streamTimings holds the keepalive settings for one connection.
type streamTimings struct {
	pingEvery time.Duration
	pongWait  time.Duration
}

func newStreamTimings(cfg config.WebSocketConfig) streamTimings {
	return streamTimings{
		pingEvery: time.Duration(cfg.PingInterval) * time.Second,
		pongWait:  time.Duration(cfg.PongTimeout) * time.Second,
	}
}

// readDeadline is when the connection is considered dead if nothing,
// not even a pong, has been read.
func (t streamTimings) readDeadline() time.Time {
	return time.Now().Add(t.pingEvery + t.pongWait)
}

func (c *WSClient) readPump(t streamTimings, limit int64) {
	defer func() {
		c.hub.Unregister(c)
		c.disconnect()
	}()

	c.conn.SetReadLimit(limit)
	c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // a failed deadline surfaces on the next read
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(t.readDeadline())
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "account_id", c.accountID, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(t.readDeadline()) //nolint:errcheck // a failed deadline surfaces on the next read
		c.handle(data)
	}
}

func (c *WSClient) writePump(t streamTimings) {
	ticker := time.NewTicker(t.pingEvery)
	defer func() {
		ticker.Stop()
		c.disconnect()
	}()

	write := func(kind int, data []byte) error {
		c.conn.SetWriteDeadline(time.Now().Add(t.pongWait)) //nolint:errcheck // write below reports the failure
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle processes one client frame.
func (c *WSClient) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, map[string]string{"message": "invalid JSON message"})
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeFilter:
		var f StreamFilter
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &f); err != nil {
				c.reply(req.ID, WSTypeError, map[string]string{"message": "invalid filter payload"})
				return
			}
		}
		if msg := f.validate(); msg != "" {
			c.reply(req.ID, WSTypeError, map[string]string{"message": msg})
			return
		}
		c.mu.Lock()
		c.filter = f
		c.mu.Unlock()
		c.reply(req.ID, WSTypeAck, map[string]any{"filter": f})
	default:
		c.reply(req.ID, WSTypeError, map[string]string{"message": "unknown message type: " + req.Type})
	}
}

func (c *WSClient) wants(ev auth.SessionEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filter.matches(ev)
}

// enqueue queues data without blocking. It reports false when the client's
// buffer is full. A send racing with shutdown is dropped.
func (c *WSClient) enqueue(data []byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = true
		}
	}()

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WSClient) disconnect() {
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}
