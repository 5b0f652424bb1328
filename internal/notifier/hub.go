package notifier

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/glorisonglotech/omnibiz-sub004/internal/util"
)

// Channels carried by the hub. Every admin session is implicitly
// subscribed to the shared admins channel plus its own private channel;
// dashboard clients subscribe to the dashboard channel explicitly.
const (
	ChannelAdmins    = "admins"
	ChannelDashboard = "security-dashboard"
)

// Hub fans out alert payloads to connected administrator sessions over
// WebSocket. Slow consumers never stall the pipeline: each session has a
// bounded send queue and messages to a full queue are dropped.
type Hub struct {
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[*Session]struct{}

	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	pingInterval time.Duration

	messagesSent atomic.Uint64
	dropped      atomic.Uint64
	closed       atomic.Bool
}

// Session is one connected administrator WebSocket.
type Session struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte

	topicsMu sync.RWMutex
	topics   map[string]struct{}

	closeOnce sync.Once
}

// OutgoingMessage is the wire envelope for hub messages.
type OutgoingMessage struct {
	Type      string      `json:"type"`
	Channel   string      `json:"channel"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

type incomingMessage struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:   logger,
		sessions: make(map[*Session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Cross-origin dashboard access is governed by the router's
			// CORS policy; the upgrade itself is open.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		writeTimeout: 5 * time.Second,
		pingInterval: 30 * time.Second,
	}
}

// ServeWS upgrades the request and registers the session for the given
// administrator.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	session := &Session{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 64),
		topics: map[string]struct{}{
			ChannelAdmins:     {},
			"admin:" + userID: {},
		},
	}

	h.mu.Lock()
	h.sessions[session] = struct{}{}
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("Admin session connected",
		util.String("user_id", userID),
		util.Int("sessions", count),
	)

	go session.writePump()
	go session.readPump()
	return nil
}

// Publish fans out data to every session subscribed to channel.
func (h *Hub) Publish(channel, messageType string, data interface{}) {
	payload, err := json.Marshal(OutgoingMessage{
		Type:      messageType,
		Channel:   channel,
		Data:      data,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Failed to encode hub message", util.ErrorField(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for session := range h.sessions {
		if !session.subscribed(channel) {
			continue
		}
		select {
		case session.send <- payload:
			h.messagesSent.Add(1)
		default:
			// Queue full: the consumer is too slow, drop rather than block.
			h.dropped.Add(1)
		}
	}
}

// PublishToAdmin delivers data to one administrator's private channel.
func (h *Hub) PublishToAdmin(userID, messageType string, data interface{}) {
	h.Publish("admin:"+userID, messageType, data)
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Dropped returns how many messages were discarded for slow consumers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every session.
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for session := range h.sessions {
		sessions = append(sessions, session)
	}
	h.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
	h.logger.Info("Alert hub closed", util.Int("sessions_closed", len(sessions)))
}

func (h *Hub) unregister(session *Session) {
	h.mu.Lock()
	delete(h.sessions, session)
	h.mu.Unlock()
}

func (s *Session) subscribed(channel string) bool {
	s.topicsMu.RLock()
	defer s.topicsMu.RUnlock()
	_, ok := s.topics[channel]
	return ok
}

func (s *Session) subscribe(channel string) {
	s.topicsMu.Lock()
	s.topics[channel] = struct{}{}
	s.topicsMu.Unlock()
}

func (s *Session) unsubscribe(channel string) {
	s.topicsMu.Lock()
	delete(s.topics, channel)
	s.topicsMu.Unlock()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.hub.unregister(s)
		close(s.send)
		_ = s.conn.Close()
	})
}

func (s *Session) readPump() {
	defer s.close()

	s.conn.SetReadLimit(4096)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.hub.pingInterval * 2))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.hub.pingInterval * 2))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg incomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "subscribe":
			if msg.Topic != "" {
				s.subscribe(msg.Topic)
			}
		case "unsubscribe":
			if msg.Topic != "" {
				s.unsubscribe(msg.Topic)
			}
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.hub.pingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case payload, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.hub.writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
