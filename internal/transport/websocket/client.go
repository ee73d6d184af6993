package websocket

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Frame is the envelope of every server to client message.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// ErrorFrame reports a rejected request.
type ErrorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Request string `json:"request,omitempty"`
}

// Client is one authenticated socket.
type Client struct {
	Player domain.PlayerID
	Name   string
	Ref    domain.ConnRef

	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(conn *websocket.Conn, player domain.PlayerID, name string, ref domain.ConnRef) *Client {
	return &Client{
		Player: player,
		Name:   name,
		Ref:    ref,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
	}
}

// enqueue hands data to the write pump. It reports false when the client is
// closed or too slow to keep up.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close stops the write pump and closes the socket. It is safe to call more
// than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// writePump owns all writes to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// ConnectionManager tracks one live client per player and the topics each
// player listens on. It delivers match events and never blocks the caller.
type ConnectionManager struct {
	mu      sync.RWMutex
	clients map[domain.PlayerID]*Client
	topics  map[string]map[domain.PlayerID]struct{}
	log     *zap.Logger
}

func NewConnectionManager(log *zap.Logger) *ConnectionManager {
	return &ConnectionManager{
		clients: make(map[domain.PlayerID]*Client),
		topics:  make(map[string]map[domain.PlayerID]struct{}),
		log:     log,
	}
}

// Add registers c as the player's connection, closing the one it replaces.
func (cm *ConnectionManager) Add(c *Client) {
	cm.mu.Lock()
	old := cm.clients[c.Player]
	cm.clients[c.Player] = c
	cm.mu.Unlock()

	if old != nil && old != c {
		old.Close()
	}
}

// RemoveIfMatching drops c unless a newer connection already replaced it.
func (cm *ConnectionManager) RemoveIfMatching(c *Client) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.clients[c.Player] != c {
		return false
	}
	delete(cm.clients, c.Player)
	return true
}

func (cm *ConnectionManager) isCurrent(c *Client) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.clients[c.Player] == c
}

func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.clients)
}

func (cm *ConnectionManager) Join(topic string, player domain.PlayerID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	members := cm.topics[topic]
	if members == nil {
		members = make(map[domain.PlayerID]struct{})
		cm.topics[topic] = members
	}
	members[player] = struct{}{}
}

func (cm *ConnectionManager) Leave(topic string, player domain.PlayerID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	members := cm.topics[topic]
	delete(members, player)
	if len(members) == 0 {
		delete(cm.topics, topic)
	}
}

// Emit delivers an event to every client listening on topic. Player topics
// reach that player only and the global topic reaches everyone.
func (cm *ConnectionManager) Emit(topic, event string, payload any) {
	data, err := json.Marshal(Frame{Type: event, Data: payload})
	if err != nil {
		cm.log.Error("[WS] Failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}

	cm.mu.RLock()
	var targets []*Client
	switch {
	case topic == domain.TopicGlobal:
		targets = make([]*Client, 0, len(cm.clients))
		for _, c := range cm.clients {
			targets = append(targets, c)
		}
	case strings.HasPrefix(topic, domain.PlayerTopic("")):
		if c, ok := cm.clients[domain.PlayerID(strings.TrimPrefix(topic, domain.PlayerTopic("")))]; ok {
			targets = append(targets, c)
		}
	default:
		for p := range cm.topics[topic] {
			if c, ok := cm.clients[p]; ok {
				targets = append(targets, c)
			}
		}
	}
	cm.mu.RUnlock()

	for _, c := range targets {
		cm.deliver(c, data)
	}
}

// SendTo writes a frame to one player.
func (cm *ConnectionManager) SendTo(player domain.PlayerID, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		cm.log.Error("[WS] Failed to encode frame", zap.Error(err))
		return
	}
	cm.mu.RLock()
	c, ok := cm.clients[player]
	cm.mu.RUnlock()
	if ok {
		cm.deliver(c, data)
	}
}

func (cm *ConnectionManager) deliver(c *Client, data []byte) {
	if c.enqueue(data) {
		return
	}
	cm.log.Warn("[WS] Client too slow, dropping connection", zap.String("player_id", string(c.Player)))
	c.Close()
}
