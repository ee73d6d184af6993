package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
	"github.com/rohitdahale/codebattle-backend/internal/service/match"
	"github.com/rohitdahale/codebattle-backend/pkg/auth"
)

// Engine is the part of the match orchestrator the socket layer drives.
type Engine interface {
	Enqueue(p match.Player) error
	Dequeue(player domain.PlayerID)
	CreateRoom(p match.Player, settings domain.RoomSettings) (string, error)
	JoinRoom(code string, p match.Player) error
	LeaveRoom(player domain.PlayerID) error
	SetReady(player domain.PlayerID, ready bool) error
	StartMatch(host domain.PlayerID) error
	ChangeProblem(host domain.PlayerID, problemID string) error
	SubmitCode(player domain.PlayerID, code string) error
	Disconnect(player domain.PlayerID, conn domain.ConnRef)
	Reconnect(player domain.PlayerID, conn domain.ConnRef) bool
	Snapshot(player domain.PlayerID) (domain.SessionView, error)
}

// ClientMessage is every message a client may send.
type ClientMessage struct {
	Type      string               `json:"type"`
	JWT       string               `json:"jwt,omitempty"`
	RoomCode  string               `json:"roomCode,omitempty"`
	Settings  *domain.RoomSettings `json:"settings,omitempty"`
	Ready     *bool                `json:"ready,omitempty"`
	ProblemID string               `json:"problemId,omitempty"`
	Code      string               `json:"code,omitempty"`
}

// Handler manages WebSocket dependencies
type Handler struct {
	Conns    *ConnectionManager
	Engine   Engine
	Secret   string
	Upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewHandler(cm *ConnectionManager, engine Engine, secret string, checkOrigin func(*http.Request) bool, log *zap.Logger) *Handler {
	return &Handler{
		Conns:  cm,
		Engine: engine,
		Secret: secret,
		Upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		log: log,
	}
}

// HandleWebSocket is the HTTP handler that upgrades the connection
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("[WS] Upgrade error", zap.Error(err))
		return
	}
	h.handleConnection(conn)
}

func (h *Handler) handleConnection(conn *websocket.Conn) {
	conn.SetReadLimit(64 * 1024)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	claims, ok := h.authenticate(conn)
	if !ok {
		conn.Close()
		return
	}

	player := domain.PlayerID(claims.UserID)
	c := NewClient(conn, player, claims.Username, domain.ConnRef(uuid.NewString()))

	// Rebinding before the old socket is closed makes its late disconnect stale.
	restored := h.Engine.Reconnect(player, c.Ref)
	h.Conns.Add(c)
	go c.writePump()

	h.log.Info("[WS] Connection initialized",
		zap.String("player_id", string(player)),
		zap.String("username", claims.Username),
		zap.Bool("restored", restored))

	h.Conns.SendTo(player, Frame{Type: "connected", Data: map[string]any{"playerId": player}})
	if restored {
		if view, err := h.Engine.Snapshot(player); err == nil {
			h.Conns.SendTo(player, Frame{Type: "session_restored", Data: view})
		}
	}

	defer func() {
		h.Engine.Disconnect(player, c.Ref)
		h.Conns.RemoveIfMatching(c)
		c.Close()
		h.log.Info("[WS] Connection closed", zap.String("player_id", string(player)))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Info("[WS] User disconnected unexpectedly",
					zap.String("player_id", string(player)),
					zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.Conns.SendTo(player, ErrorFrame{Type: "error", Code: "BadRequest", Message: "invalid message format"})
			continue
		}
		h.processMessage(c, msg)
	}
}

// authenticate waits for the init frame and validates its token.
func (h *Handler) authenticate(conn *websocket.Conn) (*auth.Claims, bool) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		h.log.Info("[WS] Read error during init", zap.Error(err))
		return nil, false
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "init" || msg.JWT == "" {
		h.log.Info("[WS] Missing initialization or token")
		h.rejectInit(conn, "expected init message with token")
		return nil, false
	}

	claims, err := auth.ValidateAccessToken(h.Secret, msg.JWT)
	if err != nil {
		h.log.Info("[WS] Invalid token during init", zap.Error(err))
		h.rejectInit(conn, "invalid token or session expired")
		return nil, false
	}
	return claims, true
}

func (h *Handler) rejectInit(conn *websocket.Conn, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteJSON(ErrorFrame{Type: "error", Code: "Unauthorized", Message: message})
}

// processMessage routes one client request to the engine.
func (h *Handler) processMessage(c *Client, msg ClientMessage) {
	p := match.Player{ID: c.Player, Name: c.Name, Conn: c.Ref}

	var err error
	switch msg.Type {
	case "join_queue":
		err = h.Engine.Enqueue(p)

	case "leave_queue":
		h.Engine.Dequeue(c.Player)

	case "create_room":
		settings := domain.RoomSettings{}
		if msg.Settings != nil {
			settings = *msg.Settings
		}
		_, err = h.Engine.CreateRoom(p, settings)

	case "join_room":
		err = h.Engine.JoinRoom(msg.RoomCode, p)

	case "leave_room":
		err = h.Engine.LeaveRoom(c.Player)

	case "set_ready":
		ready := true
		if msg.Ready != nil {
			ready = *msg.Ready
		}
		err = h.Engine.SetReady(c.Player, ready)

	case "start_match":
		err = h.Engine.StartMatch(c.Player)

	case "change_problem":
		err = h.Engine.ChangeProblem(c.Player, msg.ProblemID)

	case "submit_code":
		err = h.Engine.SubmitCode(c.Player, msg.Code)

	case "get_state":
		var view domain.SessionView
		if view, err = h.Engine.Snapshot(c.Player); err == nil {
			h.Conns.SendTo(c.Player, Frame{Type: "session_state", Data: view})
		}

	case "ping":
		h.Conns.SendTo(c.Player, Frame{Type: "pong"})

	default:
		h.Conns.SendTo(c.Player, ErrorFrame{Type: "error", Code: "BadRequest", Message: "unknown message type", Request: msg.Type})
		return
	}

	if err != nil {
		h.Conns.SendTo(c.Player, errorFrame(msg.Type, err))
	}
}

func errorFrame(request string, err error) ErrorFrame {
	message := "internal error"
	var de domain.Error
	if errors.As(err, &de) {
		message = err.Error()
	}
	return ErrorFrame{Type: "error", Code: domain.Code(err), Message: message, Request: request}
}
