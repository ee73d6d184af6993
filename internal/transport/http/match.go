package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
	"github.com/rohitdahale/codebattle-backend/internal/service/match"
	"github.com/rohitdahale/codebattle-backend/internal/transport/http/middleware"
)

// MatchEngine is the read side of the orchestrator plus the admin override.
type MatchEngine interface {
	Status() match.StatusInfo
	Rooms() []domain.RoomSummary
	Room(code string) (domain.SessionView, error)
	LiveSessions() []domain.SessionView
	Session(id string) (domain.SessionView, error)
	ForceEnd(sessionID string) error
}

// Counter reports how many sockets are connected.
type Counter interface {
	Count() int
}

type MatchHandler struct {
	Engine MatchEngine
	Conns  Counter
	log    *zap.Logger
}

func NewMatchHandler(engine MatchEngine, conns Counter, log *zap.Logger) *MatchHandler {
	return &MatchHandler{Engine: engine, Conns: conns, log: log}
}

type statusResponse struct {
	match.StatusInfo
	Connections int `json:"connections"`
}

func (h *MatchHandler) Status(c *gin.Context) {
	resp := statusResponse{StatusInfo: h.Engine.Status()}
	if h.Conns != nil {
		resp.Connections = h.Conns.Count()
	}
	c.JSON(http.StatusOK, resp)
}

// ListRooms returns the public rooms waiting for a guest.
func (h *MatchHandler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.Rooms())
}

func (h *MatchHandler) GetRoom(c *gin.Context) {
	view, err := h.Engine.Room(c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// LiveMatches lists the rounds currently being played.
func (h *MatchHandler) LiveMatches(c *gin.Context) {
	c.JSON(http.StatusOK, h.Engine.LiveSessions())
}

func (h *MatchHandler) GetSession(c *gin.Context) {
	view, err := h.Engine.Session(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// EndSession force-ends a running round. Admin only.
func (h *MatchHandler) EndSession(c *gin.Context) {
	id := c.Param("id")
	if err := h.Engine.ForceEnd(id); err != nil {
		writeError(c, err)
		return
	}

	admin := ""
	if claims, ok := middleware.ClaimsFrom(c); ok {
		admin = claims.UserID
	}
	h.log.Info("[ADMIN] Match force-ended", zap.String("session_id", id), zap.String("admin", admin))
	c.JSON(http.StatusOK, gin.H{"sessionId": id, "endReason": domain.EndAdminEnded})
}

// writeError maps engine errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrRoomNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrProblemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidSessionState):
		status = http.StatusConflict
	}

	message := "internal error"
	if status != http.StatusInternalServerError {
		message = err.Error()
	}
	c.JSON(status, gin.H{"error": message, "code": domain.Code(err)})
}
