package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/domain"
	"github.com/rohitdahale/codebattle-backend/internal/service/problem"
)

type ProblemCatalog interface {
	All(difficulty string) []domain.Problem
	Stats() problem.Stats
}

type ProblemHandler struct {
	Problems ProblemCatalog
}

func NewProblemHandler(p ProblemCatalog) *ProblemHandler {
	return &ProblemHandler{Problems: p}
}

// ListProblems returns the problem statements, optionally filtered by
// ?difficulty=. Test cases are never exposed.
func (h *ProblemHandler) ListProblems(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"problems": h.Problems.All(c.Query("difficulty")),
		"stats":    h.Problems.Stats(),
	})
}

// PlayerStore reads what the result sink persisted.
type PlayerStore interface {
	PlayerStats(ctx context.Context, id domain.PlayerID) (*domain.PlayerStats, error)
	History(ctx context.Context, id domain.PlayerID, limit int) ([]domain.MatchSummary, error)
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

type PlayerHandler struct {
	Store PlayerStore
	log   *zap.Logger
}

func NewPlayerHandler(store PlayerStore, log *zap.Logger) *PlayerHandler {
	return &PlayerHandler{Store: store, log: log}
}

func (h *PlayerHandler) GetStats(c *gin.Context) {
	id := domain.PlayerID(c.Param("id"))
	stats, err := h.Store.PlayerStats(c.Request.Context(), id)
	if err != nil {
		h.log.Error("[HTTP] Failed to load player stats", zap.String("player_id", string(id)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stats"})
		return
	}
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Player not found"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetHistory returns the player's most recent matches, newest first.
func (h *PlayerHandler) GetHistory(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	id := domain.PlayerID(c.Param("id"))
	history, err := h.Store.History(c.Request.Context(), id, limit)
	if err != nil {
		h.log.Error("[HTTP] Failed to load match history", zap.String("player_id", string(id)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch history"})
		return
	}
	if history == nil {
		history = []domain.MatchSummary{}
	}
	c.JSON(http.StatusOK, history)
}
