package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rohitdahale/codebattle-backend/internal/transport/http/middleware"
)

// RouterConfig carries everything the HTTP surface is built from. Players and
// Metrics are optional.
type RouterConfig struct {
	Matches        *MatchHandler
	Problems       *ProblemHandler
	Players        *PlayerHandler
	WebSocket      http.HandlerFunc
	Metrics        http.Handler
	Secret         string
	AllowedOrigins []string
	Log            *zap.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RequestLogger(cfg.Log), gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins, cfg.Log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.GET("/status", cfg.Matches.Status)
		api.GET("/rooms", cfg.Matches.ListRooms)
		api.GET("/rooms/:code", cfg.Matches.GetRoom)
		api.GET("/live", cfg.Matches.LiveMatches)
		api.GET("/sessions/:id", cfg.Matches.GetSession)
		api.GET("/problems", cfg.Problems.ListProblems)

		if cfg.Players != nil {
			api.GET("/players/:id", cfg.Players.GetStats)
			api.GET("/players/:id/matches", cfg.Players.GetHistory)
		}
	}

	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg.Secret), middleware.RequireAdmin())
	{
		admin.POST("/sessions/:id/end", cfg.Matches.EndSession)
	}

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	// WebSocket Route (auth handled inside the WS handler itself)
	if cfg.WebSocket != nil {
		router.GET("/ws", gin.WrapF(cfg.WebSocket))
	}

	return router
}
