package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/peerconnect/config"
)

// NewRouter wires the relay routes.
func NewRouter(cfg *config.Config, h *Handlers, logger *slog.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(logger))

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", h.Health)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/rooms/:roomId", h.GetRoom)
	}

	// WebSocket signaling endpoint
	router.GET("/ws", h.HandleSignaling)

	return router
}
