package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sandbridge/sandbridge/internal/common/config"
	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/surface"
	"github.com/sandbridge/sandbridge/internal/transcript"
)

// NewRouter builds the daemon's gin engine with the standard middleware
// chain and all surface routes.
func NewRouter(s *surface.Surface, store transcript.Store, cfg *config.Config, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		Recovery(log),
		OtelTracing("sandbridge-api"),
		RequestLogger(log),
		ErrorHandler(log),
		CORS(),
		RateLimit(100),
	)

	handler := NewHandler(s, store, cfg.Popout, log)

	router.GET("/healthz", handler.Health)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/surface/status", handler.GetStatus)
		apiV1.POST("/popout/open", handler.OpenPopout)
		apiV1.POST("/session/reset", handler.ResetSession)
		apiV1.GET("/transcript", handler.GetTranscript)
		apiV1.GET("/remote-viewer", handler.GetRemoteViewer)
	}

	return router
}
