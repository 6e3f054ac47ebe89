package api

import (
	"github.com/gin-gonic/gin"

	"github.com/fedi-cli/fedi/internal/common/logger"
	"github.com/fedi-cli/fedi/internal/orchestrator"
	"github.com/fedi-cli/fedi/internal/session"
)

// NewRouter builds the gin engine exposing the control plane routes,
// wired with RequestLogger, Recovery, and CORS middleware.
func NewRouter(orch *orchestrator.Orchestrator, store *session.Store, log *logger.Logger) *gin.Engine {
	router := gin.New()
	router.Use(RequestLogger(log), Recovery(log), CORS())

	handler := NewHandler(orch, store, log)

	router.GET("/health", handler.Health)

	v1 := router.Group("/api/v1")
	{
		sessions := v1.Group("/sessions")
		sessions.POST("", handler.StartSession)
		sessions.GET("", handler.ListSessions)
		sessions.POST("/:id/input", handler.SendInput)
		sessions.POST("/:id/stop", handler.Stop)
		sessions.POST("/:id/resume", handler.Resume)
	}

	return router
}
