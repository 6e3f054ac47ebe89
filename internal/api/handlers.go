// Package api exposes the orchestrator's task lifecycle as HTTP,
// grounded on backend/internal/agent/api/{handlers.go,router.go} and
// backend/internal/orchestrator/api/middleware.go.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fedi-cli/fedi/internal/common/logger"
	"github.com/fedi-cli/fedi/internal/orchestrator"
	"github.com/fedi-cli/fedi/internal/relayerr"
	"github.com/fedi-cli/fedi/internal/session"
)

// Handler holds the dependencies every route needs: the single active
// orchestration and the session store it shares with it (for listing
// sessions that predate the current process).
type Handler struct {
	orch  *orchestrator.Orchestrator
	store *session.Store
	log   *logger.Logger
}

// NewHandler returns a Handler bound to orch and store.
func NewHandler(orch *orchestrator.Orchestrator, store *session.Store, log *logger.Logger) *Handler {
	return &Handler{orch: orch, store: store, log: log}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status := relayerr.HTTPStatus(err)
	h.log.Error("request failed", zap.Error(err))
	c.JSON(status, gin.H{"error": gin.H{"message": err.Error()}})
}

// StartSession handles POST /api/v1/sessions.
func (h *Handler) StartSession(c *gin.Context) {
	var req StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	id, err := h.orch.StartWithTask(req.Task, req.SystemPrompt)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, StartSessionResponse{SessionID: id})
}

// SendInput handles POST /api/v1/sessions/:id/input.
func (h *Handler) SendInput(c *gin.Context) {
	var req SendInputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}

	h.orch.SendUserInput(req.Text)
	c.Status(http.StatusAccepted)
}

// Stop handles POST /api/v1/sessions/:id/stop.
func (h *Handler) Stop(c *gin.Context) {
	if err := h.orch.Stop(); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Resume handles POST /api/v1/sessions/:id/resume.
func (h *Handler) Resume(c *gin.Context) {
	id := c.Param("id")
	if err := h.orch.Resume(id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ResumeResponse{SessionID: id})
}

// ListSessions handles GET /api/v1/sessions.
func (h *Handler) ListSessions(c *gin.Context) {
	summaries, err := h.store.List()
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
