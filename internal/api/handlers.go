package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sandbridge/sandbridge/internal/common/config"
	"github.com/sandbridge/sandbridge/internal/common/errors"
	"github.com/sandbridge/sandbridge/internal/common/logger"
	"github.com/sandbridge/sandbridge/internal/popout"
	"github.com/sandbridge/sandbridge/internal/surface"
	"github.com/sandbridge/sandbridge/internal/transcript"
	v1 "github.com/sandbridge/sandbridge/pkg/api/v1"
)

const defaultTranscriptTail = 100

// Handler serves the surface's HTTP endpoints.
type Handler struct {
	surface    *surface.Surface
	transcript transcript.Store
	popoutCfg  config.PopoutConfig
	logger     *logger.Logger
}

// NewHandler creates an API handler for a mounted surface.
func NewHandler(s *surface.Surface, store transcript.Store, popoutCfg config.PopoutConfig, log *logger.Logger) *Handler {
	return &Handler{
		surface:    s,
		transcript: store,
		popoutCfg:  popoutCfg,
		logger:     log,
	}
}

// Health reports daemon liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus returns the surface's mode, session, and liveness.
func (h *Handler) GetStatus(c *gin.Context) {
	d := h.surface.Driver()
	c.JSON(http.StatusOK, v1.SurfaceStatus{
		Mode:             string(h.surface.Mode()),
		SessionID:        h.surface.SessionID(),
		SyncChannel:      h.surface.SyncChannel(),
		ControllerOnline: h.surface.Monitor().Online(),
		LastHeartbeatAt:  h.surface.Monitor().LastHeartbeatAt(),
		RuntimeBooted:    d.Booted(),
		QueueLength:      d.QueueLen(),
		CommandRunning:   d.Running(),
		PopoutOpen:       h.surface.Manager().HasOpenWindow(),
	})
}

// OpenPopout opens or focuses the controller popout (the user-initiated
// path). A blocked popup is a recoverable condition, not an error response.
func (h *Handler) OpenPopout(c *gin.Context) {
	opened := h.surface.Manager().OpenOrFocus()
	c.JSON(http.StatusOK, v1.PopoutOpenResponse{Opened: opened})
}

// ResetSession tears down and rebuilds the session runtime.
func (h *Handler) ResetSession(c *gin.Context) {
	if err := h.surface.Reset(c.Request.Context()); err != nil {
		c.Error(errors.InternalError("failed to reset session", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

// GetTranscript returns the most recent transcript entries.
func (h *Handler) GetTranscript(c *gin.Context) {
	n := defaultTranscriptTail
	if raw := c.Query("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.Error(errors.ValidationError("n", "must be a positive integer"))
			return
		}
		n = parsed
	}

	entries, err := h.transcript.Tail(c.Request.Context(), n)
	if err != nil {
		c.Error(errors.InternalError("failed to read transcript", err))
		return
	}

	resp := v1.TranscriptResponse{Entries: make([]v1.TranscriptEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, v1.TranscriptEntry{
			ID:        e.ID,
			Kind:      e.Kind,
			Text:      e.Text,
			CreatedAt: e.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// GetRemoteViewer returns the configured display endpoint, but only after it
// passes the safe-endpoint check. A script-executing or data scheme coming
// from the backend must never reach an embedder.
func (h *Handler) GetRemoteViewer(c *gin.Context) {
	url := h.popoutCfg.RemoteViewerURL
	if url == "" {
		c.Error(errors.NotFound("remote viewer", "none configured"))
		return
	}
	if !popout.IsSafeDisplayEndpoint(url) {
		h.logger.Warn("Rejecting unsafe remote viewer endpoint")
		c.Error(errors.NotFound("remote viewer", "unsafe endpoint rejected"))
		return
	}
	c.JSON(http.StatusOK, v1.RemoteViewerResponse{URL: url})
}
