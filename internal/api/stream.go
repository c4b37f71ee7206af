package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"intake-pipeline/backend/internal/services"
	"intake-pipeline/backend/internal/stream"
)

// StreamJob pushes status changes as server-sent events
// (GET /jobs/:jobId/stream)
func (h *Handler) StreamJob(c echo.Context) error {
	jobID := c.Param("jobId")
	if err := services.ValidateJobID(jobID); err != nil {
		return h.problem(c, err)
	}

	// streams outlive server.write_timeout
	_ = http.NewResponseController(c.Response()).SetWriteDeadline(time.Time{})

	w, err := stream.NewSSEWriter(c.Response())
	if err != nil {
		return h.problem(c, err)
	}
	if err := h.Broker.Serve(c.Request().Context(), jobID, w); err != nil {
		h.Logger.Debug("sse stream ended with error", "job_id", jobID, "error", err)
	}
	return nil
}

// StreamJobWebSocket pushes the same events as JSON websocket frames
// (GET /jobs/:jobId/ws)
func (h *Handler) StreamJobWebSocket(c echo.Context) error {
	jobID := c.Param("jobId")
	if err := services.ValidateJobID(jobID); err != nil {
		return h.problem(c, err)
	}

	_ = http.NewResponseController(c.Response()).SetWriteDeadline(time.Time{})

	conn, ctx, cancel, err := stream.UpgradeWebSocket(c.Request().Context(), c.Response(), c.Request())
	if err != nil {
		// the upgrader has already written the handshake error
		h.Logger.Warn("websocket upgrade failed", "job_id", jobID, "error", err)
		return nil
	}
	defer cancel()
	defer conn.Close()

	if err := h.Broker.Serve(ctx, jobID, conn); err != nil {
		h.Logger.Debug("websocket stream ended with error", "job_id", jobID, "error", err)
	}
	return nil
}
