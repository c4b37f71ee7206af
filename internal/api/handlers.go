// Package api contains the HTTP handlers for the intake pipeline service
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"intake-pipeline/backend/internal/services"
	"intake-pipeline/backend/internal/stream"
	"intake-pipeline/backend/pkg/models"
)

// StatusQuerier serves point-in-time job snapshots.
type StatusQuerier interface {
	Query(ctx context.Context, rawID string) (models.StatusView, error)
}

// Retrier re-runs a job with its original input.
type Retrier interface {
	Retry(ctx context.Context, rawID string) (*services.InvocationResult, error)
}

// Regenerator re-runs a job with a new document selection.
type Regenerator interface {
	Regenerate(ctx context.Context, rawID string, documentTypes []string, trigger string) (*services.RegenerationResult, error)
}

// Submitter accepts raw form submissions.
type Submitter interface {
	Submit(ctx context.Context, body []byte) (*services.SubmissionReceipt, error)
}

// Streamer serves one push subscription per call.
type Streamer interface {
	Serve(ctx context.Context, jobID string, sink stream.Sink) error
	Active() int64
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of Handler.
type Deps struct {
	Query      StatusQuerier
	Retry      Retrier
	Regenerate Regenerator
	Submit     Submitter
	Broker     Streamer
	Cases      Pinger
	// Store reports how many job statuses are cached.
	Store   interface{ Len() int }
	Logger  services.Logger
	Version string
}

// Handler contains HTTP handlers for the intake pipeline REST API
type Handler struct {
	Deps
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(d Deps) *Handler {
	if d.Version == "" {
		d.Version = "dev"
	}
	return &Handler{Deps: d}
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Jobs      int               `json:"cachedJobs"`
	Streams   int64             `json:"activeStreams"`
}

// HandleHealth reports 503 when case storage cannot be reached.
func (h *Handler) HandleHealth(c echo.Context) error {
	health := HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Service:   "intake-pipeline",
		Version:   h.Version,
		Checks:    map[string]string{"cases": "ok"},
	}
	if h.Store != nil {
		health.Jobs = h.Store.Len()
	}
	if h.Broker != nil {
		health.Streams = h.Broker.Active()
	}

	code := http.StatusOK
	if h.Cases != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.Cases.Ping(ctx); err != nil {
			health.Status = "degraded"
			health.Checks["cases"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}
	return c.JSON(code, health)
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(c echo.Context, status int, title, detail string) error {
	problem := ProblemDetails{
		Type:     "about:blank",
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	}
	data, err := json.Marshal(problem)
	if err != nil {
		return err
	}
	return c.Blob(status, "application/problem+json", data)
}

// classify maps service errors onto HTTP status codes.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid Request"
	case errors.Is(err, services.ErrLookupFailed):
		return http.StatusNotFound, "Original Input Not Found"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "Job Not Found"
	case errors.Is(err, services.ErrJobInProgress):
		return http.StatusConflict, "Job In Progress"
	case errors.Is(err, services.ErrCollaboratorFailed):
		return http.StatusBadGateway, "Normalization Service Failed"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}

func (h *Handler) problem(c echo.Context, err error) error {
	code, title := classify(err)
	detail := err.Error()
	if code == http.StatusInternalServerError {
		h.Logger.Error("request failed", "path", c.Request().URL.Path, "error", err)
		detail = "an unexpected error occurred"
	}
	return writeError(c, code, title, detail)
}
