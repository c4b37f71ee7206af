package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"intake-pipeline/backend/internal/services"
	"intake-pipeline/backend/pkg/models"
)

const maxSubmissionBytes = 1 << 20

// RetryResponse is the body of POST /pipeline-retry/:caseId.
type RetryResponse struct {
	Success  bool                       `json:"success"`
	Message  string                     `json:"message"`
	CaseID   string                     `json:"caseId"`
	Pipeline *services.InvocationResult `json:"pipeline"`
}

// RegenerateRequest is the body of POST /regenerate-documents/:caseId.
type RegenerateRequest struct {
	DocumentTypes []string `json:"documentTypes"`
}

// RegenerateResponse is the body returned once regeneration has started.
type RegenerateResponse struct {
	Success bool `json:"success"`
	*services.RegenerationResult
}

// GetPipelineStatus returns the current snapshot of a job
// (GET /pipeline-status/:id)
func (h *Handler) GetPipelineStatus(c echo.Context) error {
	view, err := h.Query.Query(c.Request().Context(), c.Param("id"))
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, view)
	case errors.Is(err, services.ErrNotFound):
		return c.JSON(http.StatusNotFound, view)
	default:
		return h.problem(c, err)
	}
}

// RetryPipeline re-runs a job with its original input and waits for the outcome
// (POST /pipeline-retry/:caseId)
func (h *Handler) RetryPipeline(c echo.Context) error {
	caseID := c.Param("caseId")
	res, err := h.Retry.Retry(c.Request().Context(), caseID)
	if err != nil && res == nil {
		return h.problem(c, err)
	}

	body := RetryResponse{CaseID: caseID, Pipeline: res}
	switch res.Status {
	case models.StatusSuccess:
		body.Success = true
		body.Message = "Pipeline retry completed"
	case models.StatusSkipped:
		body.Success = true
		body.Message = "Pipeline retry skipped, normalization is disabled"
	default:
		body.Message = "Pipeline retry failed"
	}
	if err != nil {
		code, _ := classify(err)
		return c.JSON(code, body)
	}
	return c.JSON(http.StatusOK, body)
}

// RegenerateDocuments starts a regeneration with a new document selection
// (POST /regenerate-documents/:caseId)
func (h *Handler) RegenerateDocuments(c echo.Context) error {
	var req RegenerateRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, http.StatusBadRequest, "Invalid Request", "Invalid request body: "+err.Error())
	}

	res, err := h.Regenerate.Regenerate(c.Request().Context(), c.Param("caseId"), req.DocumentTypes, services.TriggerAPI)
	if err != nil {
		return h.problem(c, err)
	}
	return c.JSON(http.StatusOK, RegenerateResponse{Success: true, RegenerationResult: res})
}

// SubmitForm accepts a form submission and starts its pipeline in the background
// (POST /submissions)
func (h *Handler) SubmitForm(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxSubmissionBytes+1))
	if err != nil {
		return writeError(c, http.StatusBadRequest, "Invalid Request", "Failed to read request body")
	}
	if len(body) > maxSubmissionBytes {
		return writeError(c, http.StatusRequestEntityTooLarge, "Payload Too Large", "submission exceeds 1 MiB")
	}

	receipt, err := h.Submit.Submit(c.Request().Context(), body)
	if err != nil {
		return h.problem(c, err)
	}
	return c.JSON(http.StatusAccepted, receipt)
}
