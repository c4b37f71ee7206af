package api

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts every REST and streaming endpoint on e.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.HandleHealth)
	e.GET("/openapi.yaml", SpecHandler)

	e.POST("/submissions", h.SubmitForm)
	e.GET("/pipeline-status/:id", h.GetPipelineStatus)
	e.POST("/pipeline-retry/:caseId", h.RetryPipeline)
	e.POST("/regenerate-documents/:caseId", h.RegenerateDocuments)

	e.GET("/jobs/:jobId/stream", h.StreamJob)
	e.GET("/jobs/:jobId/ws", h.StreamJobWebSocket)
}
