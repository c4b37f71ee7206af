package services

import (
	"context"

	"intake-pipeline/backend/pkg/models"
)

// NormalizationClient is an interface for communicating with the normalization pipeline.
type NormalizationClient interface {
	// Normalize submits the structured input and waits for the aggregate outcome.
	Normalize(ctx context.Context, input models.PipelineInput) (*NormalizeResponse, error)
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
