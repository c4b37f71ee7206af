package repository

import (
	"context"
	"errors"

	"intake-pipeline/backend/pkg/models"
)

var (
	// ErrCaseNotFound is returned when no durable case record exists.
	ErrCaseNotFound = errors.New("case not found")
	// ErrSubmissionNotFound is returned when the fallback store holds no matching submission.
	ErrSubmissionNotFound = errors.New("submission not found")
)

// CaseStore is the case-persistence collaborator.
type CaseStore interface {
	// CreateCase inserts a case. An empty ID is replaced by a new UUID.
	CreateCase(ctx context.Context, c *models.Case) error
	// GetCase retrieves a case by its canonical ID.
	GetCase(ctx context.Context, id string) (*models.Case, error)
	// FindCaseIDByFormID maps a form ID to its canonical case ID, if one exists yet.
	FindCaseIDByFormID(ctx context.Context, formID string) (string, bool, error)
	// UpdateDocumentTypes replaces the persisted document selection.
	UpdateDocumentTypes(ctx context.Context, id string, types []string) error
	// AppendRegeneration adds one entry to the case's regeneration history.
	AppendRegeneration(ctx context.Context, id string, rec models.RegenerationRecord) error
	// Ping checks connectivity.
	Ping(ctx context.Context) error
}

// SubmissionStore keeps raw form submissions for cases that may never have been persisted.
type SubmissionStore interface {
	SaveSubmission(ctx context.Context, sub *models.FormSubmission) error
	GetSubmission(ctx context.Context, formID string) (*models.FormSubmission, error)
	FindSubmissionByCaseID(ctx context.Context, caseID string) (*models.FormSubmission, error)
	LinkCase(ctx context.Context, formID, caseID string) error
}
