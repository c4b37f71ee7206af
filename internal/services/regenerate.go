package services

import (
	"context"
	"fmt"
	"time"

	"intake-pipeline/backend/internal/repository"
	"intake-pipeline/backend/internal/status"
	"intake-pipeline/backend/pkg/models"
)

// TriggerAPI marks regenerations requested through the HTTP API.
const TriggerAPI = "api"

// RegenerationResult is returned once the regeneration has been started.
type RegenerationResult struct {
	CaseID        string   `json:"caseId"`
	JobID         string   `json:"jobId"`
	DocumentTypes []string `json:"documentTypes"`
	Pipeline      struct {
		Status  models.Status `json:"status"`
		Message string        `json:"message"`
	} `json:"pipeline"`
}

// RegenerationCoordinator re-runs the pipeline with a new document selection.
type RegenerationCoordinator struct {
	resolver *IdentifierResolver
	store    status.Store
	invoker  *PipelineInvoker
	cases    repository.CaseStore
	loader   *inputLoader
	catalog  *DocumentCatalog
	logger   Logger
	now      func() time.Time
}

// NewRegenerationCoordinator creates a new RegenerationCoordinator.
func NewRegenerationCoordinator(
	resolver *IdentifierResolver,
	store status.Store,
	invoker *PipelineInvoker,
	cases repository.CaseStore,
	submissions repository.SubmissionStore,
	catalog *DocumentCatalog,
	logger Logger,
) *RegenerationCoordinator {
	return &RegenerationCoordinator{
		resolver: resolver,
		store:    store,
		invoker:  invoker,
		cases:    cases,
		loader:   &inputLoader{cases: cases, submissions: submissions, logger: logger},
		catalog:  catalog,
		logger:   logger,
		now:      time.Now,
	}
}

// Regenerate validates the selection before touching anything, then starts
// the pipeline in the background and returns immediately.
func (g *RegenerationCoordinator) Regenerate(ctx context.Context, rawID string, documentTypes []string, trigger string) (*RegenerationResult, error) {
	types, err := g.catalog.Validate(documentTypes)
	if err != nil {
		return nil, err
	}
	if err := ValidateJobID(rawID); err != nil {
		return nil, err
	}
	if trigger == "" {
		trigger = TriggerAPI
	}

	res := g.resolver.Resolve(ctx, rawID)
	jobID := res.CanonicalID
	if !res.Resolved {
		jobID = rawID
	}
	if st, ok := g.store.Get(jobID); ok && st.Status.IsActive() {
		return nil, ErrJobInProgress
	}

	orig, err := g.loader.load(ctx, res)
	if err != nil {
		g.logger.Warn("regeneration rejected", "job_id", rawID, "error", err)
		return nil, err
	}
	input := orig.input
	input.CaseID = jobID
	input.DocumentTypes = types

	run, err := g.invoker.Begin(jobID)
	if err != nil {
		return nil, err
	}
	if orig.durable {
		if err := g.cases.UpdateDocumentTypes(ctx, jobID, types); err != nil {
			err = fmt.Errorf("update document selection: %w", err)
			run.Abort(err)
			return nil, err
		}
	}
	run.Go(ctx, input)

	if orig.durable {
		rec := models.RegenerationRecord{Timestamp: g.now().UTC(), DocumentTypes: types, Trigger: trigger}
		bestEffort(ctx, g.logger, "append regeneration history", func(ctx context.Context) error {
			return g.cases.AppendRegeneration(ctx, jobID, rec)
		}, "job_id", jobID)
	}

	g.logger.Info("document regeneration started", "job_id", jobID, "document_types", types, "trigger", trigger)

	out := &RegenerationResult{CaseID: rawID, JobID: jobID, DocumentTypes: types}
	out.Pipeline.Status = models.StatusProcessing
	out.Pipeline.Message = "Document regeneration started"
	return out, nil
}
