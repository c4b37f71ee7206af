package services

import (
	"context"

	"intake-pipeline/backend/internal/repository"
	"intake-pipeline/backend/internal/status"
)

// RetryCoordinator re-runs the pipeline for an existing job with its original input.
type RetryCoordinator struct {
	resolver *IdentifierResolver
	store    status.Store
	invoker  *PipelineInvoker
	loader   *inputLoader
	logger   Logger
}

// NewRetryCoordinator creates a new RetryCoordinator.
func NewRetryCoordinator(
	resolver *IdentifierResolver,
	store status.Store,
	invoker *PipelineInvoker,
	cases repository.CaseStore,
	submissions repository.SubmissionStore,
	logger Logger,
) *RetryCoordinator {
	return &RetryCoordinator{
		resolver: resolver,
		store:    store,
		invoker:  invoker,
		loader:   &inputLoader{cases: cases, submissions: submissions, logger: logger},
		logger:   logger,
	}
}

// Retry reuses the job's id, so the new attempt replaces the previous
// terminal record. The stored status is left untouched when the original
// input cannot be found or another attempt is still running.
func (r *RetryCoordinator) Retry(ctx context.Context, rawID string) (*InvocationResult, error) {
	if err := ValidateJobID(rawID); err != nil {
		return nil, err
	}

	res := r.resolver.Resolve(ctx, rawID)
	jobID := res.CanonicalID
	if !res.Resolved {
		jobID = rawID
	}
	if st, ok := r.store.Get(jobID); ok && st.Status.IsActive() {
		return nil, ErrJobInProgress
	}

	orig, err := r.loader.load(ctx, res)
	if err != nil {
		r.logger.Warn("retry rejected", "job_id", rawID, "error", err)
		return nil, err
	}
	orig.input.CaseID = jobID

	r.logger.Info("retrying pipeline", "job_id", jobID, "durable", orig.durable)
	return r.invoker.Invoke(ctx, jobID, orig.input)
}
