package services

import (
	"context"

	"intake-pipeline/backend/internal/status"
	"intake-pipeline/backend/pkg/models"
)

// StatusQueryService serves point-in-time snapshots of job status.
type StatusQueryService struct {
	resolver *IdentifierResolver
	store    status.Store
}

// NewStatusQueryService creates a new StatusQueryService.
func NewStatusQueryService(resolver *IdentifierResolver, store status.Store) *StatusQueryService {
	return &StatusQueryService{resolver: resolver, store: store}
}

// Query returns the snapshot for rawID. For an unknown job it returns a
// not_found view together with ErrNotFound so callers can still render both ids.
func (q *StatusQueryService) Query(ctx context.Context, rawID string) (models.StatusView, error) {
	if err := ValidateJobID(rawID); err != nil {
		return models.StatusView{CaseID: rawID, Status: models.StatusNotFound}, err
	}

	res := q.resolver.Resolve(ctx, rawID)
	if !res.Resolved {
		// retries and failed submissions record under the placeholder itself
		if st, ok := q.store.Get(rawID); ok {
			return st.View(rawID), nil
		}
		// the form is saved but its case record is not linked yet
		return models.StatusView{
			Success:      true,
			CaseID:       rawID,
			Status:       models.StatusProcessing,
			Phase:        models.PhaseSavingForm,
			Progress:     10,
			CurrentPhase: "Saving form data",
		}, nil
	}

	st, ok := q.store.Get(res.CanonicalID)
	if !ok {
		view := models.StatusView{
			Success: false,
			CaseID:  rawID,
			Status:  models.StatusNotFound,
			Message: "No pipeline status found for this job",
		}
		if res.CanonicalID != rawID {
			view.RealCaseID = res.CanonicalID
		}
		return view, ErrNotFound
	}
	return st.View(rawID), nil
}
