package services

import (
	"context"
	"errors"

	"intake-pipeline/backend/internal/repository"
	"intake-pipeline/backend/pkg/models"
)

// originalInput is a job's submitted input plus where it was found.
type originalInput struct {
	input models.PipelineInput
	// durable is set when the input came from a persisted case record.
	durable bool
}

// inputLoader locates the original input for a job: the case record first,
// then the fallback submission store.
type inputLoader struct {
	cases       repository.CaseStore
	submissions repository.SubmissionStore
	logger      Logger
}

func (l *inputLoader) load(ctx context.Context, res Resolution) (*originalInput, error) {
	var causes []error

	if res.Resolved {
		c, err := l.cases.GetCase(ctx, res.CanonicalID)
		switch {
		case err == nil:
			return &originalInput{
				input: models.PipelineInput{
					CaseID:        c.ID,
					FormID:        c.FormID,
					Data:          c.Input,
					DocumentTypes: c.DocumentTypes,
				},
				durable: true,
			}, nil
		case !errors.Is(err, repository.ErrCaseNotFound):
			l.logger.Warn("case lookup failed, scanning fallback store", "job_id", res.CanonicalID, "error", err)
			causes = append(causes, err)
		}
	}

	var (
		sub *models.FormSubmission
		err error
	)
	if res.Placeholder {
		sub, err = l.submissions.GetSubmission(ctx, res.FormID)
	} else {
		sub, err = l.submissions.FindSubmissionByCaseID(ctx, res.CanonicalID)
	}
	if err != nil {
		if !errors.Is(err, repository.ErrSubmissionNotFound) {
			causes = append(causes, err)
		}
		return nil, &LookupError{JobID: res.RawID, Cause: errors.Join(causes...)}
	}

	return &originalInput{
		input: models.PipelineInput{
			CaseID:        res.CanonicalID,
			FormID:        sub.FormID,
			Data:          sub.Data,
			DocumentTypes: sub.DocumentTypes,
		},
	}, nil
}
