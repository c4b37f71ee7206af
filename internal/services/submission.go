package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"intake-pipeline/backend/internal/repository"
	"intake-pipeline/backend/pkg/models"
)

const submissionSchema = `{
	"type": "object",
	"required": ["formId", "data"],
	"properties": {
		"formId": {"type": "string", "minLength": 1, "maxLength": 100, "pattern": "^[A-Za-z0-9_.-]+$"},
		"data": {"type": "object"},
		"documentTypes": {"type": "array", "items": {"type": "string"}}
	}
}`

// SubmissionRequest is the body of a form submission.
type SubmissionRequest struct {
	FormID        string          `json:"formId"`
	Data          json.RawMessage `json:"data"`
	DocumentTypes []string        `json:"documentTypes,omitempty"`
}

// SubmissionReceipt is returned as soon as the raw submission is saved.
type SubmissionReceipt struct {
	Success       bool     `json:"success"`
	FormID        string   `json:"formId"`
	JobID         string   `json:"jobId"`
	DocumentTypes []string `json:"documentTypes"`
	StatusURL     string   `json:"statusUrl"`
	StreamURL     string   `json:"streamUrl"`
}

// SubmissionService accepts form submissions, persists the case in the
// background and kicks off the pipeline for it.
type SubmissionService struct {
	cases       repository.CaseStore
	submissions repository.SubmissionStore
	invoker     *PipelineInvoker
	catalog     *DocumentCatalog
	logger      Logger
	schema      *jsonschema.Schema
	now         func() time.Time
	wg          sync.WaitGroup
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	cases repository.CaseStore,
	submissions repository.SubmissionStore,
	invoker *PipelineInvoker,
	catalog *DocumentCatalog,
	logger Logger,
) (*SubmissionService, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("submission.json", strings.NewReader(submissionSchema)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("submission.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &SubmissionService{
		cases:       cases,
		submissions: submissions,
		invoker:     invoker,
		catalog:     catalog,
		logger:      logger,
		schema:      schema,
		now:         time.Now,
	}, nil
}

// Submit validates and saves the raw submission, then returns the placeholder
// job id while case creation and the pipeline run continue in the background.
func (s *SubmissionService) Submit(ctx context.Context, body []byte) (*SubmissionReceipt, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ValidationError{Field: "body", Message: "request body is not valid JSON"}
	}
	if err := s.schema.Validate(doc); err != nil {
		return nil, &ValidationError{Field: "body", Message: schemaMessage(err)}
	}

	var req SubmissionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &ValidationError{Field: "body", Message: err.Error()}
	}

	types := s.catalog.All()
	if req.DocumentTypes != nil {
		var err error
		if types, err = s.catalog.Validate(req.DocumentTypes); err != nil {
			return nil, err
		}
	}

	sub := &models.FormSubmission{
		FormID:        req.FormID,
		Data:          req.Data,
		DocumentTypes: types,
		SubmittedAt:   s.now().UTC(),
	}
	if err := s.submissions.SaveSubmission(ctx, sub); err != nil {
		return nil, fmt.Errorf("save submission: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.process(context.WithoutCancel(ctx), sub)
	}()

	jobID := PlaceholderID(req.FormID)
	s.logger.Info("form submission accepted", "form_id", req.FormID, "job_id", jobID)
	return &SubmissionReceipt{
		Success:       true,
		FormID:        req.FormID,
		JobID:         jobID,
		DocumentTypes: types,
		StatusURL:     "/pipeline-status/" + jobID,
		StreamURL:     "/jobs/" + jobID + "/stream",
	}, nil
}

// Wait blocks until every background submission has been processed.
func (s *SubmissionService) Wait() {
	s.wg.Wait()
}

// process persists the case and runs the pipeline. The pending status is
// written before the case becomes resolvable, so a resolved placeholder never
// reads as not_found.
func (s *SubmissionService) process(ctx context.Context, sub *models.FormSubmission) {
	logger := s.logger
	caseID, existing, err := s.cases.FindCaseIDByFormID(ctx, sub.FormID)
	if err != nil {
		logger.Error("case lookup failed", "form_id", sub.FormID, "error", err)
		s.failPlaceholder(sub.FormID, err)
		return
	}

	jobID := caseID
	if !existing {
		c := &models.Case{FormID: sub.FormID, Input: sub.Data, DocumentTypes: sub.DocumentTypes}
		c.ID = newCaseID()
		jobID = c.ID

		run, err := s.invoker.Begin(jobID)
		if err != nil {
			logger.Error("could not reserve pipeline run", "job_id", jobID, "error", err)
			return
		}
		if err := s.cases.CreateCase(ctx, c); err != nil {
			logger.Error("case persistence failed", "form_id", sub.FormID, "error", err)
			run.Abort(err)
			s.failPlaceholder(sub.FormID, err)
			return
		}
		s.link(ctx, sub.FormID, jobID)
		s.execute(ctx, run, sub, jobID)
		return
	}

	run, err := s.invoker.Begin(jobID)
	if errors.Is(err, ErrJobInProgress) {
		logger.Warn("resubmission ignored, pipeline still running", "form_id", sub.FormID, "job_id", jobID)
		return
	}
	if err != nil {
		logger.Error("could not reserve pipeline run", "job_id", jobID, "error", err)
		return
	}
	s.link(ctx, sub.FormID, jobID)
	s.execute(ctx, run, sub, jobID)
}

// failPlaceholder records a failed run under temp-{formId}, the only id the
// client holds while no case is linked to the form.
func (s *SubmissionService) failPlaceholder(formID string, cause error) {
	jobID := PlaceholderID(formID)
	run, err := s.invoker.Begin(jobID)
	if err != nil {
		s.logger.Warn("could not record submission failure", "job_id", jobID, "error", err)
		return
	}
	run.Abort(cause)
}

func (s *SubmissionService) link(ctx context.Context, formID, caseID string) {
	bestEffort(ctx, s.logger, "link submission to case", func(ctx context.Context) error {
		return s.submissions.LinkCase(ctx, formID, caseID)
	}, "form_id", formID, "case_id", caseID)
}

func (s *SubmissionService) execute(ctx context.Context, run *Run, sub *models.FormSubmission, jobID string) {
	_, err := run.Execute(ctx, models.PipelineInput{
		CaseID:        jobID,
		FormID:        sub.FormID,
		Data:          sub.Data,
		DocumentTypes: sub.DocumentTypes,
	})
	if err != nil {
		// the form save has already been acknowledged
		s.logger.Warn("pipeline failed after submission", "form_id", sub.FormID, "job_id", jobID, "error", err)
	}
}

func schemaMessage(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return fmt.Sprintf("%s: %s", loc, leaf.Message)
	}
	return err.Error()
}
