package models

import (
	"encoding/json"
	"time"
)

// FormSubmission is the raw submitted input kept in the fallback store.
// CaseID stays empty until the case record has been created.
type FormSubmission struct {
	FormID        string          `json:"formId"`
	CaseID        string          `json:"caseId,omitempty"`
	Data          json.RawMessage `json:"data"`
	DocumentTypes []string        `json:"documentTypes"`
	SubmittedAt   time.Time       `json:"submittedAt"`
}

// PipelineInput is the body sent to the normalization collaborator.
type PipelineInput struct {
	CaseID        string          `json:"caseId"`
	FormID        string          `json:"formId,omitempty"`
	Data          json.RawMessage `json:"data"`
	DocumentTypes []string        `json:"documentTypes"`
}
